package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/molave-dental/platform/libs/db"
	"github.com/molave-dental/platform/libs/outbox"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

type Job struct {
	ID            string
	AppointmentID *string
	Type          string
	Status        string
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentDetails is everything a notification template needs, joined in
// one read.
type AppointmentDetails struct {
	AppointmentID   string
	ReferenceNumber string
	ScheduledAt     time.Time
	Status          string
	PatientName     string
	PatientEmail    string
	PatientPhone    string
	ServiceName     string
	BranchName      string
	BranchAddress   string
	DentistName     string
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, outbox: outbox.NewRepository()}
}

// FetchPending claims up to limit PENDING jobs. SKIP LOCKED keeps multiple
// dispatcher replicas from claiming the same rows.
func (r *Repository) FetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id::text, appointment_id::text, type, status, payload, created_at
		FROM jobs
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.AppointmentID, &j.Type, &j.Status, &j.Payload, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessing(ctx context.Context, tx pgx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'PROCESSING', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

// FetchPendingForAppointment claims every PENDING job referencing one
// appointment, for event-driven processing ahead of the poller.
func (r *Repository) FetchPendingForAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id::text, appointment_id::text, type, status, payload, created_at
		FROM jobs
		WHERE status = 'PENDING' AND appointment_id = $1
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.AppointmentID, &j.Type, &j.Status, &j.Payload, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

// CompleteJob marks the job COMPLETED and records the delivery event in the
// same transaction, so the outcome is published exactly when the status
// flips.
func (r *Repository) CompleteJob(ctx context.Context, job Job, channel string, sentAt time.Time) error {
	result, err := json.Marshal(map[string]string{
		"sentAt":  sentAt.UTC().Format(time.RFC3339),
		"channel": channel,
	})
	if err != nil {
		return err
	}
	payload, err := json.Marshal(outbox.NotificationOutcome{
		JobID:         job.ID,
		AppointmentID: derefString(job.AppointmentID),
		JobType:       job.Type,
		Channel:       channel,
		SentAt:        sentAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'COMPLETED', result = $2, updated_at = now()
		WHERE id = $1
	`, job.ID, result); err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "job",
		AggregateID:   job.ID,
		EventType:     outbox.TopicNotificationSent,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FailJob marks the job FAILED and records the failure event in the same
// transaction.
func (r *Repository) FailJob(ctx context.Context, job Job, errMsg string) error {
	payload, err := json.Marshal(outbox.NotificationOutcome{
		JobID:         job.ID,
		AppointmentID: derefString(job.AppointmentID),
		JobType:       job.Type,
		Error:         errMsg,
	})
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'FAILED', error = $2, updated_at = now()
		WHERE id = $1
	`, job.ID, errMsg); err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "job",
		AggregateID:   job.ID,
		EventType:     outbox.TopicNotificationFailed,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *Repository) GetAppointmentDetails(ctx context.Context, appointmentID string) (AppointmentDetails, error) {
	var d AppointmentDetails
	err := r.pool.QueryRow(ctx, `
		SELECT a.id::text, a.reference_number, a.scheduled_at, a.status,
			p.name, COALESCE(p.email, ''), p.phone,
			s.name, b.name, b.address, COALESCE(dn.name, '')
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN services s ON s.id = a.service_id
		JOIN branches b ON b.id = a.branch_id
		LEFT JOIN dentists dn ON dn.id = a.dentist_id
		WHERE a.id = $1
	`, appointmentID).Scan(
		&d.AppointmentID, &d.ReferenceNumber, &d.ScheduledAt, &d.Status,
		&d.PatientName, &d.PatientEmail, &d.PatientPhone,
		&d.ServiceName, &d.BranchName, &d.BranchAddress, &d.DentistName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return AppointmentDetails{}, ErrAppointmentNotFound
	}
	if err != nil {
		return AppointmentDetails{}, err
	}
	d.ScheduledAt = d.ScheduledAt.UTC()
	return d, nil
}
