package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/molave-dental/platform/libs/db"
	"github.com/molave-dental/platform/libs/refcode"
	"github.com/molave-dental/platform/services/booking-service/internal/model"
)

var (
	// ErrReferenceExhausted means five reference codes in a row collided,
	// which in practice indicates something is badly wrong with the table.
	ErrReferenceExhausted = errors.New("could not allocate a unique reference number")
)

// BookingRepository holds the write side of public booking. The handler owns
// the transaction; every mutating method takes a pgx.Tx so the overlap
// re-check and the inserts share one snapshot.
type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// GetPatientByPhone is the pool-level lookup backing the returning-patient
// prefill endpoint.
func (r *BookingRepository) GetPatientByPhone(ctx context.Context, phone string) (model.Patient, error) {
	var p model.Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(email, ''), phone, date_of_birth, created_at, updated_at
		FROM patients
		WHERE phone = $1
	`, phone).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.DateOfBirth, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Patient{}, err
	}
	return p, nil
}

// ResolvePatient finds the patient with this phone number or creates one.
// Phone is the identity key: an existing record wins and its stored name and
// email are left untouched. Two concurrent first-time bookings can both miss
// the select; ON CONFLICT DO NOTHING plus a re-select makes the loser adopt
// the winner's row instead of failing.
func (r *BookingRepository) ResolvePatient(ctx context.Context, tx pgx.Tx, name, email, phone string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `SELECT id::text FROM patients WHERE phone = $1`, phone).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, phone)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (phone) DO NOTHING
		RETURNING id::text
	`, uuid.NewString(), name, email, phone).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race; the other row is committed or in our snapshot.
		err = tx.QueryRow(ctx, `SELECT id::text FROM patients WHERE phone = $1`, phone).Scan(&id)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// CountOverlapping counts PENDING or CONFIRMED appointments whose occupied
// interval intersects [start, end). Intervals touching at an endpoint do not
// overlap. Appointments with a NULL dentist count against every dentist.
// dentistID empty means the booking itself has no dentist preference, in
// which case only the shared NULL-dentist pool is consulted.
func (r *BookingRepository) CountOverlapping(ctx context.Context, tx pgx.Tx, dentistID string, start, end time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		WHERE a.status IN ('PENDING', 'CONFIRMED')
			AND a.scheduled_at < $2
			AND a.scheduled_at + make_interval(mins => s.duration_mins) > $1
	`
	args := []any{start, end}
	if dentistID != "" {
		query += ` AND (a.dentist_id = $3 OR a.dentist_id IS NULL)`
		args = append(args, dentistID)
	} else {
		query += ` AND a.dentist_id IS NULL`
	}

	var n int
	if err := tx.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateAppointment inserts the appointment as PENDING, allocating its
// reference number. The unique index on reference_number is the authority on
// collisions: each attempt runs in a savepoint so a violation can be rolled
// back and retried without poisoning the enclosing transaction.
func (r *BookingRepository) CreateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	appt.ID = uuid.NewString()
	appt.Status = model.AppointmentPending

	for attempt := 0; attempt < refcode.MaxAttempts; attempt++ {
		ref := refcode.New()

		nested, err := tx.Begin(ctx)
		if err != nil {
			return err
		}
		err = nested.QueryRow(ctx, `
			INSERT INTO appointments (id, patient_id, branch_id, service_id, dentist_id, reference_number, title, notes, scheduled_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
			RETURNING created_at, updated_at
		`, appt.ID, appt.PatientID, appt.BranchID, appt.ServiceID, appt.DentistID,
			ref, appt.Title, appt.Notes, appt.ScheduledAt, appt.Status,
		).Scan(&appt.CreatedAt, &appt.UpdatedAt)
		if err != nil {
			_ = nested.Rollback(ctx)
			if db.IsUniqueViolation(err, "appointments_reference_number_key") {
				continue
			}
			return err
		}
		if err := nested.Commit(ctx); err != nil {
			return err
		}
		appt.ReferenceNumber = ref
		return nil
	}
	return ErrReferenceExhausted
}

// GetServiceForBooking returns the service if it exists and is active.
func (r *BookingRepository) GetServiceForBooking(ctx context.Context, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(description, ''), duration_mins, is_active, created_at, updated_at
		FROM services
		WHERE id = $1 AND is_active
	`, serviceID).Scan(&s.ID, &s.Name, &s.Description, &s.DurationMins, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Service{}, err
	}
	return s, nil
}

// InsertJob enqueues a job row inside tx. The notification worker picks it
// up by polling for PENDING rows.
func (r *BookingRepository) InsertJob(ctx context.Context, tx pgx.Tx, job *model.Job) error {
	job.ID = uuid.NewString()
	job.Status = model.JobPending
	return tx.QueryRow(ctx, `
		INSERT INTO jobs (id, appointment_id, type, status, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, job.ID, job.AppointmentID, job.Type, job.Status, job.Payload).Scan(&job.CreatedAt, &job.UpdatedAt)
}
