package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/molave-dental/platform/libs/db"
	"github.com/molave-dental/platform/services/notification-service/internal/email"
)

const (
	TypeBookingConfirmation = "PUBLIC_BOOKING_CONFIRMATION"
	TypeReminder            = "SEND_REMINDER"
)

// Worker drains PENDING jobs and dispatches notifications. Claiming runs in
// a short transaction (PENDING -> PROCESSING); delivery and the final status
// write happen outside it so a slow SMTP server never holds row locks.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	emailer   email.Sender
	fallback  email.Sender
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(pool *db.Pool, repo *Repository, emailer email.Sender, fallback email.Sender, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		emailer:   emailer,
		fallback:  fallback,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs, err := w.claimBatch(ctx)
			if err != nil {
				w.logger.Error("job claim failed", "err", err)
				continue
			}
			for _, job := range jobs {
				w.process(ctx, job)
			}
		}
	}
}

func (w *Worker) claimBatch(ctx context.Context) ([]Job, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchPending(ctx, tx, w.batchSize)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	if err := w.repo.MarkProcessing(ctx, tx, ids); err != nil {
		return nil, err
	}
	return jobs, tx.Commit(ctx)
}

// ProcessAppointmentJobs claims and runs every pending job for one
// appointment right away, so a consumed event is acted on without waiting
// for the next poll tick. The poller remains the backstop for anything this
// misses.
func (w *Worker) ProcessAppointmentJobs(ctx context.Context, appointmentID string) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	claimed, err := w.repo.FetchPendingForAppointment(ctx, tx, appointmentID)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return tx.Commit(ctx)
	}
	ids := make([]string, 0, len(claimed))
	for _, j := range claimed {
		ids = append(ids, j.ID)
	}
	if err := w.repo.MarkProcessing(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for _, job := range claimed {
		w.process(ctx, job)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, job Job) {
	if job.AppointmentID == nil || *job.AppointmentID == "" {
		w.fail(ctx, job, "job has no appointment")
		return
	}

	details, err := w.repo.GetAppointmentDetails(ctx, *job.AppointmentID)
	if err == ErrAppointmentNotFound {
		w.fail(ctx, job, "appointment not found")
		return
	}
	if err != nil {
		w.fail(ctx, job, "appointment load failed: "+err.Error())
		return
	}

	subject, body := ComposeMessage(job.Type, details)
	channel, sender := w.route(details)
	recipient := details.PatientEmail
	if recipient == "" {
		recipient = details.PatientPhone
	}
	if err := sender.Send(recipient, subject, body); err != nil {
		w.fail(ctx, job, "send failed: "+err.Error())
		return
	}

	if err := w.repo.CompleteJob(ctx, job, channel, time.Now().UTC()); err != nil {
		w.logger.Error("job completion write failed", "err", err, "job_id", job.ID)
		return
	}
	w.logger.Info("job completed", "job_id", job.ID, "type", job.Type, "channel", channel,
		"reference_number", details.ReferenceNumber)
}

func (w *Worker) route(details AppointmentDetails) (string, email.Sender) {
	if details.PatientEmail != "" && w.emailer != nil {
		return "email", w.emailer
	}
	return "log", w.fallback
}

func (w *Worker) fail(ctx context.Context, job Job, reason string) {
	w.logger.Error("job failed", "job_id", job.ID, "type", job.Type, "reason", reason)
	if err := w.repo.FailJob(ctx, job, reason); err != nil {
		w.logger.Error("job failure write failed", "err", err, "job_id", job.ID)
	}
}

// ComposeMessage renders the notification text for one job type.
func ComposeMessage(jobType string, d AppointmentDetails) (subject string, body string) {
	when := d.ScheduledAt.Format("Monday, 2 January 2006 at 15:04 MST")
	switch jobType {
	case TypeReminder:
		subject = fmt.Sprintf("Reminder: your %s appointment (%s)", d.ServiceName, d.ReferenceNumber)
		body = fmt.Sprintf(
			"Hi %s,\n\nThis is a reminder of your upcoming appointment.\n\nService: %s\nWhen: %s\nClinic: %s, %s\n",
			d.PatientName, d.ServiceName, when, d.BranchName, d.BranchAddress)
	default:
		subject = fmt.Sprintf("Booking received: %s (%s)", d.ServiceName, d.ReferenceNumber)
		body = fmt.Sprintf(
			"Hi %s,\n\nWe received your booking request. Your reference number is %s.\n\nService: %s\nWhen: %s\nClinic: %s, %s\n",
			d.PatientName, d.ReferenceNumber, d.ServiceName, when, d.BranchName, d.BranchAddress)
	}
	if d.DentistName != "" {
		body += fmt.Sprintf("Dentist: %s\n", d.DentistName)
	}
	return subject, body
}
