package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/molave-dental/platform/libs/httpx"
	"github.com/molave-dental/platform/libs/outbox"
	"github.com/molave-dental/platform/services/booking-service/internal/model"
	"github.com/molave-dental/platform/services/booking-service/internal/storage"
)

// BookingStore is the write surface of public booking. Mutations take the
// transaction so the overlap re-check and the inserts share one snapshot.
type BookingStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetServiceForBooking(ctx context.Context, serviceID string) (model.Service, error)
	ResolvePatient(ctx context.Context, tx pgx.Tx, name, email, phone string) (string, error)
	CountOverlapping(ctx context.Context, tx pgx.Tx, dentistID string, start, end time.Time) (int, error)
	CreateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	InsertJob(ctx context.Context, tx pgx.Tx, job *model.Job) error
}

// OutboxStore decouples the handler from the outbox table for tests.
type OutboxStore interface {
	Insert(ctx context.Context, tx pgx.Tx, ev outbox.Event) error
}

type BookingHandler struct {
	store      BookingStore
	outboxRepo OutboxStore
	logger     *slog.Logger
}

func NewBookingHandler(store BookingStore, outboxRepo OutboxStore, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{store: store, outboxRepo: outboxRepo, logger: logger}
}

type createBookingRequest struct {
	BranchID     string  `json:"branchId"`
	ServiceID    string  `json:"serviceId"`
	DentistID    *string `json:"dentistId"`
	ScheduledAt  string  `json:"scheduledAt"`
	PatientName  string  `json:"patientName"`
	PatientPhone string  `json:"patientPhone"`
	PatientEmail *string `json:"patientEmail"`
	Notes        string  `json:"notes"`
	IsFirstVisit bool    `json:"isFirstVisit"`
}

type createBookingResponse struct {
	AppointmentID   string `json:"appointmentId"`
	ReferenceNumber string `json:"referenceNumber"`
	ConfirmedAt     string `json:"confirmedAt"`
}

// Create books an appointment for an anonymous public visitor.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	req.BranchID = strings.TrimSpace(req.BranchID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientPhone = strings.TrimSpace(req.PatientPhone)

	if req.BranchID == "" || req.ServiceID == "" || req.ScheduledAt == "" || req.PatientName == "" || req.PatientPhone == "" {
		httpx.WriteError(w, http.StatusBadRequest, "patientName, patientPhone, branchId, serviceId, scheduledAt are required")
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "scheduledAt must be an RFC 3339 timestamp")
		return
	}
	scheduledAt = scheduledAt.UTC()

	dentistID := ""
	if req.DentistID != nil {
		dentistID = strings.TrimSpace(*req.DentistID)
	}
	email := ""
	if req.PatientEmail != nil {
		email = strings.TrimSpace(*req.PatientEmail)
	}

	ctx := r.Context()

	svc, err := h.store.GetServiceForBooking(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, http.StatusBadRequest, "unknown or inactive service")
			return
		}
		h.logger.Error("service lookup failed", "err", err, "service_id", req.ServiceID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load service")
		return
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		h.logger.Error("begin tx failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	patientID, err := h.store.ResolvePatient(ctx, tx, req.PatientName, email, req.PatientPhone)
	if err != nil {
		h.logger.Error("patient resolve failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to save patient")
		return
	}

	// The slot the visitor saw is only a snapshot. Re-check inside the same
	// transaction that inserts, so a slot taken since then comes back 409
	// instead of silently double-booked.
	end := scheduledAt.Add(time.Duration(svc.DurationMins) * time.Minute)
	overlapping, err := h.store.CountOverlapping(ctx, tx, dentistID, scheduledAt, end)
	if err != nil {
		h.logger.Error("overlap check failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to verify slot")
		return
	}
	if overlapping > 0 {
		httpx.WriteError(w, http.StatusConflict, "time slot is no longer available")
		return
	}

	appt := &model.Appointment{
		PatientID:   patientID,
		BranchID:    req.BranchID,
		ServiceID:   req.ServiceID,
		Title:       svc.Name,
		Notes:       strings.TrimSpace(req.Notes),
		ScheduledAt: scheduledAt,
	}
	if dentistID != "" {
		appt.DentistID = &dentistID
	}
	if err := h.store.CreateAppointment(ctx, tx, appt); err != nil {
		if errors.Is(err, storage.ErrReferenceExhausted) {
			h.logger.Error("reference number space exhausted")
			httpx.WriteError(w, http.StatusInternalServerError, "failed to allocate reference number")
			return
		}
		h.logger.Error("appointment insert failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create appointment")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		h.logger.Error("commit failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "db error")
		return
	}

	// Confirmation enqueue runs after commit in its own transaction. The
	// booking already stands; a failure here is logged, never surfaced.
	h.enqueueConfirmation(ctx, appt, req.IsFirstVisit)

	httpx.WriteJSON(w, http.StatusCreated, createBookingResponse{
		AppointmentID:   appt.ID,
		ReferenceNumber: appt.ReferenceNumber,
		ConfirmedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *BookingHandler) enqueueConfirmation(ctx context.Context, appt *model.Appointment, firstVisit bool) {
	tx, err := h.store.Begin(ctx)
	if err != nil {
		h.logger.Error("confirmation enqueue: begin tx failed", "err", err, "appointment_id", appt.ID)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	payload, _ := json.Marshal(map[string]any{
		"appointmentId": appt.ID,
		"isFirstVisit":  firstVisit,
	})
	job := &model.Job{
		AppointmentID: &appt.ID,
		Type:          model.JobTypeBookingConfirmation,
		Payload:       payload,
	}
	if err := h.store.InsertJob(ctx, tx, job); err != nil {
		h.logger.Error("confirmation enqueue: job insert failed", "err", err, "appointment_id", appt.ID)
		return
	}

	dentistID := ""
	if appt.DentistID != nil {
		dentistID = *appt.DentistID
	}
	evtPayload, _ := json.Marshal(outbox.AppointmentBooked{
		AppointmentID:   appt.ID,
		ReferenceNumber: appt.ReferenceNumber,
		PatientID:       appt.PatientID,
		BranchID:        appt.BranchID,
		ServiceID:       appt.ServiceID,
		DentistID:       dentistID,
		ScheduledAt:     appt.ScheduledAt.Format(time.RFC3339),
	})
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.TopicAppointmentBooked,
		Payload:       evtPayload,
	}); err != nil {
		h.logger.Error("confirmation enqueue: outbox insert failed", "err", err, "appointment_id", appt.ID)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		h.logger.Error("confirmation enqueue: commit failed", "err", err, "appointment_id", appt.ID)
	}
}
