package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/molave-dental/platform/libs/outbox"
	"github.com/molave-dental/platform/services/booking-service/internal/model"
)

// fakeTx satisfies pgx.Tx for handler tests; only Commit and Rollback are
// ever reached because the stub store ignores the transaction.
type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

type stubBookingStore struct {
	service      model.Service
	serviceErr   error
	overlapping  int
	createErr    error
	jobErr       error
	createdAppts []*model.Appointment
	insertedJobs []*model.Job
}

func (s *stubBookingStore) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

func (s *stubBookingStore) GetServiceForBooking(context.Context, string) (model.Service, error) {
	return s.service, s.serviceErr
}

func (s *stubBookingStore) ResolvePatient(context.Context, pgx.Tx, string, string, string) (string, error) {
	return "patient-1", nil
}

func (s *stubBookingStore) CountOverlapping(context.Context, pgx.Tx, string, time.Time, time.Time) (int, error) {
	return s.overlapping, nil
}

func (s *stubBookingStore) CreateAppointment(_ context.Context, _ pgx.Tx, appt *model.Appointment) error {
	if s.createErr != nil {
		return s.createErr
	}
	appt.ID = "appt-1"
	appt.ReferenceNumber = "DN-TESTREF1"
	appt.CreatedAt = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.createdAppts = append(s.createdAppts, appt)
	return nil
}

func (s *stubBookingStore) InsertJob(_ context.Context, _ pgx.Tx, job *model.Job) error {
	if s.jobErr != nil {
		return s.jobErr
	}
	s.insertedJobs = append(s.insertedJobs, job)
	return nil
}

type stubOutbox struct {
	events []outbox.Event
	err    error
}

func (s *stubOutbox) Insert(_ context.Context, _ pgx.Tx, ev outbox.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func postBooking(t *testing.T, store BookingStore, ob OutboxStore, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewBookingHandler(store, ob, testLogger())
	req := httptest.NewRequest(http.MethodPost, "http://x/v1/public/bookings", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Create(rw, req)
	return rw
}

const validBookingBody = `{
	"branchId": "b1",
	"serviceId": "s1",
	"dentistId": "d1",
	"scheduledAt": "2026-03-02T09:00:00Z",
	"patientName": "Maria Santos",
	"patientPhone": "+63-917-555-0101",
	"patientEmail": "maria@example.com",
	"isFirstVisit": true
}`

func TestBookingRejectsMissingFields(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"branchId":"b1","serviceId":"s1","scheduledAt":"2026-03-02T09:00:00Z","patientName":"Maria"}`,
		`{"branchId":"b1","serviceId":"s1","scheduledAt":"2026-03-02T09:00:00Z","patientPhone":"0917"}`,
		`not json`,
	} {
		rw := postBooking(t, &stubBookingStore{}, &stubOutbox{}, body)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rw.Code)
		}
	}
}

func TestBookingRejectsBadTimestamp(t *testing.T) {
	body := strings.Replace(validBookingBody, "2026-03-02T09:00:00Z", "tomorrow at 9", 1)
	rw := postBooking(t, &stubBookingStore{}, &stubOutbox{}, body)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestBookingRejectsUnknownService(t *testing.T) {
	store := &stubBookingStore{serviceErr: pgx.ErrNoRows}
	rw := postBooking(t, store, &stubOutbox{}, validBookingBody)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestBookingConflictsWhenSlotTaken(t *testing.T) {
	store := &stubBookingStore{
		service:     model.Service{ID: "s1", Name: "Cleaning", DurationMins: 30},
		overlapping: 1,
	}
	rw := postBooking(t, store, &stubOutbox{}, validBookingBody)
	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rw.Code)
	}
	if len(store.createdAppts) != 0 {
		t.Fatal("expected no appointment insert on conflict")
	}
}

func TestBookingSuccess(t *testing.T) {
	store := &stubBookingStore{
		service: model.Service{ID: "s1", Name: "Cleaning", DurationMins: 30},
	}
	ob := &stubOutbox{}
	rw := postBooking(t, store, ob, validBookingBody)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}

	var resp createBookingResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AppointmentID != "appt-1" {
		t.Fatalf("unexpected appointmentId %q", resp.AppointmentID)
	}
	if resp.ReferenceNumber != "DN-TESTREF1" {
		t.Fatalf("unexpected referenceNumber %q", resp.ReferenceNumber)
	}
	if resp.ConfirmedAt != "2026-03-01T08:00:00Z" {
		t.Fatalf("unexpected confirmedAt %q", resp.ConfirmedAt)
	}

	if len(store.createdAppts) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(store.createdAppts))
	}
	appt := store.createdAppts[0]
	if appt.PatientID != "patient-1" || appt.BranchID != "b1" || appt.ServiceID != "s1" {
		t.Fatalf("appointment fields wrong: %+v", appt)
	}
	if appt.DentistID == nil || *appt.DentistID != "d1" {
		t.Fatalf("expected dentist d1, got %v", appt.DentistID)
	}

	if len(store.insertedJobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(store.insertedJobs))
	}
	job := store.insertedJobs[0]
	if job.Type != model.JobTypeBookingConfirmation {
		t.Fatalf("unexpected job type %q", job.Type)
	}
	var payload map[string]any
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("decode job payload: %v", err)
	}
	if payload["appointmentId"] != "appt-1" || payload["isFirstVisit"] != true {
		t.Fatalf("unexpected job payload %v", payload)
	}

	if len(ob.events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(ob.events))
	}
	if ob.events[0].EventType != outbox.TopicAppointmentBooked {
		t.Fatalf("unexpected event type %q", ob.events[0].EventType)
	}
}

func TestBookingNoPreferenceOmitsDentist(t *testing.T) {
	store := &stubBookingStore{
		service: model.Service{ID: "s1", Name: "Cleaning", DurationMins: 30},
	}
	body := strings.Replace(validBookingBody, `"dentistId": "d1",`, `"dentistId": null,`, 1)
	rw := postBooking(t, store, &stubOutbox{}, body)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rw.Code)
	}
	if store.createdAppts[0].DentistID != nil {
		t.Fatalf("expected nil dentist, got %v", *store.createdAppts[0].DentistID)
	}
}

func TestBookingSucceedsWhenEnqueueFails(t *testing.T) {
	store := &stubBookingStore{
		service: model.Service{ID: "s1", Name: "Cleaning", DurationMins: 30},
		jobErr:  context.DeadlineExceeded,
	}
	rw := postBooking(t, store, &stubOutbox{}, validBookingBody)
	if rw.Code != http.StatusCreated {
		t.Fatalf("booking must stand when the confirmation enqueue fails, got %d", rw.Code)
	}
}
