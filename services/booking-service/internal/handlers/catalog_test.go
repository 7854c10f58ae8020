package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/molave-dental/platform/services/booking-service/internal/model"
)

type stubPatientLookup struct {
	patient model.Patient
	err     error
	queried bool
}

func (s *stubPatientLookup) GetPatientByPhone(context.Context, string) (model.Patient, error) {
	s.queried = true
	return s.patient, s.err
}

type stubCatalogStore struct {
	dentists  []model.Dentist
	schedules []model.DentistSchedule
}

func (s *stubCatalogStore) ListActiveBranches(context.Context) ([]model.Branch, error) {
	return nil, nil
}

func (s *stubCatalogStore) ListActiveServices(context.Context) ([]model.Service, error) {
	return nil, nil
}

func (s *stubCatalogStore) ListActiveDentists(context.Context, string) ([]model.Dentist, error) {
	return s.dentists, nil
}

func (s *stubCatalogStore) ListBranchSchedules(context.Context, string) ([]model.DentistSchedule, error) {
	return s.schedules, nil
}

func TestDentistListIncludesSchedules(t *testing.T) {
	store := &stubCatalogStore{
		dentists: []model.Dentist{
			{ID: "d1", Name: "Dr. Reyes"},
			{ID: "d2", Name: "Dr. Lim"},
		},
		schedules: []model.DentistSchedule{
			{DentistID: "d1", Weekday: 1, StartMinute: 540, EndMinute: 1020, SlotMinutes: 30},
			{DentistID: "d1", Weekday: 2, StartMinute: 540, EndMinute: 720, SlotMinutes: 30},
		},
	}
	h := NewCatalogHandler(store, nil, testLogger())
	req := httptest.NewRequest(http.MethodGet, "http://x/v1/public/dentists?branchId=b1", nil)
	rw := httptest.NewRecorder()
	h.ListDentists(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var resp struct {
		Dentists []dentistItem `json:"dentists"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Dentists) != 2 {
		t.Fatalf("expected 2 dentists, got %d", len(resp.Dentists))
	}
	if len(resp.Dentists[0].Schedules) != 2 {
		t.Fatalf("expected 2 windows for d1, got %d", len(resp.Dentists[0].Schedules))
	}
	if resp.Dentists[0].Schedules[0].StartMinute != 540 {
		t.Fatalf("unexpected window %+v", resp.Dentists[0].Schedules[0])
	}
	if resp.Dentists[1].Schedules == nil || len(resp.Dentists[1].Schedules) != 0 {
		t.Fatalf("dentist without windows must get an empty array, got %+v", resp.Dentists[1].Schedules)
	}
}

func lookupPatient(t *testing.T, store *stubPatientLookup, url string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewCatalogHandler(nil, store, testLogger())
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rw := httptest.NewRecorder()
	h.LookupPatient(rw, req)
	return rw
}

func TestPatientLookupShortPhoneSkipsQuery(t *testing.T) {
	store := &stubPatientLookup{}
	rw := lookupPatient(t, store, "http://x/v1/public/patients?phone=0917")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	if store.queried {
		t.Fatal("short phone must not hit the store")
	}
}

func TestPatientLookupNotFoundIsNotAnError(t *testing.T) {
	store := &stubPatientLookup{err: pgx.ErrNoRows}
	rw := lookupPatient(t, store, "http://x/v1/public/patients?phone=09175550101")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var resp patientLookupResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Patient != nil {
		t.Fatalf("expected null patient, got %+v", resp.Patient)
	}
}

func TestPatientLookupFound(t *testing.T) {
	store := &stubPatientLookup{patient: model.Patient{
		ID:    "p1",
		Name:  "Maria Santos",
		Phone: "09175550101",
	}}
	rw := lookupPatient(t, store, "http://x/v1/public/patients?phone=09175550101")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var resp patientLookupResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Patient == nil || resp.Patient.ID != "p1" || resp.Patient.Name != "Maria Santos" {
		t.Fatalf("unexpected patient %+v", resp.Patient)
	}
}
