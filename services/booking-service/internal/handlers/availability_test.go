package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/molave-dental/platform/services/booking-service/internal/availability"
	"github.com/molave-dental/platform/services/booking-service/internal/model"
)

type stubScheduleStore struct {
	closure    model.Closure
	hasClosure bool
	windows    []availability.Window
	busy       []availability.Interval
}

func (s *stubScheduleStore) FindClosure(context.Context, string, time.Time) (model.Closure, bool, error) {
	return s.closure, s.hasClosure, nil
}

func (s *stubScheduleStore) ListDayWindows(context.Context, string, string, int) ([]availability.Window, error) {
	return s.windows, nil
}

func (s *stubScheduleStore) ListBusyIntervals(context.Context, string, time.Time, time.Time) ([]availability.Interval, error) {
	return s.busy, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func getAvailability(t *testing.T, store ScheduleStore, url string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewAvailabilityHandler(store, testLogger())
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rw := httptest.NewRecorder()
	h.Get(rw, req)
	return rw
}

func decodeAvailability(t *testing.T, rw *httptest.ResponseRecorder) availabilityResponse {
	t.Helper()
	var resp availabilityResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestAvailabilityRequiresBranchAndDate(t *testing.T) {
	rw := getAvailability(t, &stubScheduleStore{}, "http://x/v1/public/availability?date=2026-03-02")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	rw = getAvailability(t, &stubScheduleStore{}, "http://x/v1/public/availability?branchId=b1")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestAvailabilityRejectsBadDateAndDuration(t *testing.T) {
	rw := getAvailability(t, &stubScheduleStore{}, "http://x/v1/public/availability?branchId=b1&date=03-02-2026")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rw.Code)
	}
	rw = getAvailability(t, &stubScheduleStore{}, "http://x/v1/public/availability?branchId=b1&date=2026-03-02&durationMins=0")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero duration, got %d", rw.Code)
	}
}

func TestAvailabilityClosureShortCircuits(t *testing.T) {
	store := &stubScheduleStore{
		hasClosure: true,
		closure:    model.Closure{Reason: "Public Holiday"},
		windows: []availability.Window{
			{DentistID: "d1", DentistName: "Dr. Reyes", StartMinute: 9 * 60, EndMinute: 12 * 60, SlotMinutes: 30},
		},
	}
	rw := getAvailability(t, store, "http://x/v1/public/availability?branchId=b1&date=2026-03-02")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	resp := decodeAvailability(t, rw)
	if !resp.IsClosure {
		t.Fatal("expected isClosure=true")
	}
	if resp.ClosureReason != "Public Holiday" {
		t.Fatalf("unexpected closure reason %q", resp.ClosureReason)
	}
	if len(resp.Slots) != 0 {
		t.Fatalf("expected no slots on a closure, got %d", len(resp.Slots))
	}
}

func TestAvailabilityNoWindowsIsOpenButEmpty(t *testing.T) {
	rw := getAvailability(t, &stubScheduleStore{}, "http://x/v1/public/availability?branchId=b1&date=2026-03-02")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	resp := decodeAvailability(t, rw)
	if resp.IsClosure {
		t.Fatal("expected isClosure=false")
	}
	if resp.Slots == nil || len(resp.Slots) != 0 {
		t.Fatalf("expected empty slot array, got %v", resp.Slots)
	}
}

func TestAvailabilityMarksBusySlots(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	store := &stubScheduleStore{
		windows: []availability.Window{
			{DentistID: "d1", DentistName: "Dr. Reyes", StartMinute: 9 * 60, EndMinute: 12 * 60, SlotMinutes: 30},
		},
		busy: []availability.Interval{
			{DentistID: "d1", Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)},
		},
	}
	rw := getAvailability(t, store, "http://x/v1/public/availability?branchId=b1&date=2026-03-02")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	resp := decodeAvailability(t, rw)
	if len(resp.Slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(resp.Slots))
	}
	if resp.Slots[0].Time != "2026-03-02T09:00:00Z" {
		t.Fatalf("unexpected first slot time %q", resp.Slots[0].Time)
	}
	for _, s := range resp.Slots {
		wantAvailable := s.Time != "2026-03-02T10:00:00Z"
		if s.Available != wantAvailable {
			t.Fatalf("slot %s: available=%v, want %v", s.Time, s.Available, wantAvailable)
		}
		if s.DentistID != "d1" || s.DentistName != "Dr. Reyes" {
			t.Fatalf("slot %s carries wrong dentist: %+v", s.Time, s)
		}
	}
}
