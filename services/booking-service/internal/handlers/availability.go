package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/molave-dental/platform/libs/httpx"
	"github.com/molave-dental/platform/services/booking-service/internal/availability"
	"github.com/molave-dental/platform/services/booking-service/internal/model"
)

const defaultSearchDurationMins = 30

// ScheduleStore is the read surface the availability endpoint needs.
type ScheduleStore interface {
	FindClosure(ctx context.Context, branchID string, date time.Time) (model.Closure, bool, error)
	ListDayWindows(ctx context.Context, branchID, dentistID string, weekday int) ([]availability.Window, error)
	ListBusyIntervals(ctx context.Context, dentistID string, dayStart, dayEnd time.Time) ([]availability.Interval, error)
}

type AvailabilityHandler struct {
	store  ScheduleStore
	logger *slog.Logger
}

func NewAvailabilityHandler(store ScheduleStore, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{store: store, logger: logger}
}

type slotItem struct {
	Time        string `json:"time"`
	Available   bool   `json:"available"`
	DentistID   string `json:"dentistId,omitempty"`
	DentistName string `json:"dentistName,omitempty"`
}

type availabilityResponse struct {
	Slots         []slotItem `json:"slots"`
	IsClosure     bool       `json:"isClosure"`
	ClosureReason string     `json:"closureReason,omitempty"`
}

// Get computes the bookable slots for one branch and date. Busy slots are
// returned marked unavailable rather than omitted so the wizard can render
// them greyed out.
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	branchID := strings.TrimSpace(q.Get("branchId"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if branchID == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "branchId and date are required")
		return
	}

	// Dates are interpreted at UTC midnight; the weekday below follows.
	day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	durationMins := defaultSearchDurationMins
	if raw := strings.TrimSpace(q.Get("durationMins")); raw != "" {
		durationMins, err = strconv.Atoi(raw)
		if err != nil || durationMins <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "durationMins must be a positive integer")
			return
		}
	}
	dentistID := strings.TrimSpace(q.Get("dentistId"))

	ctx := r.Context()

	closure, closed, err := h.store.FindClosure(ctx, branchID, day)
	if err != nil {
		h.logger.Error("closure lookup failed", "err", err, "branch_id", branchID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to check closures")
		return
	}
	if closed {
		httpx.WriteJSON(w, http.StatusOK, availabilityResponse{
			Slots:         []slotItem{},
			IsClosure:     true,
			ClosureReason: closure.Reason,
		})
		return
	}

	windows, err := h.store.ListDayWindows(ctx, branchID, dentistID, int(day.Weekday()))
	if err != nil {
		h.logger.Error("schedule lookup failed", "err", err, "branch_id", branchID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load schedules")
		return
	}
	if len(windows) == 0 {
		httpx.WriteJSON(w, http.StatusOK, availabilityResponse{Slots: []slotItem{}})
		return
	}

	dayStart := day
	dayEnd := day.Add(24*time.Hour - time.Millisecond)
	busy, err := h.store.ListBusyIntervals(ctx, dentistID, dayStart, dayEnd)
	if err != nil {
		h.logger.Error("busy interval lookup failed", "err", err, "branch_id", branchID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load appointments")
		return
	}

	slots := availability.Slots(day, windows, busy, durationMins)
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			Time:        s.Time.Format(time.RFC3339),
			Available:   s.Available,
			DentistID:   s.DentistID,
			DentistName: s.DentistName,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{Slots: items})
}
