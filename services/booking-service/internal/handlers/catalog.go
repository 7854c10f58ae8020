package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/molave-dental/platform/libs/httpx"
	"github.com/molave-dental/platform/services/booking-service/internal/model"
)

// minPhoneLookupLen gates the prefill lookup so the wizard does not hit the
// database on every keystroke.
const minPhoneLookupLen = 7

// CatalogStore serves the public booking wizard's pick lists.
type CatalogStore interface {
	ListActiveBranches(ctx context.Context) ([]model.Branch, error)
	ListActiveServices(ctx context.Context) ([]model.Service, error)
	ListActiveDentists(ctx context.Context, branchID string) ([]model.Dentist, error)
	ListBranchSchedules(ctx context.Context, branchID string) ([]model.DentistSchedule, error)
}

// PatientLookupStore is the piece of BookingStore the prefill endpoint uses.
type PatientLookupStore interface {
	GetPatientByPhone(ctx context.Context, phone string) (model.Patient, error)
}

type CatalogHandler struct {
	store    CatalogStore
	patients PatientLookupStore
	logger   *slog.Logger
}

func NewCatalogHandler(store CatalogStore, patients PatientLookupStore, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{store: store, patients: patients, logger: logger}
}

type branchItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone,omitempty"`
}

type serviceItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DurationMins int    `json:"durationMins"`
}

type scheduleItem struct {
	Weekday     int `json:"weekday"`
	StartMinute int `json:"startMinute"`
	EndMinute   int `json:"endMinute"`
	SlotMinutes int `json:"slotMinutes"`
}

type dentistItem struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Schedules []scheduleItem `json:"schedules"`
}

func (h *CatalogHandler) ListBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	branches, err := h.store.ListActiveBranches(r.Context())
	if err != nil {
		h.logger.Error("branch list failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load branches")
		return
	}
	items := make([]branchItem, 0, len(branches))
	for _, b := range branches {
		items = append(items, branchItem{ID: b.ID, Name: b.Name, Address: b.Address, Phone: b.Phone})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"branches": items})
}

func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	services, err := h.store.ListActiveServices(r.Context())
	if err != nil {
		h.logger.Error("service list failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load services")
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		items = append(items, serviceItem{ID: s.ID, Name: s.Name, Description: s.Description, DurationMins: s.DurationMins})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": items})
}

func (h *CatalogHandler) ListDentists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	branchID := strings.TrimSpace(r.URL.Query().Get("branchId"))
	if branchID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "branchId is required")
		return
	}
	dentists, err := h.store.ListActiveDentists(r.Context(), branchID)
	if err != nil {
		h.logger.Error("dentist list failed", "err", err, "branch_id", branchID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load dentists")
		return
	}
	schedules, err := h.store.ListBranchSchedules(r.Context(), branchID)
	if err != nil {
		h.logger.Error("schedule list failed", "err", err, "branch_id", branchID)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load dentists")
		return
	}
	byDentist := make(map[string][]scheduleItem, len(dentists))
	for _, s := range schedules {
		byDentist[s.DentistID] = append(byDentist[s.DentistID], scheduleItem{
			Weekday:     s.Weekday,
			StartMinute: s.StartMinute,
			EndMinute:   s.EndMinute,
			SlotMinutes: s.SlotMinutes,
		})
	}
	items := make([]dentistItem, 0, len(dentists))
	for _, d := range dentists {
		sched := byDentist[d.ID]
		if sched == nil {
			sched = []scheduleItem{}
		}
		items = append(items, dentistItem{ID: d.ID, Name: d.Name, Schedules: sched})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"dentists": items})
}

type patientSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone"`
}

type patientLookupResponse struct {
	Patient *patientSummary `json:"patient"`
}

// LookupPatient prefills the wizard's contact step for returning patients.
// Not found is a normal outcome, never an error.
func (h *CatalogHandler) LookupPatient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if len(phone) < minPhoneLookupLen {
		httpx.WriteError(w, http.StatusBadRequest, "phone must be at least 7 characters")
		return
	}
	p, err := h.patients.GetPatientByPhone(r.Context(), phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteJSON(w, http.StatusOK, patientLookupResponse{})
			return
		}
		h.logger.Error("patient lookup failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to look up patient")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, patientLookupResponse{Patient: &patientSummary{
		ID:    p.ID,
		Name:  p.Name,
		Email: p.Email,
		Phone: p.Phone,
	}})
}
