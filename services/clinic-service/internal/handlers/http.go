package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/molave-dental/platform/libs/httpx"
	"github.com/molave-dental/platform/services/clinic-service/internal/storage"
)

type Handler struct {
	repo   *storage.Repository
	logger *slog.Logger
}

func New(repo *storage.Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, msg)
}

// Branches dispatches GET (list), POST (create) and PUT (update, id in body).
func (h *Handler) Branches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		branches, err := h.repo.ListBranches(r.Context())
		if err != nil {
			h.serverError(w, "failed to list branches", err)
			return
		}
		items := make([]map[string]any, 0, len(branches))
		for _, b := range branches {
			items = append(items, map[string]any{
				"id":       b.ID,
				"name":     b.Name,
				"address":  b.Address,
				"phone":    b.Phone,
				"isActive": b.IsActive,
			})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"branches": items})

	case http.MethodPost:
		var req struct {
			Name    string `json:"name"`
			Address string `json:"address"`
			Phone   string `json:"phone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || strings.TrimSpace(req.Address) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "name and address are required")
			return
		}
		id, err := h.repo.CreateBranch(r.Context(), req.Name, strings.TrimSpace(req.Address), strings.TrimSpace(req.Phone))
		if err != nil {
			h.serverError(w, "failed to create branch", err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})

	case http.MethodPut:
		var req struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Address  string `json:"address"`
			Phone    string `json:"phone"`
			IsActive bool   `json:"isActive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.ID == "" || strings.TrimSpace(req.Name) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "id and name are required")
			return
		}
		err := h.repo.UpdateBranch(r.Context(), req.ID, strings.TrimSpace(req.Name), strings.TrimSpace(req.Address), strings.TrimSpace(req.Phone), req.IsActive)
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "branch not found")
			return
		}
		if err != nil {
			h.serverError(w, "failed to update branch", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) Dentists(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		dentists, err := h.repo.ListDentists(r.Context(), strings.TrimSpace(r.URL.Query().Get("branchId")))
		if err != nil {
			h.serverError(w, "failed to list dentists", err)
			return
		}
		ids := make([]string, 0, len(dentists))
		for _, d := range dentists {
			ids = append(ids, d.ID)
		}
		windows, err := h.repo.ListSchedulesByDentists(r.Context(), ids)
		if err != nil {
			h.serverError(w, "failed to list dentists", err)
			return
		}
		byDentist := make(map[string][]map[string]any, len(dentists))
		for _, s := range windows {
			byDentist[s.DentistID] = append(byDentist[s.DentistID], map[string]any{
				"id":          s.ID,
				"weekday":     s.Weekday,
				"startMinute": s.StartMinute,
				"endMinute":   s.EndMinute,
				"slotMinutes": s.SlotMinutes,
			})
		}
		items := make([]map[string]any, 0, len(dentists))
		for _, d := range dentists {
			schedules := byDentist[d.ID]
			if schedules == nil {
				schedules = []map[string]any{}
			}
			items = append(items, map[string]any{
				"id":        d.ID,
				"branchId":  d.BranchID,
				"name":      d.Name,
				"email":     d.Email,
				"phone":     d.Phone,
				"isActive":  d.IsActive,
				"schedules": schedules,
			})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"dentists": items})

	case http.MethodPost:
		var req struct {
			BranchID string `json:"branchId"`
			Name     string `json:"name"`
			Email    string `json:"email"`
			Phone    string `json:"phone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(req.BranchID) == "" || strings.TrimSpace(req.Name) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "branchId and name are required")
			return
		}
		id, err := h.repo.CreateDentist(r.Context(), strings.TrimSpace(req.BranchID), strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone))
		if err != nil {
			h.serverError(w, "failed to create dentist", err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})

	case http.MethodPut:
		var req struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Email    string `json:"email"`
			Phone    string `json:"phone"`
			IsActive bool   `json:"isActive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.ID == "" || strings.TrimSpace(req.Name) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "id and name are required")
			return
		}
		err := h.repo.UpdateDentist(r.Context(), req.ID, strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone), req.IsActive)
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "dentist not found")
			return
		}
		if err != nil {
			h.serverError(w, "failed to update dentist", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type scheduleWindowBody struct {
	Weekday     int `json:"weekday"`
	StartMinute int `json:"startMinute"`
	EndMinute   int `json:"endMinute"`
	SlotMinutes int `json:"slotMinutes"`
}

func (b scheduleWindowBody) validate() string {
	if b.Weekday < 0 || b.Weekday > 6 {
		return "weekday must be 0..6"
	}
	if b.StartMinute < 0 || b.EndMinute > 24*60 || b.StartMinute >= b.EndMinute {
		return "window minutes must satisfy 0 <= start < end <= 1440"
	}
	if b.SlotMinutes <= 0 {
		return "slotMinutes must be positive"
	}
	return ""
}

// Schedules reads (GET ?dentistId) or replaces (PUT) a dentist's weekly grid.
func (h *Handler) Schedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		dentistID := strings.TrimSpace(r.URL.Query().Get("dentistId"))
		if dentistID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "dentistId is required")
			return
		}
		schedules, err := h.repo.ListSchedules(r.Context(), dentistID)
		if err != nil {
			h.serverError(w, "failed to list schedules", err)
			return
		}
		items := make([]map[string]any, 0, len(schedules))
		for _, s := range schedules {
			items = append(items, map[string]any{
				"id":          s.ID,
				"weekday":     s.Weekday,
				"startMinute": s.StartMinute,
				"endMinute":   s.EndMinute,
				"slotMinutes": s.SlotMinutes,
			})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"schedules": items})

	case http.MethodPut:
		var req struct {
			DentistID string               `json:"dentistId"`
			Windows   []scheduleWindowBody `json:"windows"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(req.DentistID) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "dentistId is required")
			return
		}
		windows := make([]storage.ScheduleWindow, 0, len(req.Windows))
		for _, b := range req.Windows {
			if msg := b.validate(); msg != "" {
				httpx.WriteError(w, http.StatusBadRequest, msg)
				return
			}
			windows = append(windows, storage.ScheduleWindow{
				Weekday:     b.Weekday,
				StartMinute: b.StartMinute,
				EndMinute:   b.EndMinute,
				SlotMinutes: b.SlotMinutes,
			})
		}
		if err := h.repo.ReplaceSchedules(r.Context(), strings.TrimSpace(req.DentistID), windows); err != nil {
			h.serverError(w, "failed to replace schedules", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		services, err := h.repo.ListServices(r.Context())
		if err != nil {
			h.serverError(w, "failed to list services", err)
			return
		}
		items := make([]map[string]any, 0, len(services))
		for _, s := range services {
			items = append(items, map[string]any{
				"id":           s.ID,
				"name":         s.Name,
				"description":  s.Description,
				"durationMins": s.DurationMins,
				"isActive":     s.IsActive,
			})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": items})

	case http.MethodPost:
		var req struct {
			Name         string `json:"name"`
			Description  string `json:"description"`
			DurationMins int    `json:"durationMins"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(req.Name) == "" || req.DurationMins <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "name and a positive durationMins are required")
			return
		}
		id, err := h.repo.CreateService(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Description), req.DurationMins)
		if err != nil {
			h.serverError(w, "failed to create service", err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})

	case http.MethodPut:
		var req struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			Description  string `json:"description"`
			DurationMins int    `json:"durationMins"`
			IsActive     bool   `json:"isActive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.ID == "" || strings.TrimSpace(req.Name) == "" || req.DurationMins <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "id, name and a positive durationMins are required")
			return
		}
		err := h.repo.UpdateService(r.Context(), req.ID, strings.TrimSpace(req.Name), strings.TrimSpace(req.Description), req.DurationMins, req.IsActive)
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "service not found")
			return
		}
		if err != nil {
			h.serverError(w, "failed to update service", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) Closures(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		from := time.Now().UTC().Truncate(24 * time.Hour)
		if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
			parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
				return
			}
			from = parsed
		}
		closures, err := h.repo.ListClosures(r.Context(), from)
		if err != nil {
			h.serverError(w, "failed to list closures", err)
			return
		}
		items := make([]map[string]any, 0, len(closures))
		for _, c := range closures {
			items = append(items, map[string]any{
				"id":       c.ID,
				"date":     c.Date.Format("2006-01-02"),
				"branchId": c.BranchID,
				"reason":   c.Reason,
			})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"closures": items})

	case http.MethodPost:
		var req struct {
			Date     string  `json:"date"`
			BranchID *string `json:"branchId"`
			Reason   string  `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		id, err := h.repo.CreateClosure(r.Context(), date, req.BranchID, strings.TrimSpace(req.Reason))
		if err != nil {
			h.serverError(w, "failed to create closure", err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})

	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			httpx.WriteError(w, http.StatusBadRequest, "id is required")
			return
		}
		err := h.repo.DeleteClosure(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "closure not found")
			return
		}
		if err != nil {
			h.serverError(w, "failed to delete closure", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type patientBody struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth"`
}

func (b patientBody) dob() (*time.Time, string) {
	if strings.TrimSpace(b.DateOfBirth) == "" {
		return nil, ""
	}
	parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(b.DateOfBirth), time.UTC)
	if err != nil {
		return nil, "dateOfBirth must be YYYY-MM-DD"
	}
	return &parsed, ""
}

func (h *Handler) Patients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 100
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				httpx.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}
		patients, err := h.repo.SearchPatients(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")), limit)
		if err != nil {
			h.serverError(w, "failed to search patients", err)
			return
		}
		items := make([]map[string]any, 0, len(patients))
		for _, p := range patients {
			item := map[string]any{
				"id":    p.ID,
				"name":  p.Name,
				"email": p.Email,
				"phone": p.Phone,
			}
			if p.DateOfBirth != nil {
				item["dateOfBirth"] = p.DateOfBirth.Format("2006-01-02")
			}
			items = append(items, item)
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"patients": items})

	case http.MethodPost:
		var req patientBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Phone) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "name and phone are required")
			return
		}
		dob, msg := req.dob()
		if msg != "" {
			httpx.WriteError(w, http.StatusBadRequest, msg)
			return
		}
		id, err := h.repo.CreatePatient(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone), dob)
		if errors.Is(err, storage.ErrDuplicatePhone) {
			httpx.WriteError(w, http.StatusConflict, "phone already registered")
			return
		}
		if err != nil {
			h.serverError(w, "failed to create patient", err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})

	case http.MethodPut:
		var req patientBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.ID == "" || strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Phone) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "id, name and phone are required")
			return
		}
		dob, msg := req.dob()
		if msg != "" {
			httpx.WriteError(w, http.StatusBadRequest, msg)
			return
		}
		err := h.repo.UpdatePatient(r.Context(), req.ID, strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone), dob)
		if errors.Is(err, storage.ErrDuplicatePhone) {
			httpx.WriteError(w, http.StatusConflict, "phone already registered")
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "patient not found")
			return
		}
		if err != nil {
			h.serverError(w, "failed to update patient", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			httpx.WriteError(w, http.StatusBadRequest, "id is required")
			return
		}
		err := h.repo.DeletePatient(r.Context(), id)
		if errors.Is(err, storage.ErrPatientInUse) {
			httpx.WriteError(w, http.StatusConflict, "patient has appointments")
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "patient not found")
			return
		}
		if err != nil {
			h.serverError(w, "failed to delete patient", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listAppointments(w, r)
	case http.MethodPost:
		h.createAppointment(w, r)
	case http.MethodDelete:
		h.deleteAppointment(w, r)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().UTC()
	from := now.Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = parsed
		to = from.Add(24 * time.Hour)
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = parsed.Add(24 * time.Hour)
	}

	appts, err := h.repo.ListAppointments(r.Context(), strings.TrimSpace(q.Get("branchId")), from, to, strings.TrimSpace(q.Get("status")))
	if err != nil {
		h.serverError(w, "failed to list appointments", err)
		return
	}
	items := make([]map[string]any, 0, len(appts))
	for _, a := range appts {
		items = append(items, map[string]any{
			"id":              a.ID,
			"referenceNumber": a.ReferenceNumber,
			"patientId":       a.PatientID,
			"patientName":     a.PatientName,
			"patientPhone":    a.PatientPhone,
			"branchId":        a.BranchID,
			"serviceId":       a.ServiceID,
			"serviceName":     a.ServiceName,
			"dentistId":       a.DentistID,
			"dentistName":     a.DentistName,
			"title":           a.Title,
			"notes":           a.Notes,
			"scheduledAt":     a.ScheduledAt.UTC().Format(time.RFC3339),
			"status":          a.Status,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// createAppointment books on behalf of a walk-in or phone patient. The
// overlap rule and reference-number allocation match the public flow.
func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatientID   string  `json:"patientId"`
		BranchID    string  `json:"branchId"`
		ServiceID   string  `json:"serviceId"`
		DentistID   *string `json:"dentistId"`
		Title       string  `json:"title"`
		Notes       string  `json:"notes"`
		ScheduledAt string  `json:"scheduledAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.PatientID == "" || req.BranchID == "" || req.ServiceID == "" || req.ScheduledAt == "" {
		httpx.WriteError(w, http.StatusBadRequest, "patientId, branchId, serviceId and scheduledAt are required")
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "scheduledAt must be RFC 3339")
		return
	}
	if req.DentistID != nil && *req.DentistID == "" {
		req.DentistID = nil
	}

	id, ref, err := h.repo.CreateAppointment(r.Context(), storage.NewAppointment{
		PatientID:   req.PatientID,
		BranchID:    req.BranchID,
		ServiceID:   req.ServiceID,
		DentistID:   req.DentistID,
		Title:       strings.TrimSpace(req.Title),
		Notes:       strings.TrimSpace(req.Notes),
		ScheduledAt: scheduledAt,
	})
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusBadRequest, "unknown or inactive service")
		return
	}
	if errors.Is(err, storage.ErrSlotTaken) {
		httpx.WriteError(w, http.StatusConflict, "time slot is no longer available")
		return
	}
	if err != nil {
		h.serverError(w, "failed to create appointment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{
		"id":              id,
		"referenceNumber": ref,
	})
}

func (h *Handler) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}
	err := h.repo.DeleteAppointment(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "appointment not found")
		return
	}
	if err != nil {
		h.serverError(w, "failed to delete appointment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validTransition encodes the appointment lifecycle: PENDING can be
// confirmed or cancelled, CONFIRMED can be completed or cancelled, the two
// terminal states never move again.
func validTransition(from, to string) bool {
	switch from {
	case "PENDING":
		return to == "CONFIRMED" || to == "CANCELLED"
	case "CONFIRMED":
		return to == "COMPLETED" || to == "CANCELLED"
	default:
		return false
	}
}

func (h *Handler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ID == "" || req.Status == "" {
		httpx.WriteError(w, http.StatusBadRequest, "id and status are required")
		return
	}

	current, err := h.repo.GetAppointmentStatus(r.Context(), req.ID)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "appointment not found")
		return
	}
	if err != nil {
		h.serverError(w, "failed to load appointment", err)
		return
	}
	if !validTransition(current, req.Status) {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "invalid status transition "+current+" -> "+req.Status)
		return
	}
	if err := h.repo.UpdateAppointmentStatus(r.Context(), req.ID, req.Status); err != nil {
		h.serverError(w, "failed to update appointment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"id": req.ID, "status": req.Status})
}

// SendReminder enqueues a manual reminder for one appointment.
func (h *Handler) SendReminder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		AppointmentID string `json:"appointmentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.AppointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointmentId is required")
		return
	}
	if _, err := h.repo.GetAppointmentStatus(r.Context(), req.AppointmentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.serverError(w, "failed to load appointment", err)
		return
	}
	id, err := h.repo.EnqueueReminder(r.Context(), req.AppointmentID, r.Header.Get("X-User-Email"))
	if err != nil {
		h.serverError(w, "failed to enqueue reminder", err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"jobId": id})
}

func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	jobs, err := h.repo.ListJobs(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.serverError(w, "failed to list jobs", err)
		return
	}
	items := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, map[string]any{
			"id":            j.ID,
			"appointmentId": j.AppointmentID,
			"type":          j.Type,
			"status":        j.Status,
			"payload":       json.RawMessage(j.Payload),
			"result":        json.RawMessage(j.Result),
			"error":         j.Error,
			"createdAt":     j.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"jobs": items})
}
