package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/molave-dental/platform/libs/db"
	"github.com/molave-dental/platform/services/booking-service/internal/availability"
	"github.com/molave-dental/platform/services/booking-service/internal/model"
)

// ScheduleRepository serves the read side of availability: closures, working
// windows and the busy intervals of already-booked appointments.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// FindClosure returns the closure covering date for this branch, if any.
// A closure with a NULL branch applies to every branch.
func (r *ScheduleRepository) FindClosure(ctx context.Context, branchID string, date time.Time) (model.Closure, bool, error) {
	var c model.Closure
	var branch *string
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, date, branch_id::text, COALESCE(reason, '')
		FROM closure_dates
		WHERE date = $1 AND (branch_id = $2 OR branch_id IS NULL)
		LIMIT 1
	`, date, branchID).Scan(&c.ID, &c.Date, &branch, &c.Reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Closure{}, false, nil
	}
	if err != nil {
		return model.Closure{}, false, err
	}
	c.BranchID = branch
	return c, true, nil
}

// ListDayWindows returns the working windows of the branch's active dentists
// on the given weekday, optionally restricted to one dentist. A dentist may
// contribute several windows (split shifts).
func (r *ScheduleRepository) ListDayWindows(ctx context.Context, branchID, dentistID string, weekday int) ([]availability.Window, error) {
	query := `
		SELECT s.dentist_id::text, d.name, s.start_minute, s.end_minute, s.slot_minutes
		FROM dentist_schedules s
		JOIN dentists d ON d.id = s.dentist_id
		WHERE d.branch_id = $1
			AND d.is_active
			AND s.weekday = $2
		ORDER BY d.name ASC, s.start_minute ASC
	`
	args := []any{branchID, weekday}
	if dentistID != "" {
		query = `
		SELECT s.dentist_id::text, d.name, s.start_minute, s.end_minute, s.slot_minutes
		FROM dentist_schedules s
		JOIN dentists d ON d.id = s.dentist_id
		WHERE d.branch_id = $1
			AND d.is_active
			AND s.weekday = $2
			AND s.dentist_id = $3
		ORDER BY s.start_minute ASC
		`
		args = append(args, dentistID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []availability.Window
	for rows.Next() {
		var w availability.Window
		if err := rows.Scan(&w.DentistID, &w.DentistName, &w.StartMinute, &w.EndMinute, &w.SlotMinutes); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}

// ListBranchSchedules returns the weekly windows of every active dentist in
// the branch, for the public wizard's dentist step.
func (r *ScheduleRepository) ListBranchSchedules(ctx context.Context, branchID string) ([]model.DentistSchedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id::text, s.dentist_id::text, s.weekday, s.start_minute, s.end_minute, s.slot_minutes
		FROM dentist_schedules s
		JOIN dentists d ON d.id = s.dentist_id
		WHERE d.branch_id = $1 AND d.is_active
		ORDER BY s.dentist_id, s.weekday ASC, s.start_minute ASC
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DentistSchedule
	for rows.Next() {
		var s model.DentistSchedule
		if err := rows.Scan(&s.ID, &s.DentistID, &s.Weekday, &s.StartMinute, &s.EndMinute, &s.SlotMinutes); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListBusyIntervals returns occupied intervals for appointments starting
// within [dayStart, dayEnd]. Only PENDING and CONFIRMED appointments block;
// interval length comes from the booked service's stored duration, not from
// whatever duration the current caller is searching with. Rows with a NULL
// dentist come back with an empty DentistID and are always included: a
// no-preference booking consumes shared capacity against every dentist.
func (r *ScheduleRepository) ListBusyIntervals(ctx context.Context, dentistID string, dayStart, dayEnd time.Time) ([]availability.Interval, error) {
	query := `
		SELECT COALESCE(a.dentist_id::text, ''), a.scheduled_at, s.duration_mins
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		WHERE a.status IN ('PENDING', 'CONFIRMED')
			AND a.scheduled_at >= $1
			AND a.scheduled_at <= $2
	`
	args := []any{dayStart, dayEnd}
	if dentistID != "" {
		query += ` AND (a.dentist_id = $3 OR a.dentist_id IS NULL)`
		args = append(args, dentistID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		var start time.Time
		var durationMins int
		if err := rows.Scan(&iv.DentistID, &start, &durationMins); err != nil {
			return nil, err
		}
		iv.Start = start.UTC()
		iv.End = iv.Start.Add(time.Duration(durationMins) * time.Minute)
		busy = append(busy, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return busy, nil
}

// ListActiveBranches serves step 1 of the public wizard.
func (r *ScheduleRepository) ListActiveBranches(ctx context.Context) ([]model.Branch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, address, COALESCE(phone, ''), is_active, created_at, updated_at
		FROM branches
		WHERE is_active
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Branch
	for rows.Next() {
		var b model.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListActiveServices serves step 2 of the public wizard.
func (r *ScheduleRepository) ListActiveServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, COALESCE(description, ''), duration_mins, is_active, created_at, updated_at
		FROM services
		WHERE is_active
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.DurationMins, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListActiveDentists serves step 3 of the public wizard.
func (r *ScheduleRepository) ListActiveDentists(ctx context.Context, branchID string) ([]model.Dentist, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, branch_id::text, name, COALESCE(email, ''), COALESCE(phone, ''), is_active, created_at, updated_at
		FROM dentists
		WHERE branch_id = $1 AND is_active
		ORDER BY name ASC
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Dentist
	for rows.Next() {
		var d model.Dentist
		if err := rows.Scan(&d.ID, &d.BranchID, &d.Name, &d.Email, &d.Phone, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
