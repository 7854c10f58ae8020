package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/molave-dental/platform/libs/db"
	"github.com/molave-dental/platform/libs/outbox"
	"github.com/molave-dental/platform/libs/refcode"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicatePhone means another patient already owns the phone number.
	ErrDuplicatePhone = errors.New("phone already registered")

	// ErrPatientInUse blocks deleting a patient who has appointments.
	ErrPatientInUse = errors.New("patient has appointments")

	// ErrSlotTaken means the requested time overlaps an existing appointment.
	ErrSlotTaken = errors.New("time slot is taken")

	// ErrReferenceExhausted means reference-number generation kept colliding.
	ErrReferenceExhausted = errors.New("could not allocate a unique reference number")
)

// Repository backs the staff dashboard. It shares the clinic database with
// the public booking service; writes here are immediately visible to
// availability computation.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, outbox: outbox.NewRepository()}
}

type Branch struct {
	ID        string
	Name      string
	Address   string
	Phone     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Repository) ListBranches(ctx context.Context) ([]Branch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, address, COALESCE(phone, ''), is_active, created_at, updated_at
		FROM branches
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Branch
	for rows.Next() {
		var b Branch
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

func (r *Repository) CreateBranch(ctx context.Context, name, address, phone string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO branches (id, name, address, phone)
		VALUES ($1, $2, $3, NULLIF($4, ''))
	`, id, name, address, phone)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdateBranch(ctx context.Context, id, name, address, phone string, isActive bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE branches
		SET name = $2, address = $3, phone = NULLIF($4, ''), is_active = $5, updated_at = now()
		WHERE id = $1
	`, id, name, address, phone, isActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type Dentist struct {
	ID        string
	BranchID  string
	Name      string
	Email     string
	Phone     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Repository) ListDentists(ctx context.Context, branchID string) ([]Dentist, error) {
	query := `
		SELECT id::text, branch_id::text, name, COALESCE(email, ''), COALESCE(phone, ''), is_active, created_at, updated_at
		FROM dentists
		ORDER BY name ASC
	`
	args := []any{}
	if branchID != "" {
		query = `
		SELECT id::text, branch_id::text, name, COALESCE(email, ''), COALESCE(phone, ''), is_active, created_at, updated_at
		FROM dentists
		WHERE branch_id = $1
		ORDER BY name ASC
		`
		args = append(args, branchID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Dentist
	for rows.Next() {
		var d Dentist
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

func (r *Repository) CreateDentist(ctx context.Context, branchID, name, email, phone string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dentists (id, branch_id, name, email, phone)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
	`, id, branchID, name, email, phone)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdateDentist(ctx context.Context, id, name, email, phone string, isActive bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE dentists
		SET name = $2, email = NULLIF($3, ''), phone = NULLIF($4, ''), is_active = $5, updated_at = now()
		WHERE id = $1
	`, id, name, email, phone, isActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type ScheduleWindow struct {
	ID          string
	DentistID   string
	Weekday     int
	StartMinute int
	EndMinute   int
	SlotMinutes int
}

func (r *Repository) ListSchedules(ctx context.Context, dentistID string) ([]ScheduleWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, dentist_id::text, weekday, start_minute, end_minute, slot_minutes
		FROM dentist_schedules
		WHERE dentist_id = $1
		ORDER BY weekday ASC, start_minute ASC
	`, dentistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleWindow
	for rows.Next() {
		var s ScheduleWindow
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

// ListSchedulesByDentists loads the weekly grids of several dentists in one
// query, for embedding into the dentists list.
func (r *Repository) ListSchedulesByDentists(ctx context.Context, dentistIDs []string) ([]ScheduleWindow, error) {
	if len(dentistIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, dentist_id::text, weekday, start_minute, end_minute, slot_minutes
		FROM dentist_schedules
		WHERE dentist_id = ANY($1)
		ORDER BY dentist_id, weekday ASC, start_minute ASC
	`, dentistIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleWindow
	for rows.Next() {
		var s ScheduleWindow
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

// ReplaceSchedules swaps a dentist's whole weekly grid in one transaction so
// availability never sees a half-written week.
func (r *Repository) ReplaceSchedules(ctx context.Context, dentistID string, windows []ScheduleWindow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM dentist_schedules WHERE dentist_id = $1`, dentistID); err != nil {
		return err
	}
	for _, w := range windows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO dentist_schedules (id, dentist_id, weekday, start_minute, end_minute, slot_minutes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), dentistID, w.Weekday, w.StartMinute, w.EndMinute, w.SlotMinutes); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

type Service struct {
	ID           string
	Name         string
	Description  string
	DurationMins int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Repository) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, COALESCE(description, ''), duration_mins, is_active, created_at, updated_at
		FROM services
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
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

func (r *Repository) CreateService(ctx context.Context, name, description string, durationMins int) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, name, description, duration_mins)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, id, name, description, durationMins)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdateService(ctx context.Context, id, name, description string, durationMins int, isActive bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE services
		SET name = $2, description = NULLIF($3, ''), duration_mins = $4, is_active = $5, updated_at = now()
		WHERE id = $1
	`, id, name, description, durationMins, isActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type Closure struct {
	ID        string
	Date      time.Time
	BranchID  *string
	Reason    string
	CreatedAt time.Time
}

func (r *Repository) ListClosures(ctx context.Context, from time.Time) ([]Closure, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, date, branch_id::text, COALESCE(reason, ''), created_at
		FROM closure_dates
		WHERE date >= $1
		ORDER BY date ASC
	`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Closure
	for rows.Next() {
		var c Closure
		if err := rows.Scan(&c.ID, &c.Date, &c.BranchID, &c.Reason, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) CreateClosure(ctx context.Context, date time.Time, branchID *string, reason string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO closure_dates (id, date, branch_id, reason)
		VALUES ($1, $2, $3, NULLIF($4, ''))
	`, id, date, branchID, reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) DeleteClosure(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM closure_dates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type Patient struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	DateOfBirth *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SearchPatients matches name or phone, newest first.
func (r *Repository) SearchPatients(ctx context.Context, query string, limit int) ([]Patient, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, COALESCE(email, ''), phone, date_of_birth, created_at, updated_at
		FROM patients
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.DateOfBirth, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) CreatePatient(ctx context.Context, name, email, phone string, dateOfBirth *time.Time) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, email, phone, date_of_birth)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`, id, name, email, phone, dateOfBirth)
	if db.IsUniqueViolation(err, "patients_phone_key") {
		return "", ErrDuplicatePhone
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdatePatient(ctx context.Context, id, name, email, phone string, dateOfBirth *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET name = $2, email = NULLIF($3, ''), phone = $4, date_of_birth = $5, updated_at = now()
		WHERE id = $1
	`, id, name, email, phone, dateOfBirth)
	if db.IsUniqueViolation(err, "patients_phone_key") {
		return ErrDuplicatePhone
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeletePatient(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrPatientInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type Appointment struct {
	ID              string
	PatientID       string
	PatientName     string
	PatientPhone    string
	BranchID        string
	ServiceID       string
	ServiceName     string
	DentistID       *string
	DentistName     string
	ReferenceNumber string
	Title           string
	Notes           string
	ScheduledAt     time.Time
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ListAppointments returns the dashboard calendar view for one window,
// joined with patient, service and dentist names.
func (r *Repository) ListAppointments(ctx context.Context, branchID string, from, to time.Time, status string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id::text, a.patient_id::text, p.name, p.phone,
			a.branch_id::text, a.service_id::text, s.name,
			a.dentist_id::text, COALESCE(d.name, ''),
			a.reference_number, COALESCE(a.title, ''), COALESCE(a.notes, ''),
			a.scheduled_at, a.status, a.created_at, a.updated_at
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN services s ON s.id = a.service_id
		LEFT JOIN dentists d ON d.id = a.dentist_id
		WHERE ($1 = '' OR a.branch_id::text = $1)
			AND a.scheduled_at >= $2 AND a.scheduled_at < $3
			AND ($4 = '' OR a.status = $4)
		ORDER BY a.scheduled_at ASC
	`, branchID, from, to, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(
			&a.ID, &a.PatientID, &a.PatientName, &a.PatientPhone,
			&a.BranchID, &a.ServiceID, &a.ServiceName,
			&a.DentistID, &a.DentistName,
			&a.ReferenceNumber, &a.Title, &a.Notes,
			&a.ScheduledAt, &a.Status, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) GetAppointmentStatus(ctx context.Context, id string) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return status, err
}

// NewAppointment is a staff-entered booking, usually a walk-in or a phone
// call. It goes through the same overlap rule and reference-number
// allocation as the public flow.
type NewAppointment struct {
	PatientID   string
	BranchID    string
	ServiceID   string
	DentistID   *string
	Title       string
	Notes       string
	ScheduledAt time.Time
}

func (r *Repository) CreateAppointment(ctx context.Context, in NewAppointment) (id, referenceNumber string, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var svcName string
	var durationMins int
	err = tx.QueryRow(ctx, `
		SELECT name, duration_mins FROM services WHERE id = $1 AND is_active
	`, in.ServiceID).Scan(&svcName, &durationMins)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", err
	}

	start := in.ScheduledAt.UTC()
	end := start.Add(time.Duration(durationMins) * time.Minute)
	overlapQuery := `
		SELECT COUNT(*)
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		WHERE a.status IN ('PENDING', 'CONFIRMED')
			AND a.scheduled_at < $2
			AND a.scheduled_at + make_interval(mins => s.duration_mins) > $1
	`
	args := []any{start, end}
	if in.DentistID != nil {
		overlapQuery += ` AND (a.dentist_id = $3 OR a.dentist_id IS NULL)`
		args = append(args, *in.DentistID)
	} else {
		overlapQuery += ` AND a.dentist_id IS NULL`
	}
	var overlapping int
	if err := tx.QueryRow(ctx, overlapQuery, args...).Scan(&overlapping); err != nil {
		return "", "", err
	}
	if overlapping > 0 {
		return "", "", ErrSlotTaken
	}

	title := in.Title
	if title == "" {
		title = svcName
	}
	id = uuid.NewString()
	for attempt := 0; attempt < refcode.MaxAttempts; attempt++ {
		ref := refcode.New()

		nested, err := tx.Begin(ctx)
		if err != nil {
			return "", "", err
		}
		_, err = nested.Exec(ctx, `
			INSERT INTO appointments (id, patient_id, branch_id, service_id, dentist_id, reference_number, title, notes, scheduled_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, 'PENDING')
		`, id, in.PatientID, in.BranchID, in.ServiceID, in.DentistID, ref, title, in.Notes, start)
		if err != nil {
			_ = nested.Rollback(ctx)
			if db.IsUniqueViolation(err, "appointments_reference_number_key") {
				continue
			}
			return "", "", err
		}
		if err := nested.Commit(ctx); err != nil {
			return "", "", err
		}
		return id, ref, tx.Commit(ctx)
	}
	return "", "", ErrReferenceExhausted
}

func (r *Repository) UpdateAppointmentStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAppointment removes an appointment outright. Jobs that referenced
// it keep their rows with appointment_id cleared.
func (r *Repository) DeleteAppointment(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type Job struct {
	ID            string
	AppointmentID *string
	Type          string
	Status        string
	Payload       []byte
	Result        []byte
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *Repository) ListJobs(ctx context.Context, status string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, appointment_id::text, type, status, payload, COALESCE(result, 'null'::jsonb), COALESCE(error, ''), created_at, updated_at
		FROM jobs
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.AppointmentID, &j.Type, &j.Status, &j.Payload, &j.Result, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// EnqueueReminder inserts the SEND_REMINDER job and its outbox event in one
// transaction. The worker poller picks the job up on its own; the event lets
// the notification consumer process it as soon as it lands on the broker.
func (r *Repository) EnqueueReminder(ctx context.Context, appointmentID, requestedBy string) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobID := uuid.NewString()
	payload, err := json.Marshal(map[string]string{"appointmentId": appointmentID})
	if err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO jobs (id, appointment_id, type, status, payload)
		VALUES ($1, $2, 'SEND_REMINDER', 'PENDING', $3)
	`, jobID, appointmentID, payload); err != nil {
		return "", err
	}

	eventPayload, err := json.Marshal(outbox.ReminderRequested{
		AppointmentID: appointmentID,
		JobID:         jobID,
		RequestedBy:   requestedBy,
	})
	if err != nil {
		return "", err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     outbox.TopicReminderRequested,
		Payload:       eventPayload,
	}); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return jobID, nil
}
