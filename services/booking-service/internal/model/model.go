package model

import "time"

// Appointment statuses. Only PENDING and CONFIRMED occupy time when
// computing availability.
const (
	AppointmentPending   = "PENDING"
	AppointmentConfirmed = "CONFIRMED"
	AppointmentCompleted = "COMPLETED"
	AppointmentCancelled = "CANCELLED"
)

// Job statuses.
const (
	JobPending    = "PENDING"
	JobProcessing = "PROCESSING"
	JobCompleted  = "COMPLETED"
	JobFailed     = "FAILED"
)

// Job types.
const (
	JobTypeReminder            = "SEND_REMINDER"
	JobTypeBookingConfirmation = "PUBLIC_BOOKING_CONFIRMATION"
)

type Branch struct {
	ID        string
	Name      string
	Address   string
	Phone     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
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

// DentistSchedule is one weekly working window. A dentist may have several
// windows on the same weekday (split shifts).
type DentistSchedule struct {
	ID          string
	DentistID   string
	Weekday     int // 0=Sunday .. 6=Saturday
	StartMinute int // minute of day, wall clock
	EndMinute   int
	SlotMinutes int
}

// Closure makes a whole date unbookable. BranchID nil means all branches.
type Closure struct {
	ID       string
	Date     time.Time
	BranchID *string
	Reason   string
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

type Patient struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	DateOfBirth *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Appointment struct {
	ID              string
	PatientID       string
	BranchID        string
	ServiceID       string
	DentistID       *string // nil = booked with no dentist preference
	ReferenceNumber string
	Title           string
	Notes           string
	ScheduledAt     time.Time
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
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
