package outbox

// Topic names. One event type per topic; the publisher routes each outbox
// row to the topic named by its event type.
const (
	TopicAppointmentBooked  = "clinic.appointment.booked.v1"
	TopicReminderRequested  = "clinic.reminder.requested.v1"
	TopicNotificationSent   = "notification.sent.v1"
	TopicNotificationFailed = "notification.failed.v1"
)

// Event is the domain event envelope written to the outbox table in the
// same transaction as the state change it announces.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// ReminderRequested is the payload published on TopicReminderRequested when
// staff asks for a manual reminder.
type ReminderRequested struct {
	AppointmentID string `json:"appointmentId"`
	JobID         string `json:"jobId"`
	RequestedBy   string `json:"requestedBy,omitempty"`
}

// NotificationOutcome is the payload for both TopicNotificationSent and
// TopicNotificationFailed. Error is set only on failure.
type NotificationOutcome struct {
	JobID         string `json:"jobId"`
	AppointmentID string `json:"appointmentId,omitempty"`
	JobType       string `json:"jobType"`
	Channel       string `json:"channel,omitempty"`
	SentAt        string `json:"sentAt,omitempty"`
	Error         string `json:"error,omitempty"`
}

// AppointmentBooked is the payload published on TopicAppointmentBooked.
type AppointmentBooked struct {
	AppointmentID   string `json:"appointmentId"`
	ReferenceNumber string `json:"referenceNumber"`
	PatientID       string `json:"patientId"`
	BranchID        string `json:"branchId"`
	ServiceID       string `json:"serviceId"`
	DentistID       string `json:"dentistId,omitempty"`
	ScheduledAt     string `json:"scheduledAt"`
}
