package jobs

import (
	"strings"
	"testing"
	"time"
)

func sampleDetails() AppointmentDetails {
	return AppointmentDetails{
		AppointmentID:   "appt-1",
		ReferenceNumber: "DN-ABCD2345",
		ScheduledAt:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		PatientName:     "Maria Santos",
		PatientEmail:    "maria@example.com",
		PatientPhone:    "09175550101",
		ServiceName:     "Oral Prophylaxis",
		BranchName:      "Makati Branch",
		BranchAddress:   "123 Ayala Ave",
		DentistName:     "Dr. Reyes",
	}
}

func TestComposeConfirmation(t *testing.T) {
	subject, body := ComposeMessage(TypeBookingConfirmation, sampleDetails())
	if !strings.Contains(subject, "DN-ABCD2345") {
		t.Fatalf("subject missing reference number: %q", subject)
	}
	for _, want := range []string{"Maria Santos", "Oral Prophylaxis", "Makati Branch", "Dr. Reyes", "DN-ABCD2345"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestComposeReminder(t *testing.T) {
	subject, body := ComposeMessage(TypeReminder, sampleDetails())
	if !strings.Contains(subject, "Reminder") {
		t.Fatalf("expected a reminder subject, got %q", subject)
	}
	if !strings.Contains(body, "Monday, 2 March 2026") {
		t.Fatalf("body missing rendered date:\n%s", body)
	}
}

func TestComposeOmitsDentistWhenUnassigned(t *testing.T) {
	d := sampleDetails()
	d.DentistName = ""
	_, body := ComposeMessage(TypeReminder, d)
	if strings.Contains(body, "Dentist:") {
		t.Fatalf("body should omit dentist line:\n%s", body)
	}
}
