package handlers

import (
	"testing"
	"time"
)

func TestPatientBodyDOB(t *testing.T) {
	b := patientBody{DateOfBirth: "1990-06-15"}
	dob, msg := b.dob()
	if msg != "" {
		t.Fatalf("unexpected validation message %q", msg)
	}
	want := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	if dob == nil || !dob.Equal(want) {
		t.Fatalf("expected %v, got %v", want, dob)
	}

	if dob, msg := (patientBody{}).dob(); dob != nil || msg != "" {
		t.Fatalf("empty dateOfBirth must be nil without error, got %v / %q", dob, msg)
	}

	if _, msg := (patientBody{DateOfBirth: "15/06/1990"}).dob(); msg == "" {
		t.Fatal("expected a validation message for a non-ISO date")
	}
}
