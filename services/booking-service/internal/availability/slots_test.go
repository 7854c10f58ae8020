package availability

import (
	"testing"
	"time"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

func window(dentistID string, startMin, endMin, slotMins int) Window {
	return Window{DentistID: dentistID, DentistName: "Dr. " + dentistID, StartMinute: startMin, EndMinute: endMin, SlotMinutes: slotMins}
}

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestSlots_MorningShiftNoBookings(t *testing.T) {
	slots := Slots(day, []Window{window("d1", 9*60, 12*60, 30)}, nil, 30)

	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	want := []time.Time{at(9, 0), at(9, 30), at(10, 0), at(10, 30), at(11, 0), at(11, 30)}
	for i, s := range slots {
		if !s.Time.Equal(want[i]) {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i].Format(time.RFC3339), s.Time.Format(time.RFC3339))
		}
		if !s.Available {
			t.Fatalf("slot %d at %s should be available", i, s.Time.Format(time.RFC3339))
		}
	}
}

func TestSlots_BusyCandidateMarkedNotOmitted(t *testing.T) {
	busy := []Interval{{DentistID: "d1", Start: at(10, 0), End: at(10, 30)}}
	slots := Slots(day, []Window{window("d1", 9*60, 12*60, 30)}, busy, 30)

	if len(slots) != 6 {
		t.Fatalf("expected all 6 candidates returned, got %d", len(slots))
	}
	for _, s := range slots {
		wantAvailable := !s.Time.Equal(at(10, 0))
		if s.Available != wantAvailable {
			t.Fatalf("slot %s: available=%v, want %v", s.Time.Format(time.RFC3339), s.Available, wantAvailable)
		}
	}
}

func TestSlots_TouchingIntervalsDoNotConflict(t *testing.T) {
	busy := []Interval{{DentistID: "d1", Start: at(10, 0), End: at(10, 30)}}
	slots := Slots(day, []Window{window("d1", 9*60, 12*60, 30)}, busy, 30)

	for _, s := range slots {
		if s.Time.Equal(at(9, 30)) && !s.Available {
			t.Fatal("slot ending exactly at busy start must stay available")
		}
		if s.Time.Equal(at(10, 30)) && !s.Available {
			t.Fatal("slot starting exactly at busy end must stay available")
		}
	}
}

func TestSlots_DurationLongerThanGranularity(t *testing.T) {
	// 09:00-12:00 window, 30 min native spacing, 45 min requested duration:
	// starts every 30 min, last start that still fits is 11:15.
	slots := Slots(day, []Window{window("d1", 9*60, 12*60, 30)}, nil, 45)

	wantCount := (3*60-45)/30 + 1
	if len(slots) != wantCount {
		t.Fatalf("expected %d slots, got %d", wantCount, len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if got := slots[i].Time.Sub(slots[i-1].Time); got != 30*time.Minute {
			t.Fatalf("expected 30m spacing, got %s", got)
		}
	}
	last := slots[len(slots)-1]
	if last.Time.Add(45 * time.Minute).After(at(12, 0)) {
		t.Fatalf("last slot %s overruns the window", last.Time.Format(time.RFC3339))
	}
}

func TestSlots_NoPreferencePoolBlocksEveryDentist(t *testing.T) {
	windows := []Window{
		window("d1", 9*60, 10*60, 30),
		window("d2", 9*60, 10*60, 30),
	}
	busy := []Interval{{DentistID: "", Start: at(9, 0), End: at(9, 30)}}

	slots := Slots(day, windows, busy, 30)
	for _, s := range slots {
		if s.Time.Equal(at(9, 0)) && s.Available {
			t.Fatalf("09:00 must be busy for dentist %s via the shared pool", s.DentistID)
		}
		if s.Time.Equal(at(9, 30)) && !s.Available {
			t.Fatalf("09:30 must stay free for dentist %s", s.DentistID)
		}
	}
}

func TestSlots_PinnedBusyOnlyBlocksThatDentist(t *testing.T) {
	windows := []Window{
		window("d1", 9*60, 10*60, 30),
		window("d2", 9*60, 10*60, 30),
	}
	busy := []Interval{{DentistID: "d1", Start: at(9, 0), End: at(9, 30)}}

	slots := Slots(day, windows, busy, 30)
	for _, s := range slots {
		if !s.Time.Equal(at(9, 0)) {
			continue
		}
		switch s.DentistID {
		case "d1":
			if s.Available {
				t.Fatal("d1 09:00 should be busy")
			}
		case "d2":
			if !s.Available {
				t.Fatal("d2 09:00 should be free")
			}
		}
	}
}

func TestSlots_SortedAscendingAcrossDentists(t *testing.T) {
	windows := []Window{
		window("d2", 10*60, 11*60, 30),
		window("d1", 9*60, 10*60, 30),
	}
	slots := Slots(day, windows, nil, 30)
	for i := 1; i < len(slots); i++ {
		if slots[i].Time.Before(slots[i-1].Time) {
			t.Fatalf("slots out of order at %d: %s before %s", i,
				slots[i].Time.Format(time.RFC3339), slots[i-1].Time.Format(time.RFC3339))
		}
	}
}

func TestSlots_SplitShift(t *testing.T) {
	windows := []Window{
		window("d1", 9*60, 10*60, 30),
		window("d1", 14*60, 15*60, 30),
	}
	slots := Slots(day, windows, nil, 30)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots across split shift, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Time.Hour() >= 10 && s.Time.Hour() < 14 {
			t.Fatalf("unexpected slot in the gap: %s", s.Time.Format(time.RFC3339))
		}
	}
}

func TestSlots_PartialTrailingSlotDropped(t *testing.T) {
	// 09:00-09:50 with 30 min slots: only 09:00 fits a 30 min booking.
	slots := Slots(day, []Window{window("d1", 9*60, 9*60+50, 30)}, nil, 30)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Time.Equal(at(9, 0)) {
		t.Fatalf("expected 09:00, got %s", slots[0].Time.Format(time.RFC3339))
	}
}

func TestSlots_InvalidInputs(t *testing.T) {
	if got := Slots(day, []Window{window("d1", 9*60, 12*60, 30)}, nil, 0); got != nil {
		t.Fatalf("zero duration must yield no slots, got %d", len(got))
	}
	if got := Slots(day, []Window{window("d1", 12*60, 9*60, 30)}, nil, 30); len(got) != 0 {
		t.Fatalf("inverted window must yield no slots, got %d", len(got))
	}
	if got := Slots(day, []Window{window("d1", 9*60, 12*60, 0)}, nil, 30); len(got) != 0 {
		t.Fatalf("zero granularity must yield no slots, got %d", len(got))
	}
}

func TestSlots_PartialOverlapStillBlocks(t *testing.T) {
	// Busy 09:15-09:45 overlaps both the 09:00 and 09:30 candidates.
	busy := []Interval{{DentistID: "d1", Start: at(9, 15), End: at(9, 45)}}
	slots := Slots(day, []Window{window("d1", 9*60, 10*60+30, 30)}, busy, 30)

	for _, s := range slots {
		switch {
		case s.Time.Equal(at(9, 0)), s.Time.Equal(at(9, 30)):
			if s.Available {
				t.Fatalf("slot %s should conflict with partial overlap", s.Time.Format(time.RFC3339))
			}
		default:
			if !s.Available {
				t.Fatalf("slot %s should be free", s.Time.Format(time.RFC3339))
			}
		}
	}
}
