package availability

import (
	"sort"
	"time"
)

// Window is one dentist working window placed on the target day.
// Start/End are minutes of day, wall clock; SlotMinutes is the native
// granularity at which this dentist takes bookings.
type Window struct {
	DentistID   string
	DentistName string
	StartMinute int
	EndMinute   int
	SlotMinutes int
}

// Interval is a half-open busy interval [Start, End). An empty DentistID
// marks a no-preference booking: it occupies the shared pool applied
// against every dentist.
type Interval struct {
	DentistID string
	Start     time.Time
	End       time.Time
}

// Slot is one candidate booking start. Busy candidates are kept and marked
// unavailable so callers can render them disabled.
type Slot struct {
	Time        time.Time
	DentistID   string
	DentistName string
	Available   bool
}

// Slots computes the ordered candidate list for one calendar day.
//
// day must be midnight UTC of the target date; windows are placed on that
// day by their minute-of-day offsets. The day is interpreted in UTC on
// purpose: the stored wire format has no branch timezone, so the weekday a
// date string maps to is the weekday of its UTC midnight.
//
// Candidate starts advance by min(window granularity, requested duration),
// so a request longer than the granularity still yields starts at the
// window's native spacing; each candidate is checked independently. A slot
// must fit entirely inside its window.
func Slots(day time.Time, windows []Window, busy []Interval, durationMins int) []Slot {
	if durationMins <= 0 {
		return nil
	}
	duration := time.Duration(durationMins) * time.Minute

	shared := make([]Interval, 0, len(busy))
	byDentist := map[string][]Interval{}
	for _, b := range busy {
		if !b.End.After(b.Start) {
			continue
		}
		if b.DentistID == "" {
			shared = append(shared, b)
			continue
		}
		byDentist[b.DentistID] = append(byDentist[b.DentistID], b)
	}

	var slots []Slot
	for _, win := range windows {
		if win.EndMinute <= win.StartMinute || win.SlotMinutes <= 0 {
			continue
		}
		winStart := day.Add(time.Duration(win.StartMinute) * time.Minute)
		winEnd := day.Add(time.Duration(win.EndMinute) * time.Minute)

		stepMins := win.SlotMinutes
		if durationMins < stepMins {
			stepMins = durationMins
		}
		step := time.Duration(stepMins) * time.Minute

		dentistBusy := append(append([]Interval{}, byDentist[win.DentistID]...), shared...)

		for t := winStart; !t.Add(duration).After(winEnd); t = t.Add(step) {
			slots = append(slots, Slot{
				Time:        t,
				DentistID:   win.DentistID,
				DentistName: win.DentistName,
				Available:   !overlapsAny(t, t.Add(duration), dentistBusy),
			})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Time.Before(slots[j].Time)
	})
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
