// Package conflict checks candidate time ranges against a day's slots and
// breaks. Every interval is half-open: [start, end).
package conflict

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

type Kind string

const (
	KindBooked    Kind = "booked"
	KindBlocked   Kind = "blocked"
	KindBreak     Kind = "break"
	KindPast      Kind = "past"
	KindOverlap   Kind = "overlap"
	KindInvalid   Kind = "invalid"
	KindAvailable Kind = "available"
)

// Range is a wall-clock interval in "HH:MM".
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r Range) String() string { return r.Start + "-" + r.End }

type Conflict struct {
	Kind    Kind   `json:"kind"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Message string `json:"message"`
}

type Result struct {
	HasConflict bool       `json:"has_conflict"`
	Conflicts   []Conflict `json:"conflicts"`
	Warnings    []Conflict `json:"warnings"`
}

// First returns the first conflict message, or "".
func (r Result) First() string {
	if len(r.Conflicts) == 0 {
		return ""
	}
	return r.Conflicts[0].Message
}

func (r *Result) conflict(c Conflict) {
	r.Conflicts = append(r.Conflicts, c)
	r.HasConflict = true
}

// TimesOverlap reports whether [s1,e1) and [s2,e2) intersect. A zero-length
// range is a point and only overlaps the identical point.
func TimesOverlap(s1, e1, s2, e2 string) bool {
	a1, a2 := daytime.Minutes(s1), daytime.Minutes(e1)
	b1, b2 := daytime.Minutes(s2), daytime.Minutes(e2)
	if a1 < 0 || a2 < 0 || b1 < 0 || b2 < 0 {
		return false
	}
	if a1 == a2 || b1 == b2 {
		return a1 == a2 && b1 == b2 && a1 == b1
	}
	return a1 < b2 && b1 < a2
}

// IsPastTime reports whether clock on date is at or before now, evaluated in
// now's location.
func IsPastTime(date time.Time, clock string, now time.Time) bool {
	return !daytime.At(date, clock, now.Location()).After(now)
}

// CheckSlotConflicts evaluates a candidate range on date. Booked, blocked and
// break slots, configured breaks and a candidate that has already ended are
// conflicts; overlapping available slots are only warnings.
func CheckSlotConflicts(candidate Range, date time.Time, existing []model.Slot, breaks []model.Break, now time.Time) Result {
	res := Result{Conflicts: []Conflict{}, Warnings: []Conflict{}}

	if daytime.Minutes(candidate.Start) < 0 || daytime.Minutes(candidate.End) <= daytime.Minutes(candidate.Start) {
		res.conflict(Conflict{Kind: KindInvalid, Start: candidate.Start, End: candidate.End,
			Message: fmt.Sprintf("Invalid time range %s", candidate)})
		return res
	}
	if IsPastTime(date, candidate.End, now) {
		res.conflict(Conflict{Kind: KindPast, Start: candidate.Start, End: candidate.End,
			Message: "Cannot schedule a time that has already passed"})
	}

	for _, s := range existing {
		if !TimesOverlap(candidate.Start, candidate.End, s.Start, s.End) {
			continue
		}
		c := Conflict{Start: s.Start, End: s.End}
		switch s.Status {
		case model.SlotBooked:
			c.Kind = KindBooked
			c.Message = fmt.Sprintf("Overlaps booked slot %s-%s", s.Start, s.End)
		case model.SlotBlocked:
			c.Kind = KindBlocked
			c.Message = fmt.Sprintf("Overlaps blocked slot %s-%s", s.Start, s.End)
		case model.SlotBreak:
			c.Kind = KindBreak
			c.Message = fmt.Sprintf("Overlaps break %s-%s", s.Start, s.End)
		default:
			c.Kind = KindAvailable
			c.Message = fmt.Sprintf("Overlaps available slot %s-%s", s.Start, s.End)
			res.Warnings = append(res.Warnings, c)
			continue
		}
		res.conflict(c)
	}

	for _, b := range breaks {
		if TimesOverlap(candidate.Start, candidate.End, b.Start, b.End) {
			msg := fmt.Sprintf("Overlaps break %s-%s", b.Start, b.End)
			if b.Reason != "" {
				msg += " (" + b.Reason + ")"
			}
			res.conflict(Conflict{Kind: KindBreak, Start: b.Start, End: b.End, Message: msg})
		}
	}
	return res
}

// CheckRescheduleConflicts is CheckSlotConflicts for moving an existing
// appointment: the appointment's own slot is ignored.
func CheckRescheduleConflicts(appointmentID string, newDate time.Time, newTime string, duration int, existing []model.Slot, breaks []model.Break, now time.Time) (Result, error) {
	end, err := daytime.AddMinutes(newTime, duration)
	if err != nil {
		return Result{}, err
	}
	others := make([]model.Slot, 0, len(existing))
	for _, s := range existing {
		if appointmentID != "" && s.AppointmentID == appointmentID {
			continue
		}
		others = append(others, s)
	}
	return CheckSlotConflicts(Range{Start: newTime, End: end}, newDate, others, breaks, now), nil
}

// CheckMultipleSlotConflicts reports ranges that are malformed or overlap
// each other, for bulk edits.
func CheckMultipleSlotConflicts(ranges []Range) Result {
	res := Result{Conflicts: []Conflict{}, Warnings: []Conflict{}}
	for i, r := range ranges {
		if daytime.Minutes(r.Start) < 0 || daytime.Minutes(r.End) <= daytime.Minutes(r.Start) {
			res.conflict(Conflict{Kind: KindInvalid, Start: r.Start, End: r.End,
				Message: fmt.Sprintf("Invalid time range %s", r)})
			continue
		}
		for _, other := range ranges[i+1:] {
			if TimesOverlap(r.Start, r.End, other.Start, other.End) {
				res.conflict(Conflict{Kind: KindOverlap, Start: other.Start, End: other.End,
					Message: fmt.Sprintf("%s overlaps %s", r, other)})
			}
		}
	}
	return res
}
