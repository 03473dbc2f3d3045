package availability

import (
	"sort"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/conflict"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

const DefaultSlotMinutes = 30

// StandardShifts is the fallback pattern for a weekday with no other source.
func StandardShifts() []model.Shift {
	return []model.Shift{
		{Type: model.ShiftMorning, Start: "08:00", End: "12:00", SlotDuration: DefaultSlotMinutes, Enabled: true},
		{Type: model.ShiftAfternoon, Start: "13:00", End: "17:00", SlotDuration: DefaultSlotMinutes, Enabled: true},
		{Type: model.ShiftEvening, Start: "17:00", End: "20:00", SlotDuration: DefaultSlotMinutes, Enabled: true},
	}
}

// DefaultHourlySlots is the last-resort day: one-hour available slots from
// 08:00 to 18:00.
func DefaultHourlySlots() []model.Slot {
	var slots []model.Slot
	for h := 8; h < 18; h++ {
		slots = append(slots, model.Slot{
			Start:  daytime.FormatClock(h * 60),
			End:    daytime.FormatClock((h + 1) * 60),
			Status: model.SlotAvailable,
		})
	}
	return slots
}

// SlotsForShift cuts a shift into back-to-back slots of its duration,
// separated by buffer minutes, skipping any slot that touches a break.
func SlotsForShift(shift model.Shift, breaks []model.Break, buffer int) []model.Slot {
	start, end := daytime.Minutes(shift.Start), daytime.Minutes(shift.End)
	dur := shift.SlotDuration
	if dur <= 0 {
		dur = DefaultSlotMinutes
	}
	if buffer < 0 {
		buffer = 0
	}
	if start < 0 || end <= start {
		return nil
	}

	var slots []model.Slot
	for t := start; t+dur <= end; t += dur + buffer {
		s, e := daytime.FormatClock(t), daytime.FormatClock(t+dur)
		if overlapsBreak(s, e, breaks) {
			continue
		}
		slots = append(slots, model.Slot{Start: s, End: e, Status: model.SlotAvailable})
	}
	return slots
}

// DeriveSlots expands every enabled shift, sorted by start time.
func DeriveSlots(shifts []model.Shift, breaks []model.Break, buffer int) []model.Slot {
	var out []model.Slot
	for _, sh := range shifts {
		if !sh.Enabled {
			continue
		}
		out = append(out, SlotsForShift(sh, breaks, buffer)...)
	}
	SortSlots(out)
	return out
}

// MergeSlots overlays materialized slots on derived ones. Only the parts of
// a derived slot that no materialized slot covers are kept.
func MergeSlots(materialized, derived []model.Slot) []model.Slot {
	out := append([]model.Slot(nil), materialized...)
	for _, d := range derived {
		out = append(out, Subtract(d, materialized)...)
	}
	SortSlots(out)
	return out
}

// Subtract returns the pieces of slot that none of cover overlaps, in start
// order. Each piece keeps slot's status.
func Subtract(slot model.Slot, cover []model.Slot) []model.Slot {
	pieces := []model.Slot{slot}
	for _, c := range cover {
		var next []model.Slot
		for _, p := range pieces {
			if !conflict.TimesOverlap(p.Start, p.End, c.Start, c.End) {
				next = append(next, p)
				continue
			}
			if daytime.Minutes(p.Start) < daytime.Minutes(c.Start) {
				left := p
				left.End = c.Start
				next = append(next, left)
			}
			if daytime.Minutes(c.End) < daytime.Minutes(p.End) {
				right := p
				right.Start = c.End
				next = append(next, right)
			}
		}
		pieces = next
	}
	return pieces
}

func SortSlots(slots []model.Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return daytime.Minutes(slots[i].Start) < daytime.Minutes(slots[j].Start)
	})
}

// ShiftsFromTemplate turns a template's working hours into a single custom
// shift plus its breaks.
func ShiftsFromTemplate(t *model.AvailabilityTemplate) ([]model.Shift, []model.Break) {
	shift := model.Shift{
		Type:         model.ShiftCustom,
		Start:        t.StartTime,
		End:          t.EndTime,
		SlotDuration: t.SlotDuration,
		Enabled:      true,
	}
	var breaks []model.Break
	for _, b := range t.Breaks {
		breaks = append(breaks, model.Break{Start: b.Start, End: b.End, Reason: b.Label})
	}
	return []model.Shift{shift}, breaks
}

// ShiftFromSettings builds the working-hours shift declared in settings.
func ShiftFromSettings(s *model.DoctorSettings) model.Shift {
	return model.Shift{
		Type:         model.ShiftCustom,
		Start:        s.StartTime,
		End:          s.EndTime,
		SlotDuration: s.AppointmentDuration,
		Enabled:      true,
	}
}

func overlapsBreak(start, end string, breaks []model.Break) bool {
	for _, b := range breaks {
		if conflict.TimesOverlap(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}
