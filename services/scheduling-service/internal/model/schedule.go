package model

import "time"

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
	SlotBreak     SlotStatus = "break"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotBooked, SlotBlocked, SlotBreak:
		return true
	}
	return false
}

// Slot is stored inside the daily schedule document.
type Slot struct {
	Start         string     `json:"start"`
	End           string     `json:"end"`
	Status        SlotStatus `json:"status"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
}

type ShiftType string

const (
	ShiftMorning   ShiftType = "morning"
	ShiftAfternoon ShiftType = "afternoon"
	ShiftEvening   ShiftType = "evening"
	ShiftCustom    ShiftType = "custom"
)

type Shift struct {
	Type         ShiftType `json:"type"`
	Start        string    `json:"start"`
	End          string    `json:"end"`
	SlotDuration int       `json:"slot_duration"`
	Enabled      bool      `json:"enabled"`
}

type Break struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason,omitempty"`
}

// DailySchedule is one doctor's calendar for one date. Slots only holds
// materialized entries; unbooked slots can be derived from Shifts.
type DailySchedule struct {
	ID        string
	DoctorID  string
	Date      time.Time
	Shifts    []Shift
	Breaks    []Break
	Slots     []Slot
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotIndex returns the index of the slot starting at start, or -1.
func (s *DailySchedule) SlotIndex(start string) int {
	for i := range s.Slots {
		if s.Slots[i].Start == start {
			return i
		}
	}
	return -1
}

func (s *DailySchedule) HasShifts() bool {
	for _, sh := range s.Shifts {
		if sh.Enabled {
			return true
		}
	}
	return false
}
