package model

import "time"

type TemplateBreak struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label,omitempty"`
}

// AvailabilityTemplate is a named weekly pattern a doctor can reuse when
// materializing schedules.
type AvailabilityTemplate struct {
	ID            string
	DoctorID      string
	Name          string
	WorkingDays   []int // 0=Sunday..6=Saturday
	StartTime     string
	EndTime       string
	SlotDuration  int
	BufferMinutes int
	Breaks        []TemplateBreak
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	IsDefault     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CoversDate reports whether date falls within the validity window.
func (t *AvailabilityTemplate) CoversDate(date time.Time) bool {
	if t.ValidFrom != nil && date.Before(*t.ValidFrom) {
		return false
	}
	if t.ValidUntil != nil && date.After(*t.ValidUntil) {
		return false
	}
	return true
}

func (t *AvailabilityTemplate) WorksOn(wd time.Weekday) bool {
	for _, d := range t.WorkingDays {
		if d == int(wd) {
			return true
		}
	}
	return false
}

// DoctorSettings are created lazily with defaults on first read. An empty
// AvailableDays means the doctor never declared working days.
type DoctorSettings struct {
	DoctorID            string
	AvailableDays       []string
	StartTime           string
	EndTime             string
	AppointmentDuration int
	BufferMinutes       int
	ConsultationFee     float64
	ValidFrom           *time.Time
	ValidUntil          *time.Time
	DefaultTemplateID   string
	UpdatedAt           time.Time
}

func DefaultSettings(doctorID string) *DoctorSettings {
	return &DoctorSettings{
		DoctorID:            doctorID,
		StartTime:           "09:00",
		EndTime:             "17:00",
		AppointmentDuration: 30,
	}
}

// Declared reports whether the doctor has chosen working days.
func (s *DoctorSettings) Declared() bool {
	return s != nil && len(s.AvailableDays) > 0
}

type User struct {
	ID            string
	Name          string
	Email         string
	Role          Role
	IsActive      bool
	Specialty     string
	AvailableDays []string
	StartTime     string
	EndTime       string
}
