package handlers

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/schedule"
)

type appointmentJSON struct {
	ID             string `json:"id"`
	DoctorID       string `json:"doctor_id"`
	PatientID      string `json:"patient_id"`
	ReceptionistID string `json:"receptionist_id,omitempty"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Duration       int    `json:"duration"`
	Type           string `json:"type,omitempty"`
	Notes          string `json:"notes,omitempty"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
	Arrived        bool   `json:"arrived"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func toAppointmentJSON(a *model.Appointment) appointmentJSON {
	return appointmentJSON{
		ID:             a.ID,
		DoctorID:       a.DoctorID,
		PatientID:      a.PatientID,
		ReceptionistID: a.ReceptionistID,
		Date:           daytime.FormatDate(a.Date),
		Time:           a.Time,
		Duration:       a.Duration,
		Type:           a.Type,
		Notes:          a.Notes,
		Status:         string(a.Status),
		PaymentStatus:  string(a.PaymentStatus),
		Arrived:        a.Arrived,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type scheduleJSON struct {
	DoctorID string        `json:"doctor_id"`
	Date     string        `json:"date"`
	Shifts   []model.Shift `json:"shifts"`
	Breaks   []model.Break `json:"breaks"`
	Slots    []model.Slot  `json:"slots"`
}

func toScheduleJSON(s *model.DailySchedule) scheduleJSON {
	out := scheduleJSON{
		DoctorID: s.DoctorID,
		Date:     daytime.FormatDate(s.Date),
		Shifts:   s.Shifts,
		Breaks:   s.Breaks,
		Slots:    s.Slots,
	}
	if out.Shifts == nil {
		out.Shifts = []model.Shift{}
	}
	if out.Breaks == nil {
		out.Breaks = []model.Break{}
	}
	if out.Slots == nil {
		out.Slots = []model.Slot{}
	}
	return out
}

type dayOverviewJSON struct {
	Date        string `json:"date"`
	HasSchedule bool   `json:"has_schedule"`
	Total       int    `json:"total_slots"`
	Available   int    `json:"available_slots"`
	Booked      int    `json:"booked_slots"`
	Blocked     int    `json:"blocked_slots"`
}

func toDayOverviewJSON(d schedule.DayOverview) dayOverviewJSON {
	return dayOverviewJSON{
		Date:        daytime.FormatDate(d.Date),
		HasSchedule: d.HasSchedule,
		Total:       d.Total,
		Available:   d.Available,
		Booked:      d.Booked,
		Blocked:     d.Blocked,
	}
}

type settingsJSON struct {
	DoctorID            string   `json:"doctor_id"`
	AvailableDays       []string `json:"available_days"`
	StartTime           string   `json:"start_time"`
	EndTime             string   `json:"end_time"`
	AppointmentDuration int      `json:"appointment_duration"`
	BufferMinutes       int      `json:"buffer_minutes"`
	ConsultationFee     float64  `json:"consultation_fee"`
	ValidFrom           *string  `json:"valid_from"`
	ValidUntil          *string  `json:"valid_until"`
	DefaultTemplateID   string   `json:"default_template_id,omitempty"`
}

func toSettingsJSON(s *model.DoctorSettings) settingsJSON {
	days := s.AvailableDays
	if days == nil {
		days = []string{}
	}
	return settingsJSON{
		DoctorID:            s.DoctorID,
		AvailableDays:       days,
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		AppointmentDuration: s.AppointmentDuration,
		BufferMinutes:       s.BufferMinutes,
		ConsultationFee:     s.ConsultationFee,
		ValidFrom:           formatOptDate(s.ValidFrom),
		ValidUntil:          formatOptDate(s.ValidUntil),
		DefaultTemplateID:   s.DefaultTemplateID,
	}
}

type templateJSON struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	WorkingDays   []int                 `json:"working_days"`
	StartTime     string                `json:"start_time"`
	EndTime       string                `json:"end_time"`
	SlotDuration  int                   `json:"slot_duration"`
	BufferMinutes int                   `json:"buffer_minutes"`
	Breaks        []model.TemplateBreak `json:"breaks"`
	ValidFrom     *string               `json:"valid_from"`
	ValidUntil    *string               `json:"valid_until"`
	IsDefault     bool                  `json:"is_default"`
}

func toTemplateJSON(t *model.AvailabilityTemplate) templateJSON {
	breaks := t.Breaks
	if breaks == nil {
		breaks = []model.TemplateBreak{}
	}
	return templateJSON{
		ID:            t.ID,
		Name:          t.Name,
		WorkingDays:   t.WorkingDays,
		StartTime:     t.StartTime,
		EndTime:       t.EndTime,
		SlotDuration:  t.SlotDuration,
		BufferMinutes: t.BufferMinutes,
		Breaks:        breaks,
		ValidFrom:     formatOptDate(t.ValidFrom),
		ValidUntil:    formatOptDate(t.ValidUntil),
		IsDefault:     t.IsDefault,
	}
}

type doctorJSON struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Specialty     string   `json:"specialty,omitempty"`
	AvailableDays []string `json:"available_days"`
	StartTime     string   `json:"start_time,omitempty"`
	EndTime       string   `json:"end_time,omitempty"`
	IsActive      bool     `json:"is_active"`
}

func toDoctorJSON(u *model.User) doctorJSON {
	days := u.AvailableDays
	if days == nil {
		days = []string{}
	}
	return doctorJSON{
		ID:            u.ID,
		Name:          u.Name,
		Specialty:     u.Specialty,
		AvailableDays: days,
		StartTime:     u.StartTime,
		EndTime:       u.EndTime,
		IsActive:      u.IsActive,
	}
}

func formatOptDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := daytime.FormatDate(*t)
	return &s
}

// parseOptDate accepts nil or "" as "not set".
func parseOptDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := daytime.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
