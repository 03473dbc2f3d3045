package availability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

// SettingsRepository returns an apperr.ErrNotFound error from Get when the
// doctor has no row, and apperr.ErrDuplicate from Insert when one appeared
// concurrently.
type SettingsRepository interface {
	Get(ctx context.Context, doctorID string) (*model.DoctorSettings, error)
	Insert(ctx context.Context, s *model.DoctorSettings) error
	Update(ctx context.Context, s *model.DoctorSettings) error
}

type SettingsPatch struct {
	AvailableDays       []string
	StartTime           *string
	EndTime             *string
	AppointmentDuration *int
	BufferMinutes       *int
	ConsultationFee     *float64
	ValidFrom           *time.Time
	ValidUntil          *time.Time
	DefaultTemplateID   *string
}

type SettingsService struct {
	repo      SettingsRepository
	templates TemplateRepository
	now       func() time.Time
}

func NewSettingsService(repo SettingsRepository, templates TemplateRepository, now func() time.Time) *SettingsService {
	return &SettingsService{repo: repo, templates: templates, now: now}
}

// Get returns the doctor's settings, creating the default row on first read.
func (s *SettingsService) Get(ctx context.Context, doctorID string) (*model.DoctorSettings, error) {
	st, err := s.repo.Get(ctx, doctorID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	st = model.DefaultSettings(doctorID)
	st.UpdatedAt = s.now()
	if err := s.repo.Insert(ctx, st); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			return s.repo.Get(ctx, doctorID)
		}
		return nil, err
	}
	return st, nil
}

func (s *SettingsService) Update(ctx context.Context, doctorID string, p SettingsPatch) (*model.DoctorSettings, error) {
	current, err := s.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	cp := *current
	st := &cp

	details := map[string]string{}
	if p.AvailableDays != nil {
		days, bad := daytime.CanonicalDays(p.AvailableDays)
		if len(bad) > 0 {
			details["available_days"] = "unknown day " + strings.Join(bad, ", ")
		}
		st.AvailableDays = days
	}
	if p.StartTime != nil {
		v, err := daytime.NormalizeClock(*p.StartTime)
		if err != nil {
			details["start_time"] = err.Error()
		}
		st.StartTime = v
	}
	if p.EndTime != nil {
		v, err := daytime.NormalizeClock(*p.EndTime)
		if err != nil {
			details["end_time"] = err.Error()
		}
		st.EndTime = v
	}
	if _, ok := details["start_time"]; !ok {
		if _, ok := details["end_time"]; !ok && daytime.Minutes(st.EndTime) <= daytime.Minutes(st.StartTime) {
			details["end_time"] = "must be after start_time"
		}
	}
	if p.AppointmentDuration != nil {
		if *p.AppointmentDuration < 5 || *p.AppointmentDuration > 240 {
			details["appointment_duration"] = "must be between 5 and 240 minutes"
		}
		st.AppointmentDuration = *p.AppointmentDuration
	}
	if p.BufferMinutes != nil {
		if *p.BufferMinutes < 0 {
			details["buffer_minutes"] = "must not be negative"
		}
		st.BufferMinutes = *p.BufferMinutes
	}
	if p.ConsultationFee != nil {
		if *p.ConsultationFee < 0 {
			details["consultation_fee"] = "must not be negative"
		}
		st.ConsultationFee = *p.ConsultationFee
	}
	if p.ValidFrom != nil {
		st.ValidFrom = p.ValidFrom
	}
	if p.ValidUntil != nil {
		st.ValidUntil = p.ValidUntil
	}
	if st.ValidFrom != nil && st.ValidUntil != nil && st.ValidUntil.Before(*st.ValidFrom) {
		details["valid_until"] = "must not be before valid_from"
	}
	if p.DefaultTemplateID != nil {
		id := strings.TrimSpace(*p.DefaultTemplateID)
		if id != "" {
			t, err := s.templates.Get(ctx, id)
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
			if err != nil || t.DoctorID != doctorID {
				details["default_template_id"] = "unknown template"
			}
		}
		st.DefaultTemplateID = id
	}
	if len(details) > 0 {
		return nil, apperr.Validation("invalid doctor settings", details)
	}

	st.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}
