package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/conflict"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TemplateRepository persists availability templates. Get returns an
// apperr.ErrNotFound error for unknown ids; GetDefault returns nil, nil when
// the doctor has no default.
type TemplateRepository interface {
	Insert(ctx context.Context, t *model.AvailabilityTemplate) error
	Update(ctx context.Context, t *model.AvailabilityTemplate) error
	Get(ctx context.Context, id string) (*model.AvailabilityTemplate, error)
	GetDefault(ctx context.Context, doctorID string) (*model.AvailabilityTemplate, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]*model.AvailabilityTemplate, error)
	Delete(ctx context.Context, id string) error
	ClearDefault(ctx context.Context, doctorID, exceptID string) error
}

type TemplateInput struct {
	Name          string
	WorkingDays   []int
	StartTime     string
	EndTime       string
	SlotDuration  int
	BufferMinutes int
	Breaks        []model.TemplateBreak
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	IsDefault     bool
}

type TemplateService struct {
	repo TemplateRepository
	tx   TxRunner
	now  func() time.Time
}

func NewTemplateService(repo TemplateRepository, tx TxRunner, now func() time.Time) *TemplateService {
	return &TemplateService{repo: repo, tx: tx, now: now}
}

func (s *TemplateService) Create(ctx context.Context, doctorID string, in TemplateInput) (*model.AvailabilityTemplate, error) {
	if err := validateTemplate(in); err != nil {
		return nil, err
	}
	now := s.now()
	t := &model.AvailabilityTemplate{DoctorID: doctorID, CreatedAt: now}
	applyTemplateInput(t, in, now)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Insert(ctx, t); err != nil {
			return err
		}
		if t.IsDefault {
			return s.repo.ClearDefault(ctx, doctorID, t.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) Update(ctx context.Context, doctorID, id string, in TemplateInput) (*model.AvailabilityTemplate, error) {
	if err := validateTemplate(in); err != nil {
		return nil, err
	}
	var out *model.AvailabilityTemplate
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.owned(ctx, doctorID, id)
		if err != nil {
			return err
		}
		applyTemplateInput(t, in, s.now())
		if err := s.repo.Update(ctx, t); err != nil {
			return err
		}
		if t.IsDefault {
			if err := s.repo.ClearDefault(ctx, doctorID, t.ID); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	return out, err
}

func (s *TemplateService) Get(ctx context.Context, doctorID, id string) (*model.AvailabilityTemplate, error) {
	return s.owned(ctx, doctorID, id)
}

func (s *TemplateService) List(ctx context.Context, doctorID string) ([]*model.AvailabilityTemplate, error) {
	return s.repo.ListByDoctor(ctx, doctorID)
}

func (s *TemplateService) Delete(ctx context.Context, doctorID, id string) error {
	if _, err := s.owned(ctx, doctorID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// Default returns the doctor's default template, or nil.
func (s *TemplateService) Default(ctx context.Context, doctorID string) (*model.AvailabilityTemplate, error) {
	return s.repo.GetDefault(ctx, doctorID)
}

// Resolve returns the template a doctor's settings point at, falling back to
// the doctor's default template. It returns nil when there is neither.
func (s *TemplateService) Resolve(ctx context.Context, doctorID, preferredID string) (*model.AvailabilityTemplate, error) {
	if preferredID != "" {
		t, err := s.owned(ctx, doctorID, preferredID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	return s.repo.GetDefault(ctx, doctorID)
}

func (s *TemplateService) owned(ctx context.Context, doctorID, id string) (*model.AvailabilityTemplate, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.DoctorID != doctorID {
		return nil, apperr.NotFound("template", id)
	}
	return t, nil
}

func applyTemplateInput(t *model.AvailabilityTemplate, in TemplateInput, now time.Time) {
	t.Name = strings.TrimSpace(in.Name)
	t.WorkingDays = in.WorkingDays
	t.StartTime, _ = daytime.NormalizeClock(in.StartTime)
	t.EndTime, _ = daytime.NormalizeClock(in.EndTime)
	t.SlotDuration = in.SlotDuration
	t.BufferMinutes = in.BufferMinutes
	t.Breaks = in.Breaks
	t.ValidFrom = in.ValidFrom
	t.ValidUntil = in.ValidUntil
	t.IsDefault = in.IsDefault
	t.UpdatedAt = now
}

func validateTemplate(in TemplateInput) error {
	details := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		details["name"] = "required"
	}
	if len(in.WorkingDays) == 0 {
		details["working_days"] = "at least one day required"
	}
	for _, d := range in.WorkingDays {
		if d < 0 || d > 6 {
			details["working_days"] = fmt.Sprintf("day %d out of range 0-6", d)
		}
	}
	start, errStart := daytime.ParseClock(in.StartTime)
	end, errEnd := daytime.ParseClock(in.EndTime)
	switch {
	case errStart != nil:
		details["start_time"] = errStart.Error()
	case errEnd != nil:
		details["end_time"] = errEnd.Error()
	case end <= start:
		details["end_time"] = "must be after start_time"
	}
	if in.SlotDuration < 5 || in.SlotDuration > 240 {
		details["slot_duration"] = "must be between 5 and 240 minutes"
	}
	if in.BufferMinutes < 0 {
		details["buffer_minutes"] = "must not be negative"
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && in.ValidUntil.Before(*in.ValidFrom) {
		details["valid_until"] = "must not be before valid_from"
	}

	ranges := make([]conflict.Range, 0, len(in.Breaks))
	for _, b := range in.Breaks {
		ranges = append(ranges, conflict.Range{Start: b.Start, End: b.End})
		if errStart == nil && errEnd == nil {
			bs, be := daytime.Minutes(b.Start), daytime.Minutes(b.End)
			if bs >= 0 && be >= 0 && (bs < start || be > end) {
				details["breaks"] = fmt.Sprintf("break %s-%s is outside working hours", b.Start, b.End)
			}
		}
	}
	if res := conflict.CheckMultipleSlotConflicts(ranges); res.HasConflict {
		details["breaks"] = res.First()
	}

	if len(details) > 0 {
		return apperr.Validation("invalid availability template", details)
	}
	return nil
}
