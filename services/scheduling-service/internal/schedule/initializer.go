package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

const DefaultLookback = 14

type SettingsSource interface {
	Get(ctx context.Context, doctorID string) (*model.DoctorSettings, error)
}

type TemplateSource interface {
	Resolve(ctx context.Context, doctorID, preferredID string) (*model.AvailabilityTemplate, error)
}

// Initializer materializes a doctor's schedule for a date from the best
// source available. It never overwrites an existing schedule.
type Initializer struct {
	repo      Repository
	settings  SettingsSource
	templates TemplateSource
	now       func() time.Time
	lookback  int
	logger    *slog.Logger
}

func NewInitializer(repo Repository, settings SettingsSource, templates TemplateSource, now func() time.Time, lookback int, logger *slog.Logger) *Initializer {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Initializer{
		repo:      repo,
		settings:  settings,
		templates: templates,
		now:       now,
		lookback:  lookback,
		logger:    logger,
	}
}

// EnsureSchedule reports whether it created a schedule. Existing schedules,
// past dates and non-working days yield false with no error.
func (i *Initializer) EnsureSchedule(ctx context.Context, doctorID string, date time.Time) (bool, error) {
	date = daytime.DateOf(date)
	if _, err := i.repo.Get(ctx, doctorID, date); err == nil {
		return false, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}

	if date.Before(daytime.DateOf(i.now())) {
		return false, nil
	}

	settings, err := i.settings.Get(ctx, doctorID)
	if err != nil {
		i.logger.Warn("doctor settings unavailable; initializing without them", "doctor_id", doctorID, "err", err)
		settings = nil
	}
	if settings.Declared() && !daytime.ContainsWeekday(settings.AvailableDays, date.Weekday()) {
		return false, nil
	}

	shifts, breaks, source, err := i.pickSource(ctx, doctorID, date, settings)
	if err != nil {
		return false, err
	}
	if source == "" {
		return false, nil
	}

	now := i.now()
	s := &model.DailySchedule{
		DoctorID:  doctorID,
		Date:      date,
		Shifts:    shifts,
		Breaks:    breaks,
		Slots:     []model.Slot{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := i.repo.Insert(ctx, s); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	i.logger.Info("schedule initialized",
		"doctor_id", doctorID,
		"date", daytime.FormatDate(date),
		"source", source,
		"shifts", len(shifts),
	)
	return true, nil
}

// pickSource returns an empty source when the date is a day off.
func (i *Initializer) pickSource(ctx context.Context, doctorID string, date time.Time, settings *model.DoctorSettings) ([]model.Shift, []model.Break, string, error) {
	recent, err := i.repo.ListRecent(ctx, doctorID, i.lookback)
	if err != nil {
		return nil, nil, "", err
	}
	for _, prev := range recent {
		if prev.Date.Weekday() == date.Weekday() && prev.HasShifts() {
			return cloneShifts(prev.Shifts), nil, "same_weekday", nil
		}
	}

	latest, err := i.repo.LatestWithShifts(ctx, doctorID)
	if err != nil {
		return nil, nil, "", err
	}
	if latest != nil {
		return cloneShifts(latest.Shifts), nil, "latest", nil
	}

	preferred := ""
	if settings != nil {
		preferred = settings.DefaultTemplateID
	}
	tpl, err := i.templates.Resolve(ctx, doctorID, preferred)
	if err != nil {
		return nil, nil, "", err
	}
	if tpl != nil && tpl.CoversDate(date) {
		if !tpl.WorksOn(date.Weekday()) {
			return nil, nil, "", nil
		}
		shifts, breaks := availability.ShiftsFromTemplate(tpl)
		return shifts, breaks, "template", nil
	}

	if settings.Declared() {
		return []model.Shift{availability.ShiftFromSettings(settings)}, nil, "settings", nil
	}

	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return nil, nil, "", nil
	}
	return availability.StandardShifts(), nil, "default", nil
}

func cloneShifts(in []model.Shift) []model.Shift {
	return append([]model.Shift(nil), in...)
}
