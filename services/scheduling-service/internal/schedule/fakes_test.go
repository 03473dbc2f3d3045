package schedule

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type noTx struct{}

func (noTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type memSchedules struct {
	rows    map[string]*model.DailySchedule
	inserts int
	// beforeInsert runs once, simulating a concurrent writer.
	beforeInsert func(m *memSchedules, s *model.DailySchedule)
}

func newMemSchedules() *memSchedules {
	return &memSchedules{rows: map[string]*model.DailySchedule{}}
}

func key(doctorID string, date time.Time) string { return doctorID + "|" + daytime.FormatDate(date) }

func clone(s *model.DailySchedule) *model.DailySchedule {
	cp := *s
	cp.Shifts = append([]model.Shift(nil), s.Shifts...)
	cp.Breaks = append([]model.Break(nil), s.Breaks...)
	cp.Slots = append([]model.Slot(nil), s.Slots...)
	return &cp
}

func (m *memSchedules) put(s *model.DailySchedule) { m.rows[key(s.DoctorID, s.Date)] = clone(s) }

func (m *memSchedules) Get(_ context.Context, doctorID string, date time.Time) (*model.DailySchedule, error) {
	s, ok := m.rows[key(doctorID, date)]
	if !ok {
		return nil, apperr.NotFound("schedule", key(doctorID, date))
	}
	return clone(s), nil
}

func (m *memSchedules) GetForUpdate(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error) {
	return m.Get(ctx, doctorID, date)
}

func (m *memSchedules) Insert(_ context.Context, s *model.DailySchedule) error {
	if hook := m.beforeInsert; hook != nil {
		m.beforeInsert = nil
		hook(m, s)
	}
	k := key(s.DoctorID, s.Date)
	if _, ok := m.rows[k]; ok {
		return apperr.ErrDuplicate
	}
	m.inserts++
	s.ID = k
	m.rows[k] = clone(s)
	return nil
}

func (m *memSchedules) Update(_ context.Context, s *model.DailySchedule) error {
	m.rows[key(s.DoctorID, s.Date)] = clone(s)
	return nil
}

func (m *memSchedules) sorted(doctorID string) []*model.DailySchedule {
	var out []*model.DailySchedule
	for _, s := range m.rows {
		if s.DoctorID == doctorID {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (m *memSchedules) ListRecent(_ context.Context, doctorID string, limit int) ([]*model.DailySchedule, error) {
	out := m.sorted(doctorID)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSchedules) LatestWithShifts(_ context.Context, doctorID string) (*model.DailySchedule, error) {
	for _, s := range m.sorted(doctorID) {
		if len(s.Shifts) > 0 {
			return s, nil
		}
	}
	return nil, nil
}

func (m *memSchedules) ListRange(_ context.Context, doctorID string, from, to time.Time) ([]*model.DailySchedule, error) {
	var out []*model.DailySchedule
	for _, s := range m.sorted(doctorID) {
		if !s.Date.Before(from) && !s.Date.After(to) {
			out = append([]*model.DailySchedule{s}, out...)
		}
	}
	return out, nil
}

type stubSettings map[string]*model.DoctorSettings

func (s stubSettings) Get(_ context.Context, doctorID string) (*model.DoctorSettings, error) {
	if st, ok := s[doctorID]; ok {
		return st, nil
	}
	return model.DefaultSettings(doctorID), nil
}

type stubTemplates map[string]*model.AvailabilityTemplate

func (s stubTemplates) Resolve(_ context.Context, doctorID, _ string) (*model.AvailabilityTemplate, error) {
	return s[doctorID], nil
}
