package availability

import (
	"context"
	"fmt"
	"sort"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

type noTx struct{}

func (noTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type memTemplates struct {
	seq  int
	rows map[string]*model.AvailabilityTemplate
}

func newMemTemplates() *memTemplates {
	return &memTemplates{rows: map[string]*model.AvailabilityTemplate{}}
}

func (m *memTemplates) Insert(_ context.Context, t *model.AvailabilityTemplate) error {
	m.seq++
	t.ID = fmt.Sprintf("tpl-%d", m.seq)
	cp := *t
	m.rows[t.ID] = &cp
	return nil
}

func (m *memTemplates) Update(_ context.Context, t *model.AvailabilityTemplate) error {
	if _, ok := m.rows[t.ID]; !ok {
		return apperr.NotFound("template", t.ID)
	}
	cp := *t
	m.rows[t.ID] = &cp
	return nil
}

func (m *memTemplates) Get(_ context.Context, id string) (*model.AvailabilityTemplate, error) {
	t, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("template", id)
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplates) GetDefault(_ context.Context, doctorID string) (*model.AvailabilityTemplate, error) {
	for _, t := range m.rows {
		if t.DoctorID == doctorID && t.IsDefault {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTemplates) ListByDoctor(_ context.Context, doctorID string) ([]*model.AvailabilityTemplate, error) {
	var out []*model.AvailabilityTemplate
	for _, t := range m.rows {
		if t.DoctorID == doctorID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTemplates) Delete(_ context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

func (m *memTemplates) ClearDefault(_ context.Context, doctorID, exceptID string) error {
	for id, t := range m.rows {
		if t.DoctorID == doctorID && id != exceptID {
			t.IsDefault = false
		}
	}
	return nil
}

type memSettings struct {
	rows      map[string]*model.DoctorSettings
	racedOnce bool
	inserts   int
}

func (m *memSettings) Get(_ context.Context, doctorID string) (*model.DoctorSettings, error) {
	s, ok := m.rows[doctorID]
	if !ok {
		return nil, apperr.NotFound("doctor settings", doctorID)
	}
	cp := *s
	return &cp, nil
}

func (m *memSettings) Insert(_ context.Context, s *model.DoctorSettings) error {
	m.inserts++
	if m.racedOnce {
		m.racedOnce = false
		winner := model.DefaultSettings(s.DoctorID)
		winner.AvailableDays = []string{"Monday"}
		m.rows[s.DoctorID] = winner
		return apperr.ErrDuplicate
	}
	if _, ok := m.rows[s.DoctorID]; ok {
		return apperr.ErrDuplicate
	}
	cp := *s
	m.rows[s.DoctorID] = &cp
	return nil
}

func (m *memSettings) Update(_ context.Context, s *model.DoctorSettings) error {
	cp := *s
	m.rows[s.DoctorID] = &cp
	return nil
}
