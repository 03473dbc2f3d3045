package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/notify"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type noTx struct{}

func (noTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type memRepo struct {
	rows map[string]*model.Appointment
}

func newMemRepo(appts ...*model.Appointment) *memRepo {
	m := &memRepo{rows: map[string]*model.Appointment{}}
	for _, a := range appts {
		m.rows[a.ID] = a
	}
	return m
}

func (m *memRepo) sorted() []*model.Appointment {
	out := make([]*model.Appointment, 0, len(m.rows))
	for _, a := range m.rows {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memRepo) ListExpired(_ context.Context, today time.Time, clock string, limit int) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, a := range m.sorted() {
		if !a.Status.Active() {
			continue
		}
		if a.Date.Before(today) || (a.Date.Equal(today) && a.Time < clock) {
			cp := *a
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) TransitionStatus(_ context.Context, id string, from, to model.AppointmentStatus, at time.Time) (bool, error) {
	a, ok := m.rows[id]
	if !ok {
		return false, apperr.NotFound("appointment", id)
	}
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = at
	return true, nil
}

func (m *memRepo) ListActiveBetween(_ context.Context, from, to time.Time) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, a := range m.sorted() {
		if a.Status.Active() && !a.Date.Before(from) && !a.Date.After(to) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) ListForDay(_ context.Context, doctorID string, date time.Time) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, a := range m.sorted() {
		if a.DoctorID == doctorID && a.Date.Equal(date) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) ListDoctorDays(_ context.Context, from, to time.Time) ([]DoctorDay, error) {
	seen := map[string]bool{}
	var out []DoctorDay
	for _, a := range m.sorted() {
		k := a.DoctorID + "|" + daytime.FormatDate(a.Date)
		if seen[k] || a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		seen[k] = true
		out = append(out, DoctorDay{DoctorID: a.DoctorID, Date: a.Date})
	}
	return out, nil
}

// dedupNotifier drops events whose dedup key was already seen, like the
// outbox unique index.
type dedupNotifier struct {
	seen   map[string]bool
	events []notify.Event
}

func newDedupNotifier() *dedupNotifier { return &dedupNotifier{seen: map[string]bool{}} }

func (n *dedupNotifier) Notify(_ context.Context, evt notify.Event) error {
	k := notify.DedupKey(evt)
	if n.seen[k] {
		return nil
	}
	n.seen[k] = true
	n.events = append(n.events, evt)
	return nil
}

type memSlots struct {
	rows map[string]*model.DailySchedule
}

func (m *memSlots) Lookup(_ context.Context, doctorID string, date time.Time) (*model.DailySchedule, error) {
	s, ok := m.rows[doctorID+"|"+daytime.FormatDate(date)]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Slots = append([]model.Slot(nil), s.Slots...)
	return &cp, nil
}

func (m *memSlots) SetSlotStatus(_ context.Context, doctorID string, date time.Time, start, end string, status model.SlotStatus, reason, appointmentID string) (*model.Slot, error) {
	k := doctorID + "|" + daytime.FormatDate(date)
	s, ok := m.rows[k]
	if !ok {
		s = &model.DailySchedule{DoctorID: doctorID, Date: date}
		m.rows[k] = s
	}
	i := s.SlotIndex(start)
	if i < 0 {
		s.Slots = append(s.Slots, model.Slot{Start: start, End: end})
		i = len(s.Slots) - 1
	}
	s.Slots[i].Status = status
	s.Slots[i].AppointmentID = appointmentID
	s.Slots[i].BlockedReason = reason
	out := s.Slots[i]
	return &out, nil
}

type heldLocker struct{ held bool }

func (l heldLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, !l.held, nil
}

func appt(id, day, at string, status model.AppointmentStatus) *model.Appointment {
	d, err := daytime.ParseDate(day)
	if err != nil {
		panic(err)
	}
	return &model.Appointment{ID: id, DoctorID: "doc-1", PatientID: "pat-" + id, Date: d, Time: at, Duration: 30, Status: status}
}
