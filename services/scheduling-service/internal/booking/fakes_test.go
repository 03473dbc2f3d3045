package booking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/notify"
)

// Monday 2025-03-03 10:00 in the clinic's zone.
var now = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type noTx struct{}

func (noTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type memAppointments struct {
	rows         map[string]*model.Appointment
	beforeInsert func()
}

func newMemAppointments() *memAppointments {
	return &memAppointments{rows: map[string]*model.Appointment{}}
}

func (m *memAppointments) holder(a *model.Appointment) *model.Appointment {
	for _, o := range m.rows {
		if o.ID != a.ID && o.Status.Active() && o.DoctorID == a.DoctorID && o.Date.Equal(a.Date) && o.Time == a.Time {
			return o
		}
	}
	return nil
}

func (m *memAppointments) Insert(_ context.Context, a *model.Appointment) error {
	if m.beforeInsert != nil {
		m.beforeInsert()
		m.beforeInsert = nil
	}
	if a.Status.Active() && m.holder(a) != nil {
		return apperr.ErrDuplicate
	}
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memAppointments) Get(_ context.Context, id string) (*model.Appointment, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("appointment", id)
	}
	cp := *a
	return &cp, nil
}

func (m *memAppointments) GetForUpdate(ctx context.Context, id string) (*model.Appointment, error) {
	return m.Get(ctx, id)
}

func (m *memAppointments) Update(_ context.Context, a *model.Appointment) error {
	if _, ok := m.rows[a.ID]; !ok {
		return apperr.NotFound("appointment", a.ID)
	}
	if a.Status.Active() && m.holder(a) != nil {
		return apperr.ErrDuplicate
	}
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memAppointments) FindActiveAt(_ context.Context, doctorID string, date time.Time, clock string, statuses []model.AppointmentStatus) (*model.Appointment, error) {
	for _, a := range m.sorted() {
		if a.DoctorID != doctorID || !a.Date.Equal(date) || a.Time != clock {
			continue
		}
		for _, s := range statuses {
			if a.Status == s {
				cp := *a
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (m *memAppointments) match(a *model.Appointment, f ListFilter) bool {
	return (f.DoctorID == "" || a.DoctorID == f.DoctorID) &&
		(f.PatientID == "" || a.PatientID == f.PatientID) &&
		(f.Status == "" || a.Status == f.Status) &&
		(f.From == nil || !a.Date.Before(*f.From)) &&
		(f.To == nil || !a.Date.After(*f.To))
}

func (m *memAppointments) CountPending(_ context.Context, f ListFilter) (int, error) {
	f.Status = model.StatusPending
	n := 0
	for _, a := range m.rows {
		if m.match(a, f) {
			n++
		}
	}
	return n, nil
}

func (m *memAppointments) List(_ context.Context, f ListFilter) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, a := range m.sorted() {
		if m.match(a, f) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAppointments) sorted() []*model.Appointment {
	out := make([]*model.Appointment, 0, len(m.rows))
	for _, a := range m.rows {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type memDirectory struct {
	users []*model.User
}

func (d *memDirectory) FindOne(_ context.Context, id string) (*model.User, error) {
	for _, u := range d.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user", id)
}

func (d *memDirectory) FindDoctors(context.Context) ([]*model.User, error) {
	var out []*model.User
	for _, u := range d.users {
		if u.Role == model.RoleDoctor && u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

type memSettings map[string]*model.DoctorSettings

func (m memSettings) Get(_ context.Context, doctorID string) (*model.DoctorSettings, error) {
	if s, ok := m[doctorID]; ok {
		return s, nil
	}
	return model.DefaultSettings(doctorID), nil
}

type memSchedules struct {
	rows     map[string]*model.DailySchedule
	failNext bool
}

func newMemSchedules() *memSchedules {
	return &memSchedules{rows: map[string]*model.DailySchedule{}}
}

func key(doctorID string, date time.Time) string { return doctorID + "|" + daytime.FormatDate(date) }

func (m *memSchedules) put(doctorID string, date time.Time, slots ...model.Slot) {
	m.rows[key(doctorID, date)] = &model.DailySchedule{DoctorID: doctorID, Date: date, Slots: slots}
}

func (m *memSchedules) slot(doctorID string, date time.Time, start string) *model.Slot {
	s, ok := m.rows[key(doctorID, date)]
	if !ok {
		return nil
	}
	if i := s.SlotIndex(start); i >= 0 {
		return &s.Slots[i]
	}
	return nil
}

func (m *memSchedules) Lookup(_ context.Context, doctorID string, date time.Time) (*model.DailySchedule, error) {
	s, ok := m.rows[key(doctorID, date)]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Slots = append([]model.Slot(nil), s.Slots...)
	return &cp, nil
}

func (m *memSchedules) SetSlotStatus(_ context.Context, doctorID string, date time.Time, start, end string, status model.SlotStatus, reason, appointmentID string) (*model.Slot, error) {
	if m.failNext {
		m.failNext = false
		return nil, fmt.Errorf("schedule store down")
	}
	s, ok := m.rows[key(doctorID, date)]
	if !ok {
		s = &model.DailySchedule{DoctorID: doctorID, Date: date}
		m.rows[key(doctorID, date)] = s
	}
	i := s.SlotIndex(start)
	if i < 0 {
		if end == "" {
			end, _ = daytime.AddMinutes(start, 30)
		}
		s.Slots = append(s.Slots, model.Slot{Start: start, End: end, Status: model.SlotAvailable})
		i = len(s.Slots) - 1
	}
	cur := &s.Slots[i]
	if status == model.SlotBooked && cur.Status == model.SlotBooked && cur.AppointmentID != appointmentID {
		return nil, apperr.Conflict("This time slot is already booked")
	}
	if status == model.SlotBooked {
		for j := range s.Slots {
			if j != i && s.Slots[j].AppointmentID == appointmentID {
				s.Slots[j].Status = model.SlotAvailable
				s.Slots[j].AppointmentID = ""
			}
		}
	}
	cur.Status = status
	cur.AppointmentID = appointmentID
	cur.BlockedReason = reason
	out := *cur
	return &out, nil
}

type captureNotifier struct {
	events []notify.Event
}

func (c *captureNotifier) Notify(_ context.Context, evt notify.Event) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *captureNotifier) types() []notify.EventType {
	out := make([]notify.EventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type memIdempotency map[string]string

func (m memIdempotency) Lock(_ context.Context, ownerID, key string) (string, error) {
	return m[ownerID+"|"+key], nil
}

func (m memIdempotency) Finalize(_ context.Context, ownerID, key, appointmentID string) error {
	m[ownerID+"|"+key] = appointmentID
	return nil
}

type fixture struct {
	engine    *Engine
	appts     *memAppointments
	schedules *memSchedules
	notifier  *captureNotifier
	settings  memSettings
	directory *memDirectory
	seq       int
}

func doctor(id, name string, days ...string) *model.User {
	return &model.User{ID: id, Name: name, Role: model.RoleDoctor, IsActive: true, AvailableDays: days}
}

func newFixture(users ...*model.User) *fixture {
	f := &fixture{
		appts:     newMemAppointments(),
		schedules: newMemSchedules(),
		notifier:  &captureNotifier{},
		settings:  memSettings{},
		directory: &memDirectory{users: users},
	}
	f.engine = NewEngine(f.appts, f.directory, f.settings, f.schedules, f.notifier, memIdempotency{}, noTx{}, clock, discard())
	f.engine.newID = func() string {
		f.seq++
		return fmt.Sprintf("appt-%d", f.seq)
	}
	return f
}

func date(s string) time.Time {
	d, err := daytime.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

var (
	reception = Actor{ID: "rec-1", Role: model.RoleReceptionist}
	patient   = Actor{ID: "pat-1", Role: model.RolePatient}
	patient2  = Actor{ID: "pat-2", Role: model.RolePatient}
)
