// Package booking creates and moves appointments. It is the only writer of
// appointment rows and keeps the doctor's schedule slots in step with them.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/conflict"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/notify"
)

const (
	DefaultDuration = 30
	MinDuration     = 5
	MaxDuration     = 240
)

// ListFilter narrows List. Zero fields are ignored.
type ListFilter struct {
	DoctorID  string
	PatientID string
	From      *time.Time
	To        *time.Time
	Status    model.AppointmentStatus
	Limit     int
}

// AppointmentRepository persists appointments. Insert and Update return
// apperr.ErrDuplicate when another active appointment holds the same
// doctor, date and time. Get and GetForUpdate return an apperr.ErrNotFound
// error. FindActiveAt returns nil when nothing matches.
type AppointmentRepository interface {
	Insert(ctx context.Context, a *model.Appointment) error
	Get(ctx context.Context, id string) (*model.Appointment, error)
	GetForUpdate(ctx context.Context, id string) (*model.Appointment, error)
	Update(ctx context.Context, a *model.Appointment) error
	FindActiveAt(ctx context.Context, doctorID string, date time.Time, clock string, statuses []model.AppointmentStatus) (*model.Appointment, error)
	CountPending(ctx context.Context, f ListFilter) (int, error)
	List(ctx context.Context, f ListFilter) ([]*model.Appointment, error)
}

// Directory resolves users. FindOne returns an apperr.ErrNotFound error for
// unknown ids; FindDoctors returns active doctors ordered by name.
type Directory interface {
	FindOne(ctx context.Context, id string) (*model.User, error)
	FindDoctors(ctx context.Context) ([]*model.User, error)
}

type SettingsSource interface {
	Get(ctx context.Context, doctorID string) (*model.DoctorSettings, error)
}

// Schedules is the slot store. Lookup returns nil when no schedule exists.
type Schedules interface {
	Lookup(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error)
	SetSlotStatus(ctx context.Context, doctorID string, date time.Time, start, end string, status model.SlotStatus, reason, appointmentID string) (*model.Slot, error)
}

type Notifier interface {
	Notify(ctx context.Context, evt notify.Event) error
}

// IdempotencyStore remembers which appointment a client key produced. Lock
// returns the stored appointment id, or "" when the key is new; the lock is
// held until the surrounding transaction ends.
type IdempotencyStore interface {
	Lock(ctx context.Context, ownerID, key string) (string, error)
	Finalize(ctx context.Context, ownerID, key, appointmentID string) error
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role model.Role
}

type Engine struct {
	appts     AppointmentRepository
	directory Directory
	settings  SettingsSource
	schedules Schedules
	notifier  Notifier
	idem      IdempotencyStore
	tx        TxRunner
	now       func() time.Time
	logger    *slog.Logger
	newID     func() string
}

func NewEngine(appts AppointmentRepository, directory Directory, settings SettingsSource, schedules Schedules, notifier Notifier, idem IdempotencyStore, tx TxRunner, now func() time.Time, logger *slog.Logger) *Engine {
	return &Engine{
		appts:     appts,
		directory: directory,
		settings:  settings,
		schedules: schedules,
		notifier:  notifier,
		idem:      idem,
		tx:        tx,
		now:       now,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

type CreateRequest struct {
	DoctorID       string
	PatientID      string
	Date           string
	Time           string
	Duration       int
	Type           string
	Notes          string
	IdempotencyKey string
}

type request struct {
	doctorID  string
	patientID string
	date      time.Time
	clock     string
	duration  int
	typ       string
	notes     string
}

// Create books an appointment. replayed is true when the idempotency key
// had already produced an appointment and that one is returned instead.
func (e *Engine) Create(ctx context.Context, actor Actor, req CreateRequest) (appt *model.Appointment, replayed bool, err error) {
	in, err := e.parseCreate(actor, req)
	if err != nil {
		metrics.RecordBooking("invalid")
		return nil, false, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	err = e.tx.InTx(ctx, func(ctx context.Context) error {
		if key != "" && e.idem != nil {
			existing, err := e.idem.Lock(ctx, actor.ID, key)
			if err != nil {
				return err
			}
			if existing != "" {
				appt, err = e.appts.Get(ctx, existing)
				replayed = err == nil
				return err
			}
		}
		appt, err = e.book(ctx, actor, in)
		if err != nil {
			return err
		}
		if key != "" && e.idem != nil {
			return e.idem.Finalize(ctx, actor.ID, key, appt.ID)
		}
		return nil
	})
	switch {
	case err == nil && replayed:
		metrics.RecordBooking("replayed")
	case err == nil:
		metrics.RecordBooking("created")
		e.logger.Info("appointment created", "appointment_id", appt.ID, "doctor_id", appt.DoctorID,
			"date", daytime.FormatDate(appt.Date), "time", appt.Time, "status", appt.Status)
	case errors.Is(err, apperr.ErrConflict):
		metrics.RecordBooking("conflict")
	case errors.Is(err, apperr.ErrRule), errors.Is(err, apperr.ErrValidation):
		metrics.RecordBooking("rejected")
	default:
		metrics.RecordBooking("error")
	}
	if err != nil {
		return nil, false, err
	}
	return appt, replayed, nil
}

func (e *Engine) parseCreate(actor Actor, req CreateRequest) (request, error) {
	details := map[string]string{}
	date, err := daytime.ParseDate(req.Date)
	if err != nil {
		details["date"] = "must be YYYY-MM-DD"
	}
	clock, err := daytime.NormalizeClock(req.Time)
	if err != nil {
		details["time"] = "must be HH:MM"
	}
	duration := req.Duration
	if duration == 0 {
		duration = DefaultDuration
	}
	if duration < MinDuration || duration > MaxDuration {
		details["duration"] = fmt.Sprintf("must be between %d and %d minutes", MinDuration, MaxDuration)
	} else if clock != "" {
		if _, err := daytime.AddMinutes(clock, duration); err != nil {
			details["duration"] = "appointment must end by midnight"
		}
	}

	patientID := strings.TrimSpace(req.PatientID)
	switch {
	case actor.Role == model.RolePatient:
		if patientID != "" && patientID != actor.ID {
			return request{}, apperr.Forbidden("Patients can only book for themselves")
		}
		patientID = actor.ID
	case actor.Role.Staff():
		if patientID == "" {
			details["patient_id"] = "is required"
		}
	default:
		return request{}, apperr.Forbidden("Only patients and reception staff can book appointments")
	}
	if len(details) > 0 {
		return request{}, apperr.Validation("Invalid appointment request", details)
	}
	return request{
		doctorID:  strings.TrimSpace(req.DoctorID),
		patientID: patientID,
		date:      date,
		clock:     clock,
		duration:  duration,
		typ:       strings.TrimSpace(req.Type),
		notes:     strings.TrimSpace(req.Notes),
	}, nil
}

func (e *Engine) book(ctx context.Context, actor Actor, in request) (*model.Appointment, error) {
	if in.doctorID == "" {
		id, err := e.autoAssign(ctx, in)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, apperr.Rule("No doctors available at the requested time")
		}
		in.doctorID = id
	}

	doctor, err := e.activeDoctor(ctx, in.doctorID)
	if err != nil {
		return nil, err
	}
	settings := e.doctorSettings(ctx, doctor.ID)

	if days := workingDays(doctor, settings); len(days) > 0 && !daytime.ContainsWeekday(days, in.date.Weekday()) {
		return nil, apperr.Rule(fmt.Sprintf("Doctor is not available on %s", in.date.Weekday()))
	}
	if conflict.IsPastTime(in.date, in.clock, e.now()) {
		return nil, apperr.Rule("Cannot book an appointment in the past")
	}
	if err := e.checkDirectConflict(ctx, doctor.ID, in.date, in.clock, ""); err != nil {
		return nil, err
	}
	if err := e.checkSlot(ctx, doctor, settings, in.date, in.clock, in.duration); err != nil {
		return nil, err
	}

	now := e.now()
	a := &model.Appointment{
		ID:        e.newID(),
		DoctorID:  doctor.ID,
		PatientID: in.patientID,
		Date:      in.date,
		Time:      in.clock,
		Duration:  in.duration,
		Type:      in.typ,
		Notes:     in.notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actor.Role.Staff() {
		a.Status = model.StatusConfirmed
		a.PaymentStatus = model.PaymentNotPaid
		a.ReceptionistID = actor.ID
	} else {
		a.Status = model.StatusPending
		a.PaymentStatus = model.PaymentPending
	}

	if err := e.appts.Insert(ctx, a); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			return nil, apperr.Conflict("This time slot is no longer available")
		}
		return nil, err
	}
	e.claimSlot(ctx, a)
	if err := e.notifier.Notify(ctx, notify.Event{Type: notify.EventCreated, Appointment: *a, Recipients: notify.ForPatientAndDoctor(*a)}); err != nil {
		return nil, err
	}
	return a, nil
}

func (e *Engine) activeDoctor(ctx context.Context, id string) (*model.User, error) {
	doctor, err := e.directory.FindOne(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Rule("Invalid or inactive doctor")
		}
		return nil, err
	}
	if doctor.Role != model.RoleDoctor || !doctor.IsActive {
		return nil, apperr.Rule("Invalid or inactive doctor")
	}
	return doctor, nil
}

// doctorSettings never fails: a settings outage degrades to the doctor's
// profile.
func (e *Engine) doctorSettings(ctx context.Context, doctorID string) *model.DoctorSettings {
	s, err := e.settings.Get(ctx, doctorID)
	if err != nil {
		e.logger.Warn("doctor settings unavailable", "doctor_id", doctorID, "err", err)
		return nil
	}
	return s
}

func (e *Engine) checkDirectConflict(ctx context.Context, doctorID string, date time.Time, clock, selfID string) error {
	statuses := []model.AppointmentStatus{model.StatusPending, model.StatusConfirmed}
	if selfID != "" {
		statuses = []model.AppointmentStatus{model.StatusConfirmed}
	}
	existing, err := e.appts.FindActiveAt(ctx, doctorID, date, clock, statuses)
	if err != nil {
		return err
	}
	if existing == nil || existing.ID == selfID {
		return nil
	}
	if existing.Status == model.StatusPending {
		return apperr.Conflict("This time slot has a pending appointment")
	}
	return apperr.Conflict("This time slot is already booked")
}

// checkSlot consults the materialized schedule. Without a slot at the
// requested start the doctor's declared working hours decide.
func (e *Engine) checkSlot(ctx context.Context, doctor *model.User, settings *model.DoctorSettings, date time.Time, clock string, duration int) error {
	sched, err := e.schedules.Lookup(ctx, doctor.ID, date)
	if err != nil {
		e.logger.Warn("schedule lookup failed", "doctor_id", doctor.ID, "date", daytime.FormatDate(date), "err", err)
		sched = nil
	}
	if sched != nil {
		if i := sched.SlotIndex(clock); i >= 0 {
			switch sched.Slots[i].Status {
			case model.SlotBlocked, model.SlotBreak:
				return apperr.Rule("This time slot is blocked")
			case model.SlotBooked:
				return apperr.Conflict("This time slot is already booked")
			}
			return nil
		}
	}
	start, end, ok := workingHours(doctor, settings)
	if !ok {
		return nil
	}
	from := daytime.Minutes(clock)
	if from < start || from+duration > end {
		return apperr.Rule(fmt.Sprintf("Requested time is outside the doctor's working hours (%s-%s)",
			daytime.FormatClock(start), daytime.FormatClock(end)))
	}
	return nil
}

// claimSlot marks the appointment's slot booked in a savepoint. A failure
// leaves the appointment in place; the reconciler repairs the slot later.
func (e *Engine) claimSlot(ctx context.Context, a *model.Appointment) {
	end, _ := daytime.AddMinutes(a.Time, a.Duration)
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		_, err := e.schedules.SetSlotStatus(ctx, a.DoctorID, a.Date, a.Time, end, model.SlotBooked, "", a.ID)
		return err
	})
	if err != nil {
		metrics.RecordSlotWriteFailure("claim")
		e.logger.Warn("slot claim failed", "appointment_id", a.ID, "doctor_id", a.DoctorID,
			"date", daytime.FormatDate(a.Date), "time", a.Time, "err", err)
	}
}

// releaseSlot frees the slot at the appointment's time if it still carries
// this appointment.
func (e *Engine) releaseSlot(ctx context.Context, a *model.Appointment) {
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		sched, err := e.schedules.Lookup(ctx, a.DoctorID, a.Date)
		if err != nil || sched == nil {
			return err
		}
		i := sched.SlotIndex(a.Time)
		if i < 0 || sched.Slots[i].AppointmentID != a.ID {
			return nil
		}
		_, err = e.schedules.SetSlotStatus(ctx, a.DoctorID, a.Date, a.Time, sched.Slots[i].End, model.SlotAvailable, "", "")
		return err
	})
	if err != nil {
		metrics.RecordSlotWriteFailure("release")
		e.logger.Warn("slot release failed", "appointment_id", a.ID, "doctor_id", a.DoctorID,
			"date", daytime.FormatDate(a.Date), "time", a.Time, "err", err)
	}
}

func workingDays(doctor *model.User, settings *model.DoctorSettings) []string {
	if settings.Declared() {
		return settings.AvailableDays
	}
	return doctor.AvailableDays
}

// workingHours returns declared hours in minutes. Settings count only once
// the doctor has declared working days; their defaults are not a choice.
func workingHours(doctor *model.User, settings *model.DoctorSettings) (int, int, bool) {
	start, end := doctor.StartTime, doctor.EndTime
	if settings.Declared() {
		start, end = settings.StartTime, settings.EndTime
	}
	s, en := daytime.Minutes(start), daytime.Minutes(end)
	if start == "" || end == "" || s < 0 || en <= s {
		return 0, 0, false
	}
	return s, en, true
}
