package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/conflict"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/notify"
)

// UpdatePatch holds the fields a caller wants to change; nil means keep.
type UpdatePatch struct {
	Date           *string
	Time           *string
	Duration       *int
	Type           *string
	Notes          *string
	Status         *string
	PaymentStatus  *string
	ReceptionistID *string
}

// Update edits an appointment. A new date or time is a reschedule: it is
// re-validated like a booking and moves the slot. Patients cannot change
// status, payment or the receptionist; those fields are ignored for them.
func (e *Engine) Update(ctx context.Context, actor Actor, id string, patch UpdatePatch) (*model.Appointment, error) {
	if actor.Role == model.RolePatient {
		patch.Status = nil
		patch.PaymentStatus = nil
		patch.ReceptionistID = nil
	}

	var out *model.Appointment
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := e.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, a); err != nil {
			return err
		}
		old := *a

		if err := e.applyReschedule(ctx, a, patch); err != nil {
			return err
		}
		if err := applyFields(a, patch); err != nil {
			return err
		}
		moved := !a.Date.Equal(old.Date) || a.Time != old.Time
		resized := a.Duration != old.Duration
		a.UpdatedAt = e.now()

		if err := e.appts.Update(ctx, a); err != nil {
			if errors.Is(err, apperr.ErrDuplicate) {
				return apperr.Conflict("This time slot is no longer available")
			}
			return err
		}

		if old.Status.Active() && (moved || resized || !a.Status.Active()) {
			e.releaseSlot(ctx, &old)
		}
		if a.Status.Active() && (moved || resized || !old.Status.Active()) {
			e.claimSlot(ctx, a)
		}
		if a.Status != old.Status {
			metrics.RecordTransition(string(old.Status), string(a.Status), "update")
		}

		var evt notify.EventType
		switch {
		case moved:
			evt = notify.EventRescheduled
		case a.Status == model.StatusCancelled && old.Status != model.StatusCancelled:
			evt = notify.EventCancelled
		case a.Status == model.StatusConfirmed && old.Status != model.StatusConfirmed:
			evt = notify.EventConfirmed
		}
		if evt != "" {
			if err := e.notifier.Notify(ctx, notify.Event{Type: evt, Appointment: *a, Recipients: notify.ForPatientAndDoctor(*a)}); err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) applyReschedule(ctx context.Context, a *model.Appointment, patch UpdatePatch) error {
	date, clock, duration := a.Date, a.Time, a.Duration
	details := map[string]string{}
	if patch.Date != nil {
		d, err := daytime.ParseDate(*patch.Date)
		if err != nil {
			details["date"] = "must be YYYY-MM-DD"
		}
		date = d
	}
	if patch.Time != nil {
		c, err := daytime.NormalizeClock(*patch.Time)
		if err != nil {
			details["time"] = "must be HH:MM"
		}
		clock = c
	}
	if patch.Duration != nil {
		duration = *patch.Duration
		if duration < MinDuration || duration > MaxDuration {
			details["duration"] = fmt.Sprintf("must be between %d and %d minutes", MinDuration, MaxDuration)
		}
	}
	if len(details) > 0 {
		return apperr.Validation("Invalid appointment update", details)
	}
	if _, err := daytime.AddMinutes(clock, duration); err != nil {
		return apperr.Validation("Invalid appointment update", map[string]string{"duration": "appointment must end by midnight"})
	}

	moved := !date.Equal(a.Date) || clock != a.Time
	if !moved && (duration == a.Duration || !a.Status.Active()) {
		a.Duration = duration
		return nil
	}
	now := e.now()
	if moved {
		switch a.Status {
		case model.StatusCancelled:
			return apperr.Rule("Cannot reschedule a cancelled appointment")
		case model.StatusCompleted:
			return apperr.Rule("Cannot reschedule a completed appointment")
		}

		doctor, err := e.activeDoctor(ctx, a.DoctorID)
		if err != nil {
			return err
		}
		settings := e.doctorSettings(ctx, doctor.ID)
		if days := workingDays(doctor, settings); len(days) > 0 && !daytime.ContainsWeekday(days, date.Weekday()) {
			return apperr.Rule(fmt.Sprintf("Doctor is not available on %s", date.Weekday()))
		}
		if conflict.IsPastTime(date, clock, now) {
			return apperr.Rule("Cannot book an appointment in the past")
		}
		if err := e.checkDirectConflict(ctx, doctor.ID, date, clock, a.ID); err != nil {
			return err
		}
	}

	// A longer or moved visit must still fit around bookings, blocks and breaks.
	sched, err := e.schedules.Lookup(ctx, a.DoctorID, date)
	if err != nil {
		return err
	}
	if sched != nil {
		res, err := conflict.CheckRescheduleConflicts(a.ID, date, clock, duration, sched.Slots, sched.Breaks, now)
		if err != nil {
			return apperr.Validation(err.Error(), nil)
		}
		for _, c := range res.Conflicts {
			switch c.Kind {
			case conflict.KindBooked:
				return apperr.Conflict(c.Message)
			case conflict.KindBlocked, conflict.KindBreak:
				return apperr.Rule(c.Message)
			}
		}
	}

	// A missed or overdue visit that is rebooked starts over.
	if moved && (a.Status == model.StatusMissed || a.Status == model.StatusOverdue) {
		if a.ReceptionistID != "" {
			a.Status = model.StatusConfirmed
		} else {
			a.Status = model.StatusPending
		}
	}
	a.Date, a.Time, a.Duration = date, clock, duration
	return nil
}

func applyFields(a *model.Appointment, patch UpdatePatch) error {
	if patch.Type != nil {
		a.Type = strings.TrimSpace(*patch.Type)
	}
	if patch.Notes != nil {
		a.Notes = strings.TrimSpace(*patch.Notes)
	}
	if patch.ReceptionistID != nil {
		a.ReceptionistID = strings.TrimSpace(*patch.ReceptionistID)
	}
	if patch.PaymentStatus != nil {
		p := model.PaymentStatus(*patch.PaymentStatus)
		if !p.Valid() {
			return apperr.Validation("Invalid payment status", map[string]string{"payment_status": *patch.PaymentStatus})
		}
		a.PaymentStatus = p
	}
	if patch.Status != nil {
		s := model.AppointmentStatus(*patch.Status)
		if !s.Valid() {
			return apperr.Validation("Invalid status", map[string]string{"status": *patch.Status})
		}
		if !model.CanTransition(a.Status, s) {
			return apperr.Rule(fmt.Sprintf("Cannot change a %s appointment to %s", a.Status, s))
		}
		a.Status = s
	}
	return nil
}

// Confirm moves a pending appointment to confirmed. Confirming an already
// confirmed appointment is a no-op.
func (e *Engine) Confirm(ctx context.Context, actor Actor, id string) (*model.Appointment, error) {
	if actor.Role == model.RolePatient {
		return nil, apperr.Forbidden("Patients cannot confirm appointments")
	}
	var out *model.Appointment
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := e.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actor.Role == model.RoleDoctor && a.DoctorID != actor.ID {
			return apperr.Forbidden("You can only confirm your own appointments")
		}
		out = a
		switch a.Status {
		case model.StatusConfirmed:
			return nil
		case model.StatusCancelled:
			return apperr.Rule("Cannot confirm a cancelled appointment")
		case model.StatusPending, model.StatusScheduled:
		default:
			return apperr.Rule(fmt.Sprintf("Cannot confirm a %s appointment", a.Status))
		}
		from := a.Status
		a.Status = model.StatusConfirmed
		a.UpdatedAt = e.now()
		if err := e.appts.Update(ctx, a); err != nil {
			return err
		}
		metrics.RecordTransition(string(from), string(a.Status), "confirm")
		return e.notifier.Notify(ctx, notify.Event{Type: notify.EventConfirmed, Appointment: *a, Recipients: notify.ForPatientAndDoctor(*a)})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel cancels an appointment and frees its slot. Patients may cancel
// only their own pending appointments; cancelling twice is a no-op.
func (e *Engine) Cancel(ctx context.Context, actor Actor, id string) (*model.Appointment, error) {
	var out *model.Appointment
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := e.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, a); err != nil {
			return err
		}
		out = a
		switch {
		case a.Status == model.StatusCancelled:
			return nil
		case a.Status == model.StatusCompleted:
			return apperr.Rule("Cannot cancel a completed appointment")
		case actor.Role == model.RolePatient && a.Status != model.StatusPending:
			return apperr.Rule("Patients can only cancel pending appointments")
		}
		old := *a
		a.Status = model.StatusCancelled
		a.UpdatedAt = e.now()
		if err := e.appts.Update(ctx, a); err != nil {
			return err
		}
		if old.Status.Active() {
			e.releaseSlot(ctx, &old)
		}
		metrics.RecordTransition(string(old.Status), string(a.Status), "cancel")
		return e.notifier.Notify(ctx, notify.Event{Type: notify.EventCancelled, Appointment: *a, Recipients: notify.ForPatientAndDoctor(*a)})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkArrived records that the patient is in the waiting room.
func (e *Engine) MarkArrived(ctx context.Context, actor Actor, id string) (*model.Appointment, error) {
	if !actor.Role.Staff() {
		return nil, apperr.Forbidden("Only reception staff can mark arrivals")
	}
	var out *model.Appointment
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := e.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !a.Status.Active() {
			return apperr.Rule(fmt.Sprintf("Cannot mark a %s appointment as arrived", a.Status))
		}
		from := a.Status
		a.Arrived = true
		a.Status = model.StatusWaiting
		a.UpdatedAt = e.now()
		if err := e.appts.Update(ctx, a); err != nil {
			return err
		}
		metrics.RecordTransition(string(from), string(a.Status), "arrival")
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) Get(ctx context.Context, actor Actor, id string) (*model.Appointment, error) {
	a, err := e.appts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, a); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns appointments visible to the actor: patients see their own,
// doctors theirs, staff everything.
func (e *Engine) List(ctx context.Context, actor Actor, f ListFilter) ([]*model.Appointment, error) {
	return e.appts.List(ctx, scope(actor, f))
}

func (e *Engine) PendingCount(ctx context.Context, actor Actor) (int, error) {
	return e.appts.CountPending(ctx, scope(actor, ListFilter{}))
}

func scope(actor Actor, f ListFilter) ListFilter {
	switch actor.Role {
	case model.RolePatient:
		f.PatientID = actor.ID
	case model.RoleDoctor:
		f.DoctorID = actor.ID
	}
	return f
}

func authorize(actor Actor, a *model.Appointment) error {
	switch actor.Role {
	case model.RolePatient:
		if a.PatientID != actor.ID {
			return apperr.Forbidden("You can only access your own appointments")
		}
	case model.RoleDoctor:
		if a.DoctorID != actor.ID {
			return apperr.Forbidden("You can only access your own appointments")
		}
	case model.RoleReceptionist, model.RoleAdmin:
	default:
		return apperr.Forbidden("Unknown role")
	}
	return nil
}

// isRejection reports whether err is a business answer rather than a fault.
func isRejection(err error) bool {
	return errors.Is(err, apperr.ErrConflict) || errors.Is(err, apperr.ErrRule)
}
