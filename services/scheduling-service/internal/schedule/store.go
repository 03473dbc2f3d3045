package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/conflict"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

// Repository stores one row per (doctor, date). Get and GetForUpdate return
// an apperr.ErrNotFound error when the row is missing; Insert returns
// apperr.ErrDuplicate when it already exists. LatestWithShifts returns nil
// when the doctor has no schedule with shifts.
type Repository interface {
	Get(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error)
	GetForUpdate(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error)
	Insert(ctx context.Context, s *model.DailySchedule) error
	Update(ctx context.Context, s *model.DailySchedule) error
	ListRecent(ctx context.Context, doctorID string, limit int) ([]*model.DailySchedule, error)
	LatestWithShifts(ctx context.Context, doctorID string) (*model.DailySchedule, error)
	ListRange(ctx context.Context, doctorID string, from, to time.Time) ([]*model.DailySchedule, error)
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo     Repository
	init     *Initializer
	settings SettingsSource
	tx       TxRunner
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(repo Repository, initializer *Initializer, settings SettingsSource, tx TxRunner, now func() time.Time, logger *slog.Logger) *Service {
	return &Service{repo: repo, init: initializer, settings: settings, tx: tx, now: now, logger: logger}
}

// GetDaySchedule returns the schedule for a date, creating it when needed:
// first through the initializer, then as a plain 08:00-18:00 hourly day.
func (s *Service) GetDaySchedule(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error) {
	date = daytime.DateOf(date)
	sched, err := s.repo.Get(ctx, doctorID, date)
	if err == nil {
		return s.view(ctx, sched), nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	if _, err := s.init.EnsureSchedule(ctx, doctorID, date); err != nil {
		return nil, err
	}
	sched, err = s.repo.Get(ctx, doctorID, date)
	if err == nil {
		return s.view(ctx, sched), nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	sched = &model.DailySchedule{
		DoctorID:  doctorID,
		Date:      date,
		Slots:     availability.DefaultHourlySlots(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, sched); err != nil {
		if !errors.Is(err, apperr.ErrDuplicate) {
			return nil, err
		}
		if sched, err = s.repo.Get(ctx, doctorID, date); err != nil {
			return nil, err
		}
	}
	return s.view(ctx, sched), nil
}

// Lookup returns the schedule for a date without creating one. It returns
// nil when none exists.
func (s *Service) Lookup(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error) {
	sched, err := s.repo.Get(ctx, doctorID, daytime.DateOf(date))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.view(ctx, sched), nil
}

// SetSlotStatus writes one slot's status, creating the schedule and the slot
// if needed. A booked slot carries appointmentID; any other slot that held
// the same appointment is released. end may be empty for existing slots.
func (s *Service) SetSlotStatus(ctx context.Context, doctorID string, date time.Time, start, end string, status model.SlotStatus, reason, appointmentID string) (*model.Slot, error) {
	return s.setSlot(ctx, doctorID, date, slotChange{
		start:         start,
		end:           end,
		status:        status,
		reason:        reason,
		appointmentID: appointmentID,
	}, nil)
}

// MarkAvailable reopens a slot. Booked slots must be freed by cancelling
// their appointment.
func (s *Service) MarkAvailable(ctx context.Context, doctorID string, date time.Time, start, end string) (*model.Slot, error) {
	return s.setSlot(ctx, doctorID, date, slotChange{start: start, end: end, status: model.SlotAvailable}, func(cur model.Slot) error {
		if cur.Status == model.SlotBooked {
			return apperr.Rule("Cannot mark a booked slot available; cancel the appointment instead")
		}
		return nil
	})
}

func (s *Service) Block(ctx context.Context, doctorID string, date time.Time, start, end, reason string) (*model.Slot, error) {
	return s.setSlot(ctx, doctorID, date, slotChange{start: start, end: end, status: model.SlotBlocked, reason: reason}, func(cur model.Slot) error {
		if cur.Status == model.SlotBooked {
			return apperr.Rule("Cannot block a slot that has a booked appointment")
		}
		return nil
	})
}

func (s *Service) Unblock(ctx context.Context, doctorID string, date time.Time, start string) (*model.Slot, error) {
	return s.setSlot(ctx, doctorID, date, slotChange{start: start, status: model.SlotAvailable}, func(cur model.Slot) error {
		if cur.Status != model.SlotBlocked {
			return apperr.Rule("Slot is not blocked")
		}
		return nil
	})
}

// BlockDay blocks every slot of a date. It fails if any slot is booked.
func (s *Service) BlockDay(ctx context.Context, doctorID string, date time.Time, reason string) (*model.DailySchedule, error) {
	var out *model.DailySchedule
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		sched, err := s.lockOrCreate(ctx, doctorID, daytime.DateOf(date))
		if err != nil {
			return err
		}
		slots := s.view(ctx, sched).Slots
		if len(slots) == 0 {
			slots = availability.DefaultHourlySlots()
		}
		for i := range slots {
			if slots[i].Status == model.SlotBooked {
				return apperr.Rule(fmt.Sprintf("Slot %s-%s has a booked appointment", slots[i].Start, slots[i].End))
			}
			slots[i].Status = model.SlotBlocked
			slots[i].BlockedReason = reason
			slots[i].AppointmentID = ""
		}
		sched.Slots = slots
		sched.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, sched); err != nil {
			return err
		}
		out = sched
		return nil
	})
	return out, err
}

// UpdateShifts replaces a date's shifts and breaks. Booked and blocked slots
// are kept; available slots are derived again from the new shifts.
func (s *Service) UpdateShifts(ctx context.Context, doctorID string, date time.Time, shifts []model.Shift, breaks []model.Break) (*model.DailySchedule, error) {
	shifts, breaks, err := normalizeShifts(shifts, breaks)
	if err != nil {
		return nil, err
	}

	var out *model.DailySchedule
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		sched, err := s.lockOrCreate(ctx, doctorID, daytime.DateOf(date))
		if err != nil {
			return err
		}
		kept := make([]model.Slot, 0, len(sched.Slots))
		for _, slot := range sched.Slots {
			if slot.Status == model.SlotBooked || slot.Status == model.SlotBlocked {
				kept = append(kept, slot)
			}
		}
		sched.Shifts = shifts
		sched.Breaks = breaks
		sched.Slots = kept
		sched.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, sched); err != nil {
			return err
		}
		out = s.view(ctx, sched)
		return nil
	})
	return out, err
}

// CheckConflicts evaluates a candidate range against the date's schedule.
// excludeAppointmentID lets a reschedule ignore its own slot.
func (s *Service) CheckConflicts(ctx context.Context, doctorID string, date time.Time, start string, duration int, excludeAppointmentID string) (conflict.Result, error) {
	if _, err := daytime.ParseClock(start); err != nil {
		return conflict.Result{}, apperr.Validation(err.Error(), map[string]string{"start": "want HH:MM"})
	}
	if duration <= 0 {
		duration = availability.DefaultSlotMinutes
	}
	sched, err := s.Lookup(ctx, doctorID, date)
	if err != nil {
		return conflict.Result{}, err
	}
	var slots []model.Slot
	var breaks []model.Break
	if sched != nil {
		slots, breaks = sched.Slots, sched.Breaks
	}
	res, err := conflict.CheckRescheduleConflicts(excludeAppointmentID, daytime.DateOf(date), start, duration, slots, breaks, s.now())
	if err != nil {
		return conflict.Result{}, apperr.Validation(err.Error(), nil)
	}
	return res, nil
}

type DayOverview struct {
	Date        time.Time
	HasSchedule bool
	Total       int
	Available   int
	Booked      int
	Blocked     int
}

// MonthlyOverview summarizes every day of a month. Days without a stored
// schedule are reported empty; nothing is created.
func (s *Service) MonthlyOverview(ctx context.Context, doctorID string, year int, month time.Month) ([]DayOverview, error) {
	if month < time.January || month > time.December {
		return nil, apperr.Validation("month must be 1-12", nil)
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	stored, err := s.repo.ListRange(ctx, doctorID, first, last)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]*model.DailySchedule, len(stored))
	for _, sched := range stored {
		byDate[daytime.FormatDate(sched.Date)] = sched
	}

	var out []DayOverview
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		ov := DayOverview{Date: d}
		if sched, ok := byDate[daytime.FormatDate(d)]; ok {
			ov.HasSchedule = true
			for _, slot := range s.view(ctx, sched).Slots {
				ov.Total++
				switch slot.Status {
				case model.SlotAvailable:
					ov.Available++
				case model.SlotBooked:
					ov.Booked++
				case model.SlotBlocked:
					ov.Blocked++
				}
			}
		}
		out = append(out, ov)
	}
	return out, nil
}

// BlockedDays lists dates in [from, to] whose slots are all blocked.
func (s *Service) BlockedDays(ctx context.Context, doctorID string, from, to time.Time) ([]time.Time, error) {
	from, to = daytime.DateOf(from), daytime.DateOf(to)
	if to.Before(from) {
		return nil, apperr.Validation("to must not be before from", nil)
	}
	stored, err := s.repo.ListRange(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for _, sched := range stored {
		slots := s.view(ctx, sched).Slots
		blocked := 0
		for _, slot := range slots {
			if slot.Status == model.SlotBlocked {
				blocked++
			}
		}
		if len(slots) > 0 && blocked == len(slots) {
			out = append(out, sched.Date)
		}
	}
	return out, nil
}

type slotChange struct {
	start         string
	end           string
	status        model.SlotStatus
	reason        string
	appointmentID string
}

func (s *Service) setSlot(ctx context.Context, doctorID string, date time.Time, ch slotChange, guard func(cur model.Slot) error) (*model.Slot, error) {
	if !ch.status.Valid() {
		return nil, apperr.Validation("invalid slot status", map[string]string{"status": string(ch.status)})
	}
	start, err := daytime.NormalizeClock(ch.start)
	if err != nil {
		return nil, apperr.Validation(err.Error(), map[string]string{"start": "want HH:MM"})
	}
	end := ch.end
	if end != "" {
		if daytime.Minutes(end) <= daytime.Minutes(start) {
			return nil, apperr.Validation("end must be after start", map[string]string{"end": end})
		}
	}

	var out model.Slot
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		sched, err := s.lockOrCreate(ctx, doctorID, daytime.DateOf(date))
		if err != nil {
			return err
		}

		idx := sched.SlotIndex(start)
		if idx < 0 {
			if end == "" {
				end = s.derivedEnd(ctx, sched, start)
			}
			if err := insertSlot(sched, model.Slot{Start: start, End: end, Status: model.SlotAvailable}); err != nil {
				return err
			}
			idx = sched.SlotIndex(start)
		}

		cur := &sched.Slots[idx]
		if guard != nil {
			if err := guard(*cur); err != nil {
				return err
			}
		}
		if ch.status == model.SlotBooked && cur.Status == model.SlotBooked &&
			cur.AppointmentID != "" && cur.AppointmentID != ch.appointmentID {
			return apperr.Conflict("This time slot is already booked")
		}
		if ch.status == model.SlotBooked && ch.appointmentID != "" {
			for j := range sched.Slots {
				if j != idx && sched.Slots[j].AppointmentID == ch.appointmentID {
					sched.Slots[j].Status = model.SlotAvailable
					sched.Slots[j].AppointmentID = ""
				}
			}
		}

		cur.Status = ch.status
		cur.AppointmentID = ""
		cur.BlockedReason = ""
		switch ch.status {
		case model.SlotBooked:
			cur.AppointmentID = ch.appointmentID
		case model.SlotBlocked:
			cur.BlockedReason = ch.reason
		}
		out = *cur

		sched.UpdatedAt = s.now()
		return s.repo.Update(ctx, sched)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// lockOrCreate returns the date's schedule row locked for update, creating
// it (initializer first, empty otherwise) when missing.
func (s *Service) lockOrCreate(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error) {
	sched, err := s.repo.GetForUpdate(ctx, doctorID, date)
	if err == nil {
		return sched, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	created, err := s.init.EnsureSchedule(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if !created {
		now := s.now()
		empty := &model.DailySchedule{DoctorID: doctorID, Date: date, Slots: []model.Slot{}, CreatedAt: now, UpdatedAt: now}
		if err := s.repo.Insert(ctx, empty); err != nil && !errors.Is(err, apperr.ErrDuplicate) {
			return nil, err
		}
	}
	return s.repo.GetForUpdate(ctx, doctorID, date)
}

// view returns a copy of sched whose Slots include the available slots
// derived from its shifts.
func (s *Service) view(ctx context.Context, sched *model.DailySchedule) *model.DailySchedule {
	out := *sched
	if len(sched.Shifts) == 0 {
		out.Slots = append([]model.Slot(nil), sched.Slots...)
		return &out
	}
	derived := availability.DeriveSlots(sched.Shifts, sched.Breaks, s.buffer(ctx, sched.DoctorID))
	out.Slots = availability.MergeSlots(sched.Slots, derived)
	return &out
}

func (s *Service) buffer(ctx context.Context, doctorID string) int {
	if s.settings == nil {
		return 0
	}
	st, err := s.settings.Get(ctx, doctorID)
	if err != nil || st == nil {
		return 0
	}
	return st.BufferMinutes
}

func (s *Service) derivedEnd(ctx context.Context, sched *model.DailySchedule, start string) string {
	for _, slot := range s.view(ctx, sched).Slots {
		if slot.Start == start {
			return slot.End
		}
	}
	end, err := daytime.AddMinutes(start, availability.DefaultSlotMinutes)
	if err != nil {
		return "24:00"
	}
	return end
}

// insertSlot adds slot, trimming the available slots it overlaps down to the
// parts it leaves uncovered. Overlapping booked, blocked or break slots are a
// conflict.
func insertSlot(sched *model.DailySchedule, slot model.Slot) error {
	kept := make([]model.Slot, 0, len(sched.Slots)+2)
	for _, existing := range sched.Slots {
		if conflict.TimesOverlap(slot.Start, slot.End, existing.Start, existing.End) {
			if existing.Status == model.SlotAvailable {
				kept = append(kept, availability.Subtract(existing, []model.Slot{slot})...)
				continue
			}
			return apperr.Conflict(fmt.Sprintf("Slot %s-%s overlaps %s slot %s-%s",
				slot.Start, slot.End, existing.Status, existing.Start, existing.End))
		}
		kept = append(kept, existing)
	}
	sched.Slots = append(kept, slot)
	availability.SortSlots(sched.Slots)
	return nil
}

func normalizeShifts(shifts []model.Shift, breaks []model.Break) ([]model.Shift, []model.Break, error) {
	details := map[string]string{}
	outShifts := make([]model.Shift, 0, len(shifts))
	var ranges []conflict.Range
	for i, sh := range shifts {
		start, err1 := daytime.NormalizeClock(sh.Start)
		end, err2 := daytime.NormalizeClock(sh.End)
		if err1 != nil || err2 != nil {
			details[fmt.Sprintf("shifts[%d]", i)] = "start and end must be HH:MM"
			continue
		}
		switch sh.Type {
		case model.ShiftMorning, model.ShiftAfternoon, model.ShiftEvening, model.ShiftCustom:
		case "":
			sh.Type = model.ShiftCustom
		default:
			details[fmt.Sprintf("shifts[%d].type", i)] = "unknown shift type"
		}
		if sh.SlotDuration <= 0 {
			sh.SlotDuration = availability.DefaultSlotMinutes
		}
		sh.Start, sh.End = start, end
		outShifts = append(outShifts, sh)
		if sh.Enabled {
			ranges = append(ranges, conflict.Range{Start: start, End: end})
		}
	}
	if res := conflict.CheckMultipleSlotConflicts(ranges); res.HasConflict {
		details["shifts"] = res.First()
	}

	outBreaks := make([]model.Break, 0, len(breaks))
	var breakRanges []conflict.Range
	for i, b := range breaks {
		start, err1 := daytime.NormalizeClock(b.Start)
		end, err2 := daytime.NormalizeClock(b.End)
		if err1 != nil || err2 != nil {
			details[fmt.Sprintf("breaks[%d]", i)] = "start and end must be HH:MM"
			continue
		}
		b.Start, b.End = start, end
		outBreaks = append(outBreaks, b)
		breakRanges = append(breakRanges, conflict.Range{Start: start, End: end})
	}
	if res := conflict.CheckMultipleSlotConflicts(breakRanges); res.HasConflict {
		details["breaks"] = res.First()
	}

	if len(details) > 0 {
		return nil, nil, apperr.Validation("invalid shifts", details)
	}
	return outShifts, outBreaks, nil
}
