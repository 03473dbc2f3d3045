package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

// Slots is the schedule store seen by the reconciler.
type Slots interface {
	Lookup(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error)
	SetSlotStatus(ctx context.Context, doctorID string, date time.Time, start, end string, status model.SlotStatus, reason, appointmentID string) (*model.Slot, error)
}

// Reconciler repairs slots left behind when a best-effort slot write
// failed after its appointment committed.
type Reconciler struct {
	repo       Repository
	slots      Slots
	tx         TxRunner
	now        func() time.Time
	logger     *slog.Logger
	interval   time.Duration
	windowDays int
}

type ReconcilerConfig struct {
	Interval   time.Duration
	WindowDays int
}

func NewReconciler(repo Repository, slots Slots, tx TxRunner, now func() time.Time, logger *slog.Logger, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	return &Reconciler{
		repo:       repo,
		slots:      slots,
		tx:         tx,
		now:        now,
		logger:     logger,
		interval:   cfg.Interval,
		windowDays: cfg.WindowDays,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileRecent(ctx); err != nil {
				r.logger.Error("reconcile failed", "err", err)
			}
		}
	}
}

// Repairs counts slot changes made by a pass.
type Repairs struct {
	Claimed  int
	Released int
}

func (r Repairs) add(o Repairs) Repairs {
	return Repairs{Claimed: r.Claimed + o.Claimed, Released: r.Released + o.Released}
}

// ReconcileRecent reconciles every doctor-day with appointments from today
// through the configured window. A failing day is logged and skipped.
func (r *Reconciler) ReconcileRecent(ctx context.Context) (Repairs, error) {
	today := daytime.DateOf(r.now())
	days, err := r.repo.ListDoctorDays(ctx, today, today.AddDate(0, 0, r.windowDays))
	if err != nil {
		return Repairs{}, err
	}
	var total Repairs
	for _, d := range days {
		rep, err := r.ReconcileDay(ctx, d.DoctorID, d.Date)
		if err != nil {
			r.logger.Warn("reconcile day failed", "doctor_id", d.DoctorID, "date", daytime.FormatDate(d.Date), "err", err)
			continue
		}
		total = total.add(rep)
	}
	if total.Claimed+total.Released > 0 {
		r.logger.Info("slots reconciled", "claimed", total.Claimed, "released", total.Released, "days", len(days))
	}
	return total, nil
}

// ReconcileDay makes the day's slots agree with its appointments: slots
// held by appointments that are gone or no longer active are released, and
// active appointments get their start slot booked. Appointments past their
// time keep their slot.
func (r *Reconciler) ReconcileDay(ctx context.Context, doctorID string, date time.Time) (Repairs, error) {
	date = daytime.DateOf(date)
	var rep Repairs
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		appts, err := r.repo.ListForDay(ctx, doctorID, date)
		if err != nil {
			return err
		}
		byID := make(map[string]*model.Appointment, len(appts))
		for _, a := range appts {
			byID[a.ID] = a
		}

		sched, err := r.slots.Lookup(ctx, doctorID, date)
		if err != nil {
			return err
		}
		held := map[string]string{}
		if sched != nil {
			for _, s := range sched.Slots {
				if s.Status != model.SlotBooked || s.AppointmentID == "" {
					continue
				}
				if a, ok := byID[s.AppointmentID]; ok && a.Status != model.StatusCancelled && a.Time == s.Start {
					held[a.ID] = s.Start
					continue
				}
				if _, err := r.slots.SetSlotStatus(ctx, doctorID, date, s.Start, s.End, model.SlotAvailable, "", ""); err != nil {
					return err
				}
				metrics.RecordReconcileRepair("release")
				rep.Released++
			}
		}

		for _, a := range appts {
			if !a.Status.Active() {
				continue
			}
			if _, ok := held[a.ID]; ok {
				continue
			}
			end, err := daytime.AddMinutes(a.Time, a.Duration)
			if err != nil {
				continue
			}
			if _, err := r.slots.SetSlotStatus(ctx, doctorID, date, a.Time, end, model.SlotBooked, "", a.ID); err != nil {
				r.logger.Warn("slot claim during reconcile failed", "appointment_id", a.ID, "err", err)
				continue
			}
			metrics.RecordReconcileRepair("claim")
			rep.Claimed++
		}
		return nil
	})
	if err != nil {
		return Repairs{}, err
	}
	return rep, nil
}
