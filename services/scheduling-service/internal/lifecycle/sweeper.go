// Package lifecycle runs the background passes over appointments: the
// sweeper that expires past visits and sends reminders, and the reconciler
// that re-derives slot state from appointment state.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/metrics"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/notify"
	"go.opentelemetry.io/otel/attribute"
)

const sweepLockKey = "clinicbook:lock:sweep"

// Repository is the appointment access the background passes need.
// ListExpired returns active appointments that started before (date, clock)
// and locks them, skipping rows locked by another sweeper. TransitionStatus
// changes status only if it still equals from and reports whether it did.
type Repository interface {
	ListExpired(ctx context.Context, today time.Time, clock string, limit int) ([]*model.Appointment, error)
	TransitionStatus(ctx context.Context, id string, from, to model.AppointmentStatus, at time.Time) (bool, error)
	ListActiveBetween(ctx context.Context, from, to time.Time) ([]*model.Appointment, error)
	ListForDay(ctx context.Context, doctorID string, date time.Time) ([]*model.Appointment, error)
	ListDoctorDays(ctx context.Context, from, to time.Time) ([]DoctorDay, error)
}

// DoctorDay is one (doctor, date) pair that has appointments.
type DoctorDay struct {
	DoctorID string
	Date     time.Time
}

type Notifier interface {
	Notify(ctx context.Context, evt notify.Event) error
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Sweeper struct {
	repo      Repository
	notifier  Notifier
	tx        TxRunner
	locker    Locker
	now       func() time.Time
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	reminders []time.Duration
}

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	Reminders []time.Duration
}

func NewSweeper(repo Repository, notifier Notifier, tx TxRunner, locker Locker, now func() time.Time, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if locker == nil {
		locker = NoopLocker{}
	}
	return &Sweeper{
		repo:      repo,
		notifier:  notifier,
		tx:        tx,
		locker:    locker,
		now:       now,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		reminders: cfg.Reminders,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("sweep failed", "err", err)
			}
		}
	}
}

// SweepResult counts what one run did. Reminders counts reminder events
// offered to the outbox, including ones it drops as already queued.
type SweepResult struct {
	Missed    int
	Overdue   int
	Reminders int
	Skipped   bool
}

// SweepOnce expires past appointments and queues due reminders. It is a
// no-op when another instance holds the sweep lock.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	release, ok, err := s.locker.TryLock(ctx, sweepLockKey, 2*s.interval)
	if err != nil {
		s.logger.Warn("sweep lock unavailable, running unguarded", "err", err)
	} else if !ok {
		res.Skipped = true
		return res, nil
	}
	defer release()

	ctx, span := otelx.Tracer("lifecycle").Start(ctx, "sweep")
	defer span.End()
	start := time.Now()
	defer func() { metrics.ObserveSweep(time.Since(start)) }()

	for {
		missed, overdue, n, err := s.expireBatch(ctx)
		res.Missed += missed
		res.Overdue += overdue
		if err != nil {
			return res, err
		}
		if n < s.batchSize {
			break
		}
	}

	sent, err := s.queueReminders(ctx)
	res.Reminders = sent
	span.SetAttributes(
		attribute.Int("sweep.missed", res.Missed),
		attribute.Int("sweep.overdue", res.Overdue),
		attribute.Int("sweep.reminders", res.Reminders),
	)
	if res.Missed+res.Overdue > 0 {
		s.logger.Info("sweep complete", "missed", res.Missed, "overdue", res.Overdue, "reminders", res.Reminders)
	}
	return res, err
}

func (s *Sweeper) expireBatch(ctx context.Context) (missed, overdue, fetched int, err error) {
	now := s.now()
	today := daytime.DateOf(now)
	clock := daytime.FormatClock(now.Hour()*60 + now.Minute())

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		expired, err := s.repo.ListExpired(ctx, today, clock, s.batchSize)
		if err != nil {
			return err
		}
		fetched = len(expired)
		for _, a := range expired {
			to := model.StatusOverdue
			evt := notify.EventOverdue
			if a.Status == model.StatusPending {
				to = model.StatusMissed
				evt = notify.EventMissed
			}
			changed, err := s.repo.TransitionStatus(ctx, a.ID, a.Status, to, now)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			metrics.RecordTransition(string(a.Status), string(to), "sweeper")
			a.Status = to
			a.UpdatedAt = now
			if err := s.notifier.Notify(ctx, notify.Event{Type: evt, Appointment: *a, Recipients: notify.ForDoctor(*a)}); err != nil {
				return err
			}
			if to == model.StatusMissed {
				missed++
			} else {
				overdue++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, fetched, err
	}
	return missed, overdue, fetched, nil
}

// queueReminders emits a reminder for every active appointment starting
// within each configured offset. The outbox dedup key keeps each
// (appointment, slot, offset) reminder to a single event across runs.
func (s *Sweeper) queueReminders(ctx context.Context) (int, error) {
	if len(s.reminders) == 0 {
		return 0, nil
	}
	now := s.now()
	var longest time.Duration
	for _, d := range s.reminders {
		if d > longest {
			longest = d
		}
	}

	sent := 0
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		upcoming, err := s.repo.ListActiveBetween(ctx, daytime.DateOf(now), daytime.DateOf(now.Add(longest)))
		if err != nil {
			return err
		}
		for _, a := range upcoming {
			startsAt := daytime.At(a.Date, a.Time, now.Location())
			if !startsAt.After(now) {
				continue
			}
			// Only the tightest window that applies fires, so a booking made
			// an hour ahead does not also get the day-before reminder.
			var offset time.Duration
			for _, d := range s.reminders {
				if startsAt.Sub(now) <= d && (offset == 0 || d < offset) {
					offset = d
				}
			}
			if offset == 0 {
				continue
			}
			err := s.notifier.Notify(ctx, notify.Event{
				Type:        notify.EventReminder,
				Appointment: *a,
				Recipients:  []string{a.PatientID},
				Offset:      offset,
			})
			if err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}
