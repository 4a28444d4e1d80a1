package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"go.uber.org/zap"
)

const dayLayout = "2006-01-02"

type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Reminder interface {
	RemindRenewal(ctx context.Context, order entities.Order, daysLeft int) error
}

type ScanResult struct {
	Target time.Time
	Found  int
	Sent   int
	Failed int
}

type Scheduler struct {
	storage   storage.Storage
	reminder  Reminder
	clock     Clock
	hour      int
	daysAhead int

	lastRun string
}

type Option func(*Scheduler)

func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func NewScheduler(storage storage.Storage, reminder Reminder, hour, daysAhead int, options ...Option) *Scheduler {
	scheduler := &Scheduler{
		storage:   storage,
		reminder:  reminder,
		clock:     systemClock{},
		hour:      hour,
		daysAhead: daysAhead,
	}

	for _, option := range options {
		option(scheduler)
	}

	return scheduler
}

// NextFire is the first moment at hour:00 strictly after now.
func NextFire(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// Run scans once a day at the configured hour until ctx is done. A process
// started after today's hour waits for tomorrow.
func (s *Scheduler) Run(ctx context.Context) error {
	zap.L().Info("starting reminder scheduler", zap.Int("hour", s.hour), zap.Int("days_ahead", s.daysAhead))

	for {
		now := s.clock.Now()
		next := NextFire(now, s.hour)

		zap.L().Debug("next reminder scan", zap.Time("at", next))

		if err := s.clock.Sleep(ctx, next.Sub(now)); err != nil {
			zap.L().Info("stopping reminder scheduler")
			return nil
		}

		now = s.clock.Now()
		if now.Before(next) {
			continue
		}

		day := now.Format(dayLayout)
		if day == s.lastRun {
			continue
		}

		s.lastRun = day

		// A started scan is finished even if shutdown begins meanwhile.
		result, err := s.Scan(context.WithoutCancel(ctx), now)
		if err != nil {
			zap.L().Error("error reminder scan", zap.Error(err))
			continue
		}

		zap.L().Info(
			"reminder scan finished",
			zap.String("target", result.Target.Format(dayLayout)),
			zap.Int("found", result.Found),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
		)
	}
}

// Scan reminds every completed, not yet reminded order expiring daysAhead
// days after day. One failed order does not stop the others.
func (s *Scheduler) Scan(ctx context.Context, day time.Time) (ScanResult, error) {
	target := day.AddDate(0, 0, s.daysAhead)
	result := ScanResult{Target: target}

	orders, err := s.storage.GetExpiringOrders(ctx, target)
	if err != nil {
		return result, fmt.Errorf("error get expiring orders: %w", err)
	}

	result.Found = len(orders)

	for _, order := range orders {
		if err := s.reminder.RemindRenewal(ctx, order, s.daysAhead); err != nil {
			zap.L().Warn("error send reminder", zap.Int64("order_id", order.ID), zap.Error(err))
			result.Failed++
			continue
		}

		marked, err := s.storage.MarkOrderReminded(ctx, order.ID)
		if err != nil {
			zap.L().Error("error mark order reminded", zap.Int64("order_id", order.ID), zap.Error(err))
			result.Failed++
			continue
		}

		if marked {
			result.Sent++
		}
	}

	return result, nil
}
