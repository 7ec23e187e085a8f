package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// OverdueMarker flags credit purchases left unpaid for longer than dueAfter.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, dueAfter time.Duration) (int, error)
}

type Scheduler struct {
	sched  *cron.Cron
	logger *zap.Logger
}

func New(logger *zap.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		sched:  cron.New(cron.WithLocation(loc), cron.WithParser(cronParser)),
		logger: logger,
	}
}

// AddOverdueSweep runs marker on spec, e.g. "@daily" or "0 30 6 * * *".
func (s *Scheduler) AddOverdueSweep(spec string, marker OverdueMarker, dueAfter time.Duration) error {
	if dueAfter <= 0 {
		return fmt.Errorf("overdue sweep: due period must be positive, got %s", dueAfter)
	}
	_, err := s.sched.AddFunc(spec, func() {
		runOverdueSweep(context.Background(), marker, dueAfter, s.logger)
	})
	if err != nil {
		return fmt.Errorf("overdue sweep %q: %w", spec, err)
	}
	s.logger.Info("overdue sweep scheduled", zap.String("spec", spec), zap.Duration("due_after", dueAfter))
	return nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.sched.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

func runOverdueSweep(ctx context.Context, marker OverdueMarker, dueAfter time.Duration, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("overdue sweep panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	count, err := marker.MarkOverdue(ctx, dueAfter)
	if err != nil {
		logger.Error("overdue sweep failed", zap.Error(err))
		return
	}
	logger.Info("overdue sweep finished", zap.Int("marked", count))
}
