package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one scheduled unit of work
type JobFunc func(ctx context.Context) error

// Scheduler runs jobs on cron schedules. A job whose previous run is still in
// progress is skipped rather than queued.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// New creates a scheduler evaluating schedules in UTC
func New(logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Add registers fn under a cron schedule ("@every 5m", "0 0 * * *", ...)
func (s *Scheduler) Add(name, schedule string, fn JobFunc) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		s.logger.Debug("Scheduled job started", slog.String("job", name))

		if err := fn(s.ctx); err != nil {
			s.logger.Error("Scheduled job failed",
				slog.String("job", name),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)
			return
		}

		s.logger.Info("Scheduled job finished",
			slog.String("job", name),
			slog.Duration("duration", time.Since(start)),
		)
	})
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q for %s: %w", schedule, name, err)
	}

	s.logger.Info("Job scheduled",
		slog.String("job", name),
		slog.String("schedule", schedule),
	)

	return id, nil
}

// Start begins firing jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels running jobs' context once ctx expires,
// and waits for in-flight runs to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done.Done()
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// cronLogger adapts slog to cron's logger interface
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
