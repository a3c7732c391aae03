package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler fires an action periodically, either every fixed interval
// ("6h") or on a cron expression ("0 */6 * * *"). A firing that comes due
// while the previous one still runs is rescheduled, never stacked.
type Scheduler struct {
	spec   string
	logger *slog.Logger
	def    gocron.JobDefinition
}

// NewScheduler parses spec. Durations must be at least one minute.
func NewScheduler(spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{spec: spec, logger: logger}
	if d, err := time.ParseDuration(spec); err == nil {
		if d < time.Minute {
			return nil, fmt.Errorf("watch: schedule interval %s below 1m", d)
		}
		s.def = gocron.DurationJob(d)
	} else {
		s.def = gocron.CronJob(spec, false)
	}
	return s, nil
}

// Run blocks until ctx is cancelled, calling action on every firing.
// Errors from action are logged. An invalid cron expression is returned
// before anything runs.
func (s *Scheduler) Run(ctx context.Context, action func(context.Context) error) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("watch: scheduler: %w", err)
	}

	job, err := sched.NewJob(s.def,
		gocron.NewTask(func() {
			s.logger.Info("watch: scheduled run", "schedule", s.spec)
			if err := action(ctx); err != nil {
				s.logger.Error("watch: scheduled run failed", "error", err)
			}
		}),
		gocron.WithName("prerender-run"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		sched.Shutdown()
		return fmt.Errorf("watch: schedule %q: %w", s.spec, err)
	}

	sched.Start()
	if next, err := job.NextRun(); err == nil {
		s.logger.Info("watch: schedule started", "schedule", s.spec, "next_run", next)
	}

	<-ctx.Done()
	return sched.Shutdown()
}
