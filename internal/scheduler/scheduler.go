package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// Runner is the job the scheduler repeats; *analysis.Service satisfies it
// through a small adapter in main.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) RunOnce(ctx context.Context) error { return f(ctx) }

// Scheduler periodically re-runs the NDVI comparison.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	timeout   time.Duration
}

// New creates a new Scheduler. Each run gets its own context bounded by timeout.
func New(interval, timeout time.Duration, runner Runner) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		timeout:   timeout,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	timeout := s.timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	_, err := s.scheduler.Every(interval).Do(func() {
		log.Info("scheduler: running ndvi comparison job")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.runner.RunOnce(ctx); err != nil {
			log.WithError(err).Error("scheduler: comparison failed")
			return
		}
		log.Info("scheduler: completed ndvi comparison job")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
