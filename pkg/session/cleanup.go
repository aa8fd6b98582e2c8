package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/shopagent/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepSchedule runs the sweep once a minute
const DefaultSweepSchedule = "@every 1m"

// SweepJob removes expired entries from one store and reports how many went
type SweepJob struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// StoreSweepJob sweeps a session store and refreshes the active sessions gauge
func StoreSweepJob(store Store) SweepJob {
	return SweepJob{
		Name: "sessions",
		Run: func(ctx context.Context) (int, error) {
			removed, err := store.Sweep(ctx)
			if err != nil {
				return 0, err
			}
			observability.RecordSessionsSwept(removed)
			if counter, ok := store.(Counter); ok {
				if n, err := counter.Count(ctx); err == nil {
					observability.SetActiveSessions(n)
				}
			}
			return removed, nil
		},
	}
}

// Sweeper runs expiry sweeps on a cron schedule, off the request path
type Sweeper struct {
	cron     *cron.Cron
	schedule string
	jobs     []SweepJob
	timeout  time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a new sweeper. An empty schedule uses DefaultSweepSchedule.
func NewSweeper(schedule string, logger zerolog.Logger, jobs ...SweepJob) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return &Sweeper{
		cron:     cron.New(),
		schedule: schedule,
		jobs:     jobs,
		timeout:  30 * time.Second,
		logger:   logger,
	}, nil
}

// Start schedules the sweep
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.SweepOnce(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", s.schedule).Int("jobs", len(s.jobs)).Msg("Session sweeper started")
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("sweeper is not running")
	}
	<-s.cron.Stop().Done()
	s.running = false

	s.logger.Info().Msg("Session sweeper stopped")
	return nil
}

// SweepOnce runs every job once and returns the total number of removed entries
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	total := 0
	for _, job := range s.jobs {
		removed, err := job.Run(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("job", job.Name).Msg("Sweep failed")
			continue
		}
		if removed > 0 {
			s.logger.Debug().Str("job", job.Name).Int("removed", removed).Msg("Expired entries swept")
		}
		total += removed
	}
	return total
}
