package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepFunc is one maintenance pass; it returns how many entries it removed.
type SweepFunc func() int

type sweepJob struct {
	name string
	fn   SweepFunc
}

// Sweeper runs the idle-session expiry sweep on a cron schedule, with an
// explicit start/stop lifecycle tied to process startup and shutdown.
// Additional maintenance passes (workflow history eviction, for one) can
// ride on the same schedule via OnSweep.
type Sweeper struct {
	store       *Store
	idleTimeout time.Duration
	schedule    string
	cron        *cron.Cron
	extra       []sweepJob
	logger      *slog.Logger
}

// NewSweeper creates a sweeper. The schedule is a cron expression or
// descriptor such as "@every 1m".
func NewSweeper(logger *slog.Logger, store *Store, idleTimeout time.Duration, schedule string) *Sweeper {
	return &Sweeper{
		store:       store,
		idleTimeout: idleTimeout,
		schedule:    schedule,
		logger:      logger.With("module", "session_sweeper"),
	}
}

// OnSweep registers an extra maintenance pass carried on the same schedule.
// Must be called before Start.
func (s *Sweeper) OnSweep(name string, fn SweepFunc) {
	s.extra = append(s.extra, sweepJob{name: name, fn: fn})
}

func (s *Sweeper) Start() error {
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron = cron.New()

	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Started sweeper", "schedule", s.schedule, "idle_timeout", s.idleTimeout)

	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron = nil

	s.logger.Info("Stopped sweeper")
}

func (s *Sweeper) sweep() {
	closed := s.store.SweepExpired(s.idleTimeout)
	s.logger.Debug("Sweep finished", "sessions_closed", closed)

	for _, job := range s.extra {
		removed := job.fn()
		s.logger.Debug("Maintenance pass finished", "job", job.name, "removed", removed)
	}
}
