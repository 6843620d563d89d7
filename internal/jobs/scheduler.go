// Package jobs contains the periodic maintenance jobs: audit digest
// flushing, retention and reconciliation, pre-deletion warnings and a
// counter sanity check. Each job is safe to run concurrently with user
// traffic and with the other jobs.
package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs the jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler creates an empty scheduler.
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Add registers a job under the given cron expression. The job is wrapped
// with panic recovery and run-duration logging; one job blowing up must not
// take the scheduler down.
func (s *Scheduler) Add(name, spec string, job func()) error {
	wrapped := func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Str("job", name).Any("panic", r).Msg("job panicked")
			}
		}()
		s.log.Debug().Str("job", name).Msg("job started")
		job()
		s.log.Info().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
	}

	if _, err := s.cron.AddFunc(spec, wrapped); err != nil {
		return fmt.Errorf("schedule job %s (%q): %w", name, spec, err)
	}
	return nil
}

// Start begins running scheduled jobs in their own goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
