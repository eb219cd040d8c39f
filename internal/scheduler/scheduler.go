// Package scheduler polls for communities whose newsletter time has
// passed and runs the pipeline for each, at most once per community per
// day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"snitch/internal/config"
	"snitch/internal/core"
	"snitch/internal/logger"
	"snitch/internal/persistence"
)

// Runner generates and dispatches one community's newsletter. The dispatch
// claim for (community, date) is already held when Run is called; Run owns
// transitioning it to dispatched, failed, or released.
type Runner interface {
	Run(ctx context.Context, community *core.Community, date string) error
}

// Options hold scheduler tunables.
type Options struct {
	PollInterval  time.Duration
	MaxConcurrent int
}

// FromConfig builds Options from the scheduler config section.
func FromConfig(c config.Scheduler) Options {
	return Options{
		PollInterval:  config.Duration(c.PollInterval, 5*time.Minute),
		MaxConcurrent: c.MaxConcurrent,
	}
}

// DefaultOptions returns the standard scheduler tuning.
func DefaultOptions() Options {
	return Options{PollInterval: 5 * time.Minute, MaxConcurrent: 4}
}

// Scheduler ticks on a cron interval, finds due communities, claims their
// dispatch slot, and fans runs out to a bounded worker set.
type Scheduler struct {
	db     persistence.Database
	runner Runner
	opts   Options
	cron   *cron.Cron
	now    func() time.Time
	sem    chan struct{}
	wg     sync.WaitGroup
	log    *slog.Logger
}

// New creates a scheduler.
func New(db persistence.Database, runner Runner, opts Options) *Scheduler {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Scheduler{
		db:     db,
		runner: runner,
		opts:   opts,
		now:    time.Now,
		sem:    make(chan struct{}, opts.MaxConcurrent),
		log:    logger.Get(),
	}
}

// Start begins the poll loop. It returns immediately; ticks run on the
// cron goroutine until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.opts.PollInterval)
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule poll: %w", err)
	}
	s.cron.Start()
	s.log.Info("Scheduler started", "poll_interval", s.opts.PollInterval,
		"max_concurrent", s.opts.MaxConcurrent)

	// First tick right away so a restart never waits a full interval.
	go s.Tick(ctx)
	return nil
}

// Stop halts the poll loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// Tick runs one poll pass: every enabled community whose newsletter time
// has passed today and that has no dispatch record yet gets claimed and
// run. The claim insert is the race barrier; overlapping ticks are safe.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()
	date := now.Format("2006-01-02")

	communities, err := s.db.Communities().ListEnabled(ctx)
	if err != nil {
		s.log.Warn("Poll pass could not list communities", "error", err)
		return
	}

	for _, community := range communities {
		community := community
		if !Due(&community, now) {
			continue
		}

		existing, err := s.db.Dispatches().GetForDate(ctx, community.ID, date)
		if err != nil {
			s.log.Warn("Due-check lookup failed", "community_id", community.ID, "error", err)
			continue
		}
		if existing != nil {
			continue // already dispatched, failed, or running today
		}

		if err := s.db.Dispatches().Claim(ctx, community.ID, date); err != nil {
			if !errors.Is(err, core.ErrDuplicateDispatch) {
				s.log.Warn("Dispatch claim failed", "community_id", community.ID, "error", err)
			}
			continue // another tick or instance won the claim
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sem <- struct{}{}
			defer func() { <-s.sem }()

			if err := s.runner.Run(ctx, &community, date); err != nil {
				logger.Error("Newsletter run failed", err,
					"community_id", community.ID, "date", date)
			}
		}()
	}
}

// Due reports whether the community's newsletter time has passed at the
// given instant. Malformed newsletter times are never due.
func Due(community *core.Community, now time.Time) bool {
	hour, minute, err := ParseNewsletterTime(community.NewsletterTime)
	if err != nil {
		return false
	}
	dueAt := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	return !now.Before(dueAt)
}

// ParseNewsletterTime parses an "HH:MM" time of day.
func ParseNewsletterTime(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid newsletter time %q: %w", value, err)
	}
	return t.Hour(), t.Minute(), nil
}
