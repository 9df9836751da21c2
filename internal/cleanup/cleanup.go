// Package cleanup runs the periodic maintenance job: listing expiry,
// promotion end, and removal of stale tokens, sessions and notifications.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/misiones-arrienda/arrienda/internal/metrics"
)

// NotificationRetention is how long read notifications are kept.
const NotificationRetention = 90 * 24 * time.Hour

// ListingExpirer expires due listings and notifies their owners.
type ListingExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// Unfeaturer ends promotions that ran out.
type Unfeaturer interface {
	UnfeatureDue(now time.Time) (int64, error)
}

// ExpiredDeleter removes rows that expired before now.
type ExpiredDeleter interface {
	DeleteExpired(now time.Time) (int64, error)
}

// NotificationPurger deletes old read notifications.
type NotificationPurger interface {
	PurgeReadBefore(ctx context.Context, t time.Time) (int64, error)
}

// Job is the maintenance job.
type Job struct {
	Listings      ListingExpirer
	Promotions    Unfeaturer
	Tokens        ExpiredDeleter
	Sessions      ExpiredDeleter
	Notifications NotificationPurger

	// Serialises runs from the scheduler and the cron endpoint.
	mu sync.Mutex
}

// Report counts what a run changed.
type Report struct {
	ListingsExpired     int       `json:"listings_expired"`
	PromotionsEnded     int64     `json:"promotions_ended"`
	TokensDeleted       int64     `json:"tokens_deleted"`
	SessionsDeleted     int64     `json:"sessions_deleted"`
	NotificationsPurged int64     `json:"notifications_purged"`
	RanAt               time.Time `json:"ran_at"`
}

// Run performs every step. A failing step does not stop the others; their
// errors are joined.
func (j *Job) Run(ctx context.Context, now time.Time) (*Report, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now = now.UTC()
	rep := &Report{RanAt: now}
	var errs []error

	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("expiring listings", func() (err error) {
		rep.ListingsExpired, err = j.Listings.ExpireDue(ctx, now)
		return err
	})
	step("ending promotions", func() (err error) {
		rep.PromotionsEnded, err = j.Promotions.UnfeatureDue(now)
		return err
	})
	step("deleting tokens", func() (err error) {
		rep.TokensDeleted, err = j.Tokens.DeleteExpired(now)
		return err
	})
	step("deleting sessions", func() (err error) {
		rep.SessionsDeleted, err = j.Sessions.DeleteExpired(now)
		return err
	})
	step("purging notifications", func() (err error) {
		rep.NotificationsPurged, err = j.Notifications.PurgeReadBefore(ctx, now.Add(-NotificationRetention))
		return err
	})

	err := errors.Join(errs...)
	metrics.CleanupRun(err)
	return rep, err
}

// Scheduler runs a Job on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	job  *Job
}

// NewScheduler parses spec (standard five-field syntax or a descriptor such
// as "@hourly") and prepares the schedule.
func NewScheduler(spec string, job *Job) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		job:  job,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("parsing cleanup schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	start := time.Now()
	rep, err := s.job.Run(context.Background(), start)
	if err != nil {
		slog.Error("cleanup failed", "error", err)
	}
	slog.Info("cleanup finished",
		"listings_expired", rep.ListingsExpired,
		"promotions_ended", rep.PromotionsEnded,
		"tokens_deleted", rep.TokensDeleted,
		"sessions_deleted", rep.SessionsDeleted,
		"notifications_purged", rep.NotificationsPurged,
		"duration", time.Since(start),
	)
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the schedule and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
