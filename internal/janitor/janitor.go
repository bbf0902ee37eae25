// Package janitor purges expired cache entries on a cron schedule, so
// threads nobody reads do not keep stale data on disk forever.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"threadsync/pkg/logger"
	"threadsync/pkg/timeutil"
)

// ErrRunning is returned by RunImmediate when a sweep is already in progress.
var ErrRunning = errors.New("sweep already running")

// Sweeper removes expired entries and reports how many it removed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Janitor struct {
	sweeper Sweeper
	cron    string

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error

	// after is swapped in tests
	after func(time.Duration) <-chan time.Time
}

func New(s Sweeper, cron string) (*Janitor, error) {
	if !gronx.New().IsValid(cron) {
		return nil, fmt.Errorf("invalid cron expression %q", cron)
	}
	return &Janitor{sweeper: s, cron: cron, after: time.After}, nil
}

// Start runs the schedule until ctx is done or the returned func is called.
func (j *Janitor) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("janitor_enabled", "cron", j.cron)
	go j.scheduleLoop(ctx)
	return cancel
}

// Next returns the first scheduled run strictly after t.
func (j *Janitor) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(j.cron, t, false)
}

// LastRun returns when the last sweep finished and its error.
func (j *Janitor) LastRun() (time.Time, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun, j.lastErr
}

func (j *Janitor) scheduleLoop(ctx context.Context) {
	for {
		next, err := j.Next(timeutil.Now())
		if err != nil {
			logger.Error("janitor_nexttick_failed", "cron", j.cron, "error", err)
			select {
			case <-j.after(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-j.after(time.Until(next)):
			if _, err := j.RunImmediate(ctx); err != nil && !errors.Is(err, ErrRunning) {
				logger.Error("janitor_run_error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunImmediate performs one sweep now unless one is already running.
func (j *Janitor) RunImmediate(ctx context.Context) (int, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return 0, ErrRunning
	}
	j.running = true
	j.mu.Unlock()

	start := timeutil.Now()
	logger.Info("janitor_run_start")
	purged, err := j.sweeper.Sweep(ctx)
	logger.Info("janitor_run_done", "purged", purged, "duration", time.Since(start), "error", err)

	j.mu.Lock()
	j.running = false
	j.lastRun = timeutil.Now()
	j.lastErr = err
	j.mu.Unlock()
	return purged, err
}
