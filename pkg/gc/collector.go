// Package gc periodically purges expired entries from expiring stores.
//
// Decision caches only hide expired entries on read; without a sweep a
// long-running gateway would keep every credential it ever saw. The
// collector walks every registered target at a fixed interval and asks it
// to drop what has expired.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittodav/internal/logger"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = time.Minute

// Sweeper is anything that can drop its expired entries.
type Sweeper interface {
	Sweep(now time.Time) (int, error)
}

// Target is a named Sweeper.
type Target struct {
	Name    string
	Sweeper Sweeper
}

// Collector performs periodic sweeps over its targets.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	targets []Target
	config  Config
	now     func() time.Time

	mu       sync.Mutex // serializes runs
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config contains configuration for the collector.
type Config struct {
	// Enabled controls whether periodic sweeps run (default: true when
	// built from configuration)
	Enabled bool

	// Interval is how often to sweep (default: 1m)
	Interval time.Duration

	// DryRun counts expired entries without removing them. Only targets
	// that also implement Counter honour it; others are skipped.
	DryRun bool
}

// Counter is implemented by targets able to report expired entries
// without removing them.
type Counter interface {
	CountExpired(now time.Time) (int, error)
}

// NewCollector creates a collector. Call Start to begin sweeping.
//
// Parameters:
//   - config: collector configuration
//   - targets: stores to sweep, in order
func NewCollector(config Config, targets ...Target) *Collector {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	return &Collector{
		targets: targets,
		config:  config,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins background sweeping. Subsequent calls are no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Cache sweeping disabled")
		return
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return
	}
	c.started = true

	logger.Info("Starting cache sweeper: interval=%s targets=%d dry_run=%v",
		c.config.Interval, len(c.targets), c.config.DryRun)

	go c.worker()
}

// Stop stops the collector and waits for an in-flight sweep to finish.
// Safe to call multiple times.
//
// Returns:
//   - error: ctx.Err() if the context expires before the worker exits
func (c *Collector) Stop(ctx context.Context) error {
	c.startMu.Lock()
	started := c.started
	c.startMu.Unlock()
	if !started {
		return nil
	}

	logger.Info("Stopping cache sweeper...")
	c.stopOnce.Do(func() { close(c.stopCh) })

	select {
	case <-c.doneCh:
		logger.Info("Cache sweeper stopped successfully")
		return nil
	case <-ctx.Done():
		logger.Warn("Cache sweeper shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs one sweep immediately and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Debug("Running cache sweep (manual trigger)...")
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := c.collect(context.Background())
			if err != nil {
				logger.Error("Cache sweep failed: %v", err)
			} else if stats.RemovedCount > 0 || stats.ExpiredCount > 0 {
				logger.Debug("Cache sweep completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect sweeps every target once. A failing target does not stop the
// others; the first error is returned after all targets ran.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := &Stats{StartTime: time.Now()}
	now := c.now()
	var firstErr error

	for _, target := range c.targets {
		if err := ctx.Err(); err != nil {
			stats.EndTime = time.Now()
			return stats, err
		}

		var (
			n   int
			err error
		)
		if c.config.DryRun {
			counter, ok := target.Sweeper.(Counter)
			if !ok {
				continue
			}
			n, err = counter.CountExpired(now)
			stats.ExpiredCount += uint64(n)
		} else {
			n, err = target.Sweeper.Sweep(now)
			stats.RemovedCount += uint64(n)
		}
		stats.TargetCount++

		if err != nil {
			stats.FailedCount++
			logger.Warn("Cache sweep of %s failed: %v", target.Name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("sweep %s: %w", target.Name, err)
			}
		}
	}

	stats.EndTime = time.Now()
	return stats, firstErr
}

// Stats contains statistics from one sweep.
type Stats struct {
	StartTime    time.Time // When the sweep started
	EndTime      time.Time // When the sweep ended
	TargetCount  uint64    // Targets visited
	RemovedCount uint64    // Entries removed
	ExpiredCount uint64    // Entries found expired in dry-run mode
	FailedCount  uint64    // Targets whose sweep failed
}

// Duration returns the total sweep duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the sweep.
func (s *Stats) Summary() string {
	return fmt.Sprintf("targets=%d removed=%d expired=%d failed=%d duration=%s",
		s.TargetCount, s.RemovedCount, s.ExpiredCount, s.FailedCount, s.Duration())
}
