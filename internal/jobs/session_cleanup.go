// session_cleanup.go implements the SessionCleanupJob, which periodically deletes admin
// sessions past their absolute expiry or idle timeout. Verification already rejects
// such sessions on use; the job keeps abandoned rows from accumulating.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stagehand/adminauth/internal/safego"
	"github.com/stagehand/adminauth/internal/telemetry"
)

// DefaultSessionCleanupInterval is used when no interval is configured.
const DefaultSessionCleanupInterval = 10 * time.Minute

// SessionPurger deletes unusable sessions. *auth.SessionManager satisfies it.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionCleanupJob runs SessionPurger.PurgeExpired on a fixed interval.
type SessionCleanupJob struct {
	purger   SessionPurger
	interval time.Duration
	clock    clock.Clock

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewSessionCleanupJob creates a job. A non-positive interval selects the default and
// a nil clk the wall clock.
func NewSessionCleanupJob(purger SessionPurger, interval time.Duration, clk clock.Clock) *SessionCleanupJob {
	if interval <= 0 {
		interval = DefaultSessionCleanupInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &SessionCleanupJob{
		purger:   purger,
		interval: interval,
		clock:    clk,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs one purge immediately and then one per interval in the background. The
// loop exits when ctx is cancelled or Stop is called. Later calls are no-ops.
func (j *SessionCleanupJob) Start(ctx context.Context) {
	if !j.started.CompareAndSwap(false, true) {
		return
	}
	ticker := j.clock.Ticker(j.interval)
	slog.Info("session cleanup job started", "interval", j.interval)

	safego.Go(func() {
		defer close(j.done)
		defer ticker.Stop()

		j.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-j.stopChan:
				slog.Info("session cleanup job stopped")
				return
			case <-ctx.Done():
				slog.Info("session cleanup job context cancelled")
				return
			}
		}
	})
}

// Stop signals the loop to exit and waits for it. It is safe to call more than once.
func (j *SessionCleanupJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
	if j.started.Load() {
		<-j.done
	}
}

// RunOnce performs a single purge and returns the number of sessions removed.
func (j *SessionCleanupJob) RunOnce(ctx context.Context) int64 {
	n, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		slog.Error("session cleanup failed", "error", err)
		return 0
	}
	if n > 0 {
		telemetry.AdminSessionsPurgedTotal.Add(float64(n))
		slog.Info("purged admin sessions", "count", n)
	}
	return n
}
