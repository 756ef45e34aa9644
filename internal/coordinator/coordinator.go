// Package coordinator tracks the lifecycle of parallel workers and the
// global stop flag they share.
//
// Any worker that confirms the completion token calls SignalStop. The flag
// never resets; the other workers see it between turns and wind down at
// their next safe point. Each worker writes only its own status, and the
// supervisor reads them all.
package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/afkcode/internal/logging"
)

// StopCoordinator is safe for concurrent use.
type StopCoordinator struct {
	stop atomic.Bool

	mu       sync.Mutex
	statuses []Status
	// changed is closed and replaced on every mutation, waking all waiters.
	changed chan struct{}

	logger *logging.Logger
}

// New creates a coordinator for workers 0..workers-1, all Running.
func New(workers int, logger *logging.Logger) *StopCoordinator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &StopCoordinator{
		statuses: make([]Status, max(workers, 0)),
		changed:  make(chan struct{}),
		logger:   logger.WithPhase("coordinator"),
	}
}

// Workers returns the fixed worker count.
func (c *StopCoordinator) Workers() int {
	return len(c.statuses)
}

// notifyLocked wakes waiters. c.mu must be held.
func (c *StopCoordinator) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// update applies fn to worker id's status under the lock and notifies.
// Unknown ids are ignored.
func (c *StopCoordinator) update(id int, fn func(*Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id < 0 || id >= len(c.statuses) {
		c.logger.Warn("status update for unknown worker", "worker", id)
		return
	}
	fn(&c.statuses[id])
	c.notifyLocked()
}

// SignalStop raises the global stop flag and completes worker id with
// StopConfirmed.
func (c *StopCoordinator) SignalStop(id int) {
	c.stop.Store(true)
	c.logger.Info("stop signaled", "worker", id)
	c.update(id, func(s *Status) {
		*s = Status{State: Completed, Result: StopConfirmedResult()}
	})
}

// ShouldStop reports whether any worker has signaled stop.
func (c *StopCoordinator) ShouldStop() bool {
	return c.stop.Load()
}

// MarkIterationStart returns a worker that is not Completed to Running.
func (c *StopCoordinator) MarkIterationStart(id int) {
	c.update(id, func(s *Status) {
		if s.State != Completed {
			s.State = Running
		}
	})
}

// MarkIterationComplete moves a Running worker to FinishingIteration.
func (c *StopCoordinator) MarkIterationComplete(id int) {
	c.update(id, func(s *Status) {
		if s.State == Running {
			s.State = FinishingIteration
		}
	})
}

// MarkCompleted completes worker id with result. It overwrites any
// earlier state, including an earlier completion.
func (c *StopCoordinator) MarkCompleted(id int, result Result) {
	c.logger.Debug("worker completed", "worker", id, "result", result.String())
	c.update(id, func(s *Status) {
		*s = Status{State: Completed, Result: result}
	})
}

// IsCompleted reports whether worker id is Completed.
func (c *StopCoordinator) IsCompleted(id int) bool {
	return c.Status(id).State == Completed
}

// Status returns worker id's status. Unknown ids report Running.
func (c *StopCoordinator) Status(id int) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id < 0 || id >= len(c.statuses) {
		return Status{}
	}
	return c.statuses[id]
}

// Statuses returns a snapshot indexed by worker id.
func (c *StopCoordinator) Statuses() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Status(nil), c.statuses...)
}

// AllCompleted reports whether every worker is Completed.
func (c *StopCoordinator) AllCompleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.statuses {
		if s.State != Completed {
			return false
		}
	}
	return true
}

func (c *StopCoordinator) allSettledLocked() bool {
	for _, s := range c.statuses {
		if !s.Settled() {
			return false
		}
	}
	return true
}

// Changed returns a channel closed on the next status change.
func (c *StopCoordinator) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// WaitForAllComplete blocks until every worker is Completed or
// FinishingIteration, or timeout elapses. It reports whether all settled.
func (c *StopCoordinator) WaitForAllComplete(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if c.allSettledLocked() {
			c.mu.Unlock()
			return true
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			c.mu.Lock()
			settled := c.allSettledLocked()
			c.mu.Unlock()
			return settled
		}
	}
}
