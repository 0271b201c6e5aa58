package oraq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oraq-io/oraq/internal/base"
	"github.com/oraq-io/oraq/internal/log"
	"github.com/oraq-io/oraq/internal/metrics"
	"github.com/oraq-io/oraq/internal/rdb"
)

// latch is a single-shot broadcast signal: multiple awaiters all
// observe release, and releasing twice is a no-op.
type latch struct {
	once sync.Once
	ch   chan struct{}
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

func (l *latch) release() {
	l.once.Do(func() { close(l.ch) })
}

func (l *latch) await() <-chan struct{} {
	return l.ch
}

// coordinator runs the admission protocol for one in-flight job. It is
// exclusively owned by a single Submit call: created at enqueue,
// destroyed at completion.
type coordinator struct {
	logger      log.Base
	rdb         *rdb.RDB
	counters    *metrics.Counters
	prefix, id  string
	jobID       string
	concurrency int
	timeout     time.Duration

	pendingKey        string
	processingKey     string
	processingLockTTL time.Duration

	canRun *latch

	mu             sync.Mutex
	startTime      time.Time
	waitDone       chan struct{}
	waitTimer      *time.Timer
	keepAliveDone  chan struct{}
	keepAliveTimer *time.Timer
}

func newCoordinator(logger log.Base, r *rdb.RDB, counters *metrics.Counters, prefix, id, jobID string, concurrency int, timeout time.Duration) *coordinator {
	pendingKey := base.PendingKey(prefix, id)
	processingKey := base.ProcessingKey(prefix, id)
	return &coordinator{
		logger:        logger,
		rdb:           r,
		counters:      counters,
		prefix:        prefix,
		id:            id,
		jobID:         jobID,
		concurrency:   concurrency,
		timeout:       timeout,
		pendingKey:    pendingKey,
		processingKey: processingKey,
		canRun:        newLatch(),
	}
}

// wait (re)arms periodic re-assessment at pollInterval and performs one
// assessment immediately, per spec §4.3.
func (c *coordinator) wait(pollInterval time.Duration) {
	c.mu.Lock()
	if c.waitDone != nil {
		close(c.waitDone)
		if c.waitTimer != nil {
			c.waitTimer.Stop()
		}
	}
	done := make(chan struct{})
	c.waitDone = done
	c.mu.Unlock()

	c.assess(context.Background())
	if c.canRunReleased() {
		return
	}

	go func() {
		timer := time.NewTimer(pollInterval)
		c.mu.Lock()
		c.waitTimer = timer
		c.mu.Unlock()
		defer timer.Stop()
		for {
			select {
			case <-done:
				return
			case <-timer.C:
				c.assess(context.Background())
				if c.canRunReleased() {
					return
				}
				timer.Reset(pollInterval)
			}
		}
	}()
}

func (c *coordinator) canRunReleased() bool {
	select {
	case <-c.canRun.await():
		return true
	default:
		return false
	}
}

// stopWait cancels the re-assessment timer.
func (c *coordinator) stopWait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waitDone != nil {
		close(c.waitDone)
		c.waitDone = nil
	}
	if c.waitTimer != nil {
		c.waitTimer.Stop()
		c.waitTimer = nil
	}
}

// keepAlive refreshes the processing-lock now and re-arms to refresh
// every pingInterval, per spec §4.3.
func (c *coordinator) keepAlive(pingInterval time.Duration) {
	c.mu.Lock()
	c.processingLockTTL = base.ProcessingLockTTL(pingInterval)
	lockKey := base.LockKey(c.processingKey, c.jobID)
	ttl := c.processingLockTTL
	if c.keepAliveDone != nil {
		close(c.keepAliveDone)
	}
	done := make(chan struct{})
	c.keepAliveDone = done
	c.mu.Unlock()

	c.refresh(lockKey, ttl)

	go func() {
		timer := time.NewTimer(pingInterval)
		c.mu.Lock()
		c.keepAliveTimer = timer
		c.mu.Unlock()
		defer timer.Stop()
		for {
			select {
			case <-done:
				return
			case <-timer.C:
				c.refresh(lockKey, ttl)
				timer.Reset(pingInterval)
			}
		}
	}()
}

func (c *coordinator) refresh(lockKey string, ttl time.Duration) {
	// Keep-alive refresh errors are swallowed: the next tick retries,
	// and persistent failure lets the lock expire so a peer reaps the
	// job (spec §7).
	if err := c.rdb.Refresh(context.Background(), lockKey, ttl); err != nil {
		c.logger.Error(fmt.Sprintf("could not refresh processing lock for job %s: %v", c.jobID, err))
	}
}

// stopKeepAlive cancels the processing-lock refresh timer.
func (c *coordinator) stopKeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keepAliveDone != nil {
		close(c.keepAliveDone)
		c.keepAliveDone = nil
	}
	if c.keepAliveTimer != nil {
		c.keepAliveTimer.Stop()
		c.keepAliveTimer = nil
	}
}

// assess implements the six-step admission assessment of spec §4.3.
func (c *coordinator) assess(ctx context.Context) {
	c.mu.Lock()
	if c.startTime.IsZero() {
		c.startTime = time.Now()
	}
	started := c.startTime
	c.mu.Unlock()

	if time.Since(started) > c.timeout {
		// Anti-starvation escape hatch: admit regardless of apparent
		// concurrency once the global timeout has elapsed.
		if c.counters != nil {
			c.counters.IncTimeoutEscape()
		}
		c.canRun.release()
		return
	}

	if stuck, err := c.rdb.Sweep(ctx, c.pendingKey); err != nil {
		c.logger.Error(fmt.Sprintf("sweep pending failed for job %s: %v", c.jobID, err))
	} else if len(stuck) > 0 {
		c.logger.Debug(fmt.Sprintf("reaped stuck pending jobs: %v", stuck))
		if c.counters != nil {
			c.counters.AddStuckReaped(uint64(len(stuck)))
		}
	}
	if stuck, err := c.rdb.Sweep(ctx, c.processingKey); err != nil {
		c.logger.Error(fmt.Sprintf("sweep processing failed for job %s: %v", c.jobID, err))
	} else if len(stuck) > 0 {
		c.logger.Debug(fmt.Sprintf("reaped stuck processing jobs: %v", stuck))
		if c.counters != nil {
			c.counters.AddStuckReaped(uint64(len(stuck)))
		}
	}

	n, tail, err := c.rdb.Assess(ctx, c.processingKey, c.pendingKey)
	if err != nil {
		c.logger.Error(fmt.Sprintf("assess failed for job %s: %v", c.jobID, err))
		return
	}
	if n < int64(c.concurrency) && tail == c.jobID {
		c.canRun.release()
	}
}
