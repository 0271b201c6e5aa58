// Package oraq implements a distributed admission-control coordinator:
// a library linked into many independent worker processes that enforces
// a bounded concurrency limit across all of them by sharing state in a
// Redis-compatible backing store. See Queue.
package oraq

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oraq-io/oraq/internal/base"
	"github.com/oraq-io/oraq/internal/errors"
	"github.com/oraq-io/oraq/internal/log"
	"github.com/oraq-io/oraq/internal/metrics"
	"github.com/oraq-io/oraq/internal/rdb"
)

// Config configures a Queue. Zero-value fields fall back to the
// defaults documented below, as do negative Ping and Timeout values; a
// nil Connection or a Concurrency below -1 is rejected synchronously by
// NewQueue as a *errors.ConfigError.
type Config struct {
	// ID is the queue identity shared by every worker that should
	// cooperate under the same concurrency limit. Defaults to "queue".
	ID string

	// Prefix is the key namespace prefix. Defaults to "oraq"; change
	// it only to avoid colliding with another application sharing the
	// same backing store.
	Prefix string

	// Connection holds the backing store connection parameters. Required.
	Connection *redis.Options

	// Concurrency is the target maximum number of jobs admitted to run
	// concurrently across all workers sharing (Prefix, ID). Zero
	// (the field's unset value) defaults to 1. -1 selects the
	// degenerate starvation-testing mode of spec Open Question O3: no
	// job is ever admitted by the concurrency check, so admission
	// relies entirely on the Timeout escape hatch. No other negative
	// value is accepted.
	Concurrency int

	// Ping is the keep-alive refresh period for admitted jobs and the
	// reassessment period for waiting jobs. Defaults to 60s.
	Ping time.Duration

	// Timeout is the soft wait deadline after which a still-pending job
	// is force-admitted regardless of apparent concurrency. It also
	// derives the pending-lock TTL. Defaults to 2h.
	Timeout time.Duration

	// Logger overrides the default stderr logger.
	Logger Logger
}

const (
	defaultConcurrency = 1
	defaultPing        = 60 * time.Second
	defaultTimeout     = 2 * time.Hour
)

func (c Config) withDefaults() (Config, error) {
	if c.ID == "" {
		c.ID = base.DefaultQueueID
	}
	if c.Prefix == "" {
		c.Prefix = base.DefaultPrefix
	}
	if c.Connection == nil {
		return Config{}, &errors.ConfigError{Field: "Connection", Reason: "must not be nil"}
	}
	switch {
	case c.Concurrency < -1:
		return Config{}, &errors.ConfigError{Field: "Concurrency", Reason: "must be >= -1"}
	case c.Concurrency == 0:
		c.Concurrency = defaultConcurrency
	case c.Concurrency == -1:
		c.Concurrency = 0 // O3: degenerate mode, admission relies on Timeout
	}
	if c.Ping <= 0 {
		c.Ping = defaultPing
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c, nil
}

// Queue is the library's public façade (C4): it owns the store and
// subscriber connections, drives each submitted job through the
// admission lifecycle, and exposes Submit, RemoveByID, and Shutdown.
type Queue struct {
	cfg    Config
	logger log.Base
	rdb    *rdb.RDB

	pendingKey    string
	processingKey string

	counters  *metrics.Counters
	collector *metrics.QueueCollector

	initOnce sync.Once
	sub      *subscriber
	wg       sync.WaitGroup

	mu       sync.Mutex
	shutdown bool
}

// NewQueue constructs a Queue from cfg. It validates cfg synchronously
// but does not connect to the backing store or subscribe to keyspace
// events until the first Submit call (spec §4.4 step 1).
func NewQueue(cfg Config) (*Queue, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	var logger log.Base
	if cfg.Logger != nil {
		logger = cfg.Logger
	} else {
		logger = log.NewLogger(nil)
	}

	client := redis.NewClient(cfg.Connection)
	r := rdb.NewRDB(client)

	pendingKey := base.PendingKey(cfg.Prefix, cfg.ID)
	processingKey := base.ProcessingKey(cfg.Prefix, cfg.ID)
	counters := &metrics.Counters{}

	q := &Queue{
		cfg:           cfg,
		logger:        logger,
		rdb:           r,
		pendingKey:    pendingKey,
		processingKey: processingKey,
		counters:      counters,
		collector:     metrics.NewQueueCollector(r, counters, cfg.Prefix, cfg.ID, pendingKey, processingKey),
		sub:           newSubscriber(logger, r, cfg.Connection.DB, cfg.Prefix, cfg.ID),
	}
	return q, nil
}

// Collector returns a prometheus.Collector reporting this queue's live
// depth and cumulative admission counters. Register it with a
// prometheus.Registry; it is safe to call before or after Shutdown.
func (q *Queue) Collector() *metrics.QueueCollector {
	return q.collector
}

// ensureSubscribed lazily enables keyspace notifications and starts the
// subscriber goroutine on first Submit, per spec §4.4 step 1. Neither
// step has a failure mode worth propagating to the caller: a rejected
// CONFIG SET is downgraded to the polling-only path (O4), and starting
// the subscriber only spawns a self-retrying goroutine.
func (q *Queue) ensureSubscribed(ctx context.Context) {
	q.initOnce.Do(func() {
		if err := q.rdb.ConfigureKeyspaceNotifications(ctx); err != nil {
			q.logger.Warn("could not enable keyspace notifications, falling back to polling: " + err.Error())
		}
		q.sub.start(&q.wg)
	})
}

// Submit enqueues job for admission, waits for it to be admitted under
// the queue's concurrency limit, executes it, and returns its result.
// See spec §4.4 for the full lifecycle.
func (q *Queue) Submit(job func(jobData interface{}) (interface{}, error), opts ...SubmitOption) (interface{}, error) {
	q.mu.Lock()
	down := q.shutdown
	q.mu.Unlock()
	if down {
		return nil, errors.ErrQueueShutdown
	}

	params, err := composeSubmitOptions(opts...)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	q.ensureSubscribed(ctx)

	jobID := params.jobID
	if jobID == "" {
		jobID, err = generateJobID()
		if err != nil {
			return nil, errors.NewStoreError("oraq.generateJobID", errors.Internal, err)
		}
	} else {
		conflict, err := q.rdb.Exists(ctx, base.LockKey(q.pendingKey, jobID))
		if err != nil {
			return nil, errors.NewStoreError("oraq.Submit", errors.Unknown, err)
		}
		if !conflict {
			conflict, err = q.rdb.Exists(ctx, base.LockKey(q.processingKey, jobID))
			if err != nil {
				return nil, errors.NewStoreError("oraq.Submit", errors.Unknown, err)
			}
		}
		if conflict {
			return nil, errors.ErrJobIDConflict
		}
	}

	pendingLockTTL := base.PendingLockTTL(q.cfg.Timeout)
	pendingLock := base.LockKey(q.pendingKey, jobID)
	if err := q.rdb.Enqueue(ctx, q.pendingKey, pendingLock, jobID, pendingLockTTL, params.lifo); err != nil {
		return nil, err
	}

	coord := newCoordinator(q.logger, q.rdb, q.counters, q.cfg.Prefix, q.cfg.ID, jobID, q.cfg.Concurrency, q.cfg.Timeout)
	q.sub.register(jobID, func(evt queueEvent) {
		q.onEvent(ctx, coord, jobID, evt)
	})

	coord.wait(q.cfg.Ping)
	<-coord.canRun.await()

	q.sub.unregister(jobID)
	coord.stopWait()

	coord.keepAlive(q.cfg.Ping)
	processingLock := base.LockKey(q.processingKey, jobID)
	defer func() {
		coord.stopKeepAlive()
		if err := q.rdb.Cleanup(ctx, q.processingKey, processingLock, jobID); err != nil {
			q.logger.Error("cleanup failed for job " + jobID + ": " + err.Error())
		}
	}()

	admitted, err := q.rdb.Transition(ctx, q.pendingKey, q.processingKey, pendingLock, jobID)
	if err != nil {
		return nil, err
	}
	if admitted {
		q.counters.IncAdmitted()
	} else {
		// The timeout escape released canRun without jobID being the
		// pending tail (O3, or a peer raced past it), so Transition was
		// a no-op: jobID and its lock are still sitting in pending.
		// Evict them here so §8 P2/P3 hold regardless of which path
		// admitted this job.
		if err := q.rdb.RemoveByID(ctx, q.pendingKey, pendingLock, jobID); err != nil {
			q.logger.Error("pending eviction failed for timeout-escaped job " + jobID + ": " + err.Error())
		}
	}

	result, jobErr := job(params.jobData)
	if jobErr != nil {
		return nil, jobErr
	}
	return result, nil
}

// onEvent implements the event-to-coordinator wiring of spec §4.5.
func (q *Queue) onEvent(ctx context.Context, coord *coordinator, jobID string, evt queueEvent) {
	switch evt.kind {
	case eventLockExpired:
		// Best-effort evict; redundant with the stuck-job sweep but
		// reduces latency.
		if evt.jobID != jobID {
			_ = q.rdb.RemoveByID(ctx, evt.queueKey, base.LockKey(evt.queueKey, evt.jobID), evt.jobID)
		}
		coord.wait(q.cfg.Ping)
	case eventQueueChanged:
		coord.wait(q.cfg.Ping)
	}
}

// RemoveByID removes jobID from the pending queue and deletes its
// pending-lock. It never touches the processing queue: a job already
// admitted must run to completion or be reclaimed by lock expiry.
// Idempotent.
func (q *Queue) RemoveByID(jobID string) error {
	ctx := context.Background()
	lockKey := base.LockKey(q.pendingKey, jobID)
	return q.rdb.RemoveByID(ctx, q.pendingKey, lockKey, jobID)
}

// Shutdown stops the subscriber and closes the store connection.
// In-flight Submit calls are abandoned; callers should await outstanding
// submits before calling Shutdown.
func (q *Queue) Shutdown() error {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return nil
	}
	q.shutdown = true
	q.mu.Unlock()

	q.sub.shutdown()
	q.wg.Wait()
	return q.rdb.Close()
}
