// Package rdb encapsulates the interactions with the backing store (a
// Redis-compatible server) on behalf of the admission-control protocol.
// It is the store adapter component: a thin, well-typed façade over list
// primitives, atomic multi-ops expressed as Lua scripts, key-with-ttl
// set, key existence checks, and keyspace-event subscription.
//
// Error policy: transient store errors propagate to the caller. The
// protocol operations (Enqueue, Assess, Transition, Sweep, Cleanup,
// RemoveByID, Refresh) return them as *errors.StoreError, built via
// errors.NewStoreError so each carries a canonical errors.Code alongside
// its op name; the plain helpers (Ping, ConfigureKeyspaceNotifications,
// Exists, LLen, LRange) return the client's error unwrapped. This
// package performs no retry and no reconciliation of its own; upper
// layers decide.
package rdb

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"

	"github.com/oraq-io/oraq/internal/errors"
)

// RDB is a client to query and mutate the pending/processing queues and
// their locks.
type RDB struct {
	client *redis.Client
}

// NewRDB returns a new instance of RDB wrapping the given client.
func NewRDB(client *redis.Client) *RDB {
	return &RDB{client: client}
}

// Close closes the connection with the backing store.
func (r *RDB) Close() error {
	return r.client.Close()
}

// Ping verifies connectivity with the backing store.
func (r *RDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ConfigureKeyspaceNotifications enables the keyspace notification classes
// the demux depends on: Key events (K), generic commands (g),
// expirations (x), and list commands (l). Some hosted Redis offerings
// forbid CONFIG SET; callers in such environments fall back to polling,
// which remains correct without this call (spec Open Question O4 —
// events are a latency optimization, not a safety dependency).
func (r *RDB) ConfigureKeyspaceNotifications(ctx context.Context) error {
	return r.client.ConfigSet(ctx, "notify-keyspace-events", "Kgxl").Err()
}

// PSubscribe pattern-subscribes to keyspace notifications.
func (r *RDB) PSubscribe(ctx context.Context, pattern string) *redis.PubSub {
	return r.client.PSubscribe(ctx, pattern)
}

// Exists reports whether key exists.
func (r *RDB) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LLen returns the length of the list at key.
func (r *RDB) LLen(ctx context.Context, key string) (int64, error) {
	return r.client.LLen(ctx, key).Result()
}

// LRange returns all elements of the list at key.
func (r *RDB) LRange(ctx context.Context, key string) ([]string, error) {
	return r.client.LRange(ctx, key, 0, -1).Result()
}

// KEYS[1] -> lock key
// KEYS[2] -> queue key (pending or processing)
// ARGV[1] -> lock TTL in seconds
// ARGV[2] -> job id
// ARGV[3] -> "head" to LPUSH, anything else to RPUSH
//
// Lock-set precedes queue-insert in the same atomic op, minimizing the
// race window the stuck-job sweep must tolerate.
var enqueueScript = redis.NewScript(`
redis.call("SETEX", KEYS[1], ARGV[1], "")
if ARGV[3] == "head" then
	redis.call("LPUSH", KEYS[2], ARGV[2])
else
	redis.call("RPUSH", KEYS[2], ARGV[2])
end
return redis.status_reply("OK")`)

// Enqueue sets the pending-lock for jobID with the given TTL and inserts
// jobID into the pending list, atomically. lifo controls insertion
// side: false inserts at the head (FIFO, admitted from the tail
// oldest-first), true inserts at the tail (LIFO, admitted newest-first).
func (r *RDB) Enqueue(ctx context.Context, pendingKey, lockKey, jobID string, lockTTL time.Duration, lifo bool) error {
	side := "head"
	if lifo {
		side = "tail"
	}
	err := enqueueScript.Run(ctx, r.client, []string{lockKey, pendingKey}, int(lockTTL.Seconds()), jobID, side).Err()
	if err != nil {
		return errors.NewStoreError("rdb.Enqueue", errors.Unknown, err)
	}
	return nil
}

// KEYS[1] -> processing queue key
// KEYS[2] -> pending queue key
//
// Reads both values in one round trip so the pair is consistent.
var assessScript = redis.NewScript(`
local n = redis.call("LLEN", KEYS[1])
local tail = redis.call("LINDEX", KEYS[2], -1)
return {n, tail or false}`)

// Assess returns the current length of the processing queue and the job
// id at the tail of the pending queue (empty string if pending is
// empty), read as a single atomic pair.
func (r *RDB) Assess(ctx context.Context, processingKey, pendingKey string) (processingLen int64, pendingTail string, err error) {
	res, err := assessScript.Run(ctx, r.client, []string{processingKey, pendingKey}).Result()
	if err != nil {
		return 0, "", errors.NewStoreError("rdb.Assess", errors.Unknown, err)
	}
	vals, err := cast.ToSliceE(res)
	if err != nil || len(vals) != 2 {
		return 0, "", errors.NewStoreError("rdb.Assess", errors.Internal, errors.New("unexpected assess script reply shape"))
	}
	n, err := cast.ToInt64E(vals[0])
	if err != nil {
		return 0, "", errors.NewStoreError("rdb.Assess", errors.Internal, err)
	}
	if vals[1] == nil || vals[1] == false {
		return n, "", nil
	}
	tail, err := cast.ToStringE(vals[1])
	if err != nil {
		return 0, "", errors.NewStoreError("rdb.Assess", errors.Internal, err)
	}
	return n, tail, nil
}

// KEYS[1] -> pending queue key
// KEYS[2] -> processing queue key
// KEYS[3] -> pending-lock key for ARGV[1]
// ARGV[1] -> expected job id
//
// Resolves Open Question O1 via option (b): the move is conditional on
// the tail still being the expected job id, so a losing worker's
// attempt is a clean no-op instead of an unconditional brpoplpush
// stealing someone else's id.
var transitionScript = redis.NewScript(`
local tail = redis.call("LINDEX", KEYS[1], -1)
if tail ~= ARGV[1] then
	return 0
end
redis.call("RPOP", KEYS[1])
redis.call("LPUSH", KEYS[2], tail)
redis.call("DEL", KEYS[3])
return 1`)

// Transition attempts to move jobID from the tail of pending to the head
// of processing and delete its pending-lock, all atomically, but only
// if jobID is still the tail. It reports whether the move happened.
func (r *RDB) Transition(ctx context.Context, pendingKey, processingKey, lockKey, jobID string) (bool, error) {
	res, err := transitionScript.Run(ctx, r.client, []string{pendingKey, processingKey, lockKey}, jobID).Result()
	if err != nil {
		return false, errors.NewStoreError("rdb.Transition", errors.Unknown, err)
	}
	n, err := cast.ToInt64E(res)
	if err != nil {
		return false, errors.NewStoreError("rdb.Transition", errors.Internal, err)
	}
	return n == 1, nil
}

// KEYS[1] -> queue key (pending or processing)
// ARGV[1:] -> job ids currently believed to occupy KEYS[1]
//
// For each id, a missing "{KEYS[1]}:{id}:lock" key means the owning
// worker died. Stuck ids are removed from the queue in the same atomic
// op they were detected in. Racy against a slow enqueuer that has
// pushed but not yet locked; tolerated since the false eviction only
// delays that job.
var sweepScript = redis.NewScript(`
local stuck = {}
for i = 1, #ARGV do
	local id = ARGV[i]
	local lockKey = KEYS[1] .. ":" .. id .. ":lock"
	if redis.call("EXISTS", lockKey) == 0 then
		table.insert(stuck, id)
	end
end
for _, id in ipairs(stuck) do
	redis.call("LREM", KEYS[1], 0, id)
end
return stuck`)

// Sweep reads every id currently in queueKey and removes (atomically, in
// one round trip) those whose lock key is absent, returning the removed
// ("stuck") ids. Returns immediately with no lock-check round trip if
// the queue is empty.
func (r *RDB) Sweep(ctx context.Context, queueKey string) ([]string, error) {
	ids, err := r.LRange(ctx, queueKey)
	if err != nil {
		return nil, errors.NewStoreError("rdb.Sweep", errors.Unknown, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := sweepScript.Run(ctx, r.client, []string{queueKey}, args...).Result()
	if err != nil {
		return nil, errors.NewStoreError("rdb.Sweep", errors.Unknown, err)
	}
	removed, err := cast.ToStringSliceE(res)
	if err != nil {
		return nil, errors.NewStoreError("rdb.Sweep", errors.Internal, err)
	}
	return removed, nil
}

// KEYS[1] -> processing queue key
// KEYS[2] -> processing-lock key
// ARGV[1] -> job id
var cleanupScript = redis.NewScript(`
redis.call("LREM", KEYS[1], 1, ARGV[1])
redis.call("DEL", KEYS[2])
return redis.status_reply("OK")`)

// Cleanup removes jobID from the processing queue and deletes its
// processing-lock, atomically. Runs on every submit exit path.
func (r *RDB) Cleanup(ctx context.Context, processingKey, lockKey, jobID string) error {
	err := cleanupScript.Run(ctx, r.client, []string{processingKey, lockKey}, jobID).Err()
	if err != nil {
		return errors.NewStoreError("rdb.Cleanup", errors.Unknown, err)
	}
	return nil
}

// KEYS[1] -> pending queue key
// KEYS[2] -> pending-lock key
// ARGV[1] -> job id
var removeScript = redis.NewScript(`
redis.call("DEL", KEYS[2])
redis.call("LREM", KEYS[1], 1, ARGV[1])
return redis.status_reply("OK")`)

// RemoveByID deletes jobID's pending-lock and removes it from the
// pending queue, atomically. Idempotent: calling it again when jobID is
// already absent is a no-op.
func (r *RDB) RemoveByID(ctx context.Context, pendingKey, lockKey, jobID string) error {
	err := removeScript.Run(ctx, r.client, []string{pendingKey, lockKey}, jobID).Err()
	if err != nil {
		return errors.NewStoreError("rdb.RemoveByID", errors.Unknown, err)
	}
	return nil
}

// Refresh re-sets the processing-lock with the given TTL, keeping the
// lease alive. Used by the coordinator's keep-alive timer.
func (r *RDB) Refresh(ctx context.Context, lockKey string, ttl time.Duration) error {
	err := r.client.SetEx(ctx, lockKey, "", ttl).Err()
	if err != nil {
		return errors.NewStoreError("rdb.Refresh", errors.Unknown, err)
	}
	return nil
}
