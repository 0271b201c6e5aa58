// Package base defines foundational types and constants used by oraq and
// its internal packages: key layout for a (prefix, id) queue namespace
// and the lock-TTL formulas that the admission protocol depends on.
package base

import (
	"fmt"
	"math"
	"time"
)

// DefaultPrefix is the key namespace prefix used when the caller does not
// specify one. Preserves interop with other oraq-protocol implementations.
const DefaultPrefix = "oraq"

// DefaultQueueID is the queue identity used when the caller does not
// specify one.
const DefaultQueueID = "queue"

// NamespaceKey returns "{prefix}:{id}", the root of every key this
// (prefix, id) queue owns.
func NamespaceKey(prefix, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// PendingKey returns the key of the pending list for (prefix, id).
func PendingKey(prefix, id string) string {
	return NamespaceKey(prefix, id) + ":pending"
}

// ProcessingKey returns the key of the processing list for (prefix, id).
func ProcessingKey(prefix, id string) string {
	return NamespaceKey(prefix, id) + ":processing"
}

// LockKey returns the lock key for jobID in the given queue list key
// (PendingKey or ProcessingKey's return value).
func LockKey(queueKey, jobID string) string {
	return fmt.Sprintf("%s:%s:lock", queueKey, jobID)
}

// KeyspacePattern returns the psubscribe pattern that covers every key
// under (prefix, id), used to receive keyspace notifications for one
// queue's namespace.
func KeyspacePattern(db int, prefix, id string) string {
	return fmt.Sprintf("__keyspace@%d__:%s:*", db, NamespaceKey(prefix, id))
}

// PendingLockTTL returns the TTL for a pending-side lock given the
// configured admission timeout.
//
// Formula (spec-mandated, bit-exact): ceil(timeout * 1.5 / 1000) seconds,
// where timeout is in milliseconds.
func PendingLockTTL(timeout time.Duration) time.Duration {
	ms := float64(timeout.Milliseconds()) * 1.5
	return time.Duration(math.Ceil(ms/1000)) * time.Second
}

// ProcessingLockTTL returns the TTL to set on each processing-lock
// keep-alive refresh given the configured ping interval.
//
// Formula (spec-mandated, bit-exact): ceil(ping * 2 / 1000) seconds,
// where ping is in milliseconds.
func ProcessingLockTTL(ping time.Duration) time.Duration {
	ms := float64(ping.Milliseconds()) * 2
	return time.Duration(math.Ceil(ms/1000)) * time.Second
}
