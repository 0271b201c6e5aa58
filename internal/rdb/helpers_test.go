package rdb

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// This file defines test helpers for the rdb package testing.

// TODO(oraq): get redis address and db number from ENV variables.
func setup(t *testing.T) *RDB {
	t.Helper()
	r := NewRDB(redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   13,
	}))
	flushDB(t, r)
	return r
}

func flushDB(t *testing.T, r *RDB) {
	t.Helper()
	if err := r.client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatal(err)
	}
}

// seedPending sets a pending-lock and appends id to pendingKey for each
// id, in list order, without going through the Enqueue script -- used to
// arrange pending-list fixtures for the tests of the other operations.
func seedPending(t *testing.T, r *RDB, pendingKey, lockKeyBase string, ttl time.Duration, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if err := r.client.SetEx(ctx, lockKeyBase+":"+id+":lock", "", ttl).Err(); err != nil {
			t.Fatal(err)
		}
		if err := r.client.RPush(ctx, pendingKey, id).Err(); err != nil {
			t.Fatal(err)
		}
	}
}
