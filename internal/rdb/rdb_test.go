package rdb

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const (
	testPendingKey    = "oraq:queue:pending"
	testProcessingKey = "oraq:queue:processing"
)

func TestEnqueueFIFO(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	lockKey := testPendingKey + ":job1:lock"

	if err := r.Enqueue(ctx, testPendingKey, lockKey, "job1", 10*time.Second, false); err != nil {
		t.Fatalf("Enqueue() = %v, want nil", err)
	}

	got, err := r.LRange(ctx, testPendingKey)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"job1"}, got); diff != "" {
		t.Errorf("pending list mismatch (-want +got)\n%s", diff)
	}
	exists, err := r.Exists(ctx, lockKey)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Errorf("lock key %q should exist after Enqueue", lockKey)
	}
}

func TestEnqueueFIFOOrdering(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		lockKey := testPendingKey + ":" + id + ":lock"
		if err := r.Enqueue(ctx, testPendingKey, lockKey, id, 10*time.Second, false); err != nil {
			t.Fatalf("Enqueue(%q) = %v, want nil", id, err)
		}
	}

	got, err := r.LRange(ctx, testPendingKey)
	if err != nil {
		t.Fatal(err)
	}
	// FIFO: each push goes to the head, so the oldest (first enqueued)
	// ends up at the tail, ready to be admitted first.
	if diff := cmp.Diff([]string{"c", "b", "a"}, got); diff != "" {
		t.Errorf("pending list mismatch (-want +got)\n%s", diff)
	}
}

func TestEnqueueLIFOOrdering(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		lockKey := testPendingKey + ":" + id + ":lock"
		if err := r.Enqueue(ctx, testPendingKey, lockKey, id, 10*time.Second, true); err != nil {
			t.Fatalf("Enqueue(%q) = %v, want nil", id, err)
		}
	}

	got, err := r.LRange(ctx, testPendingKey)
	if err != nil {
		t.Fatal(err)
	}
	// LIFO: each push goes to the tail, so the newest is at the tail,
	// ready to be admitted first.
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("pending list mismatch (-want +got)\n%s", diff)
	}
}

func TestAssess(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	seedPending(t, r, testPendingKey, testPendingKey, 10*time.Second, "job1", "job2")
	if err := r.client.RPush(ctx, testProcessingKey, "job0").Err(); err != nil {
		t.Fatal(err)
	}

	n, tail, err := r.Assess(ctx, testProcessingKey, testPendingKey)
	if err != nil {
		t.Fatalf("Assess() error = %v, want nil", err)
	}
	if n != 1 {
		t.Errorf("Assess() processingLen = %d, want 1", n)
	}
	if tail != "job2" {
		t.Errorf("Assess() pendingTail = %q, want %q", tail, "job2")
	}
}

func TestAssessEmptyPending(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	n, tail, err := r.Assess(ctx, testProcessingKey, testPendingKey)
	if err != nil {
		t.Fatalf("Assess() error = %v, want nil", err)
	}
	if n != 0 {
		t.Errorf("Assess() processingLen = %d, want 0", n)
	}
	if tail != "" {
		t.Errorf("Assess() pendingTail = %q, want empty", tail)
	}
}

func TestTransitionSucceedsWhenTail(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	lockKey := testPendingKey + ":job1:lock"
	seedPending(t, r, testPendingKey, testPendingKey, 10*time.Second, "job1")

	ok, err := r.Transition(ctx, testPendingKey, testProcessingKey, lockKey, "job1")
	if err != nil {
		t.Fatalf("Transition() error = %v, want nil", err)
	}
	if !ok {
		t.Fatalf("Transition() = false, want true")
	}

	pending, err := r.LRange(ctx, testPendingKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending list = %v, want empty", pending)
	}
	processing, err := r.LRange(ctx, testProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"job1"}, processing); diff != "" {
		t.Errorf("processing list mismatch (-want +got)\n%s", diff)
	}
	exists, err := r.Exists(ctx, lockKey)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Errorf("pending-lock %q should have been deleted", lockKey)
	}
}

func TestTransitionNoOpWhenNotTail(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	seedPending(t, r, testPendingKey, testPendingKey, 10*time.Second, "job1", "job2")

	ok, err := r.Transition(ctx, testPendingKey, testProcessingKey, testPendingKey+":job1:lock", "job1")
	if err != nil {
		t.Fatalf("Transition() error = %v, want nil", err)
	}
	if ok {
		t.Fatalf("Transition() = true, want false: job1 is not the tail")
	}

	pending, err := r.LRange(ctx, testPendingKey)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"job1", "job2"}, pending); diff != "" {
		t.Errorf("pending list should be unchanged (-want +got)\n%s", diff)
	}
}

func TestSweepRemovesStuckJobs(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	// job1 has a live lock, job2 does not (simulating a dead worker).
	if err := r.client.SetEx(ctx, testPendingKey+":job1:lock", "", 10*time.Second).Err(); err != nil {
		t.Fatal(err)
	}
	if err := r.client.RPush(ctx, testPendingKey, "job1", "job2").Err(); err != nil {
		t.Fatal(err)
	}

	stuck, err := r.Sweep(ctx, testPendingKey)
	if err != nil {
		t.Fatalf("Sweep() error = %v, want nil", err)
	}
	if diff := cmp.Diff([]string{"job2"}, stuck); diff != "" {
		t.Errorf("stuck ids mismatch (-want +got)\n%s", diff)
	}

	remaining, err := r.LRange(ctx, testPendingKey)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"job1"}, remaining); diff != "" {
		t.Errorf("pending list mismatch (-want +got)\n%s", diff)
	}
}

func TestSweepEmptyQueue(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	stuck, err := r.Sweep(ctx, testPendingKey)
	if err != nil {
		t.Fatalf("Sweep() error = %v, want nil", err)
	}
	if len(stuck) != 0 {
		t.Errorf("Sweep() on empty queue = %v, want empty", stuck)
	}
}

func TestCleanup(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	lockKey := testProcessingKey + ":job1:lock"

	if err := r.client.SetEx(ctx, lockKey, "", 10*time.Second).Err(); err != nil {
		t.Fatal(err)
	}
	if err := r.client.RPush(ctx, testProcessingKey, "job1").Err(); err != nil {
		t.Fatal(err)
	}

	if err := r.Cleanup(ctx, testProcessingKey, lockKey, "job1"); err != nil {
		t.Fatalf("Cleanup() error = %v, want nil", err)
	}

	n, err := r.LLen(ctx, testProcessingKey)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("processing list length = %d, want 0", n)
	}
	exists, err := r.Exists(ctx, lockKey)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Errorf("processing-lock %q should have been deleted", lockKey)
	}
}

func TestRemoveByID(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	lockKey := testPendingKey + ":job1:lock"
	seedPending(t, r, testPendingKey, testPendingKey, 10*time.Second, "job1", "job2")

	if err := r.RemoveByID(ctx, testPendingKey, lockKey, "job1"); err != nil {
		t.Fatalf("RemoveByID() error = %v, want nil", err)
	}

	remaining, err := r.LRange(ctx, testPendingKey)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"job2"}, remaining); diff != "" {
		t.Errorf("pending list mismatch (-want +got)\n%s", diff)
	}
	exists, err := r.Exists(ctx, lockKey)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Errorf("pending-lock %q should have been deleted", lockKey)
	}
}

func TestRemoveByIDIdempotent(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	if err := r.RemoveByID(ctx, testPendingKey, testPendingKey+":missing:lock", "missing"); err != nil {
		t.Fatalf("RemoveByID() on absent id = %v, want nil", err)
	}
}

func TestRefresh(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	lockKey := testProcessingKey + ":job1:lock"

	if err := r.client.SetEx(ctx, lockKey, "", 1*time.Second).Err(); err != nil {
		t.Fatal(err)
	}
	if err := r.Refresh(ctx, lockKey, 30*time.Second); err != nil {
		t.Fatalf("Refresh() error = %v, want nil", err)
	}

	ttl, err := r.client.TTL(ctx, lockKey).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl < 5*time.Second {
		t.Errorf("TTL after Refresh() = %v, want >= 5s", ttl)
	}
}
