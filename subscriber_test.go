package oraq

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oraq-io/oraq/internal/log"
	"github.com/oraq-io/oraq/internal/rdb"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		channel     string
		event       string
		wantKind    eventKind
		wantQueue   string
		wantJobID   string
	}{
		{
			name:      "pending lock expired",
			channel:   "__keyspace@0__:oraq:queue:pending:abc123:lock",
			event:     "expired",
			wantKind:  eventLockExpired,
			wantQueue: "oraq:queue:pending",
			wantJobID: "abc123",
		},
		{
			name:      "processing lock expired",
			channel:   "__keyspace@0__:oraq:queue:processing:abc123:lock",
			event:     "expired",
			wantKind:  eventLockExpired,
			wantQueue: "oraq:queue:processing",
			wantJobID: "abc123",
		},
		{
			name:     "expired event for a non-lock key is ignored",
			channel:  "__keyspace@0__:oraq:queue:pending",
			event:    "expired",
			wantKind: eventIgnored,
		},
		{
			name:      "pending list mutation",
			channel:   "__keyspace@0__:oraq:queue:pending",
			event:     "rpush",
			wantKind:  eventQueueChanged,
			wantQueue: "oraq:queue:pending",
		},
		{
			name:      "processing list mutation",
			channel:   "__keyspace@0__:oraq:queue:processing",
			event:     "lrem",
			wantKind:  eventQueueChanged,
			wantQueue: "oraq:queue:processing",
		},
		{
			name:     "unrelated namespace is ignored",
			channel:  "__keyspace@0__:other:queue:pending",
			event:    "rpush",
			wantKind: eventIgnored,
		},
		{
			name:     "set command on a key in-namespace but unrecognized is ignored",
			channel:  "__keyspace@0__:oraq:queue:pending:abc123:lock",
			event:    "set",
			wantKind: eventIgnored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(0, "oraq", "queue", tt.channel, tt.event)
			if got.kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", got.kind, tt.wantKind)
			}
			if tt.wantQueue != "" && got.queueKey != tt.wantQueue {
				t.Errorf("queueKey = %q, want %q", got.queueKey, tt.wantQueue)
			}
			if tt.wantJobID != "" && got.jobID != tt.wantJobID {
				t.Errorf("jobID = %q, want %q", got.jobID, tt.wantJobID)
			}
		})
	}
}

func TestClassifyMatchesConfiguredDatabase(t *testing.T) {
	channel := "__keyspace@14__:oraq:queue:pending:abc123:lock"

	got := classify(14, "oraq", "queue", channel, "expired")
	if got.kind != eventLockExpired || got.jobID != "abc123" {
		t.Errorf("classify(14, ...) = %+v, want a lock-expired event for abc123", got)
	}

	// A channel on db 14 must not match a classifier configured for db
	// 0, or the reverse: the keyspace prefix is database-scoped.
	if got := classify(0, "oraq", "queue", channel, "expired"); got.kind != eventIgnored {
		t.Errorf("classify(0, ...) on a db-14 channel = %+v, want eventIgnored", got)
	}
}

func TestSubscriberRegisterUnregisterDispatch(t *testing.T) {
	s := newSubscriber(log.NewLogger(nil), (*rdb.RDB)(nil), 0, "oraq", "queue")

	var calls int32
	var wg sync.WaitGroup
	wg.Add(1)
	s.register("job-1", func(evt queueEvent) {
		atomic.AddInt32(&calls, 1)
		wg.Done()
	})

	s.dispatch(queueEvent{kind: eventQueueChanged, queueKey: "oraq:queue:pending"})
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}

	s.unregister("job-1")
	s.dispatch(queueEvent{kind: eventQueueChanged, queueKey: "oraq:queue:pending"})

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls after unregister = %d, want 1 (no further dispatch)", n)
	}
}

func TestSubscriberDispatchFansOutToAllListeners(t *testing.T) {
	s := newSubscriber(log.NewLogger(nil), (*rdb.RDB)(nil), 0, "oraq", "queue")

	var wg sync.WaitGroup
	wg.Add(3)
	for _, id := range []string{"a", "b", "c"} {
		s.register(id, func(evt queueEvent) {
			wg.Done()
		})
	}

	s.dispatch(queueEvent{kind: eventQueueChanged, queueKey: "oraq:queue:processing"})
	wg.Wait()
}
