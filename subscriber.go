package oraq

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oraq-io/oraq/internal/base"
	"github.com/oraq-io/oraq/internal/log"
	"github.com/oraq-io/oraq/internal/rdb"
)

// eventKind classifies a keyspace notification relevant to one queue's
// namespace.
type eventKind int

const (
	eventIgnored eventKind = iota
	eventLockExpired
	eventQueueChanged
)

// queueEvent is the classified form of a single keyspace notification.
type queueEvent struct {
	kind eventKind
	// queueKey is the pending or processing list key the event concerns.
	queueKey string
	// jobID is set only for eventLockExpired.
	jobID string
}

var listMutationCommands = map[string]bool{
	"rpop": true, "lrem": true, "lpush": true, "rpush": true, "brpoplpush": true,
}

// classify implements the C2 event classification of spec §4.2. db must
// match the backing store's logical database the queue's keys live in,
// since Redis scopes keyspace-notification channels by database.
func classify(db int, prefix, id, channel, event string) queueEvent {
	ns := prefix + ":" + id + ":"
	rest := strings.TrimPrefix(channel, fmt.Sprintf("__keyspace@%d__:", db)+ns)
	if rest == channel {
		return queueEvent{kind: eventIgnored}
	}

	if event == "expired" {
		if jobID, queueKey, ok := parseLockKey(ns, rest); ok {
			return queueEvent{kind: eventLockExpired, queueKey: queueKey, jobID: jobID}
		}
		return queueEvent{kind: eventIgnored}
	}

	if listMutationCommands[event] {
		switch rest {
		case "pending":
			return queueEvent{kind: eventQueueChanged, queueKey: ns + "pending"}
		case "processing":
			return queueEvent{kind: eventQueueChanged, queueKey: ns + "processing"}
		}
	}

	return queueEvent{kind: eventIgnored}
}

// parseLockKey recognizes "{pending|processing}:{jobId}:lock" suffixes
// (the part of the channel name after the namespace prefix has already
// been stripped by the caller).
func parseLockKey(ns, rest string) (jobID, queueKey string, ok bool) {
	const suffix = ":lock"
	if !strings.HasSuffix(rest, suffix) {
		return "", "", false
	}
	body := strings.TrimSuffix(rest, suffix)
	if strings.HasPrefix(body, "pending:") {
		return strings.TrimPrefix(body, "pending:"), ns + "pending", true
	}
	if strings.HasPrefix(body, "processing:") {
		return strings.TrimPrefix(body, "processing:"), ns + "processing", true
	}
	return "", "", false
}

// wakeupFunc is invoked once per relevant event for a registered job. It
// must not block.
type wakeupFunc func(evt queueEvent)

// subscriber owns the keyspace-notification pubsub connection for one
// (prefix, id) namespace and dispatches classified events to whichever
// coordinators are currently registered.
type subscriber struct {
	logger log.Base
	rdb    *rdb.RDB
	db     int
	prefix string
	id     string

	mu        sync.Mutex
	listeners map[string]wakeupFunc // jobID -> callback

	done chan struct{}

	retryTimeout time.Duration
}

func newSubscriber(logger log.Base, r *rdb.RDB, db int, prefix, id string) *subscriber {
	return &subscriber{
		logger:       logger,
		rdb:          r,
		db:           db,
		prefix:       prefix,
		id:           id,
		listeners:    make(map[string]wakeupFunc),
		done:         make(chan struct{}),
		retryTimeout: 5 * time.Second,
	}
}

// register adds a wake-up callback for jobID. It is called for every
// classified event this subscriber observes for the shared namespace,
// regardless of which queue key the event concerns; the coordinator
// itself decides whether the event is relevant to it.
func (s *subscriber) register(jobID string, fn wakeupFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[jobID] = fn
}

// unregister removes jobID's wake-up callback. Mandatory on every
// submit exit path so the listener set never grows unbounded.
func (s *subscriber) unregister(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, jobID)
}

func (s *subscriber) dispatch(evt queueEvent) {
	s.mu.Lock()
	fns := make([]wakeupFunc, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}

// shutdown signals the subscriber goroutine to stop. Safe to call even
// if start was never invoked (e.g. Shutdown before any Submit) since it
// does not block waiting for a receiver.
func (s *subscriber) shutdown() {
	s.logger.Debug("subscriber shutting down...")
	close(s.done)
}

func (s *subscriber) start(wg *sync.WaitGroup) {
	pattern := base.KeyspacePattern(s.db, s.prefix, s.id)
	wg.Add(1)
	go func() {
		defer wg.Done()
		var pubsub *redis.PubSub
		ctx := context.Background()
		for {
			pubsub = s.rdb.PSubscribe(ctx, pattern)
			if _, err := pubsub.Receive(ctx); err != nil {
				s.logger.Error(fmt.Sprintf("cannot subscribe to keyspace events: %v", err))
				select {
				case <-time.After(s.retryTimeout):
					continue
				case <-s.done:
					pubsub.Close()
					s.logger.Debug("subscriber done")
					return
				}
			}
			break
		}
		msgCh := pubsub.Channel()
		for {
			select {
			case <-s.done:
				pubsub.Close()
				s.logger.Debug("subscriber done")
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				evt := classify(s.db, s.prefix, s.id, msg.Channel, msg.Payload)
				if evt.kind != eventIgnored {
					s.dispatch(evt)
				}
			}
		}
	}()
}
