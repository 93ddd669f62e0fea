// Package outbox implements the durable, ordered log of pending mutation
// intents and the confirmation log that makes replaying it idempotent.
//
// The queue offers at-least-once delivery: an event stays in the log until
// an explicit Remove call, so a crash between "server accepted" and "queue
// pruned" is recovered by the confirmation log rather than by the queue
// itself.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ventlearn/progress-sync/internal/domain"
	"github.com/ventlearn/progress-sync/internal/platform/storage"
)

// Queue is an append-only FIFO log of OutboxEvents, persisted through the
// storage capability on every mutation. Persistence failures are logged and
// never fatal; the in-memory log remains authoritative for the session.
type Queue struct {
	mu       sync.Mutex
	events   []domain.OutboxEvent
	kv       storage.KV
	logger   *slog.Logger
	timeFunc func() time.Time // Injectable for testing
}

// NewQueue creates a queue backed by kv, reloading any events persisted by
// a previous session.
func NewQueue(kv storage.KV, logger *slog.Logger) *Queue {
	q := &Queue{
		kv:       kv,
		logger:   logger.With("component", "outbox_queue"),
		timeFunc: time.Now,
	}
	q.reload()
	return q
}

func (q *Queue) reload() {
	data, err := q.kv.Load(context.Background(), storage.KeyOutboxQueue)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return
	}
	if err != nil {
		q.logger.Warn("failed to reload outbox queue", "error", err)
		return
	}

	var events []domain.OutboxEvent
	if err := json.Unmarshal(data, &events); err != nil {
		q.logger.Warn("discarding corrupt outbox queue", "error", err)
		return
	}
	q.events = events
	if len(events) > 0 {
		q.logger.Info("reloaded pending outbox events", "event_count", len(events))
	}
}

// persist must be called with the lock held.
func (q *Queue) persist(ctx context.Context) {
	data, err := json.Marshal(q.events)
	if err != nil {
		q.logger.Error("failed to serialize outbox queue", "error", err)
		return
	}
	if err := q.kv.Save(ctx, storage.KeyOutboxQueue, data); err != nil {
		q.logger.Warn("failed to persist outbox queue", "error", err)
	}
}

// Enqueue appends a new event wrapping the given snapshot, with a fresh
// idempotency key, and persists the queue. The created event is returned.
func (q *Queue) Enqueue(ctx context.Context, record domain.ProgressRecord) domain.OutboxEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	event := domain.NewOutboxEvent(record, q.timeFunc().UTC())
	q.events = append(q.events, event)
	q.persist(ctx)

	q.logger.Debug("enqueued outbox event",
		"client_event_id", event.ClientEventID,
		"lesson_id", record.LessonID,
		"queue_len", len(q.events))
	return event
}

// Events returns the pending events in FIFO order. The returned slice is a
// copy; mutating it does not affect the queue.
func (q *Queue) Events() []domain.OutboxEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.OutboxEvent, len(q.events))
	copy(out, q.events)
	return out
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Remove atomically strips the events with the given idempotency keys and
// persists the remainder, preserving FIFO order.
func (q *Queue) Remove(ctx context.Context, ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}

	confirmed := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		confirmed[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.events[:0]
	for _, event := range q.events {
		if _, ok := confirmed[event.ClientEventID]; !ok {
			kept = append(kept, event)
		}
	}
	removed := len(q.events) - len(kept)
	q.events = kept
	q.persist(ctx)

	q.logger.Debug("removed confirmed outbox events",
		"removed_count", removed,
		"queue_len", len(q.events))
}

// Reset drops every pending event and the persisted log.
func (q *Queue) Reset(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = nil
	if err := q.kv.Delete(ctx, storage.KeyOutboxQueue); err != nil {
		q.logger.Warn("failed to remove persisted outbox queue", "error", err)
	}
}
