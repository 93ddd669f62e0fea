package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is an immutable, append-only mutation intent. ClientEventID is
// the device-generated idempotency key and stays stable across retries; the
// record is a full field snapshot taken at enqueue time.
//
// Events are created by the sync coordinator when a mutation cannot be
// pushed immediately, and destroyed only by the reconciliation engine after
// confirmed receipt.
type OutboxEvent struct {
	ClientEventID uuid.UUID      `json:"clientEventId"`
	Record        ProgressRecord `json:"record"`
	EnqueuedAt    time.Time      `json:"enqueuedAt"`
}

// NewOutboxEvent wraps the given snapshot into a new event with a fresh
// idempotency key.
func NewOutboxEvent(record ProgressRecord, now time.Time) OutboxEvent {
	return OutboxEvent{
		ClientEventID: uuid.New(),
		Record:        record,
		EnqueuedAt:    now,
	}
}

// ConfirmationEntry records the server's reply to a confirmed outbox event.
// Entries exist purely to make replays idempotent; pruning one early is
// harmless because the underlying mutation is simply resent and accepted
// again under the server's upsert semantics.
type ConfirmationEntry struct {
	ServerRecord ProgressRecord `json:"serverRecord"`
	ConfirmedAt  time.Time      `json:"confirmedAt"`
}
