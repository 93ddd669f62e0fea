package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ventlearn/progress-sync/internal/domain"
)

// Event types emitted by the engine.
const (
	// TypeStatusChanged signals a sync status transition. Payload:
	// StatusChangedPayload.
	TypeStatusChanged = "status_changed"

	// TypeAggregateRefresh asks consumers to re-derive module-level
	// aggregates after confirmed syncs, since server-side computation
	// (completion counts, streaks) may not be derivable from local deltas.
	// Payload: AggregateRefreshPayload.
	TypeAggregateRefresh = "aggregate_refresh"
)

// Event is a notification published by the engine. Payload contains the
// type-specific data serialized as JSON.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// StatusChangedPayload carries the new sync status and, for error states, a
// human-readable dismissible message.
type StatusChangedPayload struct {
	Status  domain.SyncStatus `json:"status"`
	Message string            `json:"message,omitempty"`
}

// AggregateRefreshPayload names the module whose aggregate should be
// refreshed.
type AggregateRefreshPayload struct {
	ModuleID string `json:"moduleId"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates an event of the given type with the payload serialized
// to JSON.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now(),
	}, nil
}

// Handler is implemented by components that consume engine events.
type Handler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent implements Handler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Emitter publishes events to registered handlers without knowledge of who
// they are.
type Emitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *Event) error

	// RegisterHandler adds a new handler to receive events.
	RegisterHandler(handler Handler)
}
