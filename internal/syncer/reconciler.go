package syncer

import (
	"context"

	"github.com/google/uuid"

	"github.com/ventlearn/progress-sync/internal/domain"
	"github.com/ventlearn/progress-sync/internal/events"
	"github.com/ventlearn/progress-sync/internal/redact"
	"github.com/ventlearn/progress-sync/internal/remote"
)

// Reconcile drains the outbox in FIFO order after connectivity returns.
// Events whose client event ID already has a server confirmation are
// resolved from the confirmation log without a network call. A transient
// failure leaves the event queued and moves on to the next one, so a
// single flaky item never blocks the rest of the backlog. Validation
// failures are terminal: the event is dropped and the message surfaced.
//
// Reconciliation shares the in-flight guard with Flush; entering while a
// cycle is already running is a no-op.
func (c *Coordinator) Reconcile(ctx context.Context) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer c.inFlight.Store(false)

	if !c.online(ctx) {
		if c.queue.Len() > 0 {
			c.setStatus(ctx, domain.SyncStatusOfflineQueued, "")
		}
		return
	}

	pending := c.queue.Events()
	if len(pending) == 0 {
		c.confirmations.Prune(ctx, c.timeFunc().UTC())
		return
	}

	c.setStatus(ctx, domain.SyncStatusSaving, "")
	c.logger.Info("reconciling queued events", "pending", len(pending))

	now := c.timeFunc().UTC()
	var removal []uuid.UUID
	var surfaced []string
	touched := make(map[string]struct{})

	for _, event := range pending {
		// Replays of already-confirmed events resolve locally.
		if entry, ok := c.confirmations.Lookup(event.ClientEventID); ok {
			removal = append(removal, event.ClientEventID)
			c.mergeBack(ctx, event.Record.LessonID, &entry.ServerRecord, now)
			markTouched(touched, event.Record.ModuleID)
			continue
		}

		c.mu.Lock()
		c.counters.Pushed++
		c.mu.Unlock()

		server, err := c.api.UpsertProgress(ctx, event.Record)
		switch {
		case err == nil:
			removal = append(removal, event.ClientEventID)
			c.confirmations.Record(ctx, event.ClientEventID, server, now)
			c.mergeBack(ctx, event.Record.LessonID, &server, now)
			markTouched(touched, event.Record.ModuleID)
			c.mu.Lock()
			c.counters.Confirmed++
			c.mu.Unlock()

		case remote.IsValidation(err):
			removal = append(removal, event.ClientEventID)
			surfaced = append(surfaced, messageFor(err))
			c.mu.Lock()
			c.counters.ValidationDrops++
			c.mu.Unlock()
			c.logger.Warn("queued event rejected during reconciliation",
				"client_event_id", event.ClientEventID,
				"lesson_id", event.Record.LessonID,
				"error", redact.Error(err))

		default:
			// Leave the event in place for the next pass.
			c.mu.Lock()
			c.counters.TransientRetries++
			c.mu.Unlock()
			c.logger.Debug("queued event failed transiently, retaining",
				"client_event_id", event.ClientEventID,
				"error", redact.Error(err))
		}
	}

	c.queue.Remove(ctx, removal)
	c.confirmations.Prune(ctx, now)

	c.mu.Lock()
	c.counters.LastSyncAt = now
	c.mu.Unlock()

	for moduleID := range touched {
		c.emitAggregateRefresh(ctx, moduleID)
	}

	c.finish(ctx, surfaced)
}

func markTouched(touched map[string]struct{}, moduleID string) {
	if moduleID != "" {
		touched[moduleID] = struct{}{}
	}
}

func (c *Coordinator) emitAggregateRefresh(ctx context.Context, moduleID string) {
	if c.emitter == nil {
		return
	}
	event, err := events.NewEvent(events.TypeAggregateRefresh, events.AggregateRefreshPayload{
		ModuleID: moduleID,
	})
	if err != nil {
		c.logger.Error("failed to build aggregate refresh event", "error", err)
		return
	}
	if err := c.emitter.EmitEvent(ctx, event); err != nil {
		c.logger.Warn("aggregate refresh handler failed", "error", err)
	}
}
