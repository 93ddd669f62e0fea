package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ventlearn/progress-sync/internal/connectivity"
	"github.com/ventlearn/progress-sync/internal/domain"
	"github.com/ventlearn/progress-sync/internal/events"
	"github.com/ventlearn/progress-sync/internal/outbox"
	"github.com/ventlearn/progress-sync/internal/progress"
	"github.com/ventlearn/progress-sync/internal/redact"
	"github.com/ventlearn/progress-sync/internal/remote"
	"github.com/ventlearn/progress-sync/internal/syncer"
)

// Deps collects the collaborators a Tracker composes.
type Deps struct {
	Store         *progress.Store
	Queue         *outbox.Queue
	Confirmations *outbox.ConfirmationLog
	Coordinator   *syncer.Coordinator
	API           remote.API
	Monitor       connectivity.Monitor
	Emitter       *events.InMemoryEmitter
	Logger        *slog.Logger
}

// Tracker is the progress engine's consumer surface. Writes land in local
// storage immediately; the coordinator pushes them to the server on its
// own schedule.
type Tracker struct {
	store         *progress.Store
	queue         *outbox.Queue
	confirmations *outbox.ConfirmationLog
	coordinator   *syncer.Coordinator
	api           remote.API
	monitor       connectivity.Monitor
	emitter       *events.InMemoryEmitter
	logger        *slog.Logger
}

// New wires a Tracker from its collaborators.
func New(deps Deps) *Tracker {
	return &Tracker{
		store:         deps.Store,
		queue:         deps.Queue,
		confirmations: deps.Confirmations,
		coordinator:   deps.Coordinator,
		api:           deps.API,
		monitor:       deps.Monitor,
		emitter:       deps.Emitter,
		logger:        deps.Logger.With("component", "tracker"),
	}
}

// Start begins background synchronization: the periodic flush timer, the
// connectivity watcher, and a startup reconciliation when queued work
// survived the previous session.
func (t *Tracker) Start(ctx context.Context) error {
	if err := t.coordinator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync coordinator: %w", err)
	}
	return nil
}

// Stop halts background synchronization. Local state is already durable;
// nothing is flushed here.
func (t *Tracker) Stop() {
	t.coordinator.Stop()
}

// UpdateProgress applies a partial update to the lesson's local record and
// marks it for synchronization. The returned record reflects the merged,
// normalized state.
func (t *Tracker) UpdateProgress(ctx context.Context, lessonID string, upd domain.ProgressUpdate) (domain.ProgressRecord, error) {
	if lessonID == "" {
		return domain.ProgressRecord{}, domain.ErrEmptyLessonID
	}
	rec := t.store.Update(ctx, lessonID, upd)
	t.coordinator.MarkDirty(ctx, lessonID)
	return rec, nil
}

// MarkLessonComplete marks the lesson completed, which also forces its
// progress fraction to full, and records one more attempt. The module the
// lesson belongs to is stamped on the record so module aggregates can be
// refreshed once the completion is confirmed.
func (t *Tracker) MarkLessonComplete(ctx context.Context, lessonID, moduleID string, score *float64) (domain.ProgressRecord, error) {
	if lessonID == "" {
		return domain.ProgressRecord{}, domain.ErrEmptyLessonID
	}
	completed := true
	attempts := t.store.Get(lessonID).Attempts + 1
	upd := domain.ProgressUpdate{
		IsCompleted: &completed,
		Attempts:    &attempts,
		Score:       score,
	}
	if moduleID != "" {
		upd.ModuleID = &moduleID
	}
	rec := t.store.Update(ctx, lessonID, upd)
	t.coordinator.MarkDirty(ctx, lessonID)
	return rec, nil
}

// SetCurrentLesson activates the lesson the learner is entering. When the
// device is online the server's record is fetched and merged first, so a
// lesson completed on another device shows as completed here before any
// local work happens. Fetch failures are not fatal; the local record
// stands until the next sync.
func (t *Tracker) SetCurrentLesson(ctx context.Context, lessonID, moduleID string) (domain.ProgressRecord, error) {
	if lessonID == "" {
		return domain.ProgressRecord{}, domain.ErrEmptyLessonID
	}

	if t.monitor.Online() {
		records, err := t.api.FetchProgress(ctx, lessonID)
		if err != nil {
			t.logger.Debug("lesson activation fetch failed, using local record",
				"lesson_id", lessonID, "error", redact.Error(err))
		}
		for _, server := range records {
			if server.LessonID == lessonID {
				t.coordinator.MergeServerRecord(ctx, server)
				break
			}
		}
	}

	t.coordinator.SetActiveLesson(lessonID)

	rec := t.store.Get(lessonID)
	if rec.ModuleID == "" && moduleID != "" {
		return t.UpdateProgress(ctx, lessonID, domain.ProgressUpdate{ModuleID: &moduleID})
	}
	return rec, nil
}

// GetLessonProgress returns the lesson's local record, a zero-progress
// default if it was never touched.
func (t *Tracker) GetLessonProgress(lessonID string) domain.ProgressRecord {
	return t.store.Get(lessonID)
}

// GetModuleProgress aggregates completion across the module's lessons.
func (t *Tracker) GetModuleProgress(moduleID string, lessonIDs []string) progress.ModuleAggregate {
	return t.store.Aggregate(moduleID, lessonIDs)
}

// FlushNow runs one synchronization cycle immediately and reports whether
// everything pending reached the server. Offline it queues the unsaved
// work and returns false.
func (t *Tracker) FlushNow(ctx context.Context) bool {
	return t.coordinator.Flush(ctx)
}

// Status returns the engine's sync status and, for error states, the
// message to show the learner.
func (t *Tracker) Status() (domain.SyncStatus, string) {
	return t.coordinator.Status()
}

// Stats returns cumulative sync counters.
func (t *Tracker) Stats() syncer.Stats {
	return t.coordinator.Stats()
}

// RegisterHandler subscribes a handler to engine events: status changes
// and module aggregate refreshes.
func (t *Tracker) RegisterHandler(handler events.Handler) {
	t.emitter.RegisterHandler(handler)
}

// SignalHidden should be called when the host reports the session moving
// to background; it fires a best-effort flush.
func (t *Tracker) SignalHidden(ctx context.Context) {
	t.coordinator.SignalHidden(ctx)
}

// SignalUnload should be called when the host is about to terminate.
func (t *Tracker) SignalUnload(ctx context.Context) {
	t.coordinator.SignalUnload(ctx)
}

// Reset discards all local engine state: records, queued events, and
// replay confirmations. Server state is untouched.
func (t *Tracker) Reset(ctx context.Context) {
	t.store.Reset(ctx)
	t.queue.Reset(ctx)
	t.confirmations.Reset(ctx)
	t.coordinator.ResetState(ctx)
	t.logger.Info("engine state reset")
}
