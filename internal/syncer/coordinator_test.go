package syncer

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventlearn/progress-sync/internal/auth"
	"github.com/ventlearn/progress-sync/internal/connectivity"
	"github.com/ventlearn/progress-sync/internal/domain"
	"github.com/ventlearn/progress-sync/internal/events"
	"github.com/ventlearn/progress-sync/internal/outbox"
	"github.com/ventlearn/progress-sync/internal/platform/storage"
	"github.com/ventlearn/progress-sync/internal/progress"
	"github.com/ventlearn/progress-sync/internal/remote"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fakeAPI is a scriptable remote.API for coordinator tests.
type fakeAPI struct {
	mu sync.Mutex

	upsertCalls []domain.ProgressRecord
	batchCalls  [][]domain.ProgressRecord

	upsertFn func(rec domain.ProgressRecord) (domain.ProgressRecord, error)
	batchFn  func(items []domain.ProgressRecord) (*remote.SyncResult, error)
	fetchFn  func(lessonID string) ([]domain.ProgressRecord, error)
}

func (f *fakeAPI) FetchProgress(_ context.Context, lessonID string) ([]domain.ProgressRecord, error) {
	if f.fetchFn != nil {
		return f.fetchFn(lessonID)
	}
	return nil, nil
}

func (f *fakeAPI) UpsertProgress(_ context.Context, rec domain.ProgressRecord) (domain.ProgressRecord, error) {
	f.mu.Lock()
	f.upsertCalls = append(f.upsertCalls, rec)
	f.mu.Unlock()
	if f.upsertFn != nil {
		return f.upsertFn(rec)
	}
	return echoServer(rec, time.Now()), nil
}

func (f *fakeAPI) SyncBatch(_ context.Context, items []domain.ProgressRecord) (*remote.SyncResult, error) {
	f.mu.Lock()
	f.batchCalls = append(f.batchCalls, items)
	f.mu.Unlock()
	if f.batchFn != nil {
		return f.batchFn(items)
	}
	result := &remote.SyncResult{}
	for _, item := range items {
		result.Merged = append(result.Merged, remote.MergeOutcome{LessonID: item.LessonID, Merged: true})
		result.Records = append(result.Records, echoServer(item, time.Now()))
	}
	return result, nil
}

func (f *fakeAPI) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upsertCalls)
}

// echoServer returns what a well-behaved server would hand back for an
// accepted upsert.
func echoServer(rec domain.ProgressRecord, at time.Time) domain.ProgressRecord {
	rec.ServerUpdatedAt = at.UTC()
	return rec
}

func transientErr() error {
	return &remote.APIError{Kind: remote.KindTransient, Op: "upsert progress"}
}

func validationErr(code string) error {
	return &remote.APIError{Kind: remote.KindValidation, Op: "upsert progress", Code: code, StatusCode: 422}
}

type harness struct {
	coordinator *Coordinator
	store       *progress.Store
	queue       *outbox.Queue
	api         *fakeAPI
	monitor     *connectivity.Manual
	emitter     *events.InMemoryEmitter
}

func setupHarness(t *testing.T, online bool) *harness {
	t.Helper()
	logger := setupTestLogger()
	api := &fakeAPI{}
	monitor := connectivity.NewManual(online)
	emitter := events.NewInMemoryEmitter(logger)
	store := progress.NewStore(storage.NewMemory(), logger)
	queue := outbox.NewQueue(storage.NewMemory(), logger)
	confirmations := outbox.NewConfirmationLog(storage.NewMemory(), 24*time.Hour, logger)

	coordinator := NewCoordinator(Deps{
		Store:         store,
		Queue:         queue,
		Confirmations: confirmations,
		API:           api,
		Auth:          auth.Static{Token: "test-token", UserID: "learner-1"},
		Monitor:       monitor,
		Emitter:       emitter,
		Logger:        logger,
	}, DefaultConfig())

	return &harness{
		coordinator: coordinator,
		store:       store,
		queue:       queue,
		api:         api,
		monitor:     monitor,
		emitter:     emitter,
	}
}

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }
func strPtr(s string) *string     { return &s }

func dirtyLesson(t *testing.T, h *harness, lessonID string, prog float64) {
	t.Helper()
	ctx := context.Background()
	h.store.Update(ctx, lessonID, domain.ProgressUpdate{
		ModuleID: strPtr("module-vent"),
		Progress: floatPtr(prog),
	})
	h.coordinator.MarkDirty(ctx, lessonID)
}

func TestFlushOnlineActiveLessonSaves(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, true)
	h.coordinator.SetActiveLesson("lesson-peep")
	dirtyLesson(t, h, "lesson-peep", 0.6)

	ok := h.coordinator.Flush(ctx)

	require.True(t, ok)
	assert.Equal(t, 1, h.api.upsertCount(), "active lesson takes the single-upsert path")
	assert.Equal(t, 0, h.queue.Len())

	status, message := h.coordinator.Status()
	assert.Equal(t, domain.SyncStatusSaved, status)
	assert.Empty(t, message)

	rec := h.store.Get("lesson-peep")
	assert.False(t, rec.ServerUpdatedAt.IsZero(), "server stamp written back")
}

func TestFlushOfflineQueuesWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, false)
	h.coordinator.SetActiveLesson("lesson-peep")
	dirtyLesson(t, h, "lesson-peep", 0.3)
	dirtyLesson(t, h, "lesson-modes", 0.8)

	ok := h.coordinator.Flush(ctx)

	require.False(t, ok)
	assert.Equal(t, 0, h.api.upsertCount(), "offline flush must not touch the network")
	assert.Equal(t, 2, h.queue.Len())

	status, _ := h.coordinator.Status()
	assert.Equal(t, domain.SyncStatusOfflineQueued, status)
}

func TestFlushWithoutCredentialsBehavesAsOffline(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, true)
	h.coordinator.auth = auth.Static{} // token revoked mid-session
	dirtyLesson(t, h, "lesson-peep", 0.5)

	ok := h.coordinator.Flush(ctx)

	require.False(t, ok)
	assert.Equal(t, 0, h.api.upsertCount())
	assert.Equal(t, 1, h.queue.Len())
}

func TestFlushTransientFailureQueuesQuietly(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, true)
	h.api.upsertFn = func(domain.ProgressRecord) (domain.ProgressRecord, error) {
		return domain.ProgressRecord{}, transientErr()
	}
	h.api.batchFn = func([]domain.ProgressRecord) (*remote.SyncResult, error) {
		return nil, transientErr()
	}
	h.coordinator.SetActiveLesson("lesson-peep")
	dirtyLesson(t, h, "lesson-peep", 0.5)

	ok := h.coordinator.Flush(ctx)

	require.False(t, ok)
	assert.Equal(t, 1, h.queue.Len(), "failed push parks the snapshot in the outbox")

	status, message := h.coordinator.Status()
	assert.Equal(t, domain.SyncStatusOfflineQueued, status,
		"transient failures never produce a user-facing error")
	assert.Empty(t, message)
}

func TestFlushValidationFailureDropsAndSurfaces(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, true)
	h.api.upsertFn = func(domain.ProgressRecord) (domain.ProgressRecord, error) {
		return domain.ProgressRecord{}, validationErr(remote.CodeInvalidProgress)
	}
	h.coordinator.SetActiveLesson("lesson-peep")
	dirtyLesson(t, h, "lesson-peep", 0.5)

	ok := h.coordinator.Flush(ctx)

	require.False(t, ok)
	assert.Equal(t, 0, h.queue.Len(), "rejected item is not retried automatically")

	status, message := h.coordinator.Status()
	assert.Equal(t, domain.SyncStatusError, status)
	assert.Equal(t, remote.ValidationMessage(remote.CodeInvalidProgress), message)
}

func TestFlushDrainsBacklogInBatches(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, true)
	h.coordinator.cfg.BatchSize = 2

	for _, lessonID := range []string{"lesson-a", "lesson-b", "lesson-c"} {
		dirtyLesson(t, h, lessonID, 0.5)
	}

	ok := h.coordinator.Flush(ctx)

	require.True(t, ok)
	assert.Equal(t, 0, h.queue.Len())

	h.api.mu.Lock()
	defer h.api.mu.Unlock()
	require.Len(t, h.api.batchCalls, 2)
	assert.Len(t, h.api.batchCalls[0], 2)
	assert.Len(t, h.api.batchCalls[1], 1)
}

func TestFlushPartialBatchFailure(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, true)

	// Second item rejected, first and third accepted.
	h.api.batchFn = func(items []domain.ProgressRecord) (*remote.SyncResult, error) {
		result := &remote.SyncResult{
			Merged:  make([]remote.MergeOutcome, len(items)),
			Records: make([]domain.ProgressRecord, len(items)),
		}
		for i, item := range items {
			if i == 1 {
				result.Merged[i] = remote.MergeOutcome{LessonID: item.LessonID, Error: remote.CodeInvalidScore}
				result.Records[i] = item
				continue
			}
			result.Merged[i] = remote.MergeOutcome{LessonID: item.LessonID, Merged: true}
			result.Records[i] = echoServer(item, time.Now())
		}
		return result, nil
	}

	for _, lessonID := range []string{"lesson-a", "lesson-b", "lesson-c"} {
		ctx := context.Background()
		h.store.Update(ctx, lessonID, domain.ProgressUpdate{Progress: floatPtr(0.5)})
		h.coordinator.MarkDirty(ctx, lessonID)
	}

	ok := h.coordinator.Flush(ctx)

	require.False(t, ok)
	assert.Equal(t, 0, h.queue.Len(), "accepted and rejected items both leave the queue")

	status, message := h.coordinator.Status()
	assert.Equal(t, domain.SyncStatusError, status)
	assert.Equal(t, remote.ValidationMessage(remote.CodeInvalidScore), message)

	stats := h.coordinator.Stats()
	assert.Equal(t, 2, stats.Confirmed)
	assert.Equal(t, 1, stats.ValidationDrops)
}

func TestFlushReentryIsNoOp(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, true)
	dirtyLesson(t, h, "lesson-peep", 0.5)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.batchFn = func(items []domain.ProgressRecord) (*remote.SyncResult, error) {
		close(entered)
		<-release
		result := &remote.SyncResult{}
		for _, item := range items {
			result.Merged = append(result.Merged, remote.MergeOutcome{LessonID: item.LessonID, Merged: true})
			result.Records = append(result.Records, echoServer(item, time.Now()))
		}
		return result, nil
	}
	h.coordinator.SetActiveLesson("")

	done := make(chan bool, 1)
	go func() { done <- h.coordinator.Flush(ctx) }()
	<-entered

	assert.False(t, h.coordinator.Flush(ctx), "concurrent flush must bail out")
	close(release)
	assert.True(t, <-done)
}

func TestFlushServerNewerOverwritesLocal(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, true)

	// The server holds a completed record newer than this device's edit.
	serverStamp := time.Now().Add(time.Hour).UTC()
	h.api.upsertFn = func(rec domain.ProgressRecord) (domain.ProgressRecord, error) {
		rec.IsCompleted = true
		rec.Progress = 1
		rec.ServerUpdatedAt = serverStamp
		return rec, nil
	}
	h.coordinator.SetActiveLesson("lesson-peep")
	dirtyLesson(t, h, "lesson-peep", 0.4)

	require.True(t, h.coordinator.Flush(ctx))

	rec := h.store.Get("lesson-peep")
	assert.True(t, rec.IsCompleted)
	assert.Equal(t, float64(1), rec.Progress)
	assert.Equal(t, serverStamp, rec.ServerUpdatedAt)
}

func TestStatusEventsEmitted(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, true)

	var mu sync.Mutex
	var seen []domain.SyncStatus
	h.emitter.RegisterHandler(events.HandlerFunc(func(_ context.Context, event *events.Event) error {
		if event.Type != events.TypeStatusChanged {
			return nil
		}
		var payload events.StatusChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, payload.Status)
		mu.Unlock()
		return nil
	}))

	h.coordinator.SetActiveLesson("lesson-peep")
	dirtyLesson(t, h, "lesson-peep", 0.5)
	require.True(t, h.coordinator.Flush(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.SyncStatus{
		domain.SyncStatusDirty,
		domain.SyncStatusSaving,
		domain.SyncStatusSaved,
	}, seen)
}

func TestCoordinatorStartsOfflineQueuedWithPersistedBacklog(t *testing.T) {
	ctx := context.Background()
	logger := setupTestLogger()
	kv := storage.NewMemory()

	first := outbox.NewQueue(kv, logger)
	first.Enqueue(ctx, domain.ProgressRecord{LessonID: "lesson-peep", ClientUpdatedAt: time.Now()})

	// A fresh process over the same storage sees the backlog immediately.
	queue := outbox.NewQueue(kv, logger)
	coordinator := NewCoordinator(Deps{
		Store:         progress.NewStore(storage.NewMemory(), logger),
		Queue:         queue,
		Confirmations: outbox.NewConfirmationLog(storage.NewMemory(), 24*time.Hour, logger),
		API:           &fakeAPI{},
		Auth:          auth.Static{Token: "t"},
		Monitor:       connectivity.NewManual(false),
		Emitter:       events.NewInMemoryEmitter(logger),
		Logger:        logger,
	}, DefaultConfig())

	status, _ := coordinator.Status()
	assert.Equal(t, domain.SyncStatusOfflineQueued, status)
}

func TestResetStateReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t, true)
	dirtyLesson(t, h, "lesson-peep", 0.5)

	h.coordinator.ResetState(ctx)

	status, _ := h.coordinator.Status()
	assert.Equal(t, domain.SyncStatusIdle, status)
	assert.Zero(t, h.coordinator.Stats())
}
