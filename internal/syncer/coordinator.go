package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/ventlearn/progress-sync/internal/auth"
	"github.com/ventlearn/progress-sync/internal/connectivity"
	"github.com/ventlearn/progress-sync/internal/domain"
	"github.com/ventlearn/progress-sync/internal/events"
	"github.com/ventlearn/progress-sync/internal/outbox"
	"github.com/ventlearn/progress-sync/internal/progress"
	"github.com/ventlearn/progress-sync/internal/redact"
	"github.com/ventlearn/progress-sync/internal/remote"
)

// Config holds the coordinator's tunables.
type Config struct {
	// FlushInterval is the periodic flush cadence while a lesson session
	// is active.
	FlushInterval time.Duration

	// BatchSize bounds how many outbox events one bulk sync call carries.
	BatchSize int

	// ConfirmationTTL is the retention window for replay confirmations.
	ConfirmationTTL time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval:   30 * time.Second,
		BatchSize:       100,
		ConfirmationTTL: 24 * time.Hour,
	}
}

// Stats are cumulative sync counters, exposed read-only.
type Stats struct {
	Pushed           int       `json:"pushed"`
	Confirmed        int       `json:"confirmed"`
	Conflicts        int       `json:"conflicts"`
	ValidationDrops  int       `json:"validation_drops"`
	TransientRetries int       `json:"transient_retries"`
	LastSyncAt       time.Time `json:"last_sync_at"`
}

// Deps are the collaborators a Coordinator drives.
type Deps struct {
	Store         *progress.Store
	Queue         *outbox.Queue
	Confirmations *outbox.ConfirmationLog
	API           remote.API
	Auth          auth.Provider
	Monitor       connectivity.Monitor
	Emitter       events.Emitter
	Logger        *slog.Logger
}

// Coordinator decides when synchronization happens and performs the flush
// cycle: the active-lesson fast path, the bounded backlog drain, and the
// merge-back of server snapshots through the conflict resolver.
//
// The in-flight guard is the system's only explicit mutual exclusion: a
// flush or reconciliation entered while another is outstanding returns
// immediately as a no-op.
type Coordinator struct {
	store         *progress.Store
	queue         *outbox.Queue
	confirmations *outbox.ConfirmationLog
	api           remote.API
	auth          auth.Provider
	monitor       connectivity.Monitor
	emitter       events.Emitter
	logger        *slog.Logger
	cfg           Config

	inFlight atomic.Bool
	timeFunc func() time.Time // Injectable for testing

	mu           sync.Mutex
	status       domain.SyncStatus
	message      string
	activeLesson string
	dirty        map[string]struct{}
	counters     Stats

	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewCoordinator wires a coordinator from its collaborators. If the
// persisted queue is non-empty the initial status is offline-queued,
// independent of any in-memory transition history.
func NewCoordinator(deps Deps, cfg Config) *Coordinator {
	c := &Coordinator{
		store:         deps.Store,
		queue:         deps.Queue,
		confirmations: deps.Confirmations,
		api:           deps.API,
		auth:          deps.Auth,
		monitor:       deps.Monitor,
		emitter:       deps.Emitter,
		logger:        deps.Logger.With("component", "sync_coordinator"),
		cfg:           cfg,
		timeFunc:      time.Now,
		dirty:         make(map[string]struct{}),
		status:        domain.SyncStatusIdle,
	}
	if c.queue.Len() > 0 {
		c.status = domain.SyncStatusOfflineQueued
	}
	return c
}

// Status returns the current sync status and, for error states, the
// human-readable message.
func (c *Coordinator) Status() (domain.SyncStatus, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.message
}

// Stats returns a copy of the cumulative sync counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// SetActiveLesson records which lesson the learner is currently in; the
// active lesson gets the latency-sensitive single-upsert path on flush.
func (c *Coordinator) SetActiveLesson(lessonID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeLesson = lessonID
}

// MarkDirty notes a local mutation to the given lesson and moves the
// status to dirty.
func (c *Coordinator) MarkDirty(ctx context.Context, lessonID string) {
	c.mu.Lock()
	c.dirty[lessonID] = struct{}{}
	c.mu.Unlock()
	c.setStatus(ctx, domain.SyncStatusDirty, "")
}

// ResetState clears the dirty set and returns the status to idle. Used by
// the full reset path.
func (c *Coordinator) ResetState(ctx context.Context) {
	c.mu.Lock()
	c.dirty = make(map[string]struct{})
	c.activeLesson = ""
	c.counters = Stats{}
	c.mu.Unlock()
	c.setStatus(ctx, domain.SyncStatusIdle, "")
}

func (c *Coordinator) setStatus(ctx context.Context, status domain.SyncStatus, message string) {
	c.mu.Lock()
	changed := c.status != status || c.message != message
	c.status = status
	c.message = message
	c.mu.Unlock()

	if !changed || c.emitter == nil {
		return
	}
	event, err := events.NewEvent(events.TypeStatusChanged, events.StatusChangedPayload{
		Status:  status,
		Message: message,
	})
	if err != nil {
		c.logger.Error("failed to build status event", "error", err)
		return
	}
	if err := c.emitter.EmitEvent(ctx, event); err != nil {
		c.logger.Warn("status event handler failed", "error", err)
	}
}

// online reports whether a sync attempt can be made at all: the device
// believes it has connectivity and the auth collaborator supplies a token.
// Absence of a token means "cannot sync", not an error.
func (c *Coordinator) online(ctx context.Context) bool {
	if !c.monitor.Online() {
		return false
	}
	_, ok := c.auth.Credentials(ctx)
	return ok
}

// Flush runs one synchronization cycle and reports whether everything
// pending reached the server. A flush entered while another is in flight
// is a no-op returning false. Offline, unsaved changes are queued and the
// status becomes offline-queued; no network I/O is attempted.
func (c *Coordinator) Flush(ctx context.Context) bool {
	if !c.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer c.inFlight.Store(false)

	c.mu.Lock()
	activeLesson := c.activeLesson
	_, activeDirty := c.dirty[activeLesson]
	backlogDirty := make([]string, 0, len(c.dirty))
	for lessonID := range c.dirty {
		if lessonID != activeLesson {
			backlogDirty = append(backlogDirty, lessonID)
		}
	}
	c.mu.Unlock()

	if !c.online(ctx) {
		c.queueDirty(ctx, activeLesson, activeDirty, backlogDirty)
		c.setStatus(ctx, domain.SyncStatusOfflineQueued, "")
		return false
	}

	c.setStatus(ctx, domain.SyncStatusSaving, "")
	now := c.timeFunc().UTC()
	var surfaced []string

	// Latency-sensitive fast path: push the active lesson on its own,
	// independent of the backlog.
	if activeDirty {
		surfaced = append(surfaced, c.pushActive(ctx, activeLesson, now)...)
	}

	// Remaining unsaved lessons ride the batch path.
	for _, lessonID := range backlogDirty {
		c.queue.Enqueue(ctx, c.store.Get(lessonID))
		c.clearDirty(lessonID)
	}

	surfaced = append(surfaced, c.drainBacklog(ctx)...)

	c.mu.Lock()
	c.counters.LastSyncAt = now
	c.mu.Unlock()

	return c.finish(ctx, surfaced)
}

// queueDirty moves every unsaved lesson snapshot into the outbox, active
// lesson first.
func (c *Coordinator) queueDirty(ctx context.Context, activeLesson string, activeDirty bool, backlog []string) {
	if activeDirty {
		c.queue.Enqueue(ctx, c.store.Get(activeLesson))
		c.clearDirty(activeLesson)
	}
	for _, lessonID := range backlog {
		c.queue.Enqueue(ctx, c.store.Get(lessonID))
		c.clearDirty(lessonID)
	}
}

func (c *Coordinator) clearDirty(lessonID string) {
	c.mu.Lock()
	delete(c.dirty, lessonID)
	c.mu.Unlock()
}

// pushActive pushes the active lesson's record via the single-item upsert
// and classifies the outcome. Returned messages are surfaced validation
// failures.
func (c *Coordinator) pushActive(ctx context.Context, lessonID string, now time.Time) []string {
	rec := c.store.Get(lessonID)
	c.mu.Lock()
	c.counters.Pushed++
	c.mu.Unlock()

	server, err := c.api.UpsertProgress(ctx, rec)
	switch {
	case err == nil:
		c.clearDirty(lessonID)
		c.mergeBack(ctx, rec.LessonID, &server, now)
		c.mu.Lock()
		c.counters.Confirmed++
		c.mu.Unlock()
		return nil

	case remote.IsValidation(err):
		// Terminal for this item: dropped from automatic retry, surfaced.
		c.clearDirty(lessonID)
		c.mu.Lock()
		c.counters.ValidationDrops++
		c.mu.Unlock()
		c.logger.Warn("active lesson rejected by server",
			"lesson_id", lessonID, "error", redact.Error(err))
		return []string{messageFor(err)}

	default:
		// Transient or protocol failure: park the snapshot in the outbox
		// and stay quiet.
		c.clearDirty(lessonID)
		c.queue.Enqueue(ctx, rec)
		c.mu.Lock()
		c.counters.TransientRetries++
		c.mu.Unlock()
		c.logger.Debug("active lesson push failed, queued for retry",
			"lesson_id", lessonID, "error", redact.Error(err))
		return nil
	}
}

// drainBacklog pushes the pending outbox events in bounded batches through
// the bulk endpoint. Responses are matched positionally to request items.
func (c *Coordinator) drainBacklog(ctx context.Context) []string {
	pending := c.queue.Events()
	if len(pending) == 0 {
		return nil
	}

	var surfaced []string
	now := c.timeFunc().UTC()

	for start := 0; start < len(pending); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		items := make([]domain.ProgressRecord, len(batch))
		for i, event := range batch {
			items[i] = event.Record
		}
		c.mu.Lock()
		c.counters.Pushed += len(items)
		c.mu.Unlock()

		result, err := c.api.SyncBatch(ctx, items)
		if err != nil {
			if remote.IsValidation(err) {
				// The whole envelope was rejected; retrying it cannot
				// succeed, so the batch is dropped and reported.
				ids := make([]uuid.UUID, len(batch))
				for i, event := range batch {
					ids[i] = event.ClientEventID
				}
				c.queue.Remove(ctx, ids)
				c.mu.Lock()
				c.counters.ValidationDrops += len(batch)
				c.mu.Unlock()
				surfaced = append(surfaced, messageFor(err))
				continue
			}
			// Transient or protocol: every remaining event stays queued
			// for the next flush.
			c.mu.Lock()
			c.counters.TransientRetries++
			c.mu.Unlock()
			c.logger.Debug("backlog batch failed, retaining events", "error", redact.Error(err))
			break
		}

		var removal []uuid.UUID
		for i, outcome := range result.Merged {
			event := batch[i]

			if outcome.Error != "" {
				// Per-item validation failure: terminal, surfaced.
				removal = append(removal, event.ClientEventID)
				c.mu.Lock()
				c.counters.ValidationDrops++
				c.mu.Unlock()
				surfaced = append(surfaced, remote.ValidationMessage(outcome.Error))
				c.logger.Warn("outbox event rejected by server",
					"client_event_id", event.ClientEventID,
					"lesson_id", outcome.LessonID,
					"code", outcome.Error)
				continue
			}

			var server *domain.ProgressRecord
			if i < len(result.Records) {
				server = &result.Records[i]
			}
			removal = append(removal, event.ClientEventID)
			if server != nil {
				c.confirmations.Record(ctx, event.ClientEventID, *server, now)
			}
			c.mergeBack(ctx, event.Record.LessonID, server, now)
			c.mu.Lock()
			c.counters.Confirmed++
			c.mu.Unlock()
		}
		c.queue.Remove(ctx, removal)
	}

	return surfaced
}

// mergeBack runs the conflict resolver over the server's snapshot and the
// store's current record, writes the winner back, and re-enqueues it when
// the resolver flags it as still needing a push.
func (c *Coordinator) mergeBack(ctx context.Context, lessonID string, server *domain.ProgressRecord, now time.Time) {
	local := c.store.Get(lessonID)
	merged, requeue := Merge(&local, server, now)
	c.store.ApplyMerged(ctx, merged)
	if requeue {
		c.queue.Enqueue(ctx, merged)
		c.mu.Lock()
		c.counters.Conflicts++
		c.mu.Unlock()
	}
}

// MergeServerRecord resolves a freshly fetched server snapshot against the
// local record, outside a flush cycle. Used when activating a lesson so
// that work done on another device is visible before local edits begin.
func (c *Coordinator) MergeServerRecord(ctx context.Context, server domain.ProgressRecord) {
	c.mergeBack(ctx, server.LessonID, &server, c.timeFunc().UTC())
}

// finish computes the terminal status of a cycle: saved when the queue is
// empty, offline-queued when work remains, error when a validation failure
// was surfaced. Returns true only for saved.
func (c *Coordinator) finish(ctx context.Context, surfaced []string) bool {
	switch {
	case len(surfaced) > 0:
		c.setStatus(ctx, domain.SyncStatusError, surfaced[0])
		return false
	case c.queue.Len() == 0:
		c.setStatus(ctx, domain.SyncStatusSaved, "")
		return true
	default:
		c.setStatus(ctx, domain.SyncStatusOfflineQueued, "")
		return false
	}
}

// messageFor extracts the human-readable form of a remote error.
func messageFor(err error) string {
	if apiErr, ok := err.(*remote.APIError); ok {
		return apiErr.Message()
	}
	return fmt.Sprintf("Progress could not be saved: %v", err)
}

// SignalHidden fires a best-effort flush when the host reports the session
// going to background. The caller is not blocked; any operation left
// outstanding at process exit is abandoned.
func (c *Coordinator) SignalHidden(ctx context.Context) {
	go c.Flush(context.WithoutCancel(ctx))
}

// SignalUnload fires a best-effort flush when the host is about to
// terminate. Delivery before shutdown is not guaranteed.
func (c *Coordinator) SignalUnload(ctx context.Context) {
	go c.Flush(context.WithoutCancel(ctx))
}

// Start begins the periodic flush timer and the connectivity watcher. The
// periodic flush only runs while a lesson session is active; connectivity
// restoration triggers reconciliation. If the queue is non-empty and the
// device is online, a reconciliation pass also runs at startup.
func (c *Coordinator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.scheduler = gocron.NewScheduler(time.UTC)
	_, err := c.scheduler.Every(c.cfg.FlushInterval).Do(func() {
		c.mu.Lock()
		active := c.activeLesson != ""
		c.mu.Unlock()
		if active {
			c.Flush(runCtx)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule periodic flush: %w", err)
	}
	c.scheduler.StartAsync()

	if restored := c.monitor.Restored(); restored != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case _, ok := <-restored:
					if !ok {
						return
					}
					c.Reconcile(runCtx)
				}
			}
		}()
	}

	if c.queue.Len() > 0 && c.online(runCtx) {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.Reconcile(runCtx)
		}()
	}

	return nil
}

// Stop halts the timer and the connectivity watcher and waits for them.
// An in-flight network operation is not cancelled; it is simply abandoned
// when the process exits.
func (c *Coordinator) Stop() {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
