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

// ConfirmationLog maps client event IDs to the server replies that
// confirmed them. It exists purely to make outbox replays idempotent after
// a crash between "server accepted" and "queue pruned". Entries are pruned
// by age independently of queue state; pruning early is always safe because
// the server's upsert semantics absorb a duplicate push.
type ConfirmationLog struct {
	mu      sync.Mutex
	entries map[uuid.UUID]domain.ConfirmationEntry
	ttl     time.Duration
	kv      storage.KV
	logger  *slog.Logger
}

// NewConfirmationLog creates a log with the given retention window, backed
// by kv, reloading entries persisted by a previous session.
func NewConfirmationLog(kv storage.KV, ttl time.Duration, logger *slog.Logger) *ConfirmationLog {
	l := &ConfirmationLog{
		entries: make(map[uuid.UUID]domain.ConfirmationEntry),
		ttl:     ttl,
		kv:      kv,
		logger:  logger.With("component", "confirmation_log"),
	}
	l.reload()
	return l
}

func (l *ConfirmationLog) reload() {
	data, err := l.kv.Load(context.Background(), storage.KeyConfirmations)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return
	}
	if err != nil {
		l.logger.Warn("failed to reload confirmation log", "error", err)
		return
	}

	var entries map[uuid.UUID]domain.ConfirmationEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		l.logger.Warn("discarding corrupt confirmation log", "error", err)
		return
	}
	l.entries = entries
}

// persist must be called with the lock held.
func (l *ConfirmationLog) persist(ctx context.Context) {
	data, err := json.Marshal(l.entries)
	if err != nil {
		l.logger.Error("failed to serialize confirmation log", "error", err)
		return
	}
	if err := l.kv.Save(ctx, storage.KeyConfirmations, data); err != nil {
		l.logger.Warn("failed to persist confirmation log", "error", err)
	}
}

// Record stores the server's reply for a confirmed event.
func (l *ConfirmationLog) Record(ctx context.Context, id uuid.UUID, serverRecord domain.ProgressRecord, confirmedAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[id] = domain.ConfirmationEntry{
		ServerRecord: serverRecord,
		ConfirmedAt:  confirmedAt,
	}
	l.persist(ctx)
}

// Lookup returns the confirmation entry for the given event ID, if any.
func (l *ConfirmationLog) Lookup(id uuid.UUID) (domain.ConfirmationEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[id]
	return entry, ok
}

// Prune removes entries confirmed before now minus the retention window and
// reports how many were dropped.
func (l *ConfirmationLog) Prune(ctx context.Context, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.ttl)
	pruned := 0
	for id, entry := range l.entries {
		if entry.ConfirmedAt.Before(cutoff) {
			delete(l.entries, id)
			pruned++
		}
	}
	if pruned > 0 {
		l.persist(ctx)
		l.logger.Debug("pruned confirmation entries", "pruned_count", pruned)
	}
	return pruned
}

// Reset drops every entry and the persisted log.
func (l *ConfirmationLog) Reset(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[uuid.UUID]domain.ConfirmationEntry)
	if err := l.kv.Delete(ctx, storage.KeyConfirmations); err != nil {
		l.logger.Warn("failed to remove persisted confirmation log", "error", err)
	}
}
