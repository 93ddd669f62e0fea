// Package progress implements the progress record store: the single source
// of truth for what the learner's device currently believes about each
// lesson. The store is the only writer of progress state; other components
// mutate it solely by handing back records merged by the conflict resolver.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ventlearn/progress-sync/internal/domain"
	"github.com/ventlearn/progress-sync/internal/platform/storage"
)

// ModuleAggregate is the derived completion summary for a set of lessons
// within a module. Each lesson contributes 1 if completed, otherwise its
// clamped progress; Percent is the mean expressed as a rounded percentage.
type ModuleAggregate struct {
	ModuleID       string `json:"moduleId"`
	CompletedCount int    `json:"completedCount"`
	TotalCount     int    `json:"totalCount"`
	Percent        int    `json:"percent"`
}

// Store holds one ProgressRecord per lesson, keyed by lesson ID, and writes
// a serialized snapshot through the storage capability on every mutation.
// Persistence failures are logged, never fatal.
type Store struct {
	mu       sync.RWMutex
	records  map[string]domain.ProgressRecord
	kv       storage.KV
	logger   *slog.Logger
	timeFunc func() time.Time // Injectable for testing
}

// NewStore creates a store backed by kv, reloading any persisted snapshot
// from a previous session.
func NewStore(kv storage.KV, logger *slog.Logger) *Store {
	s := &Store{
		records:  make(map[string]domain.ProgressRecord),
		kv:       kv,
		logger:   logger.With("component", "progress_store"),
		timeFunc: time.Now,
	}
	s.reload()
	return s
}

func (s *Store) reload() {
	data, err := s.kv.Load(context.Background(), storage.KeyProgressSnapshot)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("failed to reload progress snapshot", "error", err)
		return
	}

	var records map[string]domain.ProgressRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("discarding corrupt progress snapshot", "error", err)
		return
	}
	s.records = records
	s.logger.Info("reloaded progress snapshot", "lesson_count", len(records))
}

// persist must be called with the lock held.
func (s *Store) persist(ctx context.Context) {
	data, err := json.Marshal(s.records)
	if err != nil {
		s.logger.Error("failed to serialize progress snapshot", "error", err)
		return
	}
	if err := s.kv.Save(ctx, storage.KeyProgressSnapshot, data); err != nil {
		s.logger.Warn("failed to persist progress snapshot", "error", err)
	}
}

// Get returns the stored record for the lesson, or a freshly materialized
// zero-progress default if none exists yet.
func (s *Store) Get(lessonID string) domain.ProgressRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[lessonID]; ok {
		return rec
	}
	return domain.NewProgressRecord(lessonID)
}

// Update merges the partial update into the lesson's record, re-stamps
// ClientUpdatedAt, persists the snapshot, and returns the new record. It
// never fails: invalid numeric inputs are clamped or defaulted.
func (s *Store) Update(ctx context.Context, lessonID string, upd domain.ProgressUpdate) domain.ProgressRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[lessonID]
	if !ok {
		rec = domain.NewProgressRecord(lessonID)
	}

	rec = rec.Apply(upd)

	// ClientUpdatedAt is monotonically non-decreasing within a session even
	// if the wall clock steps backwards.
	now := s.timeFunc().UTC()
	if now.Before(rec.ClientUpdatedAt) {
		now = rec.ClientUpdatedAt
	}
	rec.ClientUpdatedAt = now

	s.records[lessonID] = rec
	s.persist(ctx)
	return rec
}

// ApplyMerged writes a record produced by the conflict resolver back into
// the store. It does not re-stamp ClientUpdatedAt; the resolver already
// decided whose timestamps win.
func (s *Store) ApplyMerged(ctx context.Context, rec domain.ProgressRecord) {
	if rec.LessonID == "" {
		s.logger.Warn("ignoring merged record without lesson ID")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.LessonID] = rec.Normalize()
	s.persist(ctx)
}

// Aggregate computes the completion summary for the given lessons. An empty
// set yields all zeros.
func (s *Store) Aggregate(moduleID string, lessonIDs []string) ModuleAggregate {
	agg := ModuleAggregate{ModuleID: moduleID, TotalCount: len(lessonIDs)}
	if len(lessonIDs) == 0 {
		return agg
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum float64
	for _, lessonID := range lessonIDs {
		rec, ok := s.records[lessonID]
		if !ok {
			rec = domain.NewProgressRecord(lessonID)
		}
		if rec.IsCompleted {
			agg.CompletedCount++
		}
		sum += rec.Completion()
	}

	agg.Percent = int(math.Round(sum / float64(len(lessonIDs)) * 100))
	return agg
}

// Records returns a copy of every stored record, for read-only consumers.
func (s *Store) Records() []domain.ProgressRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ProgressRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}

// Reset clears the whole store, removing the persisted snapshot.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]domain.ProgressRecord)
	if err := s.kv.Delete(ctx, storage.KeyProgressSnapshot); err != nil {
		s.logger.Warn("failed to remove progress snapshot", "error", err)
	}
}
