package remote

import (
	"context"

	"github.com/ventlearn/progress-sync/internal/domain"
)

// API is the contract of the remote progress service as seen by the sync
// engine. The service itself is an external collaborator; only this client
// lives in the repository.
type API interface {
	// FetchProgress returns the server's progress records, optionally
	// filtered to one lesson (empty lessonID fetches everything).
	FetchProgress(ctx context.Context, lessonID string) ([]domain.ProgressRecord, error)

	// UpsertProgress pushes a single record and returns the server's full
	// record including its assigned ServerUpdatedAt.
	UpsertProgress(ctx context.Context, rec domain.ProgressRecord) (domain.ProgressRecord, error)

	// SyncBatch pushes a bounded batch of records. The result's Merged
	// slice is positionally aligned to the request items.
	SyncBatch(ctx context.Context, items []domain.ProgressRecord) (*SyncResult, error)
}

// MergeOutcome is the server's per-item verdict for a batch sync, aligned
// positionally to the request items. Error, when set, carries one of the
// recognized validation codes.
type MergeOutcome struct {
	LessonID string `json:"lessonId"`
	Merged   bool   `json:"merged"`
	Error    string `json:"error,omitempty"`
}

// SyncResult is the response of the bulk sync endpoint.
type SyncResult struct {
	Merged  []MergeOutcome          `json:"merged"`
	Records []domain.ProgressRecord `json:"records"`
}

// syncRequest is the bulk sync request body.
type syncRequest struct {
	Items []domain.ProgressRecord `json:"items"`
}

// errorResponse is the server's error body shape.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
