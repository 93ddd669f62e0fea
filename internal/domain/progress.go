package domain

import (
	"encoding/json"
	"time"
)

// MaxMetadataBytes bounds the serialized size of a record's opaque metadata
// document. Oversized metadata is dropped during normalization rather than
// rejected, so local mutation paths never fail.
const MaxMetadataBytes = 4096

// ProgressRecord is the device's current belief about a learner's progress
// in a single lesson. Exactly one record exists per lesson ID at any time.
//
// ClientUpdatedAt is stamped by the device on every local mutation and is
// monotonically non-decreasing for a lesson within one session.
// ServerUpdatedAt is stamped only by the remote system on acceptance; a zero
// value means the server has never acknowledged this record.
type ProgressRecord struct {
	LessonID        string         `json:"lessonId"`
	ModuleID        string         `json:"moduleId,omitempty"`
	PositionSeconds int            `json:"positionSeconds"`
	Progress        float64        `json:"progress"`
	IsCompleted     bool           `json:"isCompleted"`
	Attempts        int            `json:"attempts"`
	Score           *float64       `json:"score,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ClientUpdatedAt time.Time      `json:"clientUpdatedAt,omitempty"`
	ServerUpdatedAt time.Time      `json:"serverUpdatedAt,omitempty"`
}

// NewProgressRecord materializes the default zero-progress record for a
// lesson. It is created lazily on first access.
func NewProgressRecord(lessonID string) ProgressRecord {
	return ProgressRecord{
		LessonID: lessonID,
	}
}

// ProgressUpdate is a partial mutation applied to a ProgressRecord. Nil
// fields leave the existing value untouched. Metadata, when present,
// replaces the record's metadata document wholesale.
type ProgressUpdate struct {
	ModuleID        *string        `json:"moduleId,omitempty"`
	PositionSeconds *int           `json:"positionSeconds,omitempty"`
	Progress        *float64       `json:"progress,omitempty"`
	IsCompleted     *bool          `json:"isCompleted,omitempty"`
	Attempts        *int           `json:"attempts,omitempty"`
	Score           *float64       `json:"score,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Apply merges the partial update into the record. It does not stamp
// ClientUpdatedAt; callers that represent a local mutation do that via the
// store so the monotonicity invariant is enforced in one place.
func (r ProgressRecord) Apply(upd ProgressUpdate) ProgressRecord {
	if upd.ModuleID != nil {
		r.ModuleID = *upd.ModuleID
	}
	if upd.PositionSeconds != nil {
		r.PositionSeconds = *upd.PositionSeconds
	}
	if upd.Progress != nil {
		r.Progress = *upd.Progress
	}
	if upd.IsCompleted != nil {
		r.IsCompleted = *upd.IsCompleted
	}
	if upd.Attempts != nil {
		r.Attempts = *upd.Attempts
	}
	if upd.Score != nil {
		score := *upd.Score
		r.Score = &score
	}
	if upd.Metadata != nil {
		r.Metadata = upd.Metadata
	}
	return r.Normalize()
}

// Normalize clamps or defaults invalid numeric fields instead of rejecting
// them, and enforces the invariant that a completed lesson reports full
// progress. Oversized metadata is dropped.
func (r ProgressRecord) Normalize() ProgressRecord {
	if r.PositionSeconds < 0 {
		r.PositionSeconds = 0
	}
	if r.Attempts < 0 {
		r.Attempts = 0
	}
	if r.Progress < 0 {
		r.Progress = 0
	}
	if r.Progress > 1 {
		r.Progress = 1
	}
	if r.IsCompleted {
		r.Progress = 1
	}
	if r.Metadata != nil {
		if data, err := json.Marshal(r.Metadata); err != nil || len(data) > MaxMetadataBytes {
			r.Metadata = nil
		}
	}
	return r
}

// Validate checks the invariants a record must satisfy before it is pushed
// to the remote system.
func (r ProgressRecord) Validate() error {
	if r.LessonID == "" {
		return ErrEmptyLessonID
	}
	if r.Metadata != nil {
		data, err := json.Marshal(r.Metadata)
		if err != nil || len(data) > MaxMetadataBytes {
			return ErrMetadataTooLarge
		}
	}
	return nil
}

// Completion returns the record's contribution to a module aggregate: 1 for
// a completed lesson, otherwise progress clamped to [0,1].
func (r ProgressRecord) Completion() float64 {
	if r.IsCompleted {
		return 1
	}
	if r.Progress < 0 {
		return 0
	}
	if r.Progress > 1 {
		return 1
	}
	return r.Progress
}
