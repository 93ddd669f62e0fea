package domain

// SyncStatus represents the engine's externally observable sync state.
type SyncStatus string

// Possible sync status values. Transitions follow
// idle -> dirty -> saving -> {saved | offline-queued | error}, returning to
// dirty on the next local mutation. offline-queued is additionally
// recomputed at startup when the persisted queue is non-empty.
const (
	SyncStatusIdle          SyncStatus = "idle"
	SyncStatusDirty         SyncStatus = "dirty"
	SyncStatusSaving        SyncStatus = "saving"
	SyncStatusSaved         SyncStatus = "saved"
	SyncStatusOfflineQueued SyncStatus = "offline-queued"
	SyncStatusError         SyncStatus = "error"
)

// Valid reports whether the status is one of the defined constants.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusIdle, SyncStatusDirty, SyncStatusSaving,
		SyncStatusSaved, SyncStatusOfflineQueued, SyncStatusError:
		return true
	}
	return false
}
