package syncer

import (
	"time"

	"github.com/ventlearn/progress-sync/internal/domain"
)

// Merge reconciles a local snapshot with a server snapshot using
// last-write-wins and reports whether the winning record still needs to be
// pushed. Either side may be nil, meaning that side has no snapshot.
//
// When the local ClientUpdatedAt postdates the server's ServerUpdatedAt,
// the device's intent wins: local fields are kept, the server's
// acknowledgment timestamp is adopted, and the record is flagged for
// re-push because the server has not seen it yet. Otherwise the server
// snapshot fully replaces local state.
//
// The function is pure, with no clock reads or side effects, so it can be
// re-applied on retry without accumulating drift. now is used only to stamp
// a synthetic ClientUpdatedAt on a local record that was never stamped.
func Merge(local, server *domain.ProgressRecord, now time.Time) (domain.ProgressRecord, bool) {
	switch {
	case server == nil && local == nil:
		return domain.ProgressRecord{}, false

	case server == nil:
		record := *local
		if record.ClientUpdatedAt.IsZero() {
			record.ClientUpdatedAt = now
		}
		return record, false

	case local == nil:
		record := *server
		if record.ClientUpdatedAt.IsZero() {
			record.ClientUpdatedAt = record.ServerUpdatedAt
		}
		return record, false
	}

	if local.ClientUpdatedAt.After(server.ServerUpdatedAt) {
		record := *local
		record.ServerUpdatedAt = server.ServerUpdatedAt
		return record, true
	}

	record := *server
	if record.ClientUpdatedAt.IsZero() {
		record.ClientUpdatedAt = record.ServerUpdatedAt
	}
	return record, false
}
