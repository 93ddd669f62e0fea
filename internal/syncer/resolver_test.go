package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ventlearn/progress-sync/internal/domain"
)

var (
	t1 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
)

func TestMergeServerAbsent(t *testing.T) {
	local := &domain.ProgressRecord{LessonID: "l1", Progress: 0.5, ClientUpdatedAt: t1}

	record, requeue := Merge(local, nil, t2)

	assert.Equal(t, *local, record)
	assert.False(t, requeue)
}

func TestMergeServerAbsentStampsSyntheticTimestamp(t *testing.T) {
	local := &domain.ProgressRecord{LessonID: "l1", Progress: 0.5}

	record, requeue := Merge(local, nil, t2)

	assert.Equal(t, t2, record.ClientUpdatedAt, "an unstamped local record gets a synthetic stamp")
	assert.False(t, requeue)
}

func TestMergeLocalAbsent(t *testing.T) {
	server := &domain.ProgressRecord{LessonID: "l1", Progress: 0.8, ServerUpdatedAt: t2}

	record, requeue := Merge(nil, server, t1)

	assert.Equal(t, 0.8, record.Progress)
	assert.Equal(t, t2, record.ClientUpdatedAt,
		"ClientUpdatedAt defaults to ServerUpdatedAt when the server never saw one")
	assert.False(t, requeue)
}

func TestMergeLocalNewerWins(t *testing.T) {
	local := &domain.ProgressRecord{LessonID: "l1", Progress: 0.9, ClientUpdatedAt: t2}
	server := &domain.ProgressRecord{LessonID: "l1", Progress: 0.3, ServerUpdatedAt: t1}

	record, requeue := Merge(local, server, t2)

	assert.Equal(t, 0.9, record.Progress, "local fields win when the device's intent postdates the server")
	assert.Equal(t, t1, record.ServerUpdatedAt, "the server acknowledgment is adopted")
	assert.Equal(t, t2, record.ClientUpdatedAt)
	assert.True(t, requeue, "the server must still be told about the local state")
}

func TestMergeServerNewerWins(t *testing.T) {
	local := &domain.ProgressRecord{LessonID: "l1", Progress: 0.9, ClientUpdatedAt: t1}
	server := &domain.ProgressRecord{
		LessonID: "l1", Progress: 0.3,
		ClientUpdatedAt: t1, ServerUpdatedAt: t2,
	}

	record, requeue := Merge(local, server, t2)

	assert.Equal(t, 0.3, record.Progress, "the server snapshot fully replaces local state")
	assert.False(t, requeue)
}

func TestMergeEqualTimestampsServerWins(t *testing.T) {
	local := &domain.ProgressRecord{LessonID: "l1", Progress: 0.9, ClientUpdatedAt: t1}
	server := &domain.ProgressRecord{LessonID: "l1", Progress: 0.3, ServerUpdatedAt: t1}

	record, requeue := Merge(local, server, t2)

	assert.Equal(t, 0.3, record.Progress, "ties go to the server; only strictly newer local state wins")
	assert.False(t, requeue)
}

func TestMergeBothAbsent(t *testing.T) {
	record, requeue := Merge(nil, nil, t1)

	assert.Equal(t, domain.ProgressRecord{}, record)
	assert.False(t, requeue)
}

func TestMergeIsPure(t *testing.T) {
	local := &domain.ProgressRecord{LessonID: "l1", Progress: 0.9, ClientUpdatedAt: t2}
	server := &domain.ProgressRecord{LessonID: "l1", Progress: 0.3, ServerUpdatedAt: t1}

	first, firstRequeue := Merge(local, server, t2)
	second, secondRequeue := Merge(local, server, t2)

	assert.Equal(t, first, second, "re-applying the merge must not accumulate drift")
	assert.Equal(t, firstRequeue, secondRequeue)
	assert.Equal(t, 0.9, local.Progress, "inputs must not be mutated")
	assert.Equal(t, 0.3, server.Progress)
}

// LWW property: for all timestamp orderings, local fields are chosen iff
// the local stamp is strictly later than the server stamp.
func TestMergeLWWProperty(t *testing.T) {
	stamps := []time.Time{t1, t2, t2.Add(time.Hour)}

	for _, localStamp := range stamps {
		for _, serverStamp := range stamps {
			local := &domain.ProgressRecord{LessonID: "l", Progress: 0.11, ClientUpdatedAt: localStamp}
			server := &domain.ProgressRecord{LessonID: "l", Progress: 0.99, ServerUpdatedAt: serverStamp}

			record, requeue := Merge(local, server, t2)

			if localStamp.After(serverStamp) {
				assert.Equal(t, 0.11, record.Progress, "local=%v server=%v", localStamp, serverStamp)
				assert.True(t, requeue)
			} else {
				assert.Equal(t, 0.99, record.Progress, "local=%v server=%v", localStamp, serverStamp)
				assert.False(t, requeue)
			}
		}
	}
}
