package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseops/intake-console/internal/model"
)

func entry(id, createdAt string, acknowledged bool) model.NotificationEntry {
	return model.NotificationEntry{
		ID:           id,
		CreatedAt:    createdAt,
		Message:      "case matched triage preferences",
		Acknowledged: acknowledged,
	}
}

func TestMergeUnionKeepsExistingOnly(t *testing.T) {
	existing := []model.NotificationEntry{entry("n1", "2026-08-01T10:00:00Z", false)}
	incoming := []model.NotificationEntry{entry("n2", "2026-08-02T10:00:00Z", false)}

	merged := Merge(existing, incoming)
	require.Len(t, merged, 2)
	// Newest first.
	assert.Equal(t, "n2", merged[0].ID)
	assert.Equal(t, "n1", merged[1].ID)
}

func TestMergeIncomingReplacesSlot(t *testing.T) {
	existing := []model.NotificationEntry{entry("n1", "2026-08-01T10:00:00Z", false)}
	updated := entry("n1", "2026-08-01T10:00:00Z", false)
	updated.Message = "updated message"

	merged := Merge(existing, []model.NotificationEntry{updated})
	require.Len(t, merged, 1)
	assert.Equal(t, "updated message", merged[0].Message)
}

func TestMergeAcknowledgmentIsSticky(t *testing.T) {
	existing := []model.NotificationEntry{entry("n1", "2026-08-01T10:00:00Z", true)}
	incoming := []model.NotificationEntry{entry("n1", "2026-08-01T10:00:00Z", false)}

	merged := Merge(existing, incoming)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Acknowledged, "acknowledged entries must stay acknowledged")
}

func TestMergeDoesNotUnstickIncomingAck(t *testing.T) {
	// An incoming entry that is itself acknowledged stays acknowledged even if
	// the existing slot was not.
	existing := []model.NotificationEntry{entry("n1", "2026-08-01T10:00:00Z", false)}
	incoming := []model.NotificationEntry{entry("n1", "2026-08-01T10:00:00Z", true)}

	merged := Merge(existing, incoming)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Acknowledged)
}

func TestMergeSortsNewestFirst(t *testing.T) {
	merged := Merge(nil, []model.NotificationEntry{
		entry("old", "2026-08-01T10:00:00Z", false),
		entry("new", "2026-08-03T10:00:00Z", false),
		entry("mid", "2026-08-02T10:00:00Z", false),
	})
	require.Len(t, merged, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{merged[0].ID, merged[1].ID, merged[2].ID})
}

func TestMergeUnparseableTimestampsSortLast(t *testing.T) {
	merged := Merge(nil, []model.NotificationEntry{
		entry("bad", "not-a-timestamp", false),
		entry("good", "2026-08-01T10:00:00Z", false),
	})
	require.Len(t, merged, 2)
	assert.Equal(t, "good", merged[0].ID)
	assert.Equal(t, "bad", merged[1].ID)
}

func TestMergeIdempotent(t *testing.T) {
	existing := []model.NotificationEntry{
		entry("n1", "2026-08-01T10:00:00Z", true),
		entry("n2", "2026-08-02T10:00:00Z", false),
	}
	incoming := []model.NotificationEntry{
		entry("n1", "2026-08-01T10:00:00Z", false),
		entry("n3", "2026-08-03T10:00:00Z", false),
	}

	once := Merge(existing, incoming)
	twice := Merge(once, incoming)
	assert.Equal(t, once, twice)
}
