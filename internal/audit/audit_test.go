package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Entry{
		Action:  "import",
		Details: map[string]interface{}{"last_action": "Imported 4 cases from sheet sheet-1"},
	}))
	require.NoError(t, j.Record(ctx, Entry{Action: "tick", IncidentID: "INC-001"}))

	entries, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for _, e := range entries {
		assert.NotEmpty(t, e.ID, "ids are generated when unset")
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestRecentFiltersByAction(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Entry{Action: "tick", IncidentID: "INC-001"}))
	require.NoError(t, j.Record(ctx, Entry{Action: "tick", IncidentID: "INC-002"}))
	require.NoError(t, j.Record(ctx, Entry{Action: "dismiss"}))

	ticks, err := j.Recent(ctx, "tick", 10)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	for _, e := range ticks {
		assert.Equal(t, "tick", e.Action)
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, Entry{Action: "select"}))
	}

	entries, err := j.Recent(ctx, "", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDetailsRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Entry{
		Action:  "preferences",
		Details: map[string]interface{}{"last_action": "Updated triage preferences"},
	}))

	entries, err := j.Recent(ctx, "preferences", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Updated triage preferences", entries[0].Details["last_action"])
}

func TestCountByAction(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Entry{Action: "import"}))
	require.NoError(t, j.Record(ctx, Entry{Action: "tick"}))
	require.NoError(t, j.Record(ctx, Entry{Action: "tick"}))

	counts, err := j.CountByAction(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["import"])
	assert.Equal(t, 2, counts["tick"])
}
