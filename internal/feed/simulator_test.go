package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseops/intake-console/internal/model"
	"github.com/caseops/intake-console/internal/state"
)

func record(id string) model.CaseRecord {
	return model.CaseRecord{IncidentID: id, IncidentCategory: "Vehicle Collision"}
}

func newArmedStore(t *testing.T, queued ...string) *state.Store {
	t.Helper()
	st := state.NewStore(state.Options{})
	records := make([]model.CaseRecord, 0, len(queued))
	for _, id := range queued {
		records = append(records, record(id))
	}
	if len(records) > 0 {
		require.Equal(t, len(records), st.Enqueue(records))
	}
	return st
}

func TestSimulatorDrainsQueue(t *testing.T) {
	st := newArmedStore(t, "Q1", "Q2", "Q3")
	sim := NewSimulator(st, Options{Interval: 5 * time.Millisecond})
	sim.Start()
	defer sim.Stop()

	require.Eventually(t, func() bool {
		return len(st.Snapshot().QueuedCases) == 0
	}, 2*time.Second, 5*time.Millisecond)

	snapshot := st.Snapshot()
	require.Len(t, snapshot.Cases, 3)
	assert.Equal(t, "Q3", snapshot.Cases[0].IncidentID, "later promotions land in front")

	// With nothing queued the timer disarms.
	require.Eventually(t, func() bool {
		return !sim.Armed()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSimulatorIdleWhenQueueEmpty(t *testing.T) {
	st := newArmedStore(t)
	sim := NewSimulator(st, Options{Interval: 5 * time.Millisecond})
	sim.Start()
	defer sim.Stop()

	assert.False(t, sim.Armed())
}

func TestSimulatorDisarmsOnDisable(t *testing.T) {
	st := newArmedStore(t, "Q1", "Q2")
	sim := NewSimulator(st, Options{Interval: time.Hour})
	sim.Start()
	defer sim.Stop()

	require.True(t, sim.Armed())

	st.SetFeedEnabled(false)
	require.Eventually(t, func() bool {
		return !sim.Armed()
	}, 2*time.Second, 5*time.Millisecond)

	// Nothing promoted: the interval never elapsed.
	assert.Len(t, st.Snapshot().QueuedCases, 2)

	st.SetFeedEnabled(true)
	require.Eventually(t, func() bool {
		return sim.Armed()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSimulatorArmsWhenCasesArrive(t *testing.T) {
	st := newArmedStore(t)
	sim := NewSimulator(st, Options{Interval: 5 * time.Millisecond})
	sim.Start()
	defer sim.Stop()

	require.False(t, sim.Armed())

	st.Enqueue([]model.CaseRecord{record("Q1")})
	require.Eventually(t, func() bool {
		return len(st.Snapshot().Cases) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSimulatorStalePromotionIsNoOp(t *testing.T) {
	// Disable the feed directly in the store; a Tick fired by a stale timer
	// must promote nothing because the guard re-checks under the store lock.
	st := newArmedStore(t, "Q1")
	st.SetFeedEnabled(false)

	_, ok := st.Tick()
	assert.False(t, ok)
	assert.Len(t, st.Snapshot().QueuedCases, 1)
}

func TestSimulatorIgnoresStaleSnapshot(t *testing.T) {
	st := newArmedStore(t, "Q1")
	sim := NewSimulator(st, Options{Interval: time.Hour})
	sim.Start()
	defer sim.Stop()

	require.True(t, sim.Armed())

	// Listeners run outside the store lock, so a queue-empty snapshot from
	// before the enqueue can be delivered after it. The lower sequence marks
	// it stale; it must not disarm a timer the real state still calls for.
	_, seq := st.Current()
	sim.refresh(seq-1, model.InitialState())
	assert.True(t, sim.Armed(), "stale snapshot must not disarm the timer")

	// A delivery at the current sequence is honored as usual.
	snapshot, seq := st.Current()
	sim.refresh(seq, snapshot)
	assert.True(t, sim.Armed())
}

func TestSimulatorStopPreventsRearming(t *testing.T) {
	st := newArmedStore(t, "Q1")
	sim := NewSimulator(st, Options{Interval: time.Hour})
	sim.Start()
	require.True(t, sim.Armed())

	sim.Stop()
	assert.False(t, sim.Armed())

	// Further store changes must not re-arm a stopped simulator.
	st.Enqueue([]model.CaseRecord{record("Q2")})
	assert.False(t, sim.Armed())
}
