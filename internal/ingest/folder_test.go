package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseops/intake-console/internal/model"
	"github.com/caseops/intake-console/internal/state"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestScanOnceJSONArray(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "batch.json", `[
		{"incidentId": "INC-001", "incidentCategory": "Vehicle Collision"},
		{"incidentId": "INC-002", "incidentCategory": "Slip and Fall"}
	]`)

	st := state.NewStore(state.Options{})
	fi := NewFolderIngestor(st, FolderOptions{Dir: dir})
	require.NoError(t, fi.Run(context.Background()))

	snapshot := st.Snapshot()
	require.Len(t, snapshot.QueuedCases, 2)
	assert.Equal(t, "INC-001", snapshot.QueuedCases[0].IncidentID)
}

func TestScanOnceEnvelope(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "batch.json", `{"cases": [{"incidentId": "INC-001"}]}`)

	st := state.NewStore(state.Options{})
	fi := NewFolderIngestor(st, FolderOptions{Dir: dir})
	require.NoError(t, fi.Run(context.Background()))

	assert.Len(t, st.Snapshot().QueuedCases, 1)
}

func TestScanOnceJSONL(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cases.jsonl",
		`{"incidentId": "INC-001"}
{"incidentId": "INC-002"}
not json at all
{"incidentId": "INC-003"}
`)

	st := state.NewStore(state.Options{})
	fi := NewFolderIngestor(st, FolderOptions{Dir: dir})
	require.NoError(t, fi.Run(context.Background()))

	snapshot := st.Snapshot()
	require.Len(t, snapshot.QueuedCases, 3, "invalid lines are skipped, valid ones kept")
	assert.Equal(t, "INC-003", snapshot.QueuedCases[2].IncidentID)
}

func TestScanOnceSkipsKnownIncidentIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "batch.json", `[{"incidentId": "INC-001"}, {"incidentId": "INC-002"}]`)

	st := state.NewStore(state.Options{})
	st.Enqueue([]model.CaseRecord{{IncidentID: "INC-001"}})

	fi := NewFolderIngestor(st, FolderOptions{Dir: dir})
	require.NoError(t, fi.Run(context.Background()))

	assert.Len(t, st.Snapshot().QueuedCases, 2, "only the new id was added")
}

func TestScanOnceIgnoresNonMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "not a batch")
	writeFile(t, dir, "batch.json", `[{"incidentId": "INC-001"}]`)

	st := state.NewStore(state.Options{})
	fi := NewFolderIngestor(st, FolderOptions{Dir: dir})
	require.NoError(t, fi.Run(context.Background()))

	assert.Len(t, st.Snapshot().QueuedCases, 1)
}

func TestParseBatchErrors(t *testing.T) {
	_, err := parseBatch([]byte(""))
	assert.Error(t, err)

	_, err = parseBatch([]byte(`{"noCases": true}`))
	assert.Error(t, err)

	records, err := parseBatch([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestJSONLOffsetTailing(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cases.jsonl", `{"incidentId": "INC-001"}`+"\n")

	st := state.NewStore(state.Options{})
	fi := NewFolderIngestor(st, FolderOptions{Dir: dir})
	require.NoError(t, fi.processJSONL(context.Background(), path))
	require.Len(t, st.Snapshot().QueuedCases, 1)

	// Append one more line; only the new line is read on the next pass.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"incidentId": "INC-002"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fi.processJSONL(context.Background(), path))
	snapshot := st.Snapshot()
	require.Len(t, snapshot.QueuedCases, 2)
	assert.Equal(t, "INC-002", snapshot.QueuedCases[1].IncidentID)
}
