package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseops/intake-console/internal/agent"
	"github.com/caseops/intake-console/internal/bus"
	"github.com/caseops/intake-console/internal/console"
	"github.com/caseops/intake-console/internal/model"
	"github.com/caseops/intake-console/internal/state"
)

// newTestServer wires a store, an agent stub, and the API server together.
func newTestServer(t *testing.T, opts Options) (*Server, *state.Store) {
	t.Helper()

	agentStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sheets/sync":
			json.NewEncoder(w).Encode(agent.ImportResponse{
				Success: true,
				Cases: []model.CaseRecord{
					{IncidentID: "INC-001", IncidentCategory: "Vehicle Collision", InjuryReported: true},
					{IncidentID: "INC-002", IncidentCategory: "Slip and Fall"},
				},
				QueuedCases: []model.CaseRecord{{IncidentID: "INC-003"}},
				Sheet:       agent.SheetMetadata{SheetBinding: model.SheetBinding{SheetID: "sheet-1", SheetName: "August"}},
				Profile:     model.DefaultProfile(),
				Notifications: []model.NotificationEntry{
					{ID: "n1", IncidentID: "INC-001", CreatedAt: "2026-08-01T10:00:00Z", Message: "match"},
				},
				TotalCases: 3,
			})
		case "/profile":
			json.NewEncoder(w).Encode(agent.ProfileResponse{Success: true, Profile: model.DefaultProfile()})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(agentStub.Close)

	st := state.NewStore(state.Options{})
	c := console.New(console.Options{
		Store: st,
		Agent: agent.NewClient(agent.Options{BaseURL: agentStub.URL}),
	})
	return New(c, nil, opts), st
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// failingBus reports an unreachable bus; only HealthCheck is exercised.
type failingBus struct{ bus.Bus }

func (failingBus) HealthCheck(context.Context) error { return errors.New("connection refused") }

func TestHealthzReportsBusCondition(t *testing.T) {
	srv, _ := newTestServer(t, Options{Bus: bus.NewNullBus(nil)})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["bus"])
	stats, ok := resp["bus_stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "null", stats["type"])

	// A degraded bus is reported but does not fail the check.
	srv, _ = newTestServer(t, Options{Bus: failingBus{}})
	rec = doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp["bus"])
	assert.NotContains(t, resp, "bus_stats")
}

func TestBearerAuth(t *testing.T) {
	srv, _ := newTestServer(t, Options{Token: "s3cret"})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/state", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/state", "", map[string]string{
		"Authorization": "Bearer wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/state", "", map[string]string{
		"Authorization": "Bearer s3cret",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	rec = doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestImportAndState(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/import", `{"sheetId":"sheet-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var next model.DashboardState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.Len(t, next.Cases, 2)
	assert.Len(t, next.QueuedCases, 1)
	assert.Equal(t, "INC-001", next.ActiveCaseID)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot model.DashboardState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, "sheet-1", snapshot.Sheet.SheetID)
}

func TestImportRequiresSheetID(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/import", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFilteredState(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/import", `{"sheetId":"sheet-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/state/filtered",
		`{"injury":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Cases   []model.CaseRecord `json:"cases"`
		Summary string             `json:"summary"`
		Total   int                `json:"total"`
		Matched int                `json:"matched"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Cases, 1)
	assert.Equal(t, "INC-001", result.Cases[0].IncidentID)
	assert.Equal(t, "Requires injury", result.Summary)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Matched)
}

func TestSelectCase(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/import", `{"sheetId":"sheet-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/cases/select",
		`{"incidentId":"INC-002"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var next model.DashboardState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.Equal(t, "INC-002", next.ActiveCaseID)
}

func TestDismissNotification(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/import", `{"sheetId":"sheet-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/notifications/dismiss",
		`{"id":"n1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Dismissed bool                 `json:"dismissed"`
		State     model.DashboardState `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Dismissed)
	assert.Empty(t, result.State.Notifications)

	// Unknown id reports dismissed=false with 200.
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/notifications/dismiss",
		`{"id":"n1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Dismissed)
}

func TestFeedToggle(t *testing.T) {
	srv, st := newTestServer(t, Options{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/feed", `{"enabled":false}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, st.Snapshot().LiveFeed.Enabled)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/feed", `{"enabled":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, st.Snapshot().LiveFeed.Enabled)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/state", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/import", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestVoiceCallUnknownCase(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/voice/call",
		`{"incidentId":"ghost"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditDisabled(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/audit", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
