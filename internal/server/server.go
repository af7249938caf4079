// Package server exposes the dashboard over HTTP for UI surfaces and
// automation. Handlers read store snapshots and route every mutation through
// the console, so the single-writer model holds regardless of how many
// clients connect.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/caseops/intake-console/internal/agent"
	"github.com/caseops/intake-console/internal/audit"
	"github.com/caseops/intake-console/internal/bus"
	"github.com/caseops/intake-console/internal/console"
	"github.com/caseops/intake-console/internal/filter"
	"github.com/caseops/intake-console/internal/model"
	"github.com/caseops/intake-console/internal/state"
)

// Options controls the API server behavior.
type Options struct {
	// Bind address, e.g. "127.0.0.1:8090"
	Bind string
	// Token for Authorization: Bearer <token> header. Empty disables auth.
	Token string
	// RPS is max requests per second (approximate). 0 disables rate limiting.
	RPS int
	// Burst is the token bucket size. If 0 and RPS>0, defaults to RPS.
	Burst int
	// Logger for request logs (optional)
	Logger *log.Logger
	// MaxBodyBytes caps request body size; defaults to 1 MiB.
	MaxBodyBytes int64
	// Bus, when set, is health-checked and reported by /healthz.
	Bus bus.Bus
}

// Server is the dashboard HTTP API.
type Server struct {
	srv     *http.Server
	console *console.Console
	journal *audit.Journal
	opts    Options
	limiter *simpleLimiter
	logger  *log.Logger
	started int32
}

// New constructs the API server.
func New(c *console.Console, journal *audit.Journal, opts Options) *Server {
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:8090"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 * 1024 * 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	var lim *simpleLimiter
	if opts.RPS > 0 {
		if opts.Burst <= 0 {
			opts.Burst = opts.RPS
		}
		lim = newSimpleLimiter(opts.RPS, opts.Burst)
	}

	s := &Server{
		console: c,
		journal: journal,
		opts:    opts,
		limiter: lim,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/state", s.guard(s.handleState))
	mux.HandleFunc("/api/state/filtered", s.guard(s.handleFilteredState))
	mux.HandleFunc("/api/import", s.guard(s.handleImport))
	mux.HandleFunc("/api/cases/select", s.guard(s.handleSelectCase))
	mux.HandleFunc("/api/notifications/dismiss", s.guard(s.handleDismissNotification))
	mux.HandleFunc("/api/preferences", s.guard(s.handleSavePreferences))
	mux.HandleFunc("/api/profile/reset", s.guard(s.handleResetProfile))
	mux.HandleFunc("/api/feed", s.guard(s.handleFeedToggle))
	mux.HandleFunc("/api/voice/call", s.guard(s.handleVoiceCall))
	mux.HandleFunc("/api/email/send", s.guard(s.handleSendEmail))
	mux.HandleFunc("/api/audit", s.guard(s.handleAudit))

	s.srv = &http.Server{
		Addr:         opts.Bind,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // imports may take a while
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start binds early to surface listen errors synchronously, then serves
// until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return errors.New("api server already started")
	}
	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Bind, err)
	}
	s.logger.Printf("API listening on http://%s rps=%d burst=%d auth=%v",
		s.opts.Bind, s.opts.RPS, s.opts.Burst, s.opts.Token != "")

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("graceful shutdown failed: %v", err)
		}
		if s.limiter != nil {
			s.limiter.Close()
		}
	}()
	return nil
}

// Handler returns the underlying handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// guard wraps a handler with bearer auth and rate limiting.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) != s.opts.Token {
				w.Header().Set("WWW-Authenticate", `Bearer realm="intake-console"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(r.Context()); err != nil {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}
		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		}
		next(w, r)
	}
}

// handleHealthz reports liveness plus the event bus condition. A degraded bus
// does not fail the check: publishing is best-effort and the console keeps
// working without it.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if s.opts.Bus != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Bus.HealthCheck(ctx); err != nil {
			resp["bus"] = "unavailable"
		} else {
			resp["bus"] = "ok"
			if stats, err := s.opts.Bus.GetStats(ctx); err == nil {
				resp["bus_stats"] = stats
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.console.Store().Snapshot())
}

// handleFilteredState applies a declarative filter to the visible case set.
func (s *Server) handleFilteredState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var criteria filter.Criteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	snapshot := s.console.Store().Snapshot()
	filtered := filter.Apply(snapshot.Cases, criteria)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cases":   filtered,
		"summary": filter.Summarize(criteria),
		"total":   len(snapshot.Cases),
		"matched": len(filtered),
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SheetID   string `json:"sheetId"`
		SheetName string `json:"sheetName,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SheetID == "" {
		http.Error(w, "sheetId is required", http.StatusBadRequest)
		return
	}

	next, err := s.console.ImportFromSheet(r.Context(), req.SheetID, req.SheetName)
	if err != nil {
		s.writeOperationError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleSelectCase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		IncidentID string `json:"incidentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.IncidentID == "" {
		http.Error(w, "incidentId is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.console.Store().SelectCase(req.IncidentID))
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	// Unknown ids are tolerated as a no-op, not an error.
	next, dismissed := s.console.Store().DismissNotification(req.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dismissed": dismissed,
		"state":     next,
	})
}

func (s *Server) handleSavePreferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Preferences model.TriagePreferences `json:"preferences"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	next, err := s.console.SavePreferences(r.Context(), req.Preferences)
	if err != nil {
		s.writeOperationError(w, "preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleResetProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	next, err := s.console.ResetProfile(r.Context())
	if err != nil {
		s.writeOperationError(w, "profile-reset", err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleFeedToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.console.Store().SetFeedEnabled(req.Enabled))
}

func (s *Server) handleVoiceCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		IncidentID string `json:"incidentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	snapshot := s.console.Store().Snapshot()
	incidentID := req.IncidentID
	if incidentID == "" {
		incidentID = snapshot.ActiveCaseID
	}
	record, ok := findVisibleCase(snapshot, incidentID)
	if !ok {
		http.Error(w, "case not found", http.StatusNotFound)
		return
	}
	resp, err := s.console.StartVoiceCall(r.Context(), record)
	if err != nil {
		s.writeOperationError(w, "voice-call", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req agent.EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.console.SendEmail(r.Context(), req); err != nil {
		s.writeOperationError(w, "email", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "audit journal disabled", http.StatusNotFound)
		return
	}
	entries, err := s.journal.Recent(r.Context(), r.URL.Query().Get("action"), 100)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeOperationError maps the error kinds of the core onto HTTP statuses:
// validation failures and collaborator failures are both recoverable and
// local to the triggering operation.
func (s *Server) writeOperationError(w http.ResponseWriter, op string, err error) {
	var agentErr *agent.Error
	switch {
	case errors.Is(err, console.ErrImportInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, state.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &agentErr):
		s.logger.Printf("%s collaborator error: %v", op, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		s.logger.Printf("%s failed: %v", op, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func findVisibleCase(snapshot model.DashboardState, incidentID string) (model.CaseRecord, bool) {
	if incidentID == "" {
		return model.CaseRecord{}, false
	}
	for _, c := range snapshot.Cases {
		if c.IncidentID == incidentID {
			return c, true
		}
	}
	return model.CaseRecord{}, false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
