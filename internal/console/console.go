// Package console orchestrates the dashboard: it routes collaborator calls
// through the state store's transition authority and fans applied changes
// out to the event bus and the audit journal.
package console

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/caseops/intake-console/internal/agent"
	"github.com/caseops/intake-console/internal/audit"
	"github.com/caseops/intake-console/internal/bus"
	"github.com/caseops/intake-console/internal/model"
	"github.com/caseops/intake-console/internal/state"
)

// ErrImportInFlight is returned when an import is requested while another is
// still outstanding for this console.
var ErrImportInFlight = errors.New("an import is already in flight")

// Options configures a Console.
type Options struct {
	Store   *state.Store
	Agent   *agent.Client
	Bus     bus.Bus        // optional; nil disables publishing
	Journal *audit.Journal // optional; nil disables journaling
	Logger  *log.Logger
}

// Console is the operation surface shared by the HTTP API, the TUI, and the
// CLI commands. All state mutation still happens inside the store; the
// console adds collaborator round-trips and side channels.
type Console struct {
	store   *state.Store
	agent   *agent.Client
	bus     bus.Bus
	journal *audit.Journal
	logger  *log.Logger

	importing int32
}

// New constructs a Console and subscribes its side channels to the store.
func New(opts Options) *Console {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	c := &Console{
		store:   opts.Store,
		agent:   opts.Agent,
		bus:     opts.Bus,
		journal: opts.Journal,
		logger:  logger,
	}
	c.store.Subscribe(c.onChange)
	return c
}

// Store exposes the underlying transition authority for read access.
func (c *Console) Store() *state.Store {
	return c.store
}

// onChange journals every applied transition and publishes feed promotions.
func (c *Console) onChange(change state.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.journal != nil {
		entry := audit.Entry{
			Action:     change.Action,
			IncidentID: change.IncidentID,
		}
		if change.State.LastAction != "" {
			entry.Details = map[string]interface{}{"last_action": change.State.LastAction}
		}
		if err := c.journal.Record(ctx, entry); err != nil {
			c.logger.Printf("journal write failed: %v", err)
		}
	}

	if c.bus != nil && change.Action == "tick" {
		if record, ok := findCase(change.State.Cases, change.IncidentID); ok {
			_ = c.bus.PublishCase(ctx, bus.CaseMessage{
				IncidentID: record.IncidentID,
				Category:   record.IncidentCategory,
				Location:   record.Location,
				Source:     "live_feed",
				Timestamp:  time.Now().Unix(),
			})
		}
	}
}

func findCase(cases []model.CaseRecord, incidentID string) (model.CaseRecord, bool) {
	for _, c := range cases {
		if c.IncidentID == incidentID {
			return c, true
		}
	}
	return model.CaseRecord{}, false
}

// ImportFromSheet runs one full import cycle: fetch from the import
// collaborator, apply the import-completed transition, and publish the
// delivered notifications. Only one import may be in flight at a time.
func (c *Console) ImportFromSheet(ctx context.Context, sheetID, sheetName string) (model.DashboardState, error) {
	if !atomic.CompareAndSwapInt32(&c.importing, 0, 1) {
		return model.DashboardState{}, ErrImportInFlight
	}
	defer atomic.StoreInt32(&c.importing, 0)

	snapshot := c.store.Snapshot()
	prefs := snapshot.Profile.TriagePreferences

	resp, err := c.agent.ImportCases(ctx, agent.ImportRequest{
		SheetID:           sheetID,
		SheetName:         sheetName,
		VisibleCaseLimit:  agent.VisibleCaseLimit(snapshot.LiveFeed.NextCaseIndex),
		TriagePreferences: &prefs,
	})
	if err != nil {
		return model.DashboardState{}, err
	}

	next, err := c.store.ApplyImport(state.Import{
		Cases:         resp.Cases,
		QueuedCases:   resp.QueuedCases,
		Profile:       resp.Profile,
		Sheet:         resp.Sheet.SheetBinding,
		Notifications: resp.Notifications,
		Metrics:       resp.Metrics,
		TotalCases:    resp.TotalCases,
	})
	if err != nil {
		return model.DashboardState{}, err
	}

	if c.bus != nil {
		for _, n := range resp.Notifications {
			_ = c.bus.PublishNotification(ctx, bus.NotificationMessage{
				NotificationID: n.ID,
				IncidentID:     n.IncidentID,
				Message:        n.Message,
				Timestamp:      time.Now().Unix(),
			})
		}
	}
	return next, nil
}

// SavePreferences replaces the triage preferences on the profile
// collaborator, applies the save transition, and then re-imports against the
// bound sheet so the new criteria re-triage the current source. The
// re-import is a follow-up action: a failure there does not undo the save.
func (c *Console) SavePreferences(ctx context.Context, prefs model.TriagePreferences) (model.DashboardState, error) {
	snapshot := c.store.Snapshot()

	profile, err := c.agent.SaveTriagePreferences(ctx, snapshot.Profile.ID, prefs)
	if err != nil {
		return model.DashboardState{}, err
	}

	next := c.store.SavePreferences(profile.TriagePreferences)

	if next.Sheet.SheetID != "" {
		if reimported, err := c.ImportFromSheet(ctx, next.Sheet.SheetID, next.Sheet.SheetName); err != nil {
			c.logger.Printf("re-import after preference save failed: %v", err)
		} else {
			next = reimported
		}
	}
	return next, nil
}

// ResetProfile restores the collaborator's profile defaults into state.
func (c *Console) ResetProfile(ctx context.Context) (model.DashboardState, error) {
	profile, err := c.agent.FetchProfile(ctx)
	if err != nil {
		return model.DashboardState{}, err
	}
	return c.store.SetProfile(*profile), nil
}

// SyncProfile fetches the collaborator profile into state at startup.
func (c *Console) SyncProfile(ctx context.Context) error {
	profile, err := c.agent.FetchProfile(ctx)
	if err != nil {
		return err
	}
	c.store.SetProfile(*profile)
	return nil
}

// StartVoiceCall dispatches an outbound call for the given case. Nothing is
// merged back into state.
func (c *Console) StartVoiceCall(ctx context.Context, record model.CaseRecord) (*agent.VoiceCallResponse, error) {
	summary := truncateSummary(record.IncidentDescription, 500)
	return c.agent.StartVoiceCall(ctx, agent.VoiceCallRequest{
		IncidentID:      record.IncidentID,
		FullName:        record.FullName,
		PhoneNumber:     record.PhoneNumber,
		IncidentSummary: summary,
	})
}

// truncateSummary caps a narrative at max bytes without splitting a UTF-8
// rune mid-sequence.
func truncateSummary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// SendEmail dispatches a fire-and-forget email.
func (c *Console) SendEmail(ctx context.Context, req agent.EmailRequest) error {
	return c.agent.SendEmail(ctx, req)
}
