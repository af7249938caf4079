// Package agent is the HTTP boundary to the external agent process that
// serves sheet imports, the lawyer profile, and fire-and-forget voice/email
// dispatch. Failures are surfaced to the caller uninterpreted; nothing here
// mutates dashboard state.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caseops/intake-console/internal/model"
)

// DefaultVisibleCaseLimit is the baseline page-size hint sent with imports.
const DefaultVisibleCaseLimit = 97

// VisibleCaseLimit derives the import page-size hint from the feed's
// high-water mark, so a re-import covers at least every case already shown.
func VisibleCaseLimit(nextCaseIndex int) int {
	if nextCaseIndex > DefaultVisibleCaseLimit {
		return nextCaseIndex
	}
	return DefaultVisibleCaseLimit
}

// Error is a failed collaborator call: a non-2xx response or a payload with
// success=false. The body/detail string is carried verbatim.
type Error struct {
	Op     string
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("agent %s failed: status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("agent %s failed: %s", e.Op, e.Detail)
}

// Options configures the Client.
type Options struct {
	// BaseURL of the agent process, e.g. "http://localhost:8000".
	BaseURL string

	// HTTPClient for requests. If nil, a default client with a 30s timeout
	// is used (sheet imports can be slow).
	HTTPClient *http.Client

	// Token for Authorization: Bearer <token> (optional).
	Token string

	// Logger for request logs (optional).
	Logger *log.Logger
}

// Client calls the agent's endpoints.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *log.Logger
}

// NewClient constructs a Client with sane defaults.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[agent] ", log.LstdFlags)
	}
	return &Client{baseURL: baseURL, token: opts.Token, client: client, logger: logger}
}

// ImportRequest carries the sheet sync parameters.
type ImportRequest struct {
	SheetID           string                   `json:"sheet_id"`
	SheetName         string                   `json:"sheet_name,omitempty"`
	VisibleCaseLimit  int                      `json:"visible_case_limit"`
	TriagePreferences *model.TriagePreferences `json:"triage_preferences,omitempty"`
}

// SheetMetadata extends the binding with spreadsheet details.
type SheetMetadata struct {
	model.SheetBinding
	Title           string   `json:"title,omitempty"`
	AvailableSheets []string `json:"availableSheets,omitempty"`
}

// ImportResponse is the agent's sheet sync result.
type ImportResponse struct {
	Success       bool                      `json:"success"`
	Cases         []model.CaseRecord        `json:"cases"`
	QueuedCases   []model.CaseRecord        `json:"queuedCases"`
	Sheet         SheetMetadata             `json:"sheet"`
	Profile       model.LawyerProfile       `json:"profile"`
	Notifications []model.NotificationEntry `json:"notifications"`
	Metrics       model.DashboardMetrics    `json:"metrics"`
	TotalCases    int                       `json:"totalCases"`
	ErrorDetail   string                    `json:"error,omitempty"`
}

// ImportCases runs a sheet sync and returns the structured import payload.
func (c *Client) ImportCases(ctx context.Context, req ImportRequest) (*ImportResponse, error) {
	if req.SheetID == "" {
		return nil, &Error{Op: "import", Detail: "sheet id is required"}
	}
	if req.VisibleCaseLimit <= 0 {
		req.VisibleCaseLimit = DefaultVisibleCaseLimit
	}

	var resp ImportResponse
	if err := c.post(ctx, "import", "/sheets/sync", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "import", Detail: nonEmpty(resp.ErrorDetail, "import failed")}
	}
	c.logger.Printf("imported %d cases (%d visible, %d queued) from sheet %s",
		resp.TotalCases, len(resp.Cases), len(resp.QueuedCases), req.SheetID)
	return &resp, nil
}

// ListSheetsResponse names the tabs available in a spreadsheet.
type ListSheetsResponse struct {
	Success    bool     `json:"success"`
	SheetNames []string `json:"sheetNames"`
	Count      int      `json:"count"`
}

// ListSheets returns the tab names of the given spreadsheet.
func (c *Client) ListSheets(ctx context.Context, sheetID string) ([]string, error) {
	if sheetID == "" {
		return nil, &Error{Op: "list-sheets", Detail: "sheet id is required"}
	}
	var resp ListSheetsResponse
	payload := map[string]string{"sheet_id": sheetID}
	if err := c.post(ctx, "list-sheets", "/sheets/list", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "list-sheets", Detail: "listing failed"}
	}
	return resp.SheetNames, nil
}

// ProfileResponse wraps the collaborator-held profile.
type ProfileResponse struct {
	Success bool                `json:"success"`
	Profile model.LawyerProfile `json:"profile"`
}

// FetchProfile loads the current lawyer profile.
func (c *Client) FetchProfile(ctx context.Context) (*model.LawyerProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/profile", nil)
	if err != nil {
		return nil, err
	}
	var resp ProfileResponse
	if err := c.do("profile", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "profile", Detail: "profile fetch failed"}
	}
	return &resp.Profile, nil
}

// SaveTriagePreferences replaces the collaborator-held preferences and
// returns the updated profile.
func (c *Client) SaveTriagePreferences(ctx context.Context, profileID string, prefs model.TriagePreferences) (*model.LawyerProfile, error) {
	if profileID == "" {
		profileID = "default"
	}
	payload := struct {
		ProfileID   string                  `json:"profile_id"`
		Preferences model.TriagePreferences `json:"preferences"`
	}{ProfileID: profileID, Preferences: prefs}

	var resp ProfileResponse
	if err := c.post(ctx, "triage-save", "/profile/triage", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "triage-save", Detail: "preference save failed"}
	}
	return &resp.Profile, nil
}

// VoiceCallRequest carries the contact fields for an outbound call.
type VoiceCallRequest struct {
	IncidentID      string `json:"incidentId"`
	FullName        string `json:"fullName"`
	PhoneNumber     string `json:"phoneNumber"`
	IncidentSummary string `json:"incidentSummary,omitempty"`
}

// VoiceCallResponse reports the dispatched call. Nothing is merged back into
// dashboard state.
type VoiceCallResponse struct {
	Success bool   `json:"success"`
	CallID  string `json:"callId,omitempty"`
	Message string `json:"message,omitempty"`
}

// StartVoiceCall dispatches an outbound call for a case's contact.
func (c *Client) StartVoiceCall(ctx context.Context, req VoiceCallRequest) (*VoiceCallResponse, error) {
	if req.PhoneNumber == "" {
		return nil, &Error{Op: "voice-call", Detail: "phone number is required"}
	}
	var resp VoiceCallResponse
	if err := c.post(ctx, "voice-call", "/voice/call", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "voice-call", Detail: nonEmpty(resp.Message, "call dispatch failed")}
	}
	return &resp, nil
}

// EmailRequest is an arbitrary fire-and-forget email payload.
type EmailRequest struct {
	IncidentID string `json:"incidentId,omitempty"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

// SendEmail dispatches an email. Success/failure only.
func (c *Client) SendEmail(ctx context.Context, req EmailRequest) error {
	if req.To == "" {
		return &Error{Op: "email", Detail: "recipient is required"}
	}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
	}
	if err := c.post(ctx, "email", "/email/send", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &Error{Op: "email", Detail: nonEmpty(resp.Message, "email dispatch failed")}
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Op: op, Detail: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Detail: "read response: " + err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Op: op, Status: resp.StatusCode, Detail: strings.TrimSpace(string(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Detail: "decode response: " + err.Error()}
	}
	return nil
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}
