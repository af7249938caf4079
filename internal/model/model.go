package model

import "time"

// CaseRecord represents one triaged incident synced from the intake source.
// Records are immutable once created; state transitions replace whole lists
// rather than mutating entries in place.
type CaseRecord struct {
	IncidentID          string `json:"incidentId"`
	FullName            string `json:"fullName"`
	Sex                 string `json:"sex"`
	HomeAddress         string `json:"homeAddress"`
	PhoneNumber         string `json:"phoneNumber"`
	IncidentDate        string `json:"incidentDate"` // ISO date (YYYY-MM-DD)
	IncidentTime        string `json:"incidentTime"` // HH:mm in 24h format
	Location            string `json:"location"`
	IncidentCategory    string `json:"incidentCategory"`
	Resolution          string `json:"resolution"`
	InjuryReported      bool   `json:"injuryReported"`
	PropertyDamage      bool   `json:"propertyDamage"`
	FaultDetermination  string `json:"faultDetermination"`
	IncidentDescription string `json:"incidentDescription"`
	Jurisdiction        string `json:"jurisdiction"`
}

// TriagePreferences is the operator-declared matching configuration.
// A save replaces the whole object; it is never partially applied.
type TriagePreferences struct {
	CategoriesOfInterest  []string `json:"categoriesOfInterest"`
	RequireInjury         bool     `json:"requireInjury"`
	IncludePropertyDamage bool     `json:"includePropertyDamage"`
	CitiesOfInterest      []string `json:"citiesOfInterest"`
}

// LawyerProfile is the operator identity plus owned triage preferences.
type LawyerProfile struct {
	ID                string            `json:"id"`
	DisplayName       string            `json:"displayName"`
	Email             string            `json:"email,omitempty"`
	TriagePreferences TriagePreferences `json:"triagePreferences"`
}

// NotificationEntry is a triage alert raised for a matching case.
// The IncidentID back-reference is display-only and never cascades deletes.
type NotificationEntry struct {
	ID           string `json:"id"`
	IncidentID   string `json:"incidentId"`
	CreatedAt    string `json:"createdAt"` // ISO-8601, used for sort ordering
	Message      string `json:"message"`
	Acknowledged bool   `json:"acknowledged"`
}

// ParsedCreatedAt returns the entry timestamp for ordering. Unparseable
// timestamps sort as the zero time.
func (n NotificationEntry) ParsedCreatedAt() time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, n.CreatedAt); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// SheetBinding identifies the external sheet currently connected.
// Replaced wholesale on each successful import.
type SheetBinding struct {
	SheetID      string `json:"sheetId"`
	SheetName    string `json:"sheetName,omitempty"`
	LastSyncedAt string `json:"lastSyncedAt,omitempty"`
}

// DashboardMetrics holds aggregate counts derived from the last import.
type DashboardMetrics struct {
	TotalCases          int            `json:"totalCases"`
	InjuryCount         int            `json:"injuryCount"`
	PropertyDamageCount int            `json:"propertyDamageCount"`
	CasesByCategory     map[string]int `json:"casesByCategory"`
}

// LiveFeedState controls the simulated trickle of queued cases.
// NextCaseIndex is the count of cases already shown; it doubles as the
// high-water mark the next import's page-size hint is derived from
// (see agent.VisibleCaseLimit).
type LiveFeedState struct {
	Enabled       bool `json:"enabled"`
	NextCaseIndex int  `json:"nextCaseIndex"`
	IntervalMs    int  `json:"intervalMs"`
}

// Interval returns the feed period as a duration.
func (f LiveFeedState) Interval() time.Duration {
	return time.Duration(f.IntervalMs) * time.Millisecond
}

// DashboardState is the aggregate root. All mutation goes through the
// state.Store transition authority.
type DashboardState struct {
	Cases         []CaseRecord        `json:"cases"`       // visible, newest-promoted-first
	QueuedCases   []CaseRecord        `json:"queuedCases"` // FIFO buffer for the live feed
	ActiveCaseID  string              `json:"activeCaseId,omitempty"`
	Profile       LawyerProfile       `json:"profile"`
	Notifications []NotificationEntry `json:"notifications"`
	LiveFeed      LiveFeedState       `json:"liveFeed"`
	Sheet         SheetBinding        `json:"sheet"`
	LastAction    string              `json:"lastAction,omitempty"`
	Metrics       DashboardMetrics    `json:"metrics"`
}

// ActiveCase returns the visible case matching ActiveCaseID, if any.
func (s DashboardState) ActiveCase() (CaseRecord, bool) {
	if s.ActiveCaseID == "" {
		return CaseRecord{}, false
	}
	for _, c := range s.Cases {
		if c.IncidentID == s.ActiveCaseID {
			return c, true
		}
	}
	return CaseRecord{}, false
}

// DefaultTriagePreferences returns the collaborator's default matching rules.
func DefaultTriagePreferences() TriagePreferences {
	return TriagePreferences{
		CategoriesOfInterest:  []string{},
		RequireInjury:         false,
		IncludePropertyDamage: true,
		CitiesOfInterest:      []string{},
	}
}

// DefaultProfile returns the profile used before the collaborator responds.
func DefaultProfile() LawyerProfile {
	return LawyerProfile{
		ID:                "default",
		DisplayName:       "Trial Lawyer",
		TriagePreferences: DefaultTriagePreferences(),
	}
}

// DefaultFeedIntervalMs is the live feed period used when none is configured.
const DefaultFeedIntervalMs = 5000

// InitialState returns the empty dashboard state a process starts from.
// There is no cross-session persistence; state is rebuilt on every start.
func InitialState() DashboardState {
	return DashboardState{
		Cases:         []CaseRecord{},
		QueuedCases:   []CaseRecord{},
		Profile:       DefaultProfile(),
		Notifications: []NotificationEntry{},
		LiveFeed: LiveFeedState{
			Enabled:    true,
			IntervalMs: DefaultFeedIntervalMs,
		},
		Metrics: DashboardMetrics{
			CasesByCategory: map[string]int{},
		},
	}
}

// ComputeMetrics derives aggregate counts over the given cases.
func ComputeMetrics(cases []CaseRecord) DashboardMetrics {
	m := DashboardMetrics{
		TotalCases:      len(cases),
		CasesByCategory: make(map[string]int),
	}
	for _, c := range cases {
		if c.InjuryReported {
			m.InjuryCount++
		}
		if c.PropertyDamage {
			m.PropertyDamageCount++
		}
		category := c.IncidentCategory
		if category == "" {
			category = "Uncategorized"
		}
		m.CasesByCategory[category]++
	}
	return m
}
