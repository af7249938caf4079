// Package state is the transition authority for the dashboard aggregate.
// Every mutation is a pure function (previous state, event) -> next state;
// the previous state is never modified in place. Store serializes the
// application of transitions so consumers always read a consistent snapshot.
package state

import (
	"errors"
	"fmt"

	"github.com/caseops/intake-console/internal/model"
	"github.com/caseops/intake-console/internal/notify"
)

// ErrValidation marks a malformed event payload. The triggering operation
// fails and the previous state remains current.
var ErrValidation = errors.New("validation failed")

// Import carries the fields consumed by the import-completed transition,
// as returned by the import collaborator.
type Import struct {
	Cases         []model.CaseRecord
	QueuedCases   []model.CaseRecord
	Profile       model.LawyerProfile
	Sheet         model.SheetBinding
	Notifications []model.NotificationEntry
	Metrics       model.DashboardMetrics
	TotalCases    int
}

// validateImport checks the import payload before any state is touched.
// Incident ids must be present and unique across visible and queued lists.
func validateImport(imp Import) error {
	seen := make(map[string]struct{}, len(imp.Cases)+len(imp.QueuedCases))
	check := func(records []model.CaseRecord, list string) error {
		for _, r := range records {
			if r.IncidentID == "" {
				return fmt.Errorf("%w: %s record missing incidentId", ErrValidation, list)
			}
			if _, dup := seen[r.IncidentID]; dup {
				return fmt.Errorf("%w: duplicate incidentId %q", ErrValidation, r.IncidentID)
			}
			seen[r.IncidentID] = struct{}{}
		}
		return nil
	}
	if err := check(imp.Cases, "visible"); err != nil {
		return err
	}
	if err := check(imp.QueuedCases, "queued"); err != nil {
		return err
	}
	if imp.Profile.ID == "" {
		return fmt.Errorf("%w: import payload missing profile", ErrValidation)
	}
	return nil
}

// applyImport replaces the synced collections wholesale. The active case is
// only defaulted when previously unset, notifications go through the
// acknowledgment-preserving merge, and the feed high-water mark is
// re-baselined to the visible case count.
func applyImport(prev model.DashboardState, imp Import) (model.DashboardState, error) {
	if err := validateImport(imp); err != nil {
		return prev, err
	}

	next := prev
	next.Cases = append([]model.CaseRecord(nil), imp.Cases...)
	next.QueuedCases = append([]model.CaseRecord(nil), imp.QueuedCases...)
	next.Profile = imp.Profile
	next.Sheet = imp.Sheet
	next.Metrics = imp.Metrics
	next.Notifications = notify.Merge(prev.Notifications, imp.Notifications)
	next.LiveFeed.NextCaseIndex = len(imp.Cases)
	if next.ActiveCaseID == "" && len(imp.Cases) > 0 {
		next.ActiveCaseID = imp.Cases[0].IncidentID
	}
	next.LastAction = fmt.Sprintf("Imported %d cases from sheet %s", imp.TotalCases, imp.Sheet.SheetID)
	return next, nil
}

// applySelectCase sets the active case unconditionally. Selecting an id that
// is not in the visible list simply yields "no active case" downstream.
func applySelectCase(prev model.DashboardState, incidentID string) model.DashboardState {
	next := prev
	next.ActiveCaseID = incidentID
	return next
}

// applyDismissNotification marks the entry acknowledged and then removes it
// from the visible list. Mark-then-filter keeps acknowledgment sticky when
// the same id reappears from a later import merge. Unknown ids are a no-op.
func applyDismissNotification(prev model.DashboardState, notificationID string) (model.DashboardState, bool) {
	found := false
	remaining := make([]model.NotificationEntry, 0, len(prev.Notifications))
	for _, entry := range prev.Notifications {
		if entry.ID == notificationID {
			found = true
			entry.Acknowledged = true
			continue
		}
		remaining = append(remaining, entry)
	}
	if !found {
		return prev, false
	}
	next := prev
	next.Notifications = remaining
	return next, true
}

// applySavePreferences replaces the owned preferences wholesale. The
// follow-up re-import against a bound sheet is the caller's responsibility,
// not part of this transition.
func applySavePreferences(prev model.DashboardState, prefs model.TriagePreferences) model.DashboardState {
	next := prev
	next.Profile.TriagePreferences = prefs
	next.LastAction = "Updated triage preferences"
	return next
}

// applyTick promotes exactly one record from the queue head to the front of
// the visible list. The guard is re-evaluated here so a tick that raced a
// disable or a queue drain is a no-op.
func applyTick(prev model.DashboardState) (model.DashboardState, model.CaseRecord, bool) {
	if !prev.LiveFeed.Enabled || len(prev.QueuedCases) == 0 {
		return prev, model.CaseRecord{}, false
	}

	promoted := prev.QueuedCases[0]

	next := prev
	next.Cases = append([]model.CaseRecord{promoted}, prev.Cases...)
	next.QueuedCases = append([]model.CaseRecord(nil), prev.QueuedCases[1:]...)
	if next.ActiveCaseID == "" {
		next.ActiveCaseID = promoted.IncidentID
	}
	next.LiveFeed.NextCaseIndex++
	next.LastAction = fmt.Sprintf("Live feed received case %s", promoted.IncidentID)
	// Metrics intentionally reflect the last import snapshot only; promotions
	// do not recompute them.
	return next, promoted, true
}

// applyEnqueue appends locally delivered records to the queue tail, skipping
// any incidentId already present in either list.
func applyEnqueue(prev model.DashboardState, records []model.CaseRecord) (model.DashboardState, int) {
	known := make(map[string]struct{}, len(prev.Cases)+len(prev.QueuedCases))
	for _, c := range prev.Cases {
		known[c.IncidentID] = struct{}{}
	}
	for _, c := range prev.QueuedCases {
		known[c.IncidentID] = struct{}{}
	}

	added := make([]model.CaseRecord, 0, len(records))
	for _, r := range records {
		if r.IncidentID == "" {
			continue
		}
		if _, dup := known[r.IncidentID]; dup {
			continue
		}
		known[r.IncidentID] = struct{}{}
		added = append(added, r)
	}
	if len(added) == 0 {
		return prev, 0
	}

	next := prev
	next.QueuedCases = append(append([]model.CaseRecord(nil), prev.QueuedCases...), added...)
	next.LastAction = fmt.Sprintf("Queued %d locally delivered cases", len(added))
	return next, len(added)
}

// applySetProfile replaces the cached profile from a collaborator fetch.
func applySetProfile(prev model.DashboardState, profile model.LawyerProfile) model.DashboardState {
	next := prev
	next.Profile = profile
	return next
}

// applySetFeedEnabled flips the live feed flag.
func applySetFeedEnabled(prev model.DashboardState, enabled bool) model.DashboardState {
	next := prev
	next.LiveFeed.Enabled = enabled
	if enabled {
		next.LastAction = "Live feed enabled"
	} else {
		next.LastAction = "Live feed paused"
	}
	return next
}

// cloneState deep-copies the aggregate so snapshots are safe to hand out.
func cloneState(s model.DashboardState) model.DashboardState {
	out := s
	out.Cases = append([]model.CaseRecord(nil), s.Cases...)
	out.QueuedCases = append([]model.CaseRecord(nil), s.QueuedCases...)
	out.Notifications = append([]model.NotificationEntry(nil), s.Notifications...)
	out.Profile.TriagePreferences = clonePreferences(s.Profile.TriagePreferences)
	out.Metrics.CasesByCategory = make(map[string]int, len(s.Metrics.CasesByCategory))
	for k, v := range s.Metrics.CasesByCategory {
		out.Metrics.CasesByCategory[k] = v
	}
	return out
}

func clonePreferences(p model.TriagePreferences) model.TriagePreferences {
	out := p
	out.CategoriesOfInterest = append([]string(nil), p.CategoriesOfInterest...)
	out.CitiesOfInterest = append([]string(nil), p.CitiesOfInterest...)
	return out
}
