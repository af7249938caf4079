// Package notify reconciles locally acknowledged alerts with newly delivered
// ones across repeated imports.
package notify

import (
	"sort"

	"github.com/caseops/intake-console/internal/model"
)

// Merge combines existing and incoming notification lists keyed by id.
//
// An incoming entry replaces the existing slot, except that acknowledgment is
// monotonic: once an id has been acknowledged it stays acknowledged no matter
// what the incoming entry says. Entries present only in existing are retained,
// so the merge is an additive union, never a replace-all. The result is sorted
// newest-first by createdAt; ties keep a stable relative order.
//
// Merge is idempotent: Merge(Merge(a, b), b) == Merge(a, b).
func Merge(existing, incoming []model.NotificationEntry) []model.NotificationEntry {
	byID := make(map[string]model.NotificationEntry, len(existing)+len(incoming))
	order := make([]string, 0, len(existing)+len(incoming))

	for _, entry := range existing {
		if _, seen := byID[entry.ID]; !seen {
			order = append(order, entry.ID)
		}
		byID[entry.ID] = entry
	}

	for _, entry := range incoming {
		previous, seen := byID[entry.ID]
		if !seen {
			order = append(order, entry.ID)
		}
		if seen && previous.Acknowledged {
			entry.Acknowledged = true
		}
		byID[entry.ID] = entry
	}

	merged := make([]model.NotificationEntry, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ParsedCreatedAt().After(merged[j].ParsedCreatedAt())
	})
	return merged
}
