// Package filter implements the declarative feed filter applied to the
// visible case list. Apply is pure: no state, deterministic, and the output
// preserves input order.
package filter

import (
	"fmt"
	"strings"

	"github.com/caseops/intake-console/internal/model"
)

// TriState is a three-valued boolean constraint. The explicit enumeration
// keeps the "unconstrained" branch unambiguous.
type TriState int

const (
	// Unconstrained means the flag is not part of the filter.
	Unconstrained TriState = iota

	// RequireTrue means a record passes only when the flag is set.
	RequireTrue

	// RequireFalse means a record passes only when the flag is unset.
	RequireFalse
)

// MarshalJSON encodes the constraint in the wire form used by the feed
// filter payloads: null (unconstrained), true, or false.
func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case RequireTrue:
		return []byte("true"), nil
	case RequireFalse:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes null/true/false into the explicit enumeration.
func (t *TriState) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true":
		*t = RequireTrue
	case "false":
		*t = RequireFalse
	case "null", "":
		*t = Unconstrained
	default:
		return fmt.Errorf("invalid tri-state value %q", string(data))
	}
	return nil
}

// Matches reports whether the given flag value satisfies the constraint.
func (t TriState) Matches(value bool) bool {
	switch t {
	case RequireTrue:
		return value
	case RequireFalse:
		return !value
	default:
		return true
	}
}

// Criteria describes one feed filter. Zero value means "no filter".
type Criteria struct {
	// Summary is a display-only label; it never participates in matching.
	Summary string `json:"summary"`

	// SearchText is tokenized on whitespace; every token must appear as a
	// substring of the searchable-field haystack.
	SearchText string `json:"searchText"`

	Categories     []string `json:"categories"`
	Jurisdictions  []string `json:"jurisdictions"`
	IncidentIDs    []string `json:"incidentIds"`
	Injury         TriState `json:"injury"`
	PropertyDamage TriState `json:"propertyDamage"`
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := normalize(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// IsActive reports whether the criteria carry at least one non-default
// constraint. Inactive criteria make Apply the identity.
func IsActive(c Criteria) bool {
	return strings.TrimSpace(c.Summary) != "" ||
		strings.TrimSpace(c.SearchText) != "" ||
		len(c.Categories) > 0 ||
		len(c.Jurisdictions) > 0 ||
		len(c.IncidentIDs) > 0 ||
		c.Injury != Unconstrained ||
		c.PropertyDamage != Unconstrained
}

// haystack concatenates the searchable fields of a record, normalized.
func haystack(r model.CaseRecord) string {
	fields := []string{
		r.IncidentID,
		r.IncidentCategory,
		r.IncidentDescription,
		r.Location,
		r.FullName,
		r.Resolution,
		r.FaultDetermination,
	}
	for i, f := range fields {
		fields[i] = normalize(f)
	}
	return strings.Join(fields, " ")
}

func containsNormalized(set []string, value string) bool {
	v := normalize(value)
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Apply filters cases against the criteria. A record passes only when it
// satisfies every active constraint. Output is a subsequence of the input.
func Apply(cases []model.CaseRecord, c Criteria) []model.CaseRecord {
	if !IsActive(c) {
		return cases
	}

	tokens := strings.Fields(normalize(c.SearchText))
	categories := normalizeAll(c.Categories)
	jurisdictions := normalizeAll(c.Jurisdictions)
	incidentIDs := normalizeAll(c.IncidentIDs)

	out := make([]model.CaseRecord, 0, len(cases))
	for _, record := range cases {
		if len(incidentIDs) > 0 && !containsNormalized(incidentIDs, record.IncidentID) {
			continue
		}
		if len(categories) > 0 && !containsNormalized(categories, record.IncidentCategory) {
			continue
		}
		if len(jurisdictions) > 0 && !containsNormalized(jurisdictions, record.Jurisdiction) {
			continue
		}
		if !c.Injury.Matches(record.InjuryReported) {
			continue
		}
		if !c.PropertyDamage.Matches(record.PropertyDamage) {
			continue
		}
		if len(tokens) > 0 {
			hay := haystack(record)
			matched := true
			for _, token := range tokens {
				if !strings.Contains(hay, token) {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, record)
	}
	return out
}

// Summarize renders a human-readable description of the active criteria.
// An explicit Summary wins; otherwise clauses are joined in a fixed order.
// Inactive criteria produce an empty string.
func Summarize(c Criteria) string {
	if !IsActive(c) {
		return ""
	}
	if s := strings.TrimSpace(c.Summary); s != "" {
		return s
	}

	var parts []string
	if len(c.Categories) > 0 {
		parts = append(parts, "Categories: "+strings.Join(c.Categories, ", "))
	}
	if len(c.Jurisdictions) > 0 {
		parts = append(parts, "Jurisdictions: "+strings.Join(c.Jurisdictions, ", "))
	}
	switch c.Injury {
	case RequireTrue:
		parts = append(parts, "Requires injury")
	case RequireFalse:
		parts = append(parts, "Exclude injury cases")
	}
	switch c.PropertyDamage {
	case RequireTrue:
		parts = append(parts, "Requires property damage")
	case RequireFalse:
		parts = append(parts, "Exclude property damage cases")
	}
	if len(c.IncidentIDs) > 0 {
		parts = append(parts, "Incident IDs: "+strings.Join(c.IncidentIDs, ", "))
	}
	if s := strings.TrimSpace(c.SearchText); s != "" {
		parts = append(parts, fmt.Sprintf("Text contains %q", s))
	}

	if len(parts) == 0 {
		return "Custom filter"
	}
	return strings.Join(parts, " • ")
}
