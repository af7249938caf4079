package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseops/intake-console/internal/model"
)

func sampleCases() []model.CaseRecord {
	return []model.CaseRecord{
		{
			IncidentID:          "INC-001",
			FullName:            "Jane Rivera",
			IncidentCategory:    "Vehicle Collision",
			Jurisdiction:        "Travis County",
			Location:            "Austin",
			InjuryReported:      true,
			PropertyDamage:      true,
			IncidentDescription: "Rear-ended at a stop light on Lamar",
		},
		{
			IncidentID:          "INC-002",
			FullName:            "Marcus Bell",
			IncidentCategory:    "Slip and Fall",
			Jurisdiction:        "Harris County",
			Location:            "Houston",
			InjuryReported:      false,
			PropertyDamage:      false,
			IncidentDescription: "Wet floor in a grocery aisle",
		},
		{
			IncidentID:          "INC-003",
			FullName:            "Ana Sousa",
			IncidentCategory:    "Vehicle Collision",
			Jurisdiction:        "Travis County",
			Location:            "Round Rock",
			InjuryReported:      true,
			PropertyDamage:      false,
			IncidentDescription: "Side-swiped on the highway merge",
		},
	}
}

func TestApplyInactiveCriteriaIsIdentity(t *testing.T) {
	cases := sampleCases()
	out := Apply(cases, Criteria{})
	assert.Equal(t, cases, out)
	assert.False(t, IsActive(Criteria{}))
}

func TestApplyCategoryAndJurisdiction(t *testing.T) {
	out := Apply(sampleCases(), Criteria{
		Categories:    []string{"vehicle collision"},
		Jurisdictions: []string{"Travis County"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "INC-001", out[0].IncidentID)
	assert.Equal(t, "INC-003", out[1].IncidentID)
}

func TestApplyMatchingIsCaseInsensitive(t *testing.T) {
	out := Apply(sampleCases(), Criteria{Categories: []string{"SLIP AND FALL"}})
	require.Len(t, out, 1)
	assert.Equal(t, "INC-002", out[0].IncidentID)
}

func TestApplyTriStateInjury(t *testing.T) {
	requireInjury := Apply(sampleCases(), Criteria{Injury: RequireTrue})
	require.Len(t, requireInjury, 2)

	excludeInjury := Apply(sampleCases(), Criteria{Injury: RequireFalse})
	require.Len(t, excludeInjury, 1)
	assert.Equal(t, "INC-002", excludeInjury[0].IncidentID)

	unconstrained := Apply(sampleCases(), Criteria{Injury: Unconstrained})
	assert.Len(t, unconstrained, 3)
}

func TestApplySearchTokensAllMustMatch(t *testing.T) {
	// Tokens may land in different fields of the same record.
	out := Apply(sampleCases(), Criteria{SearchText: "rivera lamar"})
	require.Len(t, out, 1)
	assert.Equal(t, "INC-001", out[0].IncidentID)

	// One missing token rejects the record.
	out = Apply(sampleCases(), Criteria{SearchText: "rivera houston"})
	assert.Empty(t, out)
}

func TestApplyConstraintsIntersect(t *testing.T) {
	out := Apply(sampleCases(), Criteria{
		Categories: []string{"Vehicle Collision"},
		Injury:     RequireTrue,
		SearchText: "highway",
	})
	require.Len(t, out, 1)
	assert.Equal(t, "INC-003", out[0].IncidentID)
}

func TestApplyIncidentIDs(t *testing.T) {
	out := Apply(sampleCases(), Criteria{IncidentIDs: []string{"inc-002", "INC-003"}})
	require.Len(t, out, 2)
	assert.Equal(t, "INC-002", out[0].IncidentID)
	assert.Equal(t, "INC-003", out[1].IncidentID)
}

func TestApplyPreservesInputOrder(t *testing.T) {
	out := Apply(sampleCases(), Criteria{Jurisdictions: []string{"travis county"}})
	require.Len(t, out, 2)
	assert.True(t, out[0].IncidentID < out[1].IncidentID)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "", Summarize(Criteria{}))

	assert.Equal(t, "Hot leads", Summarize(Criteria{Summary: "Hot leads", Injury: RequireTrue}))

	got := Summarize(Criteria{
		Categories: []string{"Vehicle Collision"},
		Injury:     RequireTrue,
		SearchText: "lamar",
	})
	assert.Equal(t, `Categories: Vehicle Collision • Requires injury • Text contains "lamar"`, got)

	assert.Equal(t, "Exclude property damage cases", Summarize(Criteria{PropertyDamage: RequireFalse}))
}

func TestTriStateJSONRoundTrip(t *testing.T) {
	var c Criteria
	require.NoError(t, json.Unmarshal([]byte(`{"injury":true,"propertyDamage":null}`), &c))
	assert.Equal(t, RequireTrue, c.Injury)
	assert.Equal(t, Unconstrained, c.PropertyDamage)

	require.NoError(t, json.Unmarshal([]byte(`{"injury":false}`), &c))
	assert.Equal(t, RequireFalse, c.Injury)

	data, err := json.Marshal(Criteria{Injury: RequireFalse})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"injury":false`)
	assert.Contains(t, string(data), `"propertyDamage":null`)

	err = json.Unmarshal([]byte(`{"injury":"yes"}`), &c)
	assert.Error(t, err)
}
