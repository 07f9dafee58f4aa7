package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/requirement"
)

func item(id, priority, confidence string, refs ...string) checklist.Item {
	return checklist.Item{ID: id, Priority: priority, Confidence: confidence, RequirementRefs: refs}
}

func TestEvaluate_Statuses(t *testing.T) {
	t.Parallel()
	reqs := []requirement.Requirement{
		{ID: "r1", Level: requirement.MUST, Text: "a must"},
		{ID: "r2", Level: requirement.MUST, Text: "b must"},
		{ID: "r3", Level: requirement.SHOULD, Text: "c should"},
		{ID: "r4", Level: requirement.MUST, Text: `{"dump": "must"}`},
	}
	items := []checklist.Item{
		item("i1", checklist.PriorityP1, checklist.ConfidenceHigh, "r1"),
		item("i2", checklist.PriorityP1, checklist.ConfidenceLow, "r2"),
		item("i3", checklist.PriorityP2, checklist.ConfidenceHigh, "r2"),
	}
	rep := Evaluate(reqs, items)
	require.Len(t, rep.Records, 4)
	assert.Equal(t, Full, rep.Records[0].Status)
	assert.Equal(t, Partial, rep.Records[1].Status)
	assert.Equal(t, []string{"i2", "i3"}, rep.Records[1].ChecklistItemIDs)
	assert.Equal(t, Missing, rep.Records[2].Status)
	assert.True(t, rep.Records[3].Structural)
	assert.Equal(t, 3, rep.TotalCount)
	assert.Equal(t, 1, rep.CoveredCount)
	assert.InDelta(t, 0.3333, rep.CoveredPct, 1e-9)
	assert.Equal(t, []string{"r4"}, rep.StructuralUnitIDs)

	suff := Sufficient(reqs, rep)
	assert.False(t, suff.OK)
	assert.Equal(t, 2, suff.MustTotal)
	assert.Equal(t, []string{"r2"}, suff.UncoveredMustIDs)
}

func TestEvaluate_NoRequirementsIsFullyCovered(t *testing.T) {
	t.Parallel()
	rep := Evaluate(nil, nil)
	assert.Equal(t, 1.0, rep.CoveredPct)
	assert.True(t, Sufficient(nil, rep).OK)
}

func TestAddingFullItemNeverLowersCoverage(t *testing.T) {
	t.Parallel()
	reqs := []requirement.Requirement{{ID: "r1", Level: requirement.MUST}, {ID: "r2", Level: requirement.MAY}}
	items := []checklist.Item{item("i1", checklist.PriorityP2, checklist.ConfidenceHigh, "r1")}
	before := Evaluate(reqs, items).CoveredPct
	items = append(items, item("i2", checklist.PriorityP0, checklist.ConfidenceMedium, "r1", "r2"))
	after := Evaluate(reqs, items).CoveredPct
	assert.GreaterOrEqual(t, after, before)
	assert.Equal(t, 1.0, after)
}

func TestRecordEvents(t *testing.T) {
	t.Parallel()
	rec := events.NewRecorder()
	RecordEvents(rec, Report{}, Sufficiency{UncoveredMustIDs: []string{"a", "b"}})
	evs := rec.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, codes.GateCoverageEvaluated, evs[0].GateID)
	assert.Equal(t, codes.GateSufficiencyMustUncover, evs[1].GateID)
	assert.Equal(t, events.Diagnostic, evs[2].Outcome)
}
