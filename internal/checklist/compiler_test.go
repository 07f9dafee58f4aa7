package checklist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcohefti/specc/internal/ast"
	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/requirement"
)

func compileSpec(t *testing.T, raw map[string]any) (Output, *events.Recorder) {
	t.Helper()
	spec, err := canon.Spec(raw)
	require.NoError(t, err)
	tree := ast.Build(spec)
	rec := events.NewRecorder()
	out := Compile(context.Background(), Input{
		Spec:         spec,
		Tree:         tree,
		Requirements: requirement.FromTree(tree),
		LineSeed:     "seed",
		Recorder:     rec,
	})
	return out, rec
}

func baseSpec() map[string]any {
	return map[string]any{
		"metadata":        map[string]any{"product_id": "demo", "spec_format": "canonical_json_v1", "version": "1.0"},
		"agents":          map[string]any{"builder": "writes code"},
		"evidence_bundle": map[string]any{"path": "evidence"},
		"model":           map[string]any{"modules": []any{map[string]any{"name": "parser"}}},
		"sections": []any{
			map[string]any{"id": "api", "tasks": []any{
				map[string]any{"id": "api.1", "text": "The API must return JSON bodies for every request.", "produces": []any{"api.json"}},
				map[string]any{"id": "api.2", "text": "Clients should retry failed calls with backoff.", "depends_on": []any{"api.1", "ghost"}},
			}},
		},
		"invariants":   []any{map[string]any{"id": "inv-1", "text": "Output is byte stable.", "status": "violated"}},
		"instructions": []any{map[string]any{"id": "i1", "text": "Run the generator."}},
	}
}

func byID(items []Item) map[string]Item {
	m := map[string]Item{}
	for _, it := range items {
		m[it.ID] = it
	}
	return m
}

func TestCompile_TierAMissingSynthesizesDefaultAndEvents(t *testing.T) {
	t.Parallel()
	raw := baseSpec()
	delete(raw, "agents")
	out, rec := compileSpec(t, raw)

	items := byID(out.Items)
	def, ok := items["default.agents"]
	require.True(t, ok)
	assert.Equal(t, "/agents", def.Ptr)
	assert.Equal(t, SeverityHigh, def.Severity)
	assert.Equal(t, "A", def.Meta.Tier)
	assert.True(t, def.Meta.SynthesizedDefault)
	assert.Equal(t, SourceDefault, def.Meta.Source)
	assert.Equal(t, "safe_default_agents", def.Meta.Justification)
	assert.Equal(t, "/agents", def.Meta.JustificationPtr)
	assert.Equal(t, codes.SynthesizedDefault("agents"), def.Meta.Gate)

	var got []string
	for _, e := range rec.Events() {
		if e.GateID == "G_TIER_A_MISSING_AGENTS" || e.GateID == "G_SYNTHESIZED_DEFAULT_AGENTS" {
			got = append(got, e.GateID+":"+string(e.Outcome))
		}
	}
	assert.Equal(t, []string{
		"G_TIER_A_MISSING_AGENTS:BLOCKER",
		"G_SYNTHESIZED_DEFAULT_AGENTS:BLOCKER",
		"G_SYNTHESIZED_DEFAULT_AGENTS:DIAGNOSTIC",
	}, got)
	assert.Len(t, out.Events, len(rec.Events()))
}

func TestCompile_TierBMissingIsDiagnosticMedium(t *testing.T) {
	t.Parallel()
	out, rec := compileSpec(t, baseSpec())
	def := byID(out.Items)["default.security"]
	assert.Equal(t, SeverityMedium, def.Severity)
	assert.Equal(t, "B", def.Meta.Tier)
	for _, e := range rec.Events() {
		assert.NotEqual(t, events.Blocker, e.Outcome, e.GateID)
	}
	assert.True(t, rec.Has(codes.TierBMissing("security")))
}

func TestCompile_TaskObjectsAndDerivedTasks(t *testing.T) {
	t.Parallel()
	out, _ := compileSpec(t, baseSpec())
	items := byID(out.Items)

	api1 := items["api.1"]
	assert.Equal(t, "/sections/0/tasks/0", api1.Ptr)
	assert.Equal(t, "/sections/0/tasks/0/text", api1.Evidence.Source.Ptr)
	assert.Equal(t, "api", api1.Section)
	assert.Equal(t, SeverityHigh, api1.Severity)
	assert.Equal(t, PriorityP1, api1.Priority)
	assert.Equal(t, ConfidenceHigh, api1.Confidence)
	assert.Equal(t, []string{"api.json"}, api1.ProducesArtifacts)
	assert.NotEmpty(t, api1.RequirementRefs)

	api2 := items["api.2"]
	assert.Equal(t, []string{"api.1"}, api2.DependsOn, "unknown dependency edge is dropped")
	fix := items[canon.Short("api.2::fix_dependency:ghost", 10)]
	assert.Equal(t, CategoryFixDependency, fix.Category)
	assert.Equal(t, "ghost", fix.DependencyRef)
	assert.Equal(t, "api.2", fix.Meta.DerivedFrom)
	assert.Equal(t, SourceDerived, fix.Meta.Source)
	assert.Equal(t, api2.LineageID, fix.LineageID)

	for _, kind := range []string{"module_test", "module_imports", "module_init"} {
		_, ok := items[canon.Short("module.parser::"+kind, 10)]
		assert.True(t, ok, kind)
	}

	var inv Item
	for _, it := range out.Items {
		if it.Category == CategoryResolveInvariant {
			inv = it
		}
	}
	assert.Equal(t, "inv-1", inv.InvariantID)
	assert.Equal(t, SeverityCritical, inv.Severity)
	assert.Equal(t, PriorityP0, inv.Priority)
}

func TestCompile_MissingMetadataFieldsYieldFixMetadata(t *testing.T) {
	t.Parallel()
	raw := baseSpec()
	raw["metadata"] = map[string]any{"product_id": "demo"}
	out, _ := compileSpec(t, raw)

	var fields []string
	for _, it := range out.Items {
		if it.Category == CategoryFixMetadata {
			fields = append(fields, it.Text)
			assert.Equal(t, SeverityHigh, it.Severity)
		}
	}
	assert.ElementsMatch(t, []string{"SPEC MISSING: metadata.spec_format", "SPEC MISSING: metadata.version"}, fields)
}

func TestCompile_DuplicateIDsRecordRefusal(t *testing.T) {
	t.Parallel()
	raw := baseSpec()
	raw["sections"] = []any{
		map[string]any{"id": "bootstrap", "tasks": []any{
			map[string]any{"id": "bootstrap.1", "text": "Create the repository layout."},
			map[string]any{"id": "bootstrap.1", "text": "Create the CI pipeline."},
		}},
	}
	out, rec := compileSpec(t, raw)

	n := 0
	for _, it := range out.Items {
		if it.ID == "bootstrap.1" {
			n++
			assert.Equal(t, "Create the repository layout.", it.Text)
			assert.Equal(t, CategoryBootstrap, it.Category)
		}
	}
	assert.Equal(t, 1, n)

	var refusal *events.Event
	for _, e := range rec.Events() {
		if e.GateID == codes.GateChecklistModelErrors {
			e := e
			refusal = &e
		}
	}
	require.NotNil(t, refusal)
	assert.Equal(t, events.Refusal, refusal.Outcome)
	assert.Equal(t, events.AuthorityGovernance, refusal.Authority())
	assert.Equal(t, []string{"bootstrap.1"}, refusal.Evidence["duplicate_ids"])

	_, ok := byID(out.Items)[canon.Short("bootstrap.1::bootstrap_impl", 10)]
	assert.True(t, ok)
}

func TestCompile_ProseOnlyInfersLowConfidenceItems(t *testing.T) {
	t.Parallel()
	raw := map[string]any{
		"metadata": map[string]any{
			"product_id": "unknown", "spec_version": "0.0", "spec_format": "canonical_json_v1",
			"normalized": true, "source_format": "text",
			"source_material": "The system must refuse unsafe defaults. Logs must never be deleted.",
		},
		"model":    map[string]any{},
		"sections": []any{},
	}
	out, _ := compileSpec(t, raw)

	var inferred []Item
	for _, it := range out.Items {
		if it.InferredFromProse {
			inferred = append(inferred, it)
		}
	}
	require.Len(t, inferred, 2)
	for _, it := range inferred {
		assert.Equal(t, ConfidenceLow, it.Confidence)
		assert.Equal(t, InferenceHeuristic, it.Meta.InferenceType)
		assert.Equal(t, SourceInferred, it.Meta.Source)
		assert.Len(t, it.RequirementRefs, 1)
		require.NotNil(t, it.Evidence.Source.Line)
		assert.Equal(t, 1, *it.Evidence.Source.Line)
	}
	for _, it := range out.Items {
		assert.NotEqual(t, "/metadata/source_material", it.Ptr)
	}
}

func TestCompile_DeterministicOrderAndIDs(t *testing.T) {
	t.Parallel()
	a, _ := compileSpec(t, baseSpec())
	b, _ := compileSpec(t, baseSpec())
	ja, err := canon.JSON(a.Items)
	require.NoError(t, err)
	jb, err := canon.JSON(b.Items)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))

	assert.Equal(t, "metadata", a.Items[0].Section)
	seen := map[string]bool{}
	for _, it := range a.Items {
		assert.False(t, seen[it.ID], "duplicate id %s", it.ID)
		seen[it.ID] = true
		assert.True(t, it.Evidence.Source.Ptr != "" || (it.InferredFromProse && it.Confidence == ConfidenceLow), it.ID)
	}
}

func TestSyntheticLineAndRanks(t *testing.T) {
	t.Parallel()
	l := SyntheticLine("seed", "/a")
	assert.GreaterOrEqual(t, l, 1)
	assert.LessOrEqual(t, l, lineModulus)
	assert.Equal(t, l, SyntheticLine("seed", "/a"))
	assert.Less(t, SectionRank("metadata"), SectionRank("api"))
	assert.Equal(t, SectionRank("zeta"), SectionRank("other"))
	assert.Equal(t, PriorityP0, PriorityFor(SeverityHigh, CategoryGovernance))
	assert.Equal(t, PriorityP1, PriorityFor(SeverityHigh, CategoryStructural))
	assert.Equal(t, PriorityP2, PriorityFor(SeverityLow, CategoryStructural))
}

func TestTokenOverlap(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.0, TokenOverlap("logs must never be deleted", "Logs MUST never be deleted!"), 1e-9)
	assert.InDelta(t, 0.4, TokenOverlap("logs must never be deleted", "logs must stay"), 1e-9)
	assert.Zero(t, TokenOverlap("", "x"))
}
