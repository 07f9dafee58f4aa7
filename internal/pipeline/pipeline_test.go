package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/config"
	"github.com/marcohefti/specc/internal/conversion"
	"github.com/marcohefti/specc/internal/coverage"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/finalize"
	"github.com/marcohefti/specc/internal/gates"
	"github.com/marcohefti/specc/internal/persona"
)

func fullSpec() map[string]any {
	return map[string]any{
		"metadata":            map[string]any{"product_id": "ledger", "spec_format": "canonical_json_v1", "version": "1.0"},
		"agents":              map[string]any{"builder": "writes code"},
		"evidence_bundle":     map[string]any{"path": "evidence"},
		"determinism":         map[string]any{"seed": "fixed"},
		"artifact_contract":   map[string]any{"format": "json"},
		"generation_mappings": map[string]any{"api": "handlers"},
		"security":            map[string]any{"auth": "tokens"},
		"ci_contract":         map[string]any{"command": "go test ./..."},
		"model":               map[string]any{"modules": []any{map[string]any{"name": "ledger"}}},
		"sections": []any{
			map[string]any{"id": "api", "tasks": []any{
				map[string]any{"id": "api.1", "text": "The API must return JSON bodies for every request.", "produces": []any{"api.json"}},
				map[string]any{"id": "api.2", "text": "The ledger must reject negative transfer amounts.", "depends_on": []any{"api.1"}},
			}},
		},
		"invariants":   []any{map[string]any{"id": "inv-1", "text": "Output is byte stable."}},
		"instructions": []any{map[string]any{"id": "i1", "text": "Run the generator."}},
	}
}

func compileJSON(t *testing.T, raw map[string]any, rc RunContext) *Run {
	t.Helper()
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	rc.Input = b
	rc.PathHint = "spec.json"
	if rc.Options.StrictnessLevels == nil {
		rc.Options = config.DefaultOptions()
	}
	e := &Engine{Version: "test"}
	run, err := e.Run(context.Background(), rc)
	require.NoError(t, err)
	return run
}

func gateOutcomes(run *Run, gateID string) []events.Outcome {
	var out []events.Outcome
	for _, e := range run.Checklist.Events {
		if e.GateID == gateID {
			out = append(out, e.Outcome)
		}
	}
	return out
}

func TestRun_CanonicalFullSpecIsReady(t *testing.T) {
	t.Parallel()
	run := compileJSON(t, fullSpec(), RunContext{})

	assert.Equal(t, finalize.OutcomeDiagnostic, run.Final.PrimaryOutcome)
	assert.Empty(t, run.Final.BlockingReasons)
	assert.True(t, run.Verdict.Implementable, "reasons: %v", run.Verdict.Reasons)
	assert.Equal(t, 1.0, run.Coverage.CoveredPct)
	assert.Equal(t, conversion.Ready, run.Conversion.State)
	assert.Equal(t, ValidityPass, run.ValidityStatus)
	assert.Equal(t, FileChecklist, run.ChecklistFile())
	for _, e := range run.Checklist.Events {
		assert.False(t, codes.IsSynthesizedDefault(e.GateID), e.GateID)
		assert.False(t, codes.IsTierAMissing(e.GateID), e.GateID)
	}
	require.NotNil(t, run.Readiness)
	assert.Equal(t, gates.ReadinessPass, run.Readiness.Status)
	for _, p := range run.Readiness.Probes {
		assert.True(t, p.OK, "%s: %s", p.Name, p.Reason)
	}
	assert.Len(t, run.Verdict.ProofReferences, len(verdictInputs))
	assert.NotContains(t, run.Reports, FileErrors)
	assert.NotContains(t, run.Reports, FileFeedback)
}

func TestRun_ProseOnlyIsConvertible(t *testing.T) {
	t.Parallel()
	e := &Engine{Version: "test"}
	run, err := e.Run(context.Background(), RunContext{
		Input:    []byte("The system must refuse unsafe defaults. Logs must never be deleted.\n"),
		PathHint: "notes.md",
		Options:  config.DefaultOptions(),
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(run.Requirements), 2)
	low := 0
	for _, it := range run.Checklist.Items {
		if it.InferredFromProse && it.Confidence == "low" {
			low++
		}
	}
	assert.GreaterOrEqual(t, low, 2)
	assert.False(t, run.Verdict.Implementable)
	assert.Equal(t, conversion.Convertible, run.Conversion.State)
	assert.Equal(t, ValidityFail, run.ValidityStatus)
	assert.Equal(t, FileChecklistDraft, run.ChecklistFile())
	assert.Nil(t, run.Readiness)

	sup, ok := run.Reports[FileSuppressedSignal].(SuppressedSignalDoc)
	require.True(t, ok)
	assert.Contains(t, sup.MustSentences, "The system must refuse unsafe defaults.")
	assert.Contains(t, sup.MustSentences, "Logs must never be deleted.")

	errs, ok := run.Reports[FileErrors].(ErrorsDoc)
	require.True(t, ok)
	assert.Contains(t, errs.Codes, codes.SectionsEmpty)

	fb, ok := run.Reports[FileFeedback].(FeedbackDoc)
	require.True(t, ok)
	require.NotEmpty(t, fb.SuggestedNextEdits)
	for i := 1; i < len(fb.SuggestedNextEdits); i++ {
		assert.GreaterOrEqual(t, fb.SuggestedNextEdits[i-1].Impact, fb.SuggestedNextEdits[i].Impact)
	}
}

func TestRun_MissingTierAIsBlocked(t *testing.T) {
	t.Parallel()
	raw := fullSpec()
	delete(raw, "agents")
	run := compileJSON(t, raw, RunContext{})

	synthesized := 0
	for _, it := range run.Checklist.Items {
		if it.Ptr == "/agents" && it.Meta.SynthesizedDefault {
			synthesized++
		}
	}
	assert.Equal(t, 1, synthesized)
	assert.Equal(t, []events.Outcome{events.Blocker}, gateOutcomes(run, codes.TierAMissing("agents")))
	assert.ElementsMatch(t, []events.Outcome{events.Blocker, events.Diagnostic}, gateOutcomes(run, codes.SynthesizedDefault("agents")))
	assert.Equal(t, finalize.OutcomeBlocked, run.Final.PrimaryOutcome)
}

func TestRun_DependencyCycleIsRefused(t *testing.T) {
	t.Parallel()
	raw := fullSpec()
	raw["sections"] = []any{
		map[string]any{"id": "loop", "tasks": []any{
			map[string]any{"id": "a", "text": "Build the parser module.", "depends_on": []any{"c"}},
			map[string]any{"id": "b", "text": "Build the planner module.", "depends_on": []any{"a"}},
			map[string]any{"id": "c", "text": "Build the emitter module.", "depends_on": []any{"b"}},
		}},
	}
	run := compileJSON(t, raw, RunContext{})

	assert.Equal(t, []events.Outcome{events.Refusal}, gateOutcomes(run, codes.GateExecutionCycle))
	assert.Equal(t, finalize.OutcomeRefusal, run.Final.PrimaryOutcome)
	assert.True(t, run.Final.Refusal)

	plan, ok := run.Reports[FileExecutionPlan].(ExecutionPlanDoc)
	require.True(t, ok)
	assert.Empty(t, plan.ExecutionPlan.OrderedItemIDs)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, plan.ExecutionPlan.Cycle)
	assert.False(t, run.Verdict.Implementable)
}

func TestRun_DuplicateIDsFailValidity(t *testing.T) {
	t.Parallel()
	raw := fullSpec()
	raw["sections"] = []any{
		map[string]any{"id": "bootstrap", "tasks": []any{
			map[string]any{"id": "bootstrap.1", "text": "Create the repository layout."},
			map[string]any{"id": "bootstrap.1", "text": "Create the CI pipeline."},
		}},
	}
	run := compileJSON(t, raw, RunContext{})

	assert.NotEmpty(t, gateOutcomes(run, codes.GateChecklistModelErrors))
	assert.Equal(t, ValidityFail, run.ValidityStatus)
	assert.Equal(t, FileChecklistDraft, run.ChecklistFile())
	errs, ok := run.Reports[FileErrors].(ErrorsDoc)
	require.True(t, ok)
	assert.Contains(t, errs.Codes, codes.GateChecklistModelErrors)
}

const tomlSpec = `
agents = "builder"
evidence_bundle = "evidence"
invariants = []

[metadata]
product_id = "ledger"
spec_format = "canonical_json_v1"
version = "1.0"

[model]
name = "ledger"

[[sections]]
id = "api"

[[sections.tasks]]
id = "api.1"
text = "The API must return JSON bodies for every request."

[[instructions]]
id = "i1"
text = "Run the generator."
`

func TestReplay_SeedsRecordedAcrossEngines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	opts := config.DefaultOptions()

	first := &Engine{Version: "test"}
	a, err := first.Run(ctx, RunContext{Input: []byte(tomlSpec), PathHint: "spec.toml", Options: opts, SeedBasis: "basis-a"})
	require.NoError(t, err)
	snap, err := a.Snapshot()
	require.NoError(t, err)

	second := &Engine{Version: "test"}
	b, err := second.Run(ctx, RunContext{Input: []byte(tomlSpec), PathHint: "spec.toml", Options: opts, SeedBasis: "basis-b"})
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)

	res, err := second.Replay(ctx, RunContext{Options: opts, SeedBasis: "basis-b"}, snap)
	require.NoError(t, err)
	assert.True(t, res.Match, "diff: %+v", res.Diff)
	assert.Empty(t, res.Diff)

	items := snap.ChecklistCanonical["items"].([]any)
	require.NotEmpty(t, items)
	target := items[0].(map[string]any)
	target["text"] = "tampered"

	res, err = second.Replay(ctx, RunContext{Options: opts, SeedBasis: "basis-b"}, snap)
	require.NoError(t, err)
	assert.False(t, res.Match)
	require.Len(t, res.Diff, 1)
	assert.Equal(t, "items", res.Diff[0].Key)
	assert.Equal(t, target["id"], res.Diff[0].ItemID)
	assert.Contains(t, res.Diff[0].Fields, "text")
}

func TestRun_ByteIdenticalAcrossRuns(t *testing.T) {
	t.Parallel()
	a := compileJSON(t, fullSpec(), RunContext{})
	b := compileJSON(t, fullSpec(), RunContext{})
	for name, doc := range a.Reports {
		want, err := canon.Indented(doc)
		require.NoError(t, err)
		got, err := canon.Indented(b.Reports[name])
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), name)
	}
	assert.Equal(t, a.RunID, b.RunID)
}

func TestRun_MinimalityPreservesCoveredCount(t *testing.T) {
	t.Parallel()
	raw := fullSpec()
	raw["sections"] = []any{
		map[string]any{"id": "api", "tasks": []any{
			map[string]any{"id": "api.1", "text": "The API must return JSON bodies for every request."},
			map[string]any{"id": "api.1b", "text": "The API must return JSON bodies for every request."},
		}},
	}
	run := compileJSON(t, raw, RunContext{})
	pre := coverage.Evaluate(run.Requirements, run.Compiled.Items)
	assert.Equal(t, pre.CoveredCount, run.Coverage.CoveredCount)
	assert.LessOrEqual(t, len(run.Gates.Items), len(run.Compiled.Items)+1)
	assert.Equal(t, len(run.Compiled.Items)-run.Minimality.RemovedCount, len(run.Gates.Items)-qualityItems(run))
}

func qualityItems(run *Run) int {
	n := 0
	for _, it := range run.Gates.Items {
		if it.Meta.Gate == codes.GateQualityFailed {
			n++
		}
	}
	return n
}

func TestRun_PersonaEventsStayAdvisory(t *testing.T) {
	t.Parallel()
	base := compileJSON(t, fullSpec(), RunContext{})
	f := &persona.File{
		Proposals: []persona.Proposal{{PersonaID: "reviewer", ItemID: "api.1", Field: "severity", Value: "low"}},
		Vetoes:    []persona.Veto{{PersonaID: "reviewer", Phase: "post_generation", Reason: "not convinced"}},
	}
	run := compileJSON(t, fullSpec(), RunContext{Persona: f})

	assert.Equal(t, base.Final.PrimaryOutcome, run.Final.PrimaryOutcome)
	require.NotNil(t, run.Persona)
	assert.Len(t, run.Persona.Denied, 1)
	assert.Len(t, run.Persona.Vetoes, 1)
	// denied proposal, veto, and the persona_advisory readiness probe
	assert.Equal(t, 3, run.Checklist.Meta.PersonaEvents)
	assert.Equal(t, base.Checklist.Semantic(), run.Checklist.Semantic())

	assert.Equal(t, base.Checklist.Items, run.Checklist.Items)
	for _, p := range run.Readiness.Probes {
		if p.Name == ProbePersonaAdvisory {
			assert.False(t, p.OK)
		}
	}
	assert.Equal(t, gates.ReadinessPass, run.Readiness.Status)
}

func TestReplay_MatchesAfterPersonaVeto(t *testing.T) {
	t.Parallel()
	f := &persona.File{
		Vetoes: []persona.Veto{{PersonaID: "reviewer", Phase: "post_generation", Reason: "not convinced"}},
	}
	run := compileJSON(t, fullSpec(), RunContext{Persona: f})
	snap, err := run.Snapshot()
	require.NoError(t, err)

	e := &Engine{Version: "test"}
	res, err := e.Replay(context.Background(), RunContext{Options: config.DefaultOptions()}, snap)
	require.NoError(t, err)
	assert.True(t, res.Match, "diff: %+v", res.Diff)
	assert.Empty(t, res.Diff)
}
