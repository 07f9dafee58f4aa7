package gates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
)

func item(id, priority string, deps ...string) checklist.Item {
	return checklist.Item{
		ID: id, Text: "implement the " + id + " component", Priority: priority,
		Confidence: checklist.ConfidenceHigh, DependsOn: deps,
		ProducesArtifacts: []string{}, RequiresArtifacts: []string{},
	}
}

func TestBuildPlan_LevelsAndOrder(t *testing.T) {
	t.Parallel()
	items := []checklist.Item{
		item("c", checklist.PriorityP1, "a", "b"),
		item("b", checklist.PriorityP1, "a"),
		item("a", checklist.PriorityP1),
		item("d", checklist.PriorityP1),
	}
	p := BuildPlan(items)
	require.True(t, p.Acyclic)
	assert.Equal(t, []string{"a", "b", "c", "d"}, p.OrderedItemIDs)
	assert.Equal(t, [][]string{{"a", "d"}, {"b"}, {"c"}}, p.ParallelGroups)
	assert.Equal(t, 3, p.Levels["c"])
	assert.Empty(t, p.Cycle)
}

func TestBuildPlan_ArtifactEdges(t *testing.T) {
	t.Parallel()
	prod := item("producer", checklist.PriorityP1)
	prod.ProducesArtifacts = []string{"out.json"}
	cons := item("consumer", checklist.PriorityP1)
	cons.RequiresArtifacts = []string{"out.json"}
	p := BuildPlan([]checklist.Item{cons, prod})
	assert.Equal(t, []string{"producer", "consumer"}, p.OrderedItemIDs)
	require.Len(t, p.Edges, 1)
	assert.Equal(t, Edge{From: "producer", To: "consumer", Kind: edgeArtifact}, p.Edges[0])
}

func TestCycleGate_RefusesAndEmptiesOrder(t *testing.T) {
	t.Parallel()
	rec := events.NewRecorder()
	out := Run(context.Background(), Input{
		Items: []checklist.Item{
			item("A", checklist.PriorityP1, "C"),
			item("B", checklist.PriorityP1, "A"),
			item("C", checklist.PriorityP1, "B"),
		},
		Recorder: rec,
	})
	assert.False(t, out.Plan.Acyclic)
	assert.Equal(t, []string{}, out.Plan.OrderedItemIDs)
	assert.Equal(t, []string{"A", "B", "C"}, out.Plan.Cycle)
	require.True(t, rec.Has(codes.GateExecutionCycle))
	for _, e := range rec.Events() {
		if e.Outcome == events.Refusal {
			assert.True(t, events.KnownAuthority(e.Authority()), e.GateID)
		}
	}
}

func TestArtifactProducerGate(t *testing.T) {
	t.Parallel()
	self := item("self", checklist.PriorityP1)
	self.ProducesArtifacts = []string{"a.bin"}
	self.RequiresArtifacts = []string{"a.bin", "b.bin"}
	rec := events.NewRecorder()
	out := Run(context.Background(), Input{Items: []checklist.Item{self}, Recorder: rec})
	assert.False(t, out.Artifacts.OK)
	assert.Equal(t, []MissingArtifact{{ItemID: "self", Artifact: "a.bin"}, {ItemID: "self", Artifact: "b.bin"}}, out.Artifacts.Missing)
	assert.True(t, rec.Has(codes.GateMissingArtifactProducer))
}

func TestPriorityGate(t *testing.T) {
	t.Parallel()
	rec := events.NewRecorder()
	out := Run(context.Background(), Input{
		Items:    []checklist.Item{item("urgent", checklist.PriorityP0, "later"), item("later", checklist.PriorityP2)},
		Recorder: rec,
	})
	require.Len(t, out.Priority.Violations, 1)
	assert.Equal(t, "P2", out.Priority.Violations[0].DepPriority)
	assert.True(t, rec.Has(codes.GatePriorityViolation))

	rec2 := events.NewRecorder()
	out2 := Run(context.Background(), Input{
		Items:    []checklist.Item{item("urgent", checklist.PriorityP0, "also"), item("also", checklist.PriorityP0)},
		Recorder: rec2,
	})
	assert.True(t, out2.Priority.OK)
	assert.False(t, rec2.Has(codes.GatePriorityViolation))
}

func TestScore_Deductions(t *testing.T) {
	t.Parallel()
	rec := events.NewRecorder()
	rec.Record(codes.TierAMissing("agents"), events.PhaseCompilation, events.Blocker, "", nil)
	rec.Record(codes.SynthesizedDefault("agents"), events.PhaseCompilation, events.Blocker, "", nil)
	rec.Record(codes.SynthesizedDefault("agents"), events.PhaseCompilation, events.Diagnostic, "", nil)
	rep := Score(rec.Events())
	assert.Equal(t, 60, rep.Score)
	assert.True(t, rep.Passed)
	assert.Equal(t, []string{"agents"}, rep.SynthesizedKeys)

	for _, k := range []string{"metadata", "evidence_bundle", "x", "y"} {
		rec.Record(codes.TierAMissing(k), events.PhaseCompilation, events.Blocker, "", nil)
	}
	for i := 0; i < 20; i++ {
		rec.Record(codes.GateSufficiencyMustUncover, events.PhaseCompilation, events.Diagnostic, "", nil)
	}
	rep = Score(rec.Events())
	assert.Equal(t, 90, rep.Deductions.TierAMissing)
	assert.Equal(t, 50, rep.Deductions.Insufficiency)
	assert.Equal(t, 0, rep.Score)

	persona := events.NewRecorder()
	persona.RecordEvent(events.Event{GateID: codes.TierAMissing("agents"), Outcome: events.Blocker, PersonaID: "p"})
	assert.Equal(t, 100, Score(persona.Events()).Score)
}

func TestQualityGate_AppendsLowItemBelowThreshold(t *testing.T) {
	t.Parallel()
	rec := events.NewRecorder()
	for _, k := range []string{"metadata", "agents"} {
		rec.Record(codes.TierAMissing(k), events.PhaseCompilation, events.Blocker, "", nil)
	}
	short := item("short", checklist.PriorityP0)
	short.Text = "x"
	out := Run(context.Background(), Input{Items: []checklist.Item{short}, Recorder: rec})
	assert.Equal(t, 40, out.Quality.Score)
	assert.False(t, out.Quality.Passed)
	assert.Equal(t, []string{"short"}, out.Quality.LowSignalItemIDs)
	require.Len(t, out.Items, 2)
	assert.True(t, out.Items[0].Meta.LowSignal)
	assert.Equal(t, "quality.checklist_low", out.Items[1].ID)
	assert.Contains(t, out.Items[1].Text, checklist.QualityLowText)
	assert.True(t, rec.Has(codes.GateQualityFailed))

	// The refusal item is not implementation work, so the plan leaves it out.
	assert.Equal(t, []string{"short"}, out.Plan.OrderedItemIDs)
	assert.NotContains(t, out.Plan.Levels, "quality.checklist_low")
}

func TestRunReadiness(t *testing.T) {
	t.Parallel()
	rec := events.NewRecorder()
	trace := RunReadiness(context.Background(), []Probe{
		{Name: "replay", Blocking: true, Check: func(context.Context) (bool, string) { return true, "" }},
		{Name: "tests_attached", Blocking: false, Check: func(context.Context) (bool, string) { return false, "no_tests" }},
		{Name: "boom", Blocking: true, Check: func(context.Context) (bool, string) { panic("kaput") }},
	}, rec)

	assert.Equal(t, ReadinessBlocking, trace.Status)
	require.Len(t, trace.Probes, 3)
	assert.Equal(t, "ok", trace.Probes[0].Reason)
	assert.Equal(t, "panic: kaput", trace.Probes[2].Reason)

	evs := rec.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, events.Info, evs[0].Outcome)
	assert.Equal(t, events.Diagnostic, evs[1].Outcome)
	assert.Equal(t, events.Diagnostic, evs[2].Outcome, "panics never escalate")
	assert.Equal(t, codes.Readiness("boom"), evs[2].GateID)
}

func TestRunReadiness_AllPass(t *testing.T) {
	t.Parallel()
	trace := RunReadiness(context.Background(), []Probe{
		{Name: "a", Blocking: true, Check: func(context.Context) (bool, string) { return true, "ok" }},
		{Name: "b", Blocking: false, Check: func(context.Context) (bool, string) { return false, "meh" }},
	}, events.NewRecorder())
	assert.Equal(t, ReadinessPass, trace.Status)
}

func TestRunReadiness_PersonaProbeStaysOnPersonaChannel(t *testing.T) {
	t.Parallel()
	rec := events.NewRecorder()
	RunReadiness(context.Background(), []Probe{
		{Name: "persona_advisory", PersonaID: "persona_advisory", Check: func(context.Context) (bool, string) { return false, "1 veto pending" }},
	}, rec)

	evs := rec.Events()
	require.Len(t, evs, 1)
	assert.True(t, evs[0].IsPersona())
	assert.Equal(t, events.Diagnostic, evs[0].Outcome)
	assert.Zero(t, events.Count(evs, events.Diagnostic))
}
