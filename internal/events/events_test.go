package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CallOrderAndSequence(t *testing.T) {
	t.Parallel()
	r := NewRecorder()
	r.Record("G4_SCHEMA_VALIDATION", PhasePreflight, Diagnostic, "schema", nil)
	r.RecordRefusal("G17_EXECUTION_CYCLE_DETECTED", PhasePostGeneration, "cycle",
		RefusalEvidence(AuthorityGovernance, "cycle", "plan", "cyclic deps"), map[string]any{"cycle": []string{"a", "b"}})

	evs := r.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, 0, evs[0].Seq)
	assert.Equal(t, 1, evs[1].Seq)
	assert.NotNil(t, evs[0].Evidence)
	assert.Equal(t, AuthorityGovernance, evs[1].Authority())
	assert.Equal(t, "", evs[0].Authority())
	assert.True(t, r.Has("G4_SCHEMA_VALIDATION"))
	assert.False(t, r.Has("G5_AST_POINTER_AUDIT"))

	evs[0].Message = "mutated"
	assert.Equal(t, "schema", r.Events()[0].Message, "Events must return a copy")
}

func TestRecorder_ConcurrentAppend(t *testing.T) {
	t.Parallel()
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record("G14_COVERAGE_EVALUATED", PhaseCompilation, Info, "x", nil)
		}()
	}
	wg.Wait()
	evs := r.Events()
	require.Len(t, evs, 50)
	for i, e := range evs {
		assert.Equal(t, i, e.Seq)
	}
}

func TestSortForEmit(t *testing.T) {
	t.Parallel()
	evs := []Event{
		{Seq: 0, GateID: "G20", Phase: PhasePostGeneration},
		{Seq: 1, GateID: "G4", Phase: PhasePreflight},
		{Seq: 2, GateID: "G14", Phase: PhasePostGeneration},
		{Seq: 3, GateID: "G14", Phase: PhasePostGeneration},
		{Seq: 4, GateID: "A", Phase: "weird"},
	}
	got := SortForEmit(evs)
	var seqs []int
	for _, e := range got {
		seqs = append(seqs, e.Seq)
	}
	assert.Equal(t, []int{1, 2, 3, 0, 4}, seqs)
	assert.Equal(t, 0, evs[0].Seq, "input untouched")
}

func TestNilRecorderNeverPanics(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Record("X", PhaseFinalize, Info, "", nil) })
	assert.Nil(t, r.Events())
	assert.Equal(t, 1, Count([]Event{{Outcome: Blocker}, {Outcome: Blocker, PersonaID: "p"}}, Blocker))
}
