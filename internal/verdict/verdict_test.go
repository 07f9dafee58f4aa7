package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marcohefti/specc/internal/coverage"
	"github.com/marcohefti/specc/internal/gates"
)

func passing() Input {
	return Input{
		Sufficiency: coverage.Sufficiency{OK: true},
		Coverage:    coverage.Report{CoveredPct: 1},
		Plan:        gates.Plan{Acyclic: true},
		ProofReferences: map[string]string{
			"spec_coverage.json": "aa",
		},
	}
}

func TestAggregate_Implementable(t *testing.T) {
	t.Parallel()
	v := Aggregate(passing())
	assert.True(t, v.Implementable)
	assert.Empty(t, v.Reasons)
	assert.Equal(t, "aa", v.ProofReferences["spec_coverage.json"])
}

func TestAggregate_EachCheckCanFail(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*Input)
		reason string
	}{
		{"insufficient", func(in *Input) { in.Sufficiency.OK = false }, ReasonInsufficient},
		{"coverage", func(in *Input) { in.Coverage.CoveredPct = 0.97 }, ReasonCoverageBelow},
		{"low signal", func(in *Input) { in.Quality.LowSignalItemIDs = []string{"x"} }, ReasonLowSignal},
		{"cycle", func(in *Input) { in.Plan.Acyclic = false }, ReasonExecutionCycle},
		{"artifacts", func(in *Input) {
			in.Artifacts.Missing = []gates.MissingArtifact{{ItemID: "a", Artifact: "b"}}
		}, ReasonMissingArtifacts},
		{"priority", func(in *Input) {
			in.Priority.Violations = []gates.PriorityViolation{{ItemID: "a", DependsOn: "b"}}
		}, ReasonPriorityViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := passing()
			tc.mutate(&in)
			v := Aggregate(in)
			assert.False(t, v.Implementable)
			assert.Equal(t, []string{tc.reason}, v.Reasons)
		})
	}
}

func TestAggregate_ThresholdIsInclusive(t *testing.T) {
	t.Parallel()
	in := passing()
	in.Coverage.CoveredPct = CoverageThreshold
	assert.True(t, Aggregate(in).Implementable)
}
