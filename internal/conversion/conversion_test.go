package conversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func skeleton() map[string]any {
	return map[string]any{
		"metadata": map[string]any{
			"product_id": "unknown", "spec_version": "0.0", "spec_format": "canonical_json_v1",
			"normalized": true, "source_format": "text", "source_material": "The system must work.",
		},
		"model":    map[string]any{},
		"sections": []any{},
	}
}

func full() map[string]any {
	return map[string]any{
		"metadata": map[string]any{"product_id": "demo", "version": "1.0"},
		"model":    map[string]any{"entities": []any{"a"}},
		"sections": []any{map[string]any{"id": "core"}},
	}
}

func TestClassify_Ladder(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		in     Input
		state  State
		reason string
	}{
		{"empty input", Input{InputEmpty: true, Spec: skeleton()}, Accepted, ReasonInputEmpty},
		{"not a skeleton", Input{Spec: map[string]any{"x": 1}}, Accepted, ReasonSkeletonMissing},
		{"prose skeleton", Input{Spec: skeleton()}, Convertible, ReasonSectionsEmpty},
		{"structured without sections", Input{Spec: func() map[string]any {
			s := skeleton()
			s["model"] = map[string]any{"k": "v"}
			return s
		}()}, Structured, ReasonSectionsEmpty},
		{"schema invalid", Input{Spec: full()}, Structured, ReasonSchemaInvalid},
		{"valid, no readiness", Input{Spec: full(), SchemaValid: true, SufficiencyOK: true}, Valid, ReasonReadinessNotEvaluated},
		{"valid, readiness blocking", Input{Spec: full(), SchemaValid: true, SufficiencyOK: true, ReadinessEvaluated: true}, Valid, ReasonReadinessBlocking},
		{"ready", Input{Spec: full(), SchemaValid: true, SufficiencyOK: true, ReadinessEvaluated: true, ReadinessPass: true}, Ready, ReasonReadinessPass},
		{"incomplete", Input{Spec: full(), SchemaValid: true, ReadinessEvaluated: true, ReadinessPass: true}, Incomplete, ReasonMustUncovered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Classify(tc.in)
			assert.Equal(t, tc.state, r.State)
			assert.Equal(t, tc.reason, r.Reason)
		})
	}
}

func TestPopulated(t *testing.T) {
	t.Parallel()
	assert.False(t, Populated(skeleton()))
	s := skeleton()
	s["metadata"].(map[string]any)["product_id"] = "real"
	assert.True(t, Populated(s))
	s = skeleton()
	s["instructions"] = []any{map[string]any{"id": "i1"}}
	assert.True(t, Populated(s))
}

func TestClassify_MilestonesAreMonotonic(t *testing.T) {
	t.Parallel()
	r := Classify(Input{Spec: full(), SchemaValid: true, SufficiencyOK: true, ReadinessEvaluated: true, ReadinessPass: true})
	assert.Equal(t, []string{"accepted", "skeleton_present", ReasonStructuredMet, "schema_valid", ReasonReadinessPass}, r.Milestones)
}
