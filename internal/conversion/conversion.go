// Package conversion places a run on the conversion ladder
// ACCEPTED < CONVERTIBLE < STRUCTURED < VALID < READY, with INCOMPLETE for
// valid specs whose MUST requirements are not all covered.
package conversion

type State string

const (
	Accepted    State = "ACCEPTED"
	Convertible State = "CONVERTIBLE"
	Structured  State = "STRUCTURED"
	Valid       State = "VALID"
	Ready       State = "READY"
	Incomplete  State = "INCOMPLETE"
)

// Reason codes.
const (
	ReasonInputEmpty            = "input_empty"
	ReasonSkeletonMissing       = "skeleton_missing"
	ReasonSectionsEmpty         = "sections_empty"
	ReasonStructuredNotMet      = "structured_threshold_not_met"
	ReasonStructuredMet         = "structured_threshold_met"
	ReasonSchemaInvalid         = "schema_invalid"
	ReasonReadinessNotEvaluated = "readiness_not_evaluated"
	ReasonReadinessBlocking     = "readiness_blocking"
	ReasonReadinessPass         = "readiness_pass"
	ReasonMustUncovered         = "must_uncovered"
)

// Input is read from the final artifacts of a run.
type Input struct {
	Spec               map[string]any
	InputEmpty         bool
	SchemaValid        bool
	ReadinessEvaluated bool
	ReadinessPass      bool
	SufficiencyOK      bool
}

type Result struct {
	State State `json:"conversion_state"`
	// Reason names why the run stopped where it did, or readiness_pass at the top.
	Reason     string   `json:"state_reason"`
	Milestones []string `json:"milestones"`
}

// skeletonMetadata are the keys the ingestor writes into a promoted skeleton.
var skeletonMetadata = map[string]any{
	"product_id":      "unknown",
	"spec_version":    "0.0",
	"spec_format":     "canonical_json_v1",
	"normalized":      true,
	"source_format":   nil,
	"source_material": nil,
}

// Classify climbs the ladder and stops at the first unmet rung.
func Classify(in Input) Result {
	r := Result{State: Accepted, Milestones: []string{"accepted"}}
	if in.InputEmpty {
		r.Reason = ReasonInputEmpty
		return r
	}
	if !hasSkeleton(in.Spec) {
		r.Reason = ReasonSkeletonMissing
		return r
	}
	r.State = Convertible
	r.Milestones = append(r.Milestones, "skeleton_present")

	sectionsEmpty := isEmpty(in.Spec["sections"])
	if !Populated(in.Spec) {
		r.Reason = ReasonStructuredNotMet
		if sectionsEmpty {
			r.Reason = ReasonSectionsEmpty
		}
		return r
	}
	r.State = Structured
	r.Milestones = append(r.Milestones, ReasonStructuredMet)

	switch {
	case sectionsEmpty:
		r.Reason = ReasonSectionsEmpty
		return r
	case !in.SchemaValid:
		r.Reason = ReasonSchemaInvalid
		return r
	}
	r.State = Valid
	r.Milestones = append(r.Milestones, "schema_valid")

	if !in.SufficiencyOK {
		r.State = Incomplete
		r.Reason = ReasonMustUncovered
		return r
	}
	switch {
	case !in.ReadinessEvaluated:
		r.Reason = ReasonReadinessNotEvaluated
	case !in.ReadinessPass:
		r.Reason = ReasonReadinessBlocking
	default:
		r.State = Ready
		r.Reason = ReasonReadinessPass
		r.Milestones = append(r.Milestones, ReasonReadinessPass)
	}
	return r
}

func hasSkeleton(spec map[string]any) bool {
	if spec == nil {
		return false
	}
	_, hasMeta := spec["metadata"].(map[string]any)
	_, hasSections := spec["sections"]
	return hasMeta && hasSections
}

// Populated reports whether metadata, model or instructions carry content
// beyond what the ingestor puts into a skeleton.
func Populated(spec map[string]any) bool {
	if !isEmpty(spec["model"]) || !isEmpty(spec["instructions"]) {
		return true
	}
	meta, _ := spec["metadata"].(map[string]any)
	for k, v := range meta {
		def, known := skeletonMetadata[k]
		if !known {
			return true
		}
		if def != nil && v != def {
			return true
		}
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case string:
		return t == ""
	}
	return false
}
