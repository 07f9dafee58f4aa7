// Package verdict decides whether a checklist is implementable.
package verdict

import (
	"sort"

	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/coverage"
	"github.com/marcohefti/specc/internal/gates"
)

// CoverageThreshold is the minimum adjusted coverage fraction.
const CoverageThreshold = 0.98

// Reason codes for a negative verdict.
const (
	ReasonInsufficient      = "sufficiency_failed"
	ReasonCoverageBelow     = "coverage_below_threshold"
	ReasonLowSignal         = "low_signal_items"
	ReasonExecutionCycle    = "execution_cycle"
	ReasonMissingArtifacts  = "missing_artifact_producers"
	ReasonPriorityViolation = "priority_violations"
)

type Input struct {
	Sufficiency coverage.Sufficiency
	Coverage    coverage.Report
	Quality     gates.QualityReport
	Plan        gates.Plan
	Artifacts   gates.ArtifactReport
	Priority    gates.PriorityReport
	// ProofReferences maps consumed report file names to their SHA-256.
	ProofReferences map[string]string
}

type Verdict struct {
	GateID           string            `json:"gate_id"`
	Implementable    bool              `json:"implementable"`
	Reasons          []string          `json:"reasons"`
	AdjustedCoverage float64           `json:"adjusted_coverage"`
	Threshold        float64           `json:"coverage_threshold"`
	Checks           map[string]bool   `json:"checks"`
	ProofReferences  map[string]string `json:"proof_references"`
}

// Aggregate is IMPLEMENTABLE iff every check holds.
func Aggregate(in Input) Verdict {
	checks := map[string]bool{
		"sufficiency_ok":         in.Sufficiency.OK,
		"coverage_at_threshold":  in.Coverage.CoveredPct >= CoverageThreshold,
		"no_low_signal_items":    len(in.Quality.LowSignalItemIDs) == 0,
		"no_execution_cycle":     in.Plan.Acyclic,
		"no_missing_artifacts":   len(in.Artifacts.Missing) == 0,
		"no_priority_violations": len(in.Priority.Violations) == 0,
	}
	reasonFor := map[string]string{
		"sufficiency_ok":         ReasonInsufficient,
		"coverage_at_threshold":  ReasonCoverageBelow,
		"no_low_signal_items":    ReasonLowSignal,
		"no_execution_cycle":     ReasonExecutionCycle,
		"no_missing_artifacts":   ReasonMissingArtifacts,
		"no_priority_violations": ReasonPriorityViolation,
	}

	v := Verdict{
		GateID:           codes.GateImplementabilityVerdict,
		Implementable:    true,
		Reasons:          []string{},
		AdjustedCoverage: in.Coverage.CoveredPct,
		Threshold:        CoverageThreshold,
		Checks:           checks,
		ProofReferences:  map[string]string{},
	}
	for name, ok := range checks {
		if !ok {
			v.Implementable = false
			v.Reasons = append(v.Reasons, reasonFor[name])
		}
	}
	sort.Strings(v.Reasons)
	for k, h := range in.ProofReferences {
		v.ProofReferences[k] = h
	}
	return v
}
