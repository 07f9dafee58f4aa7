// Package gates runs the post-processing cascade over compiled items:
// execution plan, artifact producers, priority order, quality and readiness.
package gates

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/coverage"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/logging"
	"github.com/marcohefti/specc/internal/requirement"
)

var tracer = otel.Tracer("specc.gates")

// Result is what one gate reports back to the cascade.
type Result struct {
	GateID  string         `json:"gate_id"`
	Name    string         `json:"name"`
	Pass    bool           `json:"pass"`
	Reasons []string       `json:"reasons"`
	Metrics map[string]int `json:"metrics"`
}

func newResult(g Gate) *Result {
	return &Result{GateID: g.ID(), Name: g.Name(), Pass: true, Reasons: []string{}, Metrics: map[string]int{}}
}

// Gate is one step of the cascade. Gates read and annotate State; only the
// quality gate appends an item.
type Gate interface {
	ID() string
	Name() string
	Run(ctx context.Context, st *State) *Result
}

// State is shared by the gates of one cascade run.
type State struct {
	Items        []checklist.Item
	Requirements []requirement.Requirement
	Coverage     coverage.Report
	Sufficiency  coverage.Sufficiency
	Recorder     *events.Recorder

	Plan      Plan
	Artifacts ArtifactReport
	Priority  PriorityReport
	Quality   QualityReport
}

type Input struct {
	Items        []checklist.Item
	Requirements []requirement.Requirement
	Coverage     coverage.Report
	Sufficiency  coverage.Sufficiency
	Recorder     *events.Recorder
	// Probes are the readiness checks. Nil skips readiness entirely.
	Probes []Probe
	Logger *logging.Logger
}

type Output struct {
	Items     []checklist.Item
	Plan      Plan
	Artifacts ArtifactReport
	Priority  PriorityReport
	Quality   QualityReport
	Readiness *ReadinessTrace
	Results   []Result
}

// Default returns the cascade in execution order.
func Default() []Gate {
	return []Gate{
		&CycleGate{},
		&ArtifactProducerGate{},
		&PriorityGate{},
		&QualityGate{},
	}
}

// Run executes the default cascade, then readiness when probes are given.
func Run(ctx context.Context, in Input) Output {
	ctx, span := tracer.Start(ctx, "gates.Run")
	defer span.End()

	st := &State{
		Items:        checklist.CloneAll(in.Items),
		Requirements: in.Requirements,
		Coverage:     in.Coverage,
		Sufficiency:  in.Sufficiency,
		Recorder:     in.Recorder,
	}
	out := Output{Results: []Result{}}
	for _, g := range Default() {
		_, gspan := tracer.Start(ctx, "gates."+g.Name())
		res := g.Run(ctx, st)
		gspan.SetAttributes(attribute.String("gate.id", res.GateID), attribute.Bool("gate.pass", res.Pass))
		gspan.End()
		in.Logger.Debug("gate done", "gate", res.GateID, "pass", res.Pass, "reasons", len(res.Reasons))
		out.Results = append(out.Results, *res)
	}
	if in.Probes != nil {
		trace := RunReadiness(ctx, in.Probes, in.Recorder)
		out.Readiness = &trace
	}
	out.Items = st.Items
	out.Plan = st.Plan
	out.Artifacts = st.Artifacts
	out.Priority = st.Priority
	out.Quality = st.Quality
	return out
}
