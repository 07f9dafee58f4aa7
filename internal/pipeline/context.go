// Package pipeline runs one spec through every compilation stage and returns
// the finalized checklist together with the reports derived from it.
package pipeline

import (
	"time"

	"go.opentelemetry.io/otel"

	"github.com/marcohefti/specc/internal/config"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/logging"
	"github.com/marcohefti/specc/internal/persona"
	"github.com/marcohefti/specc/internal/telemetry"
)

var (
	tracer = otel.Tracer("specc.pipeline")
	meter  = otel.Meter("specc.pipeline")
)

// Engine owns the collaborators of a run. One Engine is used per run; nothing
// here is shared across runs except what the caller passes in.
type Engine struct {
	Version string
	Logger  *logging.Logger
	// Metrics may be nil.
	Metrics *telemetry.Metrics
	// Clock feeds pass timings only. Nil disables timings.
	Clock func() time.Time
}

// RunContext carries everything a single run reads. Nothing is taken from
// process globals.
type RunContext struct {
	Input    []byte
	PathHint string
	Options  config.Options

	// Recorder defaults to a fresh recorder.
	Recorder *events.Recorder

	// MinimalityFatal turns minimality violations into a G16 refusal.
	MinimalityFatal bool

	// SeedBasis overrides the spec fingerprint as the seed base.
	SeedBasis string
	// Seeds are recorded seeds; they win over generated ones.
	Seeds map[string]string

	Persona    *persona.File
	PersonaLog *persona.Log

	// SkipReadiness disables the readiness probes.
	SkipReadiness bool
}

func (rc RunContext) recorder() *events.Recorder {
	if rc.Recorder == nil {
		return events.NewRecorder()
	}
	return rc.Recorder
}
