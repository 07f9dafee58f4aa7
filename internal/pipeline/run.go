package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/marcohefti/specc/internal/ast"
	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/config"
	"github.com/marcohefti/specc/internal/conversion"
	"github.com/marcohefti/specc/internal/coverage"
	"github.com/marcohefti/specc/internal/determinism"
	"github.com/marcohefti/specc/internal/dsl"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/finalize"
	"github.com/marcohefti/specc/internal/gates"
	"github.com/marcohefti/specc/internal/ingest"
	"github.com/marcohefti/specc/internal/minimality"
	"github.com/marcohefti/specc/internal/persona"
	"github.com/marcohefti/specc/internal/requirement"
	"github.com/marcohefti/specc/internal/telemetry"
	"github.com/marcohefti/specc/internal/verdict"
)

const (
	ValidityPass = "pass"
	ValidityFail = "fail"
)

// ChecklistSchemaVersion versions the checklist document layout.
const ChecklistSchemaVersion = 1

var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/marcohefti/specc/run"))

// ChecklistDoc is checklist.json (or checklist_draft.json).
type ChecklistDoc struct {
	SchemaVersion   int                   `json:"schema_version"`
	RunID           string                `json:"run_id"`
	SpecFingerprint string                `json:"spec_fingerprint"`
	PrimaryOutcome  finalize.Outcome      `json:"primary_outcome"`
	Refusal         bool                  `json:"refusal"`
	BlockingReasons []string              `json:"blocking_reasons"`
	ConfidenceLevel string                `json:"confidence_level"`
	ValidityStatus  string                `json:"validity_status"`
	Quality         int                   `json:"checklist_quality"`
	Items           []checklist.Item      `json:"items"`
	Events          []finalize.RoledEvent `json:"events"`
	Meta            finalize.Meta         `json:"meta"`
}

// Semantic drops the advisory persona events. Replay compares this form.
func (d ChecklistDoc) Semantic() ChecklistDoc {
	out := d
	out.Events = make([]finalize.RoledEvent, 0, len(d.Events))
	for _, e := range d.Events {
		if !e.IsPersona() {
			out.Events = append(out.Events, e)
		}
	}
	out.Meta.PersonaEvents = 0
	return out
}

// Run is everything one compilation produced.
type Run struct {
	RunID           string
	SpecFingerprint string
	SourceFormat    string
	Normalized      bool
	InputEmpty      bool
	Options         config.Options

	Spec  map[string]any
	Lines map[string]int
	Seeds map[string]string

	Validation   dsl.Result
	Audit        []dsl.Diagnostic
	Requirements []requirement.Requirement
	Compiled     checklist.Output
	Coverage     coverage.Report
	Sufficiency  coverage.Sufficiency
	Minimality   minimality.Report
	Gates        gates.Output
	Readiness    *gates.ReadinessTrace
	Persona      *persona.Report

	Final          finalize.Result
	Checklist      ChecklistDoc
	ValidityStatus string
	Conversion     conversion.Result
	Verdict        verdict.Verdict
	// Reports are the emitted report documents keyed by file name.
	Reports map[string]any
}

// Failed reports whether validation failed.
func (r *Run) Failed() bool { return r.ValidityStatus == ValidityFail }

// Run ingests rc.Input and compiles it. User-input problems never come back
// as errors; they are recorded as events and reports. The only error is a
// fatal *finalize.AssertionError.
func (e *Engine) Run(ctx context.Context, rc RunContext) (*Run, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(attribute.String("spec.path", rc.PathHint)))
	defer span.End()

	inputEmpty := len(bytes.TrimSpace(rc.Input)) == 0
	ing := ingest.Ingest(rc.Input, rc.PathHint)

	var pre []dsl.Diagnostic
	spec, err := canon.Spec(ing.Spec)
	if err != nil {
		var ce *canon.Error
		d := dsl.Diagnostic{Code: codes.NoncanonicalNumber, Message: err.Error(), Ptr: "/"}
		if errors.As(err, &ce) {
			d = dsl.Diagnostic{Code: ce.Code, Message: ce.Msg, Ptr: ce.Ptr}
		}
		pre = append(pre, d)
		e.Logger.Warn("spec could not be canonicalized; compiling as prose", "code", d.Code, "ptr", d.Ptr)
		spec, err = canon.Spec(ingest.Skeleton(ingest.FormatText, string(bytes.TrimSpace(rc.Input))))
		if err != nil {
			return nil, fmt.Errorf("canonicalize prose skeleton: %w", err)
		}
		ing.Lines = map[string]int{}
		ing.SourceFormat = ingest.FormatText
		ing.Normalized = true
	}
	span.SetAttributes(attribute.String("spec.format", ing.SourceFormat))

	run, err := e.compile(ctx, rc, compileInput{
		spec:       spec,
		lines:      ing.Lines,
		inputEmpty: inputEmpty,
		pre:        pre,
		readiness:  !rc.SkipReadiness,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "fatal assertion")
		return nil, err
	}
	run.SourceFormat = ing.SourceFormat
	run.Normalized = ing.Normalized
	e.observe(ctx, run)
	return run, nil
}

type compileInput struct {
	spec       map[string]any
	lines      map[string]int
	inputEmpty bool
	// pre are diagnostics found before validation, such as canonicalization errors.
	pre       []dsl.Diagnostic
	readiness bool
}

// compile runs every stage after canonicalization. Replay and the readiness
// probes enter here with a canonical spec.
func (e *Engine) compile(ctx context.Context, rc RunContext, in compileInput) (*Run, error) {
	rec := rc.recorder()
	opts := rc.Options
	if opts.StrictnessLevels == nil {
		opts = config.DefaultOptions()
	}

	specFP, err := canon.Fingerprint(in.spec)
	if err != nil {
		return nil, fmt.Errorf("fingerprint spec: %w", err)
	}
	base := rc.SeedBasis
	if base == "" {
		base = specFP
	}
	seeds := determinism.NewSeedManager(base)
	seeds.Load(rc.Seeds)
	lineSeed := seeds.Generate(determinism.SeedEvidenceLine, "")
	fuzzSeed := seeds.Generate(determinism.SeedFuzz, "")
	runSeed := seeds.Generate(determinism.SeedRunID, "")

	run := &Run{
		RunID:           uuid.NewSHA1(runNamespace, []byte(runSeed)).String(),
		SpecFingerprint: specFP,
		InputEmpty:      in.inputEmpty,
		Options:         opts,
		Spec:            in.spec,
		Lines:           in.lines,
		Seeds:           seeds.Seeds(),
	}
	log := e.Logger.With("run_id", run.RunID)

	_, vspan := tracer.Start(ctx, "pipeline.validate")
	run.Validation = dsl.Validate(in.spec, opts.StrictnessLevels)
	if len(in.pre) > 0 {
		run.Validation.Errors = append(append([]dsl.Diagnostic{}, in.pre...), run.Validation.Errors...)
		run.Validation.OK = false
	}
	if !run.Validation.OK {
		rec.Record(codes.GateSchemaValidation, events.PhasePreflight, events.Diagnostic,
			fmt.Sprintf("schema validation failed with %d error(s)", len(run.Validation.Errors)),
			map[string]any{"codes": run.Validation.Codes(), "levels": run.Validation.Levels})
	}
	vspan.SetAttributes(attribute.Bool("schema.ok", run.Validation.OK))
	vspan.End()

	tree := ast.Build(in.spec)
	run.Audit = ast.Audit(in.spec, tree)
	if len(run.Audit) > 0 {
		ptrs := make([]string, 0, len(run.Audit))
		for _, d := range run.Audit {
			ptrs = append(ptrs, d.Ptr)
		}
		sort.Strings(ptrs)
		rec.Record(codes.GateASTPointerAudit, events.PhasePreflight, events.Diagnostic,
			fmt.Sprintf("%d pointer(s) disagree between spec and AST", len(run.Audit)),
			map[string]any{"ptrs": ptrs})
	}

	run.Requirements = requirement.FromTree(tree)
	log.Debug("requirements extracted", "count", len(run.Requirements))

	run.Compiled = checklist.Compile(ctx, checklist.Input{
		Spec:         in.spec,
		Tree:         tree,
		Requirements: run.Requirements,
		Lines:        in.lines,
		LineSeed:     lineSeed,
		Recorder:     rec,
		Clock:        e.Clock,
		Logger:       log,
	})
	identity := checklist.Identity(run.Compiled.Items)

	cov := coverage.Evaluate(run.Requirements, run.Compiled.Items)
	run.Sufficiency = coverage.Sufficient(run.Requirements, cov)
	coverage.RecordEvents(rec, cov, run.Sufficiency)

	kept, minRep := minimality.Collapse(run.Compiled.Items, run.Requirements, minimality.Policy{Fatal: rc.MinimalityFatal}, rec)
	run.Minimality = minRep
	run.Coverage = coverage.Evaluate(run.Requirements, kept)

	run.Gates = gates.Run(ctx, gates.Input{
		Items:        kept,
		Requirements: run.Requirements,
		Coverage:     run.Coverage,
		Sufficiency:  run.Sufficiency,
		Recorder:     rec,
		Logger:       log,
	})

	if in.readiness && run.Validation.OK {
		probes := e.probes(rc, in, run, fuzzSeed)
		tr := gates.RunReadiness(ctx, probes, rec)
		run.Readiness = &tr
		run.Gates.Readiness = &tr
		log.Debug("readiness evaluated", "status", tr.Status)
	}

	// Persona runs last so its events never shift the sequence numbers of
	// the semantic events.
	if rc.Persona != nil {
		rep, err := persona.Guard(*rc.Persona, run.Gates.Items, rec, rc.PersonaLog)
		if err != nil {
			log.Warn("persona log append failed", "error", err)
		}
		run.Persona = &rep
	}

	final, err := finalize.Finalize(rec.Events(), run.Gates.Items, finalize.Options{Identity: identity})
	if err != nil {
		log.Error("fatal assertion", "error", err)
		return nil, err
	}
	run.Final = final

	run.ValidityStatus = ValidityPass
	if !run.Validation.OK || rec.Has(codes.GateChecklistModelErrors) {
		run.ValidityStatus = ValidityFail
	}
	run.Checklist = ChecklistDoc{
		SchemaVersion:   ChecklistSchemaVersion,
		RunID:           run.RunID,
		SpecFingerprint: run.SpecFingerprint,
		PrimaryOutcome:  final.PrimaryOutcome,
		Refusal:         final.Refusal,
		BlockingReasons: final.BlockingReasons,
		ConfidenceLevel: final.ConfidenceLevel,
		ValidityStatus:  run.ValidityStatus,
		Quality:         run.Gates.Quality.Score,
		Items:           final.Checklist.Items,
		Events:          final.Checklist.Events,
		Meta:            final.Checklist.Meta,
	}

	run.Conversion = conversion.Classify(conversion.Input{
		Spec:               in.spec,
		InputEmpty:         in.inputEmpty,
		SchemaValid:        run.Validation.OK,
		ReadinessEvaluated: run.Readiness != nil,
		ReadinessPass:      run.Readiness != nil && run.Readiness.Status == gates.ReadinessPass,
		SufficiencyOK:      run.Sufficiency.OK,
	})

	if err := run.buildReports(); err != nil {
		return nil, err
	}
	log.Info("run compiled",
		"outcome", final.PrimaryOutcome,
		"items", len(final.Checklist.Items),
		"conversion", run.Conversion.State,
		"implementable", run.Verdict.Implementable)
	return run, nil
}

// Snapshot records the run for replay.
func (r *Run) Snapshot() (determinism.Snapshot, error) {
	snap, err := determinism.NewSnapshot(r.Spec, r.Checklist.Semantic(), r.Gates.Plan, r.Seeds)
	if err != nil {
		return determinism.Snapshot{}, err
	}
	snap.Lines = r.Lines
	return snap, nil
}

// Replay recompiles snap with its recorded seeds. rc supplies the options and
// this engine's own seed basis, which the recorded seeds override.
func (e *Engine) Replay(ctx context.Context, rc RunContext, snap determinism.Snapshot) (determinism.ReplayResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Replay")
	defer span.End()
	if err := snap.Verify(); err != nil {
		return determinism.ReplayResult{}, err
	}
	replayer := determinism.NewReplayer(func(ctx context.Context, spec map[string]any, seeds map[string]string) (any, error) {
		inner := rc
		inner.Recorder = nil
		inner.Persona = nil
		inner.PersonaLog = nil
		inner.Seeds = seeds
		// Stored snapshots decode numbers as json.Number.
		spec, err := canon.Spec(spec)
		if err != nil {
			return nil, err
		}
		run, err := e.compile(ctx, inner, compileInput{spec: spec, lines: snap.Lines, readiness: !rc.SkipReadiness})
		if err != nil {
			return nil, err
		}
		return run.Checklist.Semantic(), nil
	})
	res, err := replayer.Replay(ctx, snap)
	if err != nil {
		return res, err
	}
	span.SetAttributes(attribute.Bool("replay.match", res.Match), attribute.Int("replay.diff", len(res.Diff)))
	if !res.Match {
		e.Logger.Warn("replay mismatch", "expected", res.ExpectedSHA256, "actual", res.ActualSHA256, "diff", len(res.Diff))
	}
	return res, nil
}

func (e *Engine) observe(ctx context.Context, run *Run) {
	outcome := string(run.Final.PrimaryOutcome)
	if counter, err := meter.Int64Counter("specc.pipeline.runs", metric.WithDescription("Compiled spec runs by primary outcome.")); err == nil {
		counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if e.Metrics == nil {
		return
	}
	reqs := map[string]int{}
	for lvl, n := range requirement.Counts(run.Requirements) {
		reqs[string(lvl)] = n
	}
	gateEvents := map[string]int{}
	for _, ev := range run.Final.Checklist.Events {
		gateEvents[string(ev.Outcome)]++
	}
	e.Metrics.Observe(telemetry.RunSample{
		Outcome:      outcome,
		Items:        len(run.Final.Checklist.Items),
		Requirements: reqs,
		GateEvents:   gateEvents,
		Coverage:     run.Coverage.CoveredPct,
		Quality:      run.Gates.Quality.Score,
		PassMillis:   run.Compiled.Timings,
	})
}
