package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/config"
	"github.com/marcohefti/specc/internal/finalize"
	"github.com/marcohefti/specc/internal/logging"
	"github.com/marcohefti/specc/internal/persona"
	"github.com/marcohefti/specc/internal/pipeline"
	"github.com/marcohefti/specc/internal/report"
	"github.com/marcohefti/specc/internal/snapstore"
	"github.com/marcohefti/specc/internal/syncstate"
	"github.com/marcohefti/specc/internal/telemetry"
)

type compileFlags struct {
	out             string
	jsonOut         bool
	snapshotDB      string
	syncRoot        string
	dryRun          bool
	persona         string
	metricsOut      string
	traceOut        string
	seedBasis       string
	minimalityFatal bool
}

func (f *compileFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.out, "out", "", "output root (default from config, then .specc)")
	fl.BoolVar(&f.jsonOut, "json", false, "print the run summary as JSON")
	fl.StringVar(&f.snapshotDB, "snapshot-db", "", "record determinism snapshots in this BadgerDB directory")
	fl.StringVar(&f.syncRoot, "sync-root", "", "verify this tree against its sync metadata before compiling")
	fl.BoolVar(&f.dryRun, "dry-run", false, "compile without writing artifacts")
	fl.StringVar(&f.persona, "persona", "", "YAML file of advisory persona proposals and vetoes")
	fl.StringVar(&f.metricsOut, "metrics-out", "", "write Prometheus textfile metrics to this path")
	fl.StringVar(&f.traceOut, "trace-out", "", "write OpenTelemetry spans as JSON to this path")
	fl.StringVar(&f.seedBasis, "seed-basis", "", "seed basis (default: spec fingerprint)")
	fl.BoolVar(&f.minimalityFatal, "minimality-fatal", false, "refuse runs whose checklist is not minimal")
}

type compileResult struct {
	report.Summary
	RunDir         string `json:"run_dir"`
	DryRun         bool   `json:"dry_run"`
	SnapshotStored bool   `json:"snapshot_stored"`
	SyncWarning    string `json:"sync_warning,omitempty"`
}

func (s *session) compileCmd() *cobra.Command {
	var f compileFlags
	cmd := &cobra.Command{
		Use:   "compile <spec>",
		Short: "Compile a spec into a checklist and its reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := s.compile(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			return s.emitCompile(res, f)
		},
	}
	f.bind(cmd)
	return cmd
}

func (s *session) emitCompile(res compileResult, f compileFlags) error {
	if res.ValidityStatus != pipeline.ValidityPass {
		s.setExit(codes.ExitValidationFailure)
	}
	if f.jsonOut {
		return s.writeJSON(res)
	}
	printSummary(s.r.Stdout, res.Summary, res.RunDir, res.DryRun)
	return nil
}

// compile runs one spec through the pipeline and writes its run directory.
// Infrastructure failures become CliErrors; a failed spec is a normal result.
func (s *session) compile(ctx context.Context, specPath string, f compileFlags) (compileResult, error) {
	log := s.logger()
	merged, err := config.LoadMerged(f.out)
	if err != nil {
		return compileResult{}, usageErr("config: %s", err.Error())
	}

	var res compileResult
	if f.syncRoot != "" {
		if _, err := syncstate.Verify(f.syncRoot); err != nil {
			var se *syncstate.SyncError
			code := codes.IO
			if errors.As(err, &se) {
				code = se.Code
			}
			if !f.dryRun {
				return compileResult{}, &CliError{Code: code, Message: "sync check failed: " + err.Error()}
			}
			log.Warn("sync check failed, continuing dry run", "code", code, "error", err)
			res.SyncWarning = err.Error()
		}
	}

	input, err := os.ReadFile(specPath)
	if err != nil {
		return compileResult{}, ioErr(err)
	}

	rc := pipeline.RunContext{
		Input:           input,
		PathHint:        specPath,
		Options:         config.FromEnv(s.r.Environ),
		MinimalityFatal: f.minimalityFatal || merged.MinimalityFatal,
		SeedBasis:       f.seedBasis,
	}
	if f.persona != "" {
		pf, err := persona.Load(f.persona)
		if err != nil {
			return compileResult{}, usageErr("%s", err.Error())
		}
		rc.Persona = &pf
		if merged.PersonaLog != "" && !f.dryRun {
			rc.PersonaLog = persona.OpenLog(merged.PersonaLog)
		}
	}

	var metrics *telemetry.Metrics
	if f.metricsOut != "" {
		metrics = telemetry.NewMetrics()
	}
	if f.traceOut != "" {
		tf, err := os.Create(f.traceOut)
		if err != nil {
			return compileResult{}, ioErr(err)
		}
		defer tf.Close()
		shutdown, err := telemetry.InitTracing(tf, s.r.Version)
		if err != nil {
			return compileResult{}, ioErr(err)
		}
		defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()
	}

	engine := &pipeline.Engine{Version: s.r.Version, Logger: log, Metrics: metrics, Clock: s.r.Now}
	run, err := engine.Run(ctx, rc)
	if err != nil {
		exit := codes.ExitValidationFailure
		code := codes.IO
		if finalize.IsAssertion(err) {
			exit, code = codes.ExitFatalAssertion, codes.FatalAssertion
		}
		if !f.dryRun {
			if werr := report.WriteError(merged.OutRoot, report.ErrorDoc{Code: code, Message: err.Error(), Location: specPath}); werr != nil {
				log.Error("write errors.json", "error", werr)
			}
		}
		return compileResult{}, &CliError{Code: code, Message: err.Error(), Exit: exit}
	}

	files, err := report.Render(run, s.r.Version)
	if err != nil {
		return compileResult{}, &CliError{Code: codes.FatalAssertion, Message: "render: " + err.Error(), Exit: codes.ExitFatalAssertion}
	}
	if err := json.Unmarshal(files[pipeline.FileSummary], &res.Summary); err != nil {
		return compileResult{}, ioErr(err)
	}
	res.RunDir = report.RunDir(merged.OutRoot, run.RunID)
	res.DryRun = f.dryRun
	if f.dryRun {
		return res, nil
	}

	if err := report.Write(res.RunDir, files); err != nil {
		return compileResult{}, err
	}
	dbPath := f.snapshotDB
	if dbPath == "" {
		dbPath = merged.SnapshotDB
	}
	if dbPath != "" {
		if err := storeSnapshot(dbPath, run, log); err != nil {
			return compileResult{}, err
		}
		res.SnapshotStored = true
	}
	if metrics != nil {
		if err := metrics.WriteTextfile(f.metricsOut); err != nil {
			return compileResult{}, ioErr(err)
		}
	}
	return res, nil
}

func storeSnapshot(path string, run *pipeline.Run, log *logging.Logger) error {
	snap, err := run.Snapshot()
	if err != nil {
		return &CliError{Code: codes.FatalAssertion, Message: err.Error(), Exit: codes.ExitFatalAssertion}
	}
	db, err := snapstore.Open(snapstore.Config{Path: path, Logger: log})
	if err != nil {
		return ioErr(err)
	}
	defer db.Close()
	if err := db.Put(snap); err != nil {
		if snapstore.IsCode(err, codes.SnapshotMismatch) {
			log.Warn("determinism drift against stored snapshot", "spec", snap.Fingerprints.Spec, "error", err)
			return &CliError{Code: codes.DeterminismDrift, Message: err.Error(), Exit: codes.ExitDeterminismMismatch}
		}
		return ioErr(err)
	}
	return nil
}
