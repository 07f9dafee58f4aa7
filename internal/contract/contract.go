package contract

import (
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/pipeline"
)

type Contract struct {
	Name                  string     `json:"name"`
	Version               string     `json:"version"`
	ArtifactLayoutVersion int        `json:"artifact_layout_version"`
	ChecklistSchema       int        `json:"checklist_schema_version"`
	Artifacts             []Artifact `json:"artifacts"`
	Events                []Event    `json:"events"`
	Commands              []Command  `json:"commands"`
	Errors                []Error    `json:"errors"`
	ExitCodes             []ExitCode `json:"exit_codes"`
}

type Artifact struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	SchemaVersions []int    `json:"schema_versions"`
	Required       bool     `json:"required"`
	When           string   `json:"when,omitempty"`
	PathPattern    string   `json:"path_pattern"`
	RequiredFields []string `json:"required_fields"`
}

// Event describes the records carried inside the checklist artifact.
type Event struct {
	Stream         string   `json:"stream"`
	SchemaVersions []int    `json:"schema_versions"`
	RequiredFields []string `json:"required_fields"`
}

type Command struct {
	ID      string `json:"id"`
	Usage   string `json:"usage"`
	Summary string `json:"summary"`
}

// Error is a code callers can match on. Kind is cli, diagnostic or gate.
type Error struct {
	Code      string `json:"code"`
	Kind      string `json:"kind"`
	Summary   string `json:"summary"`
	Retryable bool   `json:"retryable"`
}

type ExitCode struct {
	Code    int    `json:"code"`
	Meaning string `json:"meaning"`
}

const pathPattern = "<out_root>/runs/<run_id>/"

func artifact(id string, required bool, when string, fields ...string) Artifact {
	if fields == nil {
		fields = []string{}
	}
	return Artifact{
		ID:             id,
		Kind:           "json",
		SchemaVersions: []int{1},
		Required:       required,
		When:           when,
		PathPattern:    pathPattern + id,
		RequiredFields: fields,
	}
}

func Build(version string) Contract {
	return Contract{
		Name:                  "specc",
		Version:               version,
		ArtifactLayoutVersion: 1,
		ChecklistSchema:       pipeline.ChecklistSchemaVersion,
		Artifacts: []Artifact{
			artifact(pipeline.FileChecklist, false, "validity_status=pass", "schema_version", "run_id", "spec_fingerprint", "primary_outcome", "refusal", "blocking_reasons", "confidence_level", "validity_status", "items", "events", "meta"),
			artifact(pipeline.FileChecklistDraft, false, "validity_status=fail", "schema_version", "run_id", "spec_fingerprint", "primary_outcome", "validity_status", "items", "events", "meta"),
			artifact(pipeline.FileRequirements, true, "", "requirements", "counts", "total"),
			artifact(pipeline.FileCoverage, true, "", "records", "total_count", "covered_count", "covered_pct"),
			artifact(pipeline.FileSufficiency, true, "", "ok", "must_total", "must_full", "uncovered_must_ids"),
			artifact(pipeline.FileQuality, true, "", "quality", "minimality", "gate_results"),
			artifact(pipeline.FileExecutionPlan, true, "", "execution_plan", "artifacts", "priority"),
			artifact(pipeline.FileCompleteness, true, "", "requirements", "must_count", "uncovered_must_ids"),
			artifact(pipeline.FileVerdict, true, "", "gate_id", "implementable", "reasons", "proof_references"),
			artifact(pipeline.FileReadiness, false, "validity_status=pass", "status", "probes"),
			artifact(pipeline.FileFeedback, false, "validity_status=fail", "validity_status", "conversion_state", "suggested_next_edits"),
			artifact(pipeline.FileErrors, false, "validity_status=fail", "errors", "codes"),
			artifact(pipeline.FileSuppressedSignal, false, "validity_status=fail with requirements", "reason", "validation_codes", "must_sentences"),
			artifact(pipeline.FileSilence, false, "no checklist items", "reason", "requirements_count", "validation_codes"),
			artifact(pipeline.FileSnapshot, true, "", "spec_canonical", "checklist_canonical", "seeds", "fingerprints"),
			artifact(pipeline.FileSummary, true, "", "schema_version", "run_id", "primary_outcome", "validity_status", "conversion_state"),
			artifact(pipeline.FileGovernanceBundle, true, "", "schema_version", "run_id", "spec_fingerprint", "determinism", "report_hashes"),
			artifact(pipeline.FileAuditIndex, true, "", "schema_version", "run_id", "files"),
			artifact(pipeline.FileManifest, true, "", "schema_version", "tool", "run_id", "checklist_file", "artifacts"),
		},
		Events: []Event{
			{
				Stream:         "checklist.events",
				SchemaVersions: []int{1},
				RequiredFields: []string{"seq", "gate_id", "phase", "outcome", "message", "evidence", "role"},
			},
			{
				Stream:         "readiness_trace.probes",
				SchemaVersions: []int{1},
				RequiredFields: []string{"name", "gate_id", "ok", "reason", "blocking"},
			},
		},
		Commands: []Command{
			{
				ID:      "compile",
				Usage:   "specc compile <spec> [--out .specc] [--persona <file>] [--seed-basis <s>] [--snapshot-db <dir>] [--sync-root <dir>] [--dry-run] [--minimality-fatal] [--metrics-out <file>] [--trace-out <file>] [--json]",
				Summary: "Compile a spec into a checklist and its governance reports under <out>/runs/<run_id>/.",
			},
			{
				ID:      "replay",
				Usage:   "specc replay <run-dir|spec-fingerprint> [--snapshot-db <dir>] [--json]",
				Summary: "Recompile from a determinism snapshot and report the first differing fields.",
			},
			{
				ID:      "validate",
				Usage:   "specc validate [--strict] [--json] <run-dir>",
				Summary: "Check a run directory against its audit index and manifest.",
			},
			{
				ID:      "watch",
				Usage:   "specc watch <spec> [--out .specc] [--json]",
				Summary: "Recompile whenever the spec file changes.",
			},
			{
				ID:      "init",
				Usage:   "specc init [--out-root .specc] [--config specc.config.yaml] [--json]",
				Summary: "Create the output root and write a default project config.",
			},
			{
				ID:      "sync record",
				Usage:   "specc sync record <root> [--json]",
				Summary: "Record sync metadata for a directory tree.",
			},
			{
				ID:      "sync verify",
				Usage:   "specc sync verify <root> [--json]",
				Summary: "Verify a directory tree against its recorded sync metadata.",
			},
			{
				ID:      "doctor",
				Usage:   "specc doctor [--out-root .specc] [--sync-root <dir>] [--json]",
				Summary: "Check write access, config, snapshot db, persona log and optional sync state.",
			},
			{
				ID:      "gc",
				Usage:   "specc gc [--out-root .specc] [--max-age-days 30] [--max-total-bytes 0] [--keep-latest] [--dry-run] [--json]",
				Summary: "Retention cleanup under <out_root>/runs by manifest age and total size.",
			},
			{
				ID:      "contract",
				Usage:   "specc contract --json",
				Summary: "Print the artifact layout, commands and error codes.",
			},
			{
				ID:      "version",
				Usage:   "specc version",
				Summary: "Print the tool version.",
			},
		},
		Errors: errorList(),
		ExitCodes: []ExitCode{
			{Code: codes.ExitOK, Meaning: "run completed and the spec is valid"},
			{Code: codes.ExitValidationFailure, Meaning: "spec failed validation, or usage/io error"},
			{Code: codes.ExitDeterminismMismatch, Meaning: "replay or determinism snapshot mismatch"},
			{Code: codes.ExitFatalAssertion, Meaning: "internal assertion failed"},
		},
	}
}

func errorList() []Error {
	out := []Error{
		{Code: codes.Usage, Kind: "cli", Summary: "Invalid CLI usage (missing/invalid flags or arguments)."},
		{Code: codes.IO, Kind: "cli", Summary: "Filesystem I/O error while reading input or writing artifacts.", Retryable: true},
		{Code: codes.InvalidJSON, Kind: "cli", Summary: "An artifact is not valid JSON."},
		{Code: codes.MissingArtifact, Kind: "cli", Summary: "A required artifact is missing.", Retryable: true},
		{Code: codes.HashMismatch, Kind: "cli", Summary: "An artifact does not match its recorded sha256."},
		{Code: codes.Containment, Kind: "cli", Summary: "An artifact path escapes the run directory."},
		{Code: codes.FatalAssertion, Kind: "cli", Summary: "An internal invariant did not hold; no checklist was produced."},
		{Code: codes.DeterminismDrift, Kind: "cli", Summary: "Recompilation produced a different checklist."},
		{Code: codes.Validation, Kind: "cli", Summary: "The spec or a run directory failed validation."},
	}
	for _, c := range []string{
		codes.SpecNotDict, codes.MissingInvariants, codes.InvariantsNotSorted, codes.MissingInstructions,
		codes.InstructionNotObject, codes.InstructionMissingFields, codes.DuplicateInstructionID,
		codes.AmbientState, codes.SectionsEmpty, codes.InvariantsEmpty, codes.ModelEmpty,
		codes.MetadataMissingFields, codes.SchemaTypeMismatch, codes.SchemaSectionShape,
		codes.NoncanonicalNumber, codes.MissingInAST, codes.MissingPointer,
	} {
		out = append(out, Error{Code: c, Kind: "diagnostic", Summary: "Spec diagnostic reported in errors.json."})
	}
	for _, c := range []string{
		codes.SyncMissing, codes.SyncHashMismatch, codes.SyncTreeMismatch, codes.SyncInvalidFormat,
		codes.SnapshotMissing, codes.SnapshotInvalid, codes.SnapshotMismatch,
	} {
		out = append(out, Error{Code: c, Kind: "diagnostic", Summary: "Sync or snapshot check failed.", Retryable: true})
	}
	for _, c := range []string{
		codes.GateSchemaValidation, codes.GateASTPointerAudit, codes.GateCoverageEvaluated,
		codes.GateSufficiencyMustUncover, codes.GateMinimalityInvariant, codes.GateExecutionCycle,
		codes.GateMissingArtifactProducer, codes.GatePriorityViolation, codes.GateQualityFailed,
		codes.GateChecklistModelErrors, codes.GateImplementabilityVerdict, codes.GateReadinessPrefix + "*",
		codes.GatePersonaMutationDenied, codes.GatePersonaVeto, codes.GateInternalDerivation,
		codes.TierAMissing("*"), codes.TierBMissing("*"), codes.SynthesizedDefault("*"),
	} {
		out = append(out, Error{Code: c, Kind: "gate", Summary: "Gate id carried by checklist events."})
	}
	return out
}
