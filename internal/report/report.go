// Package report renders a compiled run into its on-disk artifact set and
// writes it into a run directory.
package report

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/conversion"
	"github.com/marcohefti/specc/internal/determinism"
	"github.com/marcohefti/specc/internal/pipeline"
	"github.com/marcohefti/specc/internal/redact"
	"github.com/marcohefti/specc/internal/store"
)

const SchemaVersion = 1

// LockWait bounds how long a writer waits for another writer of the same run directory.
const LockWait = 10 * time.Second

// LockDirName is created inside the run directory while artifacts are written.
const LockDirName = ".lock"

type CliError struct {
	Code    string
	Message string
}

func (e *CliError) Error() string { return e.Message }

func IsCliError(err error, code string) bool {
	var e *CliError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

type Summary struct {
	SchemaVersion    int     `json:"schema_version"`
	Tool             string  `json:"tool"`
	ToolVersion      string  `json:"tool_version"`
	RunID            string  `json:"run_id"`
	SpecFingerprint  string  `json:"spec_fingerprint"`
	SourceFormat     string  `json:"source_format"`
	PrimaryOutcome   string  `json:"primary_outcome"`
	ValidityStatus   string  `json:"validity_status"`
	ConversionState  string  `json:"conversion_state"`
	StateReason      string  `json:"state_reason"`
	Implementable    bool    `json:"implementable"`
	ConfidenceLevel  string  `json:"confidence_level"`
	ChecklistFile    string  `json:"checklist_file"`
	ItemCount        int     `json:"item_count"`
	RequirementCount int     `json:"requirement_count"`
	CoveredPct       float64 `json:"covered_pct"`
	QualityScore     int     `json:"quality_score"`
}

type PersonaSummary struct {
	Accepted int `json:"accepted"`
	Denied   int `json:"denied"`
	Vetoes   int `json:"vetoes"`
}

type GovernanceBundle struct {
	SchemaVersion    int                      `json:"schema_version"`
	RunID            string                   `json:"run_id"`
	SpecFingerprint  string                   `json:"spec_fingerprint"`
	PrimaryOutcome   string                   `json:"primary_outcome"`
	Refusal          bool                     `json:"refusal"`
	BlockingReasons  []string                 `json:"blocking_reasons"`
	ValidityStatus   string                   `json:"validity_status"`
	Conversion       conversion.Result        `json:"conversion"`
	Implementable    bool                     `json:"implementable"`
	VerdictReasons   []string                 `json:"verdict_reasons"`
	StrictnessLevels []int                    `json:"strictness_levels"`
	Determinism      determinism.Fingerprints `json:"determinism"`
	SeedNames        []string                 `json:"seed_names"`
	ReportHashes     map[string]string        `json:"report_hashes"`
	Persona          *PersonaSummary          `json:"persona,omitempty"`
}

type AuditIndex struct {
	SchemaVersion int               `json:"schema_version"`
	RunID         string            `json:"run_id"`
	Files         map[string]string `json:"files"`
}

type ManifestEntry struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Bytes  int    `json:"bytes"`
}

type Manifest struct {
	SchemaVersion   int             `json:"schema_version"`
	Tool            string          `json:"tool"`
	ToolVersion     string          `json:"tool_version"`
	Ruleset         string          `json:"ruleset"`
	RunID           string          `json:"run_id"`
	SpecFingerprint string          `json:"spec_fingerprint"`
	ChecklistFile   string          `json:"checklist_file"`
	Artifacts       []ManifestEntry `json:"artifacts"`
}

// Render encodes every artifact of run. The result depends only on run and
// version, so two renders of equal runs are byte identical.
func Render(run *pipeline.Run, version string) (map[string][]byte, error) {
	files := map[string][]byte{}
	for name, doc := range run.Reports {
		b, err := canon.Indented(doc)
		if err != nil {
			return nil, err
		}
		files[name] = b
	}

	snap, err := run.Snapshot()
	if err != nil {
		return nil, err
	}
	if files[pipeline.FileSnapshot], err = canon.Indented(snap); err != nil {
		return nil, err
	}

	summary := Summary{
		SchemaVersion:    SchemaVersion,
		Tool:             "specc",
		ToolVersion:      version,
		RunID:            run.RunID,
		SpecFingerprint:  run.SpecFingerprint,
		SourceFormat:     run.SourceFormat,
		PrimaryOutcome:   string(run.Final.PrimaryOutcome),
		ValidityStatus:   run.ValidityStatus,
		ConversionState:  string(run.Conversion.State),
		StateReason:      run.Conversion.Reason,
		Implementable:    run.Verdict.Implementable,
		ConfidenceLevel:  run.Final.ConfidenceLevel,
		ChecklistFile:    run.ChecklistFile(),
		ItemCount:        len(run.Checklist.Items),
		RequirementCount: len(run.Requirements),
		CoveredPct:       run.Coverage.CoveredPct,
		QualityScore:     run.Gates.Quality.Score,
	}
	if files[pipeline.FileSummary], err = canon.Indented(summary); err != nil {
		return nil, err
	}

	bundle := GovernanceBundle{
		SchemaVersion:    SchemaVersion,
		RunID:            run.RunID,
		SpecFingerprint:  run.SpecFingerprint,
		PrimaryOutcome:   string(run.Final.PrimaryOutcome),
		Refusal:          run.Final.Refusal,
		BlockingReasons:  run.Final.BlockingReasons,
		ValidityStatus:   run.ValidityStatus,
		Conversion:       run.Conversion,
		Implementable:    run.Verdict.Implementable,
		VerdictReasons:   run.Verdict.Reasons,
		StrictnessLevels: run.Options.StrictnessLevels,
		Determinism:      snap.Fingerprints,
		SeedNames:        sortedKeys(run.Seeds),
		ReportHashes:     hashes(files),
	}
	if bundle.StrictnessLevels == nil {
		bundle.StrictnessLevels = []int{}
	}
	if run.Persona != nil {
		bundle.Persona = &PersonaSummary{
			Accepted: len(run.Persona.Accepted),
			Denied:   len(run.Persona.Denied),
			Vetoes:   len(run.Persona.Vetoes),
		}
	}
	if files[pipeline.FileGovernanceBundle], err = canon.Indented(bundle); err != nil {
		return nil, err
	}

	index := AuditIndex{SchemaVersion: SchemaVersion, RunID: run.RunID, Files: hashes(files)}
	if files[pipeline.FileAuditIndex], err = canon.Indented(index); err != nil {
		return nil, err
	}

	manifest := Manifest{
		SchemaVersion:   SchemaVersion,
		Tool:            "specc",
		ToolVersion:     version,
		Ruleset:         determinism.RulesetVersion,
		RunID:           run.RunID,
		SpecFingerprint: run.SpecFingerprint,
		ChecklistFile:   run.ChecklistFile(),
		Artifacts:       make([]ManifestEntry, 0, len(files)),
	}
	for _, name := range sortedKeys(files) {
		manifest.Artifacts = append(manifest.Artifacts, ManifestEntry{Name: name, SHA256: canon.SHA256Hex(files[name]), Bytes: len(files[name])})
	}
	if files[pipeline.FileManifest], err = canon.Indented(manifest); err != nil {
		return nil, err
	}
	return files, nil
}

// KnownFiles lists every file name Render can produce.
var KnownFiles = []string{
	pipeline.FileAuditIndex,
	pipeline.FileChecklist,
	pipeline.FileChecklistDraft,
	pipeline.FileCompleteness,
	pipeline.FileCoverage,
	pipeline.FileErrors,
	pipeline.FileExecutionPlan,
	pipeline.FileFeedback,
	pipeline.FileGovernanceBundle,
	pipeline.FileManifest,
	pipeline.FileQuality,
	pipeline.FileReadiness,
	pipeline.FileRequirements,
	pipeline.FileSilence,
	pipeline.FileSnapshot,
	pipeline.FileSufficiency,
	pipeline.FileSummary,
	pipeline.FileSuppressedSignal,
	pipeline.FileVerdict,
}

// Write stores files in dir under the run directory lock. Artifacts left from
// an earlier run in the same directory that this run does not produce are
// removed, so the directory always matches its manifest.
func Write(dir string, files map[string][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &CliError{Code: codes.IO, Message: "create run dir: " + err.Error()}
	}
	err := store.WithDirLock(filepath.Join(dir, LockDirName), LockWait, func() error {
		for _, name := range KnownFiles {
			if _, ok := files[name]; ok {
				continue
			}
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		// manifest.json goes last; a directory with a manifest is complete.
		for _, name := range sortedKeys(files) {
			if name == pipeline.FileManifest {
				continue
			}
			if err := store.WriteFileAtomic(filepath.Join(dir, name), files[name]); err != nil {
				return err
			}
		}
		if b, ok := files[pipeline.FileManifest]; ok {
			return store.WriteFileAtomic(filepath.Join(dir, pipeline.FileManifest), b)
		}
		return nil
	})
	if err != nil {
		if store.IsLockTimeout(err) {
			return &CliError{Code: codes.IO, Message: err.Error()}
		}
		var ce *CliError
		if errors.As(err, &ce) {
			return err
		}
		return &CliError{Code: codes.IO, Message: "write artifacts: " + err.Error()}
	}
	return nil
}

// ErrorDoc is errors.json for infrastructure failures that stop a run before
// any artifact is rendered.
type ErrorDoc struct {
	SchemaVersion int    `json:"schema_version"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Location      string `json:"location,omitempty"`
}

// WriteError writes errors.json into dir with credentials masked.
func WriteError(dir string, doc ErrorDoc) error {
	doc.SchemaVersion = SchemaVersion
	doc.Message, _ = redact.Text(doc.Message)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return store.WriteJSONAtomic(filepath.Join(dir, pipeline.FileErrors), doc)
}

// RunDir is <outRoot>/runs/<runID>.
func RunDir(outRoot, runID string) string {
	return filepath.Join(outRoot, "runs", runID)
}

func hashes(files map[string][]byte) map[string]string {
	out := make(map[string]string, len(files))
	for name, b := range files {
		out[name] = canon.SHA256Hex(b)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
