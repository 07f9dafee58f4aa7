package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/pipeline"
	"github.com/marcohefti/specc/internal/report"
)

type CliError struct {
	Code    string
	Message string
	Path    string
}

func (e *CliError) Error() string {
	if e.Path == "" {
		return e.Code + ": " + e.Message
	}
	return e.Code + ": " + e.Message + " (" + e.Path + ")"
}

type Finding struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

type Result struct {
	OK       bool      `json:"ok"`
	Strict   bool      `json:"strict"`
	Path     string    `json:"path"`
	RunID    string    `json:"run_id,omitempty"`
	Files    int       `json:"files"`
	Errors   []Finding `json:"errors,omitempty"`
	Warnings []Finding `json:"warnings,omitempty"`
}

// requiredAlways are present in every run directory. The checklist file is
// checked separately because its name depends on validity.
var requiredAlways = []string{
	pipeline.FileManifest,
	pipeline.FileSummary,
	pipeline.FileRequirements,
	pipeline.FileCoverage,
	pipeline.FileSufficiency,
	pipeline.FileQuality,
	pipeline.FileExecutionPlan,
	pipeline.FileCompleteness,
	pipeline.FileVerdict,
	pipeline.FileGovernanceBundle,
	pipeline.FileAuditIndex,
}

// ValidatePath re-checks a run directory against its audit index and manifest.
// Hash mismatches are findings; a missing manifest or audit index, broken
// JSON or a path escaping the directory is an error.
func ValidatePath(runDir string, strict bool) (Result, error) {
	abs, err := filepath.Abs(runDir)
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Result{}, err
	}
	if !info.IsDir() {
		return Result{}, &CliError{Code: codes.Usage, Message: "target must be a directory", Path: abs}
	}
	res := Result{OK: true, Strict: strict, Path: abs}

	var manifest report.Manifest
	if err := readJSON(abs, pipeline.FileManifest, &manifest); err != nil {
		return Result{}, err
	}
	var index report.AuditIndex
	if err := readJSON(abs, pipeline.FileAuditIndex, &index); err != nil {
		return Result{}, err
	}
	res.RunID = manifest.RunID
	if index.RunID != manifest.RunID {
		res.add(strict, Finding{Code: codes.Validation, Message: "audit index run_id does not match manifest", Path: pipeline.FileAuditIndex})
	}

	for _, name := range requiredAlways {
		if err := requireFile(filepath.Join(abs, name), strict, &res); err != nil {
			return Result{}, err
		}
	}
	if manifest.ChecklistFile != pipeline.FileChecklist && manifest.ChecklistFile != pipeline.FileChecklistDraft {
		res.add(true, Finding{Code: codes.Validation, Message: "manifest names no checklist file", Path: pipeline.FileManifest})
	} else if err := requireFile(filepath.Join(abs, manifest.ChecklistFile), true, &res); err != nil {
		return Result{}, err
	}
	_, hasErrors := index.Files[pipeline.FileErrors]
	if (manifest.ChecklistFile == pipeline.FileChecklistDraft) != hasErrors {
		res.add(strict, Finding{Code: codes.Validation, Message: "errors.json must accompany checklist_draft.json and only it", Path: pipeline.FileErrors})
	}

	for _, name := range sortedKeys(index.Files) {
		if err := checkHash(abs, name, index.Files[name], &res); err != nil {
			return Result{}, err
		}
	}
	for _, entry := range manifest.Artifacts {
		if entry.Name == pipeline.FileAuditIndex {
			if err := checkHash(abs, entry.Name, entry.SHA256, &res); err != nil {
				return Result{}, err
			}
			continue
		}
		if want, ok := index.Files[entry.Name]; !ok || want != entry.SHA256 {
			res.add(true, Finding{Code: codes.HashMismatch, Message: "manifest and audit index disagree", Path: entry.Name})
		}
	}

	present, err := os.ReadDir(abs)
	if err != nil {
		return Result{}, err
	}
	for _, e := range present {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || name == pipeline.FileManifest || name == pipeline.FileAuditIndex {
			continue
		}
		if _, ok := index.Files[name]; !ok {
			res.add(strict, Finding{Code: codes.Validation, Message: "file is not listed in the audit index", Path: name})
		}
	}
	return res, nil
}

func (r *Result) add(asError bool, f Finding) {
	if asError {
		r.Errors = append(r.Errors, f)
		r.OK = false
		return
	}
	r.Warnings = append(r.Warnings, f)
}

func checkHash(root, name, want string, res *Result) error {
	path := filepath.Join(root, name)
	if err := requireContained(root, path); err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			res.add(true, Finding{Code: codes.MissingArtifact, Message: "indexed artifact is missing", Path: name})
			return nil
		}
		return err
	}
	res.Files++
	if !json.Valid(b) {
		return &CliError{Code: codes.InvalidJSON, Message: name + " is not valid json", Path: path}
	}
	if got := canon.SHA256Hex(b); got != want {
		res.add(true, Finding{Code: codes.HashMismatch, Message: "sha256 " + got[:12] + " does not match the audit index", Path: name})
	}
	return nil
}

func readJSON(root, name string, v any) error {
	path := filepath.Join(root, name)
	if err := requireContained(root, path); err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CliError{Code: codes.MissingArtifact, Message: "missing " + name, Path: path}
		}
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return &CliError{Code: codes.InvalidJSON, Message: name + " is not valid json", Path: path}
	}
	return nil
}

func requireFile(path string, required bool, res *Result) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		res.add(required, Finding{Code: codes.MissingArtifact, Message: "missing required artifact", Path: filepath.Base(path)})
		return nil
	}
	return err
}

func requireContained(root, path string) error {
	rootEval, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}
	pEval, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	rootEval = filepath.Clean(rootEval)
	pEval = filepath.Clean(pEval)
	sep := string(os.PathSeparator)
	if !strings.HasPrefix(pEval, rootEval+sep) && pEval != rootEval {
		return &CliError{Code: codes.Containment, Message: "artifact path escapes run directory (symlink traversal)", Path: path}
	}
	return nil
}

func IsCliError(err error, code string) bool {
	var e *CliError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
