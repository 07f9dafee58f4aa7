package report

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/marcohefti/specc/internal/config"
	"github.com/marcohefti/specc/internal/pipeline"
)

const specJSON = `{
  "metadata": {"product_id": "ledger", "spec_format": "canonical_json_v1", "version": "1.0"},
  "agents": {"builder": "writes code"},
  "evidence_bundle": {"path": "evidence"},
  "model": {"modules": [{"name": "ledger"}]},
  "sections": [{"id": "api", "tasks": [{"id": "api.1", "text": "The API must return JSON bodies for every request."}]}],
  "invariants": [],
  "instructions": []
}`

func compile(t *testing.T, input string, hint string) *pipeline.Run {
	t.Helper()
	e := &pipeline.Engine{Version: "test"}
	run, err := e.Run(context.Background(), pipeline.RunContext{
		Input:    []byte(input),
		PathHint: hint,
		Options:  config.DefaultOptions(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return run
}

func TestRender_ByteIdenticalAcrossRuns(t *testing.T) {
	t.Parallel()

	a, err := Render(compile(t, specJSON, "spec.json"), "test")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := Render(compile(t, specJSON, "spec.json"), "test")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, name := range []string{pipeline.FileChecklist, pipeline.FileManifest, pipeline.FileGovernanceBundle} {
		if !bytes.Equal(a[name], b[name]) {
			t.Fatalf("%s differs between runs", name)
		}
	}
	for name, raw := range a {
		if !bytes.HasSuffix(raw, []byte("}\n")) {
			t.Fatalf("%s: missing trailing newline", name)
		}
		if bytes.Contains(raw, []byte("\r\n")) {
			t.Fatalf("%s: CRLF line ending", name)
		}
	}
}

func TestRender_FailedRunEmitsDraftErrorsAndFeedback(t *testing.T) {
	t.Parallel()

	files, err := Render(compile(t, "The system must refuse unsafe defaults. Logs must never be deleted.", "notes.txt"), "test")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, name := range []string{pipeline.FileChecklistDraft, pipeline.FileErrors, pipeline.FileFeedback, pipeline.FileSuppressedSignal} {
		if _, ok := files[name]; !ok {
			t.Fatalf("expected %s", name)
		}
	}
	if _, ok := files[pipeline.FileChecklist]; ok {
		t.Fatalf("failed run must not emit %s", pipeline.FileChecklist)
	}
	if _, ok := files[pipeline.FileReadiness]; ok {
		t.Fatalf("readiness is not evaluated for invalid specs")
	}
}

func TestRender_AuditIndexAndManifestHashFiles(t *testing.T) {
	t.Parallel()

	files, err := Render(compile(t, specJSON, "spec.json"), "test")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var index AuditIndex
	if err := json.Unmarshal(files[pipeline.FileAuditIndex], &index); err != nil {
		t.Fatalf("audit index: %v", err)
	}
	if _, ok := index.Files[pipeline.FileAuditIndex]; ok {
		t.Fatalf("audit index must not list itself")
	}
	if len(index.Files) != len(files)-2 {
		t.Fatalf("audit index lists %d files, want %d", len(index.Files), len(files)-2)
	}

	var m Manifest
	if err := json.Unmarshal(files[pipeline.FileManifest], &m); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if len(m.Artifacts) != len(files)-1 {
		t.Fatalf("manifest lists %d files, want %d", len(m.Artifacts), len(files)-1)
	}
	for i := 1; i < len(m.Artifacts); i++ {
		if m.Artifacts[i-1].Name >= m.Artifacts[i].Name {
			t.Fatalf("manifest entries not sorted: %s >= %s", m.Artifacts[i-1].Name, m.Artifacts[i].Name)
		}
	}
}

func TestWrite_RemovesStaleArtifacts(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "runs", "r1")
	failed, err := Render(compile(t, "Logs must never be deleted.", "notes.txt"), "test")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if err := Write(dir, failed); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, pipeline.FileErrors)); err != nil {
		t.Fatalf("expected errors.json: %v", err)
	}

	ok, err := Render(compile(t, specJSON, "spec.json"), "test")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if err := Write(dir, ok); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for _, name := range []string{pipeline.FileErrors, pipeline.FileChecklistDraft} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("stale %s left behind: %v", name, err)
		}
	}
	got, err := os.ReadFile(filepath.Join(dir, pipeline.FileManifest))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if !bytes.Equal(got, ok[pipeline.FileManifest]) {
		t.Fatalf("manifest on disk differs from rendered manifest")
	}
	if _, err := os.Stat(filepath.Join(dir, LockDirName)); !os.IsNotExist(err) {
		t.Fatalf("lock dir not released: %v", err)
	}
}
