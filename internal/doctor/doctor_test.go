package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marcohefti/specc/internal/syncstate"
)

func TestRun_WritableOutRoot(t *testing.T) {
	outRoot := filepath.Join(t.TempDir(), ".specc")
	res, err := Run(Opts{OutRoot: outRoot})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res.Checks)
	}
	if _, err := os.Stat(filepath.Join(outRoot, "runs")); err != nil {
		t.Fatalf("expected runs dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outRoot, ".doctor.tmp")); !os.IsNotExist(err) {
		t.Fatalf("probe file left behind: %v", err)
	}
}

func TestRun_ReportsSyncDrift(t *testing.T) {
	dir := t.TempDir()
	tree := filepath.Join(dir, "tree")
	if err := os.MkdirAll(tree, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tree, "spec.json"), []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := syncstate.Record(tree); err != nil {
		t.Fatalf("record: %v", err)
	}
	res, err := Run(Opts{OutRoot: filepath.Join(dir, "out"), SyncRoot: tree})
	if err != nil || !res.OK {
		t.Fatalf("expected ok, got err=%v checks=%+v", err, res.Checks)
	}

	if err := os.WriteFile(filepath.Join(tree, "spec.json"), []byte("{\"a\":1}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err = Run(Opts{OutRoot: filepath.Join(dir, "out"), SyncRoot: tree})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OK {
		t.Fatalf("expected sync_state failure")
	}
	last := res.Checks[len(res.Checks)-1]
	if last.ID != "sync_state" || last.OK {
		t.Fatalf("unexpected last check: %+v", last)
	}
}
