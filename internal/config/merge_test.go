package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMerged_PrecedenceFlagEnvProjectGlobalDefault(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	// Default
	m, err := LoadMerged("")
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if m.OutRoot != DefaultOutRoot || m.Source != "default" {
		t.Fatalf("unexpected default: %+v", m)
	}

	// Global
	home := filepath.Join(dir, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Setenv("HOME", home)
	globalPath, err := DefaultGlobalConfigPath()
	if err != nil {
		t.Fatalf("DefaultGlobalConfigPath: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(globalPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(globalPath, []byte("schema_version: 1\nout_root: .specc-global\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err = LoadMerged("")
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if m.OutRoot != ".specc-global" {
		t.Fatalf("unexpected global: %+v", m)
	}

	// Project overrides global
	if err := os.WriteFile(DefaultProjectConfigPath, []byte("schema_version: 1\nout_root: .specc-project\nminimality_fatal: true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err = LoadMerged("")
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if m.OutRoot != ".specc-project" || !m.MinimalityFatal {
		t.Fatalf("unexpected project: %+v", m)
	}

	// Env overrides project
	t.Setenv(EnvOutRoot, ".specc-env")
	m, err = LoadMerged("")
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if m.OutRoot != ".specc-env" {
		t.Fatalf("unexpected env: %+v", m)
	}

	// Flag overrides env
	m, err = LoadMerged(".specc-flag")
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if m.OutRoot != ".specc-flag" {
		t.Fatalf("unexpected flag: %+v", m)
	}
}

func TestLoadMerged_RejectsUnknownSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Setenv("HOME", filepath.Join(dir, "home"))
	if err := os.WriteFile(DefaultProjectConfigPath, []byte("schema_version: 9\nout_root: x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadMerged(""); err == nil {
		t.Fatalf("expected schema_version error")
	}
}
