package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marcohefti/specc/internal/store"
)

const (
	ProjectConfigSchemaV1    = 1
	DefaultProjectConfigPath = "specc.config.yaml"
)

// ProjectConfig is the per-repo config created by `specc init`.
type ProjectConfig struct {
	SchemaVersion   int    `yaml:"schema_version"`
	OutRoot         string `yaml:"out_root"`
	MinimalityFatal bool   `yaml:"minimality_fatal,omitempty"`
	PersonaLog      string `yaml:"persona_log,omitempty"`
	SnapshotDB      string `yaml:"snapshot_db,omitempty"`
}

type InitResult struct {
	OK           bool   `json:"ok"`
	ConfigPath   string `json:"config_path"`
	OutRoot      string `json:"out_root"`
	Created      bool   `json:"created"`
	OutRootReady bool   `json:"out_root_ready"`
}

func InitProject(configPath string, outRoot string) (*InitResult, error) {
	if strings.TrimSpace(configPath) == "" {
		configPath = DefaultProjectConfigPath
	}
	if strings.TrimSpace(outRoot) == "" {
		outRoot = DefaultOutRoot
	}

	if err := os.MkdirAll(filepath.Join(outRoot, "runs"), 0o755); err != nil {
		return nil, err
	}

	created := false
	if _, err := os.Stat(configPath); err == nil {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		var existing ProjectConfig
		if err := yaml.Unmarshal(raw, &existing); err != nil {
			return nil, err
		}
		if existing.SchemaVersion != ProjectConfigSchemaV1 {
			return nil, fmt.Errorf("existing config has unsupported schema_version=%d", existing.SchemaVersion)
		}
		if strings.TrimSpace(existing.OutRoot) == "" {
			return nil, fmt.Errorf("existing config out_root is empty")
		}
		if existing.OutRoot != outRoot {
			return nil, fmt.Errorf("existing config out_root=%q does not match requested out_root=%q", existing.OutRoot, outRoot)
		}
	} else if os.IsNotExist(err) {
		b, err := yaml.Marshal(ProjectConfig{SchemaVersion: ProjectConfigSchemaV1, OutRoot: outRoot})
		if err != nil {
			return nil, err
		}
		if err := store.WriteFileAtomic(configPath, b); err != nil {
			return nil, err
		}
		created = true
	} else if err != nil {
		return nil, err
	}

	return &InitResult{
		OK:           true,
		ConfigPath:   configPath,
		OutRoot:      outRoot,
		Created:      created,
		OutRootReady: true,
	}, nil
}
