package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvOutRoot     = "SPECC_OUT_ROOT"
	DefaultOutRoot = ".specc"
)

// Merged is the operator-facing configuration. None of it changes artifact
// semantics except MinimalityFatal, which is opt-in.
type Merged struct {
	OutRoot string
	// Source names where OutRoot came from.
	Source string

	MinimalityFatal bool
	PersonaLog      string
	SnapshotDB      string
}

func DefaultGlobalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".specc", "config.yaml"), nil
}

type GlobalConfig struct {
	SchemaVersion int    `yaml:"schema_version"`
	OutRoot       string `yaml:"out_root,omitempty"`
	SnapshotDB    string `yaml:"snapshot_db,omitempty"`
}

func LoadMerged(flagOutRoot string) (Merged, error) {
	// Precedence: flag, env, project config, global config, default.
	projectCfg, hasProjectCfg, err := loadProject(DefaultProjectConfigPath)
	if err != nil {
		return Merged{}, err
	}
	globalPath, err := DefaultGlobalConfigPath()
	if err != nil {
		return Merged{}, err
	}
	globalCfg, hasGlobalCfg, err := loadGlobal(globalPath)
	if err != nil {
		return Merged{}, err
	}

	res := Merged{
		OutRoot: DefaultOutRoot,
		Source:  "default",
	}
	if strings.TrimSpace(flagOutRoot) != "" {
		res.OutRoot = flagOutRoot
		res.Source = "flag"
	} else if v := strings.TrimSpace(os.Getenv(EnvOutRoot)); v != "" {
		res.OutRoot = v
		res.Source = "env:" + EnvOutRoot
	} else if hasProjectCfg {
		res.OutRoot = projectCfg.OutRoot
		res.Source = DefaultProjectConfigPath
	} else if hasGlobalCfg && strings.TrimSpace(globalCfg.OutRoot) != "" {
		res.OutRoot = globalCfg.OutRoot
		res.Source = globalPath
	}

	if hasProjectCfg {
		res.MinimalityFatal = projectCfg.MinimalityFatal
		res.PersonaLog = projectCfg.PersonaLog
		res.SnapshotDB = projectCfg.SnapshotDB
	}
	if res.SnapshotDB == "" && hasGlobalCfg {
		res.SnapshotDB = globalCfg.SnapshotDB
	}
	return res, nil
}

func loadProject(path string) (ProjectConfig, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectConfig{}, false, nil
		}
		return ProjectConfig{}, false, err
	}
	var cfg ProjectConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return ProjectConfig{}, false, fmt.Errorf("project config %s: %w", path, err)
	}
	if cfg.SchemaVersion != ProjectConfigSchemaV1 {
		return ProjectConfig{}, false, fmt.Errorf("project config unsupported schema_version=%d", cfg.SchemaVersion)
	}
	if strings.TrimSpace(cfg.OutRoot) == "" {
		return ProjectConfig{}, false, fmt.Errorf("project config out_root is empty")
	}
	return cfg, true, nil
}

func loadGlobal(path string) (GlobalConfig, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GlobalConfig{}, false, nil
		}
		return GlobalConfig{}, false, err
	}
	var cfg GlobalConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return GlobalConfig{}, false, fmt.Errorf("global config %s: %w", path, err)
	}
	if cfg.SchemaVersion != 1 {
		return GlobalConfig{}, false, fmt.Errorf("global config unsupported schema_version=%d", cfg.SchemaVersion)
	}
	return cfg, true, nil
}
