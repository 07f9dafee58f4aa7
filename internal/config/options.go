package config

import (
	"sort"
	"strconv"
	"strings"
)

const (
	EnvStrictnessDisabled    = "SEMANTIC_STRICTNESS_DISABLED"
	EnvStrictnessLevelPrefix = "SEMANTIC_STRICTNESS_LEVEL_"
	EnvRequiredMustCount     = "REQUIRED_MUST_COUNT"
)

// Options are the only environment settings allowed to affect semantic output.
type Options struct {
	// StrictnessLevels lists the active semantic strictness levels, ascending.
	StrictnessLevels []int `json:"strictness_levels"`
	// RequiredMustCount is advisory; it is reported but never gates a run.
	RequiredMustCount int `json:"required_must_count"`
}

func DefaultOptions() Options {
	return Options{StrictnessLevels: []int{1}}
}

// HasLevel reports whether strictness level n is active.
func (o Options) HasLevel(n int) bool {
	for _, l := range o.StrictnessLevels {
		if l == n {
			return true
		}
	}
	return false
}

// FromEnv reads Options from a KEY=VALUE environment slice. Unrecognized keys are ignored.
func FromEnv(environ []string) Options {
	levels := map[int]bool{1: true}
	disabled := false
	opts := Options{}
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch {
		case key == EnvStrictnessDisabled:
			disabled = truthy(val)
		case key == EnvRequiredMustCount:
			if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && n > 0 {
				opts.RequiredMustCount = n
			}
		case strings.HasPrefix(key, EnvStrictnessLevelPrefix):
			n, err := strconv.Atoi(strings.TrimPrefix(key, EnvStrictnessLevelPrefix))
			if err != nil || n < 2 || !truthy(val) {
				continue
			}
			levels[n] = true
		}
	}
	if disabled {
		// Disabling wipes every level, opt-in ones included.
		opts.StrictnessLevels = []int{}
		return opts
	}
	for l := range levels {
		opts.StrictnessLevels = append(opts.StrictnessLevels, l)
	}
	sort.Ints(opts.StrictnessLevels)
	return opts
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
