// Package determinism holds the seed manager, the determinism snapshot and the
// replay engine that proves a checklist is reproducible.
package determinism

import (
	"sort"
	"sync"

	"github.com/marcohefti/specc/internal/canon"
)

// Seed names used by the pipeline.
const (
	SeedEvidenceLine = "evidence_line"
	SeedFuzz         = "spec_fuzz"
	SeedRunID        = "run_id"
)

// SeedNames lists every seed a run generates, in generation order.
var SeedNames = []string{SeedEvidenceLine, SeedFuzz, SeedRunID}

// SeedManager is scoped to one engine.
type SeedManager struct {
	mu    sync.Mutex
	base  string
	seeds map[string]string
}

// NewSeedManager derives seeds from base, normally the spec fingerprint.
func NewSeedManager(base string) *SeedManager {
	return &SeedManager{base: base, seeds: map[string]string{}}
}

// Generate returns the seed for name: override when non-empty, otherwise the
// recorded seed, otherwise sha256(name + ":" + base).
func (m *SeedManager) Generate(name, override string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if override != "" {
		m.seeds[name] = override
		return override
	}
	if s, ok := m.seeds[name]; ok {
		return s
	}
	s := canon.SHA256Hex([]byte(name + ":" + m.base))
	m.seeds[name] = s
	return s
}

// Load installs recorded seeds so Generate returns them unchanged.
func (m *SeedManager) Load(seeds map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range seeds {
		m.seeds[k] = v
	}
}

func (m *SeedManager) Seeds() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.seeds))
	for k, v := range m.seeds {
		out[k] = v
	}
	return out
}

func (m *SeedManager) Names() []string {
	seeds := m.Seeds()
	out := make([]string, 0, len(seeds))
	for k := range seeds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
