package checklist

import (
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
)

// Top-level key tiers by severity of absence.
var (
	TierA = []string{"metadata", "agents", "evidence_bundle"}
	TierB = []string{"determinism", "artifact_contract", "generation_mappings", "security"}
	TierC = []string{"pipeline", "error_contract", "ci_contract", "observability"}
)

// TierOf returns "A", "B", "C" or "" for an untiered key.
func TierOf(key string) string {
	for _, group := range []struct {
		tier string
		keys []string
	}{{"A", TierA}, {"B", TierB}, {"C", TierC}} {
		for _, k := range group.keys {
			if k == key {
				return group.tier
			}
		}
	}
	return ""
}

func (s *state) enforceTiers() {
	rec := s.in.Recorder
	for _, key := range TierA {
		if _, ok := s.in.Spec[key]; ok {
			continue
		}
		rec.Record(codes.TierAMissing(key), events.PhaseCompilation, events.Blocker,
			"tier A key "+key+" is missing", map[string]any{"key": key, "tier": "A"})
		it := NewDefault(key, "A", nil)
		s.items = append(s.items, it)
		evidence := map[string]any{"key": key, "item_id": it.ID, "justification": it.Meta.Justification}
		rec.Record(codes.SynthesizedDefault(key), events.PhaseCompilation, events.Blocker,
			"synthesized safe default for "+key, evidence)
		rec.Record(codes.SynthesizedDefault(key), events.PhaseCompilation, events.Diagnostic,
			"review synthesized default for "+key, evidence)
	}
	for _, key := range TierB {
		if _, ok := s.in.Spec[key]; ok {
			continue
		}
		it := NewDefault(key, "B", nil)
		s.items = append(s.items, it)
		rec.Record(codes.TierBMissing(key), events.PhaseCompilation, events.Diagnostic,
			"tier B key "+key+" is missing", map[string]any{"key": key, "tier": "B", "item_id": it.ID})
	}
}
