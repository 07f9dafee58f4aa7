package determinism

import (
	"fmt"

	"github.com/marcohefti/specc/internal/canon"
)

// RulesetVersion names the compilation rules. It feeds the code fingerprint,
// so any change to rules that alters output must bump it.
const RulesetVersion = "specc-ruleset/1"

type Fingerprints struct {
	Spec  string `json:"spec"`
	Items string `json:"items"`
	Plan  string `json:"plan"`
	Code  string `json:"code"`
}

// Snapshot records everything replay needs to recompile and compare.
type Snapshot struct {
	SpecCanonical      map[string]any    `json:"spec_canonical"`
	ChecklistCanonical map[string]any    `json:"checklist_canonical"`
	Seeds              map[string]string `json:"seeds"`
	// Lines are the source lines of the spec pointers. They are not part of
	// the spec fingerprint.
	Lines        map[string]int `json:"lines,omitempty"`
	Fingerprints Fingerprints   `json:"fingerprints"`
}

// CodeFingerprint is the fingerprint of RulesetVersion.
func CodeFingerprint() string {
	return canon.SHA256Hex([]byte(RulesetVersion))
}

// NewSnapshot canonicalizes checklist and plan and fingerprints all parts.
// checklist must encode as a JSON object with an "items" member.
func NewSnapshot(spec map[string]any, checklist any, plan any, seeds map[string]string) (Snapshot, error) {
	doc, err := canon.Generic(checklist)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot checklist: %w", err)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshot checklist: not an object")
	}
	specFP, err := canon.Fingerprint(spec)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot spec: %w", err)
	}
	itemsFP, err := canon.Fingerprint(m["items"])
	if err != nil {
		return Snapshot{}, err
	}
	planFP, err := canon.Fingerprint(plan)
	if err != nil {
		return Snapshot{}, err
	}
	s := make(map[string]string, len(seeds))
	for k, v := range seeds {
		s[k] = v
	}
	return Snapshot{
		SpecCanonical:      spec,
		ChecklistCanonical: m,
		Seeds:              s,
		Fingerprints: Fingerprints{
			Spec:  specFP,
			Items: itemsFP,
			Plan:  planFP,
			Code:  CodeFingerprint(),
		},
	}, nil
}

// Verify checks that the stored fingerprints still describe the stored content.
func (s Snapshot) Verify() error {
	fp, err := canon.Fingerprint(s.SpecCanonical)
	if err != nil {
		return err
	}
	if fp != s.Fingerprints.Spec {
		return fmt.Errorf("spec fingerprint %s does not match content %s", s.Fingerprints.Spec, fp)
	}
	if s.Fingerprints.Code != CodeFingerprint() {
		return fmt.Errorf("snapshot was recorded by ruleset %s", s.Fingerprints.Code)
	}
	return nil
}
