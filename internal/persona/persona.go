// Package persona is the advisory channel. Personas propose annotations and
// vetoes; neither can change item identity or the primary outcome.
package persona

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
)

// ForbiddenFields can never be set by a persona.
var ForbiddenFields = []string{"id", "ptr", "severity", "refusal", "role"}

type Proposal struct {
	PersonaID string `yaml:"persona_id" json:"persona_id"`
	ItemID    string `yaml:"item_id" json:"item_id"`
	Field     string `yaml:"field" json:"field"`
	Value     any    `yaml:"value" json:"value"`
}

type Veto struct {
	PersonaID string `yaml:"persona_id" json:"persona_id"`
	Phase     string `yaml:"phase" json:"phase"`
	Reason    string `yaml:"reason" json:"reason"`
}

// File is the on-disk proposals document.
type File struct {
	Proposals []Proposal `yaml:"proposals"`
	Vetoes    []Veto     `yaml:"vetoes"`
}

// Load reads a proposals file. Unknown keys are rejected.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (File, error) {
	var f File
	if len(bytes.TrimSpace(b)) == 0 {
		return f, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("persona file: %w", err)
	}
	for i, p := range f.Proposals {
		if p.PersonaID == "" || p.ItemID == "" || p.Field == "" {
			return File{}, fmt.Errorf("persona file: proposal %d needs persona_id, item_id and field", i)
		}
	}
	for i, v := range f.Vetoes {
		if v.PersonaID == "" {
			return File{}, fmt.Errorf("persona file: veto %d needs persona_id", i)
		}
	}
	return f, nil
}

// Annotation is an accepted proposal.
type Annotation struct {
	PersonaID string `json:"persona_id"`
	ItemID    string `json:"item_id"`
	Field     string `json:"field"`
	Value     any    `json:"value"`
}

type Report struct {
	Accepted []Annotation `json:"accepted"`
	Denied   []Proposal   `json:"denied"`
	Vetoes   []Veto       `json:"vetoes"`
}

func forbidden(field string) bool {
	for _, f := range ForbiddenFields {
		if f == field {
			return true
		}
	}
	return false
}

// Guard filters proposals against items. Forbidden fields and unknown items
// are denied with a persona DIAGNOSTIC; vetoes become persona REFUSALs. All of
// these carry persona_id and so never decide the outcome.
func Guard(f File, items []checklist.Item, rec *events.Recorder, log *Log) (Report, error) {
	known := map[string]bool{}
	for _, it := range items {
		known[it.ID] = true
	}
	rep := Report{Accepted: []Annotation{}, Denied: []Proposal{}, Vetoes: []Veto{}}

	proposals := append([]Proposal(nil), f.Proposals...)
	sort.SliceStable(proposals, func(i, j int) bool {
		a, b := proposals[i], proposals[j]
		if a.PersonaID != b.PersonaID {
			return a.PersonaID < b.PersonaID
		}
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		return a.Field < b.Field
	})

	var emitted []events.Event
	for _, p := range proposals {
		var reason string
		switch {
		case forbidden(p.Field):
			reason = "forbidden_field"
		case !known[p.ItemID]:
			reason = "unknown_item"
		default:
			rep.Accepted = append(rep.Accepted, Annotation(p))
			continue
		}
		rep.Denied = append(rep.Denied, p)
		emitted = append(emitted, events.Event{
			GateID:    codes.GatePersonaMutationDenied,
			Phase:     events.PhaseGeneration,
			Outcome:   events.Diagnostic,
			Message:   fmt.Sprintf("persona %s may not set %s on %s", p.PersonaID, p.Field, p.ItemID),
			Evidence:  map[string]any{"item_id": p.ItemID, "field": p.Field, "reason": reason},
			PersonaID: p.PersonaID,
		})
	}

	for _, v := range f.Vetoes {
		rep.Vetoes = append(rep.Vetoes, v)
		emitted = append(emitted, events.Event{
			GateID:  codes.GatePersonaVeto,
			Phase:   phaseOr(v.Phase),
			Outcome: events.Refusal,
			Message: "persona veto: " + v.Reason,
			Evidence: map[string]any{
				"refusal": events.RefusalEvidence(events.AuthorityPersona, "persona_veto", "advisory", v.Reason),
			},
			PersonaID: v.PersonaID,
		})
	}

	for _, e := range emitted {
		rec.RecordEvent(e)
		if log != nil {
			if _, err := log.Append(e); err != nil {
				return rep, err
			}
		}
	}
	return rep, nil
}

func phaseOr(p string) events.Phase {
	if p == "" {
		return events.PhaseGeneration
	}
	return events.Phase(p)
}
