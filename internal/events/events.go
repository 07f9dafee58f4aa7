// Package events is the append-only gate event stream of a run.
package events

import (
	"sort"
	"sync"
)

type Phase string

const (
	PhasePreflight      Phase = "preflight"
	PhaseCompilation    Phase = "compilation"
	PhaseGeneration     Phase = "generation"
	PhasePostGeneration Phase = "post_generation"
	PhaseFinalize       Phase = "finalize"
)

var phaseRank = map[Phase]int{
	PhasePreflight:      0,
	PhaseCompilation:    1,
	PhaseGeneration:     2,
	PhasePostGeneration: 3,
	PhaseFinalize:       4,
}

// Rank orders phases; unknown phases sort last.
func (p Phase) Rank() int {
	if r, ok := phaseRank[p]; ok {
		return r
	}
	return len(phaseRank)
}

type Outcome string

const (
	Diagnostic Outcome = "DIAGNOSTIC"
	Blocker    Outcome = "BLOCKER"
	Refusal    Outcome = "REFUSAL"
	Info       Outcome = "INFO"
)

// Authorities allowed to refuse.
const (
	AuthorityGovernance     = "governance"
	AuthoritySelfhost       = "selfhost"
	AuthorityPersona        = "persona"
	AuthorityInfrastructure = "infrastructure"
	AuthorityQuality        = "quality"
)

var knownAuthorities = map[string]bool{
	AuthorityGovernance:     true,
	AuthoritySelfhost:       true,
	AuthorityPersona:        true,
	AuthorityInfrastructure: true,
	AuthorityQuality:        true,
}

func KnownAuthority(a string) bool { return knownAuthorities[a] }

type Event struct {
	Seq       int            `json:"seq"`
	GateID    string         `json:"gate_id"`
	Phase     Phase          `json:"phase"`
	Outcome   Outcome        `json:"outcome"`
	Message   string         `json:"message"`
	Evidence  map[string]any `json:"evidence"`
	PersonaID string         `json:"persona_id,omitempty"`
}

// IsPersona reports whether the event came from the advisory persona channel.
func (e Event) IsPersona() bool { return e.PersonaID != "" }

// Authority returns evidence.refusal.authority, or "".
func (e Event) Authority() string {
	ref, ok := e.Evidence["refusal"].(map[string]any)
	if !ok {
		return ""
	}
	a, _ := ref["authority"].(string)
	return a
}

// RefusalEvidence builds the evidence.refusal block every REFUSAL event carries.
func RefusalEvidence(authority, trigger, scope, justification string) map[string]any {
	return map[string]any{
		"authority":     authority,
		"trigger":       trigger,
		"scope":         scope,
		"justification": justification,
	}
}

// Recorder is safe for concurrent use. Order is call order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

// Record appends one event. It never fails; a nil evidence map is stored as empty.
func (r *Recorder) Record(gateID string, phase Phase, outcome Outcome, message string, evidence map[string]any) {
	r.RecordEvent(Event{GateID: gateID, Phase: phase, Outcome: outcome, Message: message, Evidence: evidence})
}

// RecordRefusal appends a REFUSAL carrying evidence.refusal.
func (r *Recorder) RecordRefusal(gateID string, phase Phase, message string, refusal map[string]any, extra map[string]any) {
	ev := map[string]any{}
	for k, v := range extra {
		ev[k] = v
	}
	ev["refusal"] = refusal
	r.Record(gateID, phase, Refusal, message, ev)
}

// RecordEvent appends e, assigning its sequence number.
func (r *Recorder) RecordEvent(e Event) {
	if r == nil {
		return
	}
	if e.Evidence == nil {
		e.Evidence = map[string]any{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Seq = len(r.events)
	r.events = append(r.events, e)
}

// Events returns a copy in call order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Has reports whether any event with gateID was recorded.
func (r *Recorder) Has(gateID string) bool {
	for _, e := range r.Events() {
		if e.GateID == gateID {
			return true
		}
	}
	return false
}

// SortForEmit orders events by (phase, gate_id, seq) for artifact output.
func SortForEmit(evs []Event) []Event {
	out := make([]Event, len(evs))
	copy(out, evs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Phase.Rank() != out[j].Phase.Rank() {
			return out[i].Phase.Rank() < out[j].Phase.Rank()
		}
		if out[i].GateID != out[j].GateID {
			return out[i].GateID < out[j].GateID
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Count returns the number of non-persona events with the given outcome.
func Count(evs []Event, outcome Outcome) int {
	n := 0
	for _, e := range evs {
		if !e.IsPersona() && e.Outcome == outcome {
			n++
		}
	}
	return n
}
