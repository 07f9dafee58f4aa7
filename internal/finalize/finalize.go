// Package finalize derives the single primary outcome of a run from its gate
// events and assigns item roles. It is the only reader of the event stream.
package finalize

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
)

type Outcome string

const (
	OutcomeRefusal    Outcome = "REFUSAL"
	OutcomeBlocked    Outcome = "BLOCKED"
	OutcomeDiagnostic Outcome = "DIAGNOSTIC"
	OutcomeAction     Outcome = "ACTION"
	OutcomeSuccess    Outcome = "SUCCESS"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// RoledEvent is an event as emitted in the finalized checklist.
type RoledEvent struct {
	events.Event
	Role checklist.Role `json:"role"`
}

type Meta struct {
	PrimaryCauseGate string         `json:"primary_cause_gate,omitempty"`
	ItemCount        int            `json:"item_count"`
	EventCounts      map[string]int `json:"event_counts"`
	PersonaEvents    int            `json:"persona_events"`
	Fallback         bool           `json:"fallback,omitempty"`
}

type Checklist struct {
	Items  []checklist.Item `json:"items"`
	Events []RoledEvent     `json:"events"`
	Meta   Meta             `json:"meta"`
}

type Result struct {
	PrimaryOutcome  Outcome   `json:"primary_outcome"`
	Refusal         bool      `json:"refusal"`
	BlockingReasons []string  `json:"blocking_reasons"`
	ConfidenceLevel string    `json:"confidence_level"`
	Checklist       Checklist `json:"checklist"`
}

type Options struct {
	// Identity is the id->text map captured when items were created. Items
	// present in it must still carry the same text.
	Identity map[string]string
}

// deriveFunc is replaced in tests to exercise the fallback path.
var deriveFunc = derive

// Finalize computes the result for evs and items. It returns an
// *AssertionError when a mandatory invariant does not hold; that is a bug,
// never a user error.
func Finalize(evs []events.Event, items []checklist.Item, opts Options) (Result, error) {
	evs = append([]events.Event(nil), evs...)
	items = checklist.CloneAll(items)

	if err := checkAuthorities(evs); err != nil {
		return Result{}, err
	}

	res, err := safeDerive(evs, items)
	if err != nil {
		evs = append(evs, events.Event{
			Seq:      nextSeq(evs),
			GateID:   codes.GateInternalDerivation,
			Phase:    events.PhaseFinalize,
			Outcome:  events.Diagnostic,
			Message:  "outcome derivation failed; using fallback",
			Evidence: map[string]any{"error": err.Error()},
		})
		res = fallback(evs, items)
	}

	if err := assertResult(res, opts); err != nil {
		return Result{}, err
	}
	return res, nil
}

func safeDerive(evs []events.Event, items []checklist.Item) (res Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("derive: %v", v)
		}
	}()
	return deriveFunc(evs, items)
}

// OutcomeOf applies the precedence REFUSAL > BLOCKED > DIAGNOSTIC > ACTION >
// SUCCESS over non-persona events. ACTION needs a high or medium confidence item.
func OutcomeOf(evs []events.Event, items []checklist.Item) Outcome {
	switch {
	case events.Count(evs, events.Refusal) > 0:
		return OutcomeRefusal
	case events.Count(evs, events.Blocker) > 0:
		return OutcomeBlocked
	case events.Count(evs, events.Diagnostic) > 0:
		return OutcomeDiagnostic
	}
	for _, it := range items {
		if it.Confidence == checklist.ConfidenceHigh || it.Confidence == checklist.ConfidenceMedium {
			return OutcomeAction
		}
	}
	return OutcomeSuccess
}

func derive(evs []events.Event, items []checklist.Item) (Result, error) {
	outcome := OutcomeOf(evs, items)
	primary, hasPrimary := primaryCause(evs, outcome)

	roled := make([]RoledEvent, 0, len(evs))
	gateRole := map[string]checklist.Role{}
	for _, e := range evs {
		role := eventRole(e, outcome, primary, hasPrimary)
		roled = append(roled, RoledEvent{Event: e, Role: role})
		if e.IsPersona() {
			continue
		}
		if cur, ok := gateRole[e.GateID]; !ok || roleRank(role) < roleRank(cur) {
			gateRole[e.GateID] = role
		}
	}

	primaryTaken := false
	for i := range items {
		items[i].Role = checklist.RoleInformational
		role, ok := gateRole[items[i].Meta.Gate]
		if !ok || items[i].Meta.Gate == "" {
			continue
		}
		if role == checklist.RolePrimaryCause {
			if primaryTaken {
				role = demoted(outcome, primary)
			}
			primaryTaken = true
		}
		items[i].Role = role
	}

	return Result{
		PrimaryOutcome:  outcome,
		Refusal:         outcome == OutcomeRefusal,
		BlockingReasons: blockingReasons(evs),
		ConfidenceLevel: confidenceLevel(outcome, items),
		Checklist: Checklist{
			Items:  items,
			Events: sortRoled(roled),
			Meta:   metaOf(evs, items, primary, hasPrimary),
		},
	}, nil
}

// primaryCause picks the lowest gate id, earliest seq, among the events of the
// deciding outcome.
func primaryCause(evs []events.Event, outcome Outcome) (events.Event, bool) {
	var want events.Outcome
	switch outcome {
	case OutcomeRefusal:
		want = events.Refusal
	case OutcomeBlocked:
		want = events.Blocker
	case OutcomeDiagnostic:
		want = events.Diagnostic
	default:
		return events.Event{}, false
	}
	var best events.Event
	found := false
	for _, e := range evs {
		if e.IsPersona() || e.Outcome != want {
			continue
		}
		if !found || e.GateID < best.GateID || (e.GateID == best.GateID && e.Seq < best.Seq) {
			best, found = e, true
		}
	}
	return best, found
}

func eventRole(e events.Event, outcome Outcome, primary events.Event, hasPrimary bool) checklist.Role {
	if e.IsPersona() {
		return checklist.RoleInformational
	}
	if hasPrimary && e.Seq == primary.Seq && e.GateID == primary.GateID {
		return checklist.RolePrimaryCause
	}
	return demotedFor(e, outcome)
}

func demotedFor(e events.Event, outcome Outcome) checklist.Role {
	switch {
	case e.Outcome == events.Blocker:
		return checklist.RoleContributingBlocker
	case e.Outcome == events.Diagnostic && (outcome == OutcomeRefusal || outcome == OutcomeBlocked):
		return checklist.RoleSecondaryDiagnostic
	}
	return checklist.RoleInformational
}

// demoted is the role of a second item tied to the primary cause gate.
func demoted(outcome Outcome, primary events.Event) checklist.Role {
	return demotedFor(primary, outcome)
}

func roleRank(r checklist.Role) int {
	switch r {
	case checklist.RolePrimaryCause:
		return 0
	case checklist.RoleContributingBlocker:
		return 1
	case checklist.RoleSecondaryDiagnostic:
		return 2
	}
	return 3
}

func blockingReasons(evs []events.Event) []string {
	type reason struct{ gate, msg string }
	var rs []reason
	for _, e := range evs {
		if e.IsPersona() || (e.Outcome != events.Refusal && e.Outcome != events.Blocker) {
			continue
		}
		rs = append(rs, reason{e.GateID, e.Message})
	}
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].gate != rs[j].gate {
			return rs[i].gate < rs[j].gate
		}
		return rs[i].msg < rs[j].msg
	})
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.gate+": "+r.msg)
	}
	return out
}

// confidenceLevel is low for refused or blocked runs, medium when any P0/P1
// item is low confidence, and high otherwise.
func confidenceLevel(outcome Outcome, items []checklist.Item) string {
	if outcome == OutcomeRefusal || outcome == OutcomeBlocked {
		return ConfidenceLow
	}
	for _, it := range items {
		if (it.Priority == checklist.PriorityP0 || it.Priority == checklist.PriorityP1) && it.Confidence == checklist.ConfidenceLow {
			return ConfidenceMedium
		}
	}
	return ConfidenceHigh
}

func metaOf(evs []events.Event, items []checklist.Item, primary events.Event, hasPrimary bool) Meta {
	m := Meta{ItemCount: len(items), EventCounts: map[string]int{}}
	for _, e := range evs {
		if e.IsPersona() {
			m.PersonaEvents++
			continue
		}
		m.EventCounts[string(e.Outcome)]++
	}
	if hasPrimary {
		m.PrimaryCauseGate = primary.GateID
	}
	return m
}

// sortRoled applies the emit order of events.SortForEmit.
func sortRoled(in []RoledEvent) []RoledEvent {
	out := append([]RoledEvent(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Phase.Rank() != b.Phase.Rank() {
			return a.Phase.Rank() < b.Phase.Rank()
		}
		if a.GateID != b.GateID {
			return a.GateID < b.GateID
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.Message < b.Message
	})
	return out
}

// fallback keeps the precedence outcome and makes the derivation failure event
// the primary cause when nothing stronger exists.
func fallback(evs []events.Event, items []checklist.Item) Result {
	outcome := OutcomeOf(evs, items)
	primary, hasPrimary := primaryCause(evs, outcome)
	roled := make([]RoledEvent, 0, len(evs))
	for _, e := range evs {
		roled = append(roled, RoledEvent{Event: e, Role: eventRole(e, outcome, primary, hasPrimary)})
	}
	for i := range items {
		items[i].Role = checklist.RoleInformational
	}
	meta := metaOf(evs, items, primary, hasPrimary)
	meta.Fallback = true
	return Result{
		PrimaryOutcome:  outcome,
		Refusal:         outcome == OutcomeRefusal,
		BlockingReasons: blockingReasons(evs),
		ConfidenceLevel: ConfidenceLow,
		Checklist:       Checklist{Items: items, Events: sortRoled(roled), Meta: meta},
	}
}

func nextSeq(evs []events.Event) int {
	n := 0
	for _, e := range evs {
		if e.Seq >= n {
			n = e.Seq + 1
		}
	}
	return n
}

// stable reports whether two serializations of v are byte-identical.
func stable(v any) (bool, error) {
	a, err := canon.JSON(v)
	if err != nil {
		return false, err
	}
	b, err := canon.JSON(v)
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}
