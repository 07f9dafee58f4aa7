package finalize

import (
	"errors"
	"fmt"
	"sort"

	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
)

// Invariant names carried by AssertionError.
const (
	InvSuccessNoPrimary    = "success_has_no_primary_cause"
	InvBlockedNotRefusal   = "blocked_is_not_refusal"
	InvDiagnosticOnly      = "diagnostic_has_no_blocking_role"
	InvRefusalAuthority    = "refusal_authority_known"
	InvTierAPairing        = "tier_a_default_paired"
	InvStableSerialization = "stable_serialization"
	InvSinglePrimaryCause  = "single_primary_cause"
	InvItemIdentity        = "item_identity_unchanged"
	InvUniqueItemIDs       = "item_ids_unique"
)

// AssertionError is a violated finalizer invariant. Runs that hit one abort.
type AssertionError struct {
	Invariant string
	Detail    string
}

func (e *AssertionError) Error() string {
	return "fatal assertion " + e.Invariant + ": " + e.Detail
}

// IsAssertion reports whether err wraps an *AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

func fail(inv, format string, args ...any) error {
	return &AssertionError{Invariant: inv, Detail: fmt.Sprintf(format, args...)}
}

func checkAuthorities(evs []events.Event) error {
	for _, e := range evs {
		if e.Outcome != events.Refusal {
			continue
		}
		if !events.KnownAuthority(e.Authority()) {
			return fail(InvRefusalAuthority, "event %s (seq %d) refuses with authority %q", e.GateID, e.Seq, e.Authority())
		}
	}
	return nil
}

func assertResult(res Result, opts Options) error {
	items := res.Checklist.Items

	primaryEvents := 0
	for _, e := range res.Checklist.Events {
		if e.Role == checklist.RolePrimaryCause {
			primaryEvents++
		}
	}
	primaryItems := 0
	for _, it := range items {
		if it.Role == checklist.RolePrimaryCause {
			primaryItems++
		}
	}

	switch res.PrimaryOutcome {
	case OutcomeSuccess, OutcomeAction:
		if primaryEvents > 0 || primaryItems > 0 {
			return fail(InvSuccessNoPrimary, "%s outcome carries a primary cause", res.PrimaryOutcome)
		}
	case OutcomeBlocked:
		if res.Refusal {
			return fail(InvBlockedNotRefusal, "blocked outcome sets refusal")
		}
	case OutcomeDiagnostic:
		for _, e := range res.Checklist.Events {
			if !e.IsPersona() && (e.Outcome == events.Blocker || e.Outcome == events.Refusal) {
				return fail(InvDiagnosticOnly, "diagnostic outcome with %s event %s", e.Outcome, e.GateID)
			}
		}
		for _, it := range items {
			if it.Role == checklist.RoleContributingBlocker {
				return fail(InvDiagnosticOnly, "diagnostic outcome with blocking item %s", it.ID)
			}
		}
	}
	switch res.PrimaryOutcome {
	case OutcomeRefusal, OutcomeBlocked, OutcomeDiagnostic:
		if primaryEvents != 1 {
			return fail(InvSinglePrimaryCause, "%s outcome has %d primary cause events", res.PrimaryOutcome, primaryEvents)
		}
	}
	if primaryItems > 1 {
		return fail(InvSinglePrimaryCause, "%d items carry the primary cause role", primaryItems)
	}

	if err := assertTierAPairing(res.Checklist.Events, items); err != nil {
		return err
	}

	seen := map[string]bool{}
	for _, it := range items {
		if seen[it.ID] {
			return fail(InvUniqueItemIDs, "duplicate item id %s", it.ID)
		}
		seen[it.ID] = true
		if want, ok := opts.Identity[it.ID]; ok && want != it.Text {
			return fail(InvItemIdentity, "text of item %s changed after creation", it.ID)
		}
	}

	ok, err := stable(res)
	if err != nil {
		return fail(InvStableSerialization, "%v", err)
	}
	if !ok {
		return fail(InvStableSerialization, "finalized checklist serializes differently twice")
	}
	return nil
}

// assertTierAPairing requires a BLOCKER and a DIAGNOSTIC for every
// synthesized Tier-A default, whether seen as an event or as an item.
func assertTierAPairing(evs []RoledEvent, items []checklist.Item) error {
	type pair struct{ blocker, diagnostic bool }
	pairs := map[string]*pair{}
	get := func(gate string) *pair {
		if pairs[gate] == nil {
			pairs[gate] = &pair{}
		}
		return pairs[gate]
	}
	for _, e := range evs {
		if e.IsPersona() || !codes.IsSynthesizedDefault(e.GateID) {
			continue
		}
		p := get(e.GateID)
		switch e.Outcome {
		case events.Blocker:
			p.blocker = true
		case events.Diagnostic:
			p.diagnostic = true
		}
	}
	for _, it := range items {
		if it.Meta.SynthesizedDefault && it.Meta.Tier == "A" {
			get(it.Meta.Gate)
		}
	}
	gates := make([]string, 0, len(pairs))
	for gate := range pairs {
		gates = append(gates, gate)
	}
	sort.Strings(gates)
	for _, gate := range gates {
		p := pairs[gate]
		if !p.blocker || !p.diagnostic {
			return fail(InvTierAPairing, "%s has blocker=%t diagnostic=%t", gate, p.blocker, p.diagnostic)
		}
	}
	return nil
}
