package gates

import (
	"context"
	"fmt"

	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
)

const (
	ReadinessPass     = "pass"
	ReadinessBlocking = "blocking"
)

// Probe is one readiness check. Check must not depend on time or environment.
type Probe struct {
	Name     string
	Blocking bool
	Check    func(ctx context.Context) (ok bool, reason string)
	// PersonaID puts the probe's event on the persona channel, where it never
	// counts toward the outcome and is left out of replay comparison.
	PersonaID string
}

type ProbeResult struct {
	Name     string `json:"name"`
	GateID   string `json:"gate_id"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason"`
	Blocking bool   `json:"blocking"`
}

type ReadinessTrace struct {
	Status string        `json:"status"`
	Probes []ProbeResult `json:"probes"`
}

// RunReadiness evaluates probes in order. A failing blocking probe records a
// BLOCKER and an advisory one a DIAGNOSTIC. A panicking probe counts as failed
// and is always recorded as DIAGNOSTIC.
func RunReadiness(ctx context.Context, probes []Probe, rec *events.Recorder) ReadinessTrace {
	trace := ReadinessTrace{Status: ReadinessPass, Probes: []ProbeResult{}}
	for _, p := range probes {
		r := ProbeResult{Name: p.Name, GateID: codes.Readiness(p.Name), Blocking: p.Blocking}
		var panicked bool
		r.OK, r.Reason, panicked = check(ctx, p)
		trace.Probes = append(trace.Probes, r)
		if !r.OK && r.Blocking {
			trace.Status = ReadinessBlocking
		}

		e := events.Event{
			GateID:    r.GateID,
			Phase:     events.PhasePostGeneration,
			Evidence:  map[string]any{"probe": r.Name, "blocking": r.Blocking, "reason": r.Reason},
			PersonaID: p.PersonaID,
		}
		switch {
		case r.OK:
			e.Outcome, e.Message = events.Info, "readiness probe passed"
		case panicked || !r.Blocking:
			e.Outcome, e.Message = events.Diagnostic, "readiness probe failed: "+r.Reason
		default:
			e.Outcome, e.Message = events.Blocker, "readiness probe failed: "+r.Reason
		}
		rec.RecordEvent(e)
	}
	return trace
}

func check(ctx context.Context, p Probe) (ok bool, reason string, panicked bool) {
	defer func() {
		if v := recover(); v != nil {
			ok, reason, panicked = false, fmt.Sprintf("panic: %v", v), true
		}
	}()
	if p.Check == nil {
		return false, "no_check", false
	}
	ok, reason = p.Check(ctx)
	if ok && reason == "" {
		reason = "ok"
	}
	return ok, reason, false
}
