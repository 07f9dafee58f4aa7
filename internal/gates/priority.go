package gates

import (
	"context"
	"sort"

	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
)

type PriorityViolation struct {
	ItemID      string `json:"item_id"`
	DependsOn   string `json:"depends_on"`
	DepPriority string `json:"depends_on_priority"`
}

type PriorityReport struct {
	OK         bool                `json:"ok"`
	Violations []PriorityViolation `json:"violations"`
}

// PriorityGate refuses when a P0 item waits on anything that is not P0.
type PriorityGate struct{}

func (g *PriorityGate) ID() string   { return codes.GatePriorityViolation }
func (g *PriorityGate) Name() string { return "priority_order" }

func (g *PriorityGate) Run(_ context.Context, st *State) *Result {
	res := newResult(g)
	prio := map[string]string{}
	for _, it := range st.Items {
		prio[it.ID] = it.Priority
	}
	rep := PriorityReport{OK: true, Violations: []PriorityViolation{}}
	for _, it := range st.Items {
		if it.Priority != checklist.PriorityP0 {
			continue
		}
		for _, d := range it.DependsOn {
			p, ok := prio[d]
			if !ok || p == checklist.PriorityP0 {
				continue
			}
			rep.Violations = append(rep.Violations, PriorityViolation{ItemID: it.ID, DependsOn: d, DepPriority: p})
		}
	}
	sort.Slice(rep.Violations, func(i, j int) bool {
		a, b := rep.Violations[i], rep.Violations[j]
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		return a.DependsOn < b.DependsOn
	})
	res.Metrics["violations"] = len(rep.Violations)
	st.Priority = rep
	if len(rep.Violations) == 0 {
		return res
	}

	st.Priority.OK = false
	res.Pass = false
	list := make([]any, 0, len(rep.Violations))
	for _, v := range rep.Violations {
		res.Reasons = append(res.Reasons, v.ItemID+"->"+v.DependsOn)
		list = append(list, map[string]any{"item_id": v.ItemID, "depends_on": v.DependsOn, "depends_on_priority": v.DepPriority})
	}
	st.Recorder.RecordRefusal(g.ID(), events.PhasePostGeneration,
		"P0 items depend on lower-priority items",
		events.RefusalEvidence(events.AuthorityGovernance, "priority_violation", "checklist", "P0 work cannot wait on lower-priority work"),
		map[string]any{"violations": list})
	return res
}
