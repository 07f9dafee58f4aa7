package gates

import (
	"context"
	"sort"

	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
)

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// Plan is the execution order of the checklist. When the dependency graph has
// a cycle every ordering field is empty and Cycle names the stuck items.
type Plan struct {
	Acyclic        bool           `json:"acyclic"`
	OrderedItemIDs []string       `json:"ordered_item_ids"`
	ParallelGroups [][]string     `json:"parallel_groups"`
	Levels         map[string]int `json:"levels"`
	Edges          []Edge         `json:"edges"`
	Cycle          []string       `json:"cycle_item_ids"`
}

const (
	edgeDependsOn = "depends_on"
	edgeArtifact  = "artifact"
)

// Edges returns the dependency edges of items, From being the prerequisite.
// Edges to unknown ids are dropped; artifact edges run from every producer to
// every consumer.
func Edges(items []checklist.Item) []Edge {
	known := map[string]bool{}
	producers := map[string][]string{}
	for _, it := range items {
		known[it.ID] = true
		for _, a := range it.ProducesArtifacts {
			producers[a] = append(producers[a], it.ID)
		}
	}
	seen := map[[2]string]bool{}
	var out []Edge
	add := func(from, to, kind string) {
		if from == to || !known[from] {
			return
		}
		k := [2]string{from, to}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, Edge{From: from, To: to, Kind: kind})
	}
	for _, it := range items {
		for _, d := range it.DependsOn {
			add(d, it.ID, edgeDependsOn)
		}
		for _, a := range it.RequiresArtifacts {
			for _, p := range producers[a] {
				add(p, it.ID, edgeArtifact)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	if out == nil {
		out = []Edge{}
	}
	return out
}

// BuildPlan topologically sorts items. Ready items are taken in id order;
// level is 1 + the highest level among prerequisites.
func BuildPlan(items []checklist.Item) Plan {
	edges := Edges(items)
	ids := make([]string, 0, len(items))
	indeg := map[string]int{}
	for _, it := range items {
		if _, dup := indeg[it.ID]; dup {
			continue
		}
		indeg[it.ID] = 0
		ids = append(ids, it.ID)
	}
	sort.Strings(ids)
	out := map[string][]string{}
	in := map[string][]string{}
	for _, e := range edges {
		out[e.From] = append(out[e.From], e.To)
		in[e.To] = append(in[e.To], e.From)
		indeg[e.To]++
	}

	var ready []string
	for _, id := range ids {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	levels := map[string]int{}
	order := make([]string, 0, len(ids))
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		lvl := 1
		for _, p := range in[id] {
			if levels[p]+1 > lvl {
				lvl = levels[p] + 1
			}
		}
		levels[id] = lvl
		order = append(order, id)
		for _, next := range out[id] {
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) < len(ids) {
		var stuck []string
		for _, id := range ids {
			if _, done := levels[id]; !done {
				stuck = append(stuck, id)
			}
		}
		return Plan{
			OrderedItemIDs: []string{},
			ParallelGroups: [][]string{},
			Levels:         map[string]int{},
			Edges:          edges,
			Cycle:          stuck,
		}
	}

	maxLevel := 0
	for _, l := range levels {
		if l > maxLevel {
			maxLevel = l
		}
	}
	groups := make([][]string, maxLevel)
	for _, id := range order {
		groups[levels[id]-1] = append(groups[levels[id]-1], id)
	}
	for _, g := range groups {
		sort.Strings(g)
	}
	return Plan{
		Acyclic:        true,
		OrderedItemIDs: order,
		ParallelGroups: groups,
		Levels:         levels,
		Edges:          edges,
		Cycle:          []string{},
	}
}

// CycleGate builds the execution plan and refuses on a dependency cycle.
type CycleGate struct{}

func (g *CycleGate) ID() string   { return codes.GateExecutionCycle }
func (g *CycleGate) Name() string { return "execution_plan" }

func (g *CycleGate) Run(_ context.Context, st *State) *Result {
	res := newResult(g)
	st.Plan = BuildPlan(st.Items)
	res.Metrics["edges"] = len(st.Plan.Edges)
	res.Metrics["levels"] = len(st.Plan.ParallelGroups)
	if st.Plan.Acyclic {
		return res
	}
	res.Pass = false
	res.Reasons = append(res.Reasons, st.Plan.Cycle...)
	st.Recorder.RecordRefusal(g.ID(), events.PhasePostGeneration,
		"dependency cycle among checklist items",
		events.RefusalEvidence(events.AuthorityGovernance, "execution_cycle", "execution_plan", "a cyclic checklist has no execution order"),
		map[string]any{"item_ids": st.Plan.Cycle})
	return res
}
