// Package minimality collapses equivalent checklist items and proves the
// kept ones necessary.
package minimality

import (
	"sort"
	"strings"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/coverage"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/requirement"
)

// Key identifies an equivalence class.
type Key struct {
	RequirementRefs []string `json:"requirement_refs"`
	Claim           string   `json:"claim"`
	Dimensions      []string `json:"covers_dimensions"`
}

type Group struct {
	ID        string   `json:"id"`
	Key       Key      `json:"key"`
	Primary   string   `json:"primary"`
	Collapsed []string `json:"collapsed"`
}

type Proof struct {
	GroupID        string `json:"group_id"`
	Primary        string `json:"primary"`
	CoveredBefore  int    `json:"covered_before"`
	CoveredWithout int    `json:"covered_without"`
	Necessary      bool   `json:"necessary"`
}

type Report struct {
	RemovedCount      int      `json:"removed_count"`
	EquivalenceGroups []Group  `json:"equivalence_groups"`
	ProofOfMinimality []Proof  `json:"proof_of_minimality"`
	Violations        []string `json:"violation_candidates"`
}

type Policy struct {
	// Fatal turns an unnecessary primary into a REFUSAL.
	Fatal bool
}

func keyOf(it checklist.Item) Key {
	return Key{
		RequirementRefs: append([]string{}, it.RequirementRefs...),
		Claim:           it.Claim,
		Dimensions:      []string{it.Category, it.Classification},
	}
}

// eligible items carry requirement refs and are neither defaults nor gate items.
func eligible(it checklist.Item) bool {
	return len(it.RequirementRefs) > 0 && !it.Meta.SynthesizedDefault && it.Meta.Gate == ""
}

// Collapse merges each equivalence group into its primary and returns the
// surviving items in their original order.
func Collapse(items []checklist.Item, reqs []requirement.Requirement, policy Policy, rec *events.Recorder) ([]checklist.Item, Report) {
	rep := Report{EquivalenceGroups: []Group{}, ProofOfMinimality: []Proof{}, Violations: []string{}}

	members := map[string][]int{}
	keys := map[string]Key{}
	for i, it := range items {
		if !eligible(it) {
			continue
		}
		k := keyOf(it)
		fp, err := canon.Fingerprint(k)
		if err != nil {
			continue
		}
		members[fp] = append(members[fp], i)
		keys[fp] = k
	}

	fps := make([]string, 0, len(members))
	for fp, idx := range members {
		if len(idx) > 1 {
			fps = append(fps, fp)
		}
	}
	sort.Strings(fps)

	removed := map[string]string{} // collapsed id -> primary id
	out := checklist.CloneAll(items)
	for _, fp := range fps {
		idx := members[fp]
		sort.Slice(idx, func(a, b int) bool { return better(out[idx[a]], out[idx[b]]) })
		primary := &out[idx[0]]
		var collapsed []string
		for _, j := range idx[1:] {
			other := out[j]
			collapsed = append(collapsed, other.ID)
			removed[other.ID] = primary.ID
			primary.ProducesArtifacts = union(primary.ProducesArtifacts, other.ProducesArtifacts)
			primary.RequiresArtifacts = union(primary.RequiresArtifacts, other.RequiresArtifacts)
			primary.DependsOn = union(primary.DependsOn, other.DependsOn)
		}
		sort.Strings(collapsed)
		primary.CollapsedFrom = union(primary.CollapsedFrom, collapsed)
		rep.EquivalenceGroups = append(rep.EquivalenceGroups, Group{
			ID:        fp[:12],
			Key:       keys[fp],
			Primary:   primary.ID,
			Collapsed: collapsed,
		})
	}

	kept := make([]checklist.Item, 0, len(out))
	for _, it := range out {
		if _, gone := removed[it.ID]; gone {
			continue
		}
		it.DependsOn = remap(it.ID, it.DependsOn, removed)
		kept = append(kept, it)
	}
	rep.RemovedCount = len(removed)

	before := coverage.Evaluate(reqs, kept).CoveredCount
	for _, g := range rep.EquivalenceGroups {
		without := make([]checklist.Item, 0, len(kept)-1)
		for _, it := range kept {
			if it.ID != g.Primary {
				without = append(without, it)
			}
		}
		after := coverage.Evaluate(reqs, without).CoveredCount
		p := Proof{GroupID: g.ID, Primary: g.Primary, CoveredBefore: before, CoveredWithout: after, Necessary: after < before}
		rep.ProofOfMinimality = append(rep.ProofOfMinimality, p)
		for i := range kept {
			if kept[i].ID == g.Primary {
				necessary := p.Necessary
				kept[i].Meta.Necessary = &necessary
			}
		}
		if !p.Necessary {
			rep.Violations = append(rep.Violations, g.Primary)
		}
	}

	if policy.Fatal && len(rep.Violations) > 0 {
		rec.RecordRefusal(codes.GateMinimalityInvariant, events.PhaseCompilation,
			"equivalence primaries are not necessary for coverage: "+strings.Join(rep.Violations, ", "),
			events.RefusalEvidence(events.AuthorityGovernance, "minimality_invariant", "checklist", "every kept primary must be necessary for coverage"),
			map[string]any{"primaries": rep.Violations})
	}
	return kept, rep
}

// better orders candidates for primary: qualifying for FULL first, then
// priority, then smallest id. Qualifying leads so a collapse never lowers
// covered_count.
func better(a, b checklist.Item) bool {
	qa, qb := coverage.Qualifies(a), coverage.Qualifies(b)
	if qa != qb {
		return qa
	}
	if ra, rb := checklist.PriorityRank(a.Priority), checklist.PriorityRank(b.Priority); ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

func remap(self string, deps []string, removed map[string]string) []string {
	out := make([]string, 0, len(deps))
	seen := map[string]bool{}
	for _, d := range deps {
		if p, ok := removed[d]; ok {
			d = p
		}
		if d == self || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func union(a, b []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
