package checklist

import (
	"sort"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/requirement"
)

const (
	overlapThreshold         = 0.6
	inferredOverlapThreshold = 0.4
)

// Binds reports whether it covers req: by pointer containment, by excerpt
// hash, or by token overlap of the requirement with the evidence quote.
// A root requirement pointer binds by containment only to root items.
func Binds(it Item, req requirement.Requirement) bool {
	if req.Ptr != "/" {
		if canon.IsDescendant(it.Ptr, req.Ptr) || canon.IsDescendant(it.Evidence.Source.Ptr, req.Ptr) {
			return true
		}
	}
	if it.Evidence.SourceExcerptHash != "" && it.Evidence.SourceExcerptHash == req.ExcerptHash {
		return true
	}
	threshold := overlapThreshold
	if it.Meta.Source == SourceInferred {
		threshold = inferredOverlapThreshold
	}
	return TokenOverlap(req.Normalized, it.Evidence.Quote) >= threshold
}

// TokenOverlap is the share of requirement tokens present in quote.
func TokenOverlap(reqNormalized, quote string) float64 {
	reqTokens := requirement.Tokens(reqNormalized)
	if len(reqTokens) == 0 {
		return 0
	}
	have := map[string]bool{}
	for _, t := range requirement.Tokens(requirement.Normalize(quote)) {
		have[t] = true
	}
	n := 0
	for _, t := range reqTokens {
		if have[t] {
			n++
		}
	}
	return float64(n) / float64(len(reqTokens))
}

func (s *state) bind() {
	s.bindings = BindAll(s.items, s.in.Requirements)
}

// BindAll sets requirement_refs and covers_units on every item and returns
// the requirement to item index.
func BindAll(items []Item, reqs []requirement.Requirement) map[string][]string {
	index := make(map[string][]string, len(reqs))
	for _, req := range reqs {
		index[req.ID] = []string{}
	}
	for i := range items {
		it := &items[i]
		refs := append([]string{}, it.RequirementRefs...)
		for _, req := range reqs {
			if Binds(*it, req) {
				refs = append(refs, req.ID)
			}
		}
		it.RequirementRefs = sortedUnique(refs)
		it.CoversUnits = append([]string{}, it.RequirementRefs...)
		for _, ref := range it.RequirementRefs {
			if _, ok := index[ref]; ok {
				index[ref] = append(index[ref], it.ID)
			}
		}
	}
	for id := range index {
		sort.Strings(index[id])
	}
	return index
}
