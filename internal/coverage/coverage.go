// Package coverage binds requirements to checklist items and decides sufficiency.
package coverage

import (
	"math"
	"sort"

	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/requirement"
)

type Status string

const (
	Full    Status = "FULL"
	Partial Status = "PARTIAL"
	Missing Status = "MISSING"
)

type Record struct {
	RequirementID    string            `json:"requirement_id"`
	Level            requirement.Level `json:"level"`
	ChecklistItemIDs []string          `json:"checklist_item_ids"`
	Status           Status            `json:"status"`
	Structural       bool              `json:"structural,omitempty"`
}

type Report struct {
	Records      []Record `json:"records"`
	TotalCount   int      `json:"total_count"`
	CoveredCount int      `json:"covered_count"`
	PartialCount int      `json:"partial_count"`
	MissingCount int      `json:"missing_count"`
	// CoveredPct excludes structural-dump units. It is 1 when nothing is countable.
	CoveredPct        float64  `json:"covered_pct"`
	StructuralUnitIDs []string `json:"structural_unit_ids"`
}

type Sufficiency struct {
	OK                bool     `json:"ok"`
	MustTotal         int      `json:"must_total"`
	MustFull          int      `json:"must_full"`
	UncoveredMustIDs  []string `json:"uncovered_must_ids"`
	StructuralUnitIDs []string `json:"structural_unit_ids"`
}

// Qualifies reports whether it alone makes a requirement FULL.
func Qualifies(it checklist.Item) bool {
	return (it.Priority == checklist.PriorityP0 || it.Priority == checklist.PriorityP1) &&
		it.Confidence != checklist.ConfidenceLow
}

// Evaluate computes coverage from the requirement_refs already bound on items.
func Evaluate(reqs []requirement.Requirement, items []checklist.Item) Report {
	byReq := map[string][]checklist.Item{}
	for _, it := range items {
		for _, ref := range it.RequirementRefs {
			byReq[ref] = append(byReq[ref], it)
		}
	}

	rep := Report{Records: []Record{}, StructuralUnitIDs: []string{}}
	for _, req := range reqs {
		bound := byReq[req.ID]
		ids := make([]string, 0, len(bound))
		status := Missing
		for _, it := range bound {
			ids = append(ids, it.ID)
			if Qualifies(it) {
				status = Full
			} else if status == Missing {
				status = Partial
			}
		}
		sort.Strings(ids)
		rec := Record{RequirementID: req.ID, Level: req.Level, ChecklistItemIDs: ids, Status: status}
		if req.IsStructuralDump() {
			rec.Structural = true
			rep.StructuralUnitIDs = append(rep.StructuralUnitIDs, req.ID)
			rep.Records = append(rep.Records, rec)
			continue
		}
		rep.Records = append(rep.Records, rec)
		rep.TotalCount++
		switch status {
		case Full:
			rep.CoveredCount++
		case Partial:
			rep.PartialCount++
		default:
			rep.MissingCount++
		}
	}
	sort.Strings(rep.StructuralUnitIDs)
	rep.CoveredPct = 1
	if rep.TotalCount > 0 {
		rep.CoveredPct = round4(float64(rep.CoveredCount) / float64(rep.TotalCount))
	}
	return rep
}

// Sufficient is ok iff every non-structural MUST requirement is FULL.
func Sufficient(reqs []requirement.Requirement, rep Report) Sufficiency {
	status := map[string]Status{}
	for _, r := range rep.Records {
		status[r.RequirementID] = r.Status
	}
	s := Sufficiency{UncoveredMustIDs: []string{}, StructuralUnitIDs: append([]string{}, rep.StructuralUnitIDs...)}
	for _, req := range reqs {
		if req.Level != requirement.MUST || req.IsStructuralDump() {
			continue
		}
		s.MustTotal++
		if status[req.ID] == Full {
			s.MustFull++
		} else {
			s.UncoveredMustIDs = append(s.UncoveredMustIDs, req.ID)
		}
	}
	sort.Strings(s.UncoveredMustIDs)
	s.OK = len(s.UncoveredMustIDs) == 0
	return s
}

// RecordEvents writes the coverage diagnostic and one diagnostic per uncovered MUST.
func RecordEvents(rec *events.Recorder, rep Report, suff Sufficiency) {
	rec.Record(codes.GateCoverageEvaluated, events.PhaseCompilation, events.Diagnostic,
		"coverage evaluated", map[string]any{
			"covered_count": rep.CoveredCount,
			"total_count":   rep.TotalCount,
			"covered_pct":   rep.CoveredPct,
		})
	for _, id := range suff.UncoveredMustIDs {
		rec.Record(codes.GateSufficiencyMustUncover, events.PhaseCompilation, events.Diagnostic,
			"MUST requirement "+id+" is not fully covered", map[string]any{"requirement_id": id})
	}
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
