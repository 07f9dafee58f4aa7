package checklist

import (
	"sort"
	"strings"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/requirement"
)

// normalize coerces missing required fields and enforces id uniqueness.
// Later duplicates are dropped and reported as one REFUSAL.
func (s *state) normalize() {
	seen := map[string]bool{}
	var dups []string
	kept := s.items[:0]
	for _, it := range s.items {
		coerce(&it)
		if seen[it.ID] {
			dups = append(dups, it.ID)
			continue
		}
		seen[it.ID] = true
		kept = append(kept, it)
	}
	s.items = kept
	if len(dups) == 0 {
		return
	}
	dups = sortedUnique(dups)
	s.in.Recorder.RecordRefusal(codes.GateChecklistModelErrors, events.PhaseCompilation,
		"duplicate checklist item ids: "+strings.Join(dups, ", "),
		events.RefusalEvidence(events.AuthorityGovernance, "duplicate_item_id", "checklist", "item ids must be unique within a checklist"),
		map[string]any{"duplicate_ids": dups})
}

func coerce(it *Item) {
	var fixed []string
	original := map[string]any{}
	note := func(field string, was any) {
		fixed = append(fixed, field)
		original[field] = was
	}

	if strings.TrimSpace(it.Ptr) == "" {
		note("ptr", it.Ptr)
		it.Ptr = "/"
	}
	if strings.TrimSpace(it.Text) == "" {
		note("text", it.Text)
		it.Text = "UNSPECIFIED: " + it.Ptr
		it.Claim = requirement.Normalize(it.Text)
		if it.Evidence.Quote == "" {
			it.Evidence.Quote = it.Text
			it.Evidence.SourceExcerptHash = canon.Short(it.Claim, 12)
		}
	}
	if strings.TrimSpace(it.ID) == "" {
		note("id", it.ID)
		it.ID = "coerced." + canon.Short(it.Ptr+"::"+it.Text, 10)
	}
	if strings.TrimSpace(it.LineageID) == "" {
		note("lineage_id", it.LineageID)
		it.LineageID = it.ID
	}
	if !validSeverity(it.Severity) {
		note("severity", it.Severity)
		it.Severity = SeverityFor(it.Text, it.Category)
	}
	if !validPriority(it.Priority) {
		note("priority", it.Priority)
		it.Priority = PriorityFor(it.Severity, it.Category)
	}
	if !validConfidence(it.Confidence) {
		note("confidence", it.Confidence)
		it.Confidence = ConfidenceLow
	}
	if strings.TrimSpace(it.Classification) == "" {
		note("classification", it.Classification)
		it.Classification = requirement.StrengthStructural
	}
	if strings.TrimSpace(it.Evidence.Source.Ptr) == "" && !it.InferredFromProse {
		note("evidence.source.ptr", it.Evidence.Source.Ptr)
		it.Evidence.Source.Ptr = it.Ptr
	}
	if len(fixed) == 0 {
		return
	}
	sort.Strings(fixed)
	it.Meta.Source = SourceCoerced
	it.Meta.Justification = "coerced_missing_" + strings.Join(fixed, "_")
	if len(fixed) == 1 {
		it.Meta.OriginalValue = original[fixed[0]]
	} else {
		it.Meta.OriginalValue = original
	}
}
