package checklist

import (
	"fmt"
	"strings"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/requirement"
)

// Explicit describes an item read directly from a spec position.
type Explicit struct {
	ID      string
	Ptr     string
	Section string
	Text    string
	// TextPtr is the pointer the text was read from; it defaults to Ptr.
	TextPtr  string
	Line     *int
	Tier     string
	Category string
}

func NewExplicit(e Explicit) Item {
	textPtr := e.TextPtr
	if textPtr == "" {
		textPtr = e.Ptr
	}
	it := newItem(e.ID, e.Ptr, e.Section, e.Text)
	it.Evidence = evidenceFor(textPtr, e.Text, e.Line)
	it.Category = e.Category
	it.Meta = Meta{
		Source:           SourceExplicit,
		Justification:    "explicit_field",
		JustificationPtr: textPtr,
		InferenceType:    InferenceNone,
		Tier:             e.Tier,
	}
	if _, ok := requirement.Classify(requirement.Normalize(e.Text)); ok {
		it.Confidence = ConfidenceHigh
	} else {
		it.Confidence = ConfidenceMedium
	}
	return it
}

// NewDefault synthesizes the safe-default item for a missing tiered key.
func NewDefault(key, tier string, line *int) Item {
	ptr := canon.JoinPointer("/", key)
	text := fmt.Sprintf("SPEC MISSING: %s (synthesized safe default)", key)
	it := newItem("default."+key, ptr, key, text)
	it.Evidence = evidenceFor(ptr, text, line)
	it.Confidence = ConfidenceMedium
	it.Category = CategoryStructural
	severity := SeverityMedium
	gate := codes.TierBMissing(key)
	if tier == "A" {
		severity = SeverityHigh
		gate = codes.SynthesizedDefault(key)
	}
	it.Severity = severity
	it.Meta = Meta{
		Source:             SourceDefault,
		Justification:      "safe_default_" + key,
		JustificationPtr:   ptr,
		InferenceType:      InferenceSafeDefault,
		Tier:               tier,
		SynthesizedDefault: true,
		Gate:               gate,
		Phase:              "compilation",
	}
	return it
}

// NewInferred creates a low-confidence item for a requirement no spec field covers.
func NewInferred(req requirement.Requirement, section string) Item {
	if section == "" {
		section = sectionOfRequirement(req.Ptr)
	}
	it := newItem("req."+req.ID, req.Ptr, section, req.Text)
	it.Evidence = Evidence{
		Source:            EvidenceSource{Ptr: req.Ptr, Line: intPtr(req.Line)},
		Quote:             req.Text,
		SourceExcerptHash: req.ExcerptHash,
	}
	it.InferredFromProse = true
	it.Confidence = ConfidenceLow
	it.Classification = req.Strength
	it.RequirementRefs = []string{req.ID}
	it.Meta = Meta{
		Source:           SourceInferred,
		Justification:    "inferred_from_prose",
		JustificationPtr: req.Ptr,
		InferenceType:    InferenceHeuristic,
	}
	return it
}

// NewDerived creates a subtask of parent. The id is a pure function of
// (parent id, kind).
func NewDerived(parent Item, kind, text, category string) Item {
	id := canon.Short(parent.ID+"::"+kind, 10)
	it := newItem(id, parent.Ptr, parent.Section, text)
	it.Evidence = evidenceFor(parent.Evidence.Source.Ptr, text, parent.Evidence.Source.Line)
	it.LineageID = parent.LineageID
	it.Category = category
	it.Confidence = ConfidenceMedium
	it.Meta = Meta{
		Source:           SourceDerived,
		Justification:    "derived_" + strings.ReplaceAll(kind, "-", "_"),
		JustificationPtr: parent.Evidence.Source.Ptr,
		InferenceType:    InferenceStructural,
		Tier:             parent.Meta.Tier,
		DerivedFrom:      parent.ID,
		DerivedKind:      kind,
	}
	return it
}

// QualityLowText is the text of the item appended when the quality gate fails.
const QualityLowText = "CHECKLIST QUALITY LOW"

// NewQualityLow builds the diagnostic item the quality gate appends.
func NewQualityLow(score int, gate string) Item {
	text := fmt.Sprintf("%s: score %d is below the acceptance threshold", QualityLowText, score)
	it := newItem("quality.checklist_low", "/", "quality", text)
	it.Category = CategoryQuality
	it.Classification = requirement.StrengthGovernance
	it.Severity = SeverityHigh
	it.Priority = PriorityP1
	it.Confidence = ConfidenceMedium
	it.Action = "Improve the spec until the checklist quality score reaches the threshold"
	it.Meta = Meta{
		Source:           SourceDerived,
		Justification:    "quality_gate",
		JustificationPtr: "/",
		InferenceType:    InferenceFallback,
		Gate:             gate,
		Phase:            "post_generation",
	}
	return it
}

func sectionOfRequirement(ptr string) string {
	parts := canon.SplitPointer(ptr)
	if len(parts) == 2 && parts[0] == "section" {
		return "section " + parts[1]
	}
	if len(parts) > 0 {
		return parts[0]
	}
	return "prose"
}
