// Package checklist owns checklist items: their model, their construction and
// the compiler passes that turn a spec into an ordered checklist.
//
// Only constructors in this package create items. Later stages may annotate
// Meta, Role, DependsOn and CollapsedFrom; Id and Text never change after creation.
package checklist

import (
	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/requirement"
)

type Source string

const (
	SourceExplicit Source = "explicit"
	SourceDerived  Source = "derived"
	SourceCoerced  Source = "coerced"
	SourceInferred Source = "inferred"
	SourceDefault  Source = "default"
)

type InferenceType string

const (
	InferenceNone        InferenceType = "none"
	InferenceSafeDefault InferenceType = "safe_default"
	InferenceHeuristic   InferenceType = "heuristic"
	InferenceStructural  InferenceType = "structural"
	InferenceFallback    InferenceType = "fallback"
)

type Role string

const (
	RolePrimaryCause        Role = "PRIMARY_CAUSE"
	RoleContributingBlocker Role = "CONTRIBUTING_BLOCKER"
	RoleSecondaryDiagnostic Role = "SECONDARY_DIAGNOSTIC"
	RoleInformational       Role = "INFORMATIONAL"
)

const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"

	PriorityP0 = "P0"
	PriorityP1 = "P1"
	PriorityP2 = "P2"

	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

const (
	CategoryStructural       = "structural"
	CategoryBehavioral       = "behavioral"
	CategoryGovernance       = "governance"
	CategoryBootstrap        = "bootstrap"
	CategoryFixDependency    = "fix-dependency"
	CategoryFixMetadata      = "fix-metadata"
	CategoryResolveInvariant = "resolve-invariant"
	CategoryResolveCycle     = "resolve-cycle"
	CategoryQuality          = "quality"
)

type EvidenceSource struct {
	Ptr string `json:"ptr"`
	// Line is null when no position is known.
	Line *int `json:"line"`
}

type Evidence struct {
	Source            EvidenceSource `json:"source"`
	Quote             string         `json:"quote"`
	SourceExcerptHash string         `json:"source_excerpt_hash"`
}

type Meta struct {
	Source             Source        `json:"source"`
	Justification      string        `json:"justification"`
	JustificationPtr   string        `json:"justification_ptr,omitempty"`
	InferenceType      InferenceType `json:"inference_type"`
	Tier               string        `json:"tier,omitempty"`
	SynthesizedDefault bool          `json:"synthesized_default,omitempty"`
	DerivedFrom        string        `json:"derived_from,omitempty"`
	DerivedKind        string        `json:"derived_kind,omitempty"`
	OriginalValue      any           `json:"original_value,omitempty"`
	Gate               string        `json:"gate,omitempty"`
	Phase              string        `json:"phase,omitempty"`
	Bootstrap          bool          `json:"bootstrap,omitempty"`
	Module             string        `json:"module,omitempty"`
	LowSignal          bool          `json:"low_signal,omitempty"`
	Necessary          *bool         `json:"necessary,omitempty"`
}

type Item struct {
	ID                string   `json:"id"`
	Ptr               string   `json:"ptr"`
	Section           string   `json:"section"`
	Text              string   `json:"text"`
	Claim             string   `json:"claim,omitempty"`
	Action            string   `json:"action"`
	Category          string   `json:"category"`
	Classification    string   `json:"classification"`
	Severity          string   `json:"severity"`
	Priority          string   `json:"priority"`
	Confidence        string   `json:"confidence"`
	LineageID         string   `json:"lineage_id"`
	Evidence          Evidence `json:"evidence"`
	RequirementRefs   []string `json:"requirement_refs"`
	CoversUnits       []string `json:"covers_units"`
	DependsOn         []string `json:"depends_on"`
	ProducesArtifacts []string `json:"produces_artifacts"`
	RequiresArtifacts []string `json:"requires_artifacts"`
	InferredFromProse bool     `json:"inferred_from_prose,omitempty"`
	DependencyRef     string   `json:"dependency_ref,omitempty"`
	InvariantID       string   `json:"invariant_id,omitempty"`
	CollapsedFrom     []string `json:"collapsed_from,omitempty"`
	Role              Role     `json:"role,omitempty"`
	Meta              Meta     `json:"meta"`
}

// Clone returns a deep copy of the slice fields and the Meta pointer fields.
func (it Item) Clone() Item {
	out := it
	out.RequirementRefs = cloneStrings(it.RequirementRefs)
	out.CoversUnits = cloneStrings(it.CoversUnits)
	out.DependsOn = cloneStrings(it.DependsOn)
	out.ProducesArtifacts = cloneStrings(it.ProducesArtifacts)
	out.RequiresArtifacts = cloneStrings(it.RequiresArtifacts)
	out.CollapsedFrom = cloneStrings(it.CollapsedFrom)
	if it.Evidence.Source.Line != nil {
		l := *it.Evidence.Source.Line
		out.Evidence.Source.Line = &l
	}
	if it.Meta.Necessary != nil {
		n := *it.Meta.Necessary
		out.Meta.Necessary = &n
	}
	return out
}

// CloneAll deep-copies a slice of items.
func CloneAll(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// Identity maps item ids to texts, for checking that neither changed later.
func Identity(items []Item) map[string]string {
	m := make(map[string]string, len(items))
	for _, it := range items {
		m[it.ID] = it.Text
	}
	return m
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func newItem(id, ptr, section, text string) Item {
	return Item{
		ID:                id,
		Ptr:               ptr,
		Section:           section,
		Text:              text,
		Claim:             requirement.Normalize(text),
		LineageID:         id,
		Evidence:          evidenceFor(ptr, text, nil),
		RequirementRefs:   []string{},
		CoversUnits:       []string{},
		DependsOn:         []string{},
		ProducesArtifacts: []string{},
		RequiresArtifacts: []string{},
	}
}

func evidenceFor(ptr, quote string, line *int) Evidence {
	return Evidence{
		Source:            EvidenceSource{Ptr: ptr, Line: line},
		Quote:             quote,
		SourceExcerptHash: canon.Short(requirement.Normalize(quote), 12),
	}
}

func intPtr(n int) *int { return &n }
