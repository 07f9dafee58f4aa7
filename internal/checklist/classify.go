package checklist

import (
	"strings"

	"github.com/marcohefti/specc/internal/requirement"
)

var actionVerbs = map[string]string{
	CategoryStructural:       "Implement",
	CategoryBehavioral:       "Implement behavior",
	CategoryGovernance:       "Enforce",
	CategoryBootstrap:        "Bootstrap",
	CategoryFixDependency:    "Fix dependency",
	CategoryFixMetadata:      "Complete metadata",
	CategoryResolveInvariant: "Resolve invariant",
	CategoryResolveCycle:     "Break cycle",
	CategoryQuality:          "Improve",
}

func (s *state) classifyAll() {
	for i := range s.items {
		classify(&s.items[i])
	}
}

// classify fills category, severity, priority, classification and action
// where they are still empty. Set fields are left alone.
func classify(it *Item) {
	if it.Category == "" {
		switch {
		case it.Meta.Bootstrap:
			it.Category = CategoryBootstrap
		case it.Section == "invariants":
			it.Category = CategoryGovernance
		case it.Meta.Source == SourceDerived:
			it.Category = CategoryBehavioral
		default:
			it.Category = CategoryStructural
		}
	}
	if !validSeverity(it.Severity) {
		it.Severity = SeverityFor(it.Text, it.Category)
	}
	if it.Priority == "" {
		it.Priority = PriorityFor(it.Severity, it.Category)
	}
	if it.Classification == "" {
		it.Classification = requirement.Strength(requirement.Normalize(it.Text))
	}
	if it.Action == "" {
		it.Action = actionVerbs[it.Category] + ": " + it.Text
	}
}

// SeverityFor derives severity from the category and text keywords.
func SeverityFor(text, category string) string {
	switch category {
	case CategoryResolveInvariant:
		return SeverityCritical
	case CategoryFixDependency, CategoryFixMetadata, CategoryResolveCycle:
		return SeverityHigh
	}
	if strings.Contains(text, "SPEC MISSING") {
		return SeverityHigh
	}
	level, _ := requirement.Classify(requirement.Normalize(text))
	switch level {
	case requirement.MUST:
		return SeverityHigh
	case requirement.SHOULD:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// PriorityFor maps severity to priority. High severity is P0 only for
// governance, bootstrap and cycle work.
func PriorityFor(severity, category string) string {
	switch severity {
	case SeverityCritical:
		return PriorityP0
	case SeverityHigh:
		switch category {
		case CategoryGovernance, CategoryBootstrap, CategoryResolveCycle:
			return PriorityP0
		}
		return PriorityP1
	case SeverityMedium:
		return PriorityP1
	default:
		return PriorityP2
	}
}

func validSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

func validPriority(p string) bool {
	return p == PriorityP0 || p == PriorityP1 || p == PriorityP2
}

func validConfidence(c string) bool {
	return c == ConfidenceLow || c == ConfidenceMedium || c == ConfidenceHigh
}

// SeverityRank orders critical first.
func SeverityRank(s string) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// PriorityRank orders P0 first.
func PriorityRank(p string) int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	default:
		return 2
	}
}
