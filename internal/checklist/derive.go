package checklist

import (
	"sort"
)

// deriveTasks emits subtasks for the first occurrence of every item id.
// Duplicates are left to the id registry.
func (s *state) deriveTasks() {
	known := s.ids()
	first := make([]bool, len(s.items))
	var parents []Item
	seen := map[string]bool{}
	for i, it := range s.items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		first[i] = true
		parents = append(parents, it)
	}

	var derived []Item
	add := func(parent Item, kind, text, category string) {
		it := NewDerived(parent, kind, text, category)
		classify(&it)
		derived = append(derived, it)
	}

	s.deriveMetadata(parents, add)

	for i := range s.items {
		if !first[i] {
			continue
		}
		parent := &s.items[i]
		var kept []string
		for _, dep := range parent.DependsOn {
			if known[dep] {
				kept = append(kept, dep)
				continue
			}
			before := len(derived)
			add(*parent, "fix_dependency:"+dep, "Declare or remove dependency "+dep+" referenced by "+parent.ID, CategoryFixDependency)
			derived[before].DependencyRef = dep
		}
		if kept == nil {
			kept = []string{}
		}
		parent.DependsOn = kept
	}

	for _, v := range s.violations {
		for _, p := range parents {
			if p.ID != v.parentID {
				continue
			}
			before := len(derived)
			add(p, "resolve_invariant", "Resolve violated invariant "+v.invariantID, CategoryResolveInvariant)
			derived[before].InvariantID = v.invariantID
			break
		}
	}

	for _, p := range parents {
		if p.Meta.Module != "" {
			add(p, "module_test", "Write tests for module "+p.Meta.Module, "")
			add(p, "module_imports", "Wire imports for module "+p.Meta.Module, "")
			add(p, "module_init", "Initialize module "+p.Meta.Module, "")
		}
		if p.Category == CategoryBootstrap {
			add(p, "bootstrap_impl", "Implement bootstrap step "+p.ID, "")
			add(p, "bootstrap_verify", "Verify bootstrap step "+p.ID, "")
		}
	}

	s.items = append(s.items, derived...)
}

// deriveMetadata emits one fix-metadata task per missing core metadata field.
func (s *state) deriveMetadata(parents []Item, add func(Item, string, string, string)) {
	md, _ := s.in.Spec["metadata"].(map[string]any)
	var missing []string
	for _, field := range []string{"product_id", "spec_format"} {
		if scalarText(md[field]) == "" {
			missing = append(missing, field)
		}
	}
	if scalarText(md["version"]) == "" && scalarText(md["spec_version"]) == "" {
		missing = append(missing, "version")
	}
	if len(missing) == 0 || len(parents) == 0 {
		return
	}

	candidates := make([]Item, 0, len(parents))
	for _, p := range parents {
		if p.Section == "metadata" {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, parents...)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	parent := candidates[0]

	for _, field := range missing {
		add(parent, "fix_metadata:"+field, "SPEC MISSING: metadata."+field, CategoryFixMetadata)
	}
}
