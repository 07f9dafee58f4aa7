package checklist

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/marcohefti/specc/internal/ast"
	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/requirement"
)

// Fields read as the text of a task-like object, in preference order.
var textFields = []string{"text", "title", "description", "action", "rule", "name"}

func (s *state) extract() {
	s.in.Tree.Walk(func(n *ast.Node) bool {
		if n.Ptr == "/" {
			return true
		}
		if n.Ptr == requirement.SourceMaterialPtr {
			return false
		}
		parts := canon.SplitPointer(n.Ptr)
		switch {
		case s.isTaskObject(n, parts):
			s.addTask(n, parts)
			return false
		case n.Type == ast.TypeObject && len(parts) == 3 && parts[0] == "model" && parts[1] == "modules":
			s.addModule(n)
			return false
		case n.Type == ast.TypeObject && len(parts) == 2 && parts[0] == "invariants":
			s.addInvariant(n)
			return false
		}
		if !n.IsLeaf() || skipLeaf(n, parts) {
			return true
		}
		s.addLeaf(n, parts)
		return true
	})
}

func (s *state) isTaskObject(n *ast.Node, parts []string) bool {
	if n.Type != ast.TypeObject {
		return false
	}
	inTasks := len(parts) == 4 && parts[0] == "sections" && parts[2] == "tasks"
	inInstructions := len(parts) == 2 && parts[0] == "instructions"
	if !inTasks && !inInstructions {
		return false
	}
	_, ok := s.childScalar(n, "id")
	return ok
}

func skipLeaf(n *ast.Node, parts []string) bool {
	if n.Type == ast.TypeNull {
		return true
	}
	if v, ok := n.Value.(string); ok && strings.TrimSpace(v) == "" {
		return true
	}
	// Section ids and titles label a section; they are not obligations.
	if len(parts) == 3 && parts[0] == "sections" && (parts[2] == "id" || parts[2] == "title") {
		return true
	}
	return false
}

func (s *state) addLeaf(n *ast.Node, parts []string) {
	section := s.sectionOf(n.Ptr)
	text := leafText(n)
	category := ""
	if parts[0] == "invariants" {
		category = CategoryGovernance
	}
	s.items = append(s.items, NewExplicit(Explicit{
		ID:       section + "." + canon.Short(n.Ptr, 10),
		Ptr:      n.Ptr,
		Section:  section,
		Text:     text,
		Line:     s.lineFor(n.Ptr),
		Tier:     TierOf(parts[0]),
		Category: category,
	}))
}

func (s *state) addTask(n *ast.Node, parts []string) {
	id, _ := s.childScalar(n, "id")
	text, textPtr := s.objectText(n)
	section := s.sectionOf(n.Ptr)

	it := NewExplicit(Explicit{
		ID:      id,
		Ptr:     n.Ptr,
		Section: section,
		Text:    text,
		TextPtr: textPtr,
		Line:    s.lineFor(textPtr),
		Tier:    TierOf(parts[0]),
	})
	it.DependsOn = s.childStrings(n, "depends_on")
	it.ProducesArtifacts = s.childStrings(n, "produces", "produces_artifacts")
	it.RequiresArtifacts = s.childStrings(n, "requires", "requires_artifacts")
	if b, ok := s.childValue(n, "bootstrap").(bool); ok && b {
		it.Meta.Bootstrap = true
	}
	if parts[0] == "sections" && strings.HasPrefix(strings.ToLower(section), "bootstrap") {
		it.Meta.Bootstrap = true
	}
	if sev, ok := s.childScalar(n, "severity"); ok {
		it.Severity = strings.ToLower(sev)
	}
	s.items = append(s.items, it)
}

func (s *state) addModule(n *ast.Node) {
	name, ok := s.childScalar(n, "name")
	if !ok {
		name, ok = s.childScalar(n, "id")
	}
	if !ok {
		name = n.Key
	}
	text := "Implement module " + name
	textPtr := n.Ptr
	if desc, dptr := s.objectTextExcept(n, "name"); desc != "" {
		text += ": " + desc
		textPtr = dptr
	}
	it := NewExplicit(Explicit{
		ID:      "module." + slug(name),
		Ptr:     n.Ptr,
		Section: "model",
		Text:    text,
		TextPtr: textPtr,
		Line:    s.lineFor(n.Ptr),
	})
	it.Meta.Module = name
	it.DependsOn = s.childStrings(n, "depends_on")
	it.ProducesArtifacts = s.childStrings(n, "produces", "produces_artifacts")
	it.RequiresArtifacts = s.childStrings(n, "requires", "requires_artifacts")
	s.items = append(s.items, it)
}

func (s *state) addInvariant(n *ast.Node) {
	text, textPtr := s.objectText(n)
	invID, _ := s.childScalar(n, "id")
	it := NewExplicit(Explicit{
		ID:       "invariants." + canon.Short(n.Ptr, 10),
		Ptr:      n.Ptr,
		Section:  "invariants",
		Text:     text,
		TextPtr:  textPtr,
		Line:     s.lineFor(textPtr),
		Category: CategoryGovernance,
	})
	it.InvariantID = invID
	s.items = append(s.items, it)
	if status, _ := s.childScalar(n, "status"); strings.EqualFold(status, "violated") {
		if invID == "" {
			invID = n.Ptr
		}
		s.violations = append(s.violations, violation{parentID: it.ID, invariantID: invID})
	}
}

func (s *state) objectText(n *ast.Node) (string, string) {
	return s.objectTextExcept(n, "")
}

func (s *state) objectTextExcept(n *ast.Node, skip string) (string, string) {
	for _, f := range textFields {
		if f == skip {
			continue
		}
		if v, ok := s.childScalar(n, f); ok {
			return v, canon.JoinPointer(n.Ptr, f)
		}
	}
	return "", n.Ptr
}

func (s *state) childValue(n *ast.Node, key string) any {
	c, ok := s.in.Tree.Find(canon.JoinPointer(n.Ptr, key))
	if !ok {
		return nil
	}
	return c.Value
}

// childScalar returns a non-empty scalar child rendered as a string.
func (s *state) childScalar(n *ast.Node, key string) (string, bool) {
	str := scalarText(s.childValue(n, key))
	return str, str != ""
}

// childStrings reads the first present key as a list of strings. A single
// string counts as a one-element list. The result is sorted and deduplicated.
func (s *state) childStrings(n *ast.Node, keys ...string) []string {
	for _, key := range keys {
		c, ok := s.in.Tree.Find(canon.JoinPointer(n.Ptr, key))
		if !ok {
			continue
		}
		var out []string
		if c.Type == ast.TypeArray {
			for _, el := range c.Children {
				if v := scalarText(el.Value); v != "" {
					out = append(out, v)
				}
			}
		} else if v := scalarText(c.Value); v != "" {
			out = append(out, v)
		}
		return sortedUnique(out)
	}
	return []string{}
}

func leafText(n *ast.Node) string {
	if v, ok := n.Value.(string); ok {
		return strings.TrimSpace(v)
	}
	return n.Key + ": " + scalarText(n.Value)
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	sort.Strings(in)
	out := in[:1]
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
