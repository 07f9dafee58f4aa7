// Package ast builds a pointer-indexed tree over a canonical spec.
package ast

import (
	"sort"
	"strconv"

	"github.com/marcohefti/specc/internal/canon"
)

type NodeType string

const (
	TypeObject NodeType = "object"
	TypeArray  NodeType = "array"
	TypeString NodeType = "string"
	TypeNumber NodeType = "number"
	TypeBool   NodeType = "bool"
	TypeNull   NodeType = "null"
)

// Node is one position of the spec. Value is set for scalars only.
type Node struct {
	Type      NodeType `json:"type"`
	Key       string   `json:"key"`
	Value     any      `json:"value,omitempty"`
	Ptr       string   `json:"ptr"`
	ParentPtr string   `json:"parent_ptr"`
	Children  []*Node  `json:"children,omitempty"`
}

// IsLeaf reports whether n has no children and is not a container.
func (n *Node) IsLeaf() bool {
	return n.Type != TypeObject && n.Type != TypeArray
}

// Tree is the built AST plus its pointer index.
type Tree struct {
	Root  *Node
	index map[string]*Node
}

// Build walks v in key-sorted then index order. v should already be canonical.
func Build(v any) *Tree {
	t := &Tree{index: map[string]*Node{}}
	t.Root = t.build(v, "", "/", "")
	return t
}

func (t *Tree) build(v any, key, ptr, parent string) *Node {
	n := &Node{Key: key, Ptr: ptr, ParentPtr: parent}
	t.index[ptr] = n
	switch val := v.(type) {
	case map[string]any:
		n.Type = TypeObject
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n.Children = append(n.Children, t.build(val[k], k, canon.JoinPointer(ptr, k), ptr))
		}
	case []any:
		n.Type = TypeArray
		for i, child := range val {
			idx := strconv.Itoa(i)
			n.Children = append(n.Children, t.build(child, idx, canon.JoinPointer(ptr, idx), ptr))
		}
	case string:
		n.Type, n.Value = TypeString, val
	case bool:
		n.Type, n.Value = TypeBool, val
	case nil:
		n.Type = TypeNull
	default:
		n.Type, n.Value = TypeNumber, val
	}
	return n
}

// Walk visits every node in pre-order. Returning false skips the node's children.
func (t *Tree) Walk(fn func(*Node) bool) {
	var visit func(*Node)
	visit = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	if t.Root != nil {
		visit(t.Root)
	}
}

// Find returns the node at ptr.
func (t *Tree) Find(ptr string) (*Node, bool) {
	n, ok := t.index[ptr]
	return n, ok
}

// FindAll returns every node in the subtree at from whose key equals key, in walk order.
func (t *Tree) FindAll(from, key string) []*Node {
	start, ok := t.index[from]
	if !ok {
		return nil
	}
	var out []*Node
	var visit func(*Node)
	visit = func(n *Node) {
		if n != start && n.Key == key {
			out = append(out, n)
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(start)
	return out
}

// Pointers returns every node pointer, sorted.
func (t *Tree) Pointers() []string {
	out := make([]string, 0, len(t.index))
	for p := range t.index {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len is the node count.
func (t *Tree) Len() int { return len(t.index) }

// Section returns the first pointer segment, or "" for the root.
func Section(ptr string) string {
	parts := canon.SplitPointer(ptr)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}
