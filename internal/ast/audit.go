package ast

import (
	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/dsl"
)

// Audit compares the tree's pointers with pointers enumerated from raw
// independently. Raw pointers without a node yield missing_in_ast; nodes
// without a raw pointer yield missing_pointer.
func Audit(raw any, t *Tree) []dsl.Diagnostic {
	rawSet := map[string]bool{}
	for _, p := range canon.Pointers(raw) {
		rawSet[p] = true
	}
	var out []dsl.Diagnostic
	for _, p := range canon.Pointers(raw) {
		if _, ok := t.Find(p); !ok {
			out = append(out, dsl.Diagnostic{Code: codes.MissingInAST, Message: "raw pointer has no AST node", Ptr: p})
		}
	}
	for _, p := range t.Pointers() {
		if !rawSet[p] {
			out = append(out, dsl.Diagnostic{Code: codes.MissingPointer, Message: "AST node has no raw pointer", Ptr: p})
		}
	}
	return out
}
