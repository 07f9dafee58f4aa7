package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
)

func sample() map[string]any {
	return map[string]any{
		"z": []any{"a", map[string]any{"id": "x", "a/b": true}},
		"a": map[string]any{"id": "top", "n": nil, "f": 1.5},
	}
}

func TestBuild_PointerSetMatchesRaw(t *testing.T) {
	t.Parallel()
	raw := sample()
	tree := Build(raw)
	assert.Equal(t, canon.Pointers(raw), tree.Pointers())
	assert.Empty(t, Audit(raw, tree))
}

func TestWalk_PreOrderSortedKeys(t *testing.T) {
	t.Parallel()
	tree := Build(sample())
	var ptrs []string
	tree.Walk(func(n *Node) bool {
		ptrs = append(ptrs, n.Ptr)
		return true
	})
	assert.Equal(t, []string{
		"/", "/a", "/a/f", "/a/id", "/a/n",
		"/z", "/z/0", "/z/1", "/z/1/a~1b", "/z/1/id",
	}, ptrs)
}

func TestFindAndFindAll(t *testing.T) {
	t.Parallel()
	tree := Build(sample())

	n, ok := tree.Find("/z/1/a~1b")
	require.True(t, ok)
	assert.Equal(t, TypeBool, n.Type)
	assert.Equal(t, "a/b", n.Key)
	assert.Equal(t, "/z/1", n.ParentPtr)

	ids := tree.FindAll("/", "id")
	require.Len(t, ids, 2)
	assert.Equal(t, "/a/id", ids[0].Ptr)
	assert.Equal(t, "/z/1/id", ids[1].Ptr)

	nul, _ := tree.Find("/a/n")
	assert.Equal(t, TypeNull, nul.Type)
	assert.True(t, nul.IsLeaf())
	assert.Equal(t, "z", Section("/z/1/id"))
}

func TestAudit_ReportsBothDirections(t *testing.T) {
	t.Parallel()
	raw := sample()
	tree := Build(raw)
	raw["extra"] = "late"
	delete(raw, "a")

	diags := Audit(raw, tree)
	var got []string
	for _, d := range diags {
		got = append(got, d.Code+"@"+d.Ptr)
	}
	assert.Equal(t, []string{
		codes.MissingInAST + "@/extra",
		codes.MissingPointer + "@/a",
		codes.MissingPointer + "@/a/f",
		codes.MissingPointer + "@/a/id",
		codes.MissingPointer + "@/a/n",
	}, got)
}
