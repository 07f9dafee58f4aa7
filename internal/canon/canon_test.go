package canon

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcohefti/specc/internal/codes"
)

func TestSpec_RoundsFloatsAndTimestamps(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"metadata": map[string]any{"float_precision": json.Number("1")},
		"ratio":    3.14159,
		"count":    json.Number("7"),
		"when":     "2024-03-05T10:11:12.345+02:00",
		"day":      "2024-03-05",
		"note":     "2024 was a year",
		"list":     []any{2.555, "x"},
	}
	got, err := Spec(raw)
	require.NoError(t, err)

	assert.Equal(t, 3.1, got["ratio"])
	assert.Equal(t, int64(7), got["count"])
	assert.Equal(t, "2024-03-05T08:11:12Z", got["when"])
	assert.Equal(t, "2024-03-05T00:00:00Z", got["day"])
	assert.Equal(t, "2024 was a year", got["note"])
	assert.Equal(t, []any{2.6, "x"}, got["list"])
}

func TestSpec_RejectsNaN(t *testing.T) {
	t.Parallel()

	_, err := Spec(map[string]any{"x": map[string]any{"y": math.NaN()}})
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, codes.NoncanonicalNumber, cerr.Code)
	assert.Equal(t, "/x/y", cerr.Ptr)
}

func TestJSON_IdempotentAcrossReserialization(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"z": []any{map[string]any{"b": 1.005, "a": "2020-01-01 00:00:00"}},
		"a": true,
	}
	first, err := Spec(raw)
	require.NoError(t, err)
	b1, err := JSON(first)
	require.NoError(t, err)

	var decoded map[string]any
	dec := json.NewDecoder(bytesReader(b1))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&decoded))
	second, err := Spec(decoded)
	require.NoError(t, err)
	b2, err := JSON(second)
	require.NoError(t, err)

	assert.Equal(t, string(b1), string(b2))
	assert.Equal(t, `{"a":true,"z":[{"a":"2020-01-01T00:00:00Z","b":1}]}`, string(b1))
}

func TestPointers(t *testing.T) {
	t.Parallel()

	v := map[string]any{"a/b": map[string]any{"c~": []any{"x"}}}
	assert.Equal(t, []string{"/", "/a~1b", "/a~1b/c~0", "/a~1b/c~0/0"}, Pointers(v))
	assert.Equal(t, []string{"a/b", "c~", "0"}, SplitPointer("/a~1b/c~0/0"))
	assert.True(t, IsDescendant("/a/b", "/a"))
	assert.False(t, IsDescendant("/ab", "/a"))
}

func TestPointers_EmptyKeys(t *testing.T) {
	t.Parallel()

	v := map[string]any{"": map[string]any{"": 1, "x": 2}}
	assert.Equal(t, []string{"/", "//", "///", "///x"}, Pointers(v))
	assert.Equal(t, "//", JoinPointer("/", ""))
	assert.Equal(t, "/a/", JoinPointer("/a", ""))

	assert.Equal(t, []string{""}, SplitPointer("//"))
	assert.Equal(t, []string{"", ""}, SplitPointer("///"))
	assert.Equal(t, []string{"", "x"}, SplitPointer("///x"))
	assert.Equal(t, []string{"a", ""}, SplitPointer("/a/"))
	assert.True(t, IsDescendant("///x", "//"))
}

func TestShort(t *testing.T) {
	t.Parallel()

	assert.Len(t, Short("x", 12), 12)
	assert.Equal(t, Short("x", 12), Short("x", 12))
}

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }
