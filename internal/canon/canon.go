// Package canon turns decoded specs into their canonical form and hashes them.
//
// Canonical rules: map keys emitted sorted, sequence order preserved, floats
// rounded to metadata.float_precision (default 2), ISO-8601-like strings
// re-emitted as YYYY-MM-DDTHH:MM:SSZ, NaN and Infinity rejected.
package canon

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marcohefti/specc/internal/codes"
)

const (
	DefaultFloatPrecision = 2
	TimestampLayout       = "2006-01-02T15:04:05Z"
)

// Error is a canonicalization failure carrying a stable code and the pointer of the offending value.
type Error struct {
	Code string
	Ptr  string
	Msg  string
}

func (e *Error) Error() string { return e.Code + ": " + e.Msg + " (" + e.Ptr + ")" }

var reTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?)?(Z|z|[+-]\d{2}:?\d{2})?$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Spec canonicalizes a decoded spec mapping. Precision is read from
// metadata.float_precision when present.
func Spec(raw map[string]any) (map[string]any, error) {
	out, err := Value(raw, PrecisionOf(raw))
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

// PrecisionOf returns metadata.float_precision, or the default.
func PrecisionOf(raw map[string]any) int {
	md, ok := raw["metadata"].(map[string]any)
	if !ok {
		return DefaultFloatPrecision
	}
	switch p := md["float_precision"].(type) {
	case int:
		return clampPrecision(int64(p))
	case int64:
		return clampPrecision(p)
	case float64:
		return clampPrecision(int64(p))
	case json.Number:
		if n, err := p.Int64(); err == nil {
			return clampPrecision(n)
		}
	}
	return DefaultFloatPrecision
}

func clampPrecision(p int64) int {
	if p < 0 {
		return 0
	}
	if p > 12 {
		return 12
	}
	return int(p)
}

// Value canonicalizes any decoded value.
func Value(v any, precision int) (any, error) {
	return value(v, precision, "/")
}

func value(v any, precision int, ptr string) (any, error) {
	switch t := v.(type) {
	case nil, bool:
		return t, nil
	case string:
		return Timestamp(t), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			c, err := value(child, precision, JoinPointer(ptr, k))
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			key := fmt.Sprint(k)
			c, err := value(child, precision, JoinPointer(ptr, key))
			if err != nil {
				return nil, err
			}
			out[key] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			c, err := value(child, precision, JoinPointer(ptr, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(t))
		for i, child := range t {
			c, err := value(child, precision, JoinPointer(ptr, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, &Error{Code: codes.NoncanonicalNumber, Ptr: ptr, Msg: "unparseable number " + t.String()}
		}
		return roundFloat(f, precision, ptr)
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, &Error{Code: codes.NoncanonicalNumber, Ptr: ptr, Msg: "integer overflows int64"}
		}
		return int64(t), nil
	case float32:
		return roundFloat(float64(t), precision, ptr)
	case float64:
		return roundFloat(t, precision, ptr)
	case time.Time:
		return t.UTC().Format(TimestampLayout), nil
	case fmt.Stringer:
		// TOML local date/time types.
		return Timestamp(t.String()), nil
	default:
		return nil, &Error{Code: codes.SpecNotDict, Ptr: ptr, Msg: fmt.Sprintf("unsupported value type %T", v)}
	}
}

func roundFloat(f float64, precision int, ptr string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &Error{Code: codes.NoncanonicalNumber, Ptr: ptr, Msg: "NaN or Infinity is not canonical"}
	}
	p := math.Pow(10, float64(precision))
	r := math.Round(f*p) / p
	if r == 0 {
		r = 0 // drop negative zero
	}
	return r, nil
}

// Timestamp re-emits ISO-8601-like strings as YYYY-MM-DDTHH:MM:SSZ and returns
// every other string unchanged.
func Timestamp(s string) string {
	trimmed := strings.TrimSpace(s)
	if !reTimestamp.MatchString(trimmed) {
		return s
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.UTC().Format(TimestampLayout)
		}
	}
	return s
}

// JoinPointer appends an RFC-6901 escaped token to a pointer. The root
// pointer is "/", so an empty key directly under the root is "//".
func JoinPointer(parent, token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	token = strings.ReplaceAll(token, "/", "~1")
	if parent == "/" || parent == "" {
		if token == "" {
			return "//"
		}
		return "/" + token
	}
	return parent + "/" + token
}

// SplitPointer returns the unescaped tokens of a pointer.
func SplitPointer(ptr string) []string {
	if ptr == "/" || ptr == "" {
		return nil
	}
	var parts []string
	if strings.HasPrefix(ptr, "//") {
		parts = append(parts, "")
		ptr = ptr[2:]
	}
	if ptr != "" {
		parts = append(parts, strings.Split(strings.TrimPrefix(ptr, "/"), "/")...)
	}
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return parts
}

// IsDescendant reports whether ptr equals ancestor or lies beneath it.
func IsDescendant(ptr, ancestor string) bool {
	if ancestor == "/" || ancestor == "" || ptr == ancestor {
		return true
	}
	return strings.HasPrefix(ptr, ancestor+"/")
}

// Pointers enumerates every pointer of a canonical value, root included, sorted.
func Pointers(v any) []string {
	var out []string
	var walk func(node any, ptr string)
	walk = func(node any, ptr string) {
		out = append(out, ptr)
		switch t := node.(type) {
		case map[string]any:
			for k, child := range t {
				walk(child, JoinPointer(ptr, k))
			}
		case []any:
			for i, child := range t {
				walk(child, JoinPointer(ptr, strconv.Itoa(i)))
			}
		}
	}
	walk(v, "/")
	sort.Strings(out)
	return out
}
