// Package ingest accepts any input buffer and promotes it into a DSL-shaped mapping.
// It never fails on parse errors: unparseable input becomes a prose skeleton.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
	FormatText = "text"

	SkeletonProductID   = "unknown"
	SkeletonSpecVersion = "0.0"
	SkeletonSpecFormat  = "canonical_json_v1"
)

type Result struct {
	Spec         map[string]any
	SourceFormat string
	// Normalized is true when the input was wrapped or promoted rather than used as authored.
	Normalized bool
	// SectionsAdapted is true when a sections mapping was turned into a sequence.
	SectionsAdapted bool
	// Lines maps pointers to 1-based source lines when the parser exposes them.
	Lines map[string]int
}

var errNotMapping = errors.New("top-level value is not a mapping")

// Ingest parses data as JSON, YAML, then TOML; the first parser yielding a
// mapping wins. A path hint with a prose extension skips structured parsing.
func Ingest(data []byte, pathHint string) Result {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !isProseHint(pathHint) {
		if m, err := parseJSON(data); err == nil {
			return promote(m, FormatJSON, lineMap(data))
		}
		if m, err := parseYAML(data); err == nil {
			return promote(m, FormatYAML, lineMap(data))
		}
		if m, err := parseTOML(data); err == nil {
			return promote(m, FormatTOML, nil)
		}
	}
	return Result{
		Spec:         Skeleton(FormatText, normalizeText(data)),
		SourceFormat: FormatText,
		Normalized:   true,
		Lines:        map[string]int{},
	}
}

// Skeleton is the minimal DSL wrapper used for inputs that are not schema shaped.
func Skeleton(sourceFormat, sourceMaterial string) map[string]any {
	return map[string]any{
		"metadata": map[string]any{
			"product_id":      SkeletonProductID,
			"spec_version":    SkeletonSpecVersion,
			"spec_format":     SkeletonSpecFormat,
			"normalized":      true,
			"source_format":   sourceFormat,
			"source_material": sourceMaterial,
		},
		"model":    map[string]any{},
		"sections": []any{},
	}
}

// ResemblesDSL reports whether a structured parse already has the DSL core keys.
func ResemblesDSL(m map[string]any) bool {
	_, hasModel := m["model"]
	_, hasSections := m["sections"]
	return hasModel && hasSections
}

func promote(m map[string]any, format string, lines map[string]int) Result {
	res := Result{Spec: m, SourceFormat: format, Lines: lines}
	if res.Lines == nil {
		res.Lines = map[string]int{}
	}
	if sections, ok := m["sections"].(map[string]any); ok {
		m["sections"] = AdaptSections(sections)
		res.SectionsAdapted = true
		for ptr := range res.Lines {
			if strings.HasPrefix(ptr, "/sections/") {
				delete(res.Lines, ptr)
			}
		}
	}
	if ResemblesDSL(m) {
		return res
	}

	res.Normalized = true
	md, ok := m["metadata"].(map[string]any)
	if !ok {
		md = map[string]any{}
		m["metadata"] = md
	}
	setDefault(md, "product_id", SkeletonProductID)
	setDefault(md, "spec_version", SkeletonSpecVersion)
	setDefault(md, "spec_format", SkeletonSpecFormat)
	md["normalized"] = true
	md["source_format"] = format
	setDefault(m, "model", map[string]any{})
	setDefault(m, "sections", []any{})
	return res
}

// AdaptSections turns a sections mapping into a sequence of {id, tasks}, sorted by key.
func AdaptSections(sections map[string]any) []any {
	keys := make([]string, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		switch v := sections[k].(type) {
		case map[string]any:
			entry := make(map[string]any, len(v)+1)
			for ck, cv := range v {
				entry[ck] = cv
			}
			setDefault(entry, "id", k)
			if _, ok := entry["tasks"]; !ok {
				entry["tasks"] = []any{}
			}
			out = append(out, entry)
		case []any:
			out = append(out, map[string]any{"id": k, "tasks": v})
		case nil:
			out = append(out, map[string]any{"id": k, "tasks": []any{}})
		default:
			out = append(out, map[string]any{"id": k, "tasks": []any{v}})
		}
	}
	return out
}

func setDefault(m map[string]any, key string, v any) {
	if _, ok := m[key]; !ok {
		m[key] = v
	}
}

func parseJSON(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after json value")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errNotMapping
	}
	return m, nil
}

func parseYAML(data []byte) (map[string]any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, errNotMapping
			}
			out[ks] = val
		}
		return out, nil
	default:
		return nil, errNotMapping
	}
}

func parseTOML(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errNotMapping
	}
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errNotMapping
	}
	return m, nil
}

func isProseHint(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".md", ".markdown", ".rst":
		return true
	default:
		return false
	}
}

func normalizeText(data []byte) string {
	s := string(data)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
