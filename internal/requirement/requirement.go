// Package requirement finds normative sentences in prose and string leaves.
//
// The scan is line based and never joins lines. Ids are pure functions of
// (pointer, normalized text), so extraction is a pure function of the input.
package requirement

import (
	"regexp"
	"sort"
	"strings"

	"github.com/marcohefti/specc/internal/ast"
	"github.com/marcohefti/specc/internal/canon"
)

type Level string

const (
	MUST   Level = "MUST"
	SHOULD Level = "SHOULD"
	MAY    Level = "MAY"
)

const (
	StrengthStructural = "structural"
	StrengthGovernance = "governance"
	StrengthBehavioral = "behavioral"
)

// SourceMaterialPtr is the pointer of the raw prose kept by the ingestor.
const SourceMaterialPtr = "/metadata/source_material"

type Requirement struct {
	ID          string `json:"id"`
	Level       Level  `json:"level"`
	Text        string `json:"text"`
	Normalized  string `json:"normalized_text"`
	Ptr         string `json:"ptr"`
	ExcerptHash string `json:"excerpt_hash"`
	Strength    string `json:"strength"`
	// Line is 1-based within the scanned text.
	Line int `json:"line"`
	// Structured is true when the sentence came from a string leaf rather than source_material.
	Structured bool `json:"structured"`
}

// IsStructuralDump reports fallback-extractor artifacts: text that starts with "{".
func (r Requirement) IsStructuralDump() bool {
	return strings.HasPrefix(strings.TrimSpace(r.Text), "{")
}

var modality = []struct {
	level Level
	re    *regexp.Regexp
}{
	{MUST, regexp.MustCompile(`\b(every run must|must|shall|requires|mandatory|enforced)\b`)},
	{SHOULD, regexp.MustCompile(`\b(should|recommended|expected)\b`)},
	{MAY, regexp.MustCompile(`\b(may|optional|allowed)\b`)},
}

var (
	reStructural = regexp.MustCompile(`determin|artifact|signature|refuse|refusal|safety|no-touch`)
	reGovernance = regexp.MustCompile(`policy|govern|enforce|blocking|contract|tests`)
	reBehavioral = regexp.MustCompile(`runtime|behavior|performance|response`)

	reSectionNumber = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?(?:\s+|$)`)
	reExample       = regexp.MustCompile(`^(e\.g\.|eg:|example\b|examples\b|for example\b|sample\b)`)
)

// Classify returns the modality level of a normalized sentence.
func Classify(normalized string) (Level, bool) {
	for _, m := range modality {
		if m.re.MatchString(normalized) {
			return m.level, true
		}
	}
	return "", false
}

// Strength buckets a normalized sentence.
func Strength(normalized string) string {
	switch {
	case reStructural.MatchString(normalized):
		return StrengthStructural
	case reGovernance.MatchString(normalized):
		return StrengthGovernance
	case reBehavioral.MatchString(normalized):
		return StrengthBehavioral
	default:
		return StrengthStructural
	}
}

// FromTree scans source_material as prose and every other string leaf as a
// structured field. Prose and structured sentences share one excerpt hash space.
func FromTree(t *ast.Tree) []Requirement {
	var out []Requirement
	t.Walk(func(n *ast.Node) bool {
		if n.Type != ast.TypeString {
			return true
		}
		s, _ := n.Value.(string)
		if n.Ptr == SourceMaterialPtr {
			out = append(out, scan(s, "", false)...)
		} else {
			out = append(out, scan(s, n.Ptr, true)...)
		}
		return true
	})
	return Finalize(out)
}

// FromProse scans free text. Numbered prefixes set /section/<n>; sentences
// before any numbered prefix get "/".
func FromProse(text string) []Requirement {
	return Finalize(scan(text, "", false))
}

// Finalize drops duplicate (ptr, excerpt_hash) pairs and sorts by (ptr, excerpt_hash).
func Finalize(reqs []Requirement) []Requirement {
	sort.SliceStable(reqs, func(i, j int) bool {
		if reqs[i].Ptr != reqs[j].Ptr {
			return reqs[i].Ptr < reqs[j].Ptr
		}
		if reqs[i].ExcerptHash != reqs[j].ExcerptHash {
			return reqs[i].ExcerptHash < reqs[j].ExcerptHash
		}
		return reqs[i].Line < reqs[j].Line
	})
	out := reqs[:0]
	for i, r := range reqs {
		if i > 0 && r.Ptr == reqs[i-1].Ptr && r.ExcerptHash == reqs[i-1].ExcerptHash {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return []Requirement{}
	}
	return out
}

// scan reads text line by line. A fixed ptr pins every sentence to a leaf;
// an empty ptr enables section tracking.
func scan(text, fixedPtr string, structured bool) []Requirement {
	var out []Requirement
	section := "/"
	inFence := false
	for i, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || line == "" {
			continue
		}

		heading := strings.HasPrefix(line, "#")
		body := strings.TrimSpace(strings.TrimLeft(line, "#"))
		if m := reSectionNumber.FindStringSubmatch(body); m != nil {
			if fixedPtr == "" {
				section = "/section/" + m[1]
			}
			body = strings.TrimSpace(body[len(m[0]):])
		}
		body = strings.TrimSpace(strings.TrimLeft(body, "-*•> "))
		if heading || body == "" || strings.HasSuffix(body, ":") {
			continue
		}
		if reExample.MatchString(strings.ToLower(body)) {
			continue
		}

		ptr := section
		if fixedPtr != "" {
			ptr = fixedPtr
		}
		for _, sentence := range splitSentences(body) {
			normalized := Normalize(sentence)
			if len(strings.Fields(normalized)) <= 3 {
				continue
			}
			level, ok := Classify(normalized)
			if !ok {
				continue
			}
			out = append(out, Requirement{
				ID:          canon.Short(ptr+normalized, 12),
				Level:       level,
				Text:        strings.TrimSpace(sentence),
				Normalized:  normalized,
				Ptr:         ptr,
				ExcerptHash: canon.Short(normalized, 12),
				Strength:    Strength(normalized),
				Line:        i + 1,
				Structured:  structured,
			})
		}
	}
	return out
}

// splitSentences breaks a line after '.', '!' or '?' followed by whitespace.
func splitSentences(line string) []string {
	var out []string
	runes := []rune(line)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\t') {
				if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// Index maps requirement ids to requirements.
func Index(reqs []Requirement) map[string]Requirement {
	m := make(map[string]Requirement, len(reqs))
	for _, r := range reqs {
		m[r.ID] = r
	}
	return m
}

// Counts returns the number of requirements per level.
func Counts(reqs []Requirement) map[Level]int {
	out := map[Level]int{MUST: 0, SHOULD: 0, MAY: 0}
	for _, r := range reqs {
		out[r.Level]++
	}
	return out
}
