package dsl

import "sort"

// Diagnostic is one structured validation error.
type Diagnostic struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Ptr     string         `json:"ptr"`
	Details map[string]any `json:"details,omitempty"`
}

// Result is the outcome of validating one spec.
type Result struct {
	OK     bool         `json:"ok"`
	Levels []int        `json:"levels"`
	Errors []Diagnostic `json:"errors"`
}

// Codes returns the distinct error codes in sorted order.
func (r Result) Codes() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range r.Errors {
		if !seen[d.Code] {
			seen[d.Code] = true
			out = append(out, d.Code)
		}
	}
	sort.Strings(out)
	return out
}

func sortDiagnostics(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Ptr != ds[j].Ptr {
			return ds[i].Ptr < ds[j].Ptr
		}
		if ds[i].Code != ds[j].Code {
			return ds[i].Code < ds[j].Code
		}
		return ds[i].Message < ds[j].Message
	})
}
