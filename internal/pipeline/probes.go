package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/gates"
	"github.com/marcohefti/specc/internal/ingest"
)

// Readiness probe names.
const (
	ProbeDeterminismReplay = "determinism_replay"
	ProbeSpecFuzz          = "spec_fuzz_stability"
	ProbeTestsAttached     = "tests_attached"
	ProbePersonaAdvisory   = "persona_advisory"
)

// probes returns the readiness checks for run. Nested compilations never
// evaluate readiness themselves.
func (e *Engine) probes(rc RunContext, in compileInput, run *Run, fuzzSeed string) []gates.Probe {
	inner := &Engine{Version: e.Version}
	nested := rc
	nested.Recorder = nil
	nested.Persona = nil
	nested.PersonaLog = nil
	nested.Seeds = run.Seeds

	return []gates.Probe{
		{
			Name:     ProbeDeterminismReplay,
			Blocking: true,
			Check: func(ctx context.Context) (bool, string) {
				again, err := inner.compile(ctx, nested, compileInput{spec: in.spec, lines: in.lines})
				if err != nil {
					return false, "recompile failed: " + err.Error()
				}
				want, err := canon.JSON(run.Gates.Items)
				if err != nil {
					return false, err.Error()
				}
				got, err := canon.JSON(again.Gates.Items)
				if err != nil {
					return false, err.Error()
				}
				if !bytes.Equal(want, got) {
					return false, fmt.Sprintf("recompiled items differ: %s != %s", canon.Short(canon.SHA256Hex(want), 12), canon.Short(canon.SHA256Hex(got), 12))
				}
				return true, "recompiled items are byte identical"
			},
		},
		{
			Name:     ProbeSpecFuzz,
			Blocking: true,
			Check: func(ctx context.Context) (bool, string) {
				return inner.fuzz(ctx, nested, in.spec, run, fuzzSeed)
			},
		},
		{
			Name: ProbeTestsAttached,
			Check: func(context.Context) (bool, string) {
				if key, ok := testsDeclared(in.spec); ok {
					return true, "tests declared under " + key
				}
				return false, "spec declares no tests or ci_contract"
			},
		},
		{
			Name:      ProbePersonaAdvisory,
			PersonaID: ProbePersonaAdvisory,
			Check: func(context.Context) (bool, string) {
				if rc.Persona == nil || len(rc.Persona.Vetoes) == 0 {
					return true, "no persona vetoes"
				}
				return false, fmt.Sprintf("%d persona veto(es) pending", len(rc.Persona.Vetoes))
			},
		},
	}
}

type variant struct {
	name string
	data []byte
	hint string
}

// fuzz re-serializes the canonical spec in other encodings and checks that
// item identity survives each round trip. The seed picks the variant order
// and the JSON indent width.
func (e *Engine) fuzz(ctx context.Context, rc RunContext, spec map[string]any, run *Run, seed string) (bool, string) {
	indent := 2
	if seed != "" {
		indent = 2 + int(seed[0])%3
	}
	var pretty bytes.Buffer
	compact, err := canon.JSON(spec)
	if err != nil {
		return false, err.Error()
	}
	if err := json.Indent(&pretty, compact, "", strings.Repeat(" ", indent)); err != nil {
		return false, err.Error()
	}
	y, err := yaml.Marshal(spec)
	if err != nil {
		return false, "yaml variant: " + err.Error()
	}
	variants := []variant{
		{name: "json_indented", data: pretty.Bytes(), hint: "spec.json"},
		{name: "yaml", data: y, hint: "spec.yaml"},
	}
	if seed != "" && seed[len(seed)-1]%2 == 1 {
		variants[0], variants[1] = variants[1], variants[0]
	}

	want := identityKey(run.Gates.Items)
	for _, v := range variants {
		ing := ingest.Ingest(v.data, v.hint)
		cs, err := canon.Spec(ing.Spec)
		if err != nil {
			return false, v.name + ": " + err.Error()
		}
		again, err := e.compile(ctx, rc, compileInput{spec: cs, lines: ing.Lines})
		if err != nil {
			return false, v.name + ": " + err.Error()
		}
		if got := identityKey(again.Gates.Items); got != want {
			return false, "item identity drifted under " + v.name
		}
	}
	return true, fmt.Sprintf("%d variant(s) stable", len(variants))
}

func identityKey(items []checklist.Item) string {
	pairs := make([]string, 0, len(items))
	for id, text := range checklist.Identity(items) {
		pairs = append(pairs, id+"\x00"+text)
	}
	sort.Strings(pairs)
	return canon.SHA256Hex([]byte(strings.Join(pairs, "\n")))
}

var testKeys = []string{"ci_contract", "tests", "test_plan"}

func testsDeclared(spec map[string]any) (string, bool) {
	for _, k := range testKeys {
		v, ok := spec[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				continue
			}
		case []any:
			if len(t) == 0 {
				continue
			}
		case map[string]any:
			if len(t) == 0 {
				continue
			}
		}
		return k, true
	}
	return "", false
}
