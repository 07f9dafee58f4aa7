package determinism

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/marcohefti/specc/internal/canon"
)

// CompileFunc recompiles spec with the recorded seeds and returns the
// checklist document that was snapshotted.
type CompileFunc func(ctx context.Context, spec map[string]any, seeds map[string]string) (any, error)

type DiffEntry struct {
	Key    string   `json:"key"`
	ItemID string   `json:"item_id,omitempty"`
	Change string   `json:"change"`
	Fields []string `json:"fields,omitempty"`
}

const (
	ChangeModified = "modified"
	ChangeAdded    = "added"
	ChangeRemoved  = "removed"
)

type ReplayResult struct {
	Match             bool        `json:"match"`
	ExpectedSHA256    string      `json:"expected_sha256"`
	ActualSHA256      string      `json:"actual_sha256"`
	Diff              []DiffEntry `json:"diff"`
	SpecFingerprint   string      `json:"spec_fingerprint"`
	RecordedSeedNames []string    `json:"recorded_seed_names"`
}

type Replayer struct {
	Compile CompileFunc
}

func NewReplayer(compile CompileFunc) *Replayer {
	return &Replayer{Compile: compile}
}

// Replay recompiles snap's spec and compares canonical checklist bytes.
func (r *Replayer) Replay(ctx context.Context, snap Snapshot) (ReplayResult, error) {
	if r == nil || r.Compile == nil {
		return ReplayResult{}, fmt.Errorf("replay: no compile function")
	}
	actualDoc, err := r.Compile(ctx, snap.SpecCanonical, snap.Seeds)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay compile: %w", err)
	}
	actual, err := canon.Generic(actualDoc)
	if err != nil {
		return ReplayResult{}, err
	}
	want, err := canon.JSON(snap.ChecklistCanonical)
	if err != nil {
		return ReplayResult{}, err
	}
	got, err := canon.JSON(actual)
	if err != nil {
		return ReplayResult{}, err
	}

	names := make([]string, 0, len(snap.Seeds))
	for k := range snap.Seeds {
		names = append(names, k)
	}
	sort.Strings(names)
	res := ReplayResult{
		Match:             bytes.Equal(want, got),
		ExpectedSHA256:    canon.SHA256Hex(want),
		ActualSHA256:      canon.SHA256Hex(got),
		Diff:              []DiffEntry{},
		SpecFingerprint:   snap.Fingerprints.Spec,
		RecordedSeedNames: names,
	}
	if !res.Match {
		res.Diff = Diff(snap.ChecklistCanonical, actual)
	}
	return res, nil
}

// Diff reports differences at the smallest useful granularity: top-level keys,
// and for arrays of objects carrying "id", individual items and their fields.
func Diff(expected, actual any) []DiffEntry {
	em, eok := expected.(map[string]any)
	am, aok := actual.(map[string]any)
	if !eok || !aok {
		if reflect.DeepEqual(expected, actual) {
			return []DiffEntry{}
		}
		return []DiffEntry{{Key: "", Change: ChangeModified}}
	}

	keys := map[string]bool{}
	for k := range em {
		keys[k] = true
	}
	for k := range am {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	out := []DiffEntry{}
	for _, k := range sorted {
		ev, inE := em[k]
		av, inA := am[k]
		switch {
		case !inA:
			out = append(out, DiffEntry{Key: k, Change: ChangeRemoved})
		case !inE:
			out = append(out, DiffEntry{Key: k, Change: ChangeAdded})
		case reflect.DeepEqual(ev, av):
		default:
			if items, ok := diffByID(k, ev, av); ok {
				out = append(out, items...)
			} else {
				out = append(out, DiffEntry{Key: k, Change: ChangeModified})
			}
		}
	}
	return out
}

func diffByID(key string, expected, actual any) ([]DiffEntry, bool) {
	ei, ok1 := indexByID(expected)
	ai, ok2 := indexByID(actual)
	if !ok1 || !ok2 {
		return nil, false
	}
	ids := map[string]bool{}
	for id := range ei {
		ids[id] = true
	}
	for id := range ai {
		ids[id] = true
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var out []DiffEntry
	for _, id := range sorted {
		e, inE := ei[id]
		a, inA := ai[id]
		switch {
		case !inA:
			out = append(out, DiffEntry{Key: key, ItemID: id, Change: ChangeRemoved})
		case !inE:
			out = append(out, DiffEntry{Key: key, ItemID: id, Change: ChangeAdded})
		case !reflect.DeepEqual(e, a):
			out = append(out, DiffEntry{Key: key, ItemID: id, Change: ChangeModified, Fields: fieldDiff(e, a)})
		}
	}
	if len(out) == 0 {
		// Same members, different order.
		out = append(out, DiffEntry{Key: key, Change: ChangeModified, Fields: []string{"order"}})
	}
	return out, true
}

func indexByID(v any) (map[string]map[string]any, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]map[string]any, len(arr))
	for _, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		id, ok := m["id"].(string)
		if !ok {
			return nil, false
		}
		if _, dup := out[id]; dup {
			return nil, false
		}
		out[id] = m
	}
	return out, true
}

func fieldDiff(e, a map[string]any) []string {
	var out []string
	for k, v := range e {
		if av, ok := a[k]; !ok || !reflect.DeepEqual(v, av) {
			out = append(out, k)
		}
	}
	for k := range a {
		if _, ok := e[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
