package checklist

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/marcohefti/specc/internal/ast"
	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/logging"
	"github.com/marcohefti/specc/internal/requirement"
)

var tracer = otel.Tracer("specc.checklist")

// lineModulus bounds synthesized evidence line numbers.
const lineModulus = 997

type Input struct {
	// Spec must be canonical.
	Spec         map[string]any
	Tree         *ast.Tree
	Requirements []requirement.Requirement
	// Lines maps pointers to real source lines when the input format had them.
	Lines map[string]int
	// LineSeed feeds the synthesized line numbers of pointers missing from Lines.
	LineSeed string
	Recorder *events.Recorder
	// Clock is used only for pass timings. Nil disables timings.
	Clock  func() time.Time
	Logger *logging.Logger
}

type Stats struct {
	ItemCount  int            `json:"item_count"`
	BySource   map[string]int `json:"by_source"`
	ByCategory map[string]int `json:"by_category"`
}

type Output struct {
	Items  []Item
	Events []events.Event
	// Bindings maps requirement ids to the ids of the items bound to them, sorted.
	Bindings map[string][]string
	// Timings holds pass durations in milliseconds. Never emitted in artifacts.
	Timings map[string]float64
	Stats   Stats
}

// PassNames lists the compiler passes in execution order.
var PassNames = []string{
	"tier_enforcement",
	"ast_extraction",
	"prose_inference",
	"classification",
	"derived_tasks",
	"normalization",
	"requirement_binding",
	"ordering",
}

type state struct {
	in         Input
	items      []Item
	violations []violation
	bindings   map[string][]string
}

type violation struct {
	parentID    string
	invariantID string
}

// Compile runs every pass in order over in. It never fails: problems become
// events on in.Recorder or coerced fields on items.
func Compile(ctx context.Context, in Input) Output {
	ctx, span := tracer.Start(ctx, "checklist.Compile")
	defer span.End()

	if in.Recorder == nil {
		in.Recorder = events.NewRecorder()
	}
	if in.Tree == nil {
		in.Tree = ast.Build(in.Spec)
	}
	startSeq := len(in.Recorder.Events())
	s := &state{in: in}

	passes := []func(){
		s.enforceTiers,
		s.extract,
		s.inferFromProse,
		s.classifyAll,
		s.deriveTasks,
		s.normalize,
		s.bind,
		s.order,
	}
	timings := map[string]float64{}
	for i, pass := range passes {
		_, pspan := tracer.Start(ctx, "checklist.pass."+PassNames[i])
		var started time.Time
		if in.Clock != nil {
			started = in.Clock()
		}
		pass()
		if in.Clock != nil {
			timings[PassNames[i]] = float64(in.Clock().Sub(started).Microseconds()) / 1000
		}
		pspan.SetAttributes(attribute.Int("checklist.items", len(s.items)))
		pspan.End()
		in.Logger.Debug("checklist pass done", "pass", PassNames[i], "items", len(s.items))
	}

	all := in.Recorder.Events()
	out := Output{
		Items:    s.items,
		Events:   all[startSeq:],
		Bindings: s.bindings,
		Timings:  timings,
		Stats:    statsOf(s.items),
	}
	span.SetAttributes(attribute.Int("checklist.items", len(out.Items)), attribute.Int("checklist.events", len(out.Events)))
	return out
}

func statsOf(items []Item) Stats {
	st := Stats{ItemCount: len(items), BySource: map[string]int{}, ByCategory: map[string]int{}}
	for _, it := range items {
		st.BySource[string(it.Meta.Source)]++
		st.ByCategory[it.Category]++
	}
	return st
}

// sectionOf names the section a pointer belongs to. Entries of the sections
// array use their declared id.
func (s *state) sectionOf(ptr string) string {
	parts := canon.SplitPointer(ptr)
	if len(parts) == 0 {
		return ""
	}
	if parts[0] == "sections" && len(parts) >= 2 {
		if n, ok := s.in.Tree.Find(canon.JoinPointer(canon.JoinPointer("/sections", parts[1]), "id")); ok {
			if id, _ := n.Value.(string); id != "" {
				return id
			}
		}
	}
	return parts[0]
}

// lineFor returns the real source line of ptr, or a stable synthesized one.
func (s *state) lineFor(ptr string) *int {
	if l, ok := s.in.Lines[ptr]; ok && l > 0 {
		return intPtr(l)
	}
	return intPtr(SyntheticLine(s.in.LineSeed, ptr))
}

// SyntheticLine is 1 + (sha256(seed + ptr) mod 997).
func SyntheticLine(seed, ptr string) int {
	sum := sha256.Sum256([]byte(seed + ptr))
	return 1 + int(binary.BigEndian.Uint64(sum[:8])%lineModulus)
}

func (s *state) ids() map[string]bool {
	m := make(map[string]bool, len(s.items))
	for _, it := range s.items {
		m[it.ID] = true
	}
	return m
}
