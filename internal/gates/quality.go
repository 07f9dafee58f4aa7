package gates

import (
	"context"
	"sort"

	"github.com/marcohefti/specc/internal/checklist"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/requirement"
)

// QualityThreshold is the lowest passing score.
const QualityThreshold = 60

const (
	tierAPenalty       = 30
	tierACap           = 90
	defaultPenalty     = 10
	defaultCap         = 50
	insufficiencyCost  = 5
	insufficiencyCap   = 50
	lowSignalMinTokens = 2
)

type Deductions struct {
	TierAMissing        int `json:"tier_a_missing"`
	SynthesizedDefaults int `json:"synthesized_defaults"`
	Insufficiency       int `json:"insufficiency"`
}

type QualityReport struct {
	Score            int        `json:"score"`
	Threshold        int        `json:"threshold"`
	Passed           bool       `json:"passed"`
	Deductions       Deductions `json:"deductions"`
	TierABlockers    int        `json:"tier_a_blockers"`
	SynthesizedKeys  []string   `json:"synthesized_default_keys"`
	InsufficiencyN   int        `json:"insufficiency_diagnostics"`
	LowSignalItemIDs []string   `json:"low_signal_item_ids"`
}

// Score computes the 0-100 checklist quality from the events recorded so far.
// Persona events never count.
func Score(evs []events.Event) QualityReport {
	rep := QualityReport{Threshold: QualityThreshold, SynthesizedKeys: []string{}, LowSignalItemIDs: []string{}}
	keys := map[string]bool{}
	for _, e := range evs {
		if e.IsPersona() {
			continue
		}
		switch {
		case e.Outcome == events.Blocker && codes.IsTierAMissing(e.GateID):
			rep.TierABlockers++
		case e.Outcome == events.Blocker && codes.IsSynthesizedDefault(e.GateID):
			if k, ok := codes.SynthesizedKey(e.GateID); ok {
				keys[k] = true
			}
		case e.GateID == codes.GateSufficiencyMustUncover:
			rep.InsufficiencyN++
		}
	}
	for k := range keys {
		rep.SynthesizedKeys = append(rep.SynthesizedKeys, k)
	}
	sort.Strings(rep.SynthesizedKeys)

	rep.Deductions = Deductions{
		TierAMissing:        min(rep.TierABlockers*tierAPenalty, tierACap),
		SynthesizedDefaults: min(len(rep.SynthesizedKeys)*defaultPenalty, defaultCap),
		Insufficiency:       min(rep.InsufficiencyN*insufficiencyCost, insufficiencyCap),
	}
	rep.Score = max(0, 100-rep.Deductions.TierAMissing-rep.Deductions.SynthesizedDefaults-rep.Deductions.Insufficiency)
	rep.Passed = rep.Score >= QualityThreshold
	return rep
}

// LowSignal reports whether a P0/P1 item says too little to act on.
func LowSignal(it checklist.Item) bool {
	if it.Priority != checklist.PriorityP0 && it.Priority != checklist.PriorityP1 {
		return false
	}
	return len(requirement.Tokens(requirement.Normalize(it.Text))) < lowSignalMinTokens
}

// QualityGate scores the checklist, flags low-signal items and refuses below
// the threshold.
type QualityGate struct{}

func (g *QualityGate) ID() string   { return codes.GateQualityFailed }
func (g *QualityGate) Name() string { return "quality" }

func (g *QualityGate) Run(_ context.Context, st *State) *Result {
	res := newResult(g)
	rep := Score(st.Recorder.Events())
	for i := range st.Items {
		if LowSignal(st.Items[i]) {
			st.Items[i].Meta.LowSignal = true
			rep.LowSignalItemIDs = append(rep.LowSignalItemIDs, st.Items[i].ID)
		}
	}
	sort.Strings(rep.LowSignalItemIDs)
	st.Quality = rep
	res.Metrics["score"] = rep.Score
	res.Metrics["low_signal"] = len(rep.LowSignalItemIDs)
	if rep.Passed {
		return res
	}

	res.Pass = false
	res.Reasons = append(res.Reasons, "score_below_threshold")
	st.Recorder.RecordRefusal(g.ID(), events.PhasePostGeneration,
		"checklist quality score below threshold",
		events.RefusalEvidence(events.AuthorityQuality, "quality_below_threshold", "checklist", "the checklist is too weak to implement from"),
		map[string]any{"score": rep.Score, "threshold": rep.Threshold})
	// The plan is already built; the refusal item stays out of it.
	low := checklist.NewQualityLow(rep.Score, g.ID())
	for _, it := range st.Items {
		if it.ID == low.ID {
			return res
		}
	}
	st.Items = append(st.Items, low)
	return res
}
