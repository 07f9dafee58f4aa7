package gates

import (
	"context"
	"sort"

	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/events"
)

type MissingArtifact struct {
	ItemID   string `json:"item_id"`
	Artifact string `json:"artifact"`
}

type ArtifactReport struct {
	OK       bool              `json:"ok"`
	Produced []string          `json:"produced"`
	Missing  []MissingArtifact `json:"missing"`
}

// ArtifactProducerGate refuses when an item requires an artifact that no
// other item produces.
type ArtifactProducerGate struct{}

func (g *ArtifactProducerGate) ID() string   { return codes.GateMissingArtifactProducer }
func (g *ArtifactProducerGate) Name() string { return "artifact_producers" }

func (g *ArtifactProducerGate) Run(_ context.Context, st *State) *Result {
	res := newResult(g)
	producers := map[string]map[string]bool{}
	for _, it := range st.Items {
		for _, a := range it.ProducesArtifacts {
			if producers[a] == nil {
				producers[a] = map[string]bool{}
			}
			producers[a][it.ID] = true
		}
	}
	rep := ArtifactReport{OK: true, Produced: []string{}, Missing: []MissingArtifact{}}
	for a := range producers {
		rep.Produced = append(rep.Produced, a)
	}
	sort.Strings(rep.Produced)

	for _, it := range st.Items {
		for _, a := range it.RequiresArtifacts {
			found := false
			for p := range producers[a] {
				if p != it.ID {
					found = true
					break
				}
			}
			if !found {
				rep.Missing = append(rep.Missing, MissingArtifact{ItemID: it.ID, Artifact: a})
			}
		}
	}
	sort.Slice(rep.Missing, func(i, j int) bool {
		if rep.Missing[i].ItemID != rep.Missing[j].ItemID {
			return rep.Missing[i].ItemID < rep.Missing[j].ItemID
		}
		return rep.Missing[i].Artifact < rep.Missing[j].Artifact
	})
	st.Artifacts = rep
	res.Metrics["produced"] = len(rep.Produced)
	res.Metrics["missing"] = len(rep.Missing)
	if len(rep.Missing) == 0 {
		return res
	}

	st.Artifacts.OK = false
	res.Pass = false
	list := make([]any, 0, len(rep.Missing))
	for _, m := range rep.Missing {
		res.Reasons = append(res.Reasons, m.ItemID+":"+m.Artifact)
		list = append(list, map[string]any{"item_id": m.ItemID, "artifact": m.Artifact})
	}
	st.Recorder.RecordRefusal(g.ID(), events.PhasePostGeneration,
		"required artifacts have no producer",
		events.RefusalEvidence(events.AuthorityGovernance, "missing_artifact_producer", "artifact_contract", "every required artifact needs a producing item"),
		map[string]any{"missing": list})
	return res
}
