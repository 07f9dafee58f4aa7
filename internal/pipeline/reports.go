package pipeline

import (
	"sort"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/coverage"
	"github.com/marcohefti/specc/internal/dsl"
	"github.com/marcohefti/specc/internal/events"
	"github.com/marcohefti/specc/internal/gates"
	"github.com/marcohefti/specc/internal/minimality"
	"github.com/marcohefti/specc/internal/requirement"
	"github.com/marcohefti/specc/internal/verdict"
)

// Report file names.
const (
	FileChecklist        = "checklist.json"
	FileChecklistDraft   = "checklist_draft.json"
	FileRequirements     = "requirements.json"
	FileCoverage         = "spec_coverage.json"
	FileSufficiency      = "checklist_sufficiency.json"
	FileQuality          = "checklist_quality.json"
	FileExecutionPlan    = "checklist_execution_plan.json"
	FileCompleteness     = "requirement_completeness.json"
	FileVerdict          = "implementability_verdict.json"
	FileReadiness        = "readiness_trace.json"
	FileFeedback         = "spec_feedback.json"
	FileSuppressedSignal = "suppressed_signal_report.json"
	FileSilence          = "silence_justification.json"
	FileErrors           = "errors.json"
	FileSummary          = "summary.json"
	FileGovernanceBundle = "governance_bundle.json"
	FileAuditIndex       = "audit_index.json"
	FileManifest         = "manifest.json"
	FileSnapshot         = "determinism_snapshot.json"
)

// verdictInputs are the reports the verdict reads; their hashes become proof
// references.
var verdictInputs = []string{FileCoverage, FileSufficiency, FileQuality, FileExecutionPlan}

// ChecklistFile is checklist_draft.json for failed runs.
func (r *Run) ChecklistFile() string {
	if r.Failed() {
		return FileChecklistDraft
	}
	return FileChecklist
}

type RequirementsDoc struct {
	Requirements []requirement.Requirement `json:"requirements"`
	Counts       map[requirement.Level]int `json:"counts"`
	Total        int                       `json:"total"`
}

type QualityDoc struct {
	Quality     gates.QualityReport `json:"quality"`
	Minimality  minimality.Report   `json:"minimality"`
	GateResults []gates.Result      `json:"gate_results"`
}

type ExecutionPlanDoc struct {
	ExecutionPlan gates.Plan           `json:"execution_plan"`
	Artifacts     gates.ArtifactReport `json:"artifacts"`
	Priority      gates.PriorityReport `json:"priority"`
}

type CompletenessEntry struct {
	ID               string            `json:"id"`
	Level            requirement.Level `json:"level"`
	Text             string            `json:"text"`
	Ptr              string            `json:"ptr"`
	Status           coverage.Status   `json:"status"`
	ChecklistItemIDs []string          `json:"checklist_item_ids"`
}

type CompletenessDoc struct {
	Requirements      []CompletenessEntry `json:"requirements"`
	MustCount         int                 `json:"must_count"`
	RequiredMustCount int                 `json:"required_must_count"`
	// MeetsRequiredMustCount is advisory.
	MeetsRequiredMustCount bool     `json:"meets_required_must_count"`
	UncoveredMustIDs       []string `json:"uncovered_must_ids"`
}

type SuggestedEdit struct {
	Ptr        string `json:"ptr"`
	Code       string `json:"code"`
	Suggestion string `json:"suggestion"`
	Impact     int    `json:"impact"`
}

type FeedbackDoc struct {
	ValidityStatus     string          `json:"validity_status"`
	ConversionState    string          `json:"conversion_state"`
	StateReason        string          `json:"state_reason"`
	SuggestedNextEdits []SuggestedEdit `json:"suggested_next_edits"`
}

type SuppressedSignalDoc struct {
	Reason          string                    `json:"reason"`
	ValidationCodes []string                  `json:"validation_codes"`
	MustSentences   []string                  `json:"must_sentences"`
	Requirements    []requirement.Requirement `json:"requirements"`
}

type SilenceDoc struct {
	Reason            string   `json:"reason"`
	RequirementsCount int      `json:"requirements_count"`
	ValidationCodes   []string `json:"validation_codes"`
}

type ErrorsDoc struct {
	Errors []dsl.Diagnostic `json:"errors"`
	Codes  []string         `json:"codes"`
}

// buildReports fills r.Reports and r.Verdict. The verdict is computed last so
// its proof references hash the exact bytes of the reports it read.
func (r *Run) buildReports() error {
	reps := map[string]any{
		r.ChecklistFile(): r.Checklist,
		FileRequirements: RequirementsDoc{
			Requirements: r.Requirements,
			Counts:       requirement.Counts(r.Requirements),
			Total:        len(r.Requirements),
		},
		FileCoverage:    r.Coverage,
		FileSufficiency: r.Sufficiency,
		FileQuality: QualityDoc{
			Quality:     r.Gates.Quality,
			Minimality:  r.Minimality,
			GateResults: r.Gates.Results,
		},
		FileExecutionPlan: ExecutionPlanDoc{
			ExecutionPlan: r.Gates.Plan,
			Artifacts:     r.Gates.Artifacts,
			Priority:      r.Gates.Priority,
		},
		FileCompleteness: r.completeness(),
	}
	if r.Readiness != nil {
		reps[FileReadiness] = *r.Readiness
	}
	if r.Failed() {
		reps[FileFeedback] = r.feedback()
		reps[FileErrors] = r.errorsDoc()
		if len(r.Requirements) > 0 {
			reps[FileSuppressedSignal] = r.suppressedSignal()
		}
	}
	if len(r.Checklist.Items) == 0 {
		reps[FileSilence] = SilenceDoc{
			Reason:            silenceReason(r),
			RequirementsCount: len(r.Requirements),
			ValidationCodes:   nonNil(r.Validation.Codes()),
		}
	}

	proofs := map[string]string{}
	for _, name := range verdictInputs {
		b, err := canon.Indented(reps[name])
		if err != nil {
			return err
		}
		proofs[name] = canon.SHA256Hex(b)
	}
	r.Verdict = verdict.Aggregate(verdict.Input{
		Sufficiency:     r.Sufficiency,
		Coverage:        r.Coverage,
		Quality:         r.Gates.Quality,
		Plan:            r.Gates.Plan,
		Artifacts:       r.Gates.Artifacts,
		Priority:        r.Gates.Priority,
		ProofReferences: proofs,
	})
	reps[FileVerdict] = r.Verdict
	r.Reports = reps
	return nil
}

func (r *Run) completeness() CompletenessDoc {
	byID := map[string]coverage.Record{}
	for _, rec := range r.Coverage.Records {
		byID[rec.RequirementID] = rec
	}
	doc := CompletenessDoc{
		Requirements:      make([]CompletenessEntry, 0, len(r.Requirements)),
		RequiredMustCount: r.Options.RequiredMustCount,
		UncoveredMustIDs:  nonNil(r.Sufficiency.UncoveredMustIDs),
	}
	for _, req := range r.Requirements {
		rec := byID[req.ID]
		status := rec.Status
		if status == "" {
			status = coverage.Missing
		}
		doc.Requirements = append(doc.Requirements, CompletenessEntry{
			ID:               req.ID,
			Level:            req.Level,
			Text:             req.Text,
			Ptr:              req.Ptr,
			Status:           status,
			ChecklistItemIDs: nonNil(rec.ChecklistItemIDs),
		})
		if req.Level == requirement.MUST {
			doc.MustCount++
		}
	}
	doc.MeetsRequiredMustCount = doc.MustCount >= doc.RequiredMustCount
	return doc
}

// Impact of a suggested edit; higher sorts first.
var diagnosticImpact = map[string]int{
	codes.SpecNotDict:           100,
	codes.SectionsEmpty:         90,
	codes.MissingInstructions:   80,
	codes.MissingInvariants:     80,
	codes.MetadataMissingFields: 70,
	codes.AmbientState:          70,
}

var diagnosticSuggestion = map[string]string{
	codes.SpecNotDict:           "Rewrite the spec as a mapping with metadata, model and sections.",
	codes.SectionsEmpty:         "Move the obligations into sections[].tasks with one id and text per task.",
	codes.MissingInstructions:   "Add an instructions list, even if empty.",
	codes.MissingInvariants:     "Add an invariants list, even if empty.",
	codes.MetadataMissingFields: "Fill metadata.product_id, metadata.spec_format and metadata.version.",
	codes.AmbientState:          "Remove machine or clock dependent keys from the spec.",
}

func (r *Run) feedback() FeedbackDoc {
	var edits []SuggestedEdit
	for _, d := range r.Validation.Errors {
		impact, ok := diagnosticImpact[d.Code]
		if !ok {
			impact = 60
		}
		s, ok := diagnosticSuggestion[d.Code]
		if !ok {
			s = d.Message
		}
		edits = append(edits, SuggestedEdit{Ptr: d.Ptr, Code: d.Code, Suggestion: s, Impact: impact})
	}
	for _, e := range r.Final.Checklist.Events {
		if e.IsPersona() {
			continue
		}
		switch {
		case e.GateID == codes.GateChecklistModelErrors:
			edits = append(edits, SuggestedEdit{Ptr: "/sections", Code: e.GateID, Suggestion: "Give every task a unique id.", Impact: 95})
		case codes.IsTierAMissing(e.GateID):
			key, _ := e.Evidence["key"].(string)
			edits = append(edits, SuggestedEdit{Ptr: canon.JoinPointer("", key), Code: e.GateID, Suggestion: "Declare the top-level key " + key + ".", Impact: 85})
		}
	}
	reqs := requirement.Index(r.Requirements)
	for _, id := range r.Sufficiency.UncoveredMustIDs {
		req := reqs[id]
		edits = append(edits, SuggestedEdit{
			Ptr:        req.Ptr,
			Code:       codes.GateSufficiencyMustUncover,
			Suggestion: "Add a task that implements: " + req.Text,
			Impact:     75,
		})
	}
	sort.SliceStable(edits, func(i, j int) bool {
		a, b := edits[i], edits[j]
		if a.Impact != b.Impact {
			return a.Impact > b.Impact
		}
		if a.Ptr != b.Ptr {
			return a.Ptr < b.Ptr
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Suggestion < b.Suggestion
	})
	if edits == nil {
		edits = []SuggestedEdit{}
	}
	return FeedbackDoc{
		ValidityStatus:     r.ValidityStatus,
		ConversionState:    string(r.Conversion.State),
		StateReason:        r.Conversion.Reason,
		SuggestedNextEdits: edits,
	}
}

func (r *Run) errorsDoc() ErrorsDoc {
	errs := append([]dsl.Diagnostic{}, r.Validation.Errors...)
	for _, e := range r.Final.Checklist.Events {
		if e.GateID == codes.GateChecklistModelErrors && e.Outcome == events.Refusal {
			errs = append(errs, dsl.Diagnostic{Code: e.GateID, Message: e.Message, Ptr: "/sections", Details: e.Evidence})
		}
	}
	seen := map[string]bool{}
	var cs []string
	for _, d := range errs {
		if !seen[d.Code] {
			seen[d.Code] = true
			cs = append(cs, d.Code)
		}
	}
	sort.Strings(cs)
	return ErrorsDoc{Errors: errs, Codes: nonNil(cs)}
}

func (r *Run) suppressedSignal() SuppressedSignalDoc {
	var musts []string
	for _, req := range r.Requirements {
		if req.Level == requirement.MUST {
			musts = append(musts, req.Text)
		}
	}
	return SuppressedSignalDoc{
		Reason:          "validation_failed",
		ValidationCodes: nonNil(r.Validation.Codes()),
		MustSentences:   nonNil(musts),
		Requirements:    r.Requirements,
	}
}

func silenceReason(r *Run) string {
	switch {
	case r.InputEmpty:
		return "input_empty"
	case len(r.Requirements) == 0:
		return "no_obligations_found"
	default:
		return "no_items_compiled"
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
