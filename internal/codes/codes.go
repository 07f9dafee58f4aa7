// Package codes is the single registry of error codes, gate ids and CLI codes.
package codes

import "strings"

// Schema and validation diagnostics.
const (
	SpecNotDict              = "spec_not_dict"
	MissingInvariants        = "missing_invariants"
	InvariantsNotSorted      = "invariants_not_sorted"
	MissingInstructions      = "missing_instructions"
	InstructionNotObject     = "instruction_not_object"
	InstructionMissingFields = "instruction_missing_fields"
	DuplicateInstructionID   = "duplicate_instruction_id"
	AmbientState             = "ambient_state"
	SectionsEmpty            = "sections_empty"
	InvariantsEmpty          = "invariants_empty"
	ModelEmpty               = "model_empty"
	MetadataMissingFields    = "metadata_missing_fields"
	SchemaTypeMismatch       = "schema_type_mismatch"
	SchemaSectionShape       = "schema_section_shape"
	NoncanonicalNumber       = "noncanonical_number"

	MissingInAST   = "missing_in_ast"
	MissingPointer = "missing_pointer"
)

// Sync and snapshot collaborator errors.
const (
	SyncMissing       = "sync_missing"
	SyncHashMismatch  = "sync_hash_mismatch"
	SyncTreeMismatch  = "sync_tree_mismatch"
	SyncInvalidFormat = "sync_invalid_format"

	SnapshotMissing  = "snapshot_missing"
	SnapshotInvalid  = "snapshot_invalid"
	SnapshotMismatch = "snapshot_mismatch"
)

// Gate ids. Lexicographic order of these ids decides primary-cause selection.
const (
	GateSchemaValidation        = "G4_SCHEMA_VALIDATION"
	GateASTPointerAudit         = "G5_AST_POINTER_AUDIT"
	GateCoverageEvaluated       = "G14_COVERAGE_EVALUATED"
	GateSufficiencyMustUncover  = "G15_SUFFICIENCY_MUST_UNCOVERED"
	GateMinimalityInvariant     = "G16_MINIMALITY_INVARIANT_FAILED"
	GateExecutionCycle          = "G17_EXECUTION_CYCLE_DETECTED"
	GateMissingArtifactProducer = "G18_MISSING_ARTIFACT_PRODUCER"
	GatePriorityViolation       = "G19_PRIORITY_VIOLATION_DETECTED"
	GateQualityFailed           = "G20_QUALITY_GATE_FAILED"
	GateChecklistModelErrors    = "G21_CHECKLIST_MODEL_VALIDATION_ERRORS"
	GateImplementabilityVerdict = "G22_IMPLEMENTABILITY_VERDICT"
	GateReadinessPrefix         = "G23_READINESS_"
	GatePersonaMutationDenied   = "G24_PERSONA_MUTATION_DENIED"
	GatePersonaVeto             = "G25_PERSONA_VETO"
	GateInternalDerivation      = "G_INTERNAL_DERIVATION_FAILURE"

	tierAMissingPrefix       = "G_TIER_A_MISSING_"
	tierBMissingPrefix       = "G_TIER_B_MISSING_"
	synthesizedDefaultPrefix = "G_SYNTHESIZED_DEFAULT_"
)

func TierAMissing(key string) string       { return tierAMissingPrefix + gateSuffix(key) }
func TierBMissing(key string) string       { return tierBMissingPrefix + gateSuffix(key) }
func SynthesizedDefault(key string) string { return synthesizedDefaultPrefix + gateSuffix(key) }
func Readiness(name string) string         { return GateReadinessPrefix + gateSuffix(name) }

// SynthesizedKey returns the lowercase key named by a G_SYNTHESIZED_DEFAULT_* gate id.
func SynthesizedKey(gateID string) (string, bool) {
	if !strings.HasPrefix(gateID, synthesizedDefaultPrefix) {
		return "", false
	}
	return strings.ToLower(strings.TrimPrefix(gateID, synthesizedDefaultPrefix)), true
}

func IsTierAMissing(gateID string) bool { return strings.HasPrefix(gateID, tierAMissingPrefix) }

func IsSynthesizedDefault(gateID string) bool {
	return strings.HasPrefix(gateID, synthesizedDefaultPrefix)
}

func gateSuffix(key string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(key), "-", "_"))
}

// CLI codes printed on stderr.
const (
	Usage            = "SPECC_E_USAGE"
	IO               = "SPECC_E_IO"
	InvalidJSON      = "SPECC_E_INVALID_JSON"
	MissingArtifact  = "SPECC_E_MISSING_ARTIFACT"
	HashMismatch     = "SPECC_E_HASH_MISMATCH"
	Containment      = "SPECC_E_CONTAINMENT"
	FatalAssertion   = "SPECC_E_FATAL_ASSERTION"
	DeterminismDrift = "SPECC_E_DETERMINISM_MISMATCH"
	Validation       = "SPECC_E_VALIDATION"
)

// Process exit codes.
const (
	ExitOK                  = 0
	ExitValidationFailure   = 1
	ExitDeterminismMismatch = 2
	ExitFatalAssertion      = 3
)
