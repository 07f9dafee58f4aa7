// Package dsl holds the frozen spec schema and the layered schema validator.
package dsl

// FieldType is the expected JSON type of a schema field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldArray  FieldType = "array"
	FieldObject FieldType = "object"
	// FieldScalar accepts a string or a number.
	FieldScalar FieldType = "scalar"
	// FieldAny accepts any type, including null.
	FieldAny FieldType = "any"
)

// SchemaField describes one key of the spec. Children apply to object
// members, or to the members of every object element of an array.
type SchemaField struct {
	Name     string
	Type     FieldType
	Required bool
	Children []SchemaField
}

// SchemaVersion identifies the frozen schema below.
const SchemaVersion = "canonical_json_v1"

// Schema is the single frozen DSL schema. Unknown keys are tolerated; they
// are tiered by the checklist compiler, not rejected here.
var Schema = []SchemaField{
	{
		Name: "metadata",
		Type: FieldObject,
		Children: []SchemaField{
			{Name: "product_id", Type: FieldString},
			{Name: "spec_format", Type: FieldString},
			{Name: "version", Type: FieldScalar},
			{Name: "spec_version", Type: FieldScalar},
			{Name: "normalized", Type: FieldBool},
			{Name: "source_format", Type: FieldString},
			{Name: "source_material", Type: FieldString},
			{Name: "float_precision", Type: FieldNumber},
		},
	},
	{Name: "model", Type: FieldObject},
	{
		Name: "sections",
		Type: FieldArray,
		Children: []SchemaField{
			{Name: "id", Type: FieldString, Required: true},
			{Name: "title", Type: FieldString},
			{Name: "tasks", Type: FieldArray},
		},
	},
	{Name: "invariants", Type: FieldArray},
	{Name: "instructions", Type: FieldArray},
	{Name: "agents", Type: FieldAny},
	{Name: "evidence_bundle", Type: FieldAny},
	{Name: "determinism", Type: FieldObject},
	{Name: "artifact_contract", Type: FieldAny},
	{Name: "generation_mappings", Type: FieldAny},
	{Name: "security", Type: FieldAny},
}

// AmbientKeys are keys whose values depend on the machine or the clock.
// A spec carrying them cannot compile deterministically.
var AmbientKeys = []string{"cwd", "env", "generated_at", "hostname", "pid", "run_timestamp"}

// RequiredMetadataFields are checked at strictness level 1. "version" may be
// spelled "spec_version".
var RequiredMetadataFields = []string{"product_id", "spec_format", "version"}
