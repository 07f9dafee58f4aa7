package dsl

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
)

type instructionRecord struct {
	ID     string `json:"id" validate:"required,nonblank"`
	Text   string `json:"text" validate:"required_without=Action"`
	Action string `json:"action"`
}

type metadataRecord struct {
	ProductID  string `json:"product_id" validate:"required,nonblank"`
	SpecFormat string `json:"spec_format" validate:"required,nonblank"`
	Version    string `json:"version" validate:"required,nonblank"`
}

// Validator checks specs against Schema plus the active strictness levels.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

var defaultValidator = NewValidator()

// Validate runs the default validator.
func Validate(spec any, levels []int) Result {
	return defaultValidator.Validate(spec, levels)
}

// Validate always runs the structural checks. Level 1 requires non-empty
// sections, the invariants and instructions keys and the core metadata
// fields; level 2 also requires non-empty invariants and model.
func (val *Validator) Validate(spec any, levels []int) Result {
	res := Result{Levels: append([]int{}, levels...)}
	root, ok := spec.(map[string]any)
	if !ok {
		res.Errors = []Diagnostic{{Code: codes.SpecNotDict, Message: "spec must be a mapping", Ptr: "/"}}
		return res
	}

	var ds []Diagnostic
	ds = append(ds, checkFields(root, Schema, "/")...)
	ds = append(ds, checkAmbient(root)...)
	ds = append(ds, checkInvariantsSorted(root)...)
	ds = append(ds, val.checkInstructions(root)...)

	active := map[int]bool{}
	for _, l := range levels {
		active[l] = true
	}
	if active[1] {
		ds = append(ds, val.levelOne(root)...)
	}
	if active[2] {
		ds = append(ds, levelTwo(root)...)
	}

	sortDiagnostics(ds)
	res.Errors = ds
	res.OK = len(ds) == 0
	return res
}

func (val *Validator) levelOne(root map[string]any) []Diagnostic {
	var ds []Diagnostic
	if sections, _ := root["sections"].([]any); len(sections) == 0 {
		ds = append(ds, Diagnostic{Code: codes.SectionsEmpty, Message: "sections must be a non-empty sequence", Ptr: "/sections"})
	}
	if _, ok := root["invariants"]; !ok {
		ds = append(ds, Diagnostic{Code: codes.MissingInvariants, Message: "invariants key is required", Ptr: "/invariants"})
	}
	if _, ok := root["instructions"]; !ok {
		ds = append(ds, Diagnostic{Code: codes.MissingInstructions, Message: "instructions key is required", Ptr: "/instructions"})
	}

	md, _ := root["metadata"].(map[string]any)
	rec := metadataRecord{
		ProductID:  scalarString(md["product_id"]),
		SpecFormat: scalarString(md["spec_format"]),
		Version:    scalarString(md["version"]),
	}
	if rec.Version == "" {
		rec.Version = scalarString(md["spec_version"])
	}
	if missing := val.failedFields(rec); len(missing) > 0 {
		ds = append(ds, Diagnostic{
			Code:    codes.MetadataMissingFields,
			Message: "metadata is missing " + strings.Join(missing, ", "),
			Ptr:     "/metadata",
			Details: map[string]any{"fields": missing},
		})
	}
	return ds
}

func levelTwo(root map[string]any) []Diagnostic {
	var ds []Diagnostic
	if inv, _ := root["invariants"].([]any); len(inv) == 0 {
		ds = append(ds, Diagnostic{Code: codes.InvariantsEmpty, Message: "invariants must be non-empty at level 2", Ptr: "/invariants"})
	}
	if model, _ := root["model"].(map[string]any); len(model) == 0 {
		ds = append(ds, Diagnostic{Code: codes.ModelEmpty, Message: "model must be non-empty at level 2", Ptr: "/model"})
	}
	return ds
}

func (val *Validator) checkInstructions(root map[string]any) []Diagnostic {
	list, ok := root["instructions"].([]any)
	if !ok {
		return nil
	}
	var ds []Diagnostic
	seen := map[string]string{}
	for i, raw := range list {
		ptr := canon.JoinPointer("/instructions", strconv.Itoa(i))
		m, ok := raw.(map[string]any)
		if !ok {
			ds = append(ds, Diagnostic{Code: codes.InstructionNotObject, Message: "instruction must be an object", Ptr: ptr})
			continue
		}
		rec := instructionRecord{
			ID:     scalarString(m["id"]),
			Text:   scalarString(m["text"]),
			Action: scalarString(m["action"]),
		}
		if missing := val.failedFields(rec); len(missing) > 0 {
			ds = append(ds, Diagnostic{
				Code:    codes.InstructionMissingFields,
				Message: "instruction is missing " + strings.Join(missing, ", "),
				Ptr:     ptr,
				Details: map[string]any{"fields": missing},
			})
		}
		if rec.ID == "" {
			continue
		}
		if first, dup := seen[rec.ID]; dup {
			ds = append(ds, Diagnostic{
				Code:    codes.DuplicateInstructionID,
				Message: fmt.Sprintf("instruction id %q already declared at %s", rec.ID, first),
				Ptr:     ptr,
				Details: map[string]any{"id": rec.ID, "first": first},
			})
			continue
		}
		seen[rec.ID] = ptr
	}
	return ds
}

// failedFields returns the json names of fields failing their tags, sorted.
func (val *Validator) failedFields(rec any) []string {
	err := val.v.Struct(rec)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	for _, fe := range verrs {
		out = append(out, fe.Field())
	}
	sort.Strings(out)
	return out
}

func checkFields(obj map[string]any, fields []SchemaField, ptr string) []Diagnostic {
	var ds []Diagnostic
	for _, f := range fields {
		fptr := canon.JoinPointer(ptr, f.Name)
		v, present := obj[f.Name]
		if !present {
			if f.Required {
				ds = append(ds, Diagnostic{Code: codes.SchemaSectionShape, Message: "missing required field " + f.Name, Ptr: fptr})
			}
			continue
		}
		if !typeMatches(f.Type, v) {
			ds = append(ds, Diagnostic{
				Code:    codes.SchemaTypeMismatch,
				Message: fmt.Sprintf("%s must be %s, got %s", f.Name, f.Type, typeName(v)),
				Ptr:     fptr,
				Details: map[string]any{"expected": string(f.Type), "actual": typeName(v)},
			})
			continue
		}
		if len(f.Children) == 0 {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			ds = append(ds, checkFields(t, f.Children, fptr)...)
		case []any:
			for i, el := range t {
				eptr := canon.JoinPointer(fptr, strconv.Itoa(i))
				m, ok := el.(map[string]any)
				if !ok {
					ds = append(ds, Diagnostic{Code: codes.SchemaSectionShape, Message: f.Name + " entries must be objects", Ptr: eptr})
					continue
				}
				ds = append(ds, checkFields(m, f.Children, eptr)...)
			}
		}
	}
	return ds
}

func checkAmbient(root map[string]any) []Diagnostic {
	var ds []Diagnostic
	scopes := []struct {
		ptr string
		obj map[string]any
	}{{"/", root}}
	if md, ok := root["metadata"].(map[string]any); ok {
		scopes = append(scopes, struct {
			ptr string
			obj map[string]any
		}{"/metadata", md})
	}
	for _, scope := range scopes {
		for _, key := range AmbientKeys {
			if _, ok := scope.obj[key]; ok {
				ds = append(ds, Diagnostic{
					Code:    codes.AmbientState,
					Message: key + " is ambient state and breaks determinism",
					Ptr:     canon.JoinPointer(scope.ptr, key),
				})
			}
		}
	}
	return ds
}

func checkInvariantsSorted(root map[string]any) []Diagnostic {
	list, ok := root["invariants"].([]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(list))
	for _, raw := range list {
		switch t := raw.(type) {
		case string:
			keys = append(keys, t)
		case map[string]any:
			if id := scalarString(t["id"]); id != "" {
				keys = append(keys, id)
			}
		}
	}
	if len(keys) != len(list) || sort.StringsAreSorted(keys) {
		return nil
	}
	return []Diagnostic{{Code: codes.InvariantsNotSorted, Message: "invariants must be sorted", Ptr: "/invariants"}}
}

func typeMatches(want FieldType, v any) bool {
	got := typeName(v)
	switch want {
	case FieldAny:
		return true
	case FieldScalar:
		return got == "string" || got == "number"
	case FieldString:
		return got == "string"
	case FieldNumber:
		return got == "number"
	case FieldBool:
		return got == "bool"
	case FieldArray:
		return got == "array"
	case FieldObject:
		return got == "object"
	}
	return false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int64, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
