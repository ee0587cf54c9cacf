package flowchat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType is the JSON type of a schema field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
)

// Field describes one property of a flow output object.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	// Lenient fields are described to the model but never validated; the
	// caller narrows whatever value comes back.
	Lenient     bool
	Fields      []Field // nested properties when Type is FieldObject
}

// Schema is the fixed output shape of a flow.
type Schema struct {
	Name   string
	Fields []Field
}

// JSONSchema returns the schema as a JSON Schema document.
func (s *Schema) JSONSchema() map[string]any {
	return objectSchema(s.Fields)
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := []string{}
	for _, f := range fields {
		prop := map[string]any{"type": string(f.Type)}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		if f.Type == FieldObject {
			prop = objectSchema(f.Fields)
			if f.Description != "" {
				prop["description"] = f.Description
			}
		}
		props[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Instruction returns a plain-text instruction asking for a JSON object that
// matches the schema. Used by backends without native structured output.
func (s *Schema) Instruction() string {
	doc, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Respond only with a single JSON object, without markdown fences, matching this JSON Schema:\n")
	b.Write(doc)
	return b.String()
}

// Validate checks that every required field of the schema is present in obj
// with the declared JSON type. Optional fields are type-checked when present
// and not null, unless they are Lenient.
func (s *Schema) Validate(obj map[string]any) error {
	return validateFields(s.Fields, obj, "")
}

func validateFields(fields []Field, obj map[string]any, path string) error {
	for _, f := range fields {
		name := path + f.Name
		v, ok := obj[f.Name]
		if f.Lenient && !f.Required {
			continue
		}
		if !ok || v == nil {
			if f.Required {
				return fmt.Errorf("missing required field %q", name)
			}
			continue
		}
		switch f.Type {
		case FieldString:
			if _, ok := v.(string); !ok {
				return fmt.Errorf("field %q must be a string", name)
			}
		case FieldBoolean:
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("field %q must be a boolean", name)
			}
		case FieldObject:
			nested, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("field %q must be an object", name)
			}
			if err := validateFields(f.Fields, nested, name+"."); err != nil {
				return err
			}
		}
	}
	return nil
}
