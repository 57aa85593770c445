package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

// ErrInvalidArguments is returned when arguments do not satisfy a tool's
// parameter schema.
var ErrInvalidArguments = errors.New("invalid arguments")

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
	Enum        []string
	Items       *Param           // element schema for arrays
	Properties  map[string]Param // nested object fields
	Required    []string         // required nested fields
}

func (p Param) schema() map[string]any {
	s := map[string]any{"type": p.Type}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.Items != nil {
		s["items"] = p.Items.schema()
	}
	if len(p.Properties) > 0 {
		props := make(map[string]any, len(p.Properties))
		for name, child := range p.Properties {
			props[name] = child.schema()
		}
		s["properties"] = props
		if len(p.Required) > 0 {
			s["required"] = p.Required
		}
	}
	return s
}

// ToolParameters builds a JSON Schema "parameters" object for a tool. The
// properties map is always present, as function-calling APIs expect.
func ToolParameters(properties map[string]Param, required []string) map[string]any {
	s := Param{Type: "object", Properties: properties, Required: required}.schema()
	if _, ok := s["properties"]; !ok {
		s["properties"] = map[string]any{}
	}
	return s
}

// Validate checks JSON-decoded args against a schema produced by
// ToolParameters: required fields, primitive types, enums, and nested
// objects and arrays.
func Validate(args map[string]any, schema map[string]any) error {
	if err := validateValue("", args, schema); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func validateValue(path string, value any, schema map[string]any) error {
	typ, _ := schema["type"].(string)
	if typ != "" {
		if err := checkType(value, typ); err != nil {
			return at(path, err)
		}
	}
	if enum := stringList(schema["enum"]); len(enum) > 0 {
		s, _ := value.(string)
		if !slices.Contains(enum, s) {
			return at(path, fmt.Errorf("must be one of %v", enum))
		}
	}

	switch v := value.(type) {
	case map[string]any:
		for _, field := range stringList(schema["required"]) {
			if _, ok := v[field]; !ok {
				return fmt.Errorf("missing required field: %s", join(path, field))
			}
		}
		props, _ := schema["properties"].(map[string]any)
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child, ok := props[k].(map[string]any)
			if !ok {
				continue
			}
			if err := validateValue(join(path, k), v[k], child); err != nil {
				return err
			}
		}
	case []any:
		items, ok := schema["items"].(map[string]any)
		if !ok {
			return nil
		}
		for i, elem := range v {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), elem, items); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkType(value any, expected string) error {
	ok := false
	switch expected {
	case "string":
		_, ok = value.(string)
	case "number":
		_, ok = value.(float64)
	case "integer":
		f, isNum := value.(float64)
		ok = isNum && f == math.Trunc(f)
	case "boolean":
		_, ok = value.(bool)
	case "object":
		_, ok = value.(map[string]any)
	case "array":
		_, ok = value.([]any)
	default:
		return fmt.Errorf("unsupported schema type %q", expected)
	}
	if !ok {
		return fmt.Errorf("expected %s but got %s", expected, jsonType(value))
	}
	return nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

// normalizeArgs round-trips args through JSON so tools and the validator
// see the same shapes whether args came from Go code or a model.
func normalizeArgs(args map[string]any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return out, nil
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func at(path string, err error) error {
	if path == "" {
		return err
	}
	return fmt.Errorf("field %s: %w", path, err)
}
