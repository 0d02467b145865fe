package mcp

import (
	"encoding/json"
	"math"
	"strings"

	"call-assistant/internal/apperr"
)

// JSON types accepted in Property.Type.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Schema describes a tool's arguments object.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// Object builds an object schema.
func Object(required []string, props map[string]Property) Schema {
	return Schema{Type: TypeObject, Properties: props, Required: required}
}

func Float(v float64) *float64 { return &v }

// Validate checks raw against s, fills declared defaults for absent fields and returns the
// normalised arguments. Unknown fields pass through untouched.
func (s Schema) Validate(raw json.RawMessage) (json.RawMessage, error) {
	args := map[string]any{}
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal(raw, &args); err != nil || args == nil {
			return nil, apperr.New(apperr.KindInvalidArguments, "Arguments must be a JSON object")
		}
	}

	for _, name := range s.Required {
		if v, ok := args[name]; !ok || v == nil {
			return nil, apperr.New(apperr.KindInvalidArguments, "Missing required argument: %s", name)
		}
	}

	for name, prop := range s.Properties {
		v, ok := args[name]
		if !ok || v == nil {
			if prop.Default != nil {
				args[name] = prop.Default
			} else {
				delete(args, name)
			}
			continue
		}
		if err := prop.check(name, v); err != nil {
			return nil, err
		}
	}

	out, err := json.Marshal(args)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "encode arguments")
	}
	return out, nil
}

func (p Property) check(name string, v any) error {
	if !matchesType(p.Type, v) {
		return apperr.New(apperr.KindInvalidArguments, "Invalid argument '%s': expected %s", name, p.Type)
	}
	if len(p.Enum) > 0 {
		s, _ := v.(string)
		found := false
		for _, allowed := range p.Enum {
			if s == allowed {
				found = true
				break
			}
		}
		if !found {
			return apperr.New(apperr.KindInvalidArguments, "Invalid argument '%s': must be one of %s", name, strings.Join(p.Enum, ", "))
		}
	}
	if n, ok := v.(float64); ok {
		if p.Minimum != nil && n < *p.Minimum {
			return apperr.New(apperr.KindInvalidArguments, "Invalid argument '%s': must be >= %v", name, *p.Minimum)
		}
		if p.Maximum != nil && n > *p.Maximum {
			return apperr.New(apperr.KindInvalidArguments, "Invalid argument '%s': must be <= %v", name, *p.Maximum)
		}
	}
	return nil
}

func matchesType(typ string, v any) bool {
	switch typ {
	case "":
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		_, ok := v.(float64)
		return ok
	case TypeInteger:
		n, ok := v.(float64)
		return ok && n == math.Trunc(n)
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}
