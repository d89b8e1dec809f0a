// Package schema implements the data-driven payload validator. Schemas are
// versioned rule sets interpreted at request time, so new versions ship as
// data without recompiling validation logic.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	pkgerrors "recordstore/pkg/errors"
)

// FieldType is the tagged variant of a field rule.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeBool   FieldType = "bool"
	TypeObject FieldType = "object"
	TypeArray  FieldType = "array"
)

// FieldRule describes one top-level payload field.
type FieldRule struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	// MinLen/MaxLen bound string length; zero means unbounded.
	MinLen int `json:"min_len,omitempty"`
	MaxLen int `json:"max_len,omitempty"`
	// Min/Max bound numeric values; nil means unbounded.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Schema is one version of the payload contract.
type Schema struct {
	Version int         `json:"version"`
	Fields  []FieldRule `json:"fields"`
	// AllowUnknown permits fields not named by a rule.
	AllowUnknown bool `json:"allow_unknown,omitempty"`
}

// Validate checks a payload against this schema. It returns the failing field
// paths; failFast stops at the first failure. maxBytes bounds the serialized
// payload size (0 disables the check).
func (s Schema) Validate(payload map[string]any, maxBytes int, failFast bool) error {
	if payload == nil {
		return pkgerrors.Validation("payload is required", "payload")
	}
	if maxBytes > 0 {
		b, err := json.Marshal(payload)
		if err != nil {
			return pkgerrors.Validation("payload is not JSON-serializable", "payload")
		}
		if len(b) > maxBytes {
			return pkgerrors.Validation(
				fmt.Sprintf("payload exceeds %d bytes", maxBytes), "payload")
		}
	}

	var failed []string
	fail := func(field string) bool {
		failed = append(failed, field)
		return failFast
	}

	rules := make(map[string]FieldRule, len(s.Fields))
	for _, rule := range s.Fields {
		rules[rule.Name] = rule
		if rule.Required {
			if _, ok := payload[rule.Name]; !ok {
				if fail(rule.Name) {
					return pkgerrors.Validation("missing required field", failed...)
				}
			}
		}
	}

	if !s.AllowUnknown {
		// Deterministic order so error output is stable.
		unknown := make([]string, 0)
		for name := range payload {
			if _, ok := rules[name]; !ok {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		for _, name := range unknown {
			if fail(name) {
				return pkgerrors.Validation("unknown field", failed...)
			}
		}
	}

	for _, rule := range s.Fields {
		value, ok := payload[rule.Name]
		if !ok {
			continue
		}
		if !rule.check(value) {
			if fail(rule.Name) {
				break
			}
		}
	}

	if len(failed) > 0 {
		return pkgerrors.Validation("payload does not conform to schema", failed...)
	}
	return nil
}

// check enforces the rule's type and range constraints against one value.
// Values come from decoded JSON, so numbers are float64.
func (r FieldRule) check(value any) bool {
	switch r.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return false
		}
		if r.MinLen > 0 && len(s) < r.MinLen {
			return false
		}
		if r.MaxLen > 0 && len(s) > r.MaxLen {
			return false
		}
		return true
	case TypeNumber:
		n, ok := value.(float64)
		if !ok {
			return false
		}
		if r.Min != nil && n < *r.Min {
			return false
		}
		if r.Max != nil && n > *r.Max {
			return false
		}
		return true
	case TypeBool:
		_, ok := value.(bool)
		return ok
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	case TypeArray:
		_, ok := value.([]any)
		return ok
	default:
		return false
	}
}
