package models

import (
	"encoding/json"
	"fmt"
)

// SearchSpace declares the sampling domain for a hyperparameter search.
// Each parameter maps to exactly one of: a discrete list of values, a
// numeric range, a list of named options, or a fixed value.
type SearchSpace map[string]ParamSpec

// Validate checks every parameter spec in the space.
func (s SearchSpace) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("search space is empty")
	}
	for name, spec := range s {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
	}
	return nil
}

// ParamKind identifies the shape of a parameter domain.
type ParamKind string

const (
	ParamDiscrete ParamKind = "discrete"
	ParamRange    ParamKind = "range"
	ParamOptions  ParamKind = "options"
	ParamFixed    ParamKind = "fixed"
)

// ParamSpec describes the domain of a single search parameter.
type ParamSpec struct {
	Kind    ParamKind
	Values  []interface{} // discrete
	Min     float64       // range
	Max     float64       // range
	Int     bool          // range: sample integers
	Options []string      // named options
	Fixed   interface{}   // fixed
}

// Validate rejects malformed domains.
func (p ParamSpec) Validate() error {
	switch p.Kind {
	case ParamDiscrete:
		if len(p.Values) == 0 {
			return fmt.Errorf("discrete list is empty")
		}
	case ParamRange:
		if p.Max < p.Min {
			return fmt.Errorf("range max %v < min %v", p.Max, p.Min)
		}
	case ParamOptions:
		if len(p.Options) == 0 {
			return fmt.Errorf("options list is empty")
		}
	case ParamFixed:
		if p.Fixed == nil {
			return fmt.Errorf("fixed value is null")
		}
	default:
		return fmt.Errorf("unknown parameter kind %q", p.Kind)
	}
	return nil
}

// UnmarshalJSON decodes the wire form of a parameter domain:
// a JSON array is a discrete list, an object with min/max is a range,
// an object with options is a named-option list, and a bare scalar is
// a fixed value. Anything else is rejected.
func (p *ParamSpec) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	spec, err := ParamSpecFromValue(v)
	if err != nil {
		return err
	}
	*p = spec
	return nil
}

// MarshalJSON emits the same wire form UnmarshalJSON accepts.
func (p ParamSpec) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ParamDiscrete:
		return json.Marshal(p.Values)
	case ParamRange:
		obj := map[string]interface{}{"min": p.Min, "max": p.Max}
		if p.Int {
			obj["int"] = true
		}
		return json.Marshal(obj)
	case ParamOptions:
		return json.Marshal(map[string]interface{}{"options": p.Options})
	case ParamFixed:
		return json.Marshal(p.Fixed)
	default:
		return nil, fmt.Errorf("unknown parameter kind %q", p.Kind)
	}
}

// ParamSpecFromValue builds a ParamSpec from a decoded JSON/YAML value.
// Shared by the JSON codec above and the YAML job-spec parser.
func ParamSpecFromValue(v interface{}) (ParamSpec, error) {
	switch val := v.(type) {
	case []interface{}:
		if len(val) == 0 {
			return ParamSpec{}, fmt.Errorf("discrete list is empty")
		}
		return ParamSpec{Kind: ParamDiscrete, Values: val}, nil
	case map[string]interface{}:
		return paramSpecFromObject(val)
	case string, bool, float64, int, int64:
		return ParamSpec{Kind: ParamFixed, Fixed: val}, nil
	default:
		return ParamSpec{}, fmt.Errorf("unsupported parameter shape %T", v)
	}
}

func paramSpecFromObject(obj map[string]interface{}) (ParamSpec, error) {
	if opts, ok := obj["options"]; ok {
		raw, ok := opts.([]interface{})
		if !ok || len(raw) == 0 {
			return ParamSpec{}, fmt.Errorf("options must be a non-empty list")
		}
		names := make([]string, 0, len(raw))
		for _, o := range raw {
			s, ok := o.(string)
			if !ok {
				return ParamSpec{}, fmt.Errorf("option %v is not a string", o)
			}
			names = append(names, s)
		}
		return ParamSpec{Kind: ParamOptions, Options: names}, nil
	}

	minV, hasMin := obj["min"]
	maxV, hasMax := obj["max"]
	if hasMin && hasMax {
		min, okMin := toFloat(minV)
		max, okMax := toFloat(maxV)
		if !okMin || !okMax {
			return ParamSpec{}, fmt.Errorf("range bounds must be numeric")
		}
		spec := ParamSpec{Kind: ParamRange, Min: min, Max: max}
		if isInt, ok := obj["int"].(bool); ok {
			spec.Int = isInt
		}
		if spec.Max < spec.Min {
			return ParamSpec{}, fmt.Errorf("range max %v < min %v", max, min)
		}
		return spec, nil
	}

	return ParamSpec{}, fmt.Errorf("object must declare min/max or options")
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
