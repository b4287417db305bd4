package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
)

// SpecField declares one key of a category specification
type SpecField struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// SpecSchema is the versioned specification layout of a category
type SpecSchema struct {
	Version    int         `json:"version"`
	AllowExtra bool        `json:"allow_extra"`
	Fields     []SpecField `json:"fields"`
}

// ParseSchema decodes a category's stored schema, an empty string means free-form
func ParseSchema(raw string) (*SpecSchema, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var s SpecSchema
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("invalid spec schema: %w", err)
	}
	for _, f := range s.Fields {
		switch f.Type {
		case FieldString, FieldNumber, FieldBool:
		default:
			return nil, fmt.Errorf("invalid spec schema: field %q has unknown type %q", f.Key, f.Type)
		}
	}
	return &s, nil
}

// Specification is a typed key-value map checked against a SpecSchema
type Specification struct {
	Version int                    `json:"version"`
	Values  map[string]interface{} `json:"values"`
}

// ParseSpecification decodes raw JSON into a Specification. With a schema every declared
// field is coerced to its type; problems are reported as field errors keyed
// "specification.<key>".
func ParseSpecification(raw string, schema *SpecSchema) (Specification, Errors) {
	errs := Errors{}
	spec := Specification{Values: map[string]interface{}{}}
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	var values map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		errs.Add("specification", "must be a JSON object")
		return spec, errs
	}
	if schema == nil {
		spec.Values = values
		return spec, errs
	}
	spec.Version = schema.Version

	declared := make(map[string]bool, len(schema.Fields))
	for _, f := range schema.Fields {
		declared[f.Key] = true
		v, present := values[f.Key]
		if !present || v == nil || v == "" {
			if f.Required {
				errs.Add("specification."+f.Key, "is required")
			}
			continue
		}
		coerced, err := coerce(f.Type, v)
		if err != nil {
			errs.Add("specification."+f.Key, fmt.Sprintf("must be a %s", f.Type))
			continue
		}
		spec.Values[f.Key] = coerced
	}

	var extra []string
	for k, v := range values {
		if declared[k] {
			continue
		}
		if !schema.AllowExtra {
			extra = append(extra, k)
			continue
		}
		spec.Values[k] = v
	}
	sort.Strings(extra)
	for _, k := range extra {
		errs.Add("specification."+k, "is not declared for this category")
	}
	return spec, errs
}

func coerce(t FieldType, v interface{}) (interface{}, error) {
	switch t {
	case FieldNumber:
		if _, isBool := v.(bool); isBool {
			return nil, fmt.Errorf("bool is not a number")
		}
		return cast.ToFloat64E(v)
	case FieldBool:
		return cast.ToBoolE(v)
	default:
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return nil, fmt.Errorf("not a scalar")
		}
		return cast.ToStringE(v)
	}
}

func (s Specification) String(key string) string {
	return cast.ToString(s.Values[key])
}

func (s Specification) Number(key string) (float64, bool) {
	v, ok := s.Values[key]
	if !ok {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

func (s Specification) Bool(key string) bool {
	return cast.ToBool(s.Values[key])
}

// Decode copies the values into a typed struct using mapstructure tags
func (s Specification) Decode(out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "spec",
	})
	if err != nil {
		return err
	}
	return dec.Decode(s.Values)
}

// JSON returns the canonical encoding stored on the product row
func (s Specification) JSON() string {
	if len(s.Values) == 0 {
		return ""
	}
	b, err := json.Marshal(s.Values)
	if err != nil {
		return ""
	}
	return string(b)
}
