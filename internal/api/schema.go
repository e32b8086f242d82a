package api

import "sort"

// FieldType enumerates the input widgets a configuration field can render as.
type FieldType string

const (
	FieldText        FieldType = "Text"
	FieldTextArea    FieldType = "TextArea"
	FieldPassword    FieldType = "Password"
	FieldNumber      FieldType = "Number"
	FieldBoolean     FieldType = "Boolean"
	FieldSelect      FieldType = "Select"
	FieldMultiSelect FieldType = "MultiSelect"
	FieldDateTime    FieldType = "DateTime"
	FieldJSON        FieldType = "Json"
	FieldFile        FieldType = "File"
	FieldURL         FieldType = "Url"
	FieldEmail       FieldType = "Email"
)

// SchemaField describes one configurable field of a connection, input or
// output configuration.
type SchemaField struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"displayName"`
	Type        FieldType   `json:"type"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Options     []string    `json:"options,omitempty"`
	Group       string      `json:"group,omitempty"`
	Order       int         `json:"order"`
	IsSecret    bool        `json:"isSecret,omitempty"`
	Description string      `json:"description,omitempty"`
}

// SchemaGroup groups fields for display.
type SchemaGroup struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
	Collapsible bool   `json:"collapsible,omitempty"`
	Collapsed   bool   `json:"collapsed,omitempty"`
}

// ConfigSchema is the full schema a connection descriptor exposes for one of
// its three configuration surfaces (connection, input, output).
type ConfigSchema struct {
	Fields []SchemaField `json:"fields"`
	Groups []SchemaGroup `json:"groups,omitempty"`
}

// maskedValue replaces secret values on serialisation for display.
const maskedValue = "********"

// MaskSecrets returns a copy of the raw configuration with every value whose
// schema field is marked secret replaced by a mask. Unknown keys pass
// through untouched.
func (s ConfigSchema) MaskSecrets(raw map[string]interface{}) map[string]interface{} {
	if raw == nil {
		return nil
	}
	secret := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.IsSecret {
			secret[f.Name] = true
		}
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if secret[k] {
			out[k] = maskedValue
			continue
		}
		out[k] = v
	}
	return out
}

// ApplyDefaults fills missing keys of raw with the schema defaults and
// returns the merged map. raw may be nil.
func (s ConfigSchema) ApplyDefaults(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	for k, v := range raw {
		out[k] = v
	}
	return out
}

// Validate checks required fields and select options against the raw
// configuration.
func (s ConfigSchema) Validate(raw map[string]interface{}) ValidationResult {
	result := OKValidation()
	for _, f := range s.Fields {
		v, present := raw[f.Name]
		if !present || v == nil || v == "" {
			if f.Required && f.Default == nil {
				result.AddError("missing required field " + f.Name)
			}
			continue
		}
		if f.Type == FieldSelect && len(f.Options) > 0 {
			sv, _ := v.(string)
			found := false
			for _, opt := range f.Options {
				if opt == sv {
					found = true
					break
				}
			}
			if !found {
				result.AddError("field " + f.Name + " must be one of its declared options")
			}
		}
	}
	return result
}

// SortedFields returns the schema fields ordered for display: by group order
// first, then field order, then name.
func (s ConfigSchema) SortedFields() []SchemaField {
	groupOrder := make(map[string]int, len(s.Groups))
	for _, g := range s.Groups {
		groupOrder[g.Name] = g.Order
	}
	fields := make([]SchemaField, len(s.Fields))
	copy(fields, s.Fields)
	sort.SliceStable(fields, func(i, j int) bool {
		gi, gj := groupOrder[fields[i].Group], groupOrder[fields[j].Group]
		if gi != gj {
			return gi < gj
		}
		if fields[i].Order != fields[j].Order {
			return fields[i].Order < fields[j].Order
		}
		return fields[i].Name < fields[j].Name
	})
	return fields
}
