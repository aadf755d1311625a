package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// FieldType classifies a plugin-declared field.
type FieldType string

// Item field types. Items carry typed values matching the plugin's
// declared item fields; filters are validated against these types.
const (
	FieldString  FieldType = "string"
	FieldEnum    FieldType = "enum"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// Config field types extend the item field set with UI-oriented kinds.
const (
	ConfigString      FieldType = "string"
	ConfigNumber      FieldType = "number"
	ConfigBoolean     FieldType = "boolean"
	ConfigSecret      FieldType = "secret"
	ConfigSelect      FieldType = "select"
	ConfigMultiselect FieldType = "multiselect"
)

// ConfigField describes one configuration field a plugin accepts.
type ConfigField struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

// ItemField describes one typed field a plugin emits on its items.
type ItemField struct {
	Key    string    `json:"key"`
	Label  string    `json:"label"`
	Type   FieldType `json:"type"`
	Values []string  `json:"values,omitempty"`
}

// PluginMetadata describes a source-type adapter.
type PluginMetadata struct {
	// Type is the lowercase identifier sources reference (e.g. "rss").
	Type string `json:"type"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Description briefly explains what the plugin ingests.
	Description string `json:"description"`

	// Version is a semver string.
	Version string `json:"version"`

	// ConfigFields lists source configuration the plugin accepts.
	ConfigFields []ConfigField `json:"configFields,omitempty"`

	// ItemFields lists the typed fields the plugin emits on items.
	ItemFields []ItemField `json:"itemFields,omitempty"`

	// DefaultFilter applies when a source configures no filter of its own.
	DefaultFilter []FilterCondition `json:"defaultFilter,omitempty"`

	// SupportsRealtime marks adapters that maintain a persistent
	// connection in addition to polling.
	SupportsRealtime bool `json:"supportsRealtime,omitempty"`
}

var (
	typeIdentRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	semverRe    = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)
)

var configFieldTypes = map[FieldType]bool{
	ConfigString:      true,
	ConfigNumber:      true,
	ConfigBoolean:     true,
	ConfigSecret:      true,
	ConfigSelect:      true,
	ConfigMultiselect: true,
}

var itemFieldTypes = map[FieldType]bool{
	FieldString:  true,
	FieldEnum:    true,
	FieldNumber:  true,
	FieldBoolean: true,
}

// Validate checks the metadata against the plugin schema, accumulating
// every problem rather than stopping at the first.
func (m *PluginMetadata) Validate() error {
	var errs []error

	if m.Type == "" {
		errs = append(errs, errors.New("type is required"))
	} else if !typeIdentRe.MatchString(m.Type) {
		errs = append(errs, fmt.Errorf("type %q is not a lowercase identifier", m.Type))
	}
	if m.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if m.Description == "" {
		errs = append(errs, errors.New("description is required"))
	}
	if m.Version == "" {
		errs = append(errs, errors.New("version is required"))
	} else if !semverRe.MatchString(m.Version) {
		errs = append(errs, fmt.Errorf("version %q is not semver", m.Version))
	}

	for i := range m.ConfigFields {
		f := &m.ConfigFields[i]
		if f.Key == "" {
			errs = append(errs, fmt.Errorf("configFields[%d]: key is required", i))
		}
		if f.Label == "" {
			errs = append(errs, fmt.Errorf("configFields[%d]: label is required", i))
		}
		if !configFieldTypes[f.Type] {
			errs = append(errs, fmt.Errorf("configFields[%d]: unknown type %q", i, f.Type))
		}
		if (f.Type == ConfigSelect || f.Type == ConfigMultiselect) && len(f.Options) == 0 {
			errs = append(errs, fmt.Errorf("configFields[%d]: %s requires options", i, f.Type))
		}
	}

	itemKeys := make(map[string]FieldType, len(m.ItemFields))
	for i := range m.ItemFields {
		f := &m.ItemFields[i]
		if f.Key == "" {
			errs = append(errs, fmt.Errorf("itemFields[%d]: key is required", i))
		}
		if f.Label == "" {
			errs = append(errs, fmt.Errorf("itemFields[%d]: label is required", i))
		}
		if !itemFieldTypes[f.Type] {
			errs = append(errs, fmt.Errorf("itemFields[%d]: unknown type %q", i, f.Type))
		}
		if f.Type == FieldEnum && len(f.Values) == 0 {
			errs = append(errs, fmt.Errorf("itemFields[%d]: enum requires values", i))
		}
		itemKeys[f.Key] = f.Type
	}

	for i := range m.DefaultFilter {
		if _, ok := itemKeys[m.DefaultFilter[i].Field]; !ok {
			errs = append(errs, fmt.Errorf("defaultFilter[%d]: unknown field %q", i, m.DefaultFilter[i].Field))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, errors.Join(errs...))
	}
	return nil
}

// ItemFieldTypes returns a key-to-type lookup for the declared item fields.
func (m *PluginMetadata) ItemFieldTypes() map[string]FieldType {
	types := make(map[string]FieldType, len(m.ItemFields))
	for _, f := range m.ItemFields {
		types[f.Key] = f.Type
	}
	return types
}

// ItemField returns the declared item field for a key, if any.
func (m *PluginMetadata) ItemField(key string) (*ItemField, bool) {
	for i := range m.ItemFields {
		if m.ItemFields[i].Key == key {
			return &m.ItemFields[i], true
		}
	}
	return nil, false
}

// RequiredConfigKeys returns the config field keys a source must set.
func (m *PluginMetadata) RequiredConfigKeys() []string {
	var keys []string
	for _, f := range m.ConfigFields {
		if f.Required {
			keys = append(keys, f.Key)
		}
	}
	return keys
}
