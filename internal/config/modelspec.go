package config

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// ModelSpec selects a model for a role or tier. It accepts two shapes in
// config files: a bare "{provider}/{model}" string, or an object
// {model, contextWindow?, apiType?}.
type ModelSpec struct {
	// Model is the "{provider}/{model}" selector string.
	Model string `yaml:"model" json:"model"`

	// ContextWindow overrides the model's default context window when > 0.
	ContextWindow int `yaml:"contextWindow" json:"contextWindow"`

	// APIType overrides the wire protocol for this selection.
	APIType string `yaml:"apiType" json:"apiType"`
}

// IsZero reports whether the spec is unset.
func (m ModelSpec) IsZero() bool {
	return m.Model == ""
}

// UnmarshalYAML accepts either a scalar string or a mapping.
func (m *ModelSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*m = ModelSpec{Model: s}
		return nil
	}
	type plain ModelSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*m = ModelSpec(p)
	return nil
}

// UnmarshalJSON accepts either a string or an object.
func (m *ModelSpec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = ModelSpec{Model: s}
		return nil
	}
	type plain ModelSpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = ModelSpec(p)
	return nil
}
