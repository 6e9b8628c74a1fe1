package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Load reads a settings file (YAML, JSON, or JSON5 by extension), expands
// environment variables, applies defaults, and validates. Unknown keys
// reject with a ConfigError.
func Load(path string) (*Settings, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ConfigError{Message: "config path is required"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}
	return Parse(data, path)
}

// Parse decodes settings from raw bytes. pathHint selects the format by
// extension; anything that is not .json/.json5 parses as YAML.
func Parse(data []byte, pathHint string) (*Settings, error) {
	expanded := []byte(os.ExpandEnv(string(data)))
	settings := Default()

	ext := strings.ToLower(filepath.Ext(pathHint))
	if ext == ".json" || ext == ".json5" {
		if err := parseJSON5(expanded, settings); err != nil {
			return nil, err
		}
	} else {
		if err := parseYAML(expanded, settings); err != nil {
			return nil, err
		}
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func parseYAML(data []byte, out *Settings) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return &ConfigError{Message: err.Error()}
	}
	return nil
}

// parseJSON5 decodes via json5 into a raw map, then re-encodes to strict
// JSON so unknown fields still reject.
func parseJSON5(data []byte, out *Settings) error {
	var raw map[string]any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return &ConfigError{Message: err.Error()}
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return &ConfigError{Message: err.Error()}
	}
	decoder := json.NewDecoder(bytes.NewReader(normalized))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return &ConfigError{Message: err.Error()}
	}
	return nil
}

// Process-wide settings are initialized once at agent construction and reset
// only by tests.
var (
	globalMu sync.Mutex
	global   *Settings
)

// Init installs the process-wide settings. It fails if settings were already
// initialized.
func Init(s *Settings) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return &ConfigError{Message: "settings already initialized"}
	}
	global = s
	return nil
}

// Get returns the process-wide settings, or defaults when uninitialized.
func Get() *Settings {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		return Default()
	}
	return global
}

// Reset clears the process-wide settings. Tests only.
func Reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = nil
}

// MustParseSpec is a convenience for building a ModelSpec from a selector
// string in code and tests.
func MustParseSpec(s string) ModelSpec {
	if strings.Count(s, "/") != 1 {
		panic(fmt.Sprintf("invalid model spec %q", s))
	}
	return ModelSpec{Model: s}
}
