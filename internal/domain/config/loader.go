package config

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where a bare invocation looks for configuration.
const DefaultPath = "nvmeprep.yaml"

// Loader loads configuration from the filesystem.
type Loader struct{}

// NewLoader creates a new Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads, parses, defaults and validates a config file. A missing
// file at the default path yields the built-in defaults, so the tool
// works with no arguments and no config at all.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return Default(), nil
		}
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, NewYAMLParseError(path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into a Config, rejecting unknown fields so typos
// fail loudly instead of silently falling back to defaults. Decoding
// starts from the built-in defaults: a zero value cannot tell an
// omitted boolean apart from an explicit false, so omitted sections
// keep their documented defaults instead of collapsing to zero.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
