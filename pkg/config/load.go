package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load reads, strictly decodes, defaults, and validates the
// configuration file at path. TOML is assumed unless the file ends in
// .yaml or .yml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	default:
		err = decodeTOML(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// decodeTOML decodes TOML and rejects unknown keys.
func decodeTOML(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return unknownKeyError(keys)
	}
	return nil
}

// decodeYAML decodes YAML with strict field checking.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if strings.Contains(err.Error(), "field app not found") {
			return unknownKeyError([]string{"app"})
		}
		return err
	}
	return nil
}

// unknownKeyError formats the strict-decode failure. The singular "app"
// key is a recurring misspelling of "apps" and gets a pointed hint.
func unknownKeyError(keys []string) error {
	for _, k := range keys {
		if k == "app" || strings.HasPrefix(k, "app.") {
			return fmt.Errorf("unknown key %q: applications are declared under \"apps\"", "app")
		}
	}
	return fmt.Errorf("unknown configuration keys: %s", strings.Join(keys, ", "))
}
