// pkg/core/load.go
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	manifest "github.com/joeydtaylor/steeze-stack/pkg/manifest"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads, decodes and validates a manifest. Files ending in
// .yaml or .yml are decoded as YAML, everything else as TOML.
func LoadConfig(path string) (manifest.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return manifest.Config{}, err
	}
	return ParseConfig(b, formatOf(path))
}

// ParseConfig decodes and validates manifest bytes in the given format
// ("toml" or "yaml").
func ParseConfig(b []byte, format string) (manifest.Config, error) {
	var cfg manifest.Config
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return manifest.Config{}, fmt.Errorf("manifest yaml: %w", err)
		}
	case "toml", "":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return manifest.Config{}, fmt.Errorf("manifest toml: %w", err)
		}
	default:
		return manifest.Config{}, fmt.Errorf("manifest: unsupported format %q", format)
	}
	if err := cfg.Validate(); err != nil {
		return manifest.Config{}, err
	}
	return cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}
