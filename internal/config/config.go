// Package config loads optional project settings for the transformation
// driver from dfir.yml.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OffloadSettings mirrors the device-offload configuration surface. The
// boolean knobs default to on; absent fields keep the default.
type OffloadSettings struct {
	ToplevelTransients  *bool    `yaml:"toplevelTransients,omitempty"`
	RegisterTransients  *bool    `yaml:"registerTransients,omitempty"`
	SequentialInnerMaps *bool    `yaml:"sequentialInnerMaps,omitempty"`
	SkipScalarTasklets  *bool    `yaml:"skipScalarTasklets,omitempty"`
	Simplify            *bool    `yaml:"simplify,omitempty"`
	ExcludeCopyIn       []string `yaml:"excludeCopyIn,omitempty"`
	ExcludeCopyOut      []string `yaml:"excludeCopyOut,omitempty"`
	ExcludeTasklets     []string `yaml:"excludeTasklets,omitempty"`
	HostMaps            []string `yaml:"hostMaps,omitempty"`
	HostData            []string `yaml:"hostData,omitempty"`
}

// ProjectConfig holds project-level settings loaded from dfir.yml.
type ProjectConfig struct {
	Offload   OffloadSettings `yaml:"offload,omitempty"`
	PassLimit int             `yaml:"passLimit,omitempty"`
	StorePath string          `yaml:"storePath,omitempty"`
	Verbose   bool            `yaml:"verbose,omitempty"`
}

// Load attempts to read dfir.yml or dfir.yaml from the given directory.
// Returns a zero-value config (not an error) if no config file exists.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range []string{"dfir.yml", "dfir.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg ProjectConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return &ProjectConfig{}, nil
}

// Enabled resolves a tri-state knob against its default.
func Enabled(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
