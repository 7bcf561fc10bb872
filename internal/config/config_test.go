package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadMissingIsZeroValue(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, &ProjectConfig{}, cfg)
}

func TestLoadYml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dfir.yml", `
offload:
  skipScalarTasklets: false
  excludeCopyIn: [A_row]
  hostData: [lut]
passLimit: 3
storePath: out.kuzu
verbose: true
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.PassLimit)
	assert.Equal(t, "out.kuzu", cfg.StorePath)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, []string{"A_row"}, cfg.Offload.ExcludeCopyIn)
	assert.Equal(t, []string{"lut"}, cfg.Offload.HostData)

	// Explicitly set knobs override the default; absent ones keep it.
	assert.False(t, Enabled(cfg.Offload.SkipScalarTasklets, true))
	assert.True(t, Enabled(cfg.Offload.Simplify, true))
}

func TestLoadYamlFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dfir.yaml", "passLimit: 7\n")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.PassLimit)
}

func TestLoadPrefersYml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dfir.yml", "passLimit: 1\n")
	writeFile(t, dir, "dfir.yaml", "passLimit: 2\n")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.PassLimit)
}

func TestLoadRejectsMalformedYaml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dfir.yml", "passLimit: [not an int\n")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestEnabled(t *testing.T) {
	on, off := true, false
	assert.True(t, Enabled(nil, true))
	assert.False(t, Enabled(nil, false))
	assert.True(t, Enabled(&on, false))
	assert.False(t, Enabled(&off, true))
}
