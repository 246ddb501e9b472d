package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/filter"
)

func init() {
	// Tests point HOME at temp dirs.
	homedir.DisableCache = true
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	opts, err := cfg.PipelineOptions()
	require.NoError(t, err)
	assert.Equal(t, 23, opts.FilterSize)
	assert.Equal(t, filter.KindGaussian, opts.FilterKind)
	assert.Equal(t, [2]int{16, 16}, opts.Local)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "clblur.toml", `
driver = "reference"
filter = "binomial"
filter_size = 7
local = "8x4"
log_level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "reference", cfg.Driver)
	assert.Equal(t, 7, cfg.FilterSize)
	assert.Equal(t, "json", cfg.LogFormat, "unset fields keep their defaults")
	assert.Equal(t, -1, cfg.Platform)
	require.NoError(t, cfg.Validate())

	opts, err := cfg.PipelineOptions()
	require.NoError(t, err)
	assert.Equal(t, [2]int{8, 4}, opts.Local)
	assert.Equal(t, filter.KindBinomial, opts.FilterKind)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "clblur.yml", "platform: 0\ndevice: 1\ndevice_type: gpu\nverify: true\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Platform)
	assert.Equal(t, 1, cfg.Device)
	assert.True(t, cfg.Verify)
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", "filter_size = \"many\""))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "unknown.yaml", "colour: blue\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "cfg.json", "{}"))
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Driver = "cuda" }},
		{"bad device type", func(c *Config) { c.DeviceType = "fpga" }},
		{"platform without device", func(c *Config) { c.Platform = 0 }},
		{"even filter", func(c *Config) { c.FilterSize = 4 }},
		{"bad filter kind", func(c *Config) { c.Filter = "box" }},
		{"bad local", func(c *Config) { c.Local = "16x0" }},
		{"bad format", func(c *Config) { c.Format = "gif" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, compute.ErrInvalidArgument), "got %v", err)
		})
	}

	cfg := Default()
	cfg.FilterSize = 4
	cfg.AllowEven = true
	assert.NoError(t, cfg.Validate())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
	_, err = ParseLevel("trace")
	assert.Error(t, err)
}

func TestExpandedDataDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := Default()
	dir, err := cfg.ExpandedDataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local/share/clblur"), dir)
}
