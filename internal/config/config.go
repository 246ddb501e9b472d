// Package config holds the CLI settings and reads them from TOML or YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/clblur/internal/backend"
	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/filter"
	"github.com/cwbudde/clblur/internal/pipeline"
)

// DefaultPath is read when no file is given. A missing default file is not an error.
const DefaultPath = "~/.config/clblur/config.toml"

// Config is the full set of run settings.
type Config struct {
	Driver      string `toml:"driver" yaml:"driver"`
	Platform    int    `toml:"platform" yaml:"platform"` // -1 picks automatically
	Device      int    `toml:"device" yaml:"device"`
	DeviceType  string `toml:"device_type" yaml:"device_type"`
	Interactive bool   `toml:"interactive" yaml:"interactive"`

	Filter       string `toml:"filter" yaml:"filter"`
	FilterSize   int    `toml:"filter_size" yaml:"filter_size"`
	Local        string `toml:"local" yaml:"local"`
	AllowEven    bool   `toml:"allow_even" yaml:"allow_even"`
	KernelSource string `toml:"kernel_source" yaml:"kernel_source"`

	Format  string `toml:"format" yaml:"format"` // output extension, empty keeps the input's
	Verify  bool   `toml:"verify" yaml:"verify"`
	SaveRun bool   `toml:"save_run" yaml:"save_run"`
	DataDir string `toml:"data_dir" yaml:"data_dir"`

	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Driver:     string(backend.BackendOpenCL),
		Platform:   -1,
		Device:     -1,
		DeviceType: string(compute.DeviceTypeAll),
		Filter:     string(filter.KindGaussian),
		FilterSize: pipeline.DefaultFilterSize,
		Local:      pipeline.FormatLocal(pipeline.DefaultLocal),
		DataDir:    "~/.local/share/clblur",
		LogLevel:   "info",
		LogFormat:  "json",
	}
}

// Load reads path over the defaults. The format follows the extension
// (.toml, .yaml, .yml). An empty path tries DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("expand config path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(&cfg, expanded, data); err != nil {
		return cfg, err
	}
	slog.Debug("config loaded", "path", expanded)
	return cfg, nil
}

// Decode parses data into cfg, keeping fields the document does not set.
func Decode(cfg *Config, name string, data []byte) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", filepath.Ext(name))
	}
	return nil
}

// Validate checks every field that has a restricted set of values.
func (c Config) Validate() error {
	switch backend.NormalizeBackend(c.Driver) {
	case backend.BackendOpenCL, backend.BackendReference:
	default:
		return compute.Wrap(compute.KindInvalidArgument, "validate config", fmt.Errorf("%w: %s", backend.ErrUnknownBackend, c.Driver))
	}
	if _, err := compute.ParseDeviceType(c.DeviceType); err != nil {
		return err
	}
	if (c.Platform < 0) != (c.Device < 0) {
		return compute.Errorf(compute.KindInvalidArgument, "validate config", "platform and device indices must be set together")
	}
	if _, err := c.PipelineOptions(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimPrefix(c.Format, ".")) {
	case "", "png", "jpg", "jpeg", "bmp":
	default:
		return compute.Errorf(compute.KindInvalidArgument, "validate config", "unsupported output format %q", c.Format)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return compute.Errorf(compute.KindInvalidArgument, "validate config", "unknown log format %q", c.LogFormat)
	}
	return nil
}

// PipelineOptions converts the blur settings.
func (c Config) PipelineOptions() (pipeline.Options, error) {
	kind, err := filter.ParseKind(c.Filter)
	if err != nil {
		return pipeline.Options{}, err
	}
	local, err := pipeline.ParseLocal(c.Local)
	if err != nil {
		return pipeline.Options{}, err
	}
	opts := pipeline.Options{
		FilterSize: c.FilterSize,
		FilterKind: kind,
		Local:      local,
		AllowEven:  c.AllowEven,
	}
	if err := opts.Validate(); err != nil {
		return pipeline.Options{}, err
	}
	return opts, nil
}

// ExpandedDataDir resolves a leading ~ in DataDir.
func (c Config) ExpandedDataDir() (string, error) {
	return homedir.Expand(c.DataDir)
}

// ParseLevel maps a level name to slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, compute.Errorf(compute.KindInvalidArgument, "parse log level", "unknown log level %q", s)
	}
}
