package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/config"
	"github.com/cwbudde/clblur/internal/device"
	"github.com/cwbudde/clblur/internal/pipeline"
	"github.com/cwbudde/clblur/internal/verify"
)

// app carries the settings and streams shared by every command.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	flags      config.Config // values bound to flags
	cfg        config.Config // effective settings after PersistentPreRunE

	// reference renders the image --verify compares against.
	reference func(ctx context.Context, host compute.HostImage, opts pipeline.Options) (compute.HostImage, error)
}

func newApp() *app {
	return &app{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		flags:     config.Default(),
		reference: verify.Reference,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "clblur [imagePath] [filterKernelSize]",
		Short: "Separable Gaussian blur on an OpenCL device",
		Long: `clblur blurs an image with a separable filter on a compute device.
A horizontal pass and a vertical pass run as two kernels ordered by an event
dependency, and the device timings of both passes are reported.`,
		Args:              cobra.MaximumNArgs(2),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runBlur,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (.toml, .yaml); default "+config.DefaultPath)
	pf.StringVar(&a.flags.Driver, "driver", a.flags.Driver, "Compute driver (opencl, reference)")
	pf.IntVar(&a.flags.Platform, "platform", a.flags.Platform, "Platform index (-1 picks automatically)")
	pf.IntVar(&a.flags.Device, "device", a.flags.Device, "Device index within the platform")
	pf.StringVar(&a.flags.DeviceType, "device-type", a.flags.DeviceType, "Device type filter (all, gpu, cpu, accelerator)")
	pf.BoolVarP(&a.flags.Interactive, "interactive", "i", false, "Choose platform and device interactively")
	pf.StringVar(&a.flags.Filter, "filter", a.flags.Filter, "Filter kind (gaussian, binomial)")
	pf.StringVar(&a.flags.Local, "local", a.flags.Local, "Work-group size WxH")
	pf.BoolVar(&a.flags.AllowEven, "allow-even", false, "Accept even filter sizes")
	pf.StringVar(&a.flags.KernelSource, "kernel-source", "", "Replacement OpenCL C source file")
	pf.StringVar(&a.flags.DataDir, "data-dir", a.flags.DataDir, "Directory for saved runs")
	pf.StringVar(&a.flags.LogLevel, "log-level", a.flags.LogLevel, "Log level (debug, info, warn, error)")
	pf.StringVar(&a.flags.LogFormat, "log-format", a.flags.LogFormat, "Log format (json, text)")

	f := root.Flags()
	f.StringVar(&a.flags.Format, "format", "", "Output format (png, jpg, bmp); default keeps the input format")
	f.BoolVar(&a.flags.Verify, "verify", false, "Compare the result with the reference device")
	f.BoolVar(&a.flags.SaveRun, "save-run", false, "Record the run in the data directory")

	root.AddCommand(newDevicesCmd(a), newRunsCmd(a), newTuneCmd(a), newVersionCmd(a))
	return root
}

// setup loads the config file, applies explicitly set flags and installs the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg, a.flags, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := config.ParseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(a.stderr, opts)
	} else {
		handler = slog.NewJSONHandler(a.stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// applyFlags copies flag values over cfg for flags given on the command line.
func applyFlags(cfg *config.Config, fv config.Config, fs *pflag.FlagSet) {
	set := map[string]func(){
		"driver":        func() { cfg.Driver = fv.Driver },
		"platform":      func() { cfg.Platform = fv.Platform },
		"device":        func() { cfg.Device = fv.Device },
		"device-type":   func() { cfg.DeviceType = fv.DeviceType },
		"interactive":   func() { cfg.Interactive = fv.Interactive },
		"filter":        func() { cfg.Filter = fv.Filter },
		"local":         func() { cfg.Local = fv.Local },
		"allow-even":    func() { cfg.AllowEven = fv.AllowEven },
		"kernel-source": func() { cfg.KernelSource = fv.KernelSource },
		"data-dir":      func() { cfg.DataDir = fv.DataDir },
		"log-level":     func() { cfg.LogLevel = fv.LogLevel },
		"log-format":    func() { cfg.LogFormat = fv.LogFormat },
		"format":        func() { cfg.Format = fv.Format },
		"verify":        func() { cfg.Verify = fv.Verify },
		"save-run":      func() { cfg.SaveRun = fv.SaveRun },
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := set[f.Name]; ok {
			apply()
		}
	})
}

// selector builds the device selector the settings ask for.
func (a *app) selector() (device.Selector, error) {
	kind, err := compute.ParseDeviceType(a.cfg.DeviceType)
	if err != nil {
		return nil, err
	}
	switch {
	case a.cfg.Interactive:
		return device.PromptSelector{In: a.stdin, Out: a.stdout, Kind: kind}, nil
	case a.cfg.Platform >= 0:
		return device.IndexSelector{Platform: a.cfg.Platform, Device: a.cfg.Device, Kind: kind}, nil
	default:
		return device.BestSelector{Kind: kind}, nil
	}
}
