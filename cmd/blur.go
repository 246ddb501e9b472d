package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clblur/internal/assets"
	"github.com/cwbudde/clblur/internal/backend"
	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/device"
	"github.com/cwbudde/clblur/internal/imageio"
	"github.com/cwbudde/clblur/internal/kernels"
	"github.com/cwbudde/clblur/internal/pipeline"
	"github.com/cwbudde/clblur/internal/profiling"
	"github.com/cwbudde/clblur/internal/store"
	"github.com/cwbudde/clblur/internal/verify"
)

// blurOptions resolves the pipeline options from the settings and the
// optional positional filter size.
func (a *app) blurOptions(args []string) (pipeline.Options, error) {
	cfg := a.cfg
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return pipeline.Options{}, compute.Errorf(compute.KindInvalidArgument, "parse arguments", "filter size %q is not an integer", args[1])
		}
		cfg.FilterSize = n
	}
	opts, err := cfg.PipelineOptions()
	if err != nil {
		return pipeline.Options{}, err
	}
	if cfg.KernelSource != "" {
		if opts.KernelSource, err = kernels.LoadSource(cfg.KernelSource); err != nil {
			return pipeline.Options{}, err
		}
	}
	return opts, nil
}

// loadImage reads the positional image or the bundled sample.
func loadImage(args []string) (*imageio.Loaded, compute.HostImage, error) {
	name := assets.DefaultImage
	if len(args) > 0 {
		name = args[0]
	}
	loaded, err := imageio.Load(name, assets.FS)
	if err != nil {
		return nil, compute.HostImage{}, err
	}
	return loaded, imageio.ToHost(loaded.Image), nil
}

// openSession creates the driver and opens the selected device.
func (a *app) openSession() (*device.Session, error) {
	drv, err := backend.NewDriver(a.cfg.Driver)
	if err != nil {
		return nil, err
	}
	sel, err := a.selector()
	if err != nil {
		return nil, err
	}
	s, err := sel.Select(drv)
	if err != nil {
		return nil, err
	}
	return device.Open(drv, s)
}

func (a *app) runBlur(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts, err := a.blurOptions(args)
	if err != nil {
		return err
	}
	loaded, host, err := loadImage(args)
	if err != nil {
		return err
	}

	s, err := a.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	caps := s.Capabilities()
	if err := profiling.WriteCapabilities(a.stdout, caps); err != nil {
		return err
	}
	if err := profiling.WriteFormat(a.stdout, host.Format); err != nil {
		return err
	}

	p, err := pipeline.New(s, opts)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx, host)
	if err != nil {
		slog.Error("blur failed", "state", p.State(), "error", err)
		return err
	}
	if err := profiling.WriteReport(a.stdout, res.Report); err != nil {
		return err
	}

	var check *store.Verification
	if a.cfg.Verify {
		if check, err = a.verify(ctx, res.Output, host, opts); err != nil {
			return err
		}
	}
	if check != nil && !check.Passed {
		if a.cfg.SaveRun {
			if err := a.saveRun(loaded, "", caps, res, opts, check); err != nil {
				return err
			}
		}
		return fmt.Errorf("output differs from the reference device (max difference %d), nothing written", check.MaxAbsDiff)
	}

	outPath := imageio.OutputPath(loaded.Name, a.cfg.Format)
	img, err := imageio.FromHost(res.Output)
	if err != nil {
		return err
	}
	if err := imageio.Save(img, outPath); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote %s\n", outPath)

	if a.cfg.SaveRun {
		return a.saveRun(loaded, outPath, caps, res, opts, check)
	}
	return nil
}

func (a *app) verify(ctx context.Context, got, host compute.HostImage, opts pipeline.Options) (*store.Verification, error) {
	want, err := a.reference(ctx, host, opts)
	if err != nil {
		return nil, err
	}
	diff, err := verify.Compare(got, want)
	if err != nil {
		return nil, err
	}
	passed := diff.Within(verify.DefaultTolerance)
	fmt.Fprintf(a.stdout, "Verification against reference device: %s (passed: %t)\n", diff, passed)
	return &store.Verification{MSE: diff.MSE, MaxAbsDiff: diff.MaxAbsDiff, Passed: passed}, nil
}

func (a *app) saveRun(loaded *imageio.Loaded, outPath string, caps device.Capabilities, res *pipeline.Result, opts pipeline.Options, check *store.Verification) error {
	dir, err := a.cfg.ExpandedDataDir()
	if err != nil {
		return fmt.Errorf("resolve data directory: %w", err)
	}
	st, err := store.NewFSStore(dir)
	if err != nil {
		return err
	}

	rec := store.NewRunRecord()
	rec.InputPath = loaded.Name
	rec.OutputPath = outPath
	rec.Width, rec.Height = res.Output.Width, res.Output.Height
	rec.Format = string(res.Output.Format.Order)
	rec.Driver = string(backend.NormalizeBackend(a.cfg.Driver))
	rec.Platform = caps.Platform.Name
	rec.Device = caps.Name
	rec.FilterKind = string(res.Filter.Kind)
	rec.FilterSize = res.Filter.Len()
	rec.Local = res.Geometry.Local
	rec.Global = res.Geometry.Global
	rec.Timings = store.Timings{
		HorizontalMs:  profiling.Millis(res.Report.Horizontal),
		VerticalMs:    profiling.Millis(res.Report.Vertical),
		DeviceTotalMs: profiling.Millis(res.Report.DeviceTotal),
		ReadbackMs:    profiling.Millis(res.Report.Readback),
		WallClockMs:   profiling.Millis(res.Report.WallClock),
	}
	rec.Verification = check

	if err := st.SaveRun(rec); err != nil {
		return err
	}
	if err := store.WriteTrace(st.BaseDir(), rec.ID, res.Trace); err != nil {
		return err
	}
	slog.Info("Run saved", "id", rec.ID, "filter", opts.FilterKind, "taps", opts.FilterSize)
	fmt.Fprintf(a.stdout, "Run saved: %s\n", rec.ID)
	return nil
}
