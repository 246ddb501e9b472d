// Package pipeline runs the two-pass separable convolution on a device session.
//
// A run moves strictly forward through its states: the filter is uploaded,
// the image pair is allocated, the horizontal pass writes imageB from imageA,
// the vertical pass writes imageA back from imageB once the horizontal event
// completed, and the result is read from imageA once the vertical event
// completed. Any failure aborts the run.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/device"
	"github.com/cwbudde/clblur/internal/devmem"
	"github.com/cwbudde/clblur/internal/filter"
	"github.com/cwbudde/clblur/internal/kernels"
	"github.com/cwbudde/clblur/internal/profiling"
)

// State is the progress of a run.
type State int

const (
	StateIdle State = iota
	StateFilterReady
	StateImagesAllocated
	StateHorizontalDispatched
	StateVerticalDispatched
	StateReadbackComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateFilterReady:
		return "FilterReady"
	case StateImagesAllocated:
		return "ImagesAllocated"
	case StateHorizontalDispatched:
		return "HorizontalDispatched"
	case StateVerticalDispatched:
		return "VerticalDispatched"
	case StateReadbackComplete:
		return "ReadbackComplete"
	default:
		return "Unknown"
	}
}

// DefaultFilterSize is the number of taps used when none is given.
const DefaultFilterSize = 23

// Options configure a run.
type Options struct {
	FilterSize int
	FilterKind filter.Kind
	Local      [2]int
	// KernelSource replaces the built-in program when not empty.
	KernelSource string
	// AllowEven accepts filters with an even number of taps. Their centre
	// tap sits half a pixel right of (below) the output pixel.
	AllowEven bool
}

// DefaultOptions returns the standard blur settings.
func DefaultOptions() Options {
	return Options{
		FilterSize: DefaultFilterSize,
		FilterKind: filter.KindGaussian,
		Local:      DefaultLocal,
	}
}

// Validate checks the options before any device work.
func (o Options) Validate() error {
	if o.FilterSize < 1 {
		return compute.Errorf(compute.KindInvalidArgument, "validate options", "filter size must be positive, got %d", o.FilterSize)
	}
	if o.FilterSize%2 == 0 && !o.AllowEven {
		return compute.Errorf(compute.KindInvalidArgument, "validate options", "filter size must be odd, got %d", o.FilterSize)
	}
	if o.Local[0] <= 0 || o.Local[1] <= 0 {
		return compute.Errorf(compute.KindInvalidArgument, "validate options", "invalid work-group %dx%d", o.Local[0], o.Local[1])
	}
	if o.FilterKind != "" {
		if _, err := filter.ParseKind(string(o.FilterKind)); err != nil {
			return err
		}
	}
	return nil
}

// Result is the outcome of a completed run.
type Result struct {
	Output   compute.HostImage
	Filter   filter.Kernel
	Geometry Geometry
	Report   profiling.Report
	Trace    []profiling.Timing
}

// Pipeline executes runs on one session.
type Pipeline struct {
	session *device.Session
	opts    Options
	state   State
}

// New validates opts and binds them to a session.
func New(s *device.Session, opts Options) (*Pipeline, error) {
	if s == nil {
		return nil, compute.Errorf(compute.KindInvalidArgument, "new pipeline", "nil session")
	}
	if opts.Local == ([2]int{}) {
		opts.Local = DefaultLocal
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{session: s, opts: opts}, nil
}

// State reports the last state reached by the most recent run.
func (p *Pipeline) State() State {
	return p.state
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// run holds the device objects of one execution.
type run struct {
	buf            compute.Buffer
	imageA, imageB compute.Image
	prog           *kernels.Program
	kx, ky         *kernels.Kernel
	events         []compute.Event
}

func (r *run) release() {
	for _, ev := range r.events {
		ev.Release()
	}
	for _, k := range []*kernels.Kernel{r.kx, r.ky} {
		if k != nil {
			k.Release()
		}
	}
	if r.prog != nil {
		r.prog.Release()
	}
	for _, img := range []compute.Image{r.imageA, r.imageB} {
		if img != nil {
			img.Release()
		}
	}
	if r.buf != nil {
		r.buf.Release()
	}
}

// Run blurs host. ctx is checked between stages; once the passes are
// dispatched the run completes or fails on its own.
func (p *Pipeline) Run(ctx context.Context, host compute.HostImage) (*Result, error) {
	p.state = StateIdle
	s := p.session
	r := &run{}
	defer func() {
		if p.state >= StateHorizontalDispatched && p.state < StateReadbackComplete {
			if ferr := s.Queue.Finish(); ferr != nil {
				slog.Warn("queue drain after failed run", "error", ferr)
			}
		}
		r.release()
	}()

	if err := host.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Filter.
	kern, err := filter.Build(p.opts.FilterKind, p.opts.FilterSize)
	if err != nil {
		return nil, err
	}
	if r.buf, err = devmem.UploadFilter(s.Context, kern); err != nil {
		return nil, err
	}
	p.state = StateFilterReady
	slog.Debug("pipeline state", "state", p.state, "filter", kern.Kind, "taps", kern.Len())

	// Program. Compilation stays outside the wall-clock window.
	source := p.opts.KernelSource
	if source == "" {
		source = kernels.Source
	}
	if r.prog, err = kernels.Compile(s.Context, source); err != nil {
		return nil, err
	}

	// Images.
	caps := s.Capabilities()
	geom, err := ComputeGeometry(host.Width, host.Height, p.opts.Local, caps.MaxWorkGroupSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lim := devmem.LimitsOf(s.Device)
	wallStart := time.Now()
	if r.imageA, err = devmem.CreateInputImage(s.Context, lim, host); err != nil {
		return nil, err
	}
	if r.imageB, err = devmem.CreateScratchImage(s.Context, lim, host.Format, host.Width, host.Height); err != nil {
		return nil, err
	}
	p.state = StateImagesAllocated
	slog.Debug("pipeline state", "state", p.state, "geometry", geom.String())

	// Kernels.
	if r.kx, err = r.prog.CreateKernel(kernels.EntryHorizontal); err != nil {
		return nil, err
	}
	if r.ky, err = r.prog.CreateKernel(kernels.EntryVertical); err != nil {
		return nil, err
	}
	if err := r.kx.BindArgs(kernels.ConvolutionArgs(r.imageA, r.imageB, r.buf, kern.Len())...); err != nil {
		return nil, err
	}
	if err := r.ky.BindArgs(kernels.ConvolutionArgs(r.imageB, r.imageA, r.buf, kern.Len())...); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Dispatch.
	evX, err := DispatchHorizontal(s.Queue, r.kx, geom)
	if err != nil {
		return nil, err
	}
	r.events = append(r.events, evX)
	p.state = StateHorizontalDispatched

	evY, err := DispatchVertical(s.Queue, r.ky, geom, evX)
	if err != nil {
		return nil, err
	}
	r.events = append(r.events, evY)
	p.state = StateVerticalDispatched

	out, evRead, err := Readback(s.Queue, r.imageA, evY)
	if err != nil {
		return nil, err
	}
	r.events = append(r.events, evRead)
	wallEnd := time.Now()
	p.state = StateReadbackComplete

	report, trace, err := buildReport(evX, evY, evRead)
	if err != nil {
		return nil, err
	}
	report.WallClock = profiling.ElapsedWallClock(wallStart, wallEnd)
	slog.Debug("pipeline state", "state", p.state, "device_ms", profiling.Millis(report.DeviceTotal))

	return &Result{
		Output:   out,
		Filter:   kern,
		Geometry: geom,
		Report:   report,
		Trace:    trace,
	}, nil
}

func buildReport(evX, evY, evRead compute.Event) (profiling.Report, []profiling.Timing, error) {
	var rep profiling.Report
	var err error
	if rep.Horizontal, err = profiling.ElapsedKernel(evX); err != nil {
		return rep, nil, compute.Wrap(compute.KindDispatch, "profile horizontal pass", err)
	}
	if rep.Vertical, err = profiling.ElapsedKernel(evY); err != nil {
		return rep, nil, compute.Wrap(compute.KindDispatch, "profile vertical pass", err)
	}
	if rep.DeviceTotal, err = profiling.ElapsedDevice(evX, evY); err != nil {
		return rep, nil, compute.Wrap(compute.KindDispatch, "profile passes", err)
	}
	if rep.Readback, err = profiling.ElapsedKernel(evRead); err != nil {
		return rep, nil, compute.Wrap(compute.KindTransfer, "profile readback", err)
	}

	var trace []profiling.Timing
	for _, c := range []struct {
		name string
		ev   compute.Event
	}{
		{kernels.EntryHorizontal, evX},
		{kernels.EntryVertical, evY},
		{"readImage", evRead},
	} {
		t, err := profiling.TimingOf(c.name, c.ev)
		if err != nil {
			return rep, nil, compute.Wrap(compute.KindDispatch, "profile trace", err)
		}
		trace = append(trace, t)
	}
	return rep, trace, nil
}

// DispatchHorizontal enqueues the horizontal pass with no dependencies.
func DispatchHorizontal(q compute.Queue, k *kernels.Kernel, g Geometry) (compute.Event, error) {
	ev, err := q.EnqueueKernel(k.Kernel, g.Global, g.Local, nil)
	if err != nil {
		return nil, compute.Ensure(compute.KindDispatch, "dispatch horizontal pass", err)
	}
	return ev, nil
}

// DispatchVertical enqueues the vertical pass gated on waitOn.
func DispatchVertical(q compute.Queue, k *kernels.Kernel, g Geometry, waitOn compute.Event) (compute.Event, error) {
	if waitOn == nil {
		return nil, compute.Errorf(compute.KindInvalidArgument, "dispatch vertical pass", "missing horizontal pass event")
	}
	ev, err := q.EnqueueKernel(k.Kernel, g.Global, g.Local, []compute.Event{waitOn})
	if err != nil {
		return nil, compute.Ensure(compute.KindDispatch, "dispatch vertical pass", err)
	}
	return ev, nil
}

// Readback blocks until waitOn completed and copies img to the host.
func Readback(q compute.Queue, img compute.Image, waitOn compute.Event) (compute.HostImage, compute.Event, error) {
	if waitOn == nil {
		return compute.HostImage{}, nil, compute.Errorf(compute.KindInvalidArgument, "readback", "missing vertical pass event")
	}
	return devmem.Download(q, img, waitOn)
}
