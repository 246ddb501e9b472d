//go:build gpu

package opencl

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jgillich/go-opencl/cl"

	"github.com/cwbudde/clblur/internal/compute"
)

// clPlatformNotFoundKHR is returned by ICD loaders when no platform is installed.
const clPlatformNotFoundKHR = -1001

// Driver implements compute.Driver on the system OpenCL runtime.
type Driver struct{}

var _ compute.Driver = (*Driver)(nil)

// New returns the OpenCL driver.
func New() (compute.Driver, error) {
	return &Driver{}, nil
}

func (*Driver) Name() string { return DriverName }

func (*Driver) Platforms() ([]compute.Platform, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		var code cl.ErrOther
		if errors.As(err, &code) && int(code) == clPlatformNotFoundKHR {
			return []compute.Platform{}, nil
		}
		return nil, compute.Wrap(compute.KindDeviceUnavailable, "list platforms", err)
	}
	out := make([]compute.Platform, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, &platform{p: p})
	}
	return out, nil
}

func (*Driver) Devices(p compute.Platform, kind compute.DeviceType) ([]compute.Device, error) {
	plat, ok := p.(*platform)
	if !ok {
		return nil, compute.Errorf(compute.KindInvalidArgument, "list devices", "platform %T is not an OpenCL platform", p)
	}
	devices, err := plat.p.GetDevices(toCLType(kind))
	if errors.Is(err, cl.ErrDeviceNotFound) {
		return []compute.Device{}, nil
	}
	if err != nil {
		return nil, compute.Wrap(compute.KindDeviceUnavailable, "list devices", err)
	}
	out := make([]compute.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, &device{d: d})
	}
	return out, nil
}

func (*Driver) CreateContext(p compute.Platform, d compute.Device) (compute.Context, error) {
	dev, ok := d.(*device)
	if !ok {
		return nil, compute.Errorf(compute.KindDeviceUnavailable, "create context", "device %T is not an OpenCL device", d)
	}
	if !dev.d.Available() {
		return nil, compute.Errorf(compute.KindDeviceUnavailable, "create context", "device %q is not available", dev.d.Name())
	}
	ctx, err := cl.CreateContext([]*cl.Device{dev.d})
	if err != nil {
		return nil, compute.Wrap(compute.KindDeviceUnavailable, "create context", err)
	}
	slog.Debug("opencl context created", "platform", p.Info().Name, "device", dev.d.Name())
	return &context{ctx: ctx, dev: dev}, nil
}

func toCLType(kind compute.DeviceType) cl.DeviceType {
	switch kind {
	case compute.DeviceTypeGPU:
		return cl.DeviceTypeGPU
	case compute.DeviceTypeCPU:
		return cl.DeviceTypeCPU
	case compute.DeviceTypeAccelerator:
		return cl.DeviceTypeAccelerator
	case compute.DeviceTypeDefault:
		return cl.DeviceTypeDefault
	default:
		return cl.DeviceTypeAll
	}
}

func fromCLType(t cl.DeviceType) compute.DeviceType {
	switch {
	case t&cl.DeviceTypeGPU != 0:
		return compute.DeviceTypeGPU
	case t&cl.DeviceTypeCPU != 0:
		return compute.DeviceTypeCPU
	case t&cl.DeviceTypeAccelerator != 0:
		return compute.DeviceTypeAccelerator
	case t&cl.DeviceTypeDefault != 0:
		return compute.DeviceTypeDefault
	default:
		return compute.DeviceTypeUnknown
	}
}

type platform struct {
	p *cl.Platform
}

func (p *platform) Info() compute.PlatformInfo {
	return compute.PlatformInfo{
		Name:    p.p.Name(),
		Vendor:  p.p.Vendor(),
		Version: p.p.Version(),
	}
}

type device struct {
	d *cl.Device
}

func (d *device) Info() compute.DeviceInfo {
	return compute.DeviceInfo{
		Name:                     d.d.Name(),
		Vendor:                   d.d.Vendor(),
		Version:                  d.d.Version(),
		OpenCLCVersion:           d.d.OpenCLCVersion(),
		DriverVersion:            d.d.DriverVersion(),
		Type:                     fromCLType(d.d.Type()),
		LocalMemSize:             d.d.LocalMemSize(),
		GlobalMemSize:            d.d.GlobalMemSize(),
		GlobalMemCacheSize:       int64(d.d.GlobalMemCacheSize()),
		MaxComputeUnits:          d.d.MaxComputeUnits(),
		MaxWorkGroupSize:         d.d.MaxWorkGroupSize(),
		Image2DMaxWidth:          d.d.Image2DMaxWidth(),
		Image2DMaxHeight:         d.d.Image2DMaxHeight(),
		ImageSupport:             d.d.ImageSupport(),
		ProfilingTimerResolution: d.d.ProfilingTimerResolution(),
	}
}

type context struct {
	ctx *cl.Context
	dev *device
}

func (c *context) CreateProfilingQueue(d compute.Device) (compute.Queue, error) {
	dev, ok := d.(*device)
	if !ok {
		return nil, compute.Errorf(compute.KindQueueCreation, "create queue", "device %T is not an OpenCL device", d)
	}
	q, err := c.ctx.CreateCommandQueue(dev.d, cl.CommandQueueProfilingEnable)
	if err != nil {
		return nil, compute.Wrap(compute.KindQueueCreation, "create queue", err)
	}
	return &queue{q: q}, nil
}

func (c *context) CreateFilterBuffer(weights []float32) (compute.Buffer, error) {
	mem, err := c.ctx.CreateBufferFloat32(cl.MemReadOnly|cl.MemCopyHostPtr, weights)
	if err != nil {
		return nil, compute.Wrap(compute.KindTransfer, "create buffer", err)
	}
	return &buffer{mem: mem, n: len(weights)}, nil
}

func (c *context) CreateImage(format compute.ImageFormat, width, height int, pix []byte) (compute.Image, error) {
	order, dtype, err := toCLFormat(format)
	if err != nil {
		return nil, compute.Wrap(compute.KindTransfer, "create image", err)
	}
	flags := cl.MemReadWrite
	if pix != nil {
		flags |= cl.MemCopyHostPtr
	}
	mem, err := c.ctx.CreateImageSimple(flags, width, height, order, dtype, pix)
	if err != nil {
		return nil, compute.Wrap(compute.KindTransfer, "create image", err)
	}
	return &image{mem: mem, format: format, width: width, height: height}, nil
}

func (c *context) CreateProgram(source string) (compute.Program, error) {
	prog, err := c.ctx.CreateProgramWithSource([]string{source})
	if err != nil {
		return nil, &compute.CompileError{Err: err}
	}
	if err := prog.BuildProgram([]*cl.Device{c.dev.d}, ""); err != nil {
		prog.Release()
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			return nil, &compute.CompileError{Log: string(buildErr), Err: cl.ErrBuildProgramFailure}
		}
		return nil, &compute.CompileError{Err: err}
	}
	return &program{p: prog}, nil
}

func (c *context) Release() {
	c.ctx.Release()
}

func toCLFormat(f compute.ImageFormat) (cl.ChannelOrder, cl.ChannelDataType, error) {
	if f.Type != compute.ChannelTypeUNormInt8 {
		return 0, 0, fmt.Errorf("unsupported channel type %s", f.Type)
	}
	switch f.Order {
	case compute.ChannelOrderR:
		return cl.ChannelOrderR, cl.ChannelDataTypeUNormInt8, nil
	case compute.ChannelOrderRGBA:
		return cl.ChannelOrderRGBA, cl.ChannelDataTypeUNormInt8, nil
	default:
		return 0, 0, fmt.Errorf("unsupported channel order %s", f.Order)
	}
}

type buffer struct {
	mem *cl.MemObject
	n   int
}

func (b *buffer) Len() int { return b.n }
func (b *buffer) Release() { b.mem.Release() }

type image struct {
	mem           *cl.MemObject
	format        compute.ImageFormat
	width, height int
}

func (img *image) Format() compute.ImageFormat { return img.format }
func (img *image) Width() int                  { return img.width }
func (img *image) Height() int                 { return img.height }
func (img *image) Release()                    { img.mem.Release() }

type program struct {
	p *cl.Program
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	k, err := p.p.CreateKernel(name)
	if err != nil {
		if errors.Is(err, cl.ErrInvalidKernelName) {
			return nil, compute.Wrap(compute.KindEntryPointNotFound, "create kernel "+name, err)
		}
		return nil, compute.Wrap(compute.KindCompile, "create kernel "+name, err)
	}
	return &kernel{k: k, name: name}, nil
}

func (p *program) Release() { p.p.Release() }

type kernel struct {
	k    *cl.Kernel
	name string
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) SetArgs(args ...any) error {
	native := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *image:
			native[i] = v.mem
		case *buffer:
			native[i] = v.mem
		case int32, float32:
			native[i] = v
		default:
			return compute.Errorf(compute.KindArgumentMismatch, "set args "+k.name, "argument %d: unsupported type %T", i, a)
		}
	}
	if err := k.k.SetArgs(native...); err != nil {
		return compute.Wrap(compute.KindArgumentMismatch, "set args "+k.name, err)
	}
	return nil
}

func (k *kernel) Release() { k.k.Release() }

type queue struct {
	q *cl.CommandQueue
}

func events(waitOn []compute.Event) ([]*cl.Event, error) {
	if len(waitOn) == 0 {
		return nil, nil
	}
	out := make([]*cl.Event, 0, len(waitOn))
	for i, w := range waitOn {
		ev, ok := w.(*event)
		if !ok || ev == nil {
			return nil, fmt.Errorf("wait list entry %d is not an OpenCL event", i)
		}
		out = append(out, ev.e)
	}
	return out, nil
}

func (q *queue) EnqueueKernel(k compute.Kernel, global, local [2]int, waitOn []compute.Event) (compute.Event, error) {
	kern, ok := k.(*kernel)
	if !ok {
		return nil, compute.Errorf(compute.KindDispatch, "enqueue kernel", "kernel %T is not an OpenCL kernel", k)
	}
	stage := "enqueue " + kern.name
	wait, err := events(waitOn)
	if err != nil {
		return nil, compute.Wrap(compute.KindDispatch, stage, err)
	}
	ev, err := q.q.EnqueueNDRangeKernel(kern.k, nil, global[:], local[:], wait)
	if err != nil {
		kind := compute.KindDispatch
		if errors.Is(err, cl.ErrInvalidKernelArgs) {
			kind = compute.KindArgumentMismatch
		}
		return nil, compute.Wrap(kind, stage, err)
	}
	return &event{e: ev}, nil
}

func (q *queue) ReadImage(img compute.Image, dst []byte, waitOn []compute.Event) (compute.Event, error) {
	src, ok := img.(*image)
	if !ok {
		return nil, compute.Errorf(compute.KindTransfer, "read image", "image %T is not an OpenCL image", img)
	}
	wait, err := events(waitOn)
	if err != nil {
		return nil, compute.Wrap(compute.KindTransfer, "read image", err)
	}
	region := [3]int{src.width, src.height, 1}
	rowPitch := src.width * src.format.BytesPerPixel()
	ev, err := q.q.EnqueueReadImage(src.mem, true, [3]int{}, region, rowPitch, 0, dst, wait)
	if err != nil {
		return nil, compute.Wrap(compute.KindTransfer, "read image", err)
	}
	return &event{e: ev}, nil
}

func (q *queue) Finish() error {
	return q.q.Finish()
}

func (q *queue) Release() { q.q.Release() }

type event struct {
	e *cl.Event
}

func (e *event) Wait() error {
	return cl.WaitForEvents([]*cl.Event{e.e})
}

func (e *event) Timestamps() (uint64, uint64, error) {
	start, err := e.e.GetEventProfilingInfo(cl.ProfilingInfoCommandStart)
	if err != nil {
		return 0, 0, err
	}
	end, err := e.e.GetEventProfilingInfo(cl.ProfilingInfoCommandEnd)
	if err != nil {
		return 0, 0, err
	}
	return uint64(start), uint64(end), nil
}

func (e *event) Release() { e.e.Release() }
