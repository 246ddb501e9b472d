// Package refdev is a pure Go compute device.
//
// It executes the blur entry points natively on the host, timestamps every
// command against a per-context clock and runs enqueued commands concurrently,
// ordering them only by their wait lists. Latency can be injected per kernel
// to make ordering bugs observable in tests.
package refdev

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cwbudde/clblur/internal/compute"
)

// DriverName is the registry name of this driver.
const DriverName = "reference"

const (
	defaultMaxWorkGroupSize = 1024
	defaultMaxImageSize     = 16384
)

// Option configures a Driver.
type Option func(*Driver)

// WithLatency delays every execution of the named kernel by d before it runs.
func WithLatency(kernel string, d time.Duration) Option {
	return func(drv *Driver) {
		drv.latency[kernel] = d
	}
}

// WithoutProfiling makes the device report no profiling timer, so profiling
// queues cannot be created.
func WithoutProfiling() Option {
	return func(drv *Driver) {
		drv.device.info.ProfilingTimerResolution = 0
	}
}

// WithMaxWorkGroupSize sets the largest local work-group the device accepts.
func WithMaxWorkGroupSize(n int) Option {
	return func(drv *Driver) {
		drv.device.info.MaxWorkGroupSize = n
	}
}

// WithMaxImageSize sets the 2D image limits.
func WithMaxImageSize(w, h int) Option {
	return func(drv *Driver) {
		drv.device.info.Image2DMaxWidth = w
		drv.device.info.Image2DMaxHeight = h
	}
}

// WithUnavailable makes context creation fail.
func WithUnavailable() Option {
	return func(drv *Driver) {
		drv.unavailable = true
	}
}

// Driver implements compute.Driver with one platform and one CPU device.
type Driver struct {
	platform    *platform
	device      *device
	latency     map[string]time.Duration
	unavailable bool
}

var _ compute.Driver = (*Driver)(nil)

// New creates a reference driver.
func New(opts ...Option) *Driver {
	drv := &Driver{
		platform: &platform{info: compute.PlatformInfo{
			Name:    "Reference",
			Vendor:  "clblur",
			Version: "OpenCL 1.2 reference",
		}},
		latency: make(map[string]time.Duration),
	}
	drv.device = &device{
		platform: drv.platform,
		info: compute.DeviceInfo{
			Name:                     "Reference CPU",
			Vendor:                   "clblur",
			Version:                  "OpenCL 1.2",
			OpenCLCVersion:           "OpenCL C 1.2",
			DriverVersion:            "1.0",
			Type:                     compute.DeviceTypeCPU,
			LocalMemSize:             32 << 10,
			GlobalMemSize:            1 << 30,
			GlobalMemCacheSize:       256 << 10,
			MaxComputeUnits:          runtime.NumCPU(),
			MaxWorkGroupSize:         defaultMaxWorkGroupSize,
			Image2DMaxWidth:          defaultMaxImageSize,
			Image2DMaxHeight:         defaultMaxImageSize,
			ImageSupport:             true,
			ProfilingTimerResolution: 1,
		},
	}
	for _, opt := range opts {
		opt(drv)
	}
	return drv
}

func (drv *Driver) Name() string { return DriverName }

func (drv *Driver) Platforms() ([]compute.Platform, error) {
	return []compute.Platform{drv.platform}, nil
}

func (drv *Driver) Devices(p compute.Platform, kind compute.DeviceType) ([]compute.Device, error) {
	if p != compute.Platform(drv.platform) {
		return nil, compute.Errorf(compute.KindInvalidArgument, "list devices", "platform %q does not belong to this driver", p.Info().Name)
	}
	if !kind.Matches(drv.device.info.Type) {
		return []compute.Device{}, nil
	}
	return []compute.Device{drv.device}, nil
}

func (drv *Driver) CreateContext(p compute.Platform, d compute.Device) (compute.Context, error) {
	dev, ok := d.(*device)
	if !ok || dev != drv.device || p != compute.Platform(drv.platform) {
		return nil, compute.Errorf(compute.KindDeviceUnavailable, "create context", "device does not belong to this driver")
	}
	if drv.unavailable {
		return nil, compute.Errorf(compute.KindDeviceUnavailable, "create context", "device %q is not available", dev.info.Name)
	}
	return &context{drv: drv, dev: dev, epoch: time.Now()}, nil
}

type platform struct {
	info compute.PlatformInfo
}

func (p *platform) Info() compute.PlatformInfo { return p.info }

type device struct {
	platform *platform
	info     compute.DeviceInfo
}

func (d *device) Info() compute.DeviceInfo { return d.info }

type context struct {
	drv   *Driver
	dev   *device
	epoch time.Time

	mu       sync.Mutex
	released bool
}

// now returns the device clock in nanoseconds.
func (c *context) now() uint64 {
	return uint64(time.Since(c.epoch).Nanoseconds())
}

func (c *context) alive(stage string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return compute.Errorf(compute.KindInvalidArgument, stage, "context released")
	}
	return nil
}

func (c *context) CreateProfilingQueue(d compute.Device) (compute.Queue, error) {
	if err := c.alive("create queue"); err != nil {
		return nil, err
	}
	dev, ok := d.(*device)
	if !ok || dev != c.dev {
		return nil, compute.Errorf(compute.KindQueueCreation, "create queue", "device is not part of this context")
	}
	if dev.info.ProfilingTimerResolution <= 0 {
		return nil, compute.Errorf(compute.KindQueueCreation, "create queue", "device %q does not support profiling", dev.info.Name)
	}
	return &queue{ctx: c}, nil
}

func (c *context) CreateFilterBuffer(weights []float32) (compute.Buffer, error) {
	if err := c.alive("create buffer"); err != nil {
		return nil, err
	}
	if len(weights) == 0 {
		return nil, compute.Errorf(compute.KindTransfer, "create buffer", "empty buffer")
	}
	return &buffer{data: append([]float32(nil), weights...)}, nil
}

func (c *context) CreateImage(format compute.ImageFormat, width, height int, pix []byte) (compute.Image, error) {
	if err := c.alive("create image"); err != nil {
		return nil, err
	}
	if !format.Valid() {
		return nil, compute.Errorf(compute.KindTransfer, "create image", "unsupported %s", format)
	}
	if width <= 0 || height <= 0 || width > c.dev.info.Image2DMaxWidth || height > c.dev.info.Image2DMaxHeight {
		return nil, compute.Errorf(compute.KindTransfer, "create image", "invalid image size %dx%d", width, height)
	}
	size := width * height * format.BytesPerPixel()
	img := &image{format: format, width: width, height: height, pix: make([]byte, size)}
	if pix != nil {
		if len(pix) != size {
			return nil, compute.Errorf(compute.KindTransfer, "create image", "host data has %d bytes, want %d", len(pix), size)
		}
		copy(img.pix, pix)
	}
	return img, nil
}

func (c *context) CreateProgram(source string) (compute.Program, error) {
	if err := c.alive("build program"); err != nil {
		return nil, err
	}
	return compile(source)
}

func (c *context) Release() {
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
}

type buffer struct {
	data []float32
}

func (b *buffer) Len() int  { return len(b.data) }
func (b *buffer) Release()  {}
func (b *buffer) String() string {
	return fmt.Sprintf("buffer(%d floats)", len(b.data))
}

// image guards its pixels so concurrent commands never race; ordering is
// still only what the wait lists give.
type image struct {
	format compute.ImageFormat
	width  int
	height int

	mu  sync.RWMutex
	pix []byte
}

func (img *image) Format() compute.ImageFormat { return img.format }
func (img *image) Width() int                  { return img.width }
func (img *image) Height() int                 { return img.height }
func (img *image) Release()                    {}

func (img *image) snapshot() []byte {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return append([]byte(nil), img.pix...)
}

func (img *image) store(pix []byte) {
	img.mu.Lock()
	copy(img.pix, pix)
	img.mu.Unlock()
}
