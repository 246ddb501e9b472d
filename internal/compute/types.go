package compute

import (
	"fmt"
	"strings"
)

// DeviceType describes the class of a compute device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"

	// DeviceTypeAll is only meaningful as a listing filter.
	DeviceTypeAll DeviceType = "All"
)

// ParseDeviceType maps user input to a device type filter.
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "any":
		return DeviceTypeAll, nil
	case "gpu":
		return DeviceTypeGPU, nil
	case "cpu":
		return DeviceTypeCPU, nil
	case "accelerator", "acc":
		return DeviceTypeAccelerator, nil
	case "default":
		return DeviceTypeDefault, nil
	default:
		return "", Errorf(KindInvalidArgument, "parse device type", "unknown device type %q", s)
	}
}

// Matches reports whether a device of type t passes the filter.
func (filter DeviceType) Matches(t DeviceType) bool {
	return filter == DeviceTypeAll || filter == "" || filter == t
}

// PlatformInfo captures metadata about a compute platform.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
}

// DeviceInfo captures the capability attributes of a device.
type DeviceInfo struct {
	Name           string
	Vendor         string
	Version        string
	OpenCLCVersion string
	DriverVersion  string
	Type           DeviceType

	LocalMemSize       int64
	GlobalMemSize      int64
	GlobalMemCacheSize int64
	MaxComputeUnits    int
	MaxWorkGroupSize   int
	Image2DMaxWidth    int
	Image2DMaxHeight   int
	ImageSupport       bool

	// ProfilingTimerResolution is the device timer resolution in nanoseconds.
	// Zero means the device cannot timestamp commands.
	ProfilingTimerResolution int
}

// ChannelOrder names the channel layout of an image.
type ChannelOrder string

const (
	ChannelOrderR    ChannelOrder = "R"
	ChannelOrderRGBA ChannelOrder = "RGBA"
)

// ChannelType names the storage type of one channel.
type ChannelType string

const (
	ChannelTypeUNormInt8 ChannelType = "UNormInt8"
)

// ImageFormat describes pixel storage on both host and device.
type ImageFormat struct {
	Order ChannelOrder
	Type  ChannelType
}

var (
	FormatGray = ImageFormat{Order: ChannelOrderR, Type: ChannelTypeUNormInt8}
	FormatRGBA = ImageFormat{Order: ChannelOrderRGBA, Type: ChannelTypeUNormInt8}
)

// Channels returns the number of channels per pixel.
func (f ImageFormat) Channels() int {
	switch f.Order {
	case ChannelOrderR:
		return 1
	case ChannelOrderRGBA:
		return 4
	default:
		return 0
	}
}

// BytesPerPixel returns the packed pixel size.
func (f ImageFormat) BytesPerPixel() int {
	return f.Channels()
}

// Valid reports whether the format is one the drivers understand.
func (f ImageFormat) Valid() bool {
	return f.Channels() > 0 && f.Type == ChannelTypeUNormInt8
}

func (f ImageFormat) String() string {
	return fmt.Sprintf("ImageFormat(%s, %s)", f.Order, f.Type)
}

// HostImage is a tightly packed image in host memory.
type HostImage struct {
	Format ImageFormat
	Width  int
	Height int
	Pix    []byte
}

// NewHostImage allocates a zeroed host image.
func NewHostImage(format ImageFormat, width, height int) HostImage {
	return HostImage{
		Format: format,
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*format.BytesPerPixel()),
	}
}

// Stride returns the row pitch in bytes.
func (h HostImage) Stride() int {
	return h.Width * h.Format.BytesPerPixel()
}

// Validate checks that the pixel buffer matches the declared geometry.
func (h HostImage) Validate() error {
	if !h.Format.Valid() {
		return Errorf(KindInvalidArgument, "host image", "unsupported format %s", h.Format)
	}
	if h.Width <= 0 || h.Height <= 0 {
		return Errorf(KindInvalidArgument, "host image", "invalid size %dx%d", h.Width, h.Height)
	}
	if want := h.Stride() * h.Height; len(h.Pix) != want {
		return Errorf(KindInvalidArgument, "host image", "pixel buffer has %d bytes, want %d", len(h.Pix), want)
	}
	return nil
}

// Clone returns a deep copy.
func (h HostImage) Clone() HostImage {
	out := h
	out.Pix = append([]byte(nil), h.Pix...)
	return out
}

// WorkGroupExceeds reports whether a positive local shape holds more than
// max work items. It never forms the product, so huge shapes cannot wrap.
func WorkGroupExceeds(local [2]int, max int) bool {
	return local[0] > max/local[1]
}
