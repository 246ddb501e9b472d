// Package devmem moves filters and images between host and device memory.
package devmem

import (
	"log/slog"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/filter"
)

// UploadFilter copies the weights into a read-only device buffer.
func UploadFilter(ctx compute.Context, k filter.Kernel) (compute.Buffer, error) {
	if k.Len() == 0 {
		return nil, compute.Errorf(compute.KindInvalidArgument, "upload filter", "empty filter")
	}
	buf, err := ctx.CreateFilterBuffer(k.Weights)
	if err != nil {
		return nil, compute.Ensure(compute.KindTransfer, "upload filter", err)
	}
	slog.Debug("filter uploaded", "taps", k.Len())
	return buf, nil
}

// Limits are the device 2D image bounds. Zero means unbounded.
type Limits struct {
	MaxWidth  int
	MaxHeight int
}

// LimitsOf reads the image limits of a device.
func LimitsOf(d compute.Device) Limits {
	info := d.Info()
	return Limits{MaxWidth: info.Image2DMaxWidth, MaxHeight: info.Image2DMaxHeight}
}

func (l Limits) check(stage string, w, h int) error {
	if w <= 0 || h <= 0 {
		return compute.Errorf(compute.KindInvalidArgument, stage, "invalid image size %dx%d", w, h)
	}
	if (l.MaxWidth > 0 && w > l.MaxWidth) || (l.MaxHeight > 0 && h > l.MaxHeight) {
		return compute.Errorf(compute.KindInvalidArgument, stage, "image %dx%d exceeds device limit %dx%d", w, h, l.MaxWidth, l.MaxHeight)
	}
	return nil
}

// CreateInputImage allocates a device image initialised with host pixels.
func CreateInputImage(ctx compute.Context, lim Limits, host compute.HostImage) (compute.Image, error) {
	if err := host.Validate(); err != nil {
		return nil, err
	}
	if err := lim.check("create input image", host.Width, host.Height); err != nil {
		return nil, err
	}
	img, err := ctx.CreateImage(host.Format, host.Width, host.Height, host.Pix)
	if err != nil {
		return nil, compute.Ensure(compute.KindTransfer, "create input image", err)
	}
	return img, nil
}

// CreateScratchImage allocates an image with undefined content.
func CreateScratchImage(ctx compute.Context, lim Limits, format compute.ImageFormat, w, h int) (compute.Image, error) {
	if !format.Valid() {
		return nil, compute.Errorf(compute.KindInvalidArgument, "create scratch image", "unsupported %s", format)
	}
	if err := lim.check("create scratch image", w, h); err != nil {
		return nil, err
	}
	img, err := ctx.CreateImage(format, w, h, nil)
	if err != nil {
		return nil, compute.Ensure(compute.KindTransfer, "create scratch image", err)
	}
	return img, nil
}

// Download blocks until waitOn completed and returns the image content.
// The returned event times the copy itself.
func Download(q compute.Queue, img compute.Image, waitOn compute.Event) (compute.HostImage, compute.Event, error) {
	host := compute.NewHostImage(img.Format(), img.Width(), img.Height())
	var wait []compute.Event
	if waitOn != nil {
		wait = []compute.Event{waitOn}
	}
	ev, err := q.ReadImage(img, host.Pix, wait)
	if err != nil {
		return compute.HostImage{}, nil, compute.Ensure(compute.KindTransfer, "download image", err)
	}
	return host, ev, nil
}
