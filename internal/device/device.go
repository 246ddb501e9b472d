// Package device discovers compute devices and opens a profiling session on one.
package device

import (
	"log/slog"
	"sync"

	"github.com/cwbudde/clblur/internal/compute"
)

// ListPlatforms returns every platform of the driver. None is not an error.
func ListPlatforms(drv compute.Driver) ([]compute.Platform, error) {
	platforms, err := drv.Platforms()
	if err != nil {
		return nil, err
	}
	if platforms == nil {
		platforms = []compute.Platform{}
	}
	return platforms, nil
}

// ListDevices returns the devices of p matching kind.
func ListDevices(drv compute.Driver, p compute.Platform, kind compute.DeviceType) ([]compute.Device, error) {
	devices, err := drv.Devices(p, kind)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []compute.Device{}
	}
	return devices, nil
}

// CreateContext opens a context on one device.
func CreateContext(drv compute.Driver, p compute.Platform, d compute.Device) (compute.Context, error) {
	ctx, err := drv.CreateContext(p, d)
	if err != nil {
		return nil, compute.Ensure(compute.KindDeviceUnavailable, "create context", err)
	}
	return ctx, nil
}

// CreateProfilingQueue creates a queue whose events carry timestamps.
func CreateProfilingQueue(ctx compute.Context, d compute.Device) (compute.Queue, error) {
	info := d.Info()
	if info.ProfilingTimerResolution <= 0 {
		return nil, compute.Errorf(compute.KindQueueCreation, "create queue", "device %q has no profiling timer", info.Name)
	}
	q, err := ctx.CreateProfilingQueue(d)
	if err != nil {
		return nil, compute.Ensure(compute.KindQueueCreation, "create queue", err)
	}
	return q, nil
}

// Capabilities is the printable description of a device.
type Capabilities struct {
	Platform compute.PlatformInfo
	compute.DeviceInfo
}

// Profiling reports whether the device can timestamp commands.
func (c Capabilities) Profiling() bool {
	return c.ProfilingTimerResolution > 0
}

// Describe reads the capabilities of d.
func Describe(p compute.Platform, d compute.Device) Capabilities {
	c := Capabilities{DeviceInfo: d.Info()}
	if p != nil {
		c.Platform = p.Info()
	}
	return c
}

// Selection is a platform and one of its devices.
type Selection struct {
	Platform compute.Platform
	Device   compute.Device
}

// Session owns the context and profiling queue of one run.
type Session struct {
	Driver   compute.Driver
	Platform compute.Platform
	Device   compute.Device
	Context  compute.Context
	Queue    compute.Queue

	closeOnce sync.Once
}

// Open creates a context and a profiling queue for sel. On failure nothing
// stays allocated.
func Open(drv compute.Driver, sel Selection) (*Session, error) {
	if sel.Platform == nil || sel.Device == nil {
		return nil, compute.Errorf(compute.KindInvalidArgument, "open session", "no device selected")
	}
	ctx, err := CreateContext(drv, sel.Platform, sel.Device)
	if err != nil {
		return nil, err
	}
	q, err := CreateProfilingQueue(ctx, sel.Device)
	if err != nil {
		ctx.Release()
		return nil, err
	}
	slog.Info("device session opened",
		"driver", drv.Name(),
		"platform", sel.Platform.Info().Name,
		"device", sel.Device.Info().Name,
	)
	return &Session{
		Driver:   drv,
		Platform: sel.Platform,
		Device:   sel.Device,
		Context:  ctx,
		Queue:    q,
	}, nil
}

// Capabilities describes the session device.
func (s *Session) Capabilities() Capabilities {
	return Describe(s.Platform, s.Device)
}

// Close releases the queue, then the context. It is safe to call twice.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.Queue != nil {
			s.Queue.Release()
		}
		if s.Context != nil {
			s.Context.Release()
		}
	})
}
