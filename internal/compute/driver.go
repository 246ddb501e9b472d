// Package compute defines the device abstraction the blur pipeline runs on.
//
// A Driver enumerates platforms and devices and opens contexts. Everything
// allocated from a Context (queues, buffers, images, programs) must be
// released before the Context itself. Commands enqueued on a Queue return
// Events that double as dependency tokens: a command only starts once every
// event in its wait list has completed. Drivers may execute independent
// commands out of submission order.
package compute

// Driver is the entry point of a compute backend.
type Driver interface {
	Name() string
	Platforms() ([]Platform, error)
	// Devices lists devices of the platform that pass the kind filter.
	// No matching device yields an empty slice and a nil error.
	Devices(p Platform, kind DeviceType) ([]Device, error)
	CreateContext(p Platform, d Device) (Context, error)
}

// Platform is an opaque platform handle.
type Platform interface {
	Info() PlatformInfo
}

// Device is an opaque device handle.
type Device interface {
	Info() DeviceInfo
}

// Context owns every device object created through it.
type Context interface {
	// CreateProfilingQueue fails with ErrQueueCreation if the device cannot
	// timestamp commands.
	CreateProfilingQueue(d Device) (Queue, error)
	// CreateFilterBuffer allocates a read-only buffer initialised with weights.
	CreateFilterBuffer(weights []float32) (Buffer, error)
	// CreateImage allocates a 2D image. A nil pix leaves the content undefined,
	// otherwise pix is copied to the device.
	CreateImage(format ImageFormat, width, height int, pix []byte) (Image, error)
	// CreateProgram compiles device source. Compiler rejections are returned
	// as *CompileError.
	CreateProgram(source string) (Program, error)
	Release()
}

// Queue is an ordered submission channel with profiling enabled.
type Queue interface {
	// EnqueueKernel submits k over a 2D range. It returns immediately.
	EnqueueKernel(k Kernel, global, local [2]int, waitOn []Event) (Event, error)
	// ReadImage blocks until waitOn completed and the image was copied into dst.
	ReadImage(img Image, dst []byte, waitOn []Event) (Event, error)
	// Finish blocks until every submitted command completed.
	Finish() error
	Release()
}

// Buffer is a linear device allocation.
type Buffer interface {
	Len() int
	Release()
}

// Image is a 2D device image.
type Image interface {
	Format() ImageFormat
	Width() int
	Height() int
	Release()
}

// Program is compiled device source.
type Program interface {
	// CreateKernel fails with ErrEntryPointNotFound for unknown names.
	CreateKernel(name string) (Kernel, error)
	Release()
}

// Kernel is one entry point of a Program. Arguments are Image, Buffer or int32.
type Kernel interface {
	Name() string
	SetArgs(args ...any) error
	Release()
}

// Event tracks one enqueued command.
type Event interface {
	// Wait blocks until the command completed.
	Wait() error
	// Timestamps returns the device clock, in nanoseconds, at which the
	// command started and finished executing.
	Timestamps() (start, end uint64, err error)
	Release()
}
