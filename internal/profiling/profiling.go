// Package profiling turns device event timestamps into a timing report.
package profiling

import (
	"fmt"
	"io"
	"time"

	"github.com/muesli/termenv"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/device"
)

// ElapsedDevice is the device time from the start of first to the end of last.
func ElapsedDevice(first, last compute.Event) (time.Duration, error) {
	start, _, err := first.Timestamps()
	if err != nil {
		return 0, fmt.Errorf("read start timestamp: %w", err)
	}
	_, end, err := last.Timestamps()
	if err != nil {
		return 0, fmt.Errorf("read end timestamp: %w", err)
	}
	return span(start, end)
}

// ElapsedKernel is the execution time of one command.
func ElapsedKernel(ev compute.Event) (time.Duration, error) {
	start, end, err := ev.Timestamps()
	if err != nil {
		return 0, fmt.Errorf("read timestamps: %w", err)
	}
	return span(start, end)
}

// ElapsedWallClock is the host time between two instants.
func ElapsedWallClock(start, end time.Time) time.Duration {
	return end.Sub(start)
}

func span(start, end uint64) (time.Duration, error) {
	if end < start {
		return 0, fmt.Errorf("end timestamp %d precedes start %d", end, start)
	}
	return time.Duration(end - start), nil
}

// Millis converts to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Report holds the timings of one run.
type Report struct {
	Horizontal  time.Duration // horizontal kernel only
	Vertical    time.Duration // vertical kernel only
	DeviceTotal time.Duration // horizontal start to vertical end
	Readback    time.Duration
	WallClock   time.Duration // host time from input upload to readback complete
}

// Timing is the device interval of one command.
type Timing struct {
	Command string `json:"command"`
	Start   uint64 `json:"start_ns"`
	End     uint64 `json:"end_ns"`
}

// Duration returns End-Start.
func (t Timing) Duration() time.Duration {
	if t.End < t.Start {
		return 0
	}
	return time.Duration(t.End - t.Start)
}

// TimingOf reads the interval of one completed command.
func TimingOf(command string, ev compute.Event) (Timing, error) {
	start, end, err := ev.Timestamps()
	if err != nil {
		return Timing{}, fmt.Errorf("%s: %w", command, err)
	}
	return Timing{Command: command, Start: start, End: end}, nil
}

type printer struct {
	out *termenv.Output
	w   io.Writer
	err error
}

func newPrinter(w io.Writer) *printer {
	return &printer{out: termenv.NewOutput(w), w: w}
}

func (p *printer) heading(s string) {
	p.printf("%s\n", p.out.String(s).Bold())
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// WriteReport prints the timing lines.
func WriteReport(w io.Writer, r Report) error {
	p := newPrinter(w)
	p.heading("Timing")
	p.printf("  Horizontal pass (device):          %10.3f ms\n", Millis(r.Horizontal))
	p.printf("  Vertical pass (device):            %10.3f ms\n", Millis(r.Vertical))
	p.printf("  Both passes incl. sync (device):   %10.3f ms\n", Millis(r.DeviceTotal))
	p.printf("  Readback (device):                 %10.3f ms\n", Millis(r.Readback))
	p.printf("  Total (wall clock):                %10.3f ms\n", Millis(r.WallClock))
	return p.err
}

// WriteCapabilities prints the device description.
func WriteCapabilities(w io.Writer, c device.Capabilities) error {
	p := newPrinter(w)
	p.heading("Device")
	if c.Platform.Name != "" {
		p.printf("  Platform:              %s (%s)\n", c.Platform.Name, c.Platform.Version)
	}
	p.printf("  Name:                  %s\n", c.Name)
	p.printf("  Vendor:                %s\n", c.Vendor)
	p.printf("  Type:                  %s\n", c.Type)
	p.printf("  Version:               %s\n", c.Version)
	p.printf("  OpenCL C version:      %s\n", c.OpenCLCVersion)
	p.printf("  Driver version:        %s\n", c.DriverVersion)
	p.printf("  Compute units:         %d\n", c.MaxComputeUnits)
	p.printf("  Max work-group size:   %d\n", c.MaxWorkGroupSize)
	p.printf("  Local memory:          %s\n", Bytes(c.LocalMemSize))
	p.printf("  Global memory:         %s\n", Bytes(c.GlobalMemSize))
	p.printf("  Global memory cache:   %s\n", Bytes(c.GlobalMemCacheSize))
	p.printf("  Image support:         %t\n", c.ImageSupport)
	p.printf("  Max image size:        %dx%d\n", c.Image2DMaxWidth, c.Image2DMaxHeight)
	if c.Profiling() {
		p.printf("  Profiling resolution:  %d ns\n", c.ProfilingTimerResolution)
	} else {
		p.printf("  Profiling resolution:  unsupported\n")
	}
	return p.err
}

// WriteFormat prints the device image format.
func WriteFormat(w io.Writer, f compute.ImageFormat) error {
	p := newPrinter(w)
	p.printf("%s %s\n", p.out.String("Image format:").Bold(), f)
	return p.err
}

// Bytes formats n with binary prefixes.
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
