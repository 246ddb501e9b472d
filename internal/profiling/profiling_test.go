package profiling

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/device"
)

type stampedEvent struct {
	start, end uint64
	err        error
}

func (e stampedEvent) Wait() error                          { return e.err }
func (e stampedEvent) Timestamps() (uint64, uint64, error) { return e.start, e.end, e.err }
func (e stampedEvent) Release()                             {}

func TestElapsed(t *testing.T) {
	x := stampedEvent{start: 1_000, end: 3_001_000}
	y := stampedEvent{start: 3_500_000, end: 5_000_000}

	d, err := ElapsedDevice(x, y)
	require.NoError(t, err)
	assert.Equal(t, 4_999_000*time.Nanosecond, d)

	k, err := ElapsedKernel(x)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Millisecond, k)
	assert.InDelta(t, 3.0, Millis(k), 1e-9)

	_, err = ElapsedDevice(y, x)
	assert.Error(t, err, "end before start")

	_, err = ElapsedKernel(stampedEvent{err: errors.New("not complete")})
	assert.Error(t, err)

	now := time.Now()
	assert.Equal(t, 2*time.Second, ElapsedWallClock(now, now.Add(2*time.Second)))
}

func TestTimingOf(t *testing.T) {
	tm, err := TimingOf("convolveX", stampedEvent{start: 10, end: 30})
	require.NoError(t, err)
	assert.Equal(t, "convolveX", tm.Command)
	assert.Equal(t, 20*time.Nanosecond, tm.Duration())
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	err := WriteReport(&buf, Report{
		Horizontal:  1500 * time.Microsecond,
		DeviceTotal: 3 * time.Millisecond,
		WallClock:   10 * time.Millisecond,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Timing")
	assert.Contains(t, out, "1.500 ms")
	assert.Contains(t, out, "3.000 ms")
	assert.Contains(t, out, "10.000 ms")
	assert.NotContains(t, out, "\x1b[", "no escape codes for non-terminals")
}

func TestWriteCapabilities(t *testing.T) {
	var buf bytes.Buffer
	caps := device.Capabilities{
		Platform: compute.PlatformInfo{Name: "Test", Version: "1.2"},
		DeviceInfo: compute.DeviceInfo{
			Name:             "Fake GPU",
			Type:             compute.DeviceTypeGPU,
			LocalMemSize:     48 << 10,
			GlobalMemSize:    8 << 30,
			Image2DMaxWidth:  16384,
			Image2DMaxHeight: 8192,
		},
	}
	require.NoError(t, WriteCapabilities(&buf, caps))
	out := buf.String()
	assert.Contains(t, out, "Fake GPU")
	assert.Contains(t, out, "16384x8192")
	assert.Contains(t, out, "48.0 KiB")
	assert.Contains(t, out, "8.0 GiB")
	assert.Contains(t, out, "unsupported")

	buf.Reset()
	require.NoError(t, WriteFormat(&buf, compute.FormatRGBA))
	assert.True(t, strings.HasPrefix(buf.String(), "Image format:"))
	assert.Contains(t, buf.String(), "RGBA")
}
