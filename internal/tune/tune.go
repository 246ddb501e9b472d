package tune

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"sort"
	"time"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/device"
	"github.com/cwbudde/clblur/internal/pipeline"
	"github.com/cwbudde/clblur/internal/profiling"
)

// penalty is the cost of shapes the device rejects.
const penalty = 1e12

// Measurement is the device time of one work-group shape.
type Measurement struct {
	Local  [2]int
	Device time.Duration
	Err    error
}

// Result is the outcome of a search.
type Result struct {
	Best     Measurement
	Measured []Measurement // every distinct shape tried, fastest first
}

// WorkGroupTuner blurs one image repeatedly with different local sizes.
// Shapes are powers of two on each axis, bounded by the device maximum
// work-group size.
type WorkGroupTuner struct {
	Session   *device.Session
	Options   pipeline.Options
	Image     compute.HostImage
	Optimizer Optimizer
	// Repeats runs each shape several times and keeps the fastest.
	Repeats int
}

// MaxExponent returns the largest e such that a 2^e x 1 work-group fits.
func MaxExponent(maxWorkGroup int) int {
	if maxWorkGroup < 1 {
		return 0
	}
	return bits.Len(uint(maxWorkGroup)) - 1
}

// ShapeOf maps an optimizer position to a work-group shape.
func ShapeOf(pos []float64, maxExp int) [2]int {
	var out [2]int
	for d := 0; d < 2; d++ {
		e := int(math.Round(pos[d]))
		if e < 0 {
			e = 0
		}
		if e > maxExp {
			e = maxExp
		}
		out[d] = 1 << e
	}
	return out
}

// Tune runs the search. It fails only if no shape could be measured.
func (t *WorkGroupTuner) Tune(ctx context.Context) (*Result, error) {
	if t.Session == nil || t.Optimizer == nil {
		return nil, compute.Errorf(compute.KindInvalidArgument, "tune", "tuner needs a session and an optimizer")
	}
	if err := t.Image.Validate(); err != nil {
		return nil, err
	}
	maxWG := t.Session.Capabilities().MaxWorkGroupSize
	maxExp := MaxExponent(maxWG)
	repeats := t.Repeats
	if repeats < 1 {
		repeats = 1
	}

	seen := map[[2]int]Measurement{}
	eval := func(pos []float64) float64 {
		local := ShapeOf(pos, maxExp)
		m, ok := seen[local]
		if !ok {
			m = t.measure(ctx, local, maxWG, repeats)
			seen[local] = m
			slog.Debug("work-group measured", "local", pipeline.FormatLocal(local), "ms", profiling.Millis(m.Device), "error", m.Err)
		}
		if m.Err != nil {
			return penalty
		}
		return profiling.Millis(m.Device)
	}

	if _, _, err := t.Optimizer.Run(eval, 0, float64(maxExp), 2); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, m := range seen {
		res.Measured = append(res.Measured, m)
	}
	sort.Slice(res.Measured, func(i, j int) bool {
		a, b := res.Measured[i], res.Measured[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Device != b.Device {
			return a.Device < b.Device
		}
		return a.Local[0]*a.Local[1] > b.Local[0]*b.Local[1]
	})
	if len(res.Measured) == 0 || res.Measured[0].Err != nil {
		var cause error
		if len(res.Measured) > 0 {
			cause = res.Measured[0].Err
		}
		return nil, compute.Wrap(compute.KindDispatch, "tune", fmt.Errorf("no work-group shape could be measured: %w", cause))
	}
	res.Best = res.Measured[0]
	return res, nil
}

func (t *WorkGroupTuner) measure(ctx context.Context, local [2]int, maxWG, repeats int) Measurement {
	m := Measurement{Local: local}
	if compute.WorkGroupExceeds(local, maxWG) {
		m.Err = compute.Errorf(compute.KindInvalidArgument, "tune", "work-group %s exceeds device maximum %d", pipeline.FormatLocal(local), maxWG)
		return m
	}
	opts := t.Options
	opts.Local = local
	p, err := pipeline.New(t.Session, opts)
	if err != nil {
		m.Err = err
		return m
	}
	for i := 0; i < repeats; i++ {
		res, err := p.Run(ctx, t.Image)
		if err != nil {
			m.Err = err
			return m
		}
		if i == 0 || res.Report.DeviceTotal < m.Device {
			m.Device = res.Report.DeviceTotal
		}
	}
	return m
}
