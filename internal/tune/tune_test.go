package tune

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/compute/refdev"
	"github.com/cwbudde/clblur/internal/device"
	"github.com/cwbudde/clblur/internal/pipeline"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	best, cost, err := NewMayfly(100, 20, 42).Run(sphere, -10, 10, 3)
	require.NoError(t, err)
	require.Len(t, best, 3)
	assert.Less(t, cost, 0.1)
	for i, v := range best {
		assert.Less(t, math.Abs(v), 1.0, "parameter %d", i)
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	_, cost1, err := NewMayfly(50, 5, 123).Run(sphere, -5, 5, 2)
	require.NoError(t, err)
	_, cost2, err := NewMayfly(50, 5, 123).Run(sphere, -5, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, cost1, cost2)
}

func TestShapeOf(t *testing.T) {
	assert.Equal(t, 10, MaxExponent(1024))
	assert.Equal(t, 6, MaxExponent(100))
	assert.Equal(t, 0, MaxExponent(0))

	assert.Equal(t, [2]int{16, 16}, ShapeOf([]float64{4.2, 3.6}, 10))
	assert.Equal(t, [2]int{1, 64}, ShapeOf([]float64{-3, 9}, 6))
}

// fixedOptimizer evaluates a fixed list of positions.
type fixedOptimizer [][]float64

func (f fixedOptimizer) Run(eval func([]float64) float64, lower, upper float64, dim int) ([]float64, float64, error) {
	best, bestCost := []float64(nil), math.Inf(1)
	for _, p := range f {
		if c := eval(p); c < bestCost {
			best, bestCost = p, c
		}
	}
	return best, bestCost, nil
}

func openSession(t *testing.T, opts ...refdev.Option) *device.Session {
	t.Helper()
	drv := refdev.New(opts...)
	sel, err := device.BestSelector{}.Select(drv)
	require.NoError(t, err)
	s, err := device.Open(drv, sel)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testImage() compute.HostImage {
	img := compute.NewHostImage(compute.FormatGray, 12, 10)
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	return img
}

func TestTunerRejectsOversizedShapes(t *testing.T) {
	s := openSession(t, refdev.WithMaxWorkGroupSize(64))
	opts := pipeline.DefaultOptions()
	opts.FilterSize = 3

	tuner := &WorkGroupTuner{
		Session: s,
		Options: opts,
		Image:   testImage(),
		// 2^6 x 2^6 exceeds 64, 2^3 x 2^3 fits, 2^2 x 2^2 is repeated.
		Optimizer: fixedOptimizer{{6, 6}, {3, 3}, {2, 2}, {2.2, 1.9}},
	}
	res, err := tuner.Tune(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Measured, 3)
	assert.NoError(t, res.Best.Err)
	assert.LessOrEqual(t, res.Best.Local[0]*res.Best.Local[1], 64)

	last := res.Measured[len(res.Measured)-1]
	assert.Equal(t, [2]int{64, 64}, last.Local)
	assert.True(t, errors.Is(last.Err, compute.ErrInvalidArgument))
}

func TestTunerWithMayfly(t *testing.T) {
	s := openSession(t)
	opts := pipeline.DefaultOptions()
	opts.FilterSize = 3

	tuner := &WorkGroupTuner{
		Session:   s,
		Options:   opts,
		Image:     testImage(),
		Optimizer: NewMayfly(5, 20, 1),
	}
	res, err := tuner.Tune(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Measured)
	assert.LessOrEqual(t, res.Best.Local[0]*res.Best.Local[1], 1024)
	for i := 1; i < len(res.Measured); i++ {
		if res.Measured[i].Err == nil {
			assert.LessOrEqual(t, res.Measured[i-1].Device, res.Measured[i].Device)
		}
	}
}

func TestTunerFailures(t *testing.T) {
	_, err := (&WorkGroupTuner{}).Tune(context.Background())
	assert.True(t, errors.Is(err, compute.ErrInvalidArgument))

	s := openSession(t, refdev.WithMaxWorkGroupSize(4))
	tuner := &WorkGroupTuner{
		Session:   s,
		Options:   pipeline.DefaultOptions(),
		Image:     testImage(),
		Optimizer: fixedOptimizer{{5, 5}},
	}
	_, err = tuner.Tune(context.Background())
	assert.True(t, errors.Is(err, compute.ErrDispatch), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tuner.Optimizer = fixedOptimizer{{1, 1}}
	_, err = tuner.Tune(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
