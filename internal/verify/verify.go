// Package verify compares blur output against the reference device.
package verify

import (
	"context"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/compute/refdev"
	"github.com/cwbudde/clblur/internal/device"
	"github.com/cwbudde/clblur/internal/pipeline"
)

// DefaultTolerance is the largest per-channel difference accepted between
// devices. Float rounding differs between device compilers by at most one
// step per pass.
const DefaultTolerance = 2

// Diff summarises the per-channel difference of two images.
type Diff struct {
	MSE        float64
	MaxAbsDiff int
}

// Within reports whether every channel differs by at most tol.
func (d Diff) Within(tol int) bool {
	return d.MaxAbsDiff <= tol
}

func (d Diff) String() string {
	return fmt.Sprintf("mse=%.4f max=%d", d.MSE, d.MaxAbsDiff)
}

// Compare computes the mean squared error over all channels and the largest
// absolute channel difference.
func Compare(got, want compute.HostImage) (Diff, error) {
	if got.Format != want.Format || got.Width != want.Width || got.Height != want.Height {
		return Diff{}, compute.Errorf(compute.KindInvalidArgument, "compare images",
			"image mismatch: %dx%d %s vs %dx%d %s", got.Width, got.Height, got.Format, want.Width, want.Height, want.Format)
	}
	if len(got.Pix) != len(want.Pix) {
		return Diff{}, compute.Errorf(compute.KindInvalidArgument, "compare images", "pixel buffers differ in length")
	}
	if len(got.Pix) == 0 {
		return Diff{}, nil
	}

	var sum float64
	var maxAbs float32
	for i := range got.Pix {
		d := float32(got.Pix[i]) - float32(want.Pix[i])
		sum += float64(d * d)
		maxAbs = math32.Max(maxAbs, math32.Abs(d))
	}
	return Diff{MSE: sum / float64(len(got.Pix)), MaxAbsDiff: int(maxAbs)}, nil
}

// Reference blurs host on a fresh reference device with the same options.
func Reference(ctx context.Context, host compute.HostImage, opts pipeline.Options) (compute.HostImage, error) {
	drv := refdev.New()
	sel, err := device.BestSelector{}.Select(drv)
	if err != nil {
		return compute.HostImage{}, err
	}
	s, err := device.Open(drv, sel)
	if err != nil {
		return compute.HostImage{}, err
	}
	defer s.Close()

	p, err := pipeline.New(s, opts)
	if err != nil {
		return compute.HostImage{}, err
	}
	res, err := p.Run(ctx, host)
	if err != nil {
		return compute.HostImage{}, fmt.Errorf("reference run: %w", err)
	}
	return res.Output, nil
}

// Against blurs host on the reference device and compares it with got.
func Against(ctx context.Context, got, host compute.HostImage, opts pipeline.Options) (Diff, error) {
	want, err := Reference(ctx, host, opts)
	if err != nil {
		return Diff{}, err
	}
	return Compare(got, want)
}
