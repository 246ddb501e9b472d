// Package filter builds normalised 1D convolution weights.
package filter

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/cwbudde/clblur/internal/compute"
)

// Kind selects the weight distribution.
type Kind string

const (
	KindGaussian Kind = "gaussian"
	KindBinomial Kind = "binomial"
)

// ParseKind maps user input to a filter kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gaussian", "gauss":
		return KindGaussian, nil
	case "binomial", "pascal":
		return KindBinomial, nil
	default:
		return "", compute.Errorf(compute.KindInvalidArgument, "parse filter", "unknown filter kind %q", s)
	}
}

// Kernel is a 1D filter whose weights sum to 1.
type Kernel struct {
	Kind    Kind
	Weights []float32
}

// Len returns the number of taps.
func (k Kernel) Len() int { return len(k.Weights) }

// Sum returns the weight total, accumulated in float64.
func (k Kernel) Sum() float64 {
	var s float64
	for _, w := range k.Weights {
		s += float64(w)
	}
	return s
}

// Build dispatches on kind.
func Build(kind Kind, size int) (Kernel, error) {
	switch kind {
	case KindGaussian, "":
		return Gaussian(size)
	case KindBinomial:
		return Binomial(size)
	default:
		return Kernel{}, compute.Errorf(compute.KindInvalidArgument, "build filter", "unknown filter kind %q", kind)
	}
}

const sigma = 1.0

// Gaussian samples the normal density with sigma 1 at size points spread
// evenly over [-3 sigma, 3 sigma]. A single tap sits at 0.
func Gaussian(size int) (Kernel, error) {
	if err := checkSize(size); err != nil {
		return Kernel{}, err
	}
	raw := make([]float64, size)
	var sum float64
	for i := range raw {
		x := 0.0
		if size > 1 {
			x = (float64(i)/float64(size-1)*2 - 1) * 3 * sigma
		}
		raw[i] = math.Exp(-x*x/(2*sigma*sigma)) / (sigma * math.Sqrt(2*math.Pi))
		sum += raw[i]
	}
	return normalise(KindGaussian, raw, sum), nil
}

// Binomial uses row size-1 of Pascal's triangle.
func Binomial(size int) (Kernel, error) {
	if err := checkSize(size); err != nil {
		return Kernel{}, err
	}
	n := int64(size - 1)
	raw := make([]float64, size)
	total := new(big.Int).Lsh(big.NewInt(1), uint(n)) // 2^n
	for i := range raw {
		c := new(big.Int).Binomial(n, int64(i))
		r, _ := new(big.Rat).SetFrac(c, total).Float64()
		raw[i] = r
	}
	return normalise(KindBinomial, raw, 1), nil
}

func normalise(kind Kind, raw []float64, sum float64) Kernel {
	w := make([]float32, len(raw))
	for i, v := range raw {
		w[i] = float32(v / sum)
	}
	return Kernel{Kind: kind, Weights: w}
}

func checkSize(size int) error {
	if size < 1 {
		return compute.Errorf(compute.KindInvalidArgument, "build filter", "filter size must be positive, got %d", size)
	}
	return nil
}

func (k Kernel) String() string {
	return fmt.Sprintf("%s(%d)", k.Kind, len(k.Weights))
}
