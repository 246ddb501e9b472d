// Package backend maps driver names to compute drivers.
package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/compute/opencl"
	"github.com/cwbudde/clblur/internal/compute/refdev"
)

// Backend identifies a driver implementation.
type Backend string

const (
	BackendOpenCL    Backend = opencl.DriverName
	BackendReference Backend = refdev.DriverName
)

// ErrUnknownBackend is returned when the name does not match a known backend.
var ErrUnknownBackend = errors.New("unknown compute backend")

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gpu", "opencl", "cl":
		return BackendOpenCL
	case "reference", "ref", "cpu", "native":
		return BackendReference
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []Backend {
	return []Backend{BackendOpenCL, BackendReference}
}

// NewDriver constructs the requested driver. There is no fallback: if OpenCL
// is requested and unavailable the error is returned as is.
func NewDriver(name string, opts ...refdev.Option) (compute.Driver, error) {
	switch NormalizeBackend(name) {
	case BackendOpenCL:
		drv, err := opencl.New()
		if err != nil {
			return nil, err
		}
		return drv, nil
	case BackendReference:
		return refdev.New(opts...), nil
	default:
		return nil, compute.Wrap(compute.KindInvalidArgument, "select driver", fmt.Errorf("%w: %s", ErrUnknownBackend, name))
	}
}
