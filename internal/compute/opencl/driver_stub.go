//go:build !gpu

package opencl

import (
	"fmt"

	"github.com/cwbudde/clblur/internal/compute"
)

// ErrNotBuilt indicates the binary was built without OpenCL support.
var ErrNotBuilt = fmt.Errorf("opencl support requires building with '-tags gpu'")

// New returns an error when OpenCL support is not compiled in.
func New() (compute.Driver, error) {
	return nil, compute.Wrap(compute.KindDeviceUnavailable, "load opencl", ErrNotBuilt)
}
