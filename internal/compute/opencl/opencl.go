// Package opencl binds the compute abstraction to the system OpenCL runtime.
//
// The real driver needs cgo and an OpenCL ICD loader and is only compiled with
// `-tags gpu`. Without the tag New returns ErrNotBuilt.
package opencl

// DriverName is the registry name of this driver.
const DriverName = "opencl"
