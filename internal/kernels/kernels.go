// Package kernels compiles the convolution program and binds its arguments.
package kernels

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/cwbudde/clblur/internal/compute"
)

// Entry points of the convolution program.
const (
	EntryHorizontal = "convolveX"
	EntryVertical   = "convolveY"
)

// Source is the built-in convolution program.
//
//go:embed convolution.cl
var Source string

// LoadSource reads a replacement program from disk.
func LoadSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", compute.Wrap(compute.KindCompile, "load kernel source", err)
	}
	return string(data), nil
}

// Program is compiled device source together with its declared signatures.
type Program struct {
	prog compute.Program
	sigs map[string]compute.KernelSignature
}

// Compile builds source for the context device. Rejections come back as
// *compute.CompileError with the device compiler's log. Signatures are
// scanned only after a successful build; entry points the scanner cannot
// read are bound unchecked and left to the driver.
func Compile(ctx compute.Context, source string) (*Program, error) {
	prog, err := ctx.CreateProgram(source)
	if err != nil {
		return nil, compute.Ensure(compute.KindCompile, "build program", err)
	}
	sigs, err := compute.ScanKernels(source)
	if err != nil {
		slog.Debug("kernel signatures unavailable, binding unchecked", "error", err)
		sigs = nil
	}
	slog.Debug("program built", "kernels", len(sigs))
	return &Program{prog: prog, sigs: sigs}, nil
}

// CreateKernel instantiates an entry point. The driver decides whether the
// entry point exists.
func (p *Program) CreateKernel(name string) (*Kernel, error) {
	k, err := p.prog.CreateKernel(name)
	if err != nil {
		return nil, compute.Ensure(compute.KindEntryPointNotFound, "create kernel", err)
	}
	sig, ok := p.sigs[name]
	return &Kernel{Kernel: k, sig: sig, checked: ok}, nil
}

// Release frees the device program.
func (p *Program) Release() {
	p.prog.Release()
}

// Kernel is an entry point with type-checked argument binding.
type Kernel struct {
	compute.Kernel
	sig     compute.KernelSignature
	checked bool
}

// Signature returns the declared parameter list. ok is false when the
// declaration could not be read from the source.
func (k *Kernel) Signature() (sig compute.KernelSignature, ok bool) {
	return k.sig, k.checked
}

// BindArgs sets every argument positionally. When the declaration is known,
// the count and the host types must match it; otherwise the driver checks.
func (k *Kernel) BindArgs(args ...any) error {
	name := k.Kernel.Name()
	if k.checked {
		if err := k.sig.Check(args); err != nil {
			return compute.Wrap(compute.KindArgumentMismatch, "bind "+name, err)
		}
	}
	if err := k.Kernel.SetArgs(args...); err != nil {
		return compute.Ensure(compute.KindArgumentMismatch, "bind "+name, err)
	}
	return nil
}

// ConvolutionArgs is the argument list of both convolution entry points.
func ConvolutionArgs(src, dst compute.Image, filter compute.Buffer, filterSize int) []any {
	return []any{src, dst, filter, int32(filterSize), int32(src.Width()), int32(src.Height())}
}

func (k *Kernel) String() string {
	if !k.checked {
		return fmt.Sprintf("kernel %s/?", k.Kernel.Name())
	}
	return fmt.Sprintf("kernel %s/%d", k.sig.Name, len(k.sig.Args))
}
