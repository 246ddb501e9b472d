package refdev

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/chewxy/math32"

	"github.com/cwbudde/clblur/internal/compute"
)

// kernelFunc executes one entry point over the given global range.
type kernelFunc func(args []any, global [2]int) error

type native struct {
	kinds []compute.ArgKind
	run   kernelFunc
}

var convolutionArgs = []compute.ArgKind{
	compute.ArgReadImage, compute.ArgWriteImage, compute.ArgBuffer,
	compute.ArgInt, compute.ArgInt, compute.ArgInt,
}

// natives are the entry points this device can execute.
var natives = map[string]native{
	"convolveX": {kinds: convolutionArgs, run: func(args []any, global [2]int) error {
		return convolve(args, global, true)
	}},
	"convolveY": {kinds: convolutionArgs, run: func(args []any, global [2]int) error {
		return convolve(args, global, false)
	}},
}

// compile checks the source and links each declared entry point to its
// native implementation.
func compile(source string) (*program, error) {
	sigs, err := compute.ScanKernels(source)
	if err != nil {
		return nil, &compute.CompileError{Log: err.Error(), Err: err}
	}

	var problems []string
	names := make([]string, 0, len(sigs))
	for name := range sigs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n, ok := natives[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: no native implementation on this device", name))
			continue
		}
		if !sameKinds(sigs[name].Args, n.kinds) {
			problems = append(problems, fmt.Sprintf("%s: parameter list does not match the native implementation", name))
		}
	}
	if len(problems) > 0 {
		log := strings.Join(problems, "\n")
		return nil, &compute.CompileError{Log: log, Err: fmt.Errorf("%d error(s) generated", len(problems))}
	}
	return &program{sigs: sigs}, nil
}

func sameKinds(args []compute.KernelArg, kinds []compute.ArgKind) bool {
	if len(args) != len(kinds) {
		return false
	}
	for i := range args {
		if args[i].Kind != kinds[i] {
			return false
		}
	}
	return true
}

type program struct {
	sigs map[string]compute.KernelSignature
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	sig, ok := p.sigs[name]
	if !ok {
		return nil, compute.Errorf(compute.KindEntryPointNotFound, "create kernel", "no kernel named %q in program", name)
	}
	return &kernel{name: name, sig: sig, impl: natives[name].run}, nil
}

func (p *program) Release() {}

type kernel struct {
	name string
	sig  compute.KernelSignature
	impl kernelFunc

	mu   sync.Mutex
	args []any
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) SetArgs(args ...any) error {
	if err := k.sig.Check(args); err != nil {
		return compute.Wrap(compute.KindArgumentMismatch, "set args "+k.name, err)
	}
	for i, a := range args {
		switch v := a.(type) {
		case compute.Image:
			if _, ok := v.(*image); !ok {
				return compute.Errorf(compute.KindArgumentMismatch, "set args "+k.name, "argument %d: image %T does not belong to this device", i, a)
			}
		case compute.Buffer:
			if _, ok := v.(*buffer); !ok {
				return compute.Errorf(compute.KindArgumentMismatch, "set args "+k.name, "argument %d: buffer %T does not belong to this device", i, a)
			}
		}
	}
	k.mu.Lock()
	k.args = append([]any(nil), args...)
	k.mu.Unlock()
	return nil
}

// boundArgs snapshots the arguments at enqueue time.
func (k *kernel) boundArgs() ([]any, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.args == nil {
		return nil, fmt.Errorf("kernel %s: arguments not set", k.name)
	}
	return append([]any(nil), k.args...), nil
}

func (k *kernel) Release() {}

// convolve applies the 1D filter along x or y with clamp-to-edge addressing.
// Work items outside width x height do nothing.
func convolve(args []any, global [2]int, horizontal bool) error {
	src := args[0].(*image)
	dst := args[1].(*image)
	filter := args[2].(*buffer).data
	size := int(args[3].(int32))
	width := int(args[4].(int32))
	height := int(args[5].(int32))

	if size <= 0 || size > len(filter) {
		return fmt.Errorf("filter size %d outside buffer of %d weights", size, len(filter))
	}
	if src.format != dst.format || src.width != dst.width || src.height != dst.height {
		return fmt.Errorf("source and destination images differ in size or format")
	}
	if width > src.width || height > src.height {
		return fmt.Errorf("region %dx%d exceeds image bounds", width, height)
	}

	in := src.snapshot()
	out := make([]byte, len(in))
	copy(out, dst.snapshot())

	channels := src.format.Channels()
	stride := src.width * channels
	half := size / 2
	for gy := 0; gy < global[1]; gy++ {
		if gy >= height {
			break
		}
		for gx := 0; gx < global[0]; gx++ {
			if gx >= width {
				break
			}
			for c := 0; c < channels; c++ {
				var sum float32
				for i := 0; i < size; i++ {
					x, y := gx, gy
					if horizontal {
						x = clamp(gx+i-half, width-1)
					} else {
						y = clamp(gy+i-half, height-1)
					}
					sum += float32(in[y*stride+x*channels+c]) / 255 * filter[i]
				}
				v := math32.Max(0, math32.Min(1, sum))
				out[gy*stride+gx*channels+c] = uint8(math32.Round(v * 255))
			}
		}
	}
	dst.store(out)
	return nil
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
