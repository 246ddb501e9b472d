package compute

import (
	"fmt"
	"regexp"
	"strings"
)

// ArgKind is the host-side category of a kernel parameter.
type ArgKind int

const (
	ArgOther ArgKind = iota
	ArgReadImage
	ArgWriteImage
	ArgBuffer
	ArgInt
	ArgFloat
)

func (k ArgKind) String() string {
	switch k {
	case ArgReadImage:
		return "read_only image2d_t"
	case ArgWriteImage:
		return "write_only image2d_t"
	case ArgBuffer:
		return "buffer"
	case ArgInt:
		return "int"
	case ArgFloat:
		return "float"
	default:
		return "other"
	}
}

// Accepts reports whether a host value can be bound to a parameter of this kind.
func (k ArgKind) Accepts(v any) bool {
	switch k {
	case ArgReadImage, ArgWriteImage:
		_, ok := v.(Image)
		return ok
	case ArgBuffer:
		_, ok := v.(Buffer)
		return ok
	case ArgInt:
		_, ok := v.(int32)
		return ok
	case ArgFloat:
		_, ok := v.(float32)
		return ok
	default:
		return false
	}
}

// KernelArg is one declared kernel parameter.
type KernelArg struct {
	Name string
	Decl string
	Kind ArgKind
}

// KernelSignature is the parameter list of one entry point.
type KernelSignature struct {
	Name string
	Args []KernelArg
}

// Check validates a positional argument list against the signature.
func (s KernelSignature) Check(args []any) error {
	if len(args) != len(s.Args) {
		return fmt.Errorf("kernel %s takes %d arguments, got %d", s.Name, len(s.Args), len(args))
	}
	for i, a := range s.Args {
		if !a.Kind.Accepts(args[i]) {
			return fmt.Errorf("kernel %s argument %d (%s) wants %s, got %T", s.Name, i, a.Name, a.Kind, args[i])
		}
	}
	return nil
}

var (
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	kernelDecl   = regexp.MustCompile(`(?:__kernel|\bkernel)\s+(?:__attribute__\s*\(\(.*?\)\)\s*)*void\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)
	identifier   = regexp.MustCompile(`[A-Za-z_]\w*`)
)

var intTypes = map[string]bool{
	"int": true, "uint": true, "short": true, "ushort": true,
	"char": true, "uchar": true, "long": true, "ulong": true,
}

// ScanKernels extracts the entry point signatures of OpenCL C source. It does
// not compile anything; it only recognises `__kernel void name(...)`
// declarations, optionally with __attribute__((...)) qualifiers before void,
// and rejects sources with unbalanced delimiters.
func ScanKernels(source string) (map[string]KernelSignature, error) {
	src := blockComment.ReplaceAllString(source, " ")
	src = lineComment.ReplaceAllString(src, " ")

	if err := checkBalanced(src); err != nil {
		return nil, err
	}

	out := make(map[string]KernelSignature)
	for _, m := range kernelDecl.FindAllStringSubmatch(src, -1) {
		name := m[1]
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("kernel %s declared twice", name)
		}
		sig := KernelSignature{Name: name}
		params := strings.TrimSpace(m[2])
		if params != "" && params != "void" {
			for i, p := range strings.Split(params, ",") {
				arg, err := parseParam(strings.TrimSpace(p))
				if err != nil {
					return nil, fmt.Errorf("kernel %s parameter %d: %w", name, i, err)
				}
				sig.Args = append(sig.Args, arg)
			}
		}
		out[name] = sig
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no __kernel entry points found")
	}
	return out, nil
}

func parseParam(decl string) (KernelArg, error) {
	words := identifier.FindAllString(decl, -1)
	if len(words) < 2 {
		return KernelArg{}, fmt.Errorf("cannot parse %q", decl)
	}
	arg := KernelArg{Name: words[len(words)-1], Decl: decl}
	typeWords := words[:len(words)-1]

	has := func(w ...string) bool {
		for _, t := range typeWords {
			for _, x := range w {
				if t == x {
					return true
				}
			}
		}
		return false
	}

	switch {
	case has("image2d_t"):
		if has("write_only", "__write_only") {
			arg.Kind = ArgWriteImage
		} else {
			arg.Kind = ArgReadImage
		}
	case strings.Contains(decl, "*"):
		arg.Kind = ArgBuffer
	case has("float"):
		arg.Kind = ArgFloat
	default:
		for _, t := range typeWords {
			if intTypes[t] {
				arg.Kind = ArgInt
				break
			}
		}
	}
	return arg, nil
}

func checkBalanced(src string) error {
	pairs := map[rune]rune{')': '(', '}': '{', ']': '['}
	var stack []rune
	line := 1
	for _, r := range src {
		switch r {
		case '\n':
			line++
		case '(', '{', '[':
			stack = append(stack, r)
		case ')', '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return fmt.Errorf("line %d: unexpected '%c'", line, r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("line %d: unclosed '%c'", line, stack[len(stack)-1])
	}
	return nil
}
