package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/clblur/internal/compute"
)

// DefaultLocal is the work-group shape used unless configured otherwise.
var DefaultLocal = [2]int{16, 16}

// Geometry is the 2D dispatch shape of both passes.
type Geometry struct {
	Local  [2]int `json:"local"`
	Global [2]int `json:"global"`
}

// WorkItems returns the number of launched work items.
func (g Geometry) WorkItems() int {
	return g.Global[0] * g.Global[1]
}

func (g Geometry) String() string {
	return fmt.Sprintf("global %dx%d local %dx%d", g.Global[0], g.Global[1], g.Local[0], g.Local[1])
}

// ComputeGeometry rounds the image size up to whole work-groups.
// maxWorkGroup bounds local[0]*local[1]; zero disables the check.
func ComputeGeometry(width, height int, local [2]int, maxWorkGroup int) (Geometry, error) {
	if width <= 0 || height <= 0 {
		return Geometry{}, compute.Errorf(compute.KindInvalidArgument, "compute geometry", "invalid image size %dx%d", width, height)
	}
	if local[0] <= 0 || local[1] <= 0 {
		return Geometry{}, compute.Errorf(compute.KindInvalidArgument, "compute geometry", "invalid work-group %dx%d", local[0], local[1])
	}
	if maxWorkGroup > 0 && compute.WorkGroupExceeds(local, maxWorkGroup) {
		return Geometry{}, compute.Errorf(compute.KindInvalidArgument, "compute geometry", "work-group %dx%d exceeds device maximum of %d work items", local[0], local[1], maxWorkGroup)
	}
	dims := [2]int{width, height}
	g := Geometry{Local: local}
	for d := range dims {
		g.Global[d] = local[d] * ((dims[d]-1)/local[d] + 1)
	}
	return g, nil
}

// ParseLocal parses a work-group shape such as "16x16" or "8".
func ParseLocal(s string) ([2]int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultLocal, nil
	}
	parts := strings.Split(s, "x")
	if len(parts) == 1 {
		parts = append(parts, parts[0])
	}
	if len(parts) != 2 {
		return [2]int{}, compute.Errorf(compute.KindInvalidArgument, "parse work-group", "expected WxH, got %q", s)
	}
	var out [2]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v <= 0 {
			return [2]int{}, compute.Errorf(compute.KindInvalidArgument, "parse work-group", "invalid dimension %q", p)
		}
		out[i] = v
	}
	return out, nil
}

// FormatLocal is the inverse of ParseLocal.
func FormatLocal(l [2]int) string {
	return fmt.Sprintf("%dx%d", l[0], l[1])
}
