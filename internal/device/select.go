package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cwbudde/clblur/internal/compute"
)

// Selector picks the platform and device a run executes on.
type Selector interface {
	Select(drv compute.Driver) (Selection, error)
}

// BestSelector prefers a GPU, then a CPU, then the first device found.
// Kind narrows the search when set.
type BestSelector struct {
	Kind compute.DeviceType
}

func (s BestSelector) Select(drv compute.Driver) (Selection, error) {
	platforms, err := ListPlatforms(drv)
	if err != nil {
		return Selection{}, err
	}
	if len(platforms) == 0 {
		return Selection{}, compute.Errorf(compute.KindDeviceUnavailable, "select device", "no compute platforms found")
	}

	prefs := []compute.DeviceType{compute.DeviceTypeGPU, compute.DeviceTypeCPU, compute.DeviceTypeAll}
	if s.Kind != "" && s.Kind != compute.DeviceTypeAll {
		prefs = []compute.DeviceType{s.Kind}
	}
	for _, kind := range prefs {
		for _, p := range platforms {
			devices, err := ListDevices(drv, p, kind)
			if err != nil {
				return Selection{}, err
			}
			if len(devices) > 0 {
				return Selection{Platform: p, Device: devices[0]}, nil
			}
		}
	}
	return Selection{}, compute.Errorf(compute.KindDeviceUnavailable, "select device", "no %s devices found", strings.ToLower(string(prefs[len(prefs)-1])))
}

// IndexSelector picks devices by their position in the listings.
type IndexSelector struct {
	Platform int
	Device   int
	Kind     compute.DeviceType
}

func (s IndexSelector) Select(drv compute.Driver) (Selection, error) {
	platforms, err := ListPlatforms(drv)
	if err != nil {
		return Selection{}, err
	}
	if s.Platform < 0 || s.Platform >= len(platforms) {
		return Selection{}, compute.Errorf(compute.KindInvalidArgument, "select platform", "platform index %d out of range [0,%d)", s.Platform, len(platforms))
	}
	p := platforms[s.Platform]
	devices, err := ListDevices(drv, p, s.Kind)
	if err != nil {
		return Selection{}, err
	}
	if s.Device < 0 || s.Device >= len(devices) {
		return Selection{}, compute.Errorf(compute.KindInvalidArgument, "select device", "device index %d out of range [0,%d)", s.Device, len(devices))
	}
	return Selection{Platform: p, Device: devices[s.Device]}, nil
}

// PromptSelector asks on Out and reads answers from In.
type PromptSelector struct {
	In   io.Reader
	Out  io.Writer
	Kind compute.DeviceType
}

func (s PromptSelector) Select(drv compute.Driver) (Selection, error) {
	platforms, err := ListPlatforms(drv)
	if err != nil {
		return Selection{}, err
	}
	if len(platforms) == 0 {
		return Selection{}, compute.Errorf(compute.KindDeviceUnavailable, "select platform", "no compute platforms found")
	}
	in := bufio.NewReader(s.In)

	fmt.Fprintln(s.Out, "Available platforms:")
	for i, p := range platforms {
		info := p.Info()
		fmt.Fprintf(s.Out, "  [%d] %s (%s, %s)\n", i, info.Name, info.Vendor, info.Version)
	}
	pi, err := s.choose(in, "platform", len(platforms))
	if err != nil {
		return Selection{}, err
	}

	devices, err := ListDevices(drv, platforms[pi], s.Kind)
	if err != nil {
		return Selection{}, err
	}
	if len(devices) == 0 {
		return Selection{}, compute.Errorf(compute.KindDeviceUnavailable, "select device", "platform %q has no matching devices", platforms[pi].Info().Name)
	}
	fmt.Fprintln(s.Out, "Available devices:")
	for i, d := range devices {
		info := d.Info()
		fmt.Fprintf(s.Out, "  [%d] %s (%s, %s)\n", i, info.Name, info.Type, info.Vendor)
	}
	di, err := s.choose(in, "device", len(devices))
	if err != nil {
		return Selection{}, err
	}
	return Selection{Platform: platforms[pi], Device: devices[di]}, nil
}

// choose re-prompts until it reads an integer in [0,n).
func (s PromptSelector) choose(in *bufio.Reader, what string, n int) (int, error) {
	for {
		fmt.Fprintf(s.Out, "Choose %s [0-%d]: ", what, n-1)
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return 0, compute.Errorf(compute.KindInvalidArgument, "select "+what, "no %s chosen: %v", what, err)
		}
		idx, perr := strconv.Atoi(strings.TrimSpace(line))
		if perr == nil && idx >= 0 && idx < n {
			return idx, nil
		}
		fmt.Fprintf(s.Out, "Invalid choice %q.\n", strings.TrimSpace(line))
		if err != nil {
			return 0, compute.Errorf(compute.KindInvalidArgument, "select "+what, "no %s chosen: %v", what, err)
		}
	}
}
