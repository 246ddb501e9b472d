package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clblur/internal/backend"
	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/device"
	"github.com/cwbudde/clblur/internal/profiling"
)

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List compute platforms and devices",
		Long:  `Prints every platform of the selected driver and the capabilities of its devices.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listDevices()
		},
	}
}

func (a *app) listDevices() error {
	drv, err := backend.NewDriver(a.cfg.Driver)
	if err != nil {
		return err
	}
	kind, err := compute.ParseDeviceType(a.cfg.DeviceType)
	if err != nil {
		return err
	}
	platforms, err := device.ListPlatforms(drv)
	if err != nil {
		return err
	}
	if len(platforms) == 0 {
		fmt.Fprintf(a.stdout, "No %s platforms found.\n", drv.Name())
		return nil
	}
	for pi, p := range platforms {
		info := p.Info()
		fmt.Fprintf(a.stdout, "Platform [%d] %s (%s, %s)\n", pi, info.Name, info.Vendor, info.Version)
		devices, err := device.ListDevices(drv, p, kind)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Fprintln(a.stdout, "  no matching devices")
			continue
		}
		for di, d := range devices {
			fmt.Fprintf(a.stdout, "\n[%d:%d] ", pi, di)
			if err := profiling.WriteCapabilities(a.stdout, device.Describe(p, d)); err != nil {
				return err
			}
		}
		fmt.Fprintln(a.stdout)
	}
	return nil
}
