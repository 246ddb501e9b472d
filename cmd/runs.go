package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clblur/internal/profiling"
	"github.com/cwbudde/clblur/internal/store"
)

func newRunsCmd(a *app) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage saved runs",
		Long:  `List, inspect and clean runs recorded with --save-run.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listRuns()
		},
	}
	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its command trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showRun(args[0])
		},
	}

	var keepLast, olderThanDays int
	var force bool
	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete old runs",
		Long: `Delete runs based on a retention policy: keep the newest N runs and/or
delete runs older than N days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cleanRuns(keepLast, olderThanDays, force)
		},
	}
	cleanCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanCmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	runsCmd.AddCommand(listCmd, showCmd, cleanCmd)
	return runsCmd
}

func (a *app) openStore() (*store.FSStore, error) {
	dir, err := a.cfg.ExpandedDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	st, err := store.NewFSStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return st, nil
}

func (a *app) listRuns() error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	infos, err := st.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(infos) == 0 {
		fmt.Fprintln(a.stdout, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tIMAGE\tDEVICE\tTAPS\tDEVICE MS\tSIZE")
	for _, info := range infos {
		size := "unknown"
		if n, err := getDirSize(filepath.Join(st.BaseDir(), "runs", info.ID)); err == nil {
			size = profiling.Bytes(n)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.3f\t%s\n",
			info.ID,
			info.Timestamp.Format("2006-01-02 15:04:05"),
			filepath.Base(info.InputPath),
			info.Device,
			info.FilterSize,
			info.DeviceTotalMs,
			size,
		)
	}
	w.Flush()

	fmt.Fprintf(a.stdout, "\nTotal runs: %d\n", len(infos))
	return nil
}

func (a *app) showRun(id string) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	rec, err := st.LoadRun(id)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s\n", rec.ID)
	fmt.Fprintf(w, "Time:\t%s\n", rec.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Image:\t%s (%dx%d %s)\n", rec.InputPath, rec.Width, rec.Height, rec.Format)
	if rec.OutputPath != "" {
		fmt.Fprintf(w, "Output:\t%s\n", rec.OutputPath)
	}
	fmt.Fprintf(w, "Device:\t%s / %s (%s)\n", rec.Platform, rec.Device, rec.Driver)
	fmt.Fprintf(w, "Filter:\t%s, %d taps\n", rec.FilterKind, rec.FilterSize)
	fmt.Fprintf(w, "Geometry:\tlocal %dx%d, global %dx%d\n", rec.Local[0], rec.Local[1], rec.Global[0], rec.Global[1])
	fmt.Fprintf(w, "Horizontal:\t%.3f ms\n", rec.Timings.HorizontalMs)
	fmt.Fprintf(w, "Vertical:\t%.3f ms\n", rec.Timings.VerticalMs)
	fmt.Fprintf(w, "Device total:\t%.3f ms\n", rec.Timings.DeviceTotalMs)
	fmt.Fprintf(w, "Readback:\t%.3f ms\n", rec.Timings.ReadbackMs)
	fmt.Fprintf(w, "Wall clock:\t%.3f ms\n", rec.Timings.WallClockMs)
	if v := rec.Verification; v != nil {
		fmt.Fprintf(w, "Verification:\tmse %.4f, max %d, passed %t\n", v.MSE, v.MaxAbsDiff, v.Passed)
	}
	w.Flush()

	trace, err := store.ReadTrace(st.BaseDir(), rec.ID)
	if err != nil {
		slog.Warn("Trace unavailable", "id", rec.ID, "error", err)
		return nil
	}
	fmt.Fprintln(a.stdout, "\nCommands:")
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	for _, t := range trace {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%.3f ms\n", t.Command, t.Start, t.End, profiling.Millis(t.Duration()))
	}
	tw.Flush()
	return nil
}

func (a *app) cleanRuns(keepLast, olderThanDays int, force bool) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	infos, err := st.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(a.stdout, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(a.stdout, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(a.stdout, "  - %s (%s, %s)\n", shortID(info.ID), filepath.Base(info.InputPath), info.Timestamp.Format("2006-01-02 15:04:05"))
	}

	if !force {
		fmt.Fprint(a.stdout, "\nProceed with deletion? [y/N]: ")
		response, _ := bufio.NewReader(a.stdin).ReadString('\n')
		if r := strings.TrimSpace(response); r != "y" && r != "Y" {
			fmt.Fprintln(a.stdout, "Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := st.DeleteRun(info.ID); err != nil {
			slog.Error("Failed to delete run", "id", info.ID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted run", "id", info.ID)
		deleted++
	}
	fmt.Fprintf(a.stdout, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion applies the retention policy. A run is deleted when
// it is older than olderThanDays or not among the keepLast newest runs.
func selectRunsForDeletion(infos []store.RunInfo, keepLast, olderThanDays int, now time.Time) []store.RunInfo {
	sorted := append([]store.RunInfo(nil), infos...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	cutoff := now.AddDate(0, 0, -olderThanDays)
	var toDelete []store.RunInfo
	for i, info := range sorted {
		tooOld := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		beyondKeep := keepLast > 0 && i >= keepLast
		if tooOld || beyondKeep {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
