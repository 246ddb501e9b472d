package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clblur/internal/pipeline"
	"github.com/cwbudde/clblur/internal/profiling"
	"github.com/cwbudde/clblur/internal/tune"
)

func newTuneCmd(a *app) *cobra.Command {
	var iters, popSize, repeats, top int
	var seed int64

	cmd := &cobra.Command{
		Use:   "tune [imagePath] [filterKernelSize]",
		Short: "Search the fastest work-group size",
		Long: `Runs the blur repeatedly with power-of-two work-group shapes chosen by a
mayfly optimizer and reports the shapes with the lowest device time.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.blurOptions(args)
			if err != nil {
				return err
			}
			_, host, err := loadImage(args)
			if err != nil {
				return err
			}
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := profiling.WriteCapabilities(a.stdout, s.Capabilities()); err != nil {
				return err
			}
			tuner := &tune.WorkGroupTuner{
				Session:   s,
				Options:   opts,
				Image:     host,
				Optimizer: tune.NewMayfly(iters, popSize, seed),
				Repeats:   repeats,
			}
			res, err := tuner.Tune(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "\nMeasured %d work-group shapes:\n", len(res.Measured))
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LOCAL\tDEVICE MS")
			for i, m := range res.Measured {
				if i == top || m.Err != nil {
					break
				}
				fmt.Fprintf(w, "%s\t%.3f\n", pipeline.FormatLocal(m.Local), profiling.Millis(m.Device))
			}
			w.Flush()
			fmt.Fprintf(a.stdout, "\nBest: --local %s (%.3f ms)\n", pipeline.FormatLocal(res.Best.Local), profiling.Millis(res.Best.Device))
			return nil
		},
	}
	cmd.Flags().IntVar(&iters, "iters", 20, "Optimizer iterations")
	cmd.Flags().IntVar(&popSize, "pop", 20, "Population size (at least 20)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().IntVar(&repeats, "repeats", 3, "Runs per shape; the fastest counts")
	cmd.Flags().IntVar(&top, "top", 10, "Number of shapes to print")
	return cmd
}
