package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

func runCmd() *cobra.Command {
	var (
		force    bool
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline, resuming where it left off",
		Long: `Run ingest, resolve, assign, classify, train, predict, and aggregate in order.

Stages that already completed are skipped until one has to run; every stage
after it runs again. Use --force to rerun everything.`,
		Example: `  # Resume an interrupted run
  redistrict run

  # Rerun modeling only
  redistrict run --force --from train --to aggregate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stages, err := stageRange(from, to)
			if err != nil {
				return err
			}
			return runStages(cmd, stages, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Rerun stages that already completed")
	cmd.Flags().StringVar(&from, "from", string(model.StageIngest), "First stage to run")
	cmd.Flags().StringVar(&to, "to", string(model.StageAggregate), "Last stage to run")
	cmd.Flags().BoolP("quiet", "q", false, "Hide progress bars")

	return cmd
}

// stageRange returns the pipeline stages from first through last inclusive.
func stageRange(first, last string) ([]model.Stage, error) {
	i := slices.Index(model.Stages, model.Stage(first))
	if i < 0 {
		return nil, fmt.Errorf("unknown stage %q", first)
	}
	j := slices.Index(model.Stages, model.Stage(last))
	if j < 0 {
		return nil, fmt.Errorf("unknown stage %q", last)
	}
	if j < i {
		return nil, fmt.Errorf("stage %s comes after %s", first, last)
	}
	return model.Stages[i : j+1], nil
}
