package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

func trainCmd() *cobra.Command {
	cmd := stageCmd(model.StageTrain,
		"Train the party affiliation model",
		`Fit a logistic regression on voters labeled Republican or Democrat and hold
out a test split to measure accuracy.

When either party has fewer labeled voters than the configured minimum the
stage is skipped and predict falls back to neighborhood composition.`)

	cmd.Flags().Int("min-per-class", 0, "labeled voters required per party (overrides model.min_labeled_per_class)")
	cmd.Flags().Uint64("seed", 0, "sampling and split seed (overrides model.seed)")
	cmd.Flags().String("artifact", "", "model artifact path (overrides model.artifact_path)")
	bindFlag(cmd, "model.min_labeled_per_class", "min-per-class")
	bindFlag(cmd, "model.seed", "seed")
	bindFlag(cmd, "model.artifact_path", "artifact")

	return cmd
}
