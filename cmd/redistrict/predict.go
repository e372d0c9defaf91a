package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

func predictCmd() *cobra.Command {
	cmd := stageCmd(model.StagePredict,
		"Predict affiliation for voters without primary history",
		`Score every general election voter with no partisan primary ballot using the
latest trained model, or the geographic fallback when training was skipped.`)

	cmd.Flags().Int("batch-size", 0, "voters per prediction batch (overrides predict.batch_size)")
	cmd.Flags().Int("workers", 0, "prediction workers (overrides predict.workers)")
	bindFlag(cmd, "predict.batch_size", "batch-size")
	bindFlag(cmd, "predict.workers", "workers")

	return cmd
}
