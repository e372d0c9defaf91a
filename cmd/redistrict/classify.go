package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

func classifyCmd() *cobra.Command {
	return stageCmd(model.StageClassify,
		"Label voters from primary history",
		`Label each voter Republican, Democrat, Swing, or Unknown from the partisan
primaries they voted in. Labeled voters become known voters in every report.`)
}
