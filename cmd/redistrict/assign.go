package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

func assignCmd() *cobra.Command {
	return stageCmd(model.StageAssign,
		"Assign voters to old and new districts",
		`Give every voter a district on both maps. District columns in the voter file
win; otherwise the voter's precinct assignment from resolve is used.`)
}
