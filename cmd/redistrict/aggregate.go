package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

func aggregateCmd() *cobra.Command {
	cmd := stageCmd(model.StageAggregate,
		"Build the district reports",
		`Count voters per district on both maps, rate competitiveness, and reconcile
each new district against the old districts its voters came from.

Modeled labels are included only if predict ran after the latest ingest.
Print the stored report with "redistrict report".`)
	cmd.Example = `  redistrict aggregate && redistrict report --type CD`
	return cmd
}
