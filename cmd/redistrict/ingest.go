package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

func ingestCmd() *cobra.Command {
	cmd := stageCmd(model.StageIngest,
		"Load the voter file",
		`Read the voter file into the database, replacing any voters already loaded.

Rows without a voter id, county, or precinct are rejected and counted by
reason. If voters are already stored, an automatic checkpoint is taken first.`)
	cmd.Example = `  redistrict ingest --voters ~/data/voters.csv`

	cmd.Flags().String("voters", "", "voter file path (overrides voters.path)")
	cmd.Flags().Int("chunk-size", 0, "voters per database batch (overrides voters.chunk_size)")
	bindFlag(cmd, "voters.path", "voters")
	bindFlag(cmd, "voters.chunk_size", "chunk-size")

	return cmd
}
