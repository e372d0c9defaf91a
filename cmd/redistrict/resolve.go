package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

func resolveCmd() *cobra.Command {
	cmd := stageCmd(model.StageResolve,
		"Overlay precincts on district layers",
		`Intersect every precinct with every old and new district layer and assign
each precinct to the district covering the largest share of its area.

Invalid features are excluded and counted. Slivers smaller than the
configured epsilon fraction of a precinct are ignored.`)

	cmd.Flags().String("precincts", "", "precinct GeoJSON path (overrides geography.precincts.path)")
	cmd.Flags().Float64("epsilon", 0, "minimum overlap as a fraction of precinct area (overrides geography.epsilon)")
	cmd.Flags().Int("workers", 0, "overlay workers (overrides geography.workers)")
	bindFlag(cmd, "geography.precincts.path", "precincts")
	bindFlag(cmd, "geography.epsilon", "epsilon")
	bindFlag(cmd, "geography.workers", "workers")

	return cmd
}
