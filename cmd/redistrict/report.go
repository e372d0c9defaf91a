package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/cli"
	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

func reportCmd() *cobra.Command {
	var (
		typeNames    []string
		sectionNames []string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the latest district report",
		Long: `Print the report written by the last aggregate stage: district composition,
competitiveness on both maps, gains and losses per new district, and the known
versus modeled breakdown.`,
		Example: `  # Congressional gains and losses only
  redistrict report --type CD --section gains

  # Everything
  redistrict report`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			types, err := parseTypes(typeNames)
			if err != nil {
				return err
			}
			sections, err := parseSections(sectionNames)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			report, err := store.GetLatestReport(ctx)
			if errors.Is(err, common.ErrNotFound) {
				return common.NewUserError(`no report yet, run "redistrict aggregate" first`, err)
			}
			if err != nil {
				return err
			}

			return cli.NewReportRenderer(cmd.OutOrStdout()).Render(report, types, sections)
		},
	}

	cmd.Flags().StringSliceVarP(&typeNames, "type", "t", nil, "District types to show: CD, SD, HD (default all)")
	cmd.Flags().StringSliceVarP(&sectionNames, "section", "s", nil, "Sections to show: composition, competitiveness, gains, known-modeled (default all)")

	return cmd
}

func parseTypes(names []string) ([]model.DistrictType, error) {
	if len(names) == 0 {
		return model.DistrictTypes, nil
	}
	types := make([]model.DistrictType, 0, len(names))
	for _, name := range names {
		t, err := model.ParseDistrictType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func parseSections(names []string) ([]cli.Section, error) {
	if len(names) == 0 {
		return cli.Sections, nil
	}
	sections := make([]cli.Section, 0, len(names))
	for _, name := range names {
		sec, err := cli.ParseSection(name)
		if err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, nil
}
