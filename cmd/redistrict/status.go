package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/cli"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest outcome of every stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			results, err := store.ListStages(ctx)
			if err != nil {
				return err
			}

			done := make(map[model.Stage]model.StageResult, len(results))
			for _, r := range results {
				done[r.Stage] = r
			}

			rows := make([][]string, 0, len(model.Stages))
			for _, stage := range model.Stages {
				r, ok := done[stage]
				if !ok {
					rows = append(rows, []string{string(stage), "pending", "", "", ""})
					continue
				}
				detail := r.Artifact
				switch r.Status {
				case model.StatusSkipped:
					detail = r.Reason
				case model.StatusFailed:
					detail = fmt.Sprint(r.Err)
				}
				rows = append(rows, []string{
					string(stage),
					string(r.Status),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Duration.Round(time.Millisecond).String(),
					detail,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"STAGE", "STATUS", "STARTED", "DURATION", "DETAIL"}, rows))
			return nil
		},
	}
}
