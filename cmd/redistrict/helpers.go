package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/redistrict-impact/internal/cli"
	"github.com/Veraticus/redistrict-impact/internal/config"
	"github.com/Veraticus/redistrict-impact/internal/engine"
	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/Veraticus/redistrict-impact/internal/storage"
)

// loadConfig builds the run configuration from flags, environment, and the
// config file.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	store.SetRetryOptions(cfg.Retry)

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// bindFlag ties a command flag to a config key.
func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind %s: %v", flag, err))
	}
}

// runStages executes stages with progress bars, pre-ingest checkpoints, and
// interrupt handling, then prints one line per stage.
func runStages(cmd *cobra.Command, stages []model.Stage, force bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr(), "redistrict run")
	ctx, stop := handler.HandleInterrupts(cmd.Context())
	defer stop()

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	checkpoints, err := store.NewCheckpointManager()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}

	opts := []engine.Option{
		engine.WithCheckpointer(checkpoints),
		engine.WithForce(force),
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		opts = append(opts, engine.WithProgress(cli.NewStageProgress(cmd.ErrOrStderr())))
	}

	e := engine.New(store, cfg, opts...)
	slog.Debug("Running stages", "stages", stages, "run_id", e.RunID(), "force", force)

	results, runErr := e.Run(ctx, stages)
	if err := cli.RenderStageResults(cmd.OutOrStdout(), results); err != nil {
		slog.Warn("Failed to write stage results", "error", err)
	}

	if handler.WasInterrupted() {
		return context.Canceled
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run %s: %w", e.RunID(), runErr)
	}
	return runErr
}

// stageCmd builds the command for a single stage. Single stages always run,
// even if they completed before.
func stageCmd(stage model.Stage, short, long string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(stage),
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStages(cmd, []model.Stage{stage}, true)
		},
	}
	cmd.Flags().BoolP("quiet", "q", false, "Hide progress bars")
	return cmd
}
