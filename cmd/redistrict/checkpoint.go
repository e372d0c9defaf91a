package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/redistrict-impact/internal/cli"
	"github.com/Veraticus/redistrict-impact/internal/storage"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Create, list, restore, and delete database checkpoints.

Ingest checkpoints the database automatically before replacing voters; the
newest five automatic checkpoints are kept.`,
		Example: `  # Snapshot before loading a new voter file
  redistrict checkpoint create --tag before-2026-file

  # List all checkpoints
  redistrict checkpoint list

  # Roll back
  redistrict checkpoint restore before-2026-file`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())
	cmd.AddCommand(restoreCheckpointCmd())
	cmd.AddCommand(deleteCheckpointCmd())

	return cmd
}

// openCheckpoints opens storage and its checkpoint manager. The returned
// close function is safe to call after a restore closed the connection.
func openCheckpoints(ctx context.Context) (*storage.CheckpointManager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	manager, err := store.NewCheckpointManager()
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return manager, func() { _ = store.Close() }, nil
}

func createCheckpointCmd() *cobra.Command {
	var tag string
	var description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		Long:  `Create a snapshot of the current database state.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			manager, closeStore, err := openCheckpoints(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			info, err := manager.Create(ctx, tag, description)
			if err != nil {
				return fmt.Errorf("failed to create checkpoint: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Created checkpoint %s (%s, %d voters)",
				cli.InfoStyle.Render(info.ID), formatFileSize(info.FileSize), info.Voters)))
			if info.Description != "" {
				fmt.Fprintf(out, "  Description: %s\n", info.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Checkpoint tag/name (auto-generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the checkpoint")

	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		Long:  `Display all available checkpoints with their metadata.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			manager, closeStore, err := openCheckpoints(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			checkpoints, err := manager.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(checkpoints) == 0 {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("No checkpoints found."))
				return nil
			}

			rows := make([][]string, 0, len(checkpoints))
			for _, cp := range checkpoints {
				typeLabel := "manual"
				if cp.IsAuto {
					typeLabel = "auto"
				}
				rows = append(rows, []string{
					cp.ID,
					formatRelativeTime(cp.CreatedAt),
					formatFileSize(cp.FileSize),
					strconv.Itoa(cp.Voters),
					strconv.Itoa(cp.Districts),
					strconv.Itoa(cp.Models),
					typeLabel,
				})
			}
			fmt.Fprintln(out, cli.RenderTable(
				[]string{"NAME", "CREATED", "SIZE", "VOTERS", "DISTRICTS", "MODELS", "TYPE"}, rows))
			return nil
		},
	}
}

func restoreCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Restore database from a checkpoint",
		Long:  `Replace the current database with a checkpoint.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			checkpointID := args[0]

			manager, closeStore, err := openCheckpoints(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			info, err := manager.GetCheckpointInfo(ctx, checkpointID)
			if err != nil {
				return fmt.Errorf("failed to get checkpoint info: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatWarning("This will replace your current database with checkpoint "+cli.InfoStyle.Render(checkpointID)+"."))
			fmt.Fprintf(out, "  Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
			if info.Description != "" {
				fmt.Fprintf(out, "  Description: %s\n", info.Description)
			}

			confirm := cli.NewConfirmer(os.Stdin, out)
			confirm.AssumeYes = force
			ok, err := confirm.Confirm(ctx, "Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("Restore cancelled."))
				return nil
			}

			if err := manager.Restore(ctx, checkpointID); err != nil {
				return fmt.Errorf("failed to restore checkpoint: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess("Restored from checkpoint "+cli.InfoStyle.Render(checkpointID)))
			fmt.Fprintln(out, cli.FormatInfo("Stage history was restored too; \"redistrict run\" resumes from it."))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

func deleteCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Delete a checkpoint",
		Long:  `Permanently remove a checkpoint.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			checkpointID := args[0]

			manager, closeStore, err := openCheckpoints(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			info, err := manager.GetCheckpointInfo(ctx, checkpointID)
			if err != nil {
				return fmt.Errorf("failed to get checkpoint info: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatWarning("This will permanently delete checkpoint "+cli.InfoStyle.Render(checkpointID)+"."))
			fmt.Fprintf(out, "  Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  Size: %s\n", formatFileSize(info.FileSize))

			confirm := cli.NewConfirmer(os.Stdin, out)
			confirm.AssumeYes = force
			ok, err := confirm.Confirm(ctx, "Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("Deletion cancelled."))
				return nil
			}

			if err := manager.Delete(ctx, checkpointID); err != nil {
				return fmt.Errorf("failed to delete checkpoint: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess("Deleted checkpoint "+cli.InfoStyle.Render(checkpointID)))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		if m := int(duration.Minutes()); m != 1 {
			return fmt.Sprintf("%d minutes ago", m)
		}
		return "1 minute ago"
	case duration < 24*time.Hour:
		if h := int(duration.Hours()); h != 1 {
			return fmt.Sprintf("%d hours ago", h)
		}
		return "1 hour ago"
	case duration < 7*24*time.Hour:
		if d := int(duration.Hours() / 24); d != 1 {
			return fmt.Sprintf("%d days ago", d)
		}
		return "yesterday"
	default:
		return t.Format("2006-01-02 15:04")
	}
}
