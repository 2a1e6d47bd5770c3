package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"benchcore/internal/blob"

	"github.com/spf13/cobra"
)

func newSweepCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate every record once and mark overdue tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, logger, err := loadSettings(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, logger, appOptions{stderr: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			report, _, err := a.service.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("sweep finished", "created", len(report.Created), "overdue", len(report.Overdue))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"created": report.Created, "overdue": report.Overdue})
		},
	}
}

func newBackupCmd(flags *globalFlags) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the committed state to the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, logger, err := loadSettings(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, logger, appOptions{stderr: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			archive, err := a.archive(cmd.Context())
			if err != nil {
				return err
			}
			key, err := a.service.Backup(cmd.Context(), archive)
			if err != nil {
				return err
			}
			if keep > 0 {
				removed, err := archive.Prune(cmd.Context(), keep)
				if err != nil {
					return fmt.Errorf("prune snapshots: %w", err)
				}
				logger.Info("snapshots pruned", "removed", len(removed))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "keep only the newest N snapshots (0 keeps all)")
	return cmd
}

func newRestoreCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [key]",
		Short: "Replace the committed state with an archived snapshot (latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, logger, err := loadSettings(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, logger, appOptions{stderr: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			archive, err := a.archive(cmd.Context())
			if err != nil {
				return err
			}
			var key string
			if len(args) == 1 {
				key = args[0]
			} else if key, err = archive.Latest(cmd.Context()); err != nil {
				if errors.Is(err, blob.ErrNoSnapshots) {
					return fmt.Errorf("nothing to restore: %w", err)
				}
				return err
			}
			if err := a.service.Restore(cmd.Context(), archive, key); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", key)
			return err
		},
	}
}
