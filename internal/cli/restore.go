package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sitebooks-core/internal/backup"
	"sitebooks-core/internal/events"
	"sitebooks-core/internal/restore"
	"sitebooks-core/pkg/db"
)

// NewRestoreCommand replaces the live store with a validated backup.
func NewRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "restore <file>",
		Short:        "Restore the live store from a backup file",
		Long:         "Validate the candidate, snapshot the current store, copy the candidate into place, and reconnect.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			mgr := db.NewManager(cfg.DBPath, cfg.StalenessCheckEvery)
			defer mgr.Close()

			backups, err := backup.NewStore(cfg.BackupDir)
			if err != nil {
				return err
			}

			coordinator := restore.NewCoordinator(mgr, backups, events.NewBus())
			if err := coordinator.Restore(args[0]); err != nil {
				return err
			}

			// Prove the restored store is usable before reporting success.
			if _, err := mgr.Current(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", cfg.DBPath, args[0])
			return nil
		},
	}
}
