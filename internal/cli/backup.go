package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sitebooks-core/internal/backup"
	"sitebooks-core/pkg/db"
)

// NewBackupCommand groups the backup archive operations.
func NewBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage store backups",
	}
	cmd.AddCommand(newBackupListCommand())
	cmd.AddCommand(newBackupCreateCommand())
	cmd.AddCommand(newBackupDeleteCommand())
	cmd.AddCommand(newBackupCleanupCommand())
	return cmd
}

func openBackupStore() (*backup.Store, *db.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := backup.NewStore(cfg.BackupDir)
	if err != nil {
		return nil, nil, err
	}
	return store, db.NewManager(cfg.DBPath, cfg.StalenessCheckEvery), nil
}

func newBackupListCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "list",
		Short:        "List backups, newest first",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, mgr, err := openBackupStore()
			if err != nil {
				return err
			}
			defer mgr.Close()

			entries, err := store.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no backups")
				return nil
			}
			for _, e := range entries {
				hash := e.Hash
				if len(hash) > 12 {
					hash = hash[:12]
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %10d bytes  %s  %s\n",
					e.CreatedAt.Format(time.DateTime), e.Size, hash, e.Path)
			}
			return nil
		},
	}
}

func newBackupCreateCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:          "create",
		Short:        "Snapshot the live store into the archive",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, mgr, err := openBackupStore()
			if err != nil {
				return err
			}
			defer mgr.Close()

			if err := mgr.Checkpoint(); err != nil {
				return err
			}
			entry, deduped, err := store.Archive(mgr.Path(), name)
			if err != nil {
				return err
			}
			if deduped {
				fmt.Fprintf(cmd.OutOrStdout(), "content unchanged, existing backup: %s\n", entry.Path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup created: %s (%d bytes)\n", entry.Path, entry.Size)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "target file name (default derives from the store file)")
	return cmd
}

func newBackupDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "delete <path>",
		Short:        "Delete a backup file and its index entry",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, mgr, err := openBackupStore()
			if err != nil {
				return err
			}
			defer mgr.Close()

			removed, err := store.Delete(args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "no index entry for %s\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newBackupCleanupCommand() *cobra.Command {
	var maxAgeDays int

	cmd := &cobra.Command{
		Use:          "cleanup",
		Short:        "Delete backups older than the retention threshold",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if maxAgeDays <= 0 {
				maxAgeDays = cfg.BackupMaxAgeDays
			}

			store, err := backup.NewStore(cfg.BackupDir)
			if err != nil {
				return err
			}
			result, err := store.Cleanup(maxAgeDays)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d backups, freed %d bytes\n", result.Deleted, result.FreedBytes)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "age threshold (default from config)")
	return cmd
}
