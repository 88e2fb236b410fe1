// Package cli is the sitebooks command tree. Every core operation
// (serve, check, backup, restore) is reachable here without the desktop
// shell.
package cli

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sitebooks-core/pkg/config"
)

// NewRootCommand creates the root command for the sitebooks CLI.
func NewRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "sitebooks",
		Short: "Construction bookkeeping core",
		Long:  "Persistence, backup and restore core of the sitebooks bookkeeping application.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewCheckCommand())
	cmd.AddCommand(NewBackupCommand())
	cmd.AddCommand(NewRestoreCommand())

	return cmd
}

// loadConfig is shared by all subcommands.
func loadConfig() (*config.Config, error) {
	return config.Load()
}
