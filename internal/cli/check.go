package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sitebooks-core/pkg/db"
)

// NewCheckCommand validates the store file without opening a writer.
func NewCheckCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:          "check [file]",
		Short:        "Validate a store file",
		Long:         "Check that a store file is a well-formed, readable database. Defaults to the configured live store.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				path = cfg.DBPath
			}

			switch err := db.Validate(path); {
			case err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
				return nil
			case errors.Is(err, db.ErrStoreMissing):
				fmt.Fprintf(cmd.OutOrStdout(), "%s: does not exist (will be created on first run)\n", path)
				return nil
			default:
				return err
			}
		},
	}
	return cmd
}
