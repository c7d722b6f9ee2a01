package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/movi-dev/movi/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "movi",
		Short:   "Personal movement ledger and reconciliation",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newIngestCommand())
	rootCmd.AddCommand(newClassifyCommand())
	rootCmd.AddCommand(newPushCommand())
	rootCmd.AddCommand(newRepairCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newLogCommand())

	return rootCmd
}
