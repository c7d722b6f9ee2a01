package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the ledger's integrity invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(dir)
			if err != nil {
				return err
			}
			defer a.Close()

			violations, err := a.ledger.Validate()
			if err != nil {
				return err
			}
			if len(violations) == 0 {
				fmt.Println("ledger ok")
				return nil
			}
			for _, v := range violations {
				fmt.Printf("invariant %d, movement #%d: %s\n", v.Invariant, v.MovementID, v.Description)
			}
			return fmt.Errorf("%d invariant violation(s)", len(violations))
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "ledger directory")
	return cmd
}
