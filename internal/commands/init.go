package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/movi-dev/movi/internal/category"
	"github.com/movi-dev/movi/internal/config"
	"github.com/movi-dev/movi/internal/ledger"
	"github.com/movi-dev/movi/internal/model"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new movi ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(absDir)
		},
	}

	return cmd
}

func defaultCategories() []model.Category {
	return []model.Category{
		{Key: "food", Name: "Food", Description: "Groceries and eating out"},
		{Key: "transport", Name: "Transport", Description: "Rides, fuel, public transport"},
		{Key: "home", Name: "Home", Description: "Rent, utilities, household"},
		{Key: "services", Name: "Services", Description: "Subscriptions and recurring services"},
		{Key: "entertainment", Name: "Entertainment", Description: "Leisure and going out"},
		{Key: "health", Name: "Health", Description: "Pharmacy, doctors, insurance"},
		{Key: "travel", Name: "Travel", Description: "Trips and holidays"},
		{Key: "income", Name: "Income", Description: "Salary and other inflows"},
		{Key: "other", Name: "Other", Description: "Anything uncategorized"},
	}
}

func runInit(dir string) error {
	for _, d := range []string{"mail", "logs"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Write movi.yaml.
	cfg := config.Default()
	if err := config.Save(filepath.Join(dir, "movi.yaml"), cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Write the category vocabulary.
	cats := category.NewSet(defaultCategories())
	if err := cats.Save(filepath.Join(dir, cfg.CategoriesFile)); err != nil {
		return fmt.Errorf("writing categories: %w", err)
	}

	// Create the empty ledger with its header row.
	store, err := ledger.NewCSVStore(dir)
	if err != nil {
		return fmt.Errorf("creating ledger: %w", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("closing ledger: %w", err)
	}

	fmt.Printf("Initialized movi ledger at %s\n", dir)
	return nil
}
