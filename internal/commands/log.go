package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/movi-dev/movi/internal/config"
	"github.com/movi-dev/movi/internal/runlog"
)

func newLogCommand() *cobra.Command {
	var dir string
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show past reconciliation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			cfg, err := config.Load(filepath.Join(absDir, "movi.yaml"))
			if err != nil {
				return err
			}
			dataDir := cfg.DataDir
			if !filepath.IsAbs(dataDir) {
				dataDir = filepath.Join(absDir, dataDir)
			}

			entries, err := runlog.Read(dataDir)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			for _, e := range entries {
				fmt.Printf("%s  %s  ingested=%d skipped=%d classified=%d split=%d pushed=%d repaired=%d errors=%d  %s\n",
					e.Timestamp.Format(time.RFC3339), e.RunID,
					e.Ingested, e.Skipped, e.Classified, e.Split, e.Pushed, e.Repaired, e.Errors, e.Note)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "ledger directory")
	cmd.Flags().IntVar(&limit, "limit", 10, "show at most this many recent runs")
	return cmd
}
