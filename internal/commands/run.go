package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/movi-dev/movi/internal/category"
	"github.com/movi-dev/movi/internal/classify"
	"github.com/movi-dev/movi/internal/config"
	"github.com/movi-dev/movi/internal/fx"
	"github.com/movi-dev/movi/internal/ingest"
	"github.com/movi-dev/movi/internal/ledger"
	"github.com/movi-dev/movi/internal/logging"
	"github.com/movi-dev/movi/internal/reconcile"
	"github.com/movi-dev/movi/internal/settle"
)

// app is the wired pipeline behind every ledger-touching command.
type app struct {
	cfg     *config.Config
	dataDir string
	store   ledger.Store
	ledger  *ledger.Service
	orch    *reconcile.Orchestrator
}

func (a *app) Close() error {
	return a.store.Close()
}

// openApp loads movi.yaml from dir and wires the store, converter,
// sources, classifier, and pusher it describes. Sources and external
// capabilities are optional; whatever is not configured is left nil
// and its stage becomes a no-op.
func openApp(dir string) (*app, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	cfg, err := config.Load(filepath.Join(absDir, "movi.yaml"))
	if err != nil {
		return nil, err
	}

	dataDir := cfg.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(absDir, dataDir)
	}

	cats, err := category.Load(filepath.Join(absDir, cfg.CategoriesFile))
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}

	var store ledger.Store
	switch cfg.Store {
	case "", "csv":
		store, err = ledger.NewCSVStore(dataDir)
	case "sqlite":
		store, err = ledger.NewSQLiteStore(filepath.Join(dataDir, "ledger.db"))
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	svc := ledger.NewService(store, cats)

	rates, err := cfg.Rates.Rates()
	if err != nil {
		store.Close()
		return nil, err
	}
	converter := fx.New(fx.StaticRates(rates),
		fx.WithRetry(cfg.Retry.MaxAttempts, time.Duration(cfg.Retry.BackoffSeconds)*time.Second))

	sources := []ingest.Source{
		ingest.NewMailSource(ingest.DirSearcher{Dir: filepath.Join(dataDir, "mail")}, cfg.Mail.Query),
	}
	if cfg.Bank.BaseURL != "" {
		sources = append(sources, ingest.NewBankSource(cfg.Bank.BaseURL, cfg.Bank.AccountID, cfg.Bank.AccessToken))
	}
	if cfg.Splitwise.BaseURL != "" && cfg.Splitwise.APIKey != "" {
		sources = append(sources, ingest.NewSplitwiseSource(cfg.Splitwise.BaseURL, cfg.Splitwise.APIKey, cfg.Splitwise.UserID, cfg.Splitwise.GroupID))
	}

	var classifier classify.Classifier
	if cfg.Classifier.Model != "" {
		classifier = classify.NewGeminiClassifier(cfg.Classifier.Model, cats.All())
	}

	var pusher settle.Pusher
	if cfg.Splitwise.BaseURL != "" && cfg.Splitwise.APIKey != "" {
		pusher = settle.NewSplitwiseClient(cfg.Splitwise.BaseURL, cfg.Splitwise.APIKey, cfg.Splitwise.UserID, cfg.Splitwise.GroupID)
	}

	orch := &reconcile.Orchestrator{
		Ledger:     svc,
		Converter:  converter,
		Sources:    sources,
		Classifier: classifier,
		Categories: cats,
		Pusher:     pusher,
		PushSystem: cfg.Push.System,
		Cooldown:   time.Duration(cfg.Push.CooldownSeconds) * time.Second,
		DataDir:    dataDir,
		Logger:     logging.New(),
	}

	return &app{cfg: cfg, dataDir: dataDir, store: store, ledger: svc, orch: orch}, nil
}

func printSummary(sum reconcile.Summary) {
	fmt.Printf("run %s: ingested %d, skipped %d, classified %d, split %d, pushed %d, repaired %d, errors %d\n",
		sum.RunID, sum.Ingested, sum.Skipped, sum.Classified, sum.Split, sum.Pushed, sum.Repaired, sum.Errors)
}

func newRunCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full reconciliation pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(dir)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := a.orch.Run(cmd.Context())
			printSummary(sum)
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "ledger directory")
	return cmd
}

// newStageCommand builds a subcommand running one pipeline stage.
func newStageCommand(use, short string, stage func(ctx context.Context, a *app) (reconcile.Summary, error)) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(dir)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := stage(cmd.Context(), a)
			printSummary(sum)
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "ledger directory")
	return cmd
}

func newIngestCommand() *cobra.Command {
	return newStageCommand("ingest", "Pull new movements from the configured sources", func(ctx context.Context, a *app) (reconcile.Summary, error) {
		return a.orch.Ingest(ctx)
	})
}

func newClassifyCommand() *cobra.Command {
	return newStageCommand("classify", "Classify and split annotated movements", func(ctx context.Context, a *app) (reconcile.Summary, error) {
		return a.orch.Classify(ctx)
	})
}

func newPushCommand() *cobra.Command {
	return newStageCommand("push", "Push pending owed portions to the settlement system", func(ctx context.Context, a *app) (reconcile.Summary, error) {
		return a.orch.Push(ctx)
	})
}

func newRepairCommand() *cobra.Command {
	return newStageCommand("repair", "Recompute missing currency snapshots", func(ctx context.Context, a *app) (reconcile.Summary, error) {
		return a.orch.Repair(ctx)
	})
}
