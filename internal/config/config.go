package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/movi-dev/movi/internal/fx"
)

// Config represents the top-level movi.yaml configuration. Rates,
// category vocabulary and credentials are explicit injected
// configuration, never ambient globals.
type Config struct {
	DataDir        string           `yaml:"data_dir"`
	Store          string           `yaml:"store"` // "csv" or "sqlite"
	CategoriesFile string           `yaml:"categories_file"`
	Rates          RatesConfig      `yaml:"rates"`
	Retry          RetryConfig      `yaml:"retry"`
	Push           PushConfig       `yaml:"push"`
	Classifier     ClassifierConfig `yaml:"classifier"`
	Mail           MailConfig       `yaml:"mail"`
	Bank           BankConfig       `yaml:"bank"`
	Splitwise      SplitwiseConfig  `yaml:"splitwise"`
}

// RatesConfig holds the three pairwise exchange ratios as decimal
// strings (yaml floats would lose precision).
type RatesConfig struct {
	CLPPerUSD string `yaml:"clp_per_usd"`
	GBPPerUSD string `yaml:"gbp_per_usd"`
	CLPPerGBP string `yaml:"clp_per_gbp,omitempty"`
}

// Rates parses the configured ratios.
func (r RatesConfig) Rates() (fx.Rates, error) {
	var (
		rates fx.Rates
		err   error
	)
	if rates.CLPPerUSD, err = parseRate(r.CLPPerUSD, "clp_per_usd"); err != nil {
		return fx.Rates{}, err
	}
	if rates.GBPPerUSD, err = parseRate(r.GBPPerUSD, "gbp_per_usd"); err != nil {
		return fx.Rates{}, err
	}
	if r.CLPPerGBP != "" {
		if rates.CLPPerGBP, err = parseRate(r.CLPPerGBP, "clp_per_gbp"); err != nil {
			return fx.Rates{}, err
		}
	}
	return rates, nil
}

func parseRate(s, name string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("missing rate %s", name)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing rate %s %q: %w", name, s, err)
	}
	return d, nil
}

// RetryConfig bounds the conversion retry loop.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

// PushConfig controls the settlement push stage.
type PushConfig struct {
	System          string `yaml:"system"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
}

// ClassifierConfig names the model behind the classification call.
type ClassifierConfig struct {
	Model string `yaml:"model"`
}

// MailConfig selects bank purchase-notification mails.
type MailConfig struct {
	Query string `yaml:"query"`
}

// BankConfig points at the bank transactions API.
type BankConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccountID   string `yaml:"account_id"`
	AccessToken string `yaml:"access_token"`
}

// SplitwiseConfig points at the shared-expense ledger API.
type SplitwiseConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	UserID  int64  `yaml:"user_id"`
	GroupID int64  `yaml:"group_id"`
}

// Load reads a movi.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new ledger.
func Default() *Config {
	return &Config{
		DataDir:        ".",
		Store:          "csv",
		CategoriesFile: "categories.csv",
		Rates: RatesConfig{
			CLPPerUSD: "950",
			GBPPerUSD: "0.8",
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BackoffSeconds: 1,
		},
		Push: PushConfig{
			System:          "splitwise",
			CooldownSeconds: 2,
		},
		Classifier: ClassifierConfig{
			Model: "gemini-2.0-flash",
		},
		Splitwise: SplitwiseConfig{
			BaseURL: "https://secure.splitwise.com/api/v3.0",
		},
	}
}
