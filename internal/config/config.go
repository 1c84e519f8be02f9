package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Tolerance ToleranceConfig
	Variation VariationConfig
	VAT       VATConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// ToleranceConfig holds the reconciliation matching thresholds. All monetary
// values are integer cents; Percentage is a fraction (0.005 = 0.5%).
type ToleranceConfig struct {
	FixedAmountCents      int64   `mapstructure:"fixed_amount_cents"`
	BalanceCents          int64   `mapstructure:"balance_cents"`
	BankFeeCents          int64   `mapstructure:"bank_fee_cents"`
	DateDays              int     `mapstructure:"date_days"`
	Percentage            float64 `mapstructure:"percentage"`
	LargeAmountCents      int64   `mapstructure:"large_amount_cents"`
	DescriptionSimilarity float64 `mapstructure:"description_similarity"`
}

// VariationConfig holds defaults for the amount-variation analyzer.
type VariationConfig struct {
	DefaultPercentage float64 `mapstructure:"default_percentage"`
	DefaultZScore     float64 `mapstructure:"default_z_score"`
	AutoApplyScore    int     `mapstructure:"auto_apply_score"`
}

// VATConfig holds the VAT rate and compliance settings.
type VATConfig struct {
	StandardRate         float64 `mapstructure:"standard_rate"`
	InvoiceRequiredCents int64   `mapstructure:"invoice_required_cents"`
}

// Load reads configuration from file and env. Env var overrides use prefix CRECHEBOOKS_.
// Unset or unparsable keys fall back to the hard-coded defaults.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "crechebooks", "crechebooks.db"))

	v.SetDefault("tolerance.fixed_amount_cents", int64(1))
	v.SetDefault("tolerance.balance_cents", int64(100))
	v.SetDefault("tolerance.bank_fee_cents", int64(500))
	v.SetDefault("tolerance.date_days", 1)
	v.SetDefault("tolerance.percentage", 0.005)
	v.SetDefault("tolerance.large_amount_cents", int64(1_000_000))
	v.SetDefault("tolerance.description_similarity", 0.7)

	v.SetDefault("variation.default_percentage", 30.0)
	v.SetDefault("variation.default_z_score", 2.5)
	v.SetDefault("variation.auto_apply_score", 80)

	v.SetDefault("vat.standard_rate", 0.15)
	v.SetDefault("vat.invoice_required_cents", int64(500_000))

	v.SetConfigType("toml")

	cfgPath := os.Getenv("CRECHEBOOKS_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "crechebooks"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("CRECHEBOOKS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.sanitize()
	return c, nil
}

// Default returns the fallback configuration without touching the
// filesystem or environment.
func Default() Config {
	return Config{
		Tolerance: ToleranceConfig{
			FixedAmountCents:      1,
			BalanceCents:          100,
			BankFeeCents:          500,
			DateDays:              1,
			Percentage:            0.005,
			LargeAmountCents:      1_000_000,
			DescriptionSimilarity: 0.7,
		},
		Variation: VariationConfig{
			DefaultPercentage: 30.0,
			DefaultZScore:     2.5,
			AutoApplyScore:    80,
		},
		VAT: VATConfig{
			StandardRate:         0.15,
			InvoiceRequiredCents: 500_000,
		},
	}
}

// sanitize replaces out-of-range values with defaults so a bad config file
// cannot disable tolerance checks entirely.
func (c *Config) sanitize() {
	def := Default()
	if c.Tolerance.FixedAmountCents < 0 {
		c.Tolerance.FixedAmountCents = def.Tolerance.FixedAmountCents
	}
	if c.Tolerance.BalanceCents < 0 {
		c.Tolerance.BalanceCents = def.Tolerance.BalanceCents
	}
	if c.Tolerance.BankFeeCents < 0 {
		c.Tolerance.BankFeeCents = def.Tolerance.BankFeeCents
	}
	if c.Tolerance.DateDays < 0 {
		c.Tolerance.DateDays = def.Tolerance.DateDays
	}
	if c.Tolerance.Percentage <= 0 || c.Tolerance.Percentage >= 1 {
		c.Tolerance.Percentage = def.Tolerance.Percentage
	}
	if c.Tolerance.LargeAmountCents <= 0 {
		c.Tolerance.LargeAmountCents = def.Tolerance.LargeAmountCents
	}
	if c.Tolerance.DescriptionSimilarity <= 0 || c.Tolerance.DescriptionSimilarity > 1 {
		c.Tolerance.DescriptionSimilarity = def.Tolerance.DescriptionSimilarity
	}
	if c.Variation.DefaultPercentage <= 0 {
		c.Variation.DefaultPercentage = def.Variation.DefaultPercentage
	}
	if c.Variation.DefaultZScore <= 0 {
		c.Variation.DefaultZScore = def.Variation.DefaultZScore
	}
	if c.Variation.AutoApplyScore <= 0 || c.Variation.AutoApplyScore > 100 {
		c.Variation.AutoApplyScore = def.Variation.AutoApplyScore
	}
	if c.VAT.StandardRate <= 0 || c.VAT.StandardRate >= 1 {
		c.VAT.StandardRate = def.VAT.StandardRate
	}
	if c.VAT.InvoiceRequiredCents <= 0 {
		c.VAT.InvoiceRequiredCents = def.VAT.InvoiceRequiredCents
	}
}
