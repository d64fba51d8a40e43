package extension

import "time"

// Config holds the Tally extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tally" or "tally" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableScheduler keeps the periodic settlement worker from running.
	DisableScheduler bool `json:"disable_scheduler" mapstructure:"disable_scheduler" yaml:"disable_scheduler"`

	// SettleInterval is the period between settlement passes (default: 24h).
	SettleInterval time.Duration `json:"settle_interval" mapstructure:"settle_interval" yaml:"settle_interval"`

	// SettleConcurrency bounds how many subscriptions a pass settles at once
	// (default: 8).
	SettleConcurrency int `json:"settle_concurrency" mapstructure:"settle_concurrency" yaml:"settle_concurrency"`

	// Currency is the ledger currency (default: "brl").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SettleInterval:    24 * time.Hour,
		SettleConcurrency: 8,
		Currency:          "brl",
	}
}
