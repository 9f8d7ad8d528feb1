package reapexpiredcommitments

import (
	"fmt"
	"time"

	"commitment-reaper/internal/common/config"
	"commitment-reaper/internal/common/errors"
)

type Config struct {
	DryRun         bool          `mapstructure:"dry_run"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	SubscriptionID string        `mapstructure:"subscription_id"`
	ResourceGroup  string        `mapstructure:"resource_group"`
	AccountName    string        `mapstructure:"account_name"`
}

func DefaultConfig() *Config {
	return &Config{
		DryRun:     true,
		RunTimeout: 5 * time.Minute,
	}
}

// NewConfig picks the run settings out of the application config.
func NewConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.DryRun = cfg.Cleanup.DryRun
	if cfg.Cleanup.RunTimeout > 0 {
		c.RunTimeout = cfg.Cleanup.RunTimeout
	}
	c.SubscriptionID, c.ResourceGroup, c.AccountName = cfg.Azure.Target()
	return c
}

func (c *Config) Validate() error {
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive")
	}
	return nil
}

// ValidateTarget reports which of the account coordinates are unset.
func (c *Config) ValidateTarget() error {
	var missing []string
	if c.SubscriptionID == "" {
		missing = append(missing, "AZURE_SUBSCRIPTION_ID")
	}
	if c.ResourceGroup == "" {
		missing = append(missing, "AZURE_RESOURCE_GROUP_NAME")
	}
	if c.AccountName == "" {
		missing = append(missing, "AZURE_OPENAI_SERVICE_NAME")
	}
	if len(missing) > 0 {
		return errors.NewConfigMissingError(missing...)
	}
	return nil
}
