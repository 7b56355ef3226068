// internal/workers/notification/send-escalation/config.go
package sendescalation

import (
	"fmt"
	"time"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	EmailEnabled  bool          `mapstructure:"email_enabled"`
	SMSEnabled    bool          `mapstructure:"sms_enabled"`
	FromEmail     string        `mapstructure:"from_email"`
	AWSRegion     string        `mapstructure:"aws_region"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
		EmailEnabled:  true,
		SMSEnabled:    true,
		FromEmail:     "alerts@biolens.health",
		AWSRegion:     "us-east-1",
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.EmailEnabled && c.FromEmail == "" {
		return fmt.Errorf("from_email is required when email is enabled")
	}
	return nil
}
