package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	WorkerCount int    `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// Secrets is either an inline JSON secrets bundle or the path of a
	// file containing one; see internal/secrets.
	Secrets string `env:"SECRETS,required" validate:"required"`

	SchedulerURL    string `env:"SCHEDULER_URL,required"   validate:"required,url"`
	SchedulerToken  string `env:"SCHEDULER_TOKEN,required" validate:"required"`
	TriggerPrefix   string `env:"TRIGGER_PREFIX"   envDefault:"update-support-group-"`
	TriggerTarget   string `env:"TRIGGER_TARGET,required"  validate:"required"`
	TriggerGraceSec int    `env:"TRIGGER_GRACE_SEC" envDefault:"300" validate:"min=0"`

	SlackBaseURL     string `env:"SLACK_BASE_URL"     envDefault:"https://slack.com/api"`
	PagerDutyBaseURL string `env:"PAGERDUTY_BASE_URL" envDefault:"https://api.pagerduty.com"`
	OAuthBaseURL     string `env:"OAUTH_BASE_URL"     envDefault:"http://localhost:8080"`

	MaxExtraGroupMembers int  `env:"MAX_EXTRA_GROUP_MEMBERS" envDefault:"2" validate:"min=0"`
	StrictGroupGuard     bool `env:"STRICT_GROUP_GUARD" envDefault:"false"`

	JWTSecret     string `env:"JWT_SECRET,required" validate:"required,min=32"`
	ResendAPIKey  string `env:"RESEND_API_KEY"  validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom    string `env:"RESEND_FROM"     validate:"required_if=Env production,required_if=Env staging"`
	OpsAlertEmail string `env:"OPS_ALERT_EMAIL" validate:"required_if=Env production,required_if=Env staging"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel maps LogLevel onto the slog scale.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
