package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Approval   ApprovalConfig   `koanf:"approval"`
	Channels   ChannelsConfig   `koanf:"channels"`
	Escalation EscalationConfig `koanf:"escalation"`
	Store      StoreConfig      `koanf:"store"`
	Daemon     DaemonConfig     `koanf:"daemon"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	PublicBaseURL   string `koanf:"public_base_url"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type ApprovalConfig struct {
	DefaultTimeout   string `koanf:"default_timeout"`
	SweepSchedule    string `koanf:"sweep_schedule"`
	DeliveryDedupTTL string `koanf:"delivery_dedup_ttl"`
}

type ChannelsConfig struct {
	Slack   SlackConfig   `koanf:"slack"`
	Webhook WebhookConfig `koanf:"webhook"`
}

type SlackConfig struct {
	Enabled         bool   `koanf:"enabled"`
	BotToken        string `koanf:"bot_token"`
	SigningSecret   string `koanf:"signing_secret"`
	Channel         string `koanf:"channel"`
	AvailabilityTTL string `koanf:"availability_ttl"`
}

type WebhookConfig struct {
	URL     string `koanf:"url"`
	Timeout string `koanf:"timeout"`
}

type EscalationConfig struct {
	Telegram TelegramConfig `koanf:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BotToken string `koanf:"bot_token"`
	ChatID   int64  `koanf:"chat_id"`
}

type StoreConfig struct {
	Path         string `koanf:"path"`
	LockTimeout  string `koanf:"lock_timeout"`
	LockRetry    string `koanf:"lock_retry"`
	LockMaxRetry int    `koanf:"lock_max_retry"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
}

const (
	DefaultServerPort               = 8080
	DefaultServerLogLevel           = "info"
	DefaultServerPublicBaseURL      = "http://localhost:8080"
	DefaultServerReadTimeout        = "10s"
	DefaultServerWriteTimeout       = "10s"
	DefaultServerIdleTimeout        = "60s"
	DefaultServerShutdownTimeout    = "5s"
	DefaultApprovalTimeout          = "2h"
	DefaultApprovalSweepSchedule    = "@every 1m"
	DefaultApprovalDeliveryDedupTTL = "24h"
	DefaultSlackAvailabilityTTL     = "60s"
	DefaultWebhookTimeout           = "10s"
	DefaultStoreLockTimeout         = "30s"
	DefaultStoreLockRetry           = "100ms"
	DefaultStoreLockMaxRetry        = 300
	DefaultDaemonShutdownTimeout    = "30s"
	DefaultDaemonStartupShutdown    = "10s"
	DefaultDaemonHealthInterval     = "30s"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.port":                     DefaultServerPort,
		"server.log_level":                DefaultServerLogLevel,
		"server.public_base_url":          DefaultServerPublicBaseURL,
		"server.read_timeout":             DefaultServerReadTimeout,
		"server.write_timeout":            DefaultServerWriteTimeout,
		"server.idle_timeout":             DefaultServerIdleTimeout,
		"server.shutdown_timeout":         DefaultServerShutdownTimeout,
		"approval.default_timeout":        DefaultApprovalTimeout,
		"approval.sweep_schedule":         DefaultApprovalSweepSchedule,
		"approval.delivery_dedup_ttl":     DefaultApprovalDeliveryDedupTTL,
		"channels.slack.availability_ttl": DefaultSlackAvailabilityTTL,
		"channels.webhook.timeout":        DefaultWebhookTimeout,
		"store.path":                      filepath.Join(os.Getenv("HOME"), ".hanko", "approvals"),
		"store.lock_timeout":              DefaultStoreLockTimeout,
		"store.lock_retry":                DefaultStoreLockRetry,
		"store.lock_max_retry":            DefaultStoreLockMaxRetry,
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdown,
		"daemon.health_check_interval":    DefaultDaemonHealthInterval,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".hanko", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("HANKO_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "HANKO_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" && cfg.Channels.Slack.BotToken == "" {
		cfg.Channels.Slack.BotToken = token
	}
	if secret := os.Getenv("SLACK_SIGNING_SECRET"); secret != "" && cfg.Channels.Slack.SigningSecret == "" {
		cfg.Channels.Slack.SigningSecret = secret
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" && cfg.Escalation.Telegram.BotToken == "" {
		cfg.Escalation.Telegram.BotToken = token
	}

	return &cfg, nil
}
