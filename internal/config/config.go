// Package config loads the reelgate configuration from a TOML file with
// environment-variable overrides for secret material.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigPath  = "config.toml"
	DefaultWebhookAddr = ":5001"
	DefaultEnvironment = "production"
)

// Environment variables that override file values. Secrets should come
// from the environment rather than the config file.
const (
	EnvSigningKey    = "REELGATE_SIGNING_KEY"
	EnvEncryptionKey = "REELGATE_ENCRYPTION_KEY"
	EnvCatalogAPIKey = "REELGATE_CATALOG_API_KEY"
	EnvWebhookSecret = "REELGATE_WEBHOOK_SECRET"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Messaging MessagingConfig `toml:"messaging"`
	Access    AccessConfig    `toml:"access"`
	Catalog   CatalogConfig   `toml:"catalog"`
	Webhook   WebhookConfig   `toml:"webhook"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MessagingConfig configures the decentralized-messaging client.
type MessagingConfig struct {
	Environment   string `toml:"environment" validate:"oneof=local dev production"`
	GatewayURL    string `toml:"gateway_url" validate:"omitempty,url"`
	SigningKey    string `toml:"signing_key" validate:"required,hexadecimal,len=64"`
	EncryptionKey string `toml:"encryption_key" validate:"required,hexadecimal,len=64"`
	AutoRevoke    bool   `toml:"auto_revoke"`
}

// AccessConfig holds the wallet allowlist and administrator identifiers.
type AccessConfig struct {
	Allowlist []string `toml:"allowlist" validate:"min=1,dive,required"`
	Admins    []string `toml:"admins"`
}

// CatalogConfig configures the media catalog backend client. Users maps a
// lowercased wallet identifier to the backend username used for request
// attribution.
type CatalogConfig struct {
	BaseURL   string            `toml:"base_url" validate:"required,url"`
	APIKey    string            `toml:"api_key" validate:"required"`
	PublicURL string            `toml:"public_url" validate:"omitempty,url"`
	Users     map[string]string `toml:"users"`
}

// WebhookConfig configures the inbound completion-callback listener.
type WebhookConfig struct {
	Enabled          bool     `toml:"enabled"`
	Addr             string   `toml:"addr"`
	Secret           string   `toml:"secret"`
	IPAllowlist      []string `toml:"ip_allowlist"`
	TrustProxyHeader bool     `toml:"trust_proxy_header"`
	Debug            bool     `toml:"debug"`
}

// Load reads the TOML file at path (DefaultConfigPath when empty), applies
// environment overrides, and validates the result. A missing file is not an
// error so that fully environment-driven deployments work.
func Load(path string) (Config, error) {
	// Best effort: a local .env is a development convenience.
	_ = godotenv.Load()

	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Messaging: MessagingConfig{
			Environment: DefaultEnvironment,
		},
		Webhook: WebhookConfig{
			Addr: DefaultWebhookAddr,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvSigningKey)); v != "" {
		cfg.Messaging.SigningKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEncryptionKey)); v != "" {
		cfg.Messaging.EncryptionKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCatalogAPIKey)); v != "" {
		cfg.Catalog.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWebhookSecret)); v != "" {
		cfg.Webhook.Secret = v
	}
}

func normalize(cfg *Config) {
	cfg.Messaging.SigningKey = strings.TrimPrefix(strings.TrimSpace(cfg.Messaging.SigningKey), "0x")
	cfg.Messaging.EncryptionKey = strings.TrimPrefix(strings.TrimSpace(cfg.Messaging.EncryptionKey), "0x")
	cfg.Messaging.Environment = strings.ToLower(strings.TrimSpace(cfg.Messaging.Environment))

	for i, id := range cfg.Access.Allowlist {
		cfg.Access.Allowlist[i] = strings.ToLower(strings.TrimSpace(id))
	}
	for i, id := range cfg.Access.Admins {
		cfg.Access.Admins[i] = strings.ToLower(strings.TrimSpace(id))
	}

	users := make(map[string]string, len(cfg.Catalog.Users))
	for id, username := range cfg.Catalog.Users {
		users[strings.ToLower(strings.TrimSpace(id))] = strings.TrimSpace(username)
	}
	cfg.Catalog.Users = users
}

// Validate checks structural constraints. Webhook secret and IP allowlist
// are required only when the webhook listener is enabled.
func Validate(cfg Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Webhook.Enabled {
		if strings.TrimSpace(cfg.Webhook.Secret) == "" {
			return fmt.Errorf("invalid configuration: webhook.secret is required when webhook.enabled")
		}
		if len(cfg.Webhook.IPAllowlist) == 0 {
			return fmt.Errorf("invalid configuration: webhook.ip_allowlist is required when webhook.enabled")
		}
	}
	return nil
}
