package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "QUILLBIN"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabaseDSN   = "host=localhost user=quillbin dbname=quillbin sslmode=disable"
	defaultLogLevel      = "info"
	defaultTokenTTLHours = 24
	defaultSweepMinutes  = 10
	defaultTokenIssuer   = "quillbin-auth"
	defaultTokenAudience = "quillbin-api"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabaseDSN   string
	LogLevel      string
	SigningSecret string
	TokenIssuer   string
	TokenAudience string
	TokenTTL      time.Duration
	SweepInterval time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_hours", defaultTokenTTLHours)
	configViper.SetDefault("auth.token_issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.token_audience", defaultTokenAudience)
	configViper.SetDefault("cleanup.sweep_interval_minutes", defaultSweepMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabaseDSN:   configViper.GetString("database.dsn"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenIssuer:   configViper.GetString("auth.token_issuer"),
		TokenAudience: configViper.GetString("auth.token_audience"),
		TokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_hours")) * time.Hour,
		SweepInterval: time.Duration(configViper.GetInt("cleanup.sweep_interval_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_hours must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("cleanup.sweep_interval_minutes must be positive")
	}
	return nil
}
