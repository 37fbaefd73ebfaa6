// Package config loads service settings from environment variables, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all settings for the gridpay service.
type Config struct {
	ServerPort       string `mapstructure:"SERVER_PORT"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	LedgerAPIBaseURL string `mapstructure:"LEDGER_API_BASE_URL"`
	LedgerAPIKey     string `mapstructure:"LEDGER_API_KEY"`
	// CallbackBaseURL is the externally reachable base URI of this process;
	// the three phase-callback URIs handed to the ledger are built from it.
	CallbackBaseURL string `mapstructure:"CALLBACK_BASE_URL"`
	Environment     string `mapstructure:"ENVIRONMENT"`
}

// Load reads configuration from the environment, consulting an optional
// .env file under path.
func Load(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")

	for _, key := range []string{
		"SERVER_PORT", "DATABASE_URL", "LEDGER_API_BASE_URL",
		"LEDGER_API_KEY", "CALLBACK_BASE_URL", "ENVIRONMENT",
	} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.LedgerAPIBaseURL == "" {
		return Config{}, fmt.Errorf("LEDGER_API_BASE_URL is required")
	}
	if cfg.CallbackBaseURL == "" {
		return Config{}, fmt.Errorf("CALLBACK_BASE_URL is required")
	}

	return cfg, nil
}
