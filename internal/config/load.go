package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional ventsync.yaml in the working
// directory and from environment variables with the VENTSYNC_ prefix.
// Environment variables take precedence over values from the config file.
// Returns a populated Config struct or an error if loading or validation
// fails.
func Load() (*Config, error) {
	return loadWithFile("")
}

// loadWithFile is Load with an explicit config file path, used by tests to
// avoid changing the working directory.
func loadWithFile(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("sync.flush_interval", "30s")
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.confirmation_ttl", "24h")
	v.SetDefault("remote.timeout", "10s")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("log.level", "info")

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("ventsync")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		// The config file is optional; only a malformed file is an error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Configure environment variables
	v.SetEnvPrefix("VENTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind critical environment variables
	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"remote.base_url", "VENTSYNC_REMOTE_BASE_URL"},
		{"remote.timeout", "VENTSYNC_REMOTE_TIMEOUT"},
		{"sync.flush_interval", "VENTSYNC_SYNC_FLUSH_INTERVAL"},
		{"sync.batch_size", "VENTSYNC_SYNC_BATCH_SIZE"},
		{"sync.confirmation_ttl", "VENTSYNC_SYNC_CONFIRMATION_TTL"},
		{"storage.backend", "VENTSYNC_STORAGE_BACKEND"},
		{"storage.path", "VENTSYNC_STORAGE_PATH"},
		{"log.level", "VENTSYNC_LOG_LEVEL"},
		{"auth.token", "VENTSYNC_AUTH_TOKEN"},
		{"auth.user_id", "VENTSYNC_AUTH_USER_ID"},
	}
	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
