package config

import "time"

// Config holds all engine configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Sync    SyncConfig    `mapstructure:"sync" validate:"required"`
	Remote  RemoteConfig  `mapstructure:"remote" validate:"required"`
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
	Log     LogConfig     `mapstructure:"log" validate:"required"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// SyncConfig contains the coordinator's scheduling settings.
type SyncConfig struct {
	FlushInterval   time.Duration `mapstructure:"flush_interval" validate:"required,min=1s"`
	BatchSize       int           `mapstructure:"batch_size" validate:"required,gt=0,lte=1000"`
	ConfirmationTTL time.Duration `mapstructure:"confirmation_ttl" validate:"required,min=1m"`
}

// RemoteConfig contains settings for the progress API client.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"required,min=1s"`
}

// StorageConfig selects and parameterizes the local persistence backend.
type StorageConfig struct {
	// Backend is one of memory, file, sqlite.
	Backend string `mapstructure:"backend" validate:"required,oneof=memory file sqlite"`
	// Path is the storage directory for the file backend or the database
	// file for the sqlite backend. Unused by the memory backend.
	Path string `mapstructure:"path" validate:"required_unless=Backend memory"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// AuthConfig carries static credentials for CLI embeddings. Host
// applications normally supply credentials through a callback instead.
type AuthConfig struct {
	Token  string `mapstructure:"token"`
	UserID string `mapstructure:"user_id"`
}
