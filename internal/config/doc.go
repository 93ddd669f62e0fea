// Package config defines the engine's configuration structure and loads it
// from environment variables and an optional YAML file, with environment
// variables taking precedence. Loaded configuration is validated before
// use; the engine never starts with out-of-range settings.
package config
