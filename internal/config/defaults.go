package config

import "github.com/cvfolio/cvfolio-portal/internal/common"

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "prod",
		Server: ServerConfig{
			Port: 4310,
			Host: "localhost",
		},
		Auth: AuthConfig{
			URL: "",
		},
		Store: StoreConfig{
			URL:            "",
			TimeoutSeconds: 10,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/cvfolio",
			},
		},
		Logging: common.LoggingConfig{
			Level: "info",
		},
	}
}
