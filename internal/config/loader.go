package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadClient loads the desktop command configuration.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := load(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadIngest loads the ingest server configuration.
func LoadIngest() (*IngestConfig, error) {
	var cfg IngestConfig
	if err := load(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(cfg any) error {
	// A missing .env file is fine; existing variables are never overridden.
	_ = godotenv.Load()

	if err := envconfig.Process("", cfg); err != nil {
		return &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	return nil
}
