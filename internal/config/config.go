// Package config loads process configuration from the environment.
//
// Values are resolved in this order, highest first:
//
//	OS environment -> .env file -> struct defaults
//
// The desktop commands overlay ClientConfig on top of the user's settings
// file; the ingest server runs entirely from IngestConfig.
package config

import (
	"fmt"
	"time"
)

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrParsing indicates an environment value could not be converted to its field type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is returned by the loaders to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

const redactedPlaceholder = "***REDACTED***"

// SecretString keeps tokens and connection strings out of logs. String and
// MarshalJSON return a placeholder; Unmask returns the raw value.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	if s == "" {
		return ""
	}
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// ClientConfig overrides the connection fields of the settings file for the
// desktop commands. Empty values leave the settings file untouched.
type ClientConfig struct {
	Log LogConfig

	NightscoutURL       string        `envconfig:"NIGHTSCOUT_URL" validate:"omitempty,url"`
	NightscoutToken     SecretString  `envconfig:"NIGHTSCOUT_TOKEN"`
	NightscoutAPISecret SecretString  `envconfig:"NIGHTSCOUT_API_SECRET"`
	IntegrationsURL     string        `envconfig:"INTEGRATIONS_URL" validate:"omitempty,url"`
	IntegrationsToken   SecretString  `envconfig:"INTEGRATIONS_TOKEN"`
	HTTPTimeout         time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s" validate:"gt=0"`
}

// IngestConfig drives the integrations ingest server.
type IngestConfig struct {
	Log LogConfig

	Port        string       `envconfig:"PORT" default:"8081" validate:"required,numeric"`
	IngestToken SecretString `envconfig:"INGEST_TOKEN" validate:"required"`
	ReadToken   SecretString `envconfig:"READ_TOKEN" validate:"required"`
	CORSOrigin  string       `envconfig:"CORS_ORIGIN" default:"*"`

	Database DatabaseConfig
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"gt=0"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"gte=0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}
