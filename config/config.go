package config

import (
	"fmt"
	"strings"
)

// Environment names recognised by ENVIRONMENT.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Redis (idempotency keys)
//   - http.go: HTTP server configuration
//   - runner.go: job runner and analysis task configuration
//   - observability.go: metrics and failure notifications
type AppConfig struct {
	// Environment selects development or production behaviour (log format, level).
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Job runner configuration
	Runner RunnerConfig `envPrefix:"RUNNER_"`

	// Analysis task configuration
	Analysis AnalysisConfig `envPrefix:"ANALYSIS_"`

	// Redis-backed idempotency configuration
	Redis RedisConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	switch c.Environment {
	case "dev", "":
		c.Environment = EnvDevelopment
	case "prod":
		c.Environment = EnvProduction
	}

	c.HTTP.Sanitize()
	c.Runner.Sanitize()
	c.Analysis.Sanitize()
	c.Redis.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration that cannot be repaired by Sanitize.
func (c *AppConfig) Validate() error {
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("invalid ENVIRONMENT %q (valid options: development, production)", c.Environment)
	}
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	return nil
}

// IsDev reports whether the service runs in development mode.
func (c *AppConfig) IsDev() bool {
	return c.Environment == EnvDevelopment
}
