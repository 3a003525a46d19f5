package config

import (
	"strings"
	"time"
)

// RedisConfig contains Redis configuration for idempotency keys.
type RedisConfig struct {
	// Enabled switches idempotency keys from process memory to Redis.
	Enabled  bool   `env:"REDIS_ENABLED"  envDefault:"false"`
	URI      string `env:"REDIS_URI"      envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
	// KeyPrefix namespaces idempotency keys.
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"crew:idempotency:"`

	// IdempotencyTTL is how long an Idempotency-Key stays bound to its job.
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// Sanitize normalises Redis configuration values.
func (c *RedisConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	if c.URI == "" {
		c.Enabled = false
	}
	c.DB = max(c.DB, 0)
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = 24 * time.Hour
	}
}
