package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T) AppConfig {
	t.Helper()
	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()
	return cfg
}

func TestAppConfig_Defaults(t *testing.T) {
	cfg := parse(t)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, 3001, cfg.HTTP.Port)
	assert.Equal(t, ":3001", cfg.HTTP.Addr)
	assert.Empty(t, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.HTTP.StreamPollInterval)
	assert.Equal(t, 4, cfg.Runner.Concurrency)
	assert.Zero(t, cfg.Runner.JobTimeout)
	assert.Equal(t, 30*time.Second, cfg.Runner.ShutdownTimeout)
	assert.True(t, cfg.Analysis.Simulated())
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.False(t, cfg.Observability.Metrics.IsEnabled())
	assert.Equal(t, "crew-api", cfg.Observability.Notifications.Slack.Username)
	assert.NoError(t, cfg.Validate())
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example/, https://b.example")
	t.Setenv("RUNNER_CONCURRENCY", "8")
	t.Setenv("RUNNER_JOB_TIMEOUT", "2m")
	t.Setenv("ANALYSIS_ENDPOINT", "https://pipeline.internal/run")
	t.Setenv("ANALYSIS_RESULT_EXPR", "report")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_URI", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("IDEMPOTENCY_TTL", "1h")

	cfg := parse(t)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 8, cfg.Runner.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Runner.JobTimeout)
	assert.False(t, cfg.Analysis.Simulated())
	assert.Equal(t, "report", cfg.Analysis.ResultExpr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.URI)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, time.Hour, cfg.Redis.IdempotencyTTL)
	assert.NoError(t, cfg.Validate())
}

func TestAppConfig_HTTPAddrOverridesPort(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("HTTP_ADDR", "127.0.0.1:7000")

	cfg := parse(t)
	assert.Equal(t, "127.0.0.1:7000", cfg.HTTP.Addr)
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{
			name:    "unknown environment",
			mutate:  func(c *AppConfig) { c.Environment = "staging" },
			wantErr: "invalid ENVIRONMENT",
		},
		{
			name:    "relative analysis endpoint",
			mutate:  func(c *AppConfig) { c.Analysis.Endpoint = "/run" },
			wantErr: "ANALYSIS_ENDPOINT",
		},
		{
			name:    "non-http analysis endpoint",
			mutate:  func(c *AppConfig) { c.Analysis.Endpoint = "ftp://pipeline/run" },
			wantErr: "ANALYSIS_ENDPOINT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parse(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunnerConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name string
		in   RunnerConfig
		want RunnerConfig
	}{
		{
			name: "zero values get defaults",
			in:   RunnerConfig{},
			want: RunnerConfig{Concurrency: 4, ShutdownTimeout: 30 * time.Second},
		},
		{
			name: "negative timeout clamps to zero",
			in:   RunnerConfig{Concurrency: 2, JobTimeout: -time.Second, ShutdownTimeout: time.Second},
			want: RunnerConfig{Concurrency: 2, ShutdownTimeout: time.Second},
		},
		{
			name: "concurrency capped",
			in:   RunnerConfig{Concurrency: 10_000, ShutdownTimeout: time.Second},
			want: RunnerConfig{Concurrency: maxRunnerConcurrency, ShutdownTimeout: time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			cfg.Sanitize()
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	cfg := HTTPConfig{Port: 70000, StreamPollInterval: time.Millisecond, CORSOrigins: []string{" ", "*"}}
	cfg.Sanitize()

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, ":3001", cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.ReadHeaderTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.StreamPollInterval)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestRedisConfig_Sanitize(t *testing.T) {
	cfg := RedisConfig{Enabled: true, URI: "  ", DB: -1}
	cfg.Sanitize()

	assert.False(t, cfg.Enabled, "redis without an address must be disabled")
	assert.Zero(t, cfg.DB)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
	cfg.Sanitize()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.IsEnabled())

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " 127.0.0.1:8125 "}
	cfg.Sanitize()
	assert.Equal(t, "127.0.0.1:8125", cfg.StatsdAddress)
	assert.True(t, cfg.IsEnabled())
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	t.Run("disabled overall turns off slack", func(t *testing.T) {
		cfg := ObservabilityNotificationsConfig{
			Slack: SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.example"},
		}
		cfg.Sanitize()
		assert.False(t, cfg.Slack.Enabled)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
	})

	t.Run("slack without webhook is disabled", func(t *testing.T) {
		cfg := ObservabilityNotificationsConfig{Enabled: true, Slack: SlackNotificationConfig{Enabled: true}}
		cfg.Sanitize()
		assert.False(t, cfg.Slack.Enabled)
	})

	t.Run("trims fields", func(t *testing.T) {
		cfg := ObservabilityNotificationsConfig{
			Enabled:          true,
			RetryLimit:       -1,
			SkipErrorClasses: []string{" canceled ", ""},
			Slack: SlackNotificationConfig{
				Enabled:      true,
				WebhookURL:   " https://hooks.example ",
				JobURLPrefix: "https://crew.example/api/crew/",
			},
		}
		cfg.Sanitize()
		assert.True(t, cfg.Slack.Enabled)
		assert.Zero(t, cfg.RetryLimit)
		assert.Equal(t, []string{"canceled"}, cfg.SkipErrorClasses)
		assert.Equal(t, "https://hooks.example", cfg.Slack.WebhookURL)
		assert.Equal(t, "https://crew.example/api/crew", cfg.Slack.JobURLPrefix)
		assert.Equal(t, defaultObservabilityName, cfg.Slack.Username)
	})
}
