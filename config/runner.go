package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRunnerConcurrency = 4
	maxRunnerConcurrency     = 256
)

// RunnerConfig controls the background job runner.
type RunnerConfig struct {
	// Concurrency caps how many crew tasks execute at once.
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`
	// JobTimeout bounds a single task. Zero disables the limit.
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"0s"`
	// ShutdownTimeout bounds how long shutdown waits for in-flight jobs to be finalized.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to runner configuration values.
func (c *RunnerConfig) Sanitize() {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultRunnerConcurrency
	}
	if c.Concurrency > maxRunnerConcurrency {
		c.Concurrency = maxRunnerConcurrency
	}
	c.JobTimeout = max(c.JobTimeout, 0)
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// AnalysisConfig selects the task executed for every crew job.
type AnalysisConfig struct {
	// Endpoint of the external analysis pipeline. Empty uses the simulated task.
	Endpoint string `env:"ENDPOINT"`
	// ResultExpr is an optional JMESPath expression applied to the pipeline response.
	ResultExpr string `env:"RESULT_EXPR"`
	// Timeout bounds one call to the pipeline.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10m"`
	// SimulatedStep is the delay per company/position pair of the simulated task.
	SimulatedStep time.Duration `env:"SIMULATED_STEP" envDefault:"500ms"`
}

// Sanitize normalises analysis configuration values.
func (c *AnalysisConfig) Sanitize() {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.ResultExpr = strings.TrimSpace(c.ResultExpr)
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	c.SimulatedStep = max(c.SimulatedStep, 0)
}

// Validate checks that the endpoint, when set, is an absolute http(s) URL.
func (c *AnalysisConfig) Validate() error {
	if c.Endpoint == "" {
		return nil
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid ANALYSIS_ENDPOINT: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("ANALYSIS_ENDPOINT must be an absolute http(s) URL")
	}
	return nil
}

// Simulated reports whether the simulated task should be used.
func (c *AnalysisConfig) Simulated() bool {
	return c.Endpoint == ""
}
