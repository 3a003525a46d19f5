package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/crew-api/config"
	"github.com/target/crew-api/internal/adapters/analysis"
	"github.com/target/crew-api/internal/adapters/jobrunner"
	"github.com/target/crew-api/internal/core"
	"github.com/target/crew-api/internal/data"
	httpx "github.com/target/crew-api/internal/http"
	"github.com/target/crew-api/internal/observability/notify/slack"
	"github.com/target/crew-api/internal/observability/statsd"
	"github.com/target/crew-api/internal/service"
	"github.com/target/crew-api/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Store         *data.JobStore
	Runner        *jobrunner.Runner
	ReadyChecks   []httpx.ReadyCheck
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	// RedisClient backs idempotency keys when set; otherwise they live in process memory.
	RedisClient redis.UniversalClient
	// Task overrides the task chosen from the analysis config (tests).
	Task   core.Task
	Logger *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, environment string) ObservabilityContainer {
	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			Logger:     logger,
			GlobalTags: map[string]string{"env": environment},
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(logger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	opts := failurenotifier.Options{
		Logger:           logger.With("component", "failure_notifier"),
		SkipErrorClasses: cfg.SkipErrorClasses,
		DeliveryTimeout:  cfg.Timeout * time.Duration(cfg.RetryLimit+1),
	}
	if !cfg.Enabled {
		return failurenotifier.NewService(opts)
	}

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	return failurenotifier.NewService(opts)
}

//nolint:ireturn // the task implementation is selected from configuration.
func buildTask(cfg config.AnalysisConfig, logger *slog.Logger) (core.Task, error) {
	if cfg.Simulated() {
		logger.Info("no analysis endpoint configured, using simulated task", "step", cfg.SimulatedStep)
		return &analysis.SimulatedTask{
			Step:   cfg.SimulatedStep,
			Logger: logger.With("component", "analysis_simulated"),
		}, nil
	}
	task, err := analysis.NewHTTPTask(analysis.HTTPTaskOptions{
		Endpoint:   cfg.Endpoint,
		ResultExpr: cfg.ResultExpr,
		Timeout:    cfg.Timeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create analysis task: %w", err)
	}
	return task, nil
}

//nolint:ireturn // memory or redis store depending on configuration.
func buildIdempotencyStore(client redis.UniversalClient, cfg config.RedisConfig) (core.IdempotencyStore, []httpx.ReadyCheck) {
	if client == nil {
		return data.NewMemoryIdempotencyStore(nil), nil
	}
	store := data.NewRedisIdempotencyStore(client, cfg.KeyPrefix)
	return store, []httpx.ReadyCheck{{Name: "redis", Check: store.Health}}
}

// NewServices builds the job store, runner and job service.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, cfg.Observability, cfg.Environment)
	var metrics statsd.Sink
	if obs.MetricsSink != nil {
		metrics = obs.MetricsSink
	}

	task := deps.Task
	if task == nil {
		var err error
		if task, err = buildTask(cfg.Analysis, logger); err != nil {
			return ServiceContainer{}, err
		}
	}

	store := data.NewJobStore(data.JobStoreOptions{})
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Store:           store,
		Task:            task,
		Logger:          logger,
		Concurrency:     cfg.Runner.Concurrency,
		JobTimeout:      cfg.Runner.JobTimeout,
		Metrics:         metrics,
		FailureNotifier: obs.FailureNotifier,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job runner: %w", err)
	}

	idempotency, checks := buildIdempotencyStore(deps.RedisClient, cfg.Redis)
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Store:          store,
		Dispatcher:     runner,
		Idempotency:    idempotency,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
		Metrics:        metrics,
		Logger:         logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Store:         store,
		Runner:        runner,
		ReadyChecks:   checks,
		Observability: obs,
	}, nil
}

// ServiceOrchestrationConfig contains everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown serves HTTP until SIGINT/SIGTERM or ctx cancellation,
// then stops the server and finalizes in-flight jobs.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down services...")
		return gracefulStop(shutdownConfig{
			server:  server,
			runner:  cfg.Services.Runner,
			metrics: cfg.Services.Observability.MetricsSink,
			timeout: cfg.Config.Runner.ShutdownTimeout,
			logger:  logger,
		})
	})

	return g.Wait()
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	server  *http.Server
	runner  *jobrunner.Runner
	metrics *statsd.Client
	timeout time.Duration
	logger  *slog.Logger
}

// gracefulStop stops accepting requests first so no job is submitted to a
// runner that is already shutting down, then finalizes the runner's jobs.
func gracefulStop(cfg shutdownConfig) error {
	var errs []error
	if err := ShutdownHTTPServer(ShutdownConfig{Server: cfg.server, Logger: cfg.logger}); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}

	if cfg.runner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
		defer cancel()
		if err := cfg.runner.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown job runner: %w", err))
		} else {
			cfg.logger.Info("job runner stopped")
		}
	}

	if err := cfg.metrics.Close(); err != nil {
		cfg.logger.Warn("close statsd client", "error", err)
	}
	return errors.Join(errs...)
}
