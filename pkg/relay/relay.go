package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lei/simple-copy/internal/api"
	"github.com/lei/simple-copy/internal/config"
	"github.com/lei/simple-copy/internal/copystep"
	"github.com/lei/simple-copy/internal/events"
	"github.com/lei/simple-copy/internal/history"
	"github.com/lei/simple-copy/internal/history/gormstore"
	"github.com/lei/simple-copy/internal/history/memstore"
	"github.com/lei/simple-copy/internal/models"
	"github.com/lei/simple-copy/internal/security"
	"github.com/lei/simple-copy/internal/service"
	"github.com/lei/simple-copy/pkg/logger"
)

// Relay is an embeddable artifact-copy relay instance.
type Relay struct {
	config  *Config
	service *service.Service
	router  http.Handler
	server  *http.Server
	sink    events.Sink
	logger  *logger.Logger
}

// Config holds the configuration for the Relay.
type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	Storage StorageConfig
	Events  EventsConfig
	Logging LoggingConfig

	// Jobs to register at startup, with their configured copy steps
	// keyed by job name and the owning identity per job.
	Jobs   []*models.Job
	Steps  map[string][]copystep.StepDef
	Owners map[string]string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	APIKeys []APIKey
}

// APIKey represents an API key for authentication.
type APIKey struct {
	Name string
	Key  string
}

// StorageConfig selects the history store backend.
type StorageConfig struct {
	Kind string // "memory" (default) or "postgres"
	DSN  string
}

// EventsConfig configures copy-event publishing. Empty Brokers disables
// it.
type EventsConfig struct {
	Brokers []string
	Topic   string
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// New creates a new Relay instance with the provided configuration.
func New(cfg *Config) (*Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	var store history.Store
	switch cfg.Storage.Kind {
	case "", "memory":
		store = memstore.New()
	case "postgres":
		gs, err := gormstore.Open(cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres store: %w", err)
		}
		store = gs
		appLogger.Info("initialized postgres history store")
	default:
		return nil, fmt.Errorf("unsupported storage kind: %s", cfg.Storage.Kind)
	}

	var sink events.Sink = events.NopSink{}
	if len(cfg.Events.Brokers) > 0 {
		ks, err := events.NewKafkaSink(cfg.Events.Brokers, cfg.Events.Topic)
		if err != nil {
			return nil, fmt.Errorf("initialize kafka sink: %w", err)
		}
		sink = ks
		appLogger.Info("initialized kafka event sink",
			"brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}

	svc := service.NewService(store, sink, appLogger)
	for _, job := range cfg.Jobs {
		owner := security.Anonymous
		if name := cfg.Owners[job.Name]; name != "" {
			owner = security.Authenticated(name)
		}
		if err := svc.InstallJob(job, cfg.Steps[job.Name], owner); err != nil {
			return nil, fmt.Errorf("install job %q: %w", job.Name, err)
		}
	}

	handlers := api.NewHandlers(svc)
	configAPIKeys := make([]config.APIKey, len(cfg.Auth.APIKeys))
	for i, key := range cfg.Auth.APIKeys {
		configAPIKeys[i] = config.APIKey{Name: key.Name, Key: key.Key}
	}
	authMiddleware := api.NewAuthMiddleware(configAPIKeys)
	loggingMiddleware := api.NewLoggingMiddleware(appLogger)
	router := api.NewRouter(handlers, authMiddleware, loggingMiddleware)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Relay{
		config:  cfg,
		service: svc,
		router:  router,
		server:  srv,
		sink:    sink,
		logger:  appLogger,
	}, nil
}

// Start starts the HTTP server. Blocks until the context is canceled or
// a server error occurs.
func (r *Relay) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		r.logger.Info("starting http server", "port", r.config.Server.Port)
		serverErrors <- r.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		r.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := r.server.Shutdown(shutdownCtx); err != nil {
			r.server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		if err := r.sink.Close(); err != nil {
			r.logger.Warn("event sink close failed", "error", err)
		}

		r.logger.Info("server stopped gracefully")
		return nil
	}
}

// Handler returns the http.Handler for the relay, for embedding into an
// existing HTTP server.
func (r *Relay) Handler() http.Handler {
	return r.router
}

// Service returns the underlying service layer for direct programmatic
// access.
func (r *Relay) Service() *service.Service {
	return r.service
}

// NewFromFiles creates a Relay from the YAML service config and job
// definitions files used by the standalone daemon.
func NewFromFiles(configPath, jobsPath string) (*Relay, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	defs, err := config.LoadJobs(jobsPath)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	apiKeys := make([]APIKey, len(cfg.Auth.APIKeys))
	for i, key := range cfg.Auth.APIKeys {
		apiKeys[i] = APIKey{Name: key.Name, Key: key.Key}
	}

	return New(&Config{
		Server: ServerConfig{
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		Auth:    AuthConfig{APIKeys: apiKeys},
		Storage: StorageConfig{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN},
		Events:  EventsConfig{Brokers: cfg.Events.Brokers, Topic: cfg.Events.Topic},
		Logging: LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format},
		Jobs:    defs.Jobs,
		Steps:   defs.Steps,
		Owners:  defs.Owner,
	})
}
