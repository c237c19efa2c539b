package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"

	"nodelock/internal/config"
	"nodelock/internal/errors"
	"nodelock/internal/infrastructure"
	"nodelock/internal/license"
	customMiddleware "nodelock/internal/middleware"
	"nodelock/internal/security"
	handlers "nodelock/internal/transport/http"
	ws "nodelock/internal/websocket"
	"nodelock/pkg/contracts"
	"nodelock/pkg/contracts/events"
)

// Application wires the license engine to the loopback bridge
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Resolver      *security.Resolver
	Engine        *license.Engine
	WebSocketHub  *ws.Hub
	Router        *chi.Mux
	Server        *http.Server

	resolverOpts []security.ResolverOption
	cipher       *security.CipherConfig
	unsubscribe  func()

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// Option customizes an Application
type Option func(*Application)

// WithResolverOptions passes options to the fingerprint resolver, e.g. to
// replace the hardware probes
func WithResolverOptions(opts ...security.ResolverOption) Option {
	return func(a *Application) {
		a.resolverOpts = append(a.resolverOpts, opts...)
	}
}

// WithCipher replaces the store cipher parameters derived from the
// configuration. The cost floor is not applied; tests use it for cheap
// key derivation.
func WithCipher(cfg security.CipherConfig) Option {
	return func(a *Application) {
		a.cipher = &cfg
	}
}

// NewApplication loads configuration from the environment and builds the
// bridge application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.GetVersionString()),
		slog.String("store_file", paths.StoreFile),
		slog.String("logs_dir", paths.LogsDir))

	return New(cfg, logger)
}

// New builds the application from an already loaded configuration
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()

	return a, nil
}

// initializeServices builds the engine and the event hub
func (a *Application) initializeServices() error {
	paths, err := a.Config.ResolvePaths()
	if err != nil {
		return fmt.Errorf("failed to get paths: %w", err)
	}

	secret, err := a.Config.License.SecretBytes()
	if err != nil {
		return err
	}

	licenseMetrics, err := license.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}

	resolverOpts := append([]security.ResolverOption{
		security.WithDegradedHook(licenseMetrics.RecordDegraded),
	}, a.resolverOpts...)
	a.Resolver = security.NewResolver(security.ResolverConfig{
		QueryTimeout: a.Config.Fingerprint.QueryTimeout,
		UseMachineID: a.Config.Fingerprint.UseMachineID,
		AppID:        config.AppName,
	}, a.Logger, resolverOpts...)

	cipher := security.DefaultCipherConfig()
	if a.Config.License.ScryptN > 0 {
		cipher.SCryptN = a.Config.License.ScryptN
	}
	if a.cipher != nil {
		cipher = *a.cipher
	} else if err := cipher.Validate(); err != nil {
		return errors.NewConfigError("invalid license store cipher", err)
	}
	store := license.NewStore(license.NewFileBlob(paths.StoreFile), license.StoreOptions{
		KeyMaterial: []byte(a.Config.License.StoreKey),
		Cipher:      cipher,
		Logger:      a.Logger,
	})

	engine, err := license.NewEngine(license.Options{
		Resolver: a.Resolver,
		Store:    store,
		Secret:   secret,
		Logger:   a.Logger,
		Metrics:  licenseMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize license engine: %w", err)
	}
	a.Engine = engine

	hubMetrics, err := ws.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	a.WebSocketHub = ws.NewHub(a.Logger, hubMetrics)

	a.unsubscribe = engine.Subscribe(func(v license.Verdict) {
		err := a.WebSocketHub.Broadcast(events.MessageTypeVerdict, handlers.StatusFromVerdict(v))
		if err != nil && !stderrors.Is(err, ws.ErrHubStopped) {
			a.Logger.Error("Failed to broadcast verdict", slog.String("error", err.Error()))
		}
	})

	a.Logger.Info("License engine ready",
		slog.String("capability", string(engine.Capability())),
		slog.String("store_location", engine.StoreLocation()))
	return nil
}

// setupRouter configures the HTTP router. Order matters: LoopbackOnly has to
// see the socket peer before RealIP rewrites it.
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := errors.NewErrorHandler(a.Logger, false)

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.LoopbackOnly(a.Logger))
	r.Use(customMiddleware.RealIP)

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
	} else {
		r.Use(otelMiddleware.Handler)
	}

	r.Use(errors.NewErrorMiddleware(errorHandler, a.Logger).Handler)
	r.Use(customMiddleware.SecurityHeaders)

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	health := handlers.NewHealthHandler(a.WebSocketHub, a.Logger)
	r.Get("/healthz", health.HealthCheck)
	r.Get("/api/version", health.Version)

	licenseHandler := handlers.NewLicenseHandler(handlers.LicenseHandlerConfig{
		Engine:    a.Engine,
		Inspector: a.Resolver,
		Hub:       a.WebSocketHub,
		Errors:    errorHandler,
		Validator: customMiddleware.NewValidator(),
		CommitLimiter: customMiddleware.NewRateLimiter(
			a.Config.Server.CommitRatePerMin,
			a.Config.Server.CommitBurst,
			errorHandler,
		),
		Timeout: a.Config.Server.WriteTimeout,
		Version: contracts.GetVersionString(),
		Logger:  a.Logger,
	})
	r.Mount("/api/license", licenseHandler.Routes())

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         a.Config.Server.Address(),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start binds the listener and serves in the background
func (a *Application) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}

	a.mu.Lock()
	a.listener = ln
	a.serveErr = make(chan error, 1)
	a.mu.Unlock()

	a.WebSocketHub.Start()

	go func() {
		if err := a.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			a.serveErr <- err
		}
		close(a.serveErr)
	}()

	a.logInitialVerdict(ctx)

	a.Logger.InfoContext(ctx, "License bridge listening",
		slog.String("address", "http://"+ln.Addr().String()),
		slog.String("version", contracts.Version))
	return nil
}

func (a *Application) logInitialVerdict(ctx context.Context) {
	v, err := a.Engine.Check(ctx)
	if err != nil {
		a.Logger.WarnContext(ctx, "Initial authorization check failed", slog.String("error", err.Error()))
		return
	}
	a.Logger.InfoContext(ctx, "Initial authorization state",
		slog.Bool("authorized", v.Authorized),
		slog.String("reason", string(v.Reason)),
		slog.String("machine_code", string(v.CurrentMachineCode)),
		slog.Bool("record_corrupted", v.RecordCorrupted))
}

// Addr returns the bound address, or "" before Start
func (a *Application) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop shuts the server down and disconnects event clients
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked event streams are not tracked by Shutdown
	a.WebSocketHub.Stop()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.unsubscribe != nil {
		a.unsubscribe()
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	if err := infrastructure.CloseLogFile(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// Run runs the application until interrupted or the server fails
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("Received interrupt signal")
	case serveErr = <-a.serveErr:
	}

	if err := a.Stop(context.Background()); err != nil {
		return err
	}
	return serveErr
}
