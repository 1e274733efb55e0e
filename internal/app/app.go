package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"clinicapi/internal/audit"
	"clinicapi/internal/auth"
	"clinicapi/internal/config"
	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/infrastructure"
	"clinicapi/internal/license"
	customMiddleware "clinicapi/internal/middleware"
	"clinicapi/internal/services"
	"clinicapi/internal/storage"
	"clinicapi/internal/storage/mongo"
	handlers "clinicapi/internal/transport/http"
	"clinicapi/pkg/contracts/domain"
)

var (
	// Commit is set at link time
	Commit = ""
	// BuildTime is set at link time
	BuildTime = ""
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	Store         *storage.Store
	Tokens        *auth.TokenIssuer
	Licenses      *license.Store
	AuditQueue    *audit.Queue
	Health        *services.HealthService
	ErrorHandler  *apierrors.ErrorHandler

	gates     *customMiddleware.Gates
	adapter   *handlers.Adapter
	validator *customMiddleware.ValidationMiddleware
	listener  net.Listener
}

// Option customizes New
type Option func(*Application)

// WithStore uses store instead of opening the configured backend
func WithStore(store *storage.Store) Option {
	return func(a *Application) { a.Store = store }
}

// NewApplication loads the configuration and logger and wires the application
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(ctx, cfg, logger)
}

// New wires the application from cfg. Nothing is served until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Application, error) {
	logger.InfoContext(ctx, "Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("database", cfg.Database.Driver))

	a := &Application{Config: cfg, Logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTelProviders = otelProviders

	a.Metrics, err = infrastructure.CreateBusinessMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	if a.Store == nil {
		if a.Store, err = openStore(ctx, cfg.Database, logger); err != nil {
			return nil, err
		}
	}

	if err := a.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*storage.Store, error) {
	switch cfg.Driver {
	case "memory":
		logger.WarnContext(ctx, "Using in-memory store, data is lost on restart")
		return storage.NewMemoryStore(), nil
	case "mongo":
		store, err := mongo.Open(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// initializeServices builds the stores, gates and handler plumbing
func (a *Application) initializeServices() error {
	cfg := a.Config

	tokens, err := auth.NewTokenIssuer(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret,
		auth.WithTTL(cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL))
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	a.Tokens = tokens

	a.Licenses = license.NewStore(a.Store.Licenses, license.NewKeyFile(cfg.SecretsFilePath()), a.Logger,
		license.WithCacheTTL(cfg.License.CacheTTL),
		license.WithLoadTimeout(cfg.Database.Timeout),
		license.WithMetrics(a.Metrics))

	a.AuditQueue = audit.NewQueue(a.Store.Audit, audit.QueueConfig{
		Size:         cfg.Audit.QueueSize,
		Workers:      cfg.Audit.Workers,
		WriteTimeout: cfg.Audit.WriteTimeout,
	}, a.Logger, a.Metrics)

	a.ErrorHandler = apierrors.NewErrorHandler(a.Logger, cfg.Logging.Development)
	a.validator = customMiddleware.NewValidationMiddleware(a.Logger, a.ErrorHandler)
	a.gates = customMiddleware.NewGates(customMiddleware.GatesConfig{
		Tokens:       tokens,
		Users:        a.Store.Users,
		Licenses:     a.Licenses,
		ErrorHandler: a.ErrorHandler,
		Metrics:      a.Metrics,
		Logger:       a.Logger,
	})
	a.adapter = handlers.NewAdapter(audit.NewRecorder(a.AuditQueue, a.Logger), a.ErrorHandler, a.Logger)

	a.Health = services.NewHealthService(services.BuildInfo{
		Version:   config.AppVersion,
		Commit:    Commit,
		BuildTime: BuildTime,
	}, a.Store, a.Licenses, a.Logger)

	return nil
}

// routes collects every API endpoint
func (a *Application) routes() []handlers.Route {
	logger := a.Logger
	records := handlers.NewRecordsHandler(a.Store.Records, logger)

	var routes []handlers.Route
	routes = append(routes, handlers.NewHealthHandler(a.Health).Routes()...)
	routes = append(routes, handlers.NewAuthHandler(a.Store.Users, a.Tokens, a.validator, a.Metrics, logger).Routes()...)
	routes = append(routes, handlers.NewLicenseHandler(a.Licenses, a.validator, logger).Routes()...)
	routes = append(routes, handlers.NewDashboardHandler(a.Store.Records, handlers.ResourceBindings, logger).Routes()...)
	routes = append(routes, handlers.NewReportsHandler(a.Store.Audit, logger).Routes()...)
	routes = append(routes, handlers.NewSettingsHandler(a.Store.Settings, logger).Routes()...)
	routes = append(routes, handlers.RecordRoutes(records, handlers.ResourceBindings)...)
	return routes
}

// setupRouter configures the HTTP router.
// Order: RequestID → RealIP → OTel → Logger → Recoverer → SecurityHeaders → CORS → RateLimiter
func (a *Application) setupRouter() {
	cfg := a.Config
	r := chi.NewRouter()
	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.ErrorHandler))
	r.Use(customMiddleware.SecurityHeaders)

	if cfg.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins:   cfg.Security.AllowedOrigins,
			AllowCredentials: true,
			Logger:           a.Logger,
		}))
	}

	if cfg.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			cfg.Security.RateLimit.RPS,
			cfg.Security.RateLimit.Burst,
			a.ErrorHandler,
			a.Logger,
		).Handler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.Timeout(cfg.Server.RequestTimeout, a.Logger))
		r.Use(apierrors.NewErrorMiddleware(a.Logger).Handler)
		r.Use(customMiddleware.ContentTypeValidator(a.ErrorHandler, "application/json"))
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.NotFound(a.ErrorHandler.NotFound)
		r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

		handlers.Mount(r, a.gates, a.adapter, a.routes())
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle(cfg.Telemetry.MetricsPath, a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Address(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Bootstrap provisions the license and seeds the superadmin. It runs before
// the server accepts traffic. Its logs share one trace_id.
func (a *Application) Bootstrap(ctx context.Context) error {
	ctx = infrastructure.EnsureTraceID(ctx)
	if a.Config.License.ProvisionOnStartup {
		if _, err := a.Licenses.Provision(ctx); err != nil {
			// Gates provision lazily on first use
			a.Logger.WarnContext(ctx, "License provisioning at startup failed",
				slog.String("error", err.Error()))
		}
	}
	return a.seedSuperadmin(ctx)
}

func (a *Application) seedSuperadmin(ctx context.Context) error {
	seed := a.Config.Bootstrap
	if !seed.Enabled() {
		return nil
	}

	_, err := a.Store.Users.FindByEmail(ctx, seed.SuperadminEmail)
	if err == nil {
		a.Logger.DebugContext(ctx, "Superadmin already exists", slog.String("email", seed.SuperadminEmail))
		return nil
	}
	if !storage.IsNotFound(err) {
		return fmt.Errorf("look up superadmin: %w", err)
	}

	hash, err := auth.HashPassword(seed.SuperadminPassword, a.Config.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash superadmin password: %w", err)
	}
	user := &domain.User{
		Identity:     domain.Identity{Role: domain.RoleSuperadmin, IsActive: true},
		Name:         seed.SuperadminName,
		Email:        seed.SuperadminEmail,
		PasswordHash: hash,
	}
	if err := a.Store.Users.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("create superadmin: %w", err)
	}

	a.Logger.InfoContext(ctx, "Superadmin account created",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email))
	return nil
}

// Start bootstraps the application and serves HTTP in the background.
// cancel is called if the server fails after startup.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("address", a.Server.Addr),
		slog.String("level", a.Config.Logging.Level))

	if err := a.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	a.AuditQueue.Start()

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	a.listener = ln

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the address the server listens on, once started
func (a *Application) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop shuts down in dependency order: HTTP server, audit queue, store,
// telemetry. Every step runs even if an earlier one fails.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	if err := a.AuditQueue.Stop(a.Config.Audit.DrainTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "Audit queue did not drain", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.Store.Close(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error closing store", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// Run starts the application and blocks until an interrupt or a server failure
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	return a.Stop(context.Background())
}
