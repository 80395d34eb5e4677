package app

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jackc/pgx/v5/pgxpool"

	"petakeu/internal/cache"
	"petakeu/internal/config"
	apierrors "petakeu/internal/errors"
	"petakeu/internal/exporter"
	"petakeu/internal/geo"
	"petakeu/internal/infrastructure"
	customMiddleware "petakeu/internal/middleware"
	"petakeu/internal/operations"
	"petakeu/internal/regions"
	"petakeu/internal/reports"
	"petakeu/internal/services"
	"petakeu/internal/storage/postgres"
	httpTransport "petakeu/internal/transport/http"
	"petakeu/internal/uploads"
	ws "petakeu/internal/websocket"
	"petakeu/pkg/contracts"
	"petakeu/pkg/contracts/domain"
)

// APIPrefix is the base path of every JSON endpoint
const APIPrefix = "/api/v1"

// jobQueueStopTimeout bounds how long running tasks may finish on shutdown
const jobQueueStopTimeout = 30 * time.Second

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	WebSocketHub  *ws.Hub
	JobQueue      *operations.JobQueue
	Pool          *pgxpool.Pool
	Services      *ServiceContainer
	ErrorHandler  *apierrors.ErrorHandler
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Catalog    *regions.Catalog
	Aggregator *regions.Aggregator
	Choropleth *geo.Builder
	Uploads    *uploads.Service
	Reports    *reports.Service
	Health     *services.HealthService
}

// New wires every component from cfg. It starts the websocket hub and the
// job queue but not the HTTP server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.InfoContext(ctx, "application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version))

	paths, err := config.ResolvePaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		ErrorHandler:  apierrors.NewErrorHandler(logger, false).WithClassifier(httpTransport.ClassifyError),
	}

	if err := a.initializeServices(ctx); err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

// initializeServices builds storage, background workers and domain services
func (a *Application) initializeServices(ctx context.Context) error {
	cfg := a.Config
	catalog := regions.DefaultCatalog()

	var (
		source      regions.PaymentSource
		sink        regions.PaymentSink
		uploadStore uploads.Store
		checkers    []services.ReadinessChecker
	)
	if cfg.Database.Enabled() {
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(cfg.Database.DSN, a.Logger); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		pool, err := postgres.Connect(ctx, cfg.Database.DSN, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.Pool = pool

		payments := postgres.NewPaymentRepository(pool)
		source, sink = payments, payments
		uploadStore = postgres.NewUploadRepository(pool, postgres.NewTxRunner(pool))
		checkers = append(checkers, postgres.NewReadinessChecker(pool))
	} else {
		a.Logger.InfoContext(ctx, "no database configured, keeping payments and uploads in memory")
		memory := regions.NewMemorySource()
		source, sink = memory, memory
		uploadStore = uploads.NewMemoryStore()
	}

	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	a.JobQueue = operations.NewJobQueue(operations.QueueConfig{
		Workers:     cfg.Uploads.Workers,
		BufferSize:  cfg.Uploads.QueueSize,
		TaskTimeout: cfg.Uploads.ValidationTimeout,
	}, operations.NewMemoryJobStore(), a.Logger)
	a.JobQueue.Start(context.WithoutCancel(ctx))

	aggregator := regions.NewAggregator(catalog, source, a.Logger).
		WithCache(cache.New[domain.RegionSummary]("region_summary", cfg.Cache.Size, cfg.Cache.TTL)).
		WithReportBaseURL(cfg.Reports.DownloadBaseURL)
	choropleth := geo.NewBuilder(catalog, source, a.Logger).
		WithCache(cache.New[domain.Choropleth]("choropleth", cfg.Cache.Size, cfg.Cache.TTL))

	uploadService := uploads.NewService(uploads.Config{
		MaxSize:          cfg.Uploads.MaxSize,
		ValidatorWorkers: cfg.Uploads.ValidatorWorkers,
		FileBaseURL:      cfg.Uploads.FileBaseURL,
	}, uploads.Dependencies{
		Store:     uploadStore,
		Blobs:     uploads.NewDiskBlobStore(a.Paths.UploadsDir),
		Queue:     a.JobQueue,
		Reports:   exporter.NewCSVWriter(a.Paths.ErrorReportsDir).WithLogger(a.Logger),
		Ingestor:  regions.NewIngestor(catalog, sink, a.Logger, aggregator.Invalidate, choropleth.Invalidate),
		Publisher: hub,
		Logger:    a.Logger,
	})
	if _, err := uploadService.Recover(ctx); err != nil {
		a.Logger.WarnContext(ctx, "failed to recover unfinished uploads", slog.String("error", err.Error()))
	}

	reportService := reports.NewService(reports.Config{
		Async:           cfg.Reports.Async,
		Expiry:          cfg.Reports.Expiry,
		DownloadBaseURL: cfg.Reports.DownloadBaseURL,
	}, reports.Dependencies{
		Store:     reports.NewMemoryStore(),
		Catalog:   catalog,
		Queue:     a.JobQueue,
		Publisher: hub,
		Logger:    a.Logger,
	})

	a.Services = &ServiceContainer{
		Catalog:    catalog,
		Aggregator: aggregator,
		Choropleth: choropleth,
		Uploads:    uploadService,
		Reports:    reportService,
		Health:     services.NewHealthService(a.Paths.DataDir, a.JobQueue, hub, a.Logger, checkers...),
	}
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// RequestID and RealIP do not wrap the ResponseWriter, so they are safe
	// in front of the websocket upgrade
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	wsHandler := httpTransport.NewWebSocketHandler(a.WebSocketHub,
		a.Config.Security.AllowedOrigins,
		a.Config.WebSocket.ReadBufferSize,
		a.Config.WebSocket.WriteBufferSize,
		a.Logger)
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).Handle("/ws", wsHandler)

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(apierrors.NewErrorMiddleware(a.ErrorHandler, a.Logger, APIPrefix+"/health", APIPrefix+"/health/live").Handler)
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.Compress(5))
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))

		a.setupAPIRoutes(r)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	a.Router = r
}

// setupAPIRoutes mounts the JSON API under APIPrefix
func (a *Application) setupAPIRoutes(r chi.Router) {
	validation := customMiddleware.NewValidationMiddleware(a.Logger, a.ErrorHandler, customMiddleware.DefaultMaxJSONBody)
	jsonOnly := customMiddleware.ContentTypeValidator(a.ErrorHandler, "application/json")

	healthHandler := httpTransport.NewHealthHandler(a.Services.Health, a.Logger)
	regionHandler := httpTransport.NewRegionHandler(a.Services.Aggregator, a.Logger, a.ErrorHandler)
	geoHandler := httpTransport.NewGeoHandler(a.Services.Choropleth, a.Logger, a.ErrorHandler)
	uploadHandler := httpTransport.NewUploadHandler(a.Services.Uploads, a.Logger, a.ErrorHandler)
	reportHandler := httpTransport.NewReportHandler(a.Services.Reports, a.Logger, a.ErrorHandler)
	jobsHandler := httpTransport.NewJobsHandler(a.JobQueue, a.Logger, a.ErrorHandler)
	clientLogHandler := httpTransport.NewClientLogHandler(a.Logger, a.ErrorHandler)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)
		r.Get("/stats", healthHandler.Stats)
		r.Mount("/regions", regionHandler.Routes())
		r.Mount("/geo", geoHandler.Routes())
		r.Mount("/uploads", uploadHandler.Routes())
		r.Mount("/jobs", jobsHandler.Routes())

		r.Route("/reports", func(r chi.Router) {
			r.With(jsonOnly, validation.ValidateJSON).Post("/export", reportHandler.Export)
			r.Get("/", reportHandler.ListJobs)
			r.Get("/{id}", reportHandler.GetJob)
		})

		r.With(validation.ValidateJSON).Post("/logs", clientLogHandler.Handle)
	})
}

// getCORSConfig returns CORS settings for the dashboard origins
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		ExposedHeaders: []string{customMiddleware.RequestIDHeader, "Content-Disposition"},
		MaxAge:         300,
		Logger:         a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start begins serving HTTP. A listener failure cancels the run context.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting HTTP server",
		slog.String("address", a.Server.Addr),
		slog.Bool("database", a.Pool != nil),
		slog.Bool("async_reports", a.Config.Reports.Async),
		slog.String("level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if status := a.Services.Health.ReadinessCheck(ctx); !status.Ready() {
		for name, svc := range status.Services {
			if svc.Status != services.StatusReady {
				a.Logger.WarnContext(ctx, "startup readiness warning",
					slog.String("service", name),
					slog.String("message", svc.Message))
			}
		}
	}
	return nil
}

// Stop shuts the server down, then lets running tasks finish and abandons
// queued ones
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}
	a.release(shutdownCtx)

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return errors.Join(errs...)
}

// release stops background workers and closes external resources
func (a *Application) release(ctx context.Context) {
	if a.JobQueue != nil {
		if err := a.JobQueue.Stop(jobQueueStopTimeout); err != nil {
			a.Logger.ErrorContext(ctx, "failed to stop job queue gracefully", slog.String("error", err.Error()))
		}
	}
	if a.WebSocketHub != nil {
		a.WebSocketHub.Stop()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}
}

// Run serves until SIGINT, SIGTERM or a listener failure
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
		a.Logger.InfoContext(ctx, "received signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "server stopped unexpectedly")
	}

	return a.Stop(ctx)
}
