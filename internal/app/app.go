// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/config"
	"github.com/bissquit/fieldservice-sla/internal/faults"
	faultspostgres "github.com/bissquit/fieldservice-sla/internal/faults/postgres"
	"github.com/bissquit/fieldservice-sla/internal/notifications"
	"github.com/bissquit/fieldservice-sla/internal/notifications/email"
	"github.com/bissquit/fieldservice-sla/internal/notifications/webhook"
	"github.com/bissquit/fieldservice-sla/internal/pkg/ctxlog"
	"github.com/bissquit/fieldservice-sla/internal/pkg/httputil"
	"github.com/bissquit/fieldservice-sla/internal/pkg/metrics"
	"github.com/bissquit/fieldservice-sla/internal/pkg/postgres"
	"github.com/bissquit/fieldservice-sla/internal/sla"
	"github.com/bissquit/fieldservice-sla/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// dbMetricsInterval is how often pool gauges are refreshed.
const dbMetricsInterval = 15 * time.Second

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scanWorker    *notifications.Worker
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	engineConfig, err := cfg.SLA.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("sla config: %w", err)
	}
	engine, err := sla.New(engineConfig, sla.WithClock(time.Now))
	if err != nil {
		return nil, fmt.Errorf("create sla engine: %w", err)
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go metrics.CollectDBPoolMetrics(metricsCtx, db, dbMetricsInterval)

	router, scanWorker, err := app.setupRouter(metricsCtx, engine)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.scanWorker = scanWorker

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers and blocks until the main server stops.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	// The scan worker goes first so it does not query a closing pool.
	if a.scanWorker != nil {
		a.scanWorker.Stop()
	}
	a.metricsCancel()

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	for name, srv := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		name, srv := name, srv
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// ScanWorker returns the SLA scan worker, or nil when scanning is
// disabled.
func (a *App) ScanWorker() *notifications.Worker {
	return a.scanWorker
}

func (a *App) setupRouter(ctx context.Context, engine *sla.Engine) (*chi.Mux, *notifications.Worker, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	faultsRepo := faultspostgres.NewRepository(a.db)
	faultsService := faults.NewService(faultsRepo, engine)
	faultsHandler := faults.NewHandler(faultsService)

	scanWorker, err := a.setupScanWorker(ctx, faultsService, engine)
	if err != nil {
		return nil, nil, err
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.RequireJSON)
		faultsHandler.RegisterRoutes(r)
	})

	return r, scanWorker, nil
}

// setupScanWorker starts the periodic SLA scan when it is enabled. Without
// any configured sender events are only logged.
func (a *App) setupScanWorker(ctx context.Context, checker notifications.Checker, engine *sla.Engine) (*notifications.Worker, error) {
	if !a.config.Scanner.Enabled {
		a.logger.Info("sla scan worker disabled")
		return nil, nil
	}

	senders, err := a.buildSenders()
	if err != nil {
		return nil, err
	}

	retry := a.config.Webhooks.Retry
	dispatcher, err := notifications.NewDispatcher(notifications.RetryPolicy{
		MaxAttempts:       retry.MaxAttempts,
		InitialBackoff:    retry.InitialBackoff,
		MaxBackoff:        retry.MaxBackoff,
		BackoffMultiplier: retry.BackoffMultiplier,
	}, senders...)
	if errors.Is(err, notifications.ErrNoSenders) {
		a.logger.Warn("no webhooks or email configured, sla events will only be logged")
		dispatcher = nil
	} else if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	renderer, err := notifications.NewRenderer(engine.Calendar().Location())
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	worker := notifications.NewWorker(
		notifications.WorkerConfig{Interval: a.config.Scanner.Interval},
		checker,
		renderer,
		dispatcher,
		notifications.NewSuppressor(a.config.Scanner.SuppressFor),
	)
	worker.Start(ctx)

	return worker, nil
}

func (a *App) buildSenders() ([]notifications.Sender, error) {
	senders := make([]notifications.Sender, 0, len(a.config.Webhooks.URLs)+1)

	for _, u := range a.config.Webhooks.URLs {
		s, err := webhook.NewSender(webhook.Config{
			URL:       u,
			Timeout:   a.config.Webhooks.Timeout,
			RateLimit: a.config.Webhooks.RateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("create webhook sender: %w", err)
		}
		senders = append(senders, s)
	}

	if a.config.Email.Enabled {
		s, err := email.NewSender(email.Config{
			SMTPHost:     a.config.Email.SMTPHost,
			SMTPPort:     a.config.Email.SMTPPort,
			SMTPUser:     a.config.Email.SMTPUser,
			SMTPPassword: a.config.Email.SMTPPassword,
			FromAddress:  a.config.Email.FromAddress,
			Recipients:   a.config.Email.Recipients,
			BatchSize:    a.config.Email.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("create email sender: %w", err)
		}
		senders = append(senders, s)
	}

	return senders, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
