// Package app wires configuration, storage, the licence engine and the
// HTTP transport into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/FinHutch/licencecheck/internal/config"
	"github.com/FinHutch/licencecheck/internal/infrastructure"
	"github.com/FinHutch/licencecheck/internal/licence"
	"github.com/FinHutch/licencecheck/internal/middleware"
	"github.com/FinHutch/licencecheck/internal/signer"
	"github.com/FinHutch/licencecheck/internal/store"
	transport "github.com/FinHutch/licencecheck/internal/transport/http"
)

// Application is the composed licence server. Build one with New and
// drive it with Run; everything in between is wiring.
type Application struct {
	config *config.Config
	logger *slog.Logger
	otel   *infrastructure.OTelProviders

	store   licence.Store
	service *licence.Service
	signer  signer.Signer
	closers []func() error

	router chi.Router
	server *http.Server
}

// New assembles the application from configuration. It connects (and
// optionally migrates) the licence store, so a failed dependency shows
// up at startup instead of on the first request.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	app := &Application{
		config: cfg,
		logger: logger,
		otel:   providers,
	}

	// A failed dependency must not strand the already-registered
	// exporters; flush them before surfacing the startup error.
	fail := func(err error) (*Application, error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := providers.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("shutdown telemetry", slog.String("error", shutdownErr.Error()))
		}
		return nil, err
	}

	if err := app.setupStore(ctx); err != nil {
		return fail(err)
	}
	app.service = licence.NewService(app.store, logger)

	if err := app.setupSigner(); err != nil {
		return fail(err)
	}

	app.setupRouter()
	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

func (a *Application) setupStore(ctx context.Context) error {
	switch a.config.Database.Driver {
	case "memory":
		a.logger.Warn("using in-memory licence store; licences will not survive a restart")
		a.store = store.NewMemory()
		return nil
	case "postgres":
		if a.config.Database.Migrate {
			if err := store.Migrate(a.config.Database.URL); err != nil {
				return fmt.Errorf("migrate licence schema: %w", err)
			}
		}
		pg, err := store.OpenPostgres(ctx, a.config.Database.URL)
		if err != nil {
			return fmt.Errorf("connect licence store: %w", err)
		}
		a.store = pg
		a.closers = append(a.closers, pg.Close)
		return nil
	default:
		return fmt.Errorf("unknown database driver: %q", a.config.Database.Driver)
	}
}

func (a *Application) setupSigner() error {
	if !a.config.ObjectStore.Enabled {
		return nil
	}
	s, err := signer.NewMinIO(signer.Config{
		Endpoint:  a.config.ObjectStore.Endpoint,
		Bucket:    a.config.ObjectStore.Bucket,
		AccessKey: a.config.ObjectStore.AccessKey,
		SecretKey: a.config.ObjectStore.SecretKey,
		UseSSL:    a.config.ObjectStore.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("initialize object store signer: %w", err)
	}
	a.signer = s
	return nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(a.logger))
	r.Use(middleware.Recoverer(a.logger))
	r.Use(middleware.SecurityHeaders)

	licHandler := transport.NewLicenceHandler(a.service, a.signer, a.config.ObjectStore.LinkTTL, a.logger)
	adminHandler := transport.NewAdminHandler(a.service, a.logger)
	healthHandler := transport.NewHealthHandler(infrastructure.ServiceVersion, a.readiness())

	adminAuth := middleware.NewAdminAuth(a.config.Admin, a.logger)

	// Each route gets its own limiter so one budget cannot starve
	// another: 30 checks in a minute must not block link issuance.
	limited := func(perMinute int) func(http.Handler) http.Handler {
		if !a.config.RateLimit.Enabled {
			return passthrough
		}
		return middleware.NewIPRateLimiter(perMinute, a.logger).Handler
	}

	r.Group(func(r chi.Router) {
		r.Use(adminAuth.Handler)
		r.Post("/generate_code", adminHandler.Generate)
		r.Get("/admin/list_licences", adminHandler.List)
	})

	r.With(limited(a.config.RateLimit.ActivatePerMinute)).
		Post("/activate", licHandler.Activate)
	r.With(limited(a.config.RateLimit.ValidatePerMinute)).
		Post("/check", licHandler.Check)
	r.With(limited(a.config.RateLimit.ValidatePerMinute)).
		Post("/check_hwid", licHandler.CheckHWID)
	r.With(limited(a.config.RateLimit.ValidatePerMinute)).
		Get("/get_link/*", licHandler.GetLink)

	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/version", healthHandler.Version)
	if a.otel.PrometheusHTTP != nil {
		r.Handle("/metrics", a.otel.PrometheusHTTP)
	}

	a.router = r
}

func passthrough(next http.Handler) http.Handler { return next }

// readiness returns the probe used by /readyz. Only the Postgres store
// has connectivity worth checking.
func (a *Application) readiness() func(context.Context) error {
	if pg, ok := a.store.(*store.Postgres); ok {
		return pg.Ping
	}
	return nil
}

// Router exposes the assembled handler, mainly for tests.
func (a *Application) Router() http.Handler { return a.router }

// Run serves HTTP until ctx is cancelled, then shuts the server down
// within the configured grace period.
func (a *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("licence server listening",
			slog.String("addr", a.server.Addr),
			slog.String("store", a.config.Database.Driver))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.close()
	return err
}

func (a *Application) close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Error("close dependency", slog.String("error", err.Error()))
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.otel.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("shutdown telemetry", slog.String("error", err.Error()))
	}
}
