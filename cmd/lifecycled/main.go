// Command lifecycled runs the HotProp listing lifecycle engine: the HTTP API,
// the mail dispatcher and the periodic validation sweeper.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/hotprop/listing-engine/internal/app"
	"github.com/hotprop/listing-engine/internal/app/httpapi"
	"github.com/hotprop/listing-engine/internal/app/metrics"
	"github.com/hotprop/listing-engine/internal/app/services/sweeper"
	"github.com/hotprop/listing-engine/internal/app/storage/postgres"
	"github.com/hotprop/listing-engine/internal/config"
	"github.com/hotprop/listing-engine/internal/middleware"
	"github.com/hotprop/listing-engine/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("lifecycled exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, db, err := buildStores(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("configure stores: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	m := metrics.New()
	application, err := app.New(stores, app.Options{
		Sweep: sweeper.Options{
			Interval:       cfg.Validation.SweepInterval,
			AgeThreshold:   cfg.Validation.AgeThreshold,
			TokenTTL:       cfg.Validation.TokenTTL,
			ConfirmBaseURL: cfg.Validation.ConfirmBaseURL,
		},
		Metrics: m,
	}, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	router := httpapi.NewRouter(application, log)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), log, []string{
		"/healthz",
		"/metrics",
		"/listings",
		"/listings/confirm",
	})
	limiter := middleware.NewRateLimiter(20, 40, log)

	router.Use(m.Middleware())
	chained := auth.Handler(limiter.Handler(router))

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           chained,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown failed")
	}
	return application.Stop(shutdownCtx)
}

func buildStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_DSN not set; using in-memory store")
		return app.Stores{}, nil, nil
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return app.Stores{}, nil, err
	}

	store := postgres.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("ensure schema: %w", err)
	}

	return app.Stores{Listings: store, Notifications: store}, db, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
