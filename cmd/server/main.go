/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the walk booking engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and resolve configuration
  2. Build the logger
  3. Open the store (memory, SQLite or PostgreSQL)
  4. Create the engine, API handler and router
  5. Start the expiry scheduler and the HTTP server
  6. Optionally load a demo scenario

COMMAND-LINE FLAGS:
  --config      YAML config file (env WALKS_CONFIG)
  --addr        HTTP listen address (default: :8080)
  --db-driver   memory | sqlite | postgres (default: sqlite)
  --dsn         SQLite path or PostgreSQL URL (default: walks.db)
                Use ":memory:" for an in-memory SQLite database
  --log-level   debug | info | warn | error
  --log-format  text | json
  --capacity    Default dogs per walker slot
  --seed        Demo scenario to load at startup

ENVIRONMENT:
  WALKS_ADDR, WALKS_DB_DRIVER, WALKS_DSN (or DATABASE_URL), WALKS_LOG_LEVEL,
  WALKS_LOG_FORMAT, WALKS_REFUND_ON_MID_WALK_CANCELLATION, WALKS_CACHE_TTL

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (http.shutdown_timeout)
  3. Stop the scheduler
  4. Close the database connection

EXAMPLES:
  ./server --dsn=./data/walks.db
  ./server --db-driver=postgres --dsn=postgres://walks@localhost/walks
  ./server --db-driver=memory --seed=group-walk

SEE ALSO:
  - config/config.go: Configuration layers
  - api/server.go: Router configuration
  - store/sqlstore: Database implementation
*/
package main

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

	"github.com/spf13/pflag"

	"github.com/warp/walk-engine/api"
	"github.com/warp/walk-engine/config"
	"github.com/warp/walk-engine/logging"
	"github.com/warp/walk-engine/store/sqlstore"
	"github.com/warp/walk-engine/walks"
	"github.com/warp/walk-engine/walks/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("server", pflag.ExitOnError)
	config.BindFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Resolve(fs, os.Getenv)
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	st, closeStore, err := openStore(ctx, cfg.Database, cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore()

	engine := walks.NewEngine(st, walks.Options{
		CapacityPerSlot:             cfg.Booking.CapacityPerSlot,
		RefundOnMidWalkCancellation: cfg.Booking.RefundOnMidWalkCancellation,
		Logger:                      logger,
	})

	handler := api.NewHandler(engine, logger)
	if cfg.Seed.Scenario != "" {
		if err := handler.LoadScenarioByID(ctx, cfg.Seed.Scenario); err != nil {
			logger.Warn("failed to load seed scenario",
				slog.String("scenario", cfg.Seed.Scenario),
				slog.String("error", err.Error()))
		}
	}

	scheduler := api.NewExpiryScheduler(engine, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.ExpirySweepInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(handler, api.RouterOptions{CORSOrigins: cfg.HTTP.CORSOrigins, Logger: logger}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.HTTP.Addr),
			slog.String("driver", string(cfg.Database.Driver)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openStore returns the configured store and its close function.
func openStore(ctx context.Context, db config.DatabaseConfig, cache config.CacheConfig) (walks.Store, func(), error) {
	if db.Driver == config.DriverMemory {
		return store.NewMemory(), func() {}, nil
	}

	dialect, err := sqlstore.ParseDialect(string(db.Driver))
	if err != nil {
		return nil, nil, err
	}
	s, err := sqlstore.Open(ctx, sqlstore.Options{
		Dialect:      dialect,
		DSN:          db.DSN,
		CacheTTL:     cache.TTL,
		MaxOpenConns: db.MaxOpenConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}
