/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the timekeeper server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load TOML config
  2. Build the zap logger
  3. Initialize SQLite store and seed the bootstrap admin
  4. Load the leave policy table
  5. Start the year opener, wire the event bus, services and HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  TOML config file (default: none, built-in defaults)
  -port    HTTP server port, overrides server.addr
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -config=./timekeeper.toml
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration sections
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/warp/timekeeper/api"
	"github.com/warp/timekeeper/config"
	"github.com/warp/timekeeper/factory"
	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/logging"
	"github.com/warp/timekeeper/schedule"
	"github.com/warp/timekeeper/store/sqlite"
	"github.com/warp/timekeeper/timeoff"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "TOML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides server.addr)")
	dbPath := flag.String("db", "", "SQLite database path (overrides database.path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Addr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	level, err := cfg.Log.ZapLevel()
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger := logging.New(level, cfg.Log.File)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(cfg config.Config, logger *zap.Logger) error {
	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	if err := seedAdmin(context.Background(), store, cfg.Bootstrap); err != nil {
		return err
	}

	policies, err := factory.LoadLeavePolicies(cfg.Leave.PoliciesFile, timeoff.DefaultPoliciesWithAllotment(cfg.Leave.DefaultAllotment))
	if err != nil {
		return fmt.Errorf("load leave policies: %w", err)
	}

	// Status changes are persisted for the history endpoint.
	bus := generic.NewBus(logger)
	bus.Subscribe(store.AppendStatusChange)

	clock := generic.SystemClock{}
	access := generic.NewAccessScopeResolver(store)
	ledger := timeoff.NewBalanceLedger(policies, clock)

	if every := cfg.Leave.OpenYearInterval.Duration; every > 0 {
		opener := timeoff.NewYearOpener(store.Leave(), store, ledger, every, logger)
		opener.Start()
		defer opener.Stop()
	}

	leave := timeoff.NewRequestService(store.Leave(), access, ledger, bus, logger)
	leave.Audit = store

	handler := &api.Handler{
		Leave:       leave,
		Templates:   schedule.NewTemplateService(store.Schedules(), clock, bus, logger),
		Assignments: schedule.NewAssignmentService(store.Schedules(), access, clock, bus, logger),
		Users:       store,
		Access:      access,
		Metrics:     api.NewMetrics(),
		Health:      store,
		Clock:       clock,
	}

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Addr),
			zap.String("db", cfg.Database.Path),
			zap.Int("leave_types", len(policies)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

// seedAdmin creates the bootstrap admin if it does not exist yet.
func seedAdmin(ctx context.Context, users generic.UserStore, b config.Bootstrap) error {
	if b.AdminID == "" {
		return nil
	}
	id := generic.UserID(b.AdminID)
	u, err := users.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("load bootstrap admin: %w", err)
	}
	if u != nil {
		return nil
	}
	name := b.AdminName
	if name == "" {
		name = b.AdminID
	}
	if err := users.SaveUser(ctx, generic.User{ID: id, Name: name, Role: generic.RoleAdmin}); err != nil {
		return fmt.Errorf("seed bootstrap admin: %w", err)
	}
	zap.L().Info("seeded bootstrap admin", zap.String("user_id", b.AdminID))
	return nil
}
