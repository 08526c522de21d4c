/*
main.go - Application entry point

PURPOSE:

	Initializes and starts the meal benefit engine server. Handles
	configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
 1. Load configuration (file + environment)
 2. Initialize structured logging
 3. Initialize SQLite store
 4. Wire the engine (budget, freeze, compensation, orchestrator)
 5. Start the delivery sweeper
 6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:

	On SIGINT/SIGTERM:
	1. Stop accepting new connections
	2. Wait for active requests to complete (30s timeout)
	3. Stop the sweeper
	4. Close database connection
	5. Exit

EXAMPLES:

	# Run with file database
	BENEFIT_DB_PATH=./data/benefit.db ./server

	# Run with in-memory database
	BENEFIT_DB_PATH=":memory:" ./server

	# Run on different port
	BENEFIT_PORT=3000 ./server

SEE ALSO:
  - config/config.go: configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/benefit-engine/api"
	"github.com/warp/benefit-engine/benefit"
	"github.com/warp/benefit-engine/config"
	"github.com/warp/benefit-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer store.Close()

	clock := benefit.SystemClock()
	locks := benefit.NewKeyedLocks(cfg.LockTimeout)
	handler := api.NewHandler(store, clock,
		benefit.FreezeConfig{MaxFreezesPerWeek: cfg.FreezeWeekLimit},
		benefit.BudgetConfig{LowBudgetThreshold: decimal.NewFromFloat(cfg.LowBudgetThreshold)},
		locks)

	companies := make([]benefit.CompanyID, len(cfg.SweepCompanies))
	for i, c := range cfg.SweepCompanies {
		companies[i] = benefit.CompanyID(c)
	}
	sweeper := api.NewDeliverySweeper(store, handler, companies)
	sweeper.SweepInterval = cfg.SweepInterval
	sweeper.Enabled = cfg.SweepEnabled
	sweeper.Start()
	defer sweeper.Stop()

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
