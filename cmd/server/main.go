/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the task ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, merge config (file, env, defaults)
  2. Initialize SQLite store
  3. Wire propagator, cache, event bus and completion hook
  4. Configure HTTP router, start the stats sweeper
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper, close the bus and database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server --db ./data/boards.db

  # Run with in-memory database on another port
  ./server --db :memory: --port 3000

  # Env overrides
  TASKLEDGER_SWEEP_INTERVAL=10m ./server

SEE ALSO:
  - config/config.go: Configuration resolution
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/warp/task-ledger/api"
	"github.com/warp/task-ledger/cache"
	"github.com/warp/task-ledger/config"
	"github.com/warp/task-ledger/engine"
	"github.com/warp/task-ledger/hierarchy"
	"github.com/warp/task-ledger/notify"
	"github.com/warp/task-ledger/store/sqlite"
)

func main() {
	var (
		cfgPath string
		port    int
		dbPath  string
	)

	root := &cobra.Command{
		Use:   "server",
		Short: "Collaborative task ledger and stats rollup server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			return run(cfg)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	root.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	root.Flags().StringVar(&dbPath, "db", "taskledger.db", "SQLite database path (:memory: for in-memory)")

	if err := root.Execute(); err != nil {
		charmlog.Fatal("server failed", "err", err)
	}
}

func run(cfg *config.Config) error {
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "taskledger",
	})
	if level, err := charmlog.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	containerCache, err := cache.New(cfg.CacheSize)
	if err != nil {
		return err
	}
	bus := notify.NewBus()
	defer bus.Close()

	propagator := engine.New(store)
	propagator.Cache = containerCache
	propagator.Broadcast = bus
	propagator.Hook = &completionLogger{bus: bus, log: logger}
	propagator.Log = logger
	if cfg.DailyCapMinutes > 0 {
		propagator.Reconciler.DailyCapMinutes = cfg.DailyCapMinutes
	}

	handler := api.NewHandler(store)
	handler.Propagator = propagator
	handler.Cache = containerCache
	handler.Bus = bus
	handler.Log = logger

	sweeper := api.NewStatsSweeper(store, propagator.Aggregator, logger)
	sweeper.Interval = cfg.SweepInterval
	sweeper.Enabled = cfg.SweepEnabled
	sweeper.Start()
	defer sweeper.Stop()

	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.CORSOrigins})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", cfg.Port), "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// completionLogger announces completed containers on the bus so recurring
// task generators downstream can pick them up.
type completionLogger struct {
	bus *notify.Bus
	log *charmlog.Logger
}

func (c *completionLogger) ContainerCompleted(ctx context.Context, id hierarchy.ContainerID, status hierarchy.Status) error {
	c.log.Info("container completed", "container", id, "status", status)
	return c.bus.Publish(ctx, "recurrence.completed", map[string]string{
		"container": string(id),
		"status":    string(status),
	})
}
