/*
main.go - Application entry point

PURPOSE:
  Starts the FuelEU compliance engine HTTP server, or seeds demo data.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  server [serve]              Run the HTTP server (default)
  server seed --scenario ID   Reset the database and load a demo scenario

FLAGS (all commands):
  --config     TOML config file (optional)
  --port       HTTP server port
  --db         SQLite database path, ":memory:" for in-memory
  --log-level  debug | info | warn | error

  Flags override the environment, which overrides the config file.
  See config/config.go for the environment variables.

STARTUP SEQUENCE:
  1. Load configuration
  2. Build logger
  3. Open SQLite store (auto-migrates)
  4. Build use-case service and HTTP handler
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection

EXAMPLES:
  ./server --db ./data/compliance.db
  ./server --db ":memory:" --port 3000
  ./server seed --scenario banking --db ./data/compliance.db

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration layers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/compliance-engine/api"
	"github.com/warp/compliance-engine/config"
	"github.com/warp/compliance-engine/store/sqlite"
	"github.com/warp/compliance-engine/usecase"
)

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "FuelEU Maritime compliance engine",
	Long:         `Computes compliance balances, manages banking of surplus and pools ships' balances over HTTP.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reset the database and load a demo scenario",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "TOML config file")
	flags.Int("port", 0, "HTTP server port")
	flags.String("db", "", `SQLite database path (":memory:" for in-memory)`)
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	seedCmd.Flags().String("scenario", api.DefaultScenario, "Scenario to load")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	handler := newHandler(cfg, store, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"port": cfg.Server.Port,
			"db":   cfg.Database.Path,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
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

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	scenario, _ := cmd.Flags().GetString("scenario")
	return newHandler(cfg, store, logger).Load(cmd.Context(), scenario)
}

// =============================================================================
// WIRING
// =============================================================================

func newHandler(cfg config.Config, store *sqlite.Store, logger *logrus.Logger) *api.Handler {
	svc := usecase.NewService(store, logger)
	svc.MinPoolMembers = cfg.Pooling.MinMembers
	return api.NewHandler(svc, store, logger)
}

// loadConfig layers explicitly set flags over config.Load.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("db") {
		cfg.Database.Path, _ = flags.GetString("db")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}

	return cfg, cfg.Validate()
}
