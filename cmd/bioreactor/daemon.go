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

	"github.com/fentz26/bioreactor/internal/config"
	"github.com/fentz26/bioreactor/internal/controlplane"
	"github.com/fentz26/bioreactor/internal/logging"
	"github.com/fentz26/bioreactor/internal/metrics"
	"github.com/fentz26/bioreactor/internal/reactor"
	"github.com/fentz26/bioreactor/internal/simulation"
	"github.com/fentz26/bioreactor/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configPath   string
	listenAddr   string
	dbPath       string
	logLevel     string
	tickInterval time.Duration
	seed         int64
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the bioreactor simulator and HTTP API",
	Long: `Starts the simulation engine and serves the HTTP API.

Configuration is read from built-in defaults, then --config, then BIOREACTOR_*
environment variables, then flags given on the command line.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	daemonCmd.Flags().StringVar(&listenAddr, "listen", config.DefaultListen, "Listen address for the API server")
	daemonCmd.Flags().StringVar(&dbPath, "db", config.DefaultDBPath, "Path to SQLite journal database (:memory: keeps nothing)")
	daemonCmd.Flags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	daemonCmd.Flags().DurationVar(&tickInterval, "tick", time.Second, "Simulation tick interval")
	daemonCmd.Flags().Int64Var(&seed, "seed", 0, "Noise seed (0 seeds from the clock)")
}

// loadDaemonConfig applies only the flags the user actually set on top of
// the loaded configuration.
func loadDaemonConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = listenAddr
	}
	if flags.Changed("db") {
		cfg.DBPath = dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("tick") {
		cfg.Simulation.TickInterval = tickInterval
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed = seed
	}
	return cfg, cfg.Validate()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadDaemonConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.LogLevel, os.Stderr)
	logger.Info("starting bioreactor daemon", "listen", cfg.Listen, "db", cfg.DBPath, "tick", cfg.Simulation.TickInterval)

	// Initialize store
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		logger.Info("closing database connection")
		if err := s.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}()

	// Initialize components
	registry := reactor.NewDefaultRegistry()
	m := metrics.New()
	engine := simulation.New(registry, &cfg.Simulation, logger)
	engine.OnTick(m.ObserveTick)

	// Create service and server
	service := controlplane.NewService(registry, engine, s, m, logger)
	server := controlplane.NewServer(service, m.Handler(), cfg.Listen, logger)

	engine.Start()
	defer engine.Stop()

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
