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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"hostel-allocation-backend/config"
	"hostel-allocation-backend/internal/allocation"
	"hostel-allocation-backend/internal/api"
	"hostel-allocation-backend/internal/db"
	"hostel-allocation-backend/internal/directory"
	"hostel-allocation-backend/internal/store"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Run:   serveRun,
	}
}

func serveRun(_ *cobra.Command, _ []string) {
	cfg, logger := commonRun()
	if err := serve(cfg, logger); err != nil {
		logger.Error(err.Error(), "component", programName)
		os.Exit(1)
	}
}

// newHandler wires the store, coordinator and optional collaborators.
func newHandler(cfg *config.Config, appStore store.Store, logger *slog.Logger) (*api.Handler, http.Handler, error) {
	var opts []allocation.Option
	opts = append(opts,
		allocation.WithLogger(logger.With("component", "allocation")),
		allocation.WithHostelName(cfg.Hostel.Name),
	)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := &allocation.Metrics{}
		metrics.Register(registry)
		opts = append(opts, allocation.WithMetrics(metrics))
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	// Keep students nil unless configured; a typed nil would pass the
	// handler's nil check.
	var students api.StudentSearcher
	if cfg.Directory.Enabled() {
		client, err := directory.NewClient(cfg.Directory, logger)
		if err != nil {
			return nil, nil, err
		}
		students = client
		if cfg.Directory.VerifyStudents {
			opts = append(opts, allocation.WithStudentResolver(client))
		}
	}

	coordinator := allocation.New(appStore, opts...)
	return api.NewHandler(appStore, coordinator, students, logger), metricsHandler, nil
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	if !globalFlags.debug && !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	appStore := store.NewGormStore(gormDB)

	handler, metricsHandler, err := newHandler(cfg, appStore, logger)
	if err != nil {
		return err
	}

	// Initialize router
	router := api.NewRouter(handler, cfg, metricsHandler, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start the server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "component", programName, "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	case <-stop:
	}
	logger.Info("shutdown signal received, stopping services", "component", programName)

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("server gracefully stopped", "component", programName)
	return nil
}
