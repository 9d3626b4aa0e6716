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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hperssn/stride/internal/config"
	"github.com/hperssn/stride/internal/domain"
	httpapi "github.com/hperssn/stride/internal/http"
	"github.com/hperssn/stride/internal/metrics"
	"github.com/hperssn/stride/internal/runner"
	"github.com/hperssn/stride/internal/sensor"
	"github.com/hperssn/stride/internal/systemd"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Stride API server",
	Long:  `Start the session API and the metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Stride")

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	manager := runner.NewSessionManager(runner.ManagerConfig{
		Session:         sessionConfig(cfg),
		Detectors:       detectorFactory(cfg.Sensor),
		IdleEviction:    config.ParseDuration(cfg.Session.IdleEviction, runner.DefaultIdleEviction),
		CleanupInterval: config.ParseDuration(cfg.Session.CleanupInterval, runner.DefaultCleanupInterval),
	}, logger)
	defer manager.Close()

	summaries := httpapi.NewSummaryStore(
		cfg.Summary.CacheSize,
		config.ParseDuration(cfg.Summary.CacheTTL, time.Hour),
	)

	api := httpapi.NewServer(manager, summaries, logger)
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer.RegisterOnShutdown(api.CloseStreams)

	serveErr := make(chan error, 1)
	go func() {
		var err error
		if sdListeners.HTTP != nil {
			logger.Debug().Msg("Using systemd socket-activated HTTP listener")
			err = httpServer.Serve(sdListeners.HTTP)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	logger.Info().Str("addr", httpAddr).Msg("API server started")

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
	case err := <-serveErr:
		logger.Error().Err(err).Msg("API server error")
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		config.ParseDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("Stride stopped")
	return nil
}

// sessionConfig builds controller settings from the loaded configuration.
func sessionConfig(cfg *config.Config) runner.Config {
	rc := runner.DefaultConfig()
	rc.Duration = config.ParseDuration(cfg.Session.Duration, rc.Duration)
	rc.Interval = config.ParseDuration(cfg.Session.TickInterval, rc.Interval)
	rc.Rules = domain.Rules{
		StepCap:    cfg.Session.StepCap,
		DateLayout: cfg.Session.DateLayout,
	}
	rc.Buffer = cfg.Session.EventBuffer
	return rc
}

func detectorFactory(cfg config.SensorConfig) runner.DetectorFactory {
	switch {
	case cfg.Enabled:
		return func(string) sensor.Detector { return sensor.NewFeed() }
	case cfg.Required:
		return func(string) sensor.Detector { return sensor.None{} }
	default:
		return func(string) sensor.Detector { return sensor.Disabled{} }
	}
}
