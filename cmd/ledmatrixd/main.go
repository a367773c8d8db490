package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/config"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/control"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/core"
)

const defaultConfigPath = "config/ledmatrixd.yaml"

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup structured logger
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting ledmatrix service",
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	svc, err := core.New(cfg)
	if err != nil {
		slog.Error("failed to create ledmatrix service", "error", err)
		os.Exit(1)
	}

	// Start the enabled control planes (non-blocking)
	var httpPlane *control.HTTP
	if cfg.HTTP.Enabled {
		httpPlane, err = control.NewHTTP(cfg.HTTP, cfg.Limits, svc)
		if err != nil {
			slog.Error("failed to create http control plane", "error", err)
			os.Exit(1)
		}
		if err := httpPlane.Start(); err != nil {
			slog.Error("failed to start http control plane", "error", err)
			os.Exit(1)
		}
	}

	var mqttPlane *control.MQTT
	if cfg.MQTT.Enabled {
		mqttPlane = control.NewMQTT(cfg.MQTT, svc)
		if err := mqttPlane.Start(ctx); err != nil {
			slog.Error("failed to start mqtt control plane", "error", err)
			os.Exit(1)
		}
	}

	// Run the playback service in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Run(ctx) // Always send, even if nil
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			slog.Error("service error", "error", err)
		}
	}

	// Graceful shutdown: control planes first so no new work arrives while
	// the engine drains.
	shutdownTimeout := svc.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if mqttPlane != nil {
		if err := mqttPlane.Stop(); err != nil {
			slog.Error("mqtt shutdown failed", "error", err)
		}
	}
	if httpPlane != nil {
		if err := httpPlane.Stop(shutdownCtx); err != nil {
			slog.Error("http shutdown failed", "error", err)
		}
	}

	cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("ledmatrix service stopped successfully")
}
