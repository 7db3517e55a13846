// Package main runs the fusion controller: it subscribes to the sensor
// drivers, receives tablet frames over TCP, and publishes actuator commands
// on a fixed decision period.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/sensorfusion/bus/natsbus"
	"github.com/c360/sensorfusion/bus/zmqbus"
	"github.com/c360/sensorfusion/config"
	"github.com/c360/sensorfusion/metric"
)

// Build information, overridden with -ldflags at release time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "fusiond"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cli.ShowVersion {
		fmt.Printf("%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Process.LogLevel, cfg.Process.LogFormat, cfg.Process.Name)
	slog.SetDefault(logger)

	if cli.Validate {
		logger.Info("Configuration is valid", "layers", cli.ConfigPaths)
		if cli.Dump {
			fmt.Print(cfg.String())
		}
		return nil
	}

	logger.Info("Starting fusion controller",
		"build_time", BuildTime,
		"layers", cli.ConfigPaths,
		"subscribers", len(cfg.Subscribers),
		"tcp_enabled", cfg.TCP.Enabled)

	zmqbus.Register()
	natsbus.Register(cfg.Process.Name)

	registry := metric.NewMetricsRegistry()
	a, err := newApp(cfg, logger, registry)
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := a.run(signalCtx)
	if runErr != nil {
		logger.Error("Controller halted", "error", runErr)
	} else {
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Process.ShutdownTimeout.Std())
	defer shutdownCancel()

	start := time.Now()
	if err := a.stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Fusion controller shutdown complete", "took", time.Since(start))
	return runErr
}

// loadConfig layers the files named on the command line over the defaults
// and applies flag overrides on top of the environment.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	for _, path := range cli.ConfigPaths {
		loader.AddLayer(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cli.LogLevel != "" {
		cfg.Process.LogLevel = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Process.LogFormat = cli.LogFormat
	}
	if cli.MetricsAddr != "" {
		cfg.Process.MetricsAddr = cli.MetricsAddr
	}
	if cli.ShutdownTimeout > 0 {
		cfg.Process.ShutdownTimeout = config.Duration(cli.ShutdownTimeout)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
