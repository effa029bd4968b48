package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/pkg/config"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/runtime"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/telemetry"
	"github.com/tjfontaine/fingerprint-edge-proxy/pkg/gateway"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configPath, logLevel string
	flags := pflag.NewFlagSet("edgeproxy", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "config.yaml", "bootstrap config file (optional)")
	flags.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Telemetry.Tracing {
		shutdown, err := telemetry.InitTracer(telemetry.TracerConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: runtime.Version,
			SampleRatio:    cfg.Telemetry.SampleRatio,
		}, logger)
		if err != nil {
			return fmt.Errorf("initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	gw, err := gateway.New(
		gateway.WithConfig(cfg),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping proxy")
	case serveErr = <-gw.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return serveErr
}
