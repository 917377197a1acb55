package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/care/painter/internal/core"
	"github.com/care/painter/internal/types"
)

const defaultConfigPath = "config/painter.yaml"

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	modeFlag := flag.String("mode", "", "Session mode: palette, canvas, preview, paint (or 1-4); prompts when empty")
	yes := flag.Bool("yes", false, "Start without asking for confirmation")
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

	var mode types.Mode
	if *modeFlag != "" {
		m, err := types.ParseMode(*modeFlag)
		if err != nil {
			slog.Error("invalid -mode", "error", err)
			os.Exit(2)
		}
		mode = m
	}

	slog.Info("starting painter service",
		"config", *configPath,
		"debug", *debug,
		"mode", *modeFlag,
	)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	painter, err := core.NewPainter(*configPath)
	if err != nil {
		slog.Error("failed to create painter service", "error", err)
		os.Exit(1)
	}
	painter.Prompter = newTermPrompter(os.Stdin, os.Stderr, *yes)

	// Run service in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- painter.Run(ctx, mode) // Always send, even if nil
	}()

	// Wait for shutdown signal or session end
	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		runErr = <-errChan
	case runErr = <-errChan:
		if runErr != nil {
			slog.Error("service error", "error", runErr)
		} else {
			slog.Info("session ended")
		}
	}

	// Graceful shutdown
	shutdownTimeout := painter.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := painter.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	if runErr != nil {
		os.Exit(1)
	}
	slog.Info("painter service stopped successfully")
}
