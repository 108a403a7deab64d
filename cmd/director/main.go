// Package main is the entry point for the director daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	prom "github.com/prometheus/client_golang/prometheus"

	"director/internal/config"
	"director/internal/database"
	"director/internal/docker"
	"director/internal/images"
	"director/internal/logging"
	"director/internal/metrics"
	"director/internal/server"
	"director/internal/state"
	"director/internal/systemcheck"
	"director/internal/telemetry"
	"director/internal/version"
	"director/internal/worker"
	"director/pkg/compose"
)

func main() {
	// Load .env file if it exists (for development)
	if err := godotenv.Load(); err != nil {
		if os.Getenv("DEBUG") == "true" {
			log.Printf("No .env file found or error loading it: %v", err)
		}
	}

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version" || os.Args[1] == "version") {
		versionInfo := version.Get()
		fmt.Printf("director version %s\n", versionInfo.Version)
		fmt.Printf("  commit: %s\n", versionInfo.Commit)
		fmt.Printf("  built: %s\n", versionInfo.BuildDate)
		fmt.Printf("  go: %s\n", versionInfo.GoVersion)
		fmt.Printf("  platform: %s\n", versionInfo.Platform)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// File logging only in development; production logs to stdout.
	if os.Getenv("DIRECTOR_ENV") == "development" || os.Getenv("DEBUG") == "true" {
		if err := logging.Initialize("./logs"); err != nil {
			log.Printf("Warning: Failed to initialize file logging: %v", err)
		} else {
			defer logging.Close()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.InitializeFromEnv(ctx)
	if err != nil {
		log.Printf("Warning: Failed to initialize telemetry: %v", err)
	} else {
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				log.Printf("Error shutting down telemetry: %v", err)
			}
		}()
	}

	if err := database.Initialize(cfg.DatabasePath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	log.Printf("Configuration: %s", cfg)

	navigator := images.NewNavigator(cfg.ImagesDir)
	if err := navigator.Load(); err != nil {
		log.Printf("Warning: Failed to scan images directory: %v", err)
	}

	registry := prom.NewRegistry()
	recorder := metrics.NewRecorder(registry)

	dock, err := docker.NewManager(navigator, cfg.StartPort, cfg.EndPort, recorder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to Docker: %v\n", err)
		os.Exit(1)
	}
	defer dock.Close()

	checks := systemcheck.NewRunner(cfg, dock).Run(ctx)
	for _, check := range checks {
		if check.Status == systemcheck.StatusOK {
			log.Printf("Check %s: %s", check.ID, check.Message)
		} else {
			log.Printf("Check %s FAILED: %s %s", check.ID, check.Message, check.Detail)
		}
	}
	if !systemcheck.Healthy(checks) {
		log.Printf("Warning: some startup checks failed; continuing anyway")
	}

	composer, err := compose.NewRunner()
	if err != nil {
		log.Printf("Warning: compose support unavailable: %v", err)
		composer = nil
	}

	manager := state.NewManager(cfg, dock, navigator, composer, recorder)
	if err := manager.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize state manager: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	go func() {
		if err := dock.WatchEvents(ctx, manager.HandleContainerEvent); err != nil && ctx.Err() == nil {
			log.Printf("Event watcher stopped: %v", err)
		}
	}()

	w := worker.New(manager)
	w.Start(2)
	defer w.Stop()

	srv := server.New(cfg, manager, dock, navigator, w, registry)
	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
