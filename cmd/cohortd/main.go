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

	"github.com/charmbracelet/log"
	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/api"
	"github.com/dyluth/cohort/internal/config"
	"github.com/dyluth/cohort/internal/eventbus"
	"github.com/dyluth/cohort/internal/instance"
	"github.com/dyluth/cohort/internal/ledger"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load environment variables
	instanceName := os.Getenv("COHORT_INSTANCE_NAME")
	redisURL := os.Getenv("REDIS_URL")

	if instanceName == "" || redisURL == "" {
		fmt.Fprintf(os.Stderr, "Error: COHORT_INSTANCE_NAME and REDIS_URL must be set\n")
		os.Exit(1)
	}
	if err := instance.ValidateName(instanceName); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if level := os.Getenv("COHORT_LOG_LEVEL"); level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid COHORT_LOG_LEVEL: %v\n", err)
			os.Exit(1)
		}
		log.SetLevel(parsed)
	}
	log.SetReportTimestamp(true)
	logger := log.Default().WithPrefix("cohortd")

	// 2. Load cohort.yml (defaults when absent)
	configPath := os.Getenv("COHORT_CONFIG")
	if configPath == "" {
		configPath = "cohort.yml"
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load %s: %v\n", configPath, err)
		os.Exit(1)
	}

	// 3. Connect to the document store
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid REDIS_URL: %v\n", err)
		os.Exit(1)
	}

	store, err := progress.NewClient(redisOpts, instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create progress store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	store.SetMaxUpdateRetries(cfg.Ledger.MaxUpdateRetries)

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		os.Exit(1)
	}

	// 4. Event bus, optionally bridged to Redis so other processes see server events
	bus := eventbus.New()
	defer bus.Close()
	if cfg.BridgeEnabled() {
		bridge := eventbus.NewRedisBridge(store)
		bus.AddBridge(bridge)
		logger.Info("events bridged to Redis", "origin", bridge.Origin())
	}

	// 5. Ledger, academy and API
	svc := academy.New(store, ledger.New(store), bus)
	server := api.NewServer(api.Options{
		Address:     cfg.Server.Address,
		Academy:     svc,
		LogRequests: true,
	})

	logger.Info("cohortd starting", "instance", instanceName, "address", cfg.Server.Address)

	// 6. Serve until signalled
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
		<-errCh
	case serveErr := <-errCh:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("API server failed", "error", serveErr)
			os.Exit(1)
		}
	}

	logger.Info("cohortd stopped")
}
