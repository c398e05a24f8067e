package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"jma-forecast/internal/config"
	"jma-forecast/internal/jma"
	"jma-forecast/internal/notify"
	"jma-forecast/internal/repository"
	"jma-forecast/internal/services"
	"jma-forecast/internal/ui"
	"jma-forecast/pkg/database"
	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the screen
	logger := logging.NewStructuredLogger("jma-forecast-console", version, logging.ParseLevel(cfg.Logging.Level))
	logger.SetFormat("text", os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsCollector := metrics.NewCollector("jma_forecast_console", prometheus.NewRegistry())

	db, err := database.Open(cfg.DatabaseOptions(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[CONSOLE_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, "up"); err != nil {
		logger.Fatal(ctx, "[CONSOLE_ERROR] Failed to apply schema", logging.Fields{}, err)
	}

	location, err := cfg.Location()
	if err != nil {
		logger.Fatal(ctx, "[CONSOLE_ERROR] Invalid time zone", logging.Fields{}, err)
	}

	catalogService := services.NewCatalogService(
		repository.NewCatalogRepository(db, logger, metricsCollector),
		logger,
		metricsCollector,
	)
	if _, err := catalogService.EnsureLoaded(ctx, cfg.Catalog.AreaFile, cfg.Catalog.ForceReload); err != nil {
		logger.Fatal(ctx, "[CONSOLE_ERROR] Region catalog unavailable", logging.Fields{
			"area_file": cfg.Catalog.AreaFile,
		}, err)
	}

	var publisher services.UpdatePublisher
	if cfg.Kafka.Enabled() {
		kafkaPublisher := notify.NewKafkaPublisher(cfg.Kafka, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	dispatcher := services.NewDispatcher(cfg.Cache.DispatchBuffer, logger, metricsCollector)
	forecastService := services.NewForecastService(
		repository.NewForecastRepository(db, logger, metricsCollector),
		jma.NewClient(cfg.JMA.BaseURL, cfg.JMA.Timeout, logger),
		publisher,
		dispatcher,
		services.NewFreshnessPolicy(cfg.Cache.FreshnessEnabled, location, nil),
		logger,
		metricsCollector,
	)

	console := ui.NewConsole(catalogService, forecastService, dispatcher.Completions(), os.Stdin, os.Stdout, logger)
	if err := console.Run(ctx); err != nil {
		logger.Error(ctx, "[CONSOLE_ERROR] Console stopped with error", logging.Fields{}, err)
	}

	forecastService.Wait()
}
