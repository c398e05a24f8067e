package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jma-forecast/internal/config"
	"jma-forecast/internal/handlers"
	"jma-forecast/internal/jma"
	"jma-forecast/internal/notify"
	"jma-forecast/internal/repository"
	"jma-forecast/internal/services"
	"jma-forecast/pkg/database"
	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("jma-forecast-api", version, logging.ParseLevel(cfg.Logging.Level))
	logger.SetFormat(cfg.Logging.Format, os.Stdout)

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting JMA forecast API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"jma_base":    cfg.JMA.BaseURL,
		"kafka":       cfg.Kafka.Enabled(),
	})

	metricsCollector := metrics.NewCollector("jma_forecast", prometheus.DefaultRegisterer)

	db, err := database.Open(cfg.DatabaseOptions(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, "up"); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to apply schema", logging.Fields{}, err)
	}

	location, err := cfg.Location()
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Invalid time zone", logging.Fields{}, err)
	}

	// Repositories
	catalogRepo := repository.NewCatalogRepository(db, logger, metricsCollector)
	forecastRepo := repository.NewForecastRepository(db, logger, metricsCollector)

	// Services
	catalogService := services.NewCatalogService(catalogRepo, logger, metricsCollector)
	if _, err := catalogService.EnsureLoaded(ctx, cfg.Catalog.AreaFile, cfg.Catalog.ForceReload); err != nil {
		logger.Warn(ctx, "[STARTUP_CATALOG] Region catalog not loaded; run the importer", logging.Fields{
			"area_file": cfg.Catalog.AreaFile,
			"error":     err.Error(),
		})
	}

	var publisher services.UpdatePublisher
	if cfg.Kafka.Enabled() {
		kafkaPublisher := notify.NewKafkaPublisher(cfg.Kafka, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	client := jma.NewClient(cfg.JMA.BaseURL, cfg.JMA.Timeout, logger)
	forecastService := services.NewForecastService(
		forecastRepo,
		client,
		publisher,
		nil,
		services.NewFreshnessPolicy(cfg.Cache.FreshnessEnabled, location, nil),
		logger,
		metricsCollector,
	)

	forecastHandler := handlers.NewForecastHandler(catalogService, forecastService, db, cfg.Cache.FetchWait, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()
	forecastHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	// Let in-flight fetches finish writing before the database closes.
	forecastService.Wait()

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
