package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"jma-forecast/internal/config"
	"jma-forecast/internal/jma"
	"jma-forecast/internal/repository"
	"jma-forecast/internal/services"
	"jma-forecast/pkg/database"
	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

func main() {
	// Parse command-line flags
	areaFile := flag.String("file", "", "area.json to import (default: AREA_FILE)")
	download := flag.Bool("download", false, "Download area.json from JMA instead of reading a file")
	save := flag.String("save", "", "With -download, also write the document to this path")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *areaFile == "" {
		*areaFile = cfg.Catalog.AreaFile
	}

	logger := logging.NewStructuredLogger("jma-forecast-importer", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	logger.SetFormat(cfg.Logging.Format, os.Stderr)

	ctx := context.Background()
	logger.Info(ctx, "[IMPORTER_START] Starting region catalog import", logging.Fields{
		"area_file": *areaFile,
		"download":  *download,
	})

	metricsCollector := metrics.NewCollector("jma_forecast_importer", prometheus.NewRegistry())

	db, err := database.Open(cfg.DatabaseOptions(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, "up"); err != nil {
		logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to apply schema", logging.Fields{}, err)
	}

	catalogService := services.NewCatalogService(
		repository.NewCatalogRepository(db, logger, metricsCollector),
		logger,
		metricsCollector,
	)

	var source io.Reader
	if *download {
		client := jma.NewClient(cfg.JMA.BaseURL, cfg.JMA.Timeout, logger)
		doc, err := client.FetchAreaDocument(ctx)
		if err != nil {
			logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to download area document", logging.Fields{}, err)
		}
		if *save != "" {
			if err := os.WriteFile(*save, doc, 0o644); err != nil {
				logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to save area document", logging.Fields{
					"path": *save,
				}, err)
			}
		}
		source = bytes.NewReader(doc)
	} else {
		file, err := os.Open(*areaFile)
		if err != nil {
			logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to open area document", logging.Fields{
				"path": *areaFile,
			}, err)
		}
		defer file.Close()
		source = file
	}

	result, err := catalogService.ImportDocument(ctx, source)
	if err != nil {
		logger.Fatal(ctx, "[IMPORTER_ERROR] Import failed", logging.Fields{}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("CATALOG IMPORT COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Regions:            %d\n", result.Regions)
	fmt.Printf("Offices:            %d\n", result.Offices)
	fmt.Printf("Unnamed offices:    %d\n", result.UnnamedOffices)
	fmt.Printf("Duplicate offices:  %d\n", result.DuplicateOffices)
	fmt.Printf("Duration:           %v\n", result.Duration)

	logger.Info(ctx, "[IMPORTER_COMPLETE] Import completed successfully", logging.Fields{
		"regions":          result.Regions,
		"offices":          result.Offices,
		"duration_seconds": result.Duration.Seconds(),
	})
}
