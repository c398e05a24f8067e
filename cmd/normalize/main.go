package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"jma-forecast/internal/config"
	"jma-forecast/internal/export"
	"jma-forecast/internal/jma"
	"jma-forecast/internal/models"
	"jma-forecast/internal/services"
	"jma-forecast/pkg/logging"
)

// normalize turns one forecast payload into display lines without touching
// the cache. The payload comes from a file or is fetched live.
func main() {
	officeCode := flag.String("office", "", "Office code, e.g. 130000")
	payloadFile := flag.String("file", "", "Read the payload from this file instead of fetching")
	xlsxOut := flag.String("xlsx", "", "Also write the rows to this workbook")
	flag.Parse()

	if *officeCode == "" {
		fmt.Fprintln(os.Stderr, "-office is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("jma-forecast-normalize", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	logger.SetFormat("text", os.Stderr)

	ctx := logging.WithOfficeCode(context.Background(), *officeCode)

	var payload models.ForecastPayload
	if *payloadFile != "" {
		data, err := os.ReadFile(*payloadFile)
		if err != nil {
			logger.Fatal(ctx, "[NORMALIZE_ERROR] Failed to read payload", logging.Fields{
				"path": *payloadFile,
			}, err)
		}
		payload, err = models.ParseForecastPayload(data)
		if err != nil {
			logger.Fatal(ctx, "[NORMALIZE_ERROR] Failed to parse payload", logging.Fields{}, err)
		}
	} else {
		client := jma.NewClient(cfg.JMA.BaseURL, cfg.JMA.Timeout, logger)
		payload, err = client.FetchForecast(ctx, *officeCode)
		if err != nil {
			logger.Fatal(ctx, "[NORMALIZE_ERROR] Failed to fetch forecast", logging.Fields{}, err)
		}
	}

	rows, err := models.NormalizeForecast(*officeCode, payload)
	if err != nil {
		logger.Fatal(ctx, "[NORMALIZE_ERROR] Failed to normalize forecast", logging.Fields{}, err)
	}
	models.SortRows(rows)

	areas := make(map[string]struct{})
	withPop := 0
	for _, row := range rows {
		areas[row.AreaName] = struct{}{}
		if row.Pop != "" {
			withPop++
		}
	}

	lines := services.FormatForecast(rows)
	if len(lines) == 0 {
		lines = []string{services.UnavailableMessage}
	}
	for _, line := range lines {
		fmt.Println(line)
	}

	if *xlsxOut != "" {
		file, err := os.Create(*xlsxOut)
		if err != nil {
			logger.Fatal(ctx, "[NORMALIZE_ERROR] Failed to create workbook", logging.Fields{
				"path": *xlsxOut,
			}, err)
		}
		if err := export.WriteWorkbook(file, *officeCode, rows); err != nil {
			file.Close()
			logger.Fatal(ctx, "[NORMALIZE_ERROR] Failed to write workbook", logging.Fields{}, err)
		}
		if err := file.Close(); err != nil {
			logger.Fatal(ctx, "[NORMALIZE_ERROR] Failed to close workbook", logging.Fields{}, err)
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("NORMALIZATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Payload entries:    %d\n", len(payload))
	fmt.Printf("Areas:              %d\n", len(areas))
	fmt.Printf("Rows:               %d\n", len(rows))
	fmt.Printf("Rows with pop:      %d\n", withPop)
}
