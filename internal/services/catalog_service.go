package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"jma-forecast/internal/models"
	"jma-forecast/internal/repository"
	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

// CatalogService loads the JMA area hierarchy into the catalog store
type CatalogService struct {
	repo    repository.CatalogRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// ImportResult contains import statistics
type ImportResult struct {
	Regions          int
	Offices          int
	UnnamedOffices   int
	DuplicateOffices int
	Duration         time.Duration
}

// areaDocument is the subset of area.json the catalog needs
type areaDocument struct {
	Centers map[string]areaCenter `json:"centers"`
	Offices map[string]areaOffice `json:"offices"`
}

type areaCenter struct {
	Name     string   `json:"name"`
	Children []string `json:"children"`
}

type areaOffice struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo repository.CatalogRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *CatalogService {
	return &CatalogService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ImportDocument parses an area.json document and replaces the catalog with
// its centers and their offices
func (s *CatalogService) ImportDocument(ctx context.Context, r io.Reader) (*ImportResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[CATALOG_IMPORT_START] Starting catalog import", logging.Fields{
		"stage": "INITIALIZATION",
	})

	var doc areaDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode area document: %w", err)
	}
	if len(doc.Centers) == 0 {
		return nil, fmt.Errorf("area document has no centers")
	}

	regions, offices, result := buildCatalog(doc)

	s.logger.Info(ctx, "[CATALOG_PARSED] Area document parsed", logging.Fields{
		"regions":           len(regions),
		"offices":           len(offices),
		"unnamed_offices":   result.UnnamedOffices,
		"duplicate_offices": result.DuplicateOffices,
		"stage":             "PARSING",
	})

	if err := s.repo.ReplaceCatalog(ctx, regions, offices); err != nil {
		return nil, fmt.Errorf("failed to replace catalog: %w", err)
	}

	result.Duration = time.Since(startTime)
	s.metrics.CatalogImportDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[CATALOG_IMPORT_COMPLETE] Catalog import completed", logging.Fields{
		"regions":          result.Regions,
		"offices":          result.Offices,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return result, nil
}

// ImportFile imports the catalog from an area.json file on disk
func (s *CatalogService) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open area file: %w", err)
	}
	defer file.Close()

	return s.ImportDocument(ctx, file)
}

// EnsureLoaded imports the file when the catalog is empty or force is set.
// It returns nil, nil when the existing catalog is kept.
func (s *CatalogService) EnsureLoaded(ctx context.Context, path string, force bool) (*ImportResult, error) {
	if !force {
		count, err := s.repo.CountRegions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count regions: %w", err)
		}
		if count > 0 {
			s.logger.Debug(ctx, "[CATALOG_PRESENT] Catalog already loaded", logging.Fields{
				"regions": count,
			})
			return nil, nil
		}
	}

	return s.ImportFile(ctx, path)
}

// ListRegions returns every region
func (s *CatalogService) ListRegions(ctx context.Context) ([]models.Region, error) {
	return s.repo.ListRegions(ctx)
}

// ListOffices returns the offices of a region
func (s *CatalogService) ListOffices(ctx context.Context, regionCode string) ([]models.Office, error) {
	return s.repo.ListOffices(ctx, regionCode)
}

// GetOffice retrieves a single office
func (s *CatalogService) GetOffice(ctx context.Context, officeCode string) (*models.Office, error) {
	return s.repo.GetOffice(ctx, officeCode)
}

// buildCatalog flattens centers into regions ordered by code, each followed by
// its children in document order. A child missing from the offices table
// keeps an empty name; an office listed under two centers stays with the
// first.
func buildCatalog(doc areaDocument) ([]models.Region, []models.Office, *ImportResult) {
	codes := make([]string, 0, len(doc.Centers))
	for code := range doc.Centers {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	result := &ImportResult{}
	regions := make([]models.Region, 0, len(codes))
	offices := make([]models.Office, 0)
	seen := make(map[string]bool)

	for _, code := range codes {
		center := doc.Centers[code]
		regions = append(regions, models.Region{Code: code, Name: center.Name})

		for _, officeCode := range center.Children {
			if seen[officeCode] {
				result.DuplicateOffices++
				continue
			}
			seen[officeCode] = true

			info, ok := doc.Offices[officeCode]
			if !ok || info.Name == "" {
				result.UnnamedOffices++
			}
			offices = append(offices, models.Office{
				RegionCode: code,
				OfficeCode: officeCode,
				Name:       info.Name,
			})
		}
	}

	result.Regions = len(regions)
	result.Offices = len(offices)
	return regions, offices, result
}
