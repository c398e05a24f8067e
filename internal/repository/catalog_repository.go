package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"jma-forecast/internal/models"
	"jma-forecast/pkg/database"
	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

// CatalogRepository stores the region/office hierarchy
type CatalogRepository interface {
	ReplaceCatalog(ctx context.Context, regions []models.Region, offices []models.Office) error
	ListRegions(ctx context.Context) ([]models.Region, error)
	ListOffices(ctx context.Context, regionCode string) ([]models.Office, error)
	GetOffice(ctx context.Context, officeCode string) (*models.Office, error)
	CountRegions(ctx context.Context) (int, error)
}

type catalogRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) CatalogRepository {
	return &catalogRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ReplaceCatalog overwrites the whole hierarchy in one transaction
func (r *catalogRepository) ReplaceCatalog(ctx context.Context, regions []models.Region, offices []models.Office) error {
	timer := time.Now()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return storageErr("begin_replace_catalog", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM offices`); err != nil {
		return storageErr("clear_offices", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM regions`); err != nil {
		return storageErr("clear_regions", err)
	}

	regionStmt, err := tx.PrepareContext(ctx, tx.Rebind(`INSERT INTO regions (code, name) VALUES (?, ?)`))
	if err != nil {
		return storageErr("prepare_regions", err)
	}
	defer regionStmt.Close()

	for _, region := range regions {
		if _, err := regionStmt.ExecContext(ctx, region.Code, region.Name); err != nil {
			r.metrics.RecordDBError("insert_error")
			return storageErr("insert_region", err)
		}
	}

	officeStmt, err := tx.PrepareContext(ctx, tx.Rebind(`INSERT INTO offices (office_code, region_code, name) VALUES (?, ?, ?)`))
	if err != nil {
		return storageErr("prepare_offices", err)
	}
	defer officeStmt.Close()

	for _, office := range offices {
		if _, err := officeStmt.ExecContext(ctx, office.OfficeCode, office.RegionCode, office.Name); err != nil {
			r.metrics.RecordDBError("insert_error")
			return storageErr("insert_office", err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("commit_error")
		return storageErr("commit_replace_catalog", err)
	}

	r.metrics.UpdateCatalogEntries(len(regions), len(offices))
	r.logger.Info(ctx, "[REPO_REPLACE_CATALOG] Region catalog replaced", logging.Fields{
		"regions":     len(regions),
		"offices":     len(offices),
		"duration_ms": time.Since(timer).Milliseconds(),
	})
	return nil
}

// ListRegions returns every region ordered by code
func (r *catalogRepository) ListRegions(ctx context.Context) ([]models.Region, error) {
	regions := make([]models.Region, 0)
	err := r.db.SelectContext(ctx, "list_regions", &regions,
		`SELECT code, name FROM regions ORDER BY code`)
	if err != nil {
		return nil, storageErr("list_regions", err)
	}
	return regions, nil
}

// ListOffices returns the offices of a region ordered by office code
func (r *catalogRepository) ListOffices(ctx context.Context, regionCode string) ([]models.Office, error) {
	query := `
		SELECT region_code, office_code, name
		FROM offices
		WHERE region_code = ?
		ORDER BY office_code
	`

	offices := make([]models.Office, 0)
	if err := r.db.SelectContext(ctx, "list_offices", &offices, query, regionCode); err != nil {
		return nil, storageErr("list_offices", err)
	}
	return offices, nil
}

// GetOffice retrieves a single office
func (r *catalogRepository) GetOffice(ctx context.Context, officeCode string) (*models.Office, error) {
	query := `SELECT region_code, office_code, name FROM offices WHERE office_code = ?`

	var office models.Office
	err := r.db.GetContext(ctx, "get_office", &office, query, officeCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "office", ID: officeCode}
		}
		return nil, storageErr("get_office", err)
	}
	return &office, nil
}

// CountRegions returns the number of stored regions
func (r *catalogRepository) CountRegions(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, "count_regions", &count, `SELECT COUNT(*) FROM regions`); err != nil {
		return 0, storageErr("count_regions", err)
	}
	return count, nil
}
