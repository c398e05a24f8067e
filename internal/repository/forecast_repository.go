package repository

import (
	"context"
	"database/sql"
	"time"

	"jma-forecast/internal/models"
	"jma-forecast/pkg/database"
	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

// ForecastRepository is the persistent forecast cache. Every failure is
// returned as *models.StorageError.
type ForecastRepository interface {
	HasData(ctx context.Context, officeCode string) (bool, error)
	UpsertAll(ctx context.Context, rows []models.ForecastRow) error
	ReadByOffice(ctx context.Context, officeCode string) ([]models.ForecastRow, error)
	LatestForecastDate(ctx context.Context, officeCode string) (string, error)
	DeleteByOffice(ctx context.Context, officeCode string) (int64, error)
}

type forecastRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewForecastRepository creates a new forecast repository
func NewForecastRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ForecastRepository {
	return &forecastRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const upsertForecastSQL = `
	INSERT INTO weather_forecasts (
		office_code, area_name, forecast_date, time_slot, weather, pop
	)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (office_code, area_name, forecast_date, time_slot) DO UPDATE SET
		weather = excluded.weather,
		pop = excluded.pop
`

// HasData reports whether at least one row is cached for the office
func (r *forecastRepository) HasData(ctx context.Context, officeCode string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT 1 FROM weather_forecasts WHERE office_code = ? LIMIT 1
		) AS present
	`

	var count int
	if err := r.db.GetContext(ctx, "has_forecast", &count, query, officeCode); err != nil {
		return false, storageErr("has_forecast", err)
	}
	return count > 0, nil
}

// UpsertAll writes rows in a single transaction. A row whose key already
// exists replaces the stored weather and pop.
func (r *forecastRepository) UpsertAll(ctx context.Context, rows []models.ForecastRow) error {
	if len(rows) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		r.logger.Debug(ctx, "[REPO_UPSERT_FORECASTS] Batch upsert completed", logging.Fields{
			"count":       len(rows),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return storageErr("begin_upsert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, tx.Rebind(upsertForecastSQL))
	if err != nil {
		return storageErr("prepare_upsert", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.OfficeCode,
			row.AreaName,
			row.ForecastDate,
			row.TimeSlot,
			row.Weather,
			row.Pop,
		)
		if err != nil {
			r.metrics.RecordDBError("upsert_error")
			return storageErr("upsert_forecast", err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("commit_error")
		return storageErr("commit_upsert", err)
	}

	r.metrics.ForecastRowsUpserted.Add(float64(len(rows)))
	return nil
}

// ReadByOffice returns the cached rows ordered by area, date and time slot
func (r *forecastRepository) ReadByOffice(ctx context.Context, officeCode string) ([]models.ForecastRow, error) {
	query := `
		SELECT office_code, area_name, forecast_date, time_slot, weather, pop
		FROM weather_forecasts
		WHERE office_code = ?
		ORDER BY area_name, forecast_date, time_slot
	`

	rows := make([]models.ForecastRow, 0)
	if err := r.db.SelectContext(ctx, "read_forecasts", &rows, query, officeCode); err != nil {
		return nil, storageErr("read_forecasts", err)
	}
	return rows, nil
}

// LatestForecastDate returns the newest cached forecast date for the office,
// or "" when nothing is cached
func (r *forecastRepository) LatestForecastDate(ctx context.Context, officeCode string) (string, error) {
	query := `SELECT MAX(forecast_date) FROM weather_forecasts WHERE office_code = ?`

	var latest sql.NullString
	if err := r.db.GetContext(ctx, "latest_forecast_date", &latest, query, officeCode); err != nil {
		return "", storageErr("latest_forecast_date", err)
	}
	return latest.String, nil
}

// DeleteByOffice drops every cached row of the office
func (r *forecastRepository) DeleteByOffice(ctx context.Context, officeCode string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "delete_forecasts",
		`DELETE FROM weather_forecasts WHERE office_code = ?`, officeCode)
	if err != nil {
		return 0, storageErr("delete_forecasts", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("delete_forecasts", err)
	}

	r.logger.Info(ctx, "[REPO_DELETE_FORECASTS] Cached forecast purged", logging.Fields{
		"office_code": officeCode,
		"rows":        n,
	})
	return n, nil
}
