package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jma-forecast/internal/models"
	"jma-forecast/pkg/database"
	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "cache.db"),
	}, logging.NewDiscardLogger(), metrics.NewTestCollector())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background(), "up"))
	return db
}

func newForecastRepo(t *testing.T) ForecastRepository {
	return NewForecastRepository(newTestDB(t), logging.NewDiscardLogger(), metrics.NewTestCollector())
}

func tokyoRows() []models.ForecastRow {
	return []models.ForecastRow{
		{OfficeCode: "130000", AreaName: "東京地方", ForecastDate: "2024-01-01", TimeSlot: "17:00", Weather: "晴れ", Pop: "10"},
		{OfficeCode: "130000", AreaName: "東京地方", ForecastDate: "2024-01-02", TimeSlot: "00:00", Weather: "くもり", Pop: "30"},
	}
}

func TestForecastRepository_HasData(t *testing.T) {
	ctx := context.Background()
	repo := newForecastRepo(t)

	has, err := repo.HasData(ctx, "130000")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, repo.UpsertAll(ctx, tokyoRows()))

	has, err = repo.HasData(ctx, "130000")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasData(ctx, "270000")
	require.NoError(t, err)
	assert.False(t, has, "other offices stay empty")
}

func TestForecastRepository_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newForecastRepo(t)

	require.NoError(t, repo.UpsertAll(ctx, tokyoRows()))
	require.NoError(t, repo.UpsertAll(ctx, tokyoRows()))

	rows, err := repo.ReadByOffice(ctx, "130000")
	require.NoError(t, err)
	if diff := cmp.Diff(tokyoRows(), rows); diff != "" {
		t.Errorf("ReadByOffice() mismatch (-want +got):\n%s", diff)
	}
}

func TestForecastRepository_UpsertReplacesValues(t *testing.T) {
	ctx := context.Background()
	repo := newForecastRepo(t)

	require.NoError(t, repo.UpsertAll(ctx, tokyoRows()))
	require.NoError(t, repo.UpsertAll(ctx, []models.ForecastRow{
		{OfficeCode: "130000", AreaName: "東京地方", ForecastDate: "2024-01-01", TimeSlot: "17:00", Weather: "雨", Pop: ""},
	}))

	rows, err := repo.ReadByOffice(ctx, "130000")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "雨", rows[0].Weather)
	assert.Equal(t, "", rows[0].Pop, "an empty pop replaces the stored one")
	assert.Equal(t, "くもり", rows[1].Weather)
}

func TestForecastRepository_UpsertAllIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewForecastRepository(db, logging.NewDiscardLogger(), metrics.NewTestCollector())

	// Aborts on the second row of tokyoRows.
	_, err := db.ExecContext(ctx, "create_trigger", `
		CREATE TRIGGER fail_midnight BEFORE INSERT ON weather_forecasts
		WHEN NEW.time_slot = '00:00'
		BEGIN
			SELECT RAISE(ABORT, 'boom');
		END
	`)
	require.NoError(t, err)

	err = repo.UpsertAll(ctx, tokyoRows())
	var storageErr *models.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "upsert_forecast", storageErr.Op)
	assert.Contains(t, err.Error(), "boom")

	has, err := repo.HasData(ctx, "130000")
	require.NoError(t, err)
	assert.False(t, has, "the first row must roll back with the batch")
}

func TestForecastRepository_ReadByOfficeOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newForecastRepo(t)

	require.NoError(t, repo.UpsertAll(ctx, []models.ForecastRow{
		{OfficeCode: "130000", AreaName: "伊豆諸島北部", ForecastDate: "2024-01-02", TimeSlot: "00:00", Weather: "雪"},
		{OfficeCode: "130000", AreaName: "東京地方", ForecastDate: "2024-01-02", TimeSlot: "00:00", Weather: "雨"},
		{OfficeCode: "130000", AreaName: "伊豆諸島北部", ForecastDate: "2024-01-01", TimeSlot: "18:00", Pop: "20"},
		{OfficeCode: "130000", AreaName: "伊豆諸島北部", ForecastDate: "2024-01-01", TimeSlot: "06:00", Pop: "10"},
		{OfficeCode: "270000", AreaName: "大阪府", ForecastDate: "2024-01-01", TimeSlot: "06:00", Pop: "0"},
	}))

	rows, err := repo.ReadByOffice(ctx, "130000")
	require.NoError(t, err)

	got := make([]string, 0, len(rows))
	for _, r := range rows {
		got = append(got, r.AreaName+" "+r.ForecastDate+" "+r.TimeSlot)
	}
	want := []string{
		"伊豆諸島北部 2024-01-01 06:00",
		"伊豆諸島北部 2024-01-01 18:00",
		"伊豆諸島北部 2024-01-02 00:00",
		"東京地方 2024-01-02 00:00",
	}
	assert.Equal(t, want, got)
}

func TestForecastRepository_ReadByOfficeEmpty(t *testing.T) {
	rows, err := newForecastRepo(t).ReadByOffice(context.Background(), "130000")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestForecastRepository_LatestForecastDate(t *testing.T) {
	ctx := context.Background()
	repo := newForecastRepo(t)

	latest, err := repo.LatestForecastDate(ctx, "130000")
	require.NoError(t, err)
	assert.Equal(t, "", latest)

	require.NoError(t, repo.UpsertAll(ctx, tokyoRows()))

	latest, err = repo.LatestForecastDate(ctx, "130000")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", latest)
}

func TestForecastRepository_DeleteByOffice(t *testing.T) {
	ctx := context.Background()
	repo := newForecastRepo(t)

	require.NoError(t, repo.UpsertAll(ctx, tokyoRows()))
	require.NoError(t, repo.UpsertAll(ctx, []models.ForecastRow{
		{OfficeCode: "270000", AreaName: "大阪府", ForecastDate: "2024-01-01", TimeSlot: "06:00", Pop: "0"},
	}))

	n, err := repo.DeleteByOffice(ctx, "130000")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	has, err := repo.HasData(ctx, "130000")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = repo.HasData(ctx, "270000")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestForecastRepository_StorageErrorAfterClose(t *testing.T) {
	db := newTestDB(t)
	repo := NewForecastRepository(db, logging.NewDiscardLogger(), metrics.NewTestCollector())
	require.NoError(t, db.Close())

	err := repo.UpsertAll(context.Background(), tokyoRows())
	var storageErr *models.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "begin_upsert", storageErr.Op)

	_, err = repo.HasData(context.Background(), "130000")
	require.ErrorAs(t, err, &storageErr)
}

func TestCatalogRepository_ReplaceAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(newTestDB(t), logging.NewDiscardLogger(), metrics.NewTestCollector())

	count, err := repo.CountRegions(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	regions := []models.Region{
		{Code: "010300", Name: "関東甲信地方"},
		{Code: "010600", Name: "近畿地方"},
	}
	offices := []models.Office{
		{RegionCode: "010300", OfficeCode: "130000", Name: "東京都"},
		{RegionCode: "010300", OfficeCode: "080000", Name: "茨城県"},
		{RegionCode: "010600", OfficeCode: "270000", Name: "大阪府"},
	}
	require.NoError(t, repo.ReplaceCatalog(ctx, regions, offices))

	gotRegions, err := repo.ListRegions(ctx)
	require.NoError(t, err)
	assert.Equal(t, regions, gotRegions)

	gotOffices, err := repo.ListOffices(ctx, "010300")
	require.NoError(t, err)
	want := []models.Office{
		{RegionCode: "010300", OfficeCode: "080000", Name: "茨城県"},
		{RegionCode: "010300", OfficeCode: "130000", Name: "東京都"},
	}
	assert.Equal(t, want, gotOffices)

	office, err := repo.GetOffice(ctx, "270000")
	require.NoError(t, err)
	assert.Equal(t, "大阪府", office.Name)

	count, err = repo.CountRegions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCatalogRepository_ReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(newTestDB(t), logging.NewDiscardLogger(), metrics.NewTestCollector())

	require.NoError(t, repo.ReplaceCatalog(ctx,
		[]models.Region{{Code: "010300", Name: "関東甲信地方"}},
		[]models.Office{{RegionCode: "010300", OfficeCode: "130000", Name: "東京都"}},
	))
	require.NoError(t, repo.ReplaceCatalog(ctx,
		[]models.Region{{Code: "010600", Name: "近畿地方"}},
		[]models.Office{{RegionCode: "010600", OfficeCode: "270000", Name: "大阪府"}},
	))

	regions, err := repo.ListRegions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Region{{Code: "010600", Name: "近畿地方"}}, regions)

	_, err = repo.GetOffice(ctx, "130000")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "office not found: 130000", notFound.Error())
}

func TestCatalogRepository_ReplaceRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(newTestDB(t), logging.NewDiscardLogger(), metrics.NewTestCollector())

	require.NoError(t, repo.ReplaceCatalog(ctx,
		[]models.Region{{Code: "010300", Name: "関東甲信地方"}},
		[]models.Office{{RegionCode: "010300", OfficeCode: "130000", Name: "東京都"}},
	))

	// Duplicate office codes violate the primary key.
	err := repo.ReplaceCatalog(ctx,
		[]models.Region{{Code: "010600", Name: "近畿地方"}},
		[]models.Office{
			{RegionCode: "010600", OfficeCode: "270000", Name: "大阪府"},
			{RegionCode: "010600", OfficeCode: "270000", Name: "大阪府"},
		},
	)
	var storageErr *models.StorageError
	require.ErrorAs(t, err, &storageErr)

	office, err := repo.GetOffice(ctx, "130000")
	require.NoError(t, err)
	assert.Equal(t, "東京都", office.Name)
}
