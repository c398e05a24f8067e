package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"jma-forecast/internal/models"
	"jma-forecast/internal/repository"
	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

// Fetcher retrieves the raw forecast payload of an office
type Fetcher interface {
	FetchForecast(ctx context.Context, officeCode string) (models.ForecastPayload, error)
}

// UpdatePublisher announces refreshed forecasts to other systems
type UpdatePublisher interface {
	PublishUpdate(ctx context.Context, update models.ForecastUpdate) error
}

// Completion is the outcome of a background fetch
type Completion struct {
	OfficeCode string
	Lines      []string
	Rows       []models.ForecastRow
	Err        error
}

// DisplayResult is what GetForecastDisplay hands back to a caller. Exactly
// one of Unavailable, Cached and Pending is set. When Pending, Done receives
// a single Completion once the background fetch finishes.
type DisplayResult struct {
	OfficeCode  string
	Lines       []string
	Rows        []models.ForecastRow
	Cached      bool
	Pending     bool
	Unavailable bool
	Done        <-chan Completion
}

// ForecastService serves forecast display lines from the cache and fetches
// on a miss without blocking the caller
type ForecastService struct {
	repo       repository.ForecastRepository
	fetcher    Fetcher
	publisher  UpdatePublisher
	dispatcher *Dispatcher
	freshness  FreshnessPolicy
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector

	group singleflight.Group
	wg    sync.WaitGroup
}

// NewForecastService creates a new forecast service. publisher and
// dispatcher may be nil.
func NewForecastService(
	repo repository.ForecastRepository,
	fetcher Fetcher,
	publisher UpdatePublisher,
	dispatcher *Dispatcher,
	freshness FreshnessPolicy,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ForecastService {
	return &ForecastService{
		repo:       repo,
		fetcher:    fetcher,
		publisher:  publisher,
		dispatcher: dispatcher,
		freshness:  freshness,
		logger:     logger,
		metrics:    metricsCollector,
	}
}

// GetForecastDisplay returns display lines for an office. Fresh cached rows
// are returned synchronously; otherwise a background fetch is started (or
// joined, when one is already running for the office) and the result is
// Pending.
func (s *ForecastService) GetForecastDisplay(ctx context.Context, officeCode string) (*DisplayResult, error) {
	if officeCode == "" {
		s.metrics.RecordLookup("unavailable")
		return &DisplayResult{
			Unavailable: true,
			Lines:       []string{UnavailableMessage},
		}, nil
	}

	ctx = logging.WithOfficeCode(ctx, officeCode)

	hasData, err := s.repo.HasData(ctx, officeCode)
	if err != nil {
		return nil, fmt.Errorf("check cache for %s: %w", officeCode, err)
	}

	if hasData {
		latest, err := s.repo.LatestForecastDate(ctx, officeCode)
		if err != nil {
			return nil, fmt.Errorf("check freshness for %s: %w", officeCode, err)
		}

		if s.freshness.IsFresh(latest) {
			rows, err := s.repo.ReadByOffice(ctx, officeCode)
			if err != nil {
				return nil, fmt.Errorf("read cache for %s: %w", officeCode, err)
			}

			s.metrics.RecordLookup("hit")
			s.logger.Debug(ctx, "[FORECAST_CACHE_HIT] Serving cached forecast", logging.Fields{
				"rows": len(rows),
			})
			return &DisplayResult{
				OfficeCode: officeCode,
				Lines:      FormatForecast(rows),
				Rows:       rows,
				Cached:     true,
			}, nil
		}

		s.metrics.RecordLookup("stale")
		s.logger.Info(ctx, "[FORECAST_CACHE_STALE] Cached forecast no longer covers today", logging.Fields{
			"latest_forecast_date": latest,
			"today":                s.freshness.Today(),
		})
	} else {
		s.metrics.RecordLookup("miss")
	}

	return &DisplayResult{
		OfficeCode: officeCode,
		Pending:    true,
		Done:       s.startFetch(ctx, officeCode),
	}, nil
}

// startFetch joins or launches the fetch for officeCode and returns a
// channel that receives its completion once.
func (s *ForecastService) startFetch(ctx context.Context, officeCode string) <-chan Completion {
	bg := context.WithoutCancel(ctx)

	// Registered before DoChan so the fn's publish goroutine never adds to
	// an idle group.
	s.wg.Add(1)

	// Only the leader's fn runs, so a caller whose fn never ran joined an
	// in-flight fetch. The results channel orders the write before the read.
	leader := false
	results := s.group.DoChan(officeCode, func() (interface{}, error) {
		leader = true

		completion, update := s.refresh(bg, officeCode)
		if s.dispatcher != nil {
			s.dispatcher.Publish(bg, completion)
		}
		if update != nil && s.publisher != nil {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.publishUpdate(bg, *update)
			}()
		}
		return completion, nil
	})

	done := make(chan Completion, 1)
	go func() {
		defer s.wg.Done()
		res := <-results
		if !leader {
			s.metrics.CoalescedRequestsTotal.Inc()
			s.logger.Debug(bg, "[FORECAST_FETCH_JOIN] Joined in-flight fetch", logging.Fields{})
		}
		done <- res.Val.(Completion)
		close(done)
	}()

	return done
}

// refresh runs fetch, normalize, upsert, re-read and format for one office.
// On any failure nothing is written and the completion carries the error.
// The returned update is non-nil only when rows were cached.
func (s *ForecastService) refresh(ctx context.Context, officeCode string) (Completion, *models.ForecastUpdate) {
	s.metrics.FetchesInFlight.Inc()
	defer s.metrics.FetchesInFlight.Dec()

	timer := s.metrics.NewTimer(s.metrics.ForecastFetchDuration)

	s.logger.Info(ctx, "[FORECAST_FETCH_START] Fetching forecast", logging.Fields{})

	rows, err := s.ingest(ctx, officeCode)
	duration := timer.ObserveDuration()

	if err != nil {
		outcome := fetchOutcome(err)
		s.metrics.RecordFetch(outcome)
		s.logger.Error(ctx, "[FORECAST_FETCH_ERROR] Forecast refresh failed", logging.Fields{
			"outcome":     outcome,
			"transient":   isTransient(err),
			"duration_ms": duration.Milliseconds(),
		}, err)
		return Completion{
			OfficeCode: officeCode,
			Lines:      []string{FailureMessage},
			Err:        err,
		}, nil
	}

	s.metrics.RecordFetch("success")
	s.logger.Info(ctx, "[FORECAST_FETCH_COMPLETE] Forecast cached", logging.Fields{
		"rows":        len(rows),
		"duration_ms": duration.Milliseconds(),
	})

	lines := FormatForecast(rows)
	if len(lines) == 0 {
		lines = []string{UnavailableMessage}
	}

	update := &models.ForecastUpdate{
		OfficeCode: officeCode,
		RowCount:   len(rows),
		FetchedAt:  time.Now().UTC(),
	}
	return Completion{
		OfficeCode: officeCode,
		Lines:      lines,
		Rows:       rows,
	}, update
}

// publishUpdate announces a refreshed office. Failures are only logged.
func (s *ForecastService) publishUpdate(ctx context.Context, update models.ForecastUpdate) {
	if err := s.publisher.PublishUpdate(ctx, update); err != nil {
		s.logger.Warn(ctx, "[FORECAST_PUBLISH_ERROR] Failed to publish forecast update", logging.Fields{
			"error": err.Error(),
		})
	}
}

func (s *ForecastService) ingest(ctx context.Context, officeCode string) ([]models.ForecastRow, error) {
	payload, err := s.fetcher.FetchForecast(ctx, officeCode)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", officeCode, err)
	}

	rows, err := models.NormalizeForecast(officeCode, payload)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", officeCode, err)
	}

	if err := s.repo.UpsertAll(ctx, rows); err != nil {
		return nil, fmt.Errorf("cache %s: %w", officeCode, err)
	}

	cached, err := s.repo.ReadByOffice(ctx, officeCode)
	if err != nil {
		return nil, fmt.Errorf("reread %s: %w", officeCode, err)
	}
	return cached, nil
}

// Purge drops the cached forecast of an office so the next request refetches
func (s *ForecastService) Purge(ctx context.Context, officeCode string) (int64, error) {
	n, err := s.repo.DeleteByOffice(ctx, officeCode)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", officeCode, err)
	}
	return n, nil
}

// CachedRows returns the cached rows of an office without fetching
func (s *ForecastService) CachedRows(ctx context.Context, officeCode string) ([]models.ForecastRow, error) {
	return s.repo.ReadByOffice(ctx, officeCode)
}

// Wait blocks until every background fetch started so far has delivered
// its completion.
func (s *ForecastService) Wait() {
	s.wg.Wait()
}

func fetchOutcome(err error) string {
	var fetchErr *models.FetchError
	var malformed *models.MalformedPayloadError
	var storageErr *models.StorageError

	switch {
	case errors.As(err, &fetchErr):
		return "fetch_error"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &storageErr):
		return "storage_error"
	default:
		return "fetch_error"
	}
}

func isTransient(err error) bool {
	var t interface{ IsTransient() bool }
	return errors.As(err, &t) && t.IsTransient()
}
