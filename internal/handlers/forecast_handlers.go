package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"jma-forecast/internal/export"
	"jma-forecast/internal/models"
	"jma-forecast/internal/repository"
	"jma-forecast/internal/services"
	"jma-forecast/pkg/logging"
	"jma-forecast/pkg/metrics"
)

const maxFetchWait = 30 * time.Second

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ForecastHandler handles catalog and forecast API endpoints
type ForecastHandler struct {
	catalog   *services.CatalogService
	forecasts *services.ForecastService
	health    HealthChecker
	fetchWait time.Duration
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewForecastHandler creates a new forecast handler. fetchWait is how long a
// forecast request waits for a background fetch before answering 202.
func NewForecastHandler(
	catalog *services.CatalogService,
	forecasts *services.ForecastService,
	health HealthChecker,
	fetchWait time.Duration,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ForecastHandler {
	return &ForecastHandler{
		catalog:   catalog,
		forecasts: forecasts,
		health:    health,
		fetchWait: fetchWait,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ListResponse wraps a list payload
type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int         `json:"total"`
}

// ForecastResponse is the body of GET /api/offices/{code}/forecast
type ForecastResponse struct {
	OfficeCode string               `json:"office_code"`
	OfficeName string               `json:"office_name"`
	Status     string               `json:"status"` // cached, fetched, fetching, failed
	Lines      []string             `json:"lines"`
	Rows       []models.ForecastRow `json:"rows,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// ListRegions handles GET /api/regions
func (h *ForecastHandler) ListRegions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/regions", time.Now())

	regions, err := h.catalog.ListRegions(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_REGIONS_ERROR] Failed to list regions", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/regions")
		h.sendError(w, r, "failed to retrieve regions", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/regions", "GET", "200")
	h.sendJSON(w, ListResponse{Data: regions, Total: len(regions)}, http.StatusOK)
}

// ListOffices handles GET /api/regions/{code}/offices
func (h *ForecastHandler) ListOffices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/regions/{code}/offices", time.Now())

	regionCode := mux.Vars(r)["code"]

	offices, err := h.catalog.ListOffices(ctx, regionCode)
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_OFFICES_ERROR] Failed to list offices", logging.Fields{
			"region_code": regionCode,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/regions/{code}/offices")
		h.sendError(w, r, "failed to retrieve offices", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/regions/{code}/offices", "GET", "200")
	h.sendJSON(w, ListResponse{Data: offices, Total: len(offices)}, http.StatusOK)
}

// GetForecast handles GET /api/offices/{code}/forecast. A cache hit answers
// at once; a miss waits up to ?wait= for the background fetch and answers
// 202 if it is still running.
func (h *ForecastHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const endpoint = "/api/offices/{code}/forecast"
	defer h.observe(endpoint, time.Now())

	officeCode := mux.Vars(r)["code"]
	ctx = logging.WithOfficeCode(ctx, officeCode)

	wait, err := h.parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	office, ok := h.lookupOffice(ctx, w, r, officeCode, endpoint)
	if !ok {
		return
	}

	result, err := h.forecasts.GetForecastDisplay(ctx, officeCode)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_FORECAST_ERROR] Failed to read forecast cache", logging.Fields{}, err)
		h.metrics.RecordAPIError("storage_error", endpoint)
		h.sendError(w, r, "failed to read forecast", http.StatusInternalServerError)
		return
	}

	resp := ForecastResponse{OfficeCode: officeCode, OfficeName: office.Name}

	if !result.Pending {
		resp.Status = "cached"
		resp.Lines = result.Lines
		resp.Rows = result.Rows
		h.metrics.RecordAPIRequest(endpoint, "GET", "200")
		h.sendJSON(w, resp, http.StatusOK)
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case completion := <-result.Done:
		resp.Lines = completion.Lines
		if completion.Err != nil {
			resp.Status = "failed"
			resp.Error = completion.Err.Error()
			h.metrics.RecordAPIError("fetch_failed", endpoint)
			h.metrics.RecordAPIRequest(endpoint, "GET", "502")
			h.sendJSON(w, resp, http.StatusBadGateway)
			return
		}
		resp.Status = "fetched"
		resp.Rows = completion.Rows
		h.metrics.RecordAPIRequest(endpoint, "GET", "200")
		h.sendJSON(w, resp, http.StatusOK)
	case <-timer.C:
		resp.Status = "fetching"
		resp.Lines = []string{}
		h.metrics.RecordAPIRequest(endpoint, "GET", "202")
		h.sendJSON(w, resp, http.StatusAccepted)
	case <-ctx.Done():
		h.logger.Debug(ctx, "[API_GET_FORECAST_CANCELLED] Client went away before fetch finished", logging.Fields{})
	}
}

// PurgeForecast handles DELETE /api/offices/{code}/forecast
func (h *ForecastHandler) PurgeForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const endpoint = "/api/offices/{code}/forecast"
	defer h.observe(endpoint, time.Now())

	officeCode := mux.Vars(r)["code"]
	ctx = logging.WithOfficeCode(ctx, officeCode)

	n, err := h.forecasts.Purge(ctx, officeCode)
	if err != nil {
		h.logger.Error(ctx, "[API_PURGE_FORECAST_ERROR] Failed to purge forecast", logging.Fields{}, err)
		h.metrics.RecordAPIError("storage_error", endpoint)
		h.sendError(w, r, "failed to purge forecast", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "DELETE", "200")
	h.sendJSON(w, map[string]interface{}{
		"office_code": officeCode,
		"deleted":     n,
	}, http.StatusOK)
}

// ExportForecast handles GET /api/offices/{code}/forecast.xlsx
func (h *ForecastHandler) ExportForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const endpoint = "/api/offices/{code}/forecast.xlsx"
	defer h.observe(endpoint, time.Now())

	officeCode := mux.Vars(r)["code"]
	ctx = logging.WithOfficeCode(ctx, officeCode)

	rows, err := h.forecasts.CachedRows(ctx, officeCode)
	if err != nil {
		h.logger.Error(ctx, "[API_EXPORT_ERROR] Failed to read cached forecast", logging.Fields{}, err)
		h.metrics.RecordAPIError("storage_error", endpoint)
		h.sendError(w, r, "failed to read forecast", http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		h.sendError(w, r, "no cached forecast for office "+officeCode, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="forecast-%s.xlsx"`, officeCode))
	if err := export.WriteWorkbook(w, officeCode, rows); err != nil {
		h.logger.Error(ctx, "[API_EXPORT_ERROR] Failed to write workbook", logging.Fields{}, err)
		h.metrics.RecordAPIError("export_error", endpoint)
		return
	}
	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
}

// HealthCheck handles GET /health
func (h *ForecastHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.health.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Database unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

func (h *ForecastHandler) lookupOffice(ctx context.Context, w http.ResponseWriter, r *http.Request, officeCode, endpoint string) (*models.Office, bool) {
	office, err := h.catalog.GetOffice(ctx, officeCode)
	if err == nil {
		return office, true
	}

	var notFound *repository.NotFoundError
	if errors.As(err, &notFound) {
		h.sendError(w, r, notFound.Error(), http.StatusNotFound)
		return nil, false
	}

	h.logger.Error(ctx, "[API_GET_OFFICE_ERROR] Failed to look up office", logging.Fields{}, err)
	h.metrics.RecordAPIError("storage_error", endpoint)
	h.sendError(w, r, "failed to look up office", http.StatusInternalServerError)
	return nil, false
}

func (h *ForecastHandler) parseWait(raw string) (time.Duration, error) {
	if raw == "" {
		return h.fetchWait, nil
	}
	wait, err := time.ParseDuration(raw)
	if err != nil || wait < 0 {
		return 0, fmt.Errorf("invalid wait %q, expected a duration such as 5s", raw)
	}
	if wait > maxFetchWait {
		wait = maxFetchWait
	}
	return wait, nil
}

func (h *ForecastHandler) observe(endpoint string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// sendJSON sends a JSON response
func (h *ForecastHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *ForecastHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all forecast API routes
func (h *ForecastHandler) RegisterRoutes(router *mux.Router) {
	router.Use(RequestIDMiddleware(h.logger))

	router.HandleFunc("/api/regions", h.ListRegions).Methods("GET")
	router.HandleFunc("/api/regions/{code}/offices", h.ListOffices).Methods("GET")
	router.HandleFunc("/api/offices/{code}/forecast", h.GetForecast).Methods("GET")
	router.HandleFunc("/api/offices/{code}/forecast", h.PurgeForecast).Methods("DELETE")
	router.HandleFunc("/api/offices/{code}/forecast.xlsx", h.ExportForecast).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
