package jma

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"jma-forecast/internal/models"
	"jma-forecast/pkg/logging"
)

// DefaultBaseURL is the root of the JMA bosai data API
const DefaultBaseURL = "https://www.jma.go.jp/bosai"

const (
	userAgent    = "jma-forecast/1.0"
	maxBodyBytes = 8 << 20
)

// Client fetches forecast and area documents from the JMA bosai API.
// Every call is a single attempt; the client timeout is its only deadline.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.StructuredLogger
}

// NewClient creates a JMA API client. An empty baseURL means DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, logger *logging.StructuredLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// FetchForecast downloads and decodes the forecast of one office
func (c *Client) FetchForecast(ctx context.Context, officeCode string) (models.ForecastPayload, error) {
	u := fmt.Sprintf("%s/forecast/data/forecast/%s.json", c.baseURL, officeCode)

	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, &models.FetchError{OfficeCode: officeCode, Err: err}
	}
	if status != http.StatusOK {
		return nil, &models.FetchError{OfficeCode: officeCode, StatusCode: status}
	}

	return models.ParseForecastPayload(body)
}

// FetchAreaDocument downloads area.json, the region/office hierarchy
func (c *Client) FetchAreaDocument(ctx context.Context) ([]byte, error) {
	u := c.baseURL + "/common/const/area.json"

	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("area document request: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("area document: unexpected status %d %s", status, http.StatusText(status))
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "[JMA_REQUEST_ERROR] Request failed", logging.Fields{
			"url":   fullURL,
			"error": err.Error(),
		})
		return nil, 0, err
	}
	defer resp.Body.Close()

	c.logger.Debug(ctx, "[JMA_RESPONSE] Response received", logging.Fields{
		"url":         fullURL,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}
