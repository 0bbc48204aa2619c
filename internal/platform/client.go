// Package platform implements the client for the external geospatial data
// platform: point time-series extraction of satellite covariates, with
// bounded retry for transient failures and an LRU cache over responses.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// Client implements domain.CovariateSource against the platform's HTTP
// time-series API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	maxRetries int
	logger     *slog.Logger
}

// NewClient creates a platform client from the settings resource.
func NewClient(cfg config.Platform, logger *slog.Logger) *Client {
	return &Client{
		token: cfg.Token,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout),
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// FetchSeries queries one dataset's bands at a point over a date range.
// Transient failures (429, 5xx, network errors) are retried with
// exponential backoff up to the configured attempt limit. A 404 or an
// empty sample list yields an empty series, not an error: absence of
// imagery is expected and handled by the compiler's drop rules.
func (c *Client) FetchSeries(ctx context.Context, q domain.SeriesQuery) (domain.Series, error) {
	params := url.Values{
		"dataset": {q.Dataset},
		"bands":   {strings.Join(q.Bands, ",")},
		"lon":     {strconv.FormatFloat(q.Longitude, 'f', 6, 64)},
		"lat":     {strconv.FormatFloat(q.Latitude, 'f', 6, 64)},
		"start":   {q.Start.Format("2006-01-02")},
		"end":     {q.End.Format("2006-01-02")},
	}
	fullURL := c.baseURL + "/v1/timeseries?" + params.Encode()

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff, maxBackoff)
		}

		series, retryable, err := c.doRequest(ctx, fullURL)
		if err == nil {
			return series, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("platform request failed, retrying",
			"dataset", q.Dataset,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"error", err,
		)
	}
	return nil, fmt.Errorf("platform request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// doRequest performs one HTTP attempt. The second return reports whether
// the failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.Series, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("timeseries request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, &domain.AuthError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	case resp.StatusCode == http.StatusNotFound:
		return domain.Series{}, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("platform API error: status %d", resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("platform API error: status %d: %s", resp.StatusCode, body)
	}

	var tsResp response
	if err := json.NewDecoder(resp.Body).Decode(&tsResp); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}

	series := make(domain.Series, len(tsResp.Samples))
	for _, s := range tsResp.Samples {
		day, err := time.ParseInLocation("2006-01-02", s.Date, time.UTC)
		if err != nil {
			return nil, false, fmt.Errorf("decode response: invalid sample date %q", s.Date)
		}
		values := make(map[string]float64, len(s.Values))
		for band, v := range s.Values {
			if v == nil {
				continue
			}
			values[band] = *v
		}
		if len(values) > 0 {
			series[day] = values
		}
	}
	return series, false, nil
}

// Platform API response types. Band values are nullable: a sample may
// exist for a day with some bands masked out (clouds, swath edges).

type response struct {
	Samples []sample `json:"samples"`
}

type sample struct {
	Date   string              `json:"date"`
	Values map[string]*float64 `json:"values"`
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
