package platform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/soil-moisture-etl/internal/config"
	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

func testQuery() domain.SeriesQuery {
	return domain.SeriesQuery{
		Dataset:   "COPERNICUS/S2_SR",
		Bands:     []string{"B8", "B4"},
		Latitude:  64.182,
		Longitude: 19.557,
		Start:     time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2021, 5, 31, 0, 0, 0, 0, time.UTC),
	}
}

func newTestClient(serverURL string, maxRetries int) *Client {
	return NewClient(config.Platform{
		BaseURL:    serverURL,
		Timeout:    config.Duration(5 * time.Second),
		MaxRetries: maxRetries,
		Token:      "test-token",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchSeries(t *testing.T) {
	t.Run("decodes samples and query is well formed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/timeseries", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			q := r.URL.Query()
			assert.Equal(t, "COPERNICUS/S2_SR", q.Get("dataset"))
			assert.Equal(t, "B8,B4", q.Get("bands"))
			assert.Equal(t, "64.182000", q.Get("lat"))
			assert.Equal(t, "19.557000", q.Get("lon"))
			assert.Equal(t, "2021-05-01", q.Get("start"))
			assert.Equal(t, "2021-05-31", q.Get("end"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"samples":[
				{"date":"2021-05-03","values":{"B8":0.31,"B4":0.08}},
				{"date":"2021-05-08","values":{"B8":0.28,"B4":0.09}}
			]}`))
		}))
		defer server.Close()

		series, err := newTestClient(server.URL, 0).FetchSeries(context.Background(), testQuery())

		require.NoError(t, err)
		require.Len(t, series, 2)
		day := time.Date(2021, 5, 3, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, 0.31, series[day]["B8"])
		assert.Equal(t, 0.08, series[day]["B4"])
	})

	t.Run("null bands are dropped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"samples":[
				{"date":"2021-05-03","values":{"B8":0.31,"B4":null}},
				{"date":"2021-05-04","values":{"B8":null,"B4":null}}
			]}`))
		}))
		defer server.Close()

		series, err := newTestClient(server.URL, 0).FetchSeries(context.Background(), testQuery())

		require.NoError(t, err)
		require.Len(t, series, 1)
		day := time.Date(2021, 5, 3, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, 0.31, series[day]["B8"])
		_, hasB4 := series[day]["B4"]
		assert.False(t, hasB4)
	})

	t.Run("401 is a fatal auth error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "token expired", http.StatusUnauthorized)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL, 3).FetchSeries(context.Background(), testQuery())

		var authErr *domain.AuthError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, http.StatusUnauthorized, authErr.Status)
		assert.Contains(t, authErr.Detail, "token expired")
	})

	t.Run("404 yields empty series without error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer server.Close()

		series, err := newTestClient(server.URL, 0).FetchSeries(context.Background(), testQuery())

		require.NoError(t, err)
		assert.NotNil(t, series)
		assert.Empty(t, series)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"samples":[{"date":"2021-05-03","values":{"B8":0.3,"B4":0.1}}]}`))
		}))
		defer server.Close()

		series, err := newTestClient(server.URL, 3).FetchSeries(context.Background(), testQuery())

		require.NoError(t, err)
		assert.Len(t, series, 1)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL, 2).FetchSeries(context.Background(), testQuery())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad bands parameter", http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL, 3).FetchSeries(context.Background(), testQuery())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("invalid sample date", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"samples":[{"date":"05/03/2021","values":{"B8":0.3}}]}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL, 0).FetchSeries(context.Background(), testQuery())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid sample date")
	})

	t.Run("cancelled context aborts retry wait", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newTestClient(server.URL, 5).FetchSeries(ctx, testQuery())
		require.Error(t, err)
	})
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		name     string
		current  time.Duration
		expected time.Duration
	}{
		{"doubles", 200 * time.Millisecond, 400 * time.Millisecond},
		{"approaches cap", 3 * time.Second, 5 * time.Second},
		{"stays at cap", 5 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, nextBackoff(tt.current, 5*time.Second))
		})
	}
}
