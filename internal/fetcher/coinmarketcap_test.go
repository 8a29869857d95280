package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestCMC(t *testing.T, handler http.HandlerFunc) *CoinMarketCap {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewCoinMarketCap(CoinMarketCapOptions{
		APIKey:  "key",
		BaseURL: srv.URL,
		Symbol:  "btc",
		Convert: "usd",
		Timeout: time.Second,
	}, noopLogger())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestCoinMarketCapFetchSuccess(t *testing.T) {
	cmc := newTestCMC(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, coinMarketCapQuotePath, r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-CMC_PRO_API_KEY"))
		assert.Equal(t, "BTC", r.URL.Query().Get("symbol"))
		assert.Equal(t, "USD", r.URL.Query().Get("convert"))

		writeJSON(w, http.StatusOK, map[string]any{
			"status": map[string]any{"error_code": 0},
			"data": map[string]any{
				"BTC": map[string]any{
					"symbol": "BTC",
					"quote": map[string]any{
						"USD": map[string]any{"price": 67123.456},
					},
				},
			},
		})
	})

	price, err := cmc.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 67123.456, price)
}

func TestCoinMarketCapMissingAPIKey(t *testing.T) {
	cmc := NewCoinMarketCap(CoinMarketCapOptions{}, noopLogger())
	_, err := cmc.FetchPrice(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestCoinMarketCapUnauthorized(t *testing.T) {
	cmc := newTestCMC(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"status": map[string]any{"error_code": 1002, "error_message": "API key missing."},
		})
	})

	_, err := cmc.FetchPrice(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Contains(t, perr.Error(), "API key missing.")
}

func TestCoinMarketCapMalformedPayload(t *testing.T) {
	testCases := []struct {
		name string
		body map[string]any
	}{
		{
			name: "missing symbol",
			body: map[string]any{"data": map[string]any{}},
		},
		{
			name: "missing price",
			body: map[string]any{"data": map[string]any{
				"BTC": map[string]any{"quote": map[string]any{"USD": map[string]any{}}},
			}},
		},
		{
			name: "zero price",
			body: map[string]any{"data": map[string]any{
				"BTC": map[string]any{"quote": map[string]any{"USD": map[string]any{"price": 0}}},
			}},
		},
		{
			name: "status error code",
			body: map[string]any{"status": map[string]any{"error_code": 1008, "error_message": "rate limited"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmc := newTestCMC(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tc.body)
			})
			_, err := cmc.FetchPrice(context.Background())
			require.ErrorIs(t, err, ErrProviderUnavailable)
		})
	}
}

func TestCoinMarketCapTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cmc := NewCoinMarketCap(CoinMarketCapOptions{APIKey: "key", BaseURL: url, Timeout: time.Second}, noopLogger())
	_, err := cmc.FetchPrice(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestStaticSource(t *testing.T) {
	price, err := Static{Price: 42}.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.0, price)
}
