package geo

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// countResponse mimics an Overpass `out count;` answer
func countResponse(total string) string {
	return `{"elements":[{"tags":{"total":` + total + `}}]}`
}

func TestFetchSignal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.FormValue("data")
		switch {
		case strings.Contains(query, "public_transport"):
			io.WriteString(w, countResponse(`"5"`)) // string total
		case strings.Contains(query, "shop"):
			io.WriteString(w, countResponse(`12`)) // numeric total
		default:
			http.Error(w, "unexpected query", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, fastPolicy(3), testLogger())
	signal, err := client.FetchSignal(context.Background(), 48.85, 2.35)

	require.NoError(t, err)
	assert.InDelta(t, 60.0, signal.TransportScore, 0.001) // 5 stations * 12
	assert.InDelta(t, 12.0, signal.CommercialDensity, 0.001)
}

func TestFetchSignalOutage(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, fastPolicy(3), testLogger())
	_, err := client.FetchSignal(context.Background(), 48.85, 2.35)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "spatial service unavailable")
	// both queries exhaust their 3 attempts
	assert.Equal(t, int64(6), requests.Load())
}

func TestFetchSignalPartialFailureDegradesToZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.FormValue("data")
		if strings.Contains(query, "public_transport") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, countResponse(`7`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, fastPolicy(2), testLogger())
	signal, err := client.FetchSignal(context.Background(), 45.76, 4.83)

	require.NoError(t, err)
	assert.Zero(t, signal.TransportScore)
	assert.InDelta(t, 7.0, signal.CommercialDensity, 0.001)
}

func TestFetchSignalRecoversAfterRetry(t *testing.T) {
	var failures atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, countResponse(`3`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, fastPolicy(3), testLogger())
	signal, err := client.FetchSignal(context.Background(), 48.85, 2.35)

	require.NoError(t, err)
	assert.InDelta(t, 36.0, signal.TransportScore, 0.001)
	assert.InDelta(t, 3.0, signal.CommercialDensity, 0.001)
}

func TestFetchSignalEmptyElements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"elements":[]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, fastPolicy(1), testLogger())
	signal, err := client.FetchSignal(context.Background(), 48.85, 2.35)

	require.NoError(t, err)
	assert.Zero(t, signal.TransportScore)
	assert.Zero(t, signal.CommercialDensity)
}

func TestTransportScore(t *testing.T) {
	tests := []struct {
		stations int
		expected float64
	}{
		{0, 0},
		{1, 12},
		{5, 60},
		{9, 100}, // 9*12 would exceed the cap
		{10, 100},
		{40, 100},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, transportScore(tt.stations), 0.001,
			"stations=%d", tt.stations)
	}
}

func TestQueriesEmbedBoundingBox(t *testing.T) {
	transit := transitQuery(48.85, 2.35)
	assert.Contains(t, transit, "48.843000,2.340000,48.857000,2.360000")
	assert.Contains(t, transit, `"highway"="bus_stop"`)
	assert.Contains(t, transit, "out count;")

	commercial := commercialQuery(48.85, 2.35)
	assert.Contains(t, commercial, "48.843000,2.340000,48.857000,2.360000")
	assert.Contains(t, commercial, "restaurant|cafe|bank|pharmacy")
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 2*time.Second, policy.Delay(1))
	assert.Equal(t, 4*time.Second, policy.Delay(2))
	assert.Equal(t, 8*time.Second, policy.Delay(3))
	assert.Equal(t, 10*time.Second, policy.Delay(4)) // capped
	assert.Equal(t, 10*time.Second, policy.Delay(10))
}

func TestCountTagsTotal(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected int
		wantErr  bool
	}{
		{"string total", `{"total":"15"}`, 15, false},
		{"numeric total", `{"total":15}`, 15, false},
		{"missing total", `{"nodes":"3"}`, 0, false},
		{"garbage total", `{"total":"many"}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tags countTags
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &tags))
			n, err := tags.total()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}
