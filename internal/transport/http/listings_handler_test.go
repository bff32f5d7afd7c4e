package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxinvest/internal/enrich"
	"boxinvest/internal/geo"
	"boxinvest/internal/market"
	"boxinvest/internal/metrics"
	"boxinvest/internal/ml"
	"boxinvest/internal/scoring"
	"boxinvest/internal/services"
	"boxinvest/internal/storage"
)

func f(v float64) *float64 { return &v }

// stubGeo serves a fixed signal without network access
type stubGeo struct {
	signal geo.Signal
}

func (s stubGeo) FetchSignal(context.Context, float64, float64) (geo.Signal, error) {
	return s.signal, nil
}

type apiFixture struct {
	router *chi.Mux
	store  *storage.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cache := market.NewCache()
	baselines := market.NewStore(cache)
	pipeline := enrich.NewPipeline(baselines,
		stubGeo{signal: geo.Signal{TransportScore: 60, CommercialDensity: 12}},
		scoring.DefaultWeights(), logger)
	registry := metrics.NewRegistry(prometheus.NewRegistry())
	enrichment := services.NewEnrichmentService(store, pipeline, ml.NopEstimator{}, baselines, registry, logger)

	router := chi.NewRouter()
	router.Use(render.SetContentType(render.ContentTypeJSON))
	NewListingsHandler(store, enrichment, logger).RegisterRoutes(router)
	NewAnalyticsHandler(store, logger).RegisterRoutes(router)

	return &apiFixture{router: router, store: store}
}

func (fx *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func validCreateRequest() map[string]any {
	return map[string]any{
		"source":             "leboncoin",
		"external_id":        "lbc-123",
		"url":                "https://example.test/annonces/lbc-123",
		"title":              "Box fermé 15m²",
		"price":              50000,
		"surface":            15,
		"city":               "Lyon",
		"postal_code":        "69003",
		"lat":                45.76,
		"lon":                4.83,
		"photos_count":       4,
		"accessibility_tags": []string{"digicode", "gardiennage"},
	}
}

func TestCreateListingEnrichesImmediately(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/listings", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["created"])
	id, ok := body["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	// the enrichment record exists right after creation
	enrichment, err := fx.store.GetEnrichment(context.Background(), id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, enrichment.EdgeScore, 0.0)
	assert.InDelta(t, 60.0, enrichment.TransportScore, 0.001)
}

func TestCreateListingDuplicateReturnsExisting(t *testing.T) {
	fx := newAPIFixture(t)

	first := fx.do(t, http.MethodPost, "/listings", validCreateRequest())
	require.Equal(t, http.StatusCreated, first.Code)
	firstID := decodeBody(t, first)["id"]

	second := fx.do(t, http.MethodPost, "/listings", validCreateRequest())
	require.Equal(t, http.StatusOK, second.Code)
	body := decodeBody(t, second)
	assert.Equal(t, false, body["created"])
	assert.Equal(t, firstID, body["id"])
}

func TestCreateListingValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing source", func(m map[string]any) { delete(m, "source") }},
		{"missing title", func(m map[string]any) { delete(m, "title") }},
		{"zero price", func(m map[string]any) { m["price"] = 0 }},
		{"negative surface", func(m map[string]any) { m["surface"] = -3 }},
		{"latitude out of range", func(m map[string]any) { m["lat"] = 123.0 }},
		{"bad url", func(m map[string]any) { m["url"] = "not a url" }},
		{"negative photos count", func(m map[string]any) { m["photos_count"] = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newAPIFixture(t)
			req := validCreateRequest()
			tt.mutate(req)

			rec := fx.do(t, http.MethodPost, "/listings", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "VALIDATION_FAILED", body["error_code"])
		})
	}
}

func TestCreateListingMalformedBody(t *testing.T) {
	fx := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/listings", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRankedListings(t *testing.T) {
	fx := newAPIFixture(t)

	reqBody := validCreateRequest()
	fx.do(t, http.MethodPost, "/listings", reqBody)

	reqBody["external_id"] = "lbc-456"
	reqBody["city"] = "Paris"
	reqBody["price"] = 38000
	fx.do(t, http.MethodPost, "/listings", reqBody)

	rec := fx.do(t, http.MethodGet, "/listings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["count"])

	rec = fx.do(t, http.MethodGet, "/listings?city=Paris", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
}

func TestListRankedListingsInvalidLimit(t *testing.T) {
	fx := newAPIFixture(t)

	for _, limit := range []string{"0", "501", "abc"} {
		rec := fx.do(t, http.MethodGet, "/listings?limit="+limit, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit %q", limit)
	}
}

func TestGetListingWithEnrichment(t *testing.T) {
	fx := newAPIFixture(t)

	created := fx.do(t, http.MethodPost, "/listings", validCreateRequest())
	id := decodeBody(t, created)["id"].(string)

	rec := fx.do(t, http.MethodGet, "/listings/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Contains(t, body, "listing")
	require.Contains(t, body, "enrichment")

	enrichment := body["enrichment"].(map[string]any)
	assert.Contains(t, enrichment, "edge_score")
	assert.Contains(t, enrichment, "gross_yield")
}

func TestGetListingNotFound(t *testing.T) {
	fx := newAPIFixture(t)
	rec := fx.do(t, http.MethodGet, "/listings/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnrichListingEndpoint(t *testing.T) {
	fx := newAPIFixture(t)

	created := fx.do(t, http.MethodPost, "/listings", validCreateRequest())
	id := decodeBody(t, created)["id"].(string)

	rec := fx.do(t, http.MethodPost, "/listings/"+id+"/enrich", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, id, body["listing_id"])
	assert.Contains(t, body, "enrichment")
}

func TestEnrichListingNotFound(t *testing.T) {
	fx := newAPIFixture(t)
	rec := fx.do(t, http.MethodPost, "/listings/missing/enrich", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsSummaryEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	fx.do(t, http.MethodPost, "/listings", validCreateRequest())

	rec := fx.do(t, http.MethodGet, "/analytics/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["total_listings"])
	assert.EqualValues(t, 1, body["enriched"])
}
