// Package ml consumes the trained price prediction capability. Training
// happens elsewhere; this client only asks an external model service for
// a price estimate and degrades to "no estimate" on any failure.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// Feature defaults substituted for missing listing attributes, matching
// what the model was trained with.
const (
	defaultSurface = 15.0
	defaultLat     = 48.85
	defaultLon     = 2.35
)

// Features is the model's input vector for one listing
type Features struct {
	Surface            *float64
	Lat                *float64
	Lon                *float64
	CityAvgSellPerSqm  float64
	TransportScore     float64
	AccessibilityScore float64
	PhotosCount        int
}

// Estimator is the price prediction capability: a price, or nil when the
// model is unavailable or declines to predict.
type Estimator interface {
	EstimatePrice(ctx context.Context, features Features) *float64
}

// NopEstimator always reports no estimate. Used when the model service
// is disabled and in tests.
type NopEstimator struct{}

// EstimatePrice implements Estimator
func (NopEstimator) EstimatePrice(context.Context, Features) *float64 { return nil }

// HTTPEstimator queries an external model service over HTTP
type HTTPEstimator struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPEstimator creates an estimator client for the given service URL
func NewHTTPEstimator(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPEstimator {
	return &HTTPEstimator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "ml_estimator")),
	}
}

// predictRequest is the model service request payload
type predictRequest struct {
	Surface            float64 `json:"surface"`
	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
	CityAvgSellPerSqm  float64 `json:"city_avg_sell_per_sqm"`
	TransportScore     float64 `json:"transport_score"`
	AccessibilityScore float64 `json:"accessibility_score"`
	PhotosCount        float64 `json:"photos_count"`
}

// predictResponse is the model service answer
type predictResponse struct {
	Price *float64 `json:"price"`
}

// EstimatePrice posts the feature vector to the model service. Any
// failure is logged and reported as "no estimate", never propagated.
func (e *HTTPEstimator) EstimatePrice(ctx context.Context, features Features) *float64 {
	payload := predictRequest{
		Surface:            valueOr(features.Surface, defaultSurface),
		Lat:                valueOr(features.Lat, defaultLat),
		Lon:                valueOr(features.Lon, defaultLon),
		CityAvgSellPerSqm:  features.CityAvgSellPerSqm,
		TransportScore:     features.TransportScore,
		AccessibilityScore: features.AccessibilityScore,
		PhotosCount:        float64(features.PhotosCount),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		e.logger.WarnContext(ctx, "encoding prediction request failed",
			slog.String("error", err.Error()))
		return nil
	}

	url := fmt.Sprintf("%s/predict", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		e.logger.WarnContext(ctx, "building prediction request failed",
			slog.String("error", err.Error()))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.WarnContext(ctx, "prediction request failed",
			slog.String("error", err.Error()))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.logger.WarnContext(ctx, "model service returned error status",
			slog.Int("status", resp.StatusCode))
		return nil
	}

	var prediction predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		e.logger.WarnContext(ctx, "decoding prediction failed",
			slog.String("error", err.Error()))
		return nil
	}

	if prediction.Price == nil || *prediction.Price <= 0 {
		return nil
	}
	rounded := math.Round(*prediction.Price*100) / 100
	return &rounded
}

func valueOr(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}
