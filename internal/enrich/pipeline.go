// Package enrich orchestrates the per-listing enrichment pipeline:
// market baseline, geo demand signal, financial metrics, ML price
// deviation and the final edge score.
package enrich

import (
	"context"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"boxinvest/internal/geo"
	"boxinvest/internal/market"
	"boxinvest/internal/scoring"
)

// Conservative demand defaults used when coordinates are missing or the
// spatial service is down.
const (
	fallbackTransportScore    = 30.0
	fallbackCommercialDensity = 5.0
)

// BaselineProvider resolves the market baseline for a city
type BaselineProvider interface {
	Baseline(city string) market.Baseline
}

// GeoFetcher measures the demand signal around a coordinate
type GeoFetcher interface {
	FetchSignal(ctx context.Context, lat, lon float64) (geo.Signal, error)
}

// Input is one listing's attributes as supplied by the batch driver.
// Optional attributes are pointers; nil means not provided.
type Input struct {
	ListingID        string
	Price            float64
	Surface          *float64
	City             string
	Lat              *float64
	Lon              *float64
	Tags             []string
	PhotosCount      int
	MLEstimatedPrice *float64
}

// Record is the flat enrichment result for one listing. It is always
// fully populated: every field has its own absent-value fallback, so a
// degraded upstream signal never leaves a hole.
type Record struct {
	AvgRentArea              float64  `json:"avg_rent_area"`
	PopulationDensity        float64  `json:"population_density"`
	CommercialDensity        float64  `json:"commercial_density"`
	TransportScore           float64  `json:"transport_score"`
	LiquidityScore           float64  `json:"liquidity_score"`
	AccessibilityScore       float64  `json:"accessibility_score"`
	VerticalStoragePotential float64  `json:"vertical_storage_potential"`
	PricePerSqm              *float64 `json:"price_per_sqm"`
	EstimatedRentLow         *float64 `json:"estimated_rent_low"`
	EstimatedRentHigh        *float64 `json:"estimated_rent_high"`
	GrossYield               *float64 `json:"gross_yield"`
	StorageYieldEstimate     *float64 `json:"storage_yield_estimate"`
	MLEstimatedPrice         *float64 `json:"ml_estimated_price"`
	MLPriceDeviation         *float64 `json:"ml_price_deviation"`
	EdgeScore                float64  `json:"edge_score"`
}

// Pipeline sequences the enrichment stages for one listing at a time.
// Stages are strictly sequential; each depends on the previous output.
type Pipeline struct {
	baselines BaselineProvider
	geo       GeoFetcher
	weights   scoring.Weights
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewPipeline wires the pipeline from its capabilities
func NewPipeline(baselines BaselineProvider, geoFetcher GeoFetcher, weights scoring.Weights, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		baselines: baselines,
		geo:       geoFetcher,
		weights:   weights,
		logger:    logger.With(slog.String("component", "enrichment_pipeline")),
		tracer:    otel.Tracer("boxinvest/enrich"),
	}
}

// Enrich runs the full pipeline for one listing and returns a complete
// record. No upstream I/O failure escapes as an error: the geo stage
// degrades to the conservative default signal, metrics degrade to
// absent fields, and the composer applies neutral defaults.
func (p *Pipeline) Enrich(ctx context.Context, in Input) Record {
	ctx, span := p.tracer.Start(ctx, "enrich.listing",
		trace.WithAttributes(
			attribute.String("listing_id", in.ListingID),
			attribute.String("city", in.City),
		))
	defer span.End()

	baseline := p.baselines.Baseline(in.City)

	signal := geo.Signal{
		TransportScore:    fallbackTransportScore,
		CommercialDensity: fallbackCommercialDensity,
	}
	if in.Lat != nil && in.Lon != nil {
		fetched, err := p.geo.FetchSignal(ctx, *in.Lat, *in.Lon)
		if err != nil {
			p.logger.WarnContext(ctx, "geo enrichment failed, using defaults",
				slog.String("listing_id", in.ListingID),
				slog.String("error", err.Error()))
		} else {
			signal = fetched
		}
	}

	metrics := scoring.ComputeMetrics(scoring.MetricsInput{
		Price:         in.Price,
		Surface:       in.Surface,
		AvgRentPerSqm: baseline.AvgRentPerSqm,
		Tags:          in.Tags,
		PhotosCount:   in.PhotosCount,
	})

	var mlDeviation *float64
	if in.MLEstimatedPrice != nil && *in.MLEstimatedPrice > 0 {
		deviation := (*in.MLEstimatedPrice - in.Price) / *in.MLEstimatedPrice * 100
		deviation = math.Round(deviation*100) / 100
		mlDeviation = &deviation
	}

	edgeScore := scoring.ComputeEdgeScore(scoring.EdgeInput{
		Price:                    in.Price,
		Surface:                  in.Surface,
		CityAvgSellPerSqm:        baseline.AvgSellPerSqm,
		GrossYield:               metrics.GrossYield,
		TransportScore:           signal.TransportScore,
		CommercialDensity:        signal.CommercialDensity,
		Tags:                     in.Tags,
		LiquidityScore:           metrics.LiquidityScore,
		MLPriceDeviation:         mlDeviation,
		VerticalStoragePotential: metrics.VerticalStoragePotential,
	}, p.weights)

	span.SetAttributes(attribute.Float64("edge_score", edgeScore))

	return Record{
		AvgRentArea:              baseline.AvgRentPerSqm,
		PopulationDensity:        baseline.PopulationDensity,
		CommercialDensity:        signal.CommercialDensity,
		TransportScore:           signal.TransportScore,
		LiquidityScore:           metrics.LiquidityScore,
		AccessibilityScore:       metrics.AccessibilityScore,
		VerticalStoragePotential: metrics.VerticalStoragePotential,
		PricePerSqm:              metrics.PricePerSqm,
		EstimatedRentLow:         metrics.EstimatedRentLow,
		EstimatedRentHigh:        metrics.EstimatedRentHigh,
		GrossYield:               metrics.GrossYield,
		StorageYieldEstimate:     metrics.StorageYieldEstimate,
		MLEstimatedPrice:         in.MLEstimatedPrice,
		MLPriceDeviation:         mlDeviation,
		EdgeScore:                edgeScore,
	}
}
