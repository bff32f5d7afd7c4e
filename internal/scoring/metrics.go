// Package scoring computes per-listing financial metrics and fuses them
// with market and demand signals into a normalized 0-100 edge score.
// Everything here is pure: no I/O, no hidden state.
package scoring

import (
	"math"
	"strings"
)

// Tag vocabularies as they appear on listings (lowercased French tags).
var (
	// highAccessibilityTags mark equipment that eases day-to-day access
	highAccessibilityTags = tagSet("digicode", "télécommande", "électricité", "eau", "vidéosurveillance", "24h/24")
	// heightTags mark ceilings tall enough for vertical racking
	heightTags = tagSet("hauteur 2m", "hauteur 2.5m")
	// securityTags support resale value
	securityTags = tagSet("gardiennage", "vidéosurveillance", "interphone", "digicode")
)

// storageYieldPremium reflects storage rental vs open parking (approx. 30% higher yield)
const storageYieldPremium = 1.30

// MetricsInput carries the listing attributes the calculator needs.
// Surface is nil when the listing does not state one.
type MetricsInput struct {
	Price         float64
	Surface       *float64
	AvgRentPerSqm float64
	Tags          []string
	PhotosCount   int
}

// ListingMetrics is the set of derived financial metrics for a listing.
// Pointer fields are nil when the listing has no usable surface (and for
// yields, no positive price). Scores are rounded to 2 decimals, ratios
// to 3.
type ListingMetrics struct {
	PricePerSqm              *float64 `json:"price_per_sqm"`
	EstimatedRentLow         *float64 `json:"estimated_rent_low"`
	EstimatedRentHigh        *float64 `json:"estimated_rent_high"`
	GrossYield               *float64 `json:"gross_yield"`
	StorageYieldEstimate     *float64 `json:"storage_yield_estimate"`
	AccessibilityScore       float64  `json:"accessibility_score"`
	VerticalStoragePotential float64  `json:"vertical_storage_potential"`
	LiquidityScore           float64  `json:"liquidity_score"`
}

// ComputeMetrics derives all financial metrics for one listing.
// Deterministic for identical inputs; missing surface degrades the
// surface-dependent fields to nil instead of failing.
func ComputeMetrics(in MetricsInput) ListingMetrics {
	tags := normalizeTags(in.Tags)

	var m ListingMetrics

	hasSurface := in.Surface != nil && *in.Surface > 0
	if hasSurface {
		surface := *in.Surface

		m.PricePerSqm = ptr(round2(in.Price / surface))

		baseRent := in.AvgRentPerSqm * surface
		m.EstimatedRentLow = ptr(round2(baseRent * 0.85))
		m.EstimatedRentHigh = ptr(round2(baseRent * 1.15))

		if in.Price > 0 {
			annualRent := baseRent * 12
			grossYield := round3(annualRent / in.Price * 100)
			m.GrossYield = ptr(grossYield)
			m.StorageYieldEstimate = ptr(round3(grossYield * storageYieldPremium))
		}
	}

	highAccess := countIntersection(tags, highAccessibilityTags)
	accessibility := float64(highAccess) * 20.0
	if in.PhotosCount >= 3 {
		accessibility += 10.0
	}
	m.AccessibilityScore = round2(math.Min(100, accessibility))

	hasHeight := countIntersection(tags, heightTags) > 0
	bigEnough := hasSurface && *in.Surface >= 12
	switch {
	case hasHeight && bigEnough:
		m.VerticalStoragePotential = 80.0
	case hasHeight || bigEnough:
		m.VerticalStoragePotential = 45.0
	default:
		m.VerticalStoragePotential = 20.0
	}

	liquidity := float64(in.PhotosCount)*5.0 +
		float64(countIntersection(tags, securityTags))*8.0
	if hasSurface && *in.Surface >= 15 {
		liquidity += 20.0
	}
	m.LiquidityScore = round2(math.Min(100, liquidity))

	return m
}

// normalizeTags lowercases tags into a set
func normalizeTags(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[strings.ToLower(tag)] = struct{}{}
	}
	return set
}

func tagSet(tags ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return set
}

func countIntersection(tags, vocabulary map[string]struct{}) int {
	count := 0
	for tag := range tags {
		if _, ok := vocabulary[tag]; ok {
			count++
		}
	}
	return count
}

func ptr(v float64) *float64 { return &v }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
