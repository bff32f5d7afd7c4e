package scoring

// Normalization references for the edge score components.
const (
	// yieldExcellent is a top-tier gross yield for a French garage (%)
	yieldExcellent = 12.0
	// yieldPoor maps to a zero yield score (%)
	yieldPoor = 2.0
	// commercialMax is the POI count within the search radius considered "dense"
	commercialMax = 30.0

	// neutralPriceScore applies when neither surface nor baseline is usable
	neutralPriceScore = 50.0
	// neutralYieldScore applies when the gross yield is absent
	neutralYieldScore = 40.0
)

// EdgeInput carries every signal the composer fuses.
// Nil pointers mean the signal is absent and its documented neutral
// default applies.
type EdgeInput struct {
	Price                    float64
	Surface                  *float64
	CityAvgSellPerSqm        float64
	GrossYield               *float64
	TransportScore           float64
	CommercialDensity        float64
	Tags                     []string
	LiquidityScore           float64
	MLPriceDeviation         *float64
	VerticalStoragePotential float64
}

// ComputeEdgeScore fuses five independently normalized sub-scores into a
// single 0-100 investment attractiveness score using the given weights.
// The weighted sum is clamped, so misconfigured weights produce a score
// outside the intended scale rather than an error.
func ComputeEdgeScore(in EdgeInput, w Weights) float64 {
	priceDev := priceDeviationScore(in.Price, in.Surface, in.CityAvgSellPerSqm, in.MLPriceDeviation)
	yld := yieldScore(in.GrossYield)
	storage := storageScore(in.VerticalStoragePotential, in.Tags)
	demand := demandScore(in.TransportScore, in.CommercialDensity)
	liquidity := clamp(in.LiquidityScore)

	raw := priceDev*w.PriceDeviation +
		yld*w.Yield +
		storage*w.Storage +
		demand*w.Demand +
		liquidity*w.Liquidity

	return round2(clamp(raw))
}

// priceDeviationScore rates how far below fair value a listing sits
// (100 = extremely undervalued). The externally supplied ML deviation is
// preferred; otherwise fair value is derived from the city baseline.
func priceDeviationScore(price float64, surface *float64, cityAvgSellPerSqm float64, mlDeviation *float64) float64 {
	if mlDeviation != nil {
		// mlDeviation = (ml_price - listing_price) / ml_price * 100;
		// positive means the listing is cheaper than the model's estimate
		return clamp((*mlDeviation + 10) * 3.0)
	}

	if surface == nil || *surface <= 0 || cityAvgSellPerSqm <= 0 {
		return neutralPriceScore
	}

	fairPrice := *surface * cityAvgSellPerSqm
	deviationPct := (fairPrice - price) / fairPrice * 100 // positive = below fair
	// -30% overpriced maps to 0, fair value to 50, +30% underpriced to 100
	return clamp(50.0 + deviationPct*1.67)
}

// yieldScore normalizes gross yield linearly between yieldPoor and yieldExcellent
func yieldScore(grossYield *float64) float64 {
	if grossYield == nil {
		return neutralYieldScore
	}
	score := (*grossYield - yieldPoor) / (yieldExcellent - yieldPoor) * 100.0
	return clamp(score)
}

// storageScore starts from the metrics-layer vertical storage potential
// and adds bonuses for electricity (lighting/shelving) and a tall ceiling.
// The tag bonuses deliberately stack on top of what the potential already
// encodes; the deployed scoring behaves this way.
func storageScore(verticalStoragePotential float64, tags []string) float64 {
	set := normalizeTags(tags)
	score := verticalStoragePotential
	if _, ok := set["électricité"]; ok {
		score += 10.0
	}
	if _, ok := set["hauteur 2.5m"]; ok {
		score += 10.0
	}
	return clamp(score)
}

// demandScore combines transit access and commercial density
func demandScore(transportScore, commercialDensity float64) float64 {
	transportNorm := clamp(transportScore)
	commercialNorm := clamp(commercialDensity / commercialMax * 100.0)
	return transportNorm*0.6 + commercialNorm*0.4
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
