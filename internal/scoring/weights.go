package scoring

import "boxinvest/internal/config"

// Weights contains the edge score component weights. They are a
// deployment-time contract: the five weights must sum to 1.0. The
// composer does not reject misconfigured weights — clamping still bounds
// its output — so validation is the operator's job via IsValid.
type Weights struct {
	PriceDeviation float64 `json:"price_deviation"`
	Yield          float64 `json:"yield"`
	Storage        float64 `json:"storage"`
	Demand         float64 `json:"demand"`
	Liquidity      float64 `json:"liquidity"`
}

// DefaultWeights returns the reference weighting:
// price deviation 30%, yield 25%, storage 20%, demand 15%, liquidity 10%.
func DefaultWeights() Weights {
	return Weights{
		PriceDeviation: 0.30,
		Yield:          0.25,
		Storage:        0.20,
		Demand:         0.15,
		Liquidity:      0.10,
	}
}

// WeightsFromConfig maps the configuration section onto Weights
func WeightsFromConfig(cfg config.ScoringConfig) Weights {
	return Weights{
		PriceDeviation: cfg.WeightPriceDeviation,
		Yield:          cfg.WeightYield,
		Storage:        cfg.WeightStorage,
		Demand:         cfg.WeightDemand,
		Liquidity:      cfg.WeightLiquidity,
	}
}

// Sum returns the total of all five weights
func (w Weights) Sum() float64 {
	return w.PriceDeviation + w.Yield + w.Storage + w.Demand + w.Liquidity
}

// IsValid checks that all weights are non-negative and sum to 1,
// allowing for small floating point error.
func (w Weights) IsValid() bool {
	sum := w.Sum()
	return w.PriceDeviation >= 0 && w.Yield >= 0 && w.Storage >= 0 &&
		w.Demand >= 0 && w.Liquidity >= 0 &&
		sum > 0.99 && sum < 1.01
}
