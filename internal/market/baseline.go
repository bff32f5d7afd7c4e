// Package market resolves per-city reference statistics used to normalize
// listing prices. A static table covers every tracked city; the sale price
// baseline is substituted with a fresher transaction-derived value when the
// refresher has cached one.
package market

// Baseline holds per-city reference statistics.
//
// TransportScore is a 0-100 estimate of the city transit network quality
// and CommercialDensity an approximate POI count per km².
type Baseline struct {
	AvgRentPerSqm     float64 `json:"avg_rent_per_sqm"`
	PopulationDensity float64 `json:"population_density"`
	AvgSellPerSqm     float64 `json:"avg_sell_per_sqm"`
	TransportScore    float64 `json:"transport_score"`
	CommercialDensity float64 `json:"commercial_density"`
}

// cityTable contains approximate market data per tracked French city.
var cityTable = map[string]Baseline{
	"Paris":       {AvgRentPerSqm: 25.0, PopulationDensity: 21000, AvgSellPerSqm: 2800, TransportScore: 95.0, CommercialDensity: 28.0},
	"Lyon":        {AvgRentPerSqm: 13.0, PopulationDensity: 10500, AvgSellPerSqm: 1400, TransportScore: 78.0, CommercialDensity: 18.0},
	"Marseille":   {AvgRentPerSqm: 10.0, PopulationDensity: 3500, AvgSellPerSqm: 900, TransportScore: 65.0, CommercialDensity: 14.0},
	"Bordeaux":    {AvgRentPerSqm: 12.0, PopulationDensity: 5000, AvgSellPerSqm: 1300, TransportScore: 70.0, CommercialDensity: 16.0},
	"Toulouse":    {AvgRentPerSqm: 11.0, PopulationDensity: 4000, AvgSellPerSqm: 1100, TransportScore: 68.0, CommercialDensity: 15.0},
	"Nantes":      {AvgRentPerSqm: 12.0, PopulationDensity: 4500, AvgSellPerSqm: 1200, TransportScore: 72.0, CommercialDensity: 15.0},
	"Strasbourg":  {AvgRentPerSqm: 11.5, PopulationDensity: 3400, AvgSellPerSqm: 1050, TransportScore: 74.0, CommercialDensity: 14.0},
	"Montpellier": {AvgRentPerSqm: 10.5, PopulationDensity: 3200, AvgSellPerSqm: 950, TransportScore: 66.0, CommercialDensity: 13.0},
	"Lille":       {AvgRentPerSqm: 9.5, PopulationDensity: 7000, AvgSellPerSqm: 900, TransportScore: 76.0, CommercialDensity: 20.0},
	"Rennes":      {AvgRentPerSqm: 11.0, PopulationDensity: 3900, AvgSellPerSqm: 1050, TransportScore: 67.0, CommercialDensity: 13.0},
	"Nice":        {AvgRentPerSqm: 15.0, PopulationDensity: 4800, AvgSellPerSqm: 1500, TransportScore: 71.0, CommercialDensity: 17.0},
	"Grenoble":    {AvgRentPerSqm: 10.0, PopulationDensity: 4400, AvgSellPerSqm: 950, TransportScore: 69.0, CommercialDensity: 14.0},
}

// defaultBaseline is used for unrecognized or absent cities.
var defaultBaseline = Baseline{
	AvgRentPerSqm:     9.0,
	PopulationDensity: 2000,
	AvgSellPerSqm:     800,
	TransportScore:    40.0,
	CommercialDensity: 8.0,
}
