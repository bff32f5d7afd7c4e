// Package dvf ingests per-commune sale transaction extracts from the
// French government open data portal (geo-dvf) and derives a median
// garage price per m² for each tracked city.
//
// Key data nuance: valeur_fonciere is the total transaction price and is
// duplicated across every property row of the same mutation. A mutation
// selling 2 garages at 40k€ each shows 80k€ on both rows, so rows are
// deduplicated by id_mutation and the shared price divided by the garage
// lot count before aggregation.
package dvf

import "fmt"

// CityConfig identifies the commune extract files for one city.
// Cities split into arrondissements have one file per arrondissement;
// all files are downloaded and pooled before computing the median.
type CityConfig struct {
	Dept     string
	Communes []string
}

// TrackedCities maps each tracked city to its commune codes.
// Strasbourg (67482) is absent from the 2024 communes directory and
// stays on the static fallback.
var TrackedCities = map[string]CityConfig{
	"Paris":       {Dept: "75", Communes: communeRange("751%02d", 1, 20)},  // 75101–75120
	"Lyon":        {Dept: "69", Communes: communeRange("6938%d", 1, 9)},    // 69381–69389
	"Marseille":   {Dept: "13", Communes: communeRange("132%02d", 1, 16)},  // 13201–13216
	"Bordeaux":    {Dept: "33", Communes: []string{"33063"}},
	"Toulouse":    {Dept: "31", Communes: []string{"31555"}},
	"Nantes":      {Dept: "44", Communes: []string{"44109"}},
	"Montpellier": {Dept: "34", Communes: []string{"34172"}},
	"Lille":       {Dept: "59", Communes: []string{"59350"}},
	"Rennes":      {Dept: "35", Communes: []string{"35238"}},
	"Nice":        {Dept: "06", Communes: []string{"06088"}},
	"Grenoble":    {Dept: "38", Communes: []string{"38185"}},
}

func communeRange(format string, from, to int) []string {
	codes := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		codes = append(codes, fmt.Sprintf(format, i))
	}
	return codes
}
