package dvf

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// natureSale marks a plain sale mutation
	natureSale = "Vente"
	// typeDependency is the property class covering garages and parking boxes
	typeDependency = "Dépendance"
)

var requiredColumns = []string{"id_mutation", "nature_mutation", "type_local", "valeur_fonciere"}

// PriceBounds is the realistic per-unit price range for garages/parking
// spaces. Below Min the row is a data error; above Max it is a large
// commercial storage unit, not the target category.
type PriceBounds struct {
	Min float64
	Max float64
}

// Contains reports whether a per-unit price is inside the bounds
func (b PriceBounds) Contains(price float64) bool {
	return price >= b.Min && price <= b.Max
}

// mutationGroup accumulates the qualifying rows of one mutation
type mutationGroup struct {
	price float64 // total transaction price, shared across rows
	lots  int     // number of qualifying rows in this mutation
}

// ParsePerLotPrices reads one commune extract and returns the per-unit
// garage prices that fall inside bounds.
//
// Rows are filtered to nature_mutation == "Vente" and type_local ==
// "Dépendance", prices are coerced from locale-formatted strings (comma
// decimal separator) dropping unparsable or non-positive values, and
// mutations are deduplicated: the shared total price is divided by the
// qualifying lot count.
func ParsePerLotPrices(r io.Reader, bounds PriceBounds) ([]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	mutations := make(map[string]*mutationGroup)
	order := make([]string, 0)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip malformed rows rather than discarding the whole file
			continue
		}

		nature := field(row, columns["nature_mutation"])
		local := field(row, columns["type_local"])
		if nature != natureSale || local != typeDependency {
			continue
		}

		price, ok := parsePrice(field(row, columns["valeur_fonciere"]))
		if !ok {
			continue
		}

		id := field(row, columns["id_mutation"])
		if id == "" {
			continue
		}

		group, exists := mutations[id]
		if !exists {
			group = &mutationGroup{price: price}
			mutations[id] = group
			order = append(order, id)
		}
		group.lots++
	}

	prices := make([]float64, 0, len(mutations))
	for _, id := range order {
		group := mutations[id]
		perLot := group.price / float64(group.lots)
		if bounds.Contains(perLot) {
			prices = append(prices, perLot)
		}
	}
	return prices, nil
}

// field returns the trimmed cell at index i, or "" when the row is short
func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parsePrice coerces a locale-formatted price string to a positive float
func parsePrice(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	normalized := strings.ReplaceAll(raw, ",", ".")
	price, err := strconv.ParseFloat(normalized, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}
