// Package storage persists listings and their enrichment records in
// SQLite. The pure Go driver keeps the service free of cgo.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"boxinvest/internal/enrich"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Listing is one stored garage/box listing
type Listing struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	ExternalID  string    `json:"external_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Surface     *float64  `json:"surface"`
	City        string    `json:"city"`
	PostalCode  string    `json:"postal_code"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
	PhotosCount int       `json:"photos_count"`
	Tags        []string  `json:"accessibility_tags"`
	ScrapedAt   time.Time `json:"scraped_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RankedListing is a listing joined with its enrichment, if any
type RankedListing struct {
	Listing
	EdgeScore  *float64 `json:"edge_score"`
	GrossYield *float64 `json:"gross_yield"`
}

// CityStats is one row of the analytics summary
type CityStats struct {
	City         string   `json:"city"`
	Listings     int      `json:"listings"`
	AvgEdgeScore *float64 `json:"avg_edge_score"`
	AvgYield     *float64 `json:"avg_gross_yield"`
}

// Summary aggregates portfolio-level analytics
type Summary struct {
	TotalListings int         `json:"total_listings"`
	Enriched      int         `json:"enriched"`
	AvgEdgeScore  *float64    `json:"avg_edge_score"`
	Cities        []CityStats `json:"cities"`
}

// Store wraps the SQLite database
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	external_id TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	price REAL NOT NULL,
	surface REAL,
	city TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	lat REAL,
	lon REAL,
	photos_count INTEGER NOT NULL DEFAULT 0,
	accessibility_tags TEXT NOT NULL DEFAULT '[]',
	scraped_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_listings_source_external
	ON listings(source, external_id) WHERE external_id != '';

CREATE TABLE IF NOT EXISTS listing_enrichments (
	listing_id TEXT PRIMARY KEY REFERENCES listings(id),
	avg_rent_area REAL NOT NULL,
	population_density REAL NOT NULL,
	commercial_density REAL NOT NULL,
	transport_score REAL NOT NULL,
	liquidity_score REAL NOT NULL,
	accessibility_score REAL NOT NULL,
	vertical_storage_potential REAL NOT NULL,
	price_per_sqm REAL,
	estimated_rent_low REAL,
	estimated_rent_high REAL,
	gross_yield REAL,
	storage_yield_estimate REAL,
	ml_estimated_price REAL,
	ml_price_deviation REAL,
	edge_score REAL NOT NULL,
	enriched_at TIMESTAMP NOT NULL
);
`

// Open opens (creating if needed) the database at dsn
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "storage")),
	}, nil
}

// Close closes the underlying database
func (s *Store) Close() error { return s.db.Close() }

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InsertListing stores a listing, skipping insertion when one with the
// same source and external ID already exists. It returns the stored
// listing's ID and whether a new row was created.
func (s *Store) InsertListing(ctx context.Context, l Listing) (string, bool, error) {
	if l.ExternalID != "" {
		var existing string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM listings WHERE source = ? AND external_id = ?`,
			l.Source, l.ExternalID).Scan(&existing)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("lookup listing: %w", err)
		}
	}

	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if l.ScrapedAt.IsZero() {
		l.ScrapedAt = now
	}
	l.UpdatedAt = now

	tags, err := json.Marshal(l.Tags)
	if err != nil {
		return "", false, fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings (
			id, source, external_id, url, title, description, price, surface,
			city, postal_code, lat, lon, photos_count, accessibility_tags,
			scraped_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Source, l.ExternalID, l.URL, l.Title, l.Description, l.Price,
		nullable(l.Surface), l.City, l.PostalCode, nullable(l.Lat), nullable(l.Lon),
		l.PhotosCount, string(tags), l.ScrapedAt, l.UpdatedAt)
	if err != nil {
		return "", false, fmt.Errorf("insert listing: %w", err)
	}
	return l.ID, true, nil
}

// GetListing fetches one listing by ID
func (s *Store) GetListing(ctx context.Context, id string) (*Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, external_id, url, title, description, price, surface,
		       city, postal_code, lat, lon, photos_count, accessibility_tags,
		       scraped_at, updated_at
		FROM listings WHERE id = ?`, id)
	listing, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return listing, nil
}

// ListRanked returns listings joined with their edge score, best first.
// Unenriched listings come last. City filters when non-empty.
func (s *Store) ListRanked(ctx context.Context, city string, limit int) ([]RankedListing, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT l.id, l.source, l.external_id, l.url, l.title, l.description,
		       l.price, l.surface, l.city, l.postal_code, l.lat, l.lon,
		       l.photos_count, l.accessibility_tags, l.scraped_at, l.updated_at,
		       e.edge_score, e.gross_yield
		FROM listings l
		LEFT JOIN listing_enrichments e ON e.listing_id = l.id`
	args := []any{}
	if city != "" {
		query += ` WHERE l.city = ?`
		args = append(args, city)
	}
	query += ` ORDER BY e.edge_score IS NULL, e.edge_score DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ranked: %w", err)
	}
	defer rows.Close()

	var out []RankedListing
	for rows.Next() {
		var r RankedListing
		var surface, lat, lon, edge, yield sql.NullFloat64
		var tags string
		if err := rows.Scan(&r.ID, &r.Source, &r.ExternalID, &r.URL, &r.Title,
			&r.Description, &r.Price, &surface, &r.City, &r.PostalCode,
			&lat, &lon, &r.PhotosCount, &tags, &r.ScrapedAt, &r.UpdatedAt,
			&edge, &yield); err != nil {
			return nil, fmt.Errorf("scan ranked listing: %w", err)
		}
		r.Surface = fromNull(surface)
		r.Lat = fromNull(lat)
		r.Lon = fromNull(lon)
		r.EdgeScore = fromNull(edge)
		r.GrossYield = fromNull(yield)
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			r.Tags = nil
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListPendingEnrichment returns listings without an enrichment record
func (s *Store) ListPendingEnrichment(ctx context.Context, limit int) ([]Listing, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.source, l.external_id, l.url, l.title, l.description,
		       l.price, l.surface, l.city, l.postal_code, l.lat, l.lon,
		       l.photos_count, l.accessibility_tags, l.scraped_at, l.updated_at
		FROM listings l
		LEFT JOIN listing_enrichments e ON e.listing_id = l.id
		WHERE e.listing_id IS NULL
		ORDER BY l.scraped_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending listing: %w", err)
		}
		out = append(out, *listing)
	}
	return out, rows.Err()
}

// UpsertEnrichment stores or replaces the enrichment record for a listing
func (s *Store) UpsertEnrichment(ctx context.Context, listingID string, rec enrich.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listing_enrichments (
			listing_id, avg_rent_area, population_density, commercial_density,
			transport_score, liquidity_score, accessibility_score,
			vertical_storage_potential, price_per_sqm, estimated_rent_low,
			estimated_rent_high, gross_yield, storage_yield_estimate,
			ml_estimated_price, ml_price_deviation, edge_score, enriched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET
			avg_rent_area = excluded.avg_rent_area,
			population_density = excluded.population_density,
			commercial_density = excluded.commercial_density,
			transport_score = excluded.transport_score,
			liquidity_score = excluded.liquidity_score,
			accessibility_score = excluded.accessibility_score,
			vertical_storage_potential = excluded.vertical_storage_potential,
			price_per_sqm = excluded.price_per_sqm,
			estimated_rent_low = excluded.estimated_rent_low,
			estimated_rent_high = excluded.estimated_rent_high,
			gross_yield = excluded.gross_yield,
			storage_yield_estimate = excluded.storage_yield_estimate,
			ml_estimated_price = excluded.ml_estimated_price,
			ml_price_deviation = excluded.ml_price_deviation,
			edge_score = excluded.edge_score,
			enriched_at = excluded.enriched_at`,
		listingID, rec.AvgRentArea, rec.PopulationDensity, rec.CommercialDensity,
		rec.TransportScore, rec.LiquidityScore, rec.AccessibilityScore,
		rec.VerticalStoragePotential, nullable(rec.PricePerSqm),
		nullable(rec.EstimatedRentLow), nullable(rec.EstimatedRentHigh),
		nullable(rec.GrossYield), nullable(rec.StorageYieldEstimate),
		nullable(rec.MLEstimatedPrice), nullable(rec.MLPriceDeviation),
		rec.EdgeScore, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert enrichment: %w", err)
	}
	return nil
}

// GetEnrichment fetches the enrichment record for a listing
func (s *Store) GetEnrichment(ctx context.Context, listingID string) (*enrich.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT avg_rent_area, population_density, commercial_density,
		       transport_score, liquidity_score, accessibility_score,
		       vertical_storage_potential, price_per_sqm, estimated_rent_low,
		       estimated_rent_high, gross_yield, storage_yield_estimate,
		       ml_estimated_price, ml_price_deviation, edge_score
		FROM listing_enrichments WHERE listing_id = ?`, listingID)

	var rec enrich.Record
	var pricePerSqm, rentLow, rentHigh, yield, storageYield, mlPrice, mlDev sql.NullFloat64
	err := row.Scan(&rec.AvgRentArea, &rec.PopulationDensity, &rec.CommercialDensity,
		&rec.TransportScore, &rec.LiquidityScore, &rec.AccessibilityScore,
		&rec.VerticalStoragePotential, &pricePerSqm, &rentLow, &rentHigh,
		&yield, &storageYield, &mlPrice, &mlDev, &rec.EdgeScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrichment: %w", err)
	}
	rec.PricePerSqm = fromNull(pricePerSqm)
	rec.EstimatedRentLow = fromNull(rentLow)
	rec.EstimatedRentHigh = fromNull(rentHigh)
	rec.GrossYield = fromNull(yield)
	rec.StorageYieldEstimate = fromNull(storageYield)
	rec.MLEstimatedPrice = fromNull(mlPrice)
	rec.MLPriceDeviation = fromNull(mlDev)
	return &rec, nil
}

// AnalyticsSummary aggregates portfolio statistics
func (s *Store) AnalyticsSummary(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	var avgEdge sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(l.id), COUNT(e.listing_id), AVG(e.edge_score)
		FROM listings l
		LEFT JOIN listing_enrichments e ON e.listing_id = l.id`).
		Scan(&summary.TotalListings, &summary.Enriched, &avgEdge)
	if err != nil {
		return nil, fmt.Errorf("summary totals: %w", err)
	}
	summary.AvgEdgeScore = fromNull(avgEdge)

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.city, COUNT(l.id), AVG(e.edge_score), AVG(e.gross_yield)
		FROM listings l
		LEFT JOIN listing_enrichments e ON e.listing_id = l.id
		GROUP BY l.city
		ORDER BY COUNT(l.id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("summary cities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cs CityStats
		var edge, yield sql.NullFloat64
		if err := rows.Scan(&cs.City, &cs.Listings, &edge, &yield); err != nil {
			return nil, fmt.Errorf("scan city stats: %w", err)
		}
		cs.AvgEdgeScore = fromNull(edge)
		cs.AvgYield = fromNull(yield)
		summary.Cities = append(summary.Cities, cs)
	}
	return summary, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanListing(row scanner) (*Listing, error) {
	var l Listing
	var surface, lat, lon sql.NullFloat64
	var tags string
	if err := row.Scan(&l.ID, &l.Source, &l.ExternalID, &l.URL, &l.Title,
		&l.Description, &l.Price, &surface, &l.City, &l.PostalCode,
		&lat, &lon, &l.PhotosCount, &tags, &l.ScrapedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Surface = fromNull(surface)
	l.Lat = fromNull(lat)
	l.Lon = fromNull(lon)
	if err := json.Unmarshal([]byte(tags), &l.Tags); err != nil {
		l.Tags = nil
	}
	return &l, nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}
