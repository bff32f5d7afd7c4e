// Package geo measures local demand around a listing using the Overpass
// API (OpenStreetMap): nearby transit stops feed a 0-100 transport score,
// nearby shops and amenities a raw commercial density count.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Bounding box degree deltas approximating an 800m radius. The deltas are
// asymmetric because a longitude degree is shorter than a latitude degree
// at French latitudes.
const (
	deltaLat = 0.007
	deltaLon = 0.01
)

// Signal holds the demand measurements for one coordinate
type Signal struct {
	TransportScore    float64 `json:"transport_score"`
	CommercialDensity float64 `json:"commercial_density"`
}

// Client queries the Overpass API for point-of-interest counts
type Client struct {
	endpoint string
	client   *http.Client
	policy   RetryPolicy
	logger   *slog.Logger
}

// NewClient creates an Overpass client
func NewClient(endpoint string, timeout time.Duration, policy RetryPolicy, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		policy:   policy,
		logger:   logger.With(slog.String("component", "geo_client")),
	}
}

// FetchSignal runs the transit and commercial queries around the point.
// A single failed query degrades to a zero count; an error is returned
// only when both queries exhaust their retries, so the caller can fall
// back to its conservative default signal.
func (c *Client) FetchSignal(ctx context.Context, lat, lon float64) (Signal, error) {
	stationCount, transitErr := c.countWithRetry(ctx, transitQuery(lat, lon))
	if transitErr != nil {
		c.logger.WarnContext(ctx, "transit query failed after retries",
			slog.String("error", transitErr.Error()))
		stationCount = 0
	}

	poiCount, commercialErr := c.countWithRetry(ctx, commercialQuery(lat, lon))
	if commercialErr != nil {
		c.logger.WarnContext(ctx, "commercial query failed after retries",
			slog.String("error", commercialErr.Error()))
		poiCount = 0
	}

	if transitErr != nil && commercialErr != nil {
		return Signal{}, fmt.Errorf("spatial service unavailable: %w", transitErr)
	}

	return Signal{
		TransportScore:    transportScore(stationCount),
		CommercialDensity: float64(poiCount),
	}, nil
}

// countWithRetry posts one Overpass query, retrying per the policy
func (c *Client) countWithRetry(ctx context.Context, query string) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		count, err := c.count(ctx, query)
		if err == nil {
			return count, nil
		}
		lastErr = err

		if attempt < c.policy.MaxAttempts {
			delay := c.policy.Delay(attempt)
			c.logger.DebugContext(ctx, "spatial query failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("error", err.Error()))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}
	return 0, fmt.Errorf("after %d attempts: %w", c.policy.MaxAttempts, lastErr)
}

// count executes one query and extracts the element count
func (c *Client) count(ctx context.Context, query string) (int, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	if len(payload.Elements) == 0 {
		return 0, nil
	}
	return payload.Elements[0].Tags.total()
}

// overpassResponse is the shape of an `out count;` answer
type overpassResponse struct {
	Elements []struct {
		Tags countTags `json:"tags"`
	} `json:"elements"`
}

// countTags holds the count element tags; total arrives as a string or a number
type countTags map[string]json.RawMessage

func (t countTags) total() (int, error) {
	raw, ok := t["total"]
	if !ok {
		return 0, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		n, err := strconv.Atoi(asString)
		if err != nil {
			return 0, fmt.Errorf("non-numeric total %q", asString)
		}
		return n, nil
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return 0, fmt.Errorf("unexpected total payload: %w", err)
	}
	return int(asNumber), nil
}

// transportScore converts a station count within the search radius to a
// 0-100 score: 0 stations is 0, 10 or more is 100, 12 points per station
// in between.
func transportScore(stationCount int) float64 {
	if stationCount == 0 {
		return 0
	}
	if stationCount >= 10 {
		return 100
	}
	score := float64(stationCount) * 12.0
	if score > 100 {
		return 100
	}
	return score
}

// transitQuery counts stations, subway entrances and bus stops in the bbox
func transitQuery(lat, lon float64) string {
	bbox := bboxAround(lat, lon)
	return fmt.Sprintf(`[out:json][timeout:10];
(
  node["public_transport"="station"](%[1]s);
  node["railway"="station"](%[1]s);
  node["railway"="subway_entrance"](%[1]s);
  node["highway"="bus_stop"](%[1]s);
);
out count;`, bbox)
}

// commercialQuery counts shops and a fixed set of amenities in the bbox
func commercialQuery(lat, lon float64) string {
	bbox := bboxAround(lat, lon)
	return fmt.Sprintf(`[out:json][timeout:10];
(
  node["shop"](%[1]s);
  node["amenity"~"restaurant|cafe|bank|pharmacy"](%[1]s);
);
out count;`, bbox)
}

// bboxAround returns the Overpass south,west,north,east bbox string
func bboxAround(lat, lon float64) string {
	return fmt.Sprintf("%f,%f,%f,%f", lat-deltaLat, lon-deltaLon, lat+deltaLat, lon+deltaLon)
}
