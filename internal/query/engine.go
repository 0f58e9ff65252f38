// Package query answers "what crime happened near this address"
// questions over the persisted record store.
package query

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mspence07/PropertyIntel/internal/db"
	"github.com/mspence07/PropertyIntel/internal/metrics"
	"github.com/mspence07/PropertyIntel/pkg/postcode"
)

// hotspotLimit and hotspotLookbackMonths are fixed by contract, not
// configurable.
const (
	hotspotLimit          = 20
	hotspotLookbackMonths = 12
)

// Location is a resolved query origin.
type Location struct {
	Postcode  string  `json:"postcode"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CategoryCount is one category's totals within the query window.
// Recent and Total currently cover the same window; the filter is
// applied twice so a shorter recent sub-window is a one-line change.
type CategoryCount struct {
	CategoryName string `json:"category_name"`
	Total        int    `json:"total"`
	Recent       int    `json:"recent"`
}

// MonthCount is one month's incident count within the query window.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Summary is the full answer to a summarize query.
type Summary struct {
	Location       Location        `json:"location"`
	RadiusMeters   float64         `json:"radius_meters"`
	LookbackMonths int             `json:"lookback_months"`
	Categories     []CategoryCount `json:"categories"`
	MonthlyTrend   []MonthCount    `json:"monthly_trend"`
	TotalCrimes    int             `json:"total_crimes"`
}

// Hotspot is one street-level incident cluster.
type Hotspot struct {
	StreetName     string   `json:"street_name"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	Incidents      int      `json:"incidents"`
	Categories     []string `json:"categories"`
	DistanceMeters float64  `json:"distance_meters"`
}

// Engine runs geo queries against crime.crimes, resolving addresses
// through the postcode client first. Resolver failures (including
// postcode.ErrNotFound) propagate unchanged.
type Engine struct {
	pool     db.Pool
	resolver postcode.Client
	logger   *zap.Logger
}

func NewEngine(pool db.Pool, resolver postcode.Client) *Engine {
	return &Engine{
		pool:     pool,
		resolver: resolver,
		logger:   zap.L().With(zap.String("component", "query")),
	}
}

// withinRadius filters to rows with coordinates inside the great-
// circle radius of the resolved point. Geography casts make the
// distance metric meters.
const withinRadius = `latitude IS NOT NULL AND longitude IS NOT NULL
	AND ST_DWithin(
		ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)::geography,
		ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
		$3)`

const categorySQL = `SELECT category_name,
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE crime_date >= $4) AS recent
	FROM crime.crimes
	WHERE ` + withinRadius + `
		AND crime_date >= $4
	GROUP BY category_name
	ORDER BY total DESC, category_name`

const trendSQL = `SELECT crime_month, COUNT(*)
	FROM crime.crimes
	WHERE ` + withinRadius + `
		AND crime_date >= $4
	GROUP BY crime_month
	ORDER BY crime_month`

const hotspotSQL = `SELECT street_name, latitude, longitude,
		COUNT(*) AS incidents,
		array_agg(DISTINCT category_name) AS categories
	FROM crime.crimes
	WHERE ` + withinRadius + `
		AND street_name IS NOT NULL
		AND crime_date >= $4
	GROUP BY street_name, latitude, longitude
	ORDER BY incidents DESC, street_name
	LIMIT 20`

// Summarize resolves the address and returns per-category counts, the
// monthly trend, and the grand total within radiusMeters over the
// trailing lookbackMonths.
func (e *Engine) Summarize(ctx context.Context, address string, radiusMeters float64, lookbackMonths int) (*Summary, error) {
	loc, err := e.resolve(ctx, address)
	if err != nil {
		return nil, err
	}

	cutoff := monthsAgo(lookbackMonths)
	summary := &Summary{
		Location:       *loc,
		RadiusMeters:   radiusMeters,
		LookbackMonths: lookbackMonths,
	}

	rows, err := e.pool.Query(ctx, categorySQL, loc.Longitude, loc.Latitude, radiusMeters, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "query: category summary")
	}
	defer rows.Close()
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.CategoryName, &c.Total, &c.Recent); err != nil {
			return nil, eris.Wrap(err, "query: scan category row")
		}
		summary.Categories = append(summary.Categories, c)
		summary.TotalCrimes += c.Total
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "query: category rows")
	}

	trend, err := e.pool.Query(ctx, trendSQL, loc.Longitude, loc.Latitude, radiusMeters, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "query: monthly trend")
	}
	defer trend.Close()
	for trend.Next() {
		var m MonthCount
		if err := trend.Scan(&m.Month, &m.Count); err != nil {
			return nil, eris.Wrap(err, "query: scan trend row")
		}
		summary.MonthlyTrend = append(summary.MonthlyTrend, m)
	}
	if err := trend.Err(); err != nil {
		return nil, eris.Wrap(err, "query: trend rows")
	}

	e.logger.Info("summary query served",
		zap.String("postcode", loc.Postcode),
		zap.Float64("radius_m", radiusMeters),
		zap.Int("total", summary.TotalCrimes),
	)
	return summary, nil
}

// Hotspots resolves the address and returns the busiest street groups
// within radiusMeters over the trailing twelve months, at most twenty,
// ordered by incident count descending.
func (e *Engine) Hotspots(ctx context.Context, address string, radiusMeters float64) ([]Hotspot, error) {
	loc, err := e.resolve(ctx, address)
	if err != nil {
		return nil, err
	}

	cutoff := monthsAgo(hotspotLookbackMonths)
	rows, err := e.pool.Query(ctx, hotspotSQL, loc.Longitude, loc.Latitude, radiusMeters, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "query: hotspots")
	}
	defer rows.Close()

	var hotspots []Hotspot
	for rows.Next() {
		var h Hotspot
		if err := rows.Scan(&h.StreetName, &h.Latitude, &h.Longitude, &h.Incidents, &h.Categories); err != nil {
			return nil, eris.Wrap(err, "query: scan hotspot row")
		}
		h.DistanceMeters = DistanceMeters(loc.Latitude, loc.Longitude, h.Latitude, h.Longitude)
		hotspots = append(hotspots, h)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "query: hotspot rows")
	}

	e.logger.Info("hotspot query served",
		zap.String("postcode", loc.Postcode),
		zap.Int("groups", len(hotspots)),
	)
	return hotspots, nil
}

func (e *Engine) resolve(ctx context.Context, address string) (*Location, error) {
	res, err := e.resolver.Lookup(ctx, address)
	switch {
	case err == nil:
		metrics.PostcodeLookups.WithLabelValues("ok").Inc()
	case eris.Is(err, postcode.ErrNotFound):
		metrics.PostcodeLookups.WithLabelValues("not_found").Inc()
		return nil, err
	default:
		metrics.PostcodeLookups.WithLabelValues("error").Inc()
		return nil, err
	}
	return &Location{
		Postcode:  res.Postcode,
		Latitude:  res.Latitude,
		Longitude: res.Longitude,
	}, nil
}

// monthsAgo returns the first day of the month n months before the
// current one, UTC.
func monthsAgo(n int) time.Time {
	now := time.Now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -n, 0)
}

const earthRadiusMeters = 6371000

// DistanceMeters is the haversine great-circle distance between two
// coordinate pairs.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
