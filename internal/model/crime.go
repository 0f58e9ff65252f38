// Package model defines the normalized domain types shared by the
// ingestion pipeline and the query layer.
package model

import "time"

// Region is the coarse partition label for all records this scraper
// produces. PSNI publishes a single force-wide file, so everything
// lands in one catch-all partition.
const Region = "NI"

// CrimeRecord is one normalized street-crime incident ready for
// persistence. Field names and nullability mirror the crime.crimes
// table exactly; pointer fields map to NULL columns.
type CrimeRecord struct {
	// PersistentID is the stable 64-char hash from the Police API.
	// Absent in the bulk CSV feed but part of the persisted layout.
	PersistentID *string `json:"persistent_id"`

	// APIID is the numeric API identifier. Display-only: it may be
	// reassigned between archive releases, so it is never a join key.
	APIID *int64 `json:"api_id"`

	// Category is the machine-readable slug, e.g. "anti-social-behaviour".
	Category string `json:"category"`

	// CategoryName is the human-readable label, e.g. "Anti-social behaviour".
	CategoryName string `json:"category_name"`

	// CrimeMonth is the origin year-month string (YYYY-MM).
	CrimeMonth string `json:"crime_month"`

	// CrimeDate is the first day of CrimeMonth, used for range
	// partitioning and recency filters.
	CrimeDate time.Time `json:"crime_date"`

	// Region is the coarse partition label (always "NI" here).
	Region string `json:"region"`

	StreetName *string `json:"street_name"`
	StreetID   *int64  `json:"street_id"`

	// Latitude and Longitude are snapped to a street node by the
	// upstream source. Records without coordinates are dropped at
	// parse time and never reach a sink.
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	LocationType *string `json:"location_type"`

	// OutcomeCategory and OutcomeDate are absent for PSNI data.
	// NULL means "unknown", never "no outcome".
	OutcomeCategory *string `json:"outcome_category"`
	OutcomeDate     *string `json:"outcome_date"`

	// ScrapedAt is when this pipeline produced the record.
	ScrapedAt time.Time `json:"scraped_at"`

	// SourceEndpoint is the archive path the record came from.
	SourceEndpoint string `json:"source_endpoint"`
}

// NaturalKeyColumns lists the columns whose combination identifies one
// logical incident. Re-ingesting a month collapses duplicates on this
// key, last write wins.
func NaturalKeyColumns() []string {
	return []string{"region", "crime_date", "category", "street_name", "latitude", "longitude"}
}

// StrPtr returns a pointer to s, or nil if s is empty. The bulk CSV
// represents missing values as empty fields.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
