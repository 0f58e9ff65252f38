// Package parser turns raw PSNI bulk CSV lines into normalized
// CrimeRecords.
//
// All records keep their raw coordinates; geographic filtering happens
// at query time against the store's great-circle distance function.
//
// PSNI CSV columns (no Crime ID column):
//
//	Month, Reported by, Falls within, Longitude, Latitude,
//	Location, LSOA code, LSOA name, Crime type, Last outcome category, Context
package parser

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mspence07/PropertyIntel/internal/model"
)

const (
	colMonth     = 0
	colLongitude = 3
	colLatitude  = 4
	colLocation  = 5
	colCrimeType = 8
	colOutcome   = 9

	// minColumns is the lowest field count a line can have and still
	// carry a crime type.
	minColumns = 9
)

// Stats reports what a parse produced versus dropped. Returned to the
// caller so the counts can feed the run audit record.
type Stats struct {
	Produced  int
	Malformed int
}

// Parse converts one month's raw lines into CrimeRecords. Line 0 is
// always a header and is skipped unconditionally. A malformed line
// (too few columns, or coordinates that fail numeric parsing) is
// counted and dropped; a single bad line never fails the batch.
func Parse(lines []string, monthKey string) ([]model.CrimeRecord, Stats) {
	var stats Stats
	if len(lines) == 0 {
		return nil, stats
	}

	now := time.Now().UTC()
	sourceEndpoint := "bulk-csv-archive/" + monthKey
	locationType := "Force"

	records := make([]model.CrimeRecord, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}

		cols, err := splitLine(line)
		if err != nil || len(cols) < minColumns {
			stats.Malformed++
			continue
		}

		lat := parseFloat(cols[colLatitude])
		lng := parseFloat(cols[colLongitude])
		if lat == nil || lng == nil {
			stats.Malformed++
			continue
		}

		crimeMonth := cols[colMonth]
		if crimeMonth == "" {
			crimeMonth = monthKey
		}
		crimeDate, ok := firstOfMonth(crimeMonth)
		if !ok {
			crimeMonth = monthKey
			if crimeDate, ok = firstOfMonth(monthKey); !ok {
				stats.Malformed++
				continue
			}
		}

		crimeType := cols[colCrimeType]
		category := Slugify(crimeType)
		categoryName := crimeType
		if categoryName == "" {
			categoryName = Humanise(category)
		}

		var outcome string
		if len(cols) > colOutcome {
			outcome = cols[colOutcome]
		}

		records = append(records, model.CrimeRecord{
			Category:        category,
			CategoryName:    categoryName,
			CrimeMonth:      crimeMonth,
			CrimeDate:       crimeDate,
			Region:          model.Region,
			StreetName:      model.StrPtr(cols[colLocation]),
			Latitude:        lat,
			Longitude:       lng,
			LocationType:    &locationType,
			OutcomeCategory: model.StrPtr(outcome),
			ScrapedAt:       now,
			SourceEndpoint:  sourceEndpoint,
		})
	}

	stats.Produced = len(records)
	zap.L().Info("parsed month",
		zap.String("month", monthKey),
		zap.Int("records", stats.Produced),
		zap.Int("malformed", stats.Malformed),
	)

	return records, stats
}

// splitLine parses one CSV line with quote-aware semantics: a quoted
// field may contain the delimiter, and a doubled quote inside a quoted
// field collapses to one literal quote. Fields are trimmed.
func splitLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	cols, err := r.Read()
	if err != nil {
		return nil, err
	}
	for i, c := range cols {
		cols[i] = strings.TrimSpace(c)
	}
	return cols, nil
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// firstOfMonth parses "YYYY-MM" into the first day of that month.
func firstOfMonth(yearMonth string) (time.Time, bool) {
	t, err := time.Parse("2006-01", yearMonth)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
