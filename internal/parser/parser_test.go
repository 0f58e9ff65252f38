package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mspence07/PropertyIntel/internal/model"
)

const header = "Month,Reported by,Falls within,Longitude,Latitude,Location,LSOA code,LSOA name,Crime type,Last outcome category,Context"

func TestParse_SingleRecord(t *testing.T) {
	lines := []string{
		header,
		"2024-01,PSNI,PSNI,-5.93,54.597,On or near High Street,,,Burglary,",
	}

	records, stats := Parse(lines, "2024-01")
	require.Len(t, records, 1)
	assert.Equal(t, 1, stats.Produced)
	assert.Equal(t, 0, stats.Malformed)

	r := records[0]
	assert.Equal(t, "burglary", r.Category)
	assert.Equal(t, "Burglary", r.CategoryName)
	assert.Equal(t, "2024-01", r.CrimeMonth)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), r.CrimeDate)
	require.NotNil(t, r.Latitude)
	require.NotNil(t, r.Longitude)
	assert.Equal(t, 54.597, *r.Latitude)
	assert.Equal(t, -5.93, *r.Longitude)
	require.NotNil(t, r.StreetName)
	assert.Equal(t, "On or near High Street", *r.StreetName)
	assert.Equal(t, model.Region, r.Region)
	assert.Nil(t, r.OutcomeCategory, "empty outcome must persist as NULL, never empty string")
	assert.Equal(t, "bulk-csv-archive/2024-01", r.SourceEndpoint)
}

func TestParse_HeaderAlwaysSkipped(t *testing.T) {
	records, stats := Parse([]string{header}, "2024-01")
	assert.Empty(t, records)
	assert.Equal(t, 0, stats.Malformed)
}

func TestParse_MissingCoordinatesDropped(t *testing.T) {
	lines := []string{
		header,
		"2024-01,PSNI,PSNI,,54.597,On or near High Street,,,Burglary,",
		"2024-01,PSNI,PSNI,-5.93,,On or near High Street,,,Burglary,",
		"2024-01,PSNI,PSNI,not-a-number,54.597,On or near High Street,,,Drugs,",
		"2024-01,PSNI,PSNI,-5.93,54.597,On or near High Street,,,Drugs,",
	}

	records, stats := Parse(lines, "2024-01")
	require.Len(t, records, 1)
	assert.Equal(t, "drugs", records[0].Category)
	assert.Equal(t, 3, stats.Malformed)
	assert.Equal(t, 1, stats.Produced)
}

func TestParse_ShortLineDropped(t *testing.T) {
	lines := []string{
		header,
		"2024-01,PSNI,PSNI",
	}
	records, stats := Parse(lines, "2024-01")
	assert.Empty(t, records)
	assert.Equal(t, 1, stats.Malformed)
}

func TestParse_QuotedFields(t *testing.T) {
	lines := []string{
		header,
		`2024-01,PSNI,PSNI,-5.93,54.597,"On or near Church Lane, Belfast",,,"Theft, other",`,
	}
	records, stats := Parse(lines, "2024-01")
	require.Len(t, records, 1)
	assert.Equal(t, 0, stats.Malformed)
	assert.Equal(t, "On or near Church Lane, Belfast", *records[0].StreetName)
	assert.Equal(t, "theft-other", records[0].Category)
	assert.Equal(t, "Theft, other", records[0].CategoryName)
}

func TestParse_EscapedQuote(t *testing.T) {
	lines := []string{
		header,
		`2024-01,PSNI,PSNI,-5.93,54.597,"On or near The ""Crown"" Bar",,,Burglary,`,
	}
	records, _ := Parse(lines, "2024-01")
	require.Len(t, records, 1)
	assert.Equal(t, `On or near The "Crown" Bar`, *records[0].StreetName)
}

func TestParse_EmptyCategoryFallsBack(t *testing.T) {
	lines := []string{
		header,
		"2024-01,PSNI,PSNI,-5.93,54.597,On or near High Street,,,,",
	}
	records, _ := Parse(lines, "2024-01")
	require.Len(t, records, 1)
	assert.Equal(t, FallbackCategory, records[0].Category)
	assert.Equal(t, "Other Crime", records[0].CategoryName)
}

func TestParse_BlankMonthUsesMonthKey(t *testing.T) {
	lines := []string{
		header,
		",PSNI,PSNI,-5.93,54.597,On or near High Street,,,Burglary,",
	}
	records, _ := Parse(lines, "2023-11")
	require.Len(t, records, 1)
	assert.Equal(t, "2023-11", records[0].CrimeMonth)
	assert.Equal(t, time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC), records[0].CrimeDate)
}

func TestParse_NoLines(t *testing.T) {
	records, stats := Parse(nil, "2024-01")
	assert.Empty(t, records)
	assert.Equal(t, Stats{}, stats)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Burglary":                 "burglary",
		"Anti-social behaviour":    "anti-social-behaviour",
		"Theft, other":             "theft-other",
		"Violence & sexual offences": "violence-sexual-offences",
		"  Criminal damage  ":      "criminal-damage",
		"":                         FallbackCategory,
		"Café crime":               "cafe-crime",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}
}

func TestSlugify_Idempotent(t *testing.T) {
	for _, slug := range []string{"burglary", "anti-social-behaviour", "theft-other", FallbackCategory} {
		assert.Equal(t, slug, Slugify(slug))
	}
}

func TestHumanise(t *testing.T) {
	assert.Equal(t, "Other Crime", Humanise("other-crime"))
	assert.Equal(t, "Burglary", Humanise("burglary"))
}
