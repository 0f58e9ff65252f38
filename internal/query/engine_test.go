package query

import (
	"context"
	"math"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mspence07/PropertyIntel/pkg/postcode"
)

type stubResolver struct {
	result *postcode.Result
	err    error
	calls  int
}

func (s *stubResolver) Lookup(context.Context, string) (*postcode.Result, error) {
	s.calls++
	return s.result, s.err
}

func belfast() *postcode.Result {
	return &postcode.Result{Postcode: "BT1 1AA", Latitude: 54.597, Longitude: -5.93}
}

func TestSummarize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT category_name").
		WithArgs(-5.93, 54.597, 1000.0, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"category_name", "total", "recent"}).
			AddRow("Burglary", 7, 7).
			AddRow("Drugs", 3, 3))
	mock.ExpectQuery("SELECT crime_month").
		WithArgs(-5.93, 54.597, 1000.0, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"crime_month", "count"}).
			AddRow("2024-01", 4).
			AddRow("2024-02", 6))

	e := NewEngine(mock, &stubResolver{result: belfast()})
	s, err := e.Summarize(context.Background(), "BT1 1AA", 1000, 6)
	require.NoError(t, err)

	assert.Equal(t, "BT1 1AA", s.Location.Postcode)
	assert.Equal(t, 10, s.TotalCrimes)
	require.Len(t, s.Categories, 2)
	assert.Equal(t, CategoryCount{CategoryName: "Burglary", Total: 7, Recent: 7}, s.Categories[0])
	require.Len(t, s.MonthlyTrend, 2)
	assert.Equal(t, MonthCount{Month: "2024-01", Count: 4}, s.MonthlyTrend[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummarize_NotFoundPropagates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	resolver := &stubResolver{err: eris.Wrap(postcode.ErrNotFound, "postcode ZZ9")}
	e := NewEngine(mock, resolver)

	_, err = e.Summarize(context.Background(), "ZZ9", 1000, 6)
	assert.True(t, eris.Is(err, postcode.ErrNotFound))
	// No SQL runs when resolution fails.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummarize_QueryErrorWrapped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT category_name").WillReturnError(assert.AnError)

	e := NewEngine(mock, &stubResolver{result: belfast()})
	_, err = e.Summarize(context.Background(), "BT1 1AA", 1000, 6)
	assert.ErrorContains(t, err, "category summary")
}

func TestHotspots(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT street_name").
		WithArgs(-5.93, 54.597, 500.0, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"street_name", "latitude", "longitude", "incidents", "categories"}).
			AddRow("On or near High Street", 54.598, -5.931, 12, []string{"Burglary", "Drugs"}).
			AddRow("On or near Donegall Square", 54.596, -5.929, 5, []string{"Robbery"}))

	e := NewEngine(mock, &stubResolver{result: belfast()})
	hs, err := e.Hotspots(context.Background(), "BT1 1AA", 500)
	require.NoError(t, err)

	require.Len(t, hs, 2)
	assert.Equal(t, "On or near High Street", hs[0].StreetName)
	assert.Equal(t, 12, hs[0].Incidents)
	assert.Equal(t, []string{"Burglary", "Drugs"}, hs[0].Categories)
	// ~120m from the resolved point.
	assert.InDelta(t, 130, hs[0].DistanceMeters, 30)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHotspots_ResolverErrorPropagates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	e := NewEngine(mock, &stubResolver{err: eris.New("dial tcp: timeout")})
	_, err = e.Hotspots(context.Background(), "BT1 1AA", 500)
	assert.ErrorContains(t, err, "timeout")
}

func TestDistanceMeters(t *testing.T) {
	// Same point.
	assert.Zero(t, DistanceMeters(54.597, -5.93, 54.597, -5.93))

	// Belfast City Hall to Belfast Castle, roughly 4.6km.
	d := DistanceMeters(54.5964, -5.9301, 54.6428, -5.9446)
	assert.InDelta(t, 4600, d, 400)

	// Symmetric.
	assert.InDelta(t, d, DistanceMeters(54.6428, -5.9446, 54.5964, -5.9301), 1e-9)

	// One degree of latitude is ~111km.
	assert.InDelta(t, 111195, DistanceMeters(54, -5.93, 55, -5.93), 100)

	assert.False(t, math.IsNaN(DistanceMeters(90, 0, -90, 180)))
}
