package sink

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mspence07/PropertyIntel/internal/model"
)

func sampleRecord(category string, lat float64) model.CrimeRecord {
	street := "On or near High Street"
	return model.CrimeRecord{
		Category:       category,
		CategoryName:   "Burglary",
		CrimeMonth:     "2024-01",
		CrimeDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Region:         model.Region,
		StreetName:     &street,
		Latitude:       &lat,
		Longitude:      floatPtr(-5.93),
		LocationType:   model.StrPtr("Force"),
		ScrapedAt:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		SourceEndpoint: "bulk-csv-archive/2024-01",
	}
}

func floatPtr(f float64) *float64 { return &f }

func expectUpsert(mock pgxmock.PgxPoolIface, copyRows int64, upserted int64) {
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_crime_crimes"}, crimeColumns).WillReturnResult(copyRows)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", upserted))
	mock.ExpectCommit()
}

func TestPostgresSink_Write(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectUpsert(mock, 2, 2)

	s := NewPostgresSink(mock)
	records := []model.CrimeRecord{
		sampleRecord("burglary", 54.597),
		sampleRecord("drugs", 54.601),
	}
	require.NoError(t, s.Write(context.Background(), records, "2024-01", "NI"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_WriteBatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// 1001 records split into a full batch and a remainder batch.
	expectUpsert(mock, int64(batchSize), int64(batchSize))
	expectUpsert(mock, 1, 1)

	records := make([]model.CrimeRecord, batchSize+1)
	for i := range records {
		records[i] = sampleRecord("burglary", 54.0+float64(i)/10000)
	}

	s := NewPostgresSink(mock)
	require.NoError(t, s.Write(context.Background(), records, "2024-01", "NI"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_BatchFailureAborts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// First batch fails; the second batch must never start.
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	records := make([]model.CrimeRecord, batchSize+1)
	for i := range records {
		records[i] = sampleRecord("burglary", 54.0)
	}

	s := NewPostgresSink(mock)
	err = s.Write(context.Background(), records, "2024-01", "NI")
	assert.ErrorContains(t, err, "upsert batch 0-1000 for month 2024-01")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_EmptyNoQueries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresSink(mock)
	require.NoError(t, s.Write(context.Background(), nil, "2024-01", "NI"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_WriteRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := model.NewScrapeRun("2024-01")
	run.Complete(120, 118)

	mock.ExpectExec("INSERT INTO crime.scrape_runs").
		WithArgs(run.RunID, "2024-01", "NI", run.StartedAt, run.CompletedAt,
			"SUCCESS", 120, 118, run.ErrorMessage).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	l := NewRunLog(mock)
	require.NoError(t, l.WriteRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_ListRuns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(time.Minute)

	mock.ExpectQuery("SELECT run_id").
		WithArgs("FAILED", 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"run_id", "target_month", "region", "started_at", "completed_at",
			"status", "records_found", "records_written", "error_message",
		}).AddRow("abc-123", "2024-01", "NI", started, &completed,
			model.RunStatus("FAILED"), 0, 0, model.StrPtr("boom")))

	l := NewRunLog(mock)
	runs, err := l.ListRuns(context.Background(), "FAILED", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "abc-123", runs[0].RunID)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Equal(t, "boom", *runs[0].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_ListRunsDefaultLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT run_id").
		WithArgs("", 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"run_id", "target_month", "region", "started_at", "completed_at",
			"status", "records_found", "records_written", "error_message",
		}))

	l := NewRunLog(mock)
	runs, err := l.ListRuns(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_WriteRunFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := model.NewScrapeRun("2024-02")
	run.Fail("archive download: connection reset")

	mock.ExpectExec("INSERT INTO crime.scrape_runs").
		WithArgs(run.RunID, "2024-02", "NI", run.StartedAt, run.CompletedAt,
			"FAILED", 0, 0, run.ErrorMessage).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	l := NewRunLog(mock)
	require.NoError(t, l.WriteRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}
