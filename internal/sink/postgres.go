package sink

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mspence07/PropertyIntel/internal/db"
	"github.com/mspence07/PropertyIntel/internal/model"
)

// batchSize caps rows per upsert transaction. A month of PSNI data is
// a few thousand rows, so most months land in a handful of batches.
const batchSize = 1000

// crimeColumns is the persisted column order for crime.crimes.
var crimeColumns = []string{
	"persistent_id",
	"api_id",
	"category",
	"category_name",
	"crime_month",
	"crime_date",
	"region",
	"street_name",
	"street_id",
	"latitude",
	"longitude",
	"location_type",
	"outcome_category",
	"outcome_date",
	"scraped_at",
	"source_endpoint",
}

// PostgresSink persists records to crime.crimes in batched upserts.
// Re-ingesting a month is idempotent via the natural-key index.
type PostgresSink struct {
	pool   db.Pool
	logger *zap.Logger
}

func NewPostgresSink(pool db.Pool) *PostgresSink {
	return &PostgresSink{
		pool:   pool,
		logger: zap.L().With(zap.String("component", "postgres_sink")),
	}
}

func (s *PostgresSink) Name() string { return "postgres" }

// Write upserts the records in fixed-size batches. A failed batch
// aborts the remaining batches for this month and propagates; batches
// already committed stay committed, and the next re-run of the same
// month collapses onto them.
func (s *PostgresSink) Write(ctx context.Context, records []model.CrimeRecord, monthKey, region string) error {
	if len(records) == 0 {
		return nil
	}

	cfg := db.UpsertConfig{
		Table:        "crime.crimes",
		Columns:      crimeColumns,
		ConflictKeys: model.NaturalKeyColumns(),
	}

	var written int64
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		rows := make([][]any, 0, end-start)
		for _, rec := range records[start:end] {
			rows = append(rows, recordRow(rec))
		}

		n, err := db.BulkUpsert(ctx, s.pool, cfg, rows)
		if err != nil {
			return eris.Wrapf(err, "upsert batch %d-%d for month %s", start, end, monthKey)
		}
		written += n
	}

	s.logger.Info("persisted month to postgres",
		zap.String("month", monthKey),
		zap.String("region", region),
		zap.Int("records", len(records)),
		zap.Int64("rows_affected", written),
	)
	return nil
}

func recordRow(r model.CrimeRecord) []any {
	return []any{
		r.PersistentID,
		r.APIID,
		r.Category,
		r.CategoryName,
		r.CrimeMonth,
		r.CrimeDate,
		r.Region,
		r.StreetName,
		r.StreetID,
		r.Latitude,
		r.Longitude,
		r.LocationType,
		r.OutcomeCategory,
		r.OutcomeDate,
		r.ScrapedAt,
		r.SourceEndpoint,
	}
}

// RunLog writes scrape-run audit rows to crime.scrape_runs.
type RunLog struct {
	pool db.Pool
}

func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

const insertRunSQL = `INSERT INTO crime.scrape_runs
	(run_id, target_month, region, started_at, completed_at, status, records_found, records_written, error_message)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const listRunsSQL = `SELECT run_id, target_month, region, started_at, completed_at, status,
		records_found, records_written, error_message
	FROM crime.scrape_runs
	WHERE ($1 = '' OR status = $1)
	ORDER BY started_at DESC
	LIMIT $2`

func (l *RunLog) WriteRun(ctx context.Context, run *model.ScrapeRun) error {
	_, err := l.pool.Exec(ctx, insertRunSQL,
		run.RunID,
		run.TargetMonth,
		run.Region,
		run.StartedAt,
		run.CompletedAt,
		string(run.Status),
		run.RecordsFound,
		run.RecordsWritten,
		run.ErrorMessage,
	)
	if err != nil {
		return eris.Wrapf(err, "insert scrape run %s", run.RunID)
	}
	return nil
}

// ListRuns returns the most recent audit rows, newest first. An empty
// status matches every status.
func (l *RunLog) ListRuns(ctx context.Context, status string, limit int) ([]model.ScrapeRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.pool.Query(ctx, listRunsSQL, status, limit)
	if err != nil {
		return nil, eris.Wrap(err, "list scrape runs")
	}
	defer rows.Close()

	var runs []model.ScrapeRun
	for rows.Next() {
		var r model.ScrapeRun
		if err := rows.Scan(&r.RunID, &r.TargetMonth, &r.Region, &r.StartedAt, &r.CompletedAt,
			&r.Status, &r.RecordsFound, &r.RecordsWritten, &r.ErrorMessage); err != nil {
			return nil, eris.Wrap(err, "scan scrape run")
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "scrape run rows")
	}
	return runs, nil
}
