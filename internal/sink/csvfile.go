package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mspence07/PropertyIntel/internal/model"
)

// CSVSink writes one file per month, crimes_<region>_<month>.csv, in
// the same column order the database uses. Re-running a month
// truncates and rewrites the file, mirroring the store's last-write-
// wins semantics.
type CSVSink struct {
	dir         string
	writeHeader bool
	logger      *zap.Logger
}

func NewCSVSink(dir string, writeHeader bool) *CSVSink {
	return &CSVSink{
		dir:         dir,
		writeHeader: writeHeader,
		logger:      zap.L().With(zap.String("component", "csv_sink")),
	}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Write(ctx context.Context, records []model.CrimeRecord, monthKey, region string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "csv write cancelled")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "create output dir %s", s.dir)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("crimes_%s_%s.csv", region, monthKey))
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if s.writeHeader {
		if err := w.Write(crimeColumns); err != nil {
			return eris.Wrapf(err, "write header to %s", path)
		}
	}
	for _, rec := range records {
		if err := w.Write(recordFields(rec)); err != nil {
			return eris.Wrapf(err, "write record to %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "flush %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}

	s.logger.Info("wrote month to csv",
		zap.String("path", path),
		zap.Int("records", len(records)),
	)
	return nil
}

// recordFields renders one record in crimeColumns order. Missing
// values render as empty fields, same as the source feed.
func recordFields(r model.CrimeRecord) []string {
	return []string{
		strDeref(r.PersistentID),
		int64Deref(r.APIID),
		r.Category,
		r.CategoryName,
		r.CrimeMonth,
		r.CrimeDate.Format("2006-01-02"),
		r.Region,
		strDeref(r.StreetName),
		int64Deref(r.StreetID),
		floatDeref(r.Latitude),
		floatDeref(r.Longitude),
		strDeref(r.LocationType),
		strDeref(r.OutcomeCategory),
		strDeref(r.OutcomeDate),
		r.ScrapedAt.UTC().Format(time.RFC3339),
		r.SourceEndpoint,
	}
}

func strDeref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func int64Deref(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}

func floatDeref(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
