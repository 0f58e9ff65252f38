// Package sink routes normalized records to the configured
// persistence backends and writes per-run audit metadata.
package sink

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mspence07/PropertyIntel/internal/model"
)

// Mode selects which sink capabilities a Router dispatches to.
type Mode string

const (
	ModePostgres Mode = "postgres"
	ModeCSV      Mode = "csv"
	ModeBoth     Mode = "both"
)

// ParseMode validates a configured output mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePostgres, ModeCSV, ModeBoth:
		return Mode(s), nil
	default:
		return "", eris.Errorf("sink: unknown output mode %q (want postgres, csv, or both)", s)
	}
}

// RecordSink is one persistence capability for normalized records.
type RecordSink interface {
	Name() string

	// Write persists one month's records. A failure aborts this
	// sink's remaining work for the call and propagates.
	Write(ctx context.Context, records []model.CrimeRecord, monthKey, region string) error
}

// RunSink persists scrape-run audit rows.
type RunSink interface {
	WriteRun(ctx context.Context, run *model.ScrapeRun) error
}

// Router dispatches records to the sinks selected by configuration.
// The dispatch table is fixed at startup; no per-call branching.
type Router struct {
	sinks  []RecordSink
	runLog RunSink
}

// NewRouter builds the dispatch table for the given mode. The audit
// sink is nil in csv-only mode, where no database is configured.
func NewRouter(mode Mode, pg RecordSink, csv RecordSink, runLog RunSink) (*Router, error) {
	table := map[Mode][]RecordSink{
		ModePostgres: {pg},
		ModeCSV:      {csv},
		ModeBoth:     {pg, csv},
	}
	sinks, ok := table[mode]
	if !ok {
		return nil, eris.Errorf("sink: unknown output mode %q", mode)
	}
	for _, s := range sinks {
		if s == nil {
			return nil, eris.Errorf("sink: mode %q requires a sink that was not configured", mode)
		}
	}
	if mode == ModeCSV {
		runLog = nil
	}
	return &Router{sinks: sinks, runLog: runLog}, nil
}

// Route writes the records to every selected sink in order. The first
// sink failure propagates; earlier sink writes are not rolled back
// (natural-key dedup at the store makes a retried re-run safe).
func (r *Router) Route(ctx context.Context, records []model.CrimeRecord, monthKey, region string) error {
	for _, s := range r.sinks {
		if err := s.Write(ctx, records, monthKey, region); err != nil {
			return eris.Wrapf(err, "sink: %s write for %s", s.Name(), monthKey)
		}
	}
	return nil
}

// WriteRun persists the audit row best-effort: a failure is logged and
// swallowed, never propagated. Losing an audit entry must not fail or
// mask the ingestion result it describes.
func (r *Router) WriteRun(ctx context.Context, run *model.ScrapeRun) {
	if r.runLog == nil {
		return
	}
	if err := r.runLog.WriteRun(ctx, run); err != nil {
		zap.L().Warn("failed to write scrape run audit row",
			zap.String("run_id", run.RunID),
			zap.String("month", run.TargetMonth),
			zap.Error(err),
		)
	}
}
