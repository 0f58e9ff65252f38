package main

import (
	"context"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/mspence07/PropertyIntel/internal/archive"
	"github.com/mspence07/PropertyIntel/internal/config"
	"github.com/mspence07/PropertyIntel/internal/crimedb"
	"github.com/mspence07/PropertyIntel/internal/db"
	"github.com/mspence07/PropertyIntel/internal/fetcher"
	"github.com/mspence07/PropertyIntel/internal/query"
	"github.com/mspence07/PropertyIntel/internal/scrape"
	"github.com/mspence07/PropertyIntel/internal/sink"
	"github.com/mspence07/PropertyIntel/pkg/postcode"
)

// appEnv holds the wired collaborators a command needs. Pool is nil in
// csv-only output mode.
type appEnv struct {
	Pool    *pgxpool.Pool
	Scraper *scrape.Service
	Engine  *query.Engine
	RunLog  *sink.RunLog
}

func (e *appEnv) Close() {
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// initPool connects and applies pending migrations.
func initPool(ctx context.Context, c *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, c.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := crimedb.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// initApp wires the ingestion and query stacks from configuration.
func initApp(ctx context.Context, c *config.Config) (*appEnv, error) {
	mode, err := sink.ParseMode(c.Output.Mode)
	if err != nil {
		return nil, err
	}

	env := &appEnv{}
	if mode != sink.ModeCSV {
		pool, err := initPool(ctx, c)
		if err != nil {
			return nil, err
		}
		env.Pool = pool
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    c.Archive.UserAgent,
		Timeout:      time.Duration(c.Archive.TimeoutMins) * time.Minute,
		MaxRetries:   c.Archive.MaxRetries,
		RateLimiters: archiveLimiters(c),
	})
	arch := archive.NewClient(f, archive.Options{
		ArchiveURL:   c.Archive.URL,
		MetadataURL:  c.Archive.MetadataURL,
		RegionSuffix: c.Archive.RegionSuffix,
	})

	var pg, csv sink.RecordSink
	var runLog sink.RunSink
	if env.Pool != nil {
		env.RunLog = sink.NewRunLog(env.Pool)
		pg = sink.NewPostgresSink(env.Pool)
		runLog = env.RunLog
	}
	if mode != sink.ModePostgres {
		csv = sink.NewCSVSink(c.Output.CSVDir, c.Output.CSVHeader)
	}

	router, err := sink.NewRouter(mode, pg, csv, runLog)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Scraper = scrape.NewService(arch, router)

	if env.Pool != nil {
		resolver := postcode.NewClient(
			postcode.WithBaseURL(c.Geocode.BaseURL),
			postcode.WithRateLimit(c.Geocode.RPS),
		)
		env.Engine = query.NewEngine(env.Pool, resolver)
	}

	return env, nil
}

// archiveLimiters keys the fixed-rate limiters by the configured
// hosts, falling back to the defaults on a bad URL.
func archiveLimiters(c *config.Config) map[string]*rate.Limiter {
	limiters := fetcher.DefaultRateLimiters()

	if u, err := url.Parse(c.Archive.URL); err == nil && u.Host != "" {
		limiters[u.Host] = rate.NewLimiter(rate.Limit(c.Archive.RPS), 1)
	}
	if u, err := url.Parse(c.Geocode.BaseURL); err == nil && u.Host != "" {
		limiters[u.Host] = rate.NewLimiter(rate.Limit(c.Geocode.RPS), 1)
	}
	return limiters
}

// requireEngine guards query commands in csv-only deployments.
func requireEngine(env *appEnv) error {
	if env.Engine == nil {
		return eris.New("queries require a database; output.mode is csv")
	}
	return nil
}
