package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mspence07/PropertyIntel/internal/config"
	"github.com/mspence07/PropertyIntel/internal/jobs"
	"github.com/mspence07/PropertyIntel/internal/metrics"
	"github.com/mspence07/PropertyIntel/pkg/postcode"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger and query server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		runner := jobs.NewRunner(ctx, cfg.Scrape.MaxConcurrentJobs)

		if cfg.Scrape.RunOnStartup {
			runner.Submit("startup-backfill", func(jctx context.Context) error {
				_, err := env.Scraper.BackfillAll(jctx, cfg.Scrape.BackfillMonths)
				return err
			})
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, runner, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// Let in-flight ingestion jobs finish before exiting.
		zap.L().Info("draining jobs")
		return runner.Wait()
	},
}

// newRouter builds the HTTP surface. Trigger endpoints acknowledge
// with 202 immediately; outcomes land in the scrape run audit trail.
func newRouter(env *appEnv, runner *jobs.Runner, c *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/scrape/trigger/latest", func(w http.ResponseWriter, _ *http.Request) {
		id := runner.Submit("scrape-latest", func(jctx context.Context) error {
			_, err := env.Scraper.ScrapeLatest(jctx)
			return err
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "job_id": id})
	})

	r.Post("/scrape/trigger/{yearMonth}", func(w http.ResponseWriter, req *http.Request) {
		month := chi.URLParam(req, "yearMonth")
		if !monthKeyPattern.MatchString(month) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid month %q, want YYYY-MM", month))
			return
		}
		id := runner.Submit("scrape-month-"+month, func(jctx context.Context) error {
			_, err := env.Scraper.ScrapeSpecific(jctx, month)
			return err
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "job_id": id, "month": month})
	})

	r.Post("/scrape/backfill", func(w http.ResponseWriter, req *http.Request) {
		months := c.Scrape.BackfillMonths
		if raw := req.URL.Query().Get("months"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "months must be a non-negative integer")
				return
			}
			months = n
		}
		id := runner.Submit("backfill", func(jctx context.Context) error {
			_, err := env.Scraper.BackfillAll(jctx, months)
			return err
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "job_id": id})
	})

	r.Get("/scrape/status", func(w http.ResponseWriter, req *http.Request) {
		if env.RunLog == nil {
			writeError(w, http.StatusNotImplemented, "run history requires a database")
			return
		}
		limit := 20
		if raw := req.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		runs, err := env.RunLog.ListRuns(req.Context(), req.URL.Query().Get("status"), limit)
		if err != nil {
			zap.L().Error("run listing failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list runs")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	})

	r.Get("/crimes", func(w http.ResponseWriter, req *http.Request) {
		if env.Engine == nil {
			writeError(w, http.StatusNotImplemented, "queries require a database")
			return
		}
		pc := req.URL.Query().Get("postcode")
		if pc == "" {
			writeError(w, http.StatusBadRequest, "postcode is required")
			return
		}
		radius := floatParam(req, "radius", c.Query.DefaultRadiusMeters)
		lookback := intParam(req, "lookback", c.Query.DefaultLookbackMonths)

		summary, err := env.Engine.Summarize(req.Context(), pc, radius, lookback)
		if err != nil {
			writeQueryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	})

	r.Get("/crimes/hotspots", func(w http.ResponseWriter, req *http.Request) {
		if env.Engine == nil {
			writeError(w, http.StatusNotImplemented, "queries require a database")
			return
		}
		pc := req.URL.Query().Get("postcode")
		if pc == "" {
			writeError(w, http.StatusBadRequest, "postcode is required")
			return
		}
		radius := floatParam(req, "radius", c.Query.DefaultRadiusMeters)

		hotspots, err := env.Engine.Hotspots(req.Context(), pc, radius)
		if err != nil {
			writeQueryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"hotspots": hotspots})
	})

	return r
}

// writeQueryError maps an unknown postcode to a client fault and
// everything else to a server fault.
func writeQueryError(w http.ResponseWriter, err error) {
	if eris.Is(err, postcode.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "postcode not found")
		return
	}
	zap.L().Error("query failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "query failed")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func floatParam(req *http.Request, name string, fallback float64) float64 {
	if raw := req.URL.Query().Get(name); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func intParam(req *http.Request, name string, fallback int) int {
	if raw := req.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
