package main

import (
	"fmt"
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mspence07/PropertyIntel/internal/scrape"
)

// monthKeyPattern is the YYYY-MM shape the archive uses.
var monthKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Ingest crime data from the bulk archive",
}

var scrapeBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest the last N months from the archive",
	RunE: func(cmd *cobra.Command, _ []string) error {
		months, _ := cmd.Flags().GetInt("months")
		if months == 0 {
			months = cfg.Scrape.BackfillMonths
		}

		return withScraper(cmd, func(s *scrape.Service) (scrape.Result, error) {
			return s.BackfillAll(cmd.Context(), months)
		})
	},
}

var scrapeLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Ingest only the newest month in the archive",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withScraper(cmd, func(s *scrape.Service) (scrape.Result, error) {
			return s.ScrapeLatest(cmd.Context())
		})
	},
}

var scrapeMonthCmd = &cobra.Command{
	Use:   "month <YYYY-MM>",
	Short: "Ingest a single month from the archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		month := args[0]
		if !monthKeyPattern.MatchString(month) {
			return eris.Errorf("invalid month %q, want YYYY-MM", month)
		}

		return withScraper(cmd, func(s *scrape.Service) (scrape.Result, error) {
			return s.ScrapeSpecific(cmd.Context(), month)
		})
	},
}

func withScraper(cmd *cobra.Command, fn func(*scrape.Service) (scrape.Result, error)) error {
	if err := cfg.Validate("scrape"); err != nil {
		return err
	}

	env, err := initApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := fn(env.Scraper)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "months attempted: %d, succeeded: %d, records written: %d\n",
		res.MonthsAttempted, res.MonthsSucceeded, res.RecordsWritten)

	if res.MonthsAttempted > res.MonthsSucceeded {
		return eris.Errorf("%d month(s) failed, see run history", res.MonthsAttempted-res.MonthsSucceeded)
	}
	return nil
}

func init() {
	scrapeBackfillCmd.Flags().Int("months", 0, "limit to the last N months (0 = whole archive)")
	scrapeCmd.AddCommand(scrapeBackfillCmd)
	scrapeCmd.AddCommand(scrapeLatestCmd)
	scrapeCmd.AddCommand(scrapeMonthCmd)
	rootCmd.AddCommand(scrapeCmd)
}
