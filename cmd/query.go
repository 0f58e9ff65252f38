package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/mspence07/PropertyIntel/internal/query"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run geo queries against the crime store",
}

var querySummaryCmd = &cobra.Command{
	Use:   "summary <postcode>",
	Short: "Category totals, monthly trend, and grand total around a postcode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		radius, _ := cmd.Flags().GetFloat64("radius")
		lookback, _ := cmd.Flags().GetInt("lookback")
		if radius == 0 {
			radius = cfg.Query.DefaultRadiusMeters
		}
		if lookback == 0 {
			lookback = cfg.Query.DefaultLookbackMonths
		}

		return withEngine(cmd, func(e *query.Engine) (any, error) {
			return e.Summarize(cmd.Context(), args[0], radius, lookback)
		})
	},
}

var queryHotspotsCmd = &cobra.Command{
	Use:   "hotspots <postcode>",
	Short: "Busiest streets around a postcode over the last year",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		radius, _ := cmd.Flags().GetFloat64("radius")
		if radius == 0 {
			radius = cfg.Query.DefaultRadiusMeters
		}

		return withEngine(cmd, func(e *query.Engine) (any, error) {
			return e.Hotspots(cmd.Context(), args[0], radius)
		})
	},
}

func withEngine(cmd *cobra.Command, fn func(*query.Engine) (any, error)) error {
	if err := cfg.Validate("query"); err != nil {
		return err
	}

	env, err := initApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := requireEngine(env); err != nil {
		return err
	}

	result, err := fn(env.Engine)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func init() {
	for _, c := range []*cobra.Command{querySummaryCmd, queryHotspotsCmd} {
		c.Flags().Float64("radius", 0, "search radius in meters (default from config)")
	}
	querySummaryCmd.Flags().Int("lookback", 0, "lookback window in months (default from config)")
	queryCmd.AddCommand(querySummaryCmd)
	queryCmd.AddCommand(queryHotspotsCmd)
	rootCmd.AddCommand(queryCmd)
}
