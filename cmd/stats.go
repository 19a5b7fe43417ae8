package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ca-srg/searchchat/internal/metrics"
)

var (
	statsDays int
	statsJSON bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show search counts per surface and outcome",
	Long: `
Show how many searches were made from each surface (web, api, cli, mcp),
split into successes, backend failures and rejected requests. Counts are
read from the local SQLite statistics database (STATS_DB_PATH).

Examples:
  searchchat stats              # Totals plus the last 7 days
  searchchat stats --days 30    # Totals plus the last 30 days
  searchchat stats --json
`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Number of days of daily counts to show")
	statsCmd.Flags().BoolVarP(&statsJSON, "json", "j", false, "Output statistics in JSON format")
}

type statsReport struct {
	Totals map[metrics.Surface]metrics.Totals `json:"totals"`
	Daily  []dailyCountJSON                   `json:"daily"`
}

type dailyCountJSON struct {
	Date    string `json:"date"`
	Surface string `json:"surface"`
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var store *metrics.Store
	if cfg.StatsDBPath != "" {
		store, err = metrics.NewStoreWithPath(cfg.StatsDBPath)
	} else {
		store, err = metrics.NewStore()
	}
	if err != nil {
		return fmt.Errorf("failed to open statistics database: %w", err)
	}
	defer func() { _ = store.Close() }()

	totals, err := store.GetAllTotals()
	if err != nil {
		return err
	}
	daily, err := store.GetDailyCounts(statsDays)
	if err != nil {
		return err
	}

	if statsJSON {
		report := statsReport{Totals: totals, Daily: make([]dailyCountJSON, 0, len(daily))}
		for _, dc := range daily {
			report.Daily = append(report.Daily, dailyCountJSON{
				Date:    dc.Date,
				Surface: string(dc.Surface),
				Outcome: string(dc.Outcome),
				Count:   dc.Count,
			})
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	printStats(totals, daily)
	return nil
}

func printStats(totals map[metrics.Surface]metrics.Totals, daily []metrics.DailyCount) {
	fmt.Println("=== Search Totals ===")
	fmt.Printf("%-8s %9s %9s %9s %10s %9s\n", "surface", "success", "failure", "rejected", "superseded", "total")
	for _, surface := range metrics.AllSurfaces {
		t := totals[surface]
		fmt.Printf("%-8s %9d %9d %9d %10d %9d\n", surface,
			t[metrics.OutcomeSuccess], t[metrics.OutcomeFailure], t[metrics.OutcomeRejected],
			t[metrics.OutcomeSuperseded], t.Sum())
	}

	fmt.Println()
	fmt.Printf("=== Daily Counts (last %d days) ===\n", statsDays)
	if len(daily) == 0 {
		fmt.Println("No searches recorded.")
		return
	}
	for _, dc := range daily {
		fmt.Printf("%s  %-4s %-10s %d\n", dc.Date, dc.Surface, dc.Outcome, dc.Count)
	}
}
