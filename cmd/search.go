package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ca-srg/searchchat/internal/catalog"
	"github.com/ca-srg/searchchat/internal/metrics"
	"github.com/ca-srg/searchchat/internal/proxy"
	commontypes "github.com/ca-srg/searchchat/internal/types"
)

var (
	searchQuery       string
	searchCountry     string
	searchSummaryLang string
	searchJSON        bool
	searchTimeout     int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a single search through the backend",
	Long: `
Run one search through the same proxy the web UI uses and print the summary
and results. Missing country and summary language fall back to
DEFAULT_COUNTRY and DEFAULT_SUMMARY_LANG.

Examples:
  searchchat search -q "golden gate bridge"
  searchchat search -q "fjords" --country no --summary-lang ja
  searchchat search -q "cats" --json
`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Text query to search for (required)")
	searchCmd.Flags().StringVarP(&searchCountry, "country", "c", "", "Two-letter country code (defaults to config)")
	searchCmd.Flags().StringVarP(&searchSummaryLang, "summary-lang", "l", "", "Two-letter summary language code (defaults to config)")
	searchCmd.Flags().BoolVarP(&searchJSON, "json", "j", false, "Output results in JSON format")
	searchCmd.Flags().IntVar(&searchTimeout, "timeout", 60, "Request timeout in seconds")

	_ = searchCmd.MarkFlagRequired("query")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	flush := initTelemetry(cfg)
	defer flush()

	p, err := newProxy(cfg, "[search] ")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(searchTimeout)*time.Second)
	defer cancel()

	resp, err := p.Search(ctx, commontypes.SearchRequest{
		Query:       searchQuery,
		Country:     searchCountry,
		SummaryLang: searchSummaryLang,
	})
	if err != nil {
		var validationErr *proxy.ValidationError
		if errors.As(err, &validationErr) {
			metrics.RecordSearch(metrics.SurfaceCLI, metrics.OutcomeRejected)
			return err
		}
		metrics.RecordSearch(metrics.SurfaceCLI, metrics.OutcomeFailure)
		return fmt.Errorf("%s: %w", proxy.FetchFailedMessage, err)
	}
	metrics.RecordSearch(metrics.SurfaceCLI, metrics.OutcomeSuccess)

	if searchJSON {
		return outputSearchJSON(resp)
	}
	printSearchResponse(resp, cat)
	return nil
}

func outputSearchJSON(resp *commontypes.SearchResponse) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(resp); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

func printSearchResponse(resp *commontypes.SearchResponse, cat *catalog.Catalog) {
	fmt.Printf("=== %s ===\n", resp.Query)
	fmt.Printf("Country: %s | Summary language: %s\n\n",
		cat.CountryName(resp.Country), cat.LanguageName(resp.SummaryLang))

	if resp.Summary != "" {
		fmt.Println("Summary:")
		fmt.Println(resp.Summary)
		fmt.Println()
	}

	if len(resp.Results) == 0 {
		fmt.Println("No results found.")
		return
	}

	fmt.Printf("Results (%d):\n", len(resp.Results))
	for i, r := range resp.Results {
		fmt.Printf("%d. %s\n", i+1, r.Title)
		fmt.Printf("   %s\n", r.Link)
		if r.Snippet != "" {
			fmt.Printf("   %s\n", r.Snippet)
		}
	}
}
