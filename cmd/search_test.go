package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/searchchat/internal/metrics"
	"github.com/ca-srg/searchchat/internal/proxy"
	commontypes "github.com/ca-srg/searchchat/internal/types"
)

func TestMain(m *testing.M) {
	metrics.Configure(false, "")
	os.Exit(m.Run())
}

func testConfig(backendURL string) *commontypes.Config {
	return &commontypes.Config{
		BackendBaseURL:       backendURL,
		BackendTimeout:       2 * time.Second,
		BackendRetryAttempts: 0,
		BackendRateLimit:     1000,
		BackendRateBurst:     1000,
		DefaultCountry:       "no",
		DefaultSummaryLang:   "en",
		OTelServiceName:      "searchchat-test",
	}
}

func useConfig(t *testing.T, cfg *commontypes.Config, err error) {
	t.Helper()
	prev := loadAppConfig
	loadAppConfig = func() (*commontypes.Config, error) { return cfg, err }
	t.Cleanup(func() { loadAppConfig = prev })
}

func resetSearchFlags(t *testing.T, query, country, summaryLang string, asJSON bool) {
	t.Helper()
	prevQuery, prevCountry, prevLang, prevJSON := searchQuery, searchCountry, searchSummaryLang, searchJSON
	searchQuery, searchCountry, searchSummaryLang, searchJSON = query, country, summaryLang, asJSON
	t.Cleanup(func() {
		searchQuery, searchCountry, searchSummaryLang, searchJSON = prevQuery, prevCountry, prevLang, prevJSON
	})
}

func newSearchBackend(t *testing.T, got *map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"query": "golden gate bridge",
			"selected_country": "us",
			"summary_lang": "jp",
			"summary": "Suspension bridge.",
			"results": [
				{"title": "Golden Gate Bridge", "snippet": "Iconic", "link": "https://example.com/ggb", "image_url": "https://example.com/ggb.png"}
			]
		}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunSearchPrintsSummaryAndResults(t *testing.T) {
	var got map[string]string
	backend := newSearchBackend(t, &got)
	useConfig(t, testConfig(backend.URL), nil)
	resetSearchFlags(t, "golden gate bridge", "us", "jp", false)

	var runErr error
	output := captureOutput(t, func() {
		runErr = runSearch(searchCmd, nil)
	})
	require.NoError(t, runErr)

	assert.Equal(t, map[string]string{"query": "golden gate bridge", "country": "us", "summary_lang": "jp"}, got)
	assert.Contains(t, output, "=== golden gate bridge ===")
	assert.Contains(t, output, "Country: United States | Summary language: Japanese")
	assert.Contains(t, output, "Suspension bridge.")
	assert.Contains(t, output, "1. Golden Gate Bridge")
	assert.Contains(t, output, "https://example.com/ggb")
}

func TestRunSearchAppliesDefaults(t *testing.T) {
	var got map[string]string
	backend := newSearchBackend(t, &got)
	useConfig(t, testConfig(backend.URL), nil)
	resetSearchFlags(t, "fjords", "", "", false)

	var runErr error
	captureOutput(t, func() {
		runErr = runSearch(searchCmd, nil)
	})
	require.NoError(t, runErr)
	assert.Equal(t, "no", got["country"])
	assert.Equal(t, "en", got["summary_lang"])
}

func TestRunSearchJSONOutput(t *testing.T) {
	backend := newSearchBackend(t, nil)
	useConfig(t, testConfig(backend.URL), nil)
	resetSearchFlags(t, "golden gate bridge", "us", "jp", true)

	var runErr error
	output := captureOutput(t, func() {
		runErr = runSearch(searchCmd, nil)
	})
	require.NoError(t, runErr)

	var resp commontypes.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "us", resp.Country)
	assert.Equal(t, "jp", resp.SummaryLang)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "https://example.com/ggb.png", resp.Results[0].ImageURL)
}

func TestRunSearchBackendFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer backend.Close()
	useConfig(t, testConfig(backend.URL), nil)
	resetSearchFlags(t, "cats", "", "", false)

	err := runSearch(searchCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), proxy.FetchFailedMessage)
}

func TestRunSearchValidationError(t *testing.T) {
	useConfig(t, testConfig("http://127.0.0.1:1"), nil)
	resetSearchFlags(t, "cats", "usa", "", false)

	err := runSearch(searchCmd, nil)
	var validationErr *proxy.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "country", validationErr.Field)
}

func TestCommandsReportConfigErrors(t *testing.T) {
	useConfig(t, nil, errors.New("BACKEND_BASE_URL cannot be empty"))

	tests := []struct {
		name string
		run  func() error
	}{
		{"serve", func() error { return runServe(serveCmd, nil) }},
		{"search", func() error { return runSearch(searchCmd, nil) }},
		{"mcp-server", func() error { return runMCPServer(mcpServerCmd, nil) }},
		{"stats", func() error { return runStats(statsCmd, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "BACKEND_BASE_URL cannot be empty")
		})
	}
}

func TestCommandsReportCatalogErrors(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.CatalogFile = filepath.Join(t.TempDir(), "missing.yaml")
	useConfig(t, cfg, nil)
	resetSearchFlags(t, "cats", "", "", false)

	err := runSearch(searchCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load catalog")
}

func TestMCPServerRejectsInvalidAllowlist(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.MCPAllowedIPs = []string{"not-an-ip"}
	useConfig(t, cfg, nil)

	err := runMCPServer(mcpServerCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create MCP server")
}

func TestRootRegistersCommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "search", "mcp-server", "stats"})

	flag := searchCmd.Flags().Lookup("summary-lang")
	require.NotNil(t, flag)
	assert.Equal(t, "l", flag.Shorthand)
}
