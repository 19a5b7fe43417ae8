package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ca-srg/searchchat/internal/catalog"
	"github.com/ca-srg/searchchat/internal/metrics"
	"github.com/ca-srg/searchchat/internal/proxy"
	"github.com/ca-srg/searchchat/internal/types"
)

// WebSearchToolName is the name the tool is registered under
const WebSearchToolName = "web_search"

// Searcher performs a search against the backend
type Searcher interface {
	Search(ctx context.Context, req types.SearchRequest) (*types.SearchResponse, error)
}

// WebSearchArgs are the tool arguments
type WebSearchArgs struct {
	Query       string `json:"query"`
	Country     string `json:"country,omitempty"`
	SummaryLang string `json:"summary_lang,omitempty"`
}

// WebSearchTool exposes the search proxy as an MCP tool
type WebSearchTool struct {
	searcher    Searcher
	catalog     *catalog.Catalog
	instruments *toolInstruments
}

// NewWebSearchTool creates the tool. cat is used for descriptions and
// display names only; codes outside it are still forwarded.
func NewWebSearchTool(searcher Searcher, cat *catalog.Catalog) *WebSearchTool {
	return &WebSearchTool{
		searcher:    searcher,
		catalog:     cat,
		instruments: newToolInstruments(otel.Meter("searchchat/mcpserver")),
	}
}

// Definition returns the tool definition with its input schema
func (t *WebSearchTool) Definition() *mcp.Tool {
	countries := make([]string, 0, len(t.catalog.Countries))
	for _, c := range t.catalog.Countries {
		countries = append(countries, fmt.Sprintf("%s (%s)", c.Code, c.Name))
	}
	languages := make([]string, 0, len(t.catalog.SummaryLanguages))
	for _, l := range t.catalog.SummaryLanguages {
		languages = append(languages, fmt.Sprintf("%s (%s)", l.Code, l.Name))
	}

	return &mcp.Tool{
		Name:        WebSearchToolName,
		Description: "Search the web in a given country and get the results with an AI summary in the requested language.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Search query",
					MinLength:   jsonschema.Ptr(1),
				},
				"country": {
					Type:        "string",
					Description: "Two-letter country code to search in: " + strings.Join(countries, ", "),
					Pattern:     "^[A-Za-z]{2}$",
				},
				"summary_lang": {
					Type:        "string",
					Description: "Two-letter summary language code: " + strings.Join(languages, ", "),
					Pattern:     "^[A-Za-z]{2}$",
				},
			},
			Required: []string{"query"},
		},
	}
}

// Handle implements mcp.ToolHandler. Search failures are reported as tool
// errors in the result rather than protocol errors.
func (t *WebSearchTool) Handle(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := mcpTracer.Start(ctx, "mcpserver.web_search")
	defer span.End()

	start := time.Now()
	finish := func(outcome metrics.Outcome, errType string) {
		metrics.RecordSearch(metrics.SurfaceMCP, outcome)
		t.instruments.record(ctx, WebSearchToolName, outcome, errType, time.Since(start))
		if errType != "" {
			span.SetStatus(codes.Error, errType)
		}
	}

	if clientIP := clientIPFromContext(ctx); clientIP != "" {
		span.SetAttributes(attribute.String("mcp.client.ip", clientIP))
	}

	var args WebSearchArgs
	if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			span.RecordError(err)
			finish(metrics.OutcomeRejected, "invalid_arguments")
			return errorResult("invalid arguments: " + err.Error()), nil
		}
	}
	span.SetAttributes(attribute.String("mcp.query", truncateForAttribute(args.Query)))

	resp, err := t.searcher.Search(ctx, types.SearchRequest{
		Query:       args.Query,
		Country:     args.Country,
		SummaryLang: args.SummaryLang,
	})
	if err != nil {
		span.RecordError(err)
		var validationErr *proxy.ValidationError
		if errors.As(err, &validationErr) {
			finish(metrics.OutcomeRejected, "validation")
			return errorResult(validationErr.Error()), nil
		}
		finish(metrics.OutcomeFailure, "backend")
		return errorResult(proxy.FetchFailedMessage), nil
	}

	span.SetAttributes(
		attribute.String("search.country", resp.Country),
		attribute.Int("mcp.search.results", len(resp.Results)),
	)
	finish(metrics.OutcomeSuccess, "")

	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: t.format(resp)}},
		StructuredContent: resp,
	}, nil
}

// format renders resp as markdown for the model
func (t *WebSearchTool) format(resp *types.SearchResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", resp.Query)
	fmt.Fprintf(&b, "Country: %s | Summary language: %s\n\n",
		t.catalog.CountryName(resp.Country), t.catalog.LanguageName(resp.SummaryLang))

	if resp.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(resp.Summary)
		b.WriteString("\n\n")
	}

	b.WriteString("## Results\n\n")
	if len(resp.Results) == 0 {
		b.WriteString("No results.\n")
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, r.Title, r.Link)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return b.String()
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}
