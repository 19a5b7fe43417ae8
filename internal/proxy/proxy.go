package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ca-srg/searchchat/internal/config"
	"github.com/ca-srg/searchchat/internal/types"
)

// FetchFailedMessage is the only failure text shown to callers for backend errors
const FetchFailedMessage = "Failed to fetch from backend"

// ErrFetchFailed wraps every backend failure returned by Forward and Search
var ErrFetchFailed = errors.New("failed to fetch from backend")

// Backend is the search/summarization service behind the proxy
type Backend interface {
	Search(ctx context.Context, req types.SearchRequest) (json.RawMessage, error)
}

// ValidationError reports a client request that cannot be forwarded
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Options holds the defaults substituted for missing request fields
type Options struct {
	DefaultCountry     string
	DefaultSummaryLang string
}

// OptionsFromConfig extracts proxy options from the application config
func OptionsFromConfig(cfg *types.Config) Options {
	return Options{
		DefaultCountry:     cfg.DefaultCountry,
		DefaultSummaryLang: cfg.DefaultSummaryLang,
	}
}

// Proxy resolves search requests and forwards them to the backend
type Proxy struct {
	backend Backend
	options Options
	logger  *log.Logger
	tracer  trace.Tracer
}

// New creates a proxy in front of backend
func New(backend Backend, options Options, logger *log.Logger) *Proxy {
	if logger == nil {
		logger = log.New(log.Writer(), "[proxy] ", log.LstdFlags)
	}
	if options.DefaultCountry == "" {
		options.DefaultCountry = "no"
	}
	if options.DefaultSummaryLang == "" {
		options.DefaultSummaryLang = "en"
	}
	return &Proxy{
		backend: backend,
		options: options,
		logger:  logger,
		tracer:  otel.Tracer("searchchat/proxy"),
	}
}

// Options returns the defaults in effect
func (p *Proxy) Options() Options {
	return p.options
}

// Resolve applies defaults to blank optional fields and validates the result
func (p *Proxy) Resolve(req types.SearchRequest) (types.SearchRequest, error) {
	resolved := types.SearchRequest{
		Query:       strings.TrimSpace(req.Query),
		Country:     strings.ToLower(strings.TrimSpace(req.Country)),
		SummaryLang: strings.ToLower(strings.TrimSpace(req.SummaryLang)),
	}

	if resolved.Query == "" {
		return resolved, &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if resolved.Country == "" {
		resolved.Country = p.options.DefaultCountry
	}
	if resolved.SummaryLang == "" {
		resolved.SummaryLang = p.options.DefaultSummaryLang
	}
	if !config.IsTwoLetterCode(resolved.Country) {
		return resolved, &ValidationError{Field: "country", Reason: "must be a two-letter code"}
	}
	if !config.IsTwoLetterCode(resolved.SummaryLang) {
		return resolved, &ValidationError{Field: "summaryLang", Reason: "must be a two-letter code"}
	}

	return resolved, nil
}

// Forward resolves req and sends it to the backend once, returning the
// backend body unchanged. Backend failures wrap ErrFetchFailed.
func (p *Proxy) Forward(ctx context.Context, req types.SearchRequest) (json.RawMessage, types.SearchRequest, error) {
	resolved, err := p.Resolve(req)
	if err != nil {
		return nil, resolved, err
	}

	ctx, span := p.tracer.Start(ctx, "proxy.Forward", trace.WithAttributes(
		attribute.String("search.country", resolved.Country),
		attribute.String("search.summary_lang", resolved.SummaryLang),
	))
	defer span.End()

	body, err := p.backend.Search(ctx, resolved)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, FetchFailedMessage)
		if !errors.Is(err, context.Canceled) {
			p.logger.Printf("Backend search failed for country=%s lang=%s: %v",
				resolved.Country, resolved.SummaryLang, err)
		}
		return nil, resolved, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	return body, resolved, nil
}

// Search forwards req and decodes the backend reply. Fields the backend
// leaves out are filled from the resolved request.
func (p *Proxy) Search(ctx context.Context, req types.SearchRequest) (*types.SearchResponse, error) {
	body, resolved, err := p.Forward(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp types.SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		p.logger.Printf("Backend response does not match the search schema: %v", err)
		return nil, fmt.Errorf("%w: decode response: %w", ErrFetchFailed, err)
	}

	if resp.Query == "" {
		resp.Query = resolved.Query
	}
	if resp.Country == "" {
		resp.Country = resolved.Country
	}
	if resp.SummaryLang == "" {
		resp.SummaryLang = resolved.SummaryLang
	}
	if resp.Results == nil {
		resp.Results = []types.SearchResult{}
	}

	return &resp, nil
}
