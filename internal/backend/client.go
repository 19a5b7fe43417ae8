package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ca-srg/searchchat/internal/types"
)

const (
	searchPath      = "/api/search"
	maxResponseSize = 10 << 20 // 10MB
)

// Config holds the backend client settings
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	RetryAttempts      int
	RetryDelay         time.Duration
	RateLimit          float64
	RateBurst          int
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// NewConfigFromTypes builds a client Config from the application config
func NewConfigFromTypes(cfg *types.Config) *Config {
	return &Config{
		BaseURL:            cfg.BackendBaseURL,
		Timeout:            cfg.BackendTimeout,
		RetryAttempts:      cfg.BackendRetryAttempts,
		RetryDelay:         cfg.BackendRetryDelay,
		RateLimit:          cfg.BackendRateLimit,
		RateBurst:          cfg.BackendRateBurst,
		BreakerMaxFailures: uint32(cfg.BackendBreakerMaxFailures),
		BreakerTimeout:     cfg.BackendBreakerTimeout,
	}
}

// backendRequest is the body the backend expects; field names are snake_case
type backendRequest struct {
	Query       string `json:"query"`
	Country     string `json:"country"`
	SummaryLang string `json:"summary_lang"`
}

// Client talks to the search/summarization backend
type Client struct {
	httpClient  *http.Client
	endpoint    string
	config      *Config
	rateLimiter *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
	logger      *log.Logger
	tracer      trace.Tracer
	requests    metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewClient creates a backend client
func NewClient(cfg *Config, logger *log.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[backend] ", log.LstdFlags)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5.0
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		endpoint:    cfg.BaseURL + searchPath,
		config:      cfg,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:      logger,
		tracer:      otel.Tracer("searchchat/backend"),
	}

	maxFailures := cfg.BreakerMaxFailures
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "backend:" + cfg.BaseURL,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations and client errors say nothing about backend health
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var backendErr *Error
			if errors.As(err, &backendErr) {
				return !backendErr.Retryable && backendErr.Type == types.ErrorTypeBackendStatus
			}
			return false
		},
	})

	meter := otel.Meter("searchchat/backend")
	var err error
	c.requests, err = meter.Int64Counter("searchchat.backend.requests",
		metric.WithDescription("Backend search requests by outcome"),
		metric.WithUnit("{requests}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	c.latency, err = meter.Float64Histogram("searchchat.backend.duration",
		metric.WithDescription("Backend search latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create latency histogram: %w", err)
	}

	return c, nil
}

// Endpoint returns the full backend search URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Search forwards req to the backend and returns the response body unchanged.
// The body is guaranteed to be valid JSON.
func (c *Client) Search(ctx context.Context, req types.SearchRequest) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "backend.Search", trace.WithAttributes(
		attribute.Int("search.query_length", len(req.Query)),
		attribute.String("search.country", req.Country),
		attribute.String("search.summary_lang", req.SummaryLang),
	))
	defer span.End()

	start := time.Now()
	body, err := c.search(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = string(ErrorType(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("search.response_bytes", len(body)))
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	c.requests.Add(ctx, 1, attrs)
	c.latency.Record(ctx, time.Since(start).Seconds(), attrs)

	return body, err
}

func (c *Client) search(ctx context.Context, req types.SearchRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(backendRequest{
		Query:       req.Query,
		Country:     req.Country,
		SummaryLang: req.SummaryLang,
	})
	if err != nil {
		return nil, newError(types.ErrorTypeValidation, "failed to encode request", false, err)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, newError(types.ErrorTypeRateLimit, "rate limit wait aborted", false, err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.executeWithRetry(ctx, func() ([]byte, error) {
			return c.post(ctx, payload)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, newError(types.ErrorTypeCircuitOpen, "backend circuit open", false, err)
		}
		return nil, err
	}

	return json.RawMessage(body), nil
}

// executeWithRetry runs operation, retrying retryable failures with exponential backoff
func (c *Client) executeWithRetry(ctx context.Context, operation func() ([]byte, error)) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryDelay
			c.logger.Printf("Retrying backend search after %v (attempt %d/%d)",
				delay, attempt, c.config.RetryAttempts)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, classifyTransportError(ctx.Err())
			case <-timer.C:
			}
		}

		body, err := operation()
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("Backend search succeeded after %d retries", attempt)
			}
			return body, nil
		}
		lastErr = err

		var backendErr *Error
		if !errors.As(err, &backendErr) || !backendErr.IsRetryable() {
			return nil, err
		}
		c.logger.Printf("Backend search failed (attempt %d/%d): %v",
			attempt+1, c.config.RetryAttempts+1, err)
	}

	return nil, lastErr
}

// post performs a single POST to the backend search endpoint
func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, newError(types.ErrorTypeValidation, "failed to build request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ClassifyHTTPStatus(resp.StatusCode)
	}

	if len(body) > maxResponseSize {
		return nil, newError(types.ErrorTypeBackendDecode, "backend response too large", false, nil)
	}
	if !json.Valid(body) {
		return nil, newError(types.ErrorTypeBackendDecode, "backend returned malformed JSON", false, nil)
	}

	return body, nil
}

// State returns the circuit breaker state
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}
