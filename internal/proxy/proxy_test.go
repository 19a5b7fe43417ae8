package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/searchchat/internal/backend"
	"github.com/ca-srg/searchchat/internal/metrics"
	"github.com/ca-srg/searchchat/internal/types"
)

func TestMain(m *testing.M) {
	metrics.Configure(false, "")
	os.Exit(m.Run())
}

type fakeBackend struct {
	calls    atomic.Int32
	lastReq  types.SearchRequest
	response json.RawMessage
	err      error
}

func (f *fakeBackend) Search(_ context.Context, req types.SearchRequest) (json.RawMessage, error) {
	f.calls.Add(1)
	f.lastReq = req
	return f.response, f.err
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newBackendProxy wires a proxy to a real backend client talking to handler
func newBackendProxy(t *testing.T, handler http.HandlerFunc) *Proxy {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := backend.NewClient(&backend.Config{
		BaseURL:       server.URL,
		Timeout:       2 * time.Second,
		RetryAttempts: 0,
		RateLimit:     1000,
		RateBurst:     1000,
	}, quietLogger())
	require.NoError(t, err)

	return New(client, Options{DefaultCountry: "no", DefaultSummaryLang: "en"}, quietLogger())
}

func postSearch(t *testing.T, p *Proxy, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	return rec
}

func TestProxy_ForwardsDefaults(t *testing.T) {
	var forwarded map[string]string
	p := newBackendProxy(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&forwarded))
		_, _ = w.Write([]byte(`{"results":[],"summary":""}`))
	})

	rec := postSearch(t, p, `{"query":"cats"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cats", forwarded["query"])
	assert.Equal(t, "no", forwarded["country"])
	assert.Equal(t, "en", forwarded["summary_lang"])
}

func TestProxy_AcceptsBothLanguageFieldNames(t *testing.T) {
	for _, body := range []string{
		`{"query":"cats","country":"jp","summaryLang":"fr"}`,
		`{"query":"cats","country":"jp","summary_lang":"fr"}`,
	} {
		fake := &fakeBackend{response: json.RawMessage(`{}`)}
		p := New(fake, Options{}, quietLogger())

		rec := postSearch(t, p, body)

		assert.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, "jp", fake.lastReq.Country)
		assert.Equal(t, "fr", fake.lastReq.SummaryLang)
	}
}

func TestProxy_RelaysBodyUnchanged(t *testing.T) {
	raw := `{"query":"cats","selected_country":"no","summary_lang":"en","results":[{"title":"Cat","snippet":"meow","link":"https://cats.example","image_url":null}],"summary":"Cats.","took_ms":12}`
	p := newBackendProxy(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(raw))
	})

	rec := postSearch(t, p, `{"query":"cats"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, raw, rec.Body.String())
}

func TestProxy_BackendFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "backend returns 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "backend returns 404",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "backend returns malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"results":[`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newBackendProxy(t, tt.handler)

			rec := postSearch(t, p, `{"query":"cats"}`)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"Failed to fetch from backend"}`, rec.Body.String())
		})
	}
}

func TestProxy_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := backend.NewClient(&backend.Config{BaseURL: url, RetryAttempts: 0}, quietLogger())
	require.NoError(t, err)
	p := New(client, Options{}, quietLogger())

	rec := postSearch(t, p, `{"query":"cats"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch from backend"}`, rec.Body.String())
}

func TestProxy_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `query=cats`, "invalid JSON body"},
		{"empty query", `{"query":"   "}`, "query must not be empty"},
		{"long country", `{"query":"cats","country":"nor"}`, "country must be a two-letter code"},
		{"numeric language", `{"query":"cats","summaryLang":"e1"}`, "summaryLang must be a two-letter code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBackend{response: json.RawMessage(`{}`)}
			p := New(fake, Options{}, quietLogger())

			rec := postSearch(t, p, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Error)
			assert.Equal(t, int32(0), fake.calls.Load(), "backend must not be called")
		})
	}
}

func TestProxy_MethodNotAllowed(t *testing.T) {
	p := New(&fakeBackend{}, Options{}, quietLogger())
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestResolve(t *testing.T) {
	p := New(&fakeBackend{}, Options{DefaultCountry: "us", DefaultSummaryLang: "de"}, quietLogger())

	resolved, err := p.Resolve(types.SearchRequest{Query: "  bridges  ", Country: " JP "})
	require.NoError(t, err)
	assert.Equal(t, types.SearchRequest{Query: "bridges", Country: "jp", SummaryLang: "de"}, resolved)

	resolved, err = p.Resolve(types.SearchRequest{Query: "bridges"})
	require.NoError(t, err)
	assert.Equal(t, "us", resolved.Country)
}

func TestSearch_FillsMissingFields(t *testing.T) {
	fake := &fakeBackend{response: json.RawMessage(`{
		"results":[{"title":"Golden Gate Bridge","link":"https://example.com/ggb","snippet":"Suspension bridge"}],
		"summary":"A bridge in San Francisco."
	}`)}
	p := New(fake, Options{}, quietLogger())

	resp, err := p.Search(context.Background(), types.SearchRequest{
		Query: "golden gate bridge", Country: "us", SummaryLang: "en",
	})
	require.NoError(t, err)

	assert.Equal(t, "golden gate bridge", resp.Query)
	assert.Equal(t, "us", resp.Country)
	assert.Equal(t, "en", resp.SummaryLang)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Golden Gate Bridge", resp.Results[0].Title)
	assert.Equal(t, "A bridge in San Francisco.", resp.Summary)
}

func TestSearch_UsesBackendEchoedFields(t *testing.T) {
	fake := &fakeBackend{response: json.RawMessage(
		`{"query":"Q","selected_country":"fr","summary_lang":"de","results":[],"summary":"s"}`)}
	p := New(fake, Options{}, quietLogger())

	resp, err := p.Search(context.Background(), types.SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "Q", resp.Query)
	assert.Equal(t, "fr", resp.Country)
	assert.Equal(t, "de", resp.SummaryLang)
}

func TestSearch_Errors(t *testing.T) {
	t.Run("backend error wraps ErrFetchFailed", func(t *testing.T) {
		cause := errors.New("boom")
		p := New(&fakeBackend{err: cause}, Options{}, quietLogger())

		_, err := p.Search(context.Background(), types.SearchRequest{Query: "q"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFetchFailed)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("schema mismatch wraps ErrFetchFailed", func(t *testing.T) {
		p := New(&fakeBackend{response: json.RawMessage(`[1,2,3]`)}, Options{}, quietLogger())

		_, err := p.Search(context.Background(), types.SearchRequest{Query: "q"})
		assert.ErrorIs(t, err, ErrFetchFailed)
	})

	t.Run("validation error is not a fetch failure", func(t *testing.T) {
		fake := &fakeBackend{}
		p := New(fake, Options{}, quietLogger())

		_, err := p.Search(context.Background(), types.SearchRequest{Query: ""})
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.NotErrorIs(t, err, ErrFetchFailed)
		assert.Equal(t, int32(0), fake.calls.Load())
	})
}
