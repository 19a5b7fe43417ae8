package webui

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/searchchat/internal/metrics"
	"github.com/ca-srg/searchchat/internal/proxy"
	"github.com/ca-srg/searchchat/internal/session"
	"github.com/ca-srg/searchchat/internal/types"
)

func TestMain(m *testing.M) {
	metrics.Configure(false, "")
	os.Exit(m.Run())
}

// stubBackend answers every search with a canned body, or err when set
type stubBackend struct {
	mu       sync.Mutex
	err      error
	requests []types.SearchRequest
}

func (b *stubBackend) Search(_ context.Context, req types.SearchRequest) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	body, _ := json.Marshal(map[string]interface{}{
		"query":        req.Query,
		"country":      req.Country,
		"summary_lang": req.SummaryLang,
		"summary":      "A suspension bridge.",
		"results": []map[string]string{
			{"title": "Golden Gate Bridge", "snippet": "Iconic bridge", "link": "https://example.com/ggb", "image_url": "https://example.com/ggb.jpg"},
		},
	})
	return body, nil
}

func (b *stubBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func newTestServer(t *testing.T) (*Server, *stubBackend) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	backend := &stubBackend{}
	p := proxy.New(backend, proxy.Options{DefaultCountry: "no", DefaultSummaryLang: "en"}, logger)
	tokens, _, err := session.NewTokenSigner("test-secret", 0)
	require.NoError(t, err)

	s, err := NewServer(DefaultServerConfig(), p, nil, tokens, logger)
	require.NoError(t, err)
	t.Cleanup(s.sessions.Close)
	return s, backend
}

// do runs a request through the full handler chain, replaying cookies
func do(t *testing.T, h http.Handler, req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) APISessionResponse {
	t.Helper()
	var resp APISessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestIndexCreatesSession(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "New Chat")
	assert.Contains(t, rec.Body.String(), "No searches yet")
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, DefaultCookieName, rec.Result().Cookies()[0].Name)
	assert.True(t, rec.Result().Cookies()[0].HttpOnly)
	assert.Equal(t, 1, s.sessions.Len())
}

func TestIndexNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/nope", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionSearchLifecycle(t *testing.T) {
	s, backend := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, postJSON("/api/session/search", `{"query":"golden gate bridge","country":"us","summaryLang":"en"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	first := decodeSession(t, rec)
	require.Len(t, first.History, 1)
	entry := first.History[0]
	assert.Equal(t, "golden gate bridge", entry.Query)
	assert.Equal(t, "us", entry.Country)
	assert.Equal(t, "en", entry.SummaryLang)
	assert.Equal(t, "https://example.com/ggb.jpg", entry.Results[0].ImageURL)
	assert.Equal(t, entry.ID, first.SelectedID)
	assert.False(t, first.Loading)
	assert.Empty(t, first.Error)
	assert.Empty(t, first.Draft)

	// Same cookie, same session
	rec = do(t, h, postJSON("/api/session/search", `{"query":"fjords"}`), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
	second := decodeSession(t, rec)
	assert.Equal(t, first.SessionID, second.SessionID)
	require.Len(t, second.History, 2)
	assert.Equal(t, "fjords", second.History[0].Query)
	assert.Equal(t, "no", second.History[0].Country)
	assert.Equal(t, "no", second.Country)
	assert.Equal(t, 2, backend.calls())

	// Select the older entry
	rec = do(t, h, postJSON("/api/session/select", `{"id":"`+entry.ID+`"}`), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entry.ID, decodeSession(t, rec).SelectedID)

	// Unknown id leaves the selection alone
	rec = do(t, h, postJSON("/api/session/select", `{"id":"missing"}`), cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, entry.ID, decodeSession(t, rec).SelectedID)

	// New chat keeps history
	rec = do(t, h, postJSON("/api/session/new", `{}`), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := decodeSession(t, rec)
	assert.Empty(t, fresh.SelectedID)
	assert.Len(t, fresh.History, 2)

	// Snapshot endpoint agrees
	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/session", nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := decodeSession(t, rec)
	assert.Len(t, snapshot.History, 2)
	assert.Empty(t, snapshot.SelectedID)
}

func TestSessionSearchRemembersResolvedCodes(t *testing.T) {
	s, backend := newTestServer(t)
	h := s.Handler()

	form := url.Values{"query": {"fjords"}, "country": {"US"}, "summaryLang": {"JP"}}
	req := httptest.NewRequest(http.MethodPost, "/api/session/search", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	rec := do(t, h, req, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	assert.Contains(t, rec.Body.String(), `<option value="us" selected>`)
	assert.Contains(t, rec.Body.String(), `<option value="jp" selected>`)

	// A rejected code does not stick to the session
	rec = do(t, h, postJSON("/api/session/search", `{"query":"x","country":"usa"}`), cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "us", decodeSession(t, rec).Country)

	rec = do(t, h, postJSON("/api/session/search", `{"query":"cats"}`), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no", decodeSession(t, rec).Country)
	assert.Equal(t, 2, backend.calls())
}

func TestSessionSearchEmptyQuery(t *testing.T) {
	s, backend := newTestServer(t)

	rec := do(t, s.Handler(), postJSON("/api/session/search", `{"query":"   "}`), nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, session.EmptyQueryMessage, resp.Error)
	assert.Empty(t, resp.History)
	assert.Equal(t, 0, backend.calls())
}

func TestSessionSearchBackendFailure(t *testing.T) {
	s, backend := newTestServer(t)
	backend.err = errors.New("connection refused")

	rec := do(t, s.Handler(), postJSON("/api/session/search", `{"query":"cats"}`), nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeSession(t, rec)
	assert.Equal(t, proxy.FetchFailedMessage, resp.Error)
	assert.False(t, resp.Loading)
	assert.Empty(t, resp.History)
}

func TestSessionSearchValidationFailure(t *testing.T) {
	s, backend := newTestServer(t)

	rec := do(t, s.Handler(), postJSON("/api/session/search", `{"query":"cats","country":"norway"}`), nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, backend.calls())
}

func TestSessionSearchInvalidJSON(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), postJSON("/api/session/search", `{`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionSearchForms(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	form := url.Values{"query": {"golden gate bridge"}, "country": {"us"}, "summary_lang": {"en"}}

	t.Run("htmx gets the chat partial", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/session/search", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("HX-Request", "true")
		rec := do(t, h, req, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `id="chat"`)
		assert.Contains(t, body, "golden gate bridge")
		assert.Contains(t, body, "https://example.com/ggb.jpg")
		assert.Contains(t, body, "United States")
	})

	t.Run("plain form post redirects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/session/search", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := do(t, h, req, nil)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})
}

func TestSessionsAreIsolated(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, postJSON("/api/session/search", `{"query":"cats"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	other := do(t, h, httptest.NewRequest(http.MethodGet, "/api/session", nil), nil)
	require.Equal(t, http.StatusOK, other.Code)
	assert.Empty(t, decodeSession(t, other).History)
	assert.NotEqual(t, decodeSession(t, rec).SessionID, decodeSession(t, other).SessionID)
}

func TestInvalidCookieStartsNewSession(t *testing.T) {
	s, _ := newTestServer(t)

	forged := &http.Cookie{Name: DefaultCookieName, Value: "not-a-token"}
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/api/session", nil), []*http.Cookie{forged})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.NotEqual(t, "not-a-token", rec.Result().Cookies()[0].Value)
}

func TestStatelessSearchEndpoint(t *testing.T) {
	s, backend := newTestServer(t)

	rec := do(t, s.Handler(), postJSON("/api/search", `{"query":"cats"}`), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"summary":"A suspension bridge."`)
	require.Equal(t, 1, backend.calls())
	assert.Equal(t, types.SearchRequest{Query: "cats", Country: "no", SummaryLang: "en"}, backend.requests[0])
	assert.Equal(t, 0, s.sessions.Len())
}

func TestAPICatalog(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/api/catalog", nil), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp APICatalogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Countries, 5)
	assert.Len(t, resp.SummaryLanguages, 5)
	assert.Equal(t, "no", resp.DefaultCountry)
	assert.Equal(t, "en", resp.DefaultSummaryLang)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/session/search"},
		{http.MethodGet, "/api/session/select"},
		{http.MethodGet, "/api/session/new"},
		{http.MethodPost, "/api/session"},
		{http.MethodPost, "/api/catalog"},
		{http.MethodDelete, "/"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := do(t, h, httptest.NewRequest(tt.method, tt.path, nil), nil)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestPartials(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, postJSON("/api/session/search", `{"query":"golden gate bridge"}`), nil)
	cookies := rec.Result().Cookies()

	history := do(t, h, httptest.NewRequest(http.MethodGet, "/partials/history", nil), cookies)
	assert.Equal(t, http.StatusOK, history.Code)
	assert.Contains(t, history.Body.String(), "golden gate bridge")
	assert.Contains(t, history.Body.String(), `class="selected"`)

	entry := do(t, h, httptest.NewRequest(http.MethodGet, "/partials/entry", nil), cookies)
	assert.Equal(t, http.StatusOK, entry.Code)
	assert.Contains(t, entry.Body.String(), "A suspension bridge.")
	assert.Contains(t, entry.Body.String(), "Norway")
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Sweeper)
	assert.Equal(t, time.Minute, resp.Sweeper.Interval)
}

func TestStaticFiles(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/static/style.css", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSSEStreamsSessionEvents(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.sseManager.Start(ctx)
	defer s.sseManager.Stop()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// Establish the session first so the stream and the search share it
	resp, err := srv.Client().Get(srv.URL + "/api/session")
	require.NoError(t, err)
	_ = resp.Body.Close()
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/events", nil)
	require.NoError(t, err)
	req.AddCookie(cookies[0])
	stream, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = stream.Body.Close() }()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(stream.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events <- name
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case name := <-events:
			return name
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for SSE event")
			return ""
		}
	}
	require.Equal(t, EventTypeConnected, next())

	search, err := http.NewRequest(http.MethodPost, srv.URL+"/api/session/search", strings.NewReader(`{"query":"cats"}`))
	require.NoError(t, err)
	search.Header.Set("Content-Type", "application/json")
	search.AddCookie(cookies[0])
	searchResp, err := srv.Client().Do(search)
	require.NoError(t, err)
	_ = searchResp.Body.Close()
	require.Equal(t, http.StatusOK, searchResp.StatusCode)

	assert.Equal(t, EventTypeSearchStarted, next())
	assert.Equal(t, EventTypeSearchCompleted, next())
}

func TestServerConfigFromTypes(t *testing.T) {
	cfg := &types.Config{
		WebUIHost:          "0.0.0.0",
		WebUIPort:          9000,
		SessionIdleTimeout: time.Hour,
		SessionMaxSessions: 10,
		SessionMaxHistory:  5,
		DefaultCountry:     "us",
		DefaultSummaryLang: "fr",
	}

	sc := ServerConfigFromTypes(cfg)

	assert.Equal(t, "0.0.0.0", sc.Host)
	assert.Equal(t, 9000, sc.Port)
	assert.Equal(t, DefaultCookieName, sc.CookieName)
	assert.Equal(t, time.Hour, sc.Session.IdleTimeout)
	assert.Equal(t, 10, sc.Session.MaxSessions)
	assert.Equal(t, 5, sc.Session.MaxHistory)
	assert.Equal(t, "us", sc.Session.DefaultCountry)
	assert.Equal(t, "fr", sc.Session.DefaultSummaryLang)
}

func TestNewServerRequiresDependencies(t *testing.T) {
	tokens, _, err := session.NewTokenSigner("x", 0)
	require.NoError(t, err)

	_, err = NewServer(nil, nil, nil, tokens, nil)
	assert.Error(t, err)

	p := proxy.New(&stubBackend{}, proxy.Options{}, log.New(io.Discard, "", 0))
	_, err = NewServer(nil, p, nil, nil, nil)
	assert.Error(t, err)
}
