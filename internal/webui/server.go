package webui

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ca-srg/searchchat/internal/catalog"
	"github.com/ca-srg/searchchat/internal/proxy"
	"github.com/ca-srg/searchchat/internal/session"
	"github.com/ca-srg/searchchat/internal/types"
)

// DefaultCookieName is the cookie carrying the signed session token
const DefaultCookieName = "searchchat_session"

// ServerConfig holds the web UI server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration // 0 disables the limit; SSE streams are long-lived
	IdleTimeout  time.Duration
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration
	CookieName      string
	CookieSecure    bool
	Session         session.ManagerConfig
	SweepInterval   time.Duration
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "localhost",
		Port:            8081,
		ReadTimeout:     30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		CookieName:      DefaultCookieName,
		Session: session.ManagerConfig{
			IdleTimeout: 2 * time.Hour,
			MaxSessions: 1000,
			MaxHistory:  session.DefaultMaxHistory,
		},
		SweepInterval: time.Minute,
	}
}

// ServerConfigFromTypes builds the server configuration from the application config
func ServerConfigFromTypes(cfg *types.Config) *ServerConfig {
	sc := DefaultServerConfig()
	if cfg == nil {
		return sc
	}
	if cfg.WebUIHost != "" {
		sc.Host = cfg.WebUIHost
	}
	if cfg.WebUIPort > 0 {
		sc.Port = cfg.WebUIPort
	}
	if cfg.WebUIShutdownTimeout > 0 {
		sc.ShutdownTimeout = cfg.WebUIShutdownTimeout
	}
	sc.Session = session.ManagerConfig{
		IdleTimeout:        cfg.SessionIdleTimeout,
		MaxSessions:        cfg.SessionMaxSessions,
		MaxHistory:         cfg.SessionMaxHistory,
		DefaultCountry:     cfg.DefaultCountry,
		DefaultSummaryLang: cfg.DefaultSummaryLang,
	}
	return sc
}

// Server represents the web UI server
type Server struct {
	config       *ServerConfig
	httpServer   *http.Server
	templates    *TemplateManager
	sseManager   *SSEManager
	sessions     *session.Manager
	sweeper      *session.Sweeper
	proxy        *proxy.Proxy
	catalog      *catalog.Catalog
	tokens       *session.TokenSigner
	logger       *log.Logger
	shutdownOnce sync.Once
}

// NewServer creates a new web UI server. Sessions search through p, which
// also serves the stateless /api/search endpoint.
func NewServer(serverConfig *ServerConfig, p *proxy.Proxy, cat *catalog.Catalog, tokens *session.TokenSigner, logger *log.Logger) (*Server, error) {
	if serverConfig == nil {
		serverConfig = DefaultServerConfig()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[webui] ", log.LstdFlags)
	}
	if p == nil {
		return nil, fmt.Errorf("proxy is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("session token signer is required")
	}
	if cat == nil {
		var err error
		if cat, err = catalog.Default(); err != nil {
			return nil, err
		}
	}
	if serverConfig.CookieName == "" {
		serverConfig.CookieName = DefaultCookieName
	}

	sessionConfig := serverConfig.Session
	options := p.Options()
	if sessionConfig.DefaultCountry == "" {
		sessionConfig.DefaultCountry = options.DefaultCountry
	}
	if sessionConfig.DefaultSummaryLang == "" {
		sessionConfig.DefaultSummaryLang = options.DefaultSummaryLang
	}

	sseManager := NewSSEManager(DefaultSSEConfig(), logger)

	sessions := session.NewManager(p, sseManager, sessionConfig, logger)
	sweeper := session.NewSweeper(sessions, serverConfig.SweepInterval, logger)

	templates, err := NewTemplateManager(cat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize templates: %w", err)
	}

	return &Server{
		config:     serverConfig,
		templates:  templates,
		sseManager: sseManager,
		sessions:   sessions,
		sweeper:    sweeper,
		proxy:      p,
		catalog:    cat,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// Run starts the HTTP server and the session sweeper and blocks until ctx
// is cancelled or the listener fails
func (s *Server) Run(ctx context.Context) error {
	s.sseManager.Start(ctx)
	defer s.sessions.Close()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.sweeper.Run(gctx)
	})
	g.Go(func() error {
		s.logger.Printf("Starting Web UI server at http://%s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web UI server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

// shutdown performs graceful shutdown
func (s *Server) shutdown() error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Println("Shutting down server...")

		// Open SSE streams would otherwise hold Shutdown until the timeout
		s.sseManager.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
	})
	return shutdownErr
}

// Handler returns the instrumented HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.loggingMiddleware(s.setupRoutes()), "searchchat.webui",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !skipPath(r.URL.Path)
		}),
	)
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		s.logger.Printf("Warning: failed to setup static files: %v", err)
	} else {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	}

	// Pages
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealthz)

	// API endpoints
	mux.Handle("/api/search", s.proxy)
	mux.HandleFunc("/api/catalog", s.handleAPICatalog)
	mux.HandleFunc("/api/session", s.handleAPISession)
	mux.HandleFunc("/api/session/search", s.handleAPISessionSearch)
	mux.HandleFunc("/api/session/select", s.handleAPISessionSelect)
	mux.HandleFunc("/api/session/new", s.handleAPISessionNew)

	// SSE endpoints
	mux.HandleFunc("/sse/events", s.handleSSEEvents)

	// HTMX partials
	mux.HandleFunc("/partials/chat", s.handlePartialChat)
	mux.HandleFunc("/partials/history", s.handlePartialHistory)
	mux.HandleFunc("/partials/entry", s.handlePartialEntry)

	return mux
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Skip logging for static files and SSE (too noisy)
		skipLog := skipPath(r.URL.Path)

		if !skipLog {
			s.logger.Printf("%s %s", r.Method, r.URL.Path)
		}

		next.ServeHTTP(w, r)

		if !skipLog {
			s.logger.Printf("%s %s completed in %v", r.Method, r.URL.Path, time.Since(start))
		}
	})
}

func skipPath(path string) bool {
	return strings.HasPrefix(path, "/static/") ||
		strings.HasPrefix(path, "/sse/") ||
		path == "/healthz"
}

// sessionFor resolves the caller's session from the cookie, creating a new
// session and cookie when the token is missing or invalid
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *session.Store {
	var id string
	if cookie, err := r.Cookie(s.config.CookieName); err == nil && cookie.Value != "" {
		parsed, err := s.tokens.Parse(cookie.Value)
		if err != nil {
			s.logger.Printf("Ignoring session cookie: %v", err)
		} else {
			id = parsed
		}
	}

	store, _ := s.sessions.GetOrCreate(id)
	if store.ID() != id {
		s.setSessionCookie(w, store.ID())
	}
	return store
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) {
	token, err := s.tokens.Issue(sessionID)
	if err != nil {
		s.logger.Printf("Failed to issue session token: %v", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Sessions returns the session manager
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// SSE returns the SSE manager
func (s *Server) SSE() *SSEManager {
	return s.sseManager
}
