package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ca-srg/searchchat/internal/catalog"
	"github.com/ca-srg/searchchat/internal/types"
)

// ServerConfig contains server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration

	// AllowedIPs enables the IP allowlist when non-empty
	AllowedIPs          []string
	IPAuthEnableLogging bool

	Version string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "localhost",
		Port:            8090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1MB
		ShutdownTimeout: 30 * time.Second,
		Version:         "dev",
	}
}

// ServerConfigFromTypes builds the server configuration from the application config
func ServerConfigFromTypes(cfg *types.Config) *ServerConfig {
	sc := DefaultServerConfig()
	if cfg == nil {
		return sc
	}
	if cfg.MCPServerHost != "" {
		sc.Host = cfg.MCPServerHost
	}
	if cfg.MCPServerPort > 0 {
		sc.Port = cfg.MCPServerPort
	}
	sc.AllowedIPs = cfg.MCPAllowedIPs
	sc.IPAuthEnableLogging = cfg.MCPIPAuthEnableLogging
	return sc
}

// Server serves the web_search tool over the streamable HTTP transport
type Server struct {
	config     *ServerConfig
	sdkServer  *mcp.Server
	httpServer *http.Server
	ipAuth     *IPAuthMiddleware
	logger     *log.Logger
}

// NewServer creates the MCP server and registers its tools
func NewServer(config *ServerConfig, searcher Searcher, cat *catalog.Catalog, logger *log.Logger) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[mcp] ", log.LstdFlags)
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cat == nil {
		var err error
		if cat, err = catalog.Default(); err != nil {
			return nil, err
		}
	}

	s := &Server{
		config: config,
		logger: logger,
		sdkServer: mcp.NewServer(&mcp.Implementation{
			Name:    "searchchat",
			Version: config.Version,
		}, nil),
	}

	tool := NewWebSearchTool(searcher, cat)
	s.sdkServer.AddTool(tool.Definition(), tool.Handle)

	if len(config.AllowedIPs) > 0 {
		ipAuth, err := NewIPAuthMiddleware(config.AllowedIPs, config.IPAuthEnableLogging, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure IP allowlist: %w", err)
		}
		s.ipAuth = ipAuth
		logger.Printf("IP authentication enabled for IPs: %v", config.AllowedIPs)
	}

	return s, nil
}

// SDKServer returns the underlying MCP server
func (s *Server) SDKServer() *mcp.Server {
	return s.sdkServer
}

// Handler returns the HTTP handler: the MCP endpoint at / and /mcp plus /health
func (s *Server) Handler() http.Handler {
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.sdkServer
	}, nil)

	var protected http.Handler = mcpHandler
	if s.ipAuth != nil {
		protected = s.ipAuth.Middleware(mcpHandler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealthCheck)
	mux.Handle("/mcp", protected)
	mux.Handle("/", protected)

	return otelhttp.NewHandler(mux, "searchchat.mcp")
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Printf("Starting MCP server at http://%s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.logger.Println("Shutting down MCP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("MCP server shutdown error: %w", err)
	}
	return nil
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"status":"ok","tools":[%q]}`, WebSearchToolName)
}
