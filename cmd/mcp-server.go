package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ca-srg/searchchat/internal/mcpserver"
)

var (
	mcpServerHost        string
	mcpServerPort        int
	mcpAllowedIPs        []string
	mcpAuthEnableLogging bool
)

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start MCP (Model Context Protocol) server for web search",
	Long: `
Start an MCP server that exposes the search proxy as a "web_search" tool for
MCP-compatible clients. The tool takes a query plus optional country and
summary language and returns the backend summary and results.

The server speaks the streamable HTTP transport at /mcp.

Examples:
  searchchat mcp-server                                   # Start server with default settings
  searchchat mcp-server --port 9000                       # Use custom port
  searchchat mcp-server --allowed-ips "192.168.1.0/24"    # Allow specific IP range only
`,
	RunE: runMCPServer,
}

func init() {
	mcpServerCmd.Flags().StringVar(&mcpServerHost, "host", "localhost", "Server host address")
	mcpServerCmd.Flags().IntVar(&mcpServerPort, "port", 8090, "Server port")
	mcpServerCmd.Flags().StringSliceVar(&mcpAllowedIPs, "allowed-ips", nil, "Comma-separated list of allowed IP addresses/ranges (empty allows all)")
	mcpServerCmd.Flags().BoolVar(&mcpAuthEnableLogging, "auth-enable-logging", false, "Log allowed and denied clients")
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		cfg.MCPServerHost = mcpServerHost
	}
	if cmd.Flags().Changed("port") {
		cfg.MCPServerPort = mcpServerPort
	}
	if cmd.Flags().Changed("allowed-ips") {
		cfg.MCPAllowedIPs = mcpAllowedIPs
	}
	if cmd.Flags().Changed("auth-enable-logging") {
		cfg.MCPIPAuthEnableLogging = mcpAuthEnableLogging
	}

	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	flush := initTelemetry(cfg)
	defer flush()

	logger := log.New(os.Stdout, "[MCP Server] ", log.LstdFlags)

	p, err := newProxy(cfg, "[proxy] ")
	if err != nil {
		return err
	}

	serverConfig := mcpserver.ServerConfigFromTypes(cfg)
	serverConfig.Version = Version

	server, err := mcpserver.NewServer(serverConfig, p, cat, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	if len(serverConfig.AllowedIPs) == 0 {
		logger.Println("Warning: no IP allowlist configured, accepting all clients")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	logger.Println("MCP server stopped")
	return nil
}
