package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ca-srg/searchchat/internal/session"
	"github.com/ca-srg/searchchat/internal/webui"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat web UI and search API",
	Long: `
The serve command starts the web server that provides:
- A chat page where each browser session keeps its own search history
- POST /api/search, a stateless JSON proxy to the search backend
- Live updates over server-sent events

Configuration is loaded from environment variables and an optional .env file.

Examples:
  searchchat serve                    # Start with defaults (localhost:8081)
  searchchat serve --port 8080        # Use custom port
  searchchat serve --host 0.0.0.0     # Listen on all interfaces
`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Host to bind the web server")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8081, "Port to bind the web server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		cfg.WebUIHost = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.WebUIPort = servePort
	}

	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	flush := initTelemetry(cfg)
	defer flush()

	logger := log.New(os.Stdout, "[webui] ", log.LstdFlags)

	p, err := newProxy(cfg, "[proxy] ")
	if err != nil {
		return err
	}

	tokens, generated, err := session.NewTokenSigner(cfg.SessionSecret, 0)
	if err != nil {
		return fmt.Errorf("failed to create session signer: %w", err)
	}
	if generated {
		logger.Println("SESSION_SECRET not set; generated a random secret, sessions will not survive a restart")
	}

	server, err := webui.NewServer(webui.ServerConfigFromTypes(cfg), p, cat, tokens, logger)
	if err != nil {
		return fmt.Errorf("failed to create webui server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("webui server error: %w", err)
	}

	logger.Println("Server stopped")
	return nil
}
