package cmd

import (
	"github.com/spf13/cobra"

	appconfig "github.com/ca-srg/searchchat/internal/config"
	commontypes "github.com/ca-srg/searchchat/internal/types"
)

// Version is set by main from build flags
var Version = "dev"

var envFile string

// appConfigLoader is swapped in tests
type appConfigLoader func() (*commontypes.Config, error)

var loadAppConfig appConfigLoader = appconfig.Load

var rootCmd = &cobra.Command{
	Use:   "searchchat",
	Short: "SearchChat - web search proxy with per-session chat history",
	Long: `SearchChat forwards web searches to a search-and-summarize backend
and keeps a per-session chat history of queries and their results.

It serves a browser chat UI, a stateless JSON search API, and an MCP tool,
and can run one-off searches from the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("env-file") {
			return appconfig.LoadDotEnv(envFile)
		}
		return appconfig.LoadDotEnv()
	},
}

func Execute() error {
	rootCmd.Version = Version
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file to load before reading configuration")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(mcpServerCmd)
	rootCmd.AddCommand(statsCmd)
}
