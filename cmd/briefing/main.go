// Package main provides the briefing binary: a content archive for news
// digests, served over MCP and HTTP, with Hacker News ingestion.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "briefing",
		Short: "Content archive for news digests",
		Long: `briefing archives articles and digests in a local vector index so an
assistant can search what it has already read and avoid repeating itself.

Examples:
  briefing mcp                          # Serve archive tools over stdio
  briefing serve                        # HTTP API, metrics and scheduled jobs
  briefing ingest --limit 20            # Archive the Hacker News front page
  briefing ingest-url https://go.dev/blog/go1.24
  briefing search "rust compiler"       # Semantic search
  briefing search --mode hybrid kubernetes
  briefing get cnt_web_20250101_0042    # Render an item in the terminal
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default ./briefing.yaml, then $XDG_CONFIG_HOME/briefing/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Directory for the archive database and indexes")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(
		mcpCmd(flags),
		serveCmd(flags),
		ingestCmd(flags),
		ingestURLCmd(flags),
		searchCmd(flags),
		getCmd(flags),
		deleteCmd(flags),
		digestsCmd(flags),
		putDigestCmd(flags),
		summaryCmd(flags),
		statsCmd(flags),
		sweepCmd(flags),
		configCmd(flags),
		versionCmd(),
	)
	return cmd
}
