package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nascd",
		Short: "Server-driven UI synchronization server",
		Long: `Nascd serves declarative UI state over push channels.

Clients declare which typed instances they render; the server owns
all state transitions and pushes minimal diffs as patch lists over
SSE or WebSocket. Endpoints are mounted under /nasc by default.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
