// Package main is the entry point for the missiongate gateway server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var envFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "missiongate",
		Short: "SSE gateway for a tool-calling web agent",
		Long: `MissionGate exposes a tool-calling LLM agent over HTTP. Clients submit a
natural-language mission and receive the agent's progress as a stream of
server-sent events: tokens, tool activity, and a terminal done or error frame.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file before reading configuration")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
