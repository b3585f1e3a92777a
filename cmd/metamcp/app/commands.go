// Package app provides the metamcp CLI commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/metamcp/metamcp/pkg/logger"
)

// NewRootCommand creates the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "metamcp",
		Short: "MetaMCP is a federation gateway for MCP servers",
		Long: `MetaMCP aggregates multiple MCP (Model Context Protocol) servers
behind a single authenticated endpoint. Backend tools, resources, and
prompts are exposed under name prefixes and invocations are routed to
the owning backend.`,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newAPIKeyCommand())
	return rootCmd
}
