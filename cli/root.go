// Package cli wires the cardagent commands.
package cli

import (
	"github.com/pershow/cardagent/cli/commands"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cardagent",
	Short: "Streaming research agent for card content",
	Long: `cardagent runs the research assistant service: a tool-calling agent
that researches card content with web search and page fetching, streaming
its answer to the client over a websocket.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(commands.ServeCommand())
	rootCmd.AddCommand(commands.AssistCommand())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
