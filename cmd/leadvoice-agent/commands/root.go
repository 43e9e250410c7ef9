package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "leadvoice-agent",
	Short: "Session worker for the leadvoice agent",
	Long: `leadvoice-agent runs voice call sessions dispatched by the front door server.

Each session joins a WebRTC room, listens to the caller, and replies through
the STT -> LLM -> TTS pipeline. Configuration comes from the environment;
see the start command help for the required variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = cmd.Help()
		return fmt.Errorf("a subcommand is required; run %q", "leadvoice-agent start")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
