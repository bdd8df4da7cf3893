// Command taskbot runs the chat-driven research and draft pipelines and
// offers a few offline commands for inspecting history and managing secrets.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/version"
)

// passwordEnv supplies the secrets password non-interactively.
const passwordEnv = "TASKBOT_PASSWORD"

type rootFlags struct {
	configPath string
	dataDir    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "taskbot",
		Short:         "Chat-driven research and SNS draft pipelines",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default ./config.yaml, then <data_dir>/config.yaml)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "override data_dir from the config")

	root.AddCommand(
		newServeCmd(flags),
		newEstimateCmd(flags),
		newHistoryCmd(flags),
		newConfigCmd(flags),
		newSecretsCmd(flags),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "taskbot: %v\n", err)
		os.Exit(1)
	}
}
