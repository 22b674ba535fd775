package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lognog-agent",
		Short:         "LogNog-In host agent: log tailing, file integrity monitoring, and event shipping",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to config.yaml (defaults to the per-user config directory)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-json", false, "output logs in JSON format")

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newVerifyCmd(),
		newCompletionCmd(),
	)

	return root
}

func configPathFromFlags(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
