package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/machinekinglabs/lognog-agent/pkg/config"
	"github.com/machinekinglabs/lognog-agent/pkg/log"
	"github.com/machinekinglabs/lognog-agent/pkg/paths"
	"github.com/machinekinglabs/lognog-agent/pkg/supervisor"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent until it receives SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdRun(cmd)
		},
	}
}

func cmdRun(cmd *cobra.Command) error {
	configPath := configPathFromFlags(cmd)
	if configPath == "" {
		configPath = paths.ConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	if cfg.DebugLogging {
		logLevel = "debug"
	}
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	sup := supervisor.New(cfg, log.WithComponent("supervisor"))
	if err := sup.Start(); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}

	log.Logger.Info().Str("config", configPath).Msg("lognog-agent started")
	sup.RunUntilSignal()
	return nil
}
