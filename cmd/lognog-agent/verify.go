package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/machinekinglabs/lognog-agent/pkg/config"
	"github.com/machinekinglabs/lognog-agent/pkg/fim"
	"github.com/machinekinglabs/lognog-agent/pkg/log"
	"github.com/machinekinglabs/lognog-agent/pkg/paths"
	"github.com/machinekinglabs/lognog-agent/pkg/store"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Run one file integrity baseline verification pass and exit",
		Long: `Run one verify_baseline pass against the configured FIM paths and exit.

This is a manual trigger for cron or CI use — it does not start the
tailer, shipper, or the periodic verifier goroutine that "lognog-agent
run" schedules on its own. It opens the same on-disk buffer and baseline
stores a running agent uses, so it must not be invoked while an agent
instance holds them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdVerify(cmd)
		},
	}
}

func cmdVerify(cmd *cobra.Command) error {
	configPath := configPathFromFlags(cmd)
	if configPath == "" {
		configPath = paths.ConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.FIMEnabled {
		return fmt.Errorf("fim_enabled is false in %s; nothing to verify", configPath)
	}

	logLevel, _ := cmd.Flags().GetString("log-level")
	log.Init(log.Config{Level: log.Level(logLevel)})

	buffer, err := store.OpenEventBuffer(paths.BufferDBPath())
	if err != nil {
		return fmt.Errorf("open event buffer: %w", err)
	}
	defer buffer.Close()

	baseline, err := store.OpenBaselineStore(paths.BaselineDBPath())
	if err != nil {
		return fmt.Errorf("open baseline store: %w", err)
	}
	defer baseline.Close()

	specs := make([]fim.WatchSpec, len(cfg.FIMPaths))
	for i, spec := range cfg.FIMPaths {
		specs[i] = fim.WatchSpec{Path: spec.Path, Pattern: spec.Pattern, Recursive: spec.Recursive, Enabled: spec.Enabled}
	}

	mon, err := fim.New(cfg.Hostname, specs, baseline, buffer, log.WithComponent("verify"))
	if err != nil {
		return fmt.Errorf("construct FIM monitor: %w", err)
	}

	if err := mon.VerifyBaseline(); err != nil {
		return fmt.Errorf("verify baseline: %w", err)
	}

	count, err := baseline.Count()
	if err != nil {
		return fmt.Errorf("count baseline entries: %w", err)
	}
	fmt.Printf("verified %d baselined file(s)\n", count)
	return nil
}
