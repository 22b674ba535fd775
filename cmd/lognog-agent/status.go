package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/machinekinglabs/lognog-agent/pkg/paths"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether an agent instance is running",
		Long: `Report whether an agent instance is running.

There is no IPC to a running instance: this reads the PID recorded in the
single-instance lock file and checks process liveness only. It cannot
report shipper connection state, buffer depth, or anything else an
"lognog-agent run" process knows about itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdStatus()
		},
	}
}

func cmdStatus() error {
	lockPath := filepath.Join(paths.DataDir(), "lognog-agent.lock")

	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("not running (no lock file found)")
			return nil
		}
		return fmt.Errorf("reading lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("lock file %q does not contain a valid PID", lockPath)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		fmt.Printf("not running (pid %d from lock file could not be found)\n", pid)
		return nil
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		fmt.Printf("not running (pid %d from lock file is not alive)\n", pid)
		return nil
	}

	fmt.Printf("running (pid %d)\n", pid)
	return nil
}
