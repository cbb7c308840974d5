package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running `evolution start` process",
	Long: `stop reads the pid recorded in the workspace's State Store
lockfile and sends it SIGTERM, the same lockfile the store uses to refuse
concurrent processes.`,
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	lockPath := filepath.Join(workspace, ".evolution", ".lock")
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return fmt.Errorf("no running engine found at %s: %w", workspace, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("malformed lockfile %s: %w", lockPath, err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
	fmt.Printf("sent stop signal to pid %d\n", pid)
	return nil
}
