package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Scheduler and run until stopped",
	Long: `start opens the engine, starts the Scheduler's tick loop, and
blocks in the foreground. Send SIGINT or SIGTERM (Ctrl+C, or
"evolution stop" from another terminal) to stop the Scheduler and exit
cleanly.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	e.Start()
	logger.Info("evolution engine started", zapWorkspace())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nstopping...")
	e.Stop()
	logger.Info("evolution engine stopped", zapWorkspace())
	return nil
}
