// Command evolution is the operator-facing CLI for the Evolution Engine -
// the host product wraps these verbs. A PersistentPreRunE builds the
// logger and the RunE handlers stay thin, delegating to the
// internal/engine package.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
)

// Exit codes returned by the CLI process.
const (
	exitSuccess          = 0
	exitRecoverable      = 1
	exitInvalidArgument  = 2
	exitRateLimited      = 3
	exitStateCorrupted   = 4
)

var (
	workspace  string
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "evolution",
	Short: "Evolution Engine - self-improvement control loop CLI",
	Long: `evolution drives the Evolution Engine's Scheduler, Autonomous
Executor and Self-Healing Monitor for a workspace.

Examples:
  evolution start
  evolution status
  evolution apply <proposal-id>
  evolution rollback <proposal-id> --manual --reason "bad output"`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("build console logger: %w", err)
		}
		if workspace == "" {
			workspace, _ = os.Getwd()
		} else if abs, err := filepath.Abs(workspace); err == nil {
			workspace = abs
		}
		if configPath == "" {
			configPath = filepath.Join(workspace, ".evolution", "config.yaml")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to engine config.yaml (default: <workspace>/.evolution/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, applyCmd, rollbackCmd, openCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error's evoerrors.Kind to this CLI's exit codes.
// Errors carrying no classification (plain cobra usage errors, for
// example) are treated as invalid-argument.
func exitCodeFor(err error) int {
	kind, classified := evoerrors.KindOf(err)
	if !classified {
		return exitInvalidArgument
	}
	switch kind {
	case evoerrors.KindRateLimited:
		return exitRateLimited
	case evoerrors.KindStateCorrupted:
		return exitStateCorrupted
	case evoerrors.KindConfigInvalid, evoerrors.KindTargetMissing, evoerrors.KindTargetConflict:
		return exitInvalidArgument
	default:
		return exitRecoverable
	}
}
