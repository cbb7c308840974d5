package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
)

var (
	rollbackAuto   bool
	rollbackManual bool
	rollbackReason string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <proposal-id>",
	Short: "Request a rollback through the Self-Healing Monitor",
	Long: `rollback asks the Self-Healing Monitor to apply the stored
inverse operations for a proposal's application. The argument is the
proposal id; application ids are not accepted. Manual rollbacks (the
default, or --manual) bypass the daily automatic-rollback cap (reason tag "manual").
Pass --auto to count this one against that cap instead (reason tag
"auto-heal") - mainly useful for exercising the rate limit from a script.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackAuto, "auto", false, "Count this rollback against the automatic daily cap")
	rollbackCmd.Flags().BoolVar(&rollbackManual, "manual", false, "Run as a manual rollback, exempt from the automatic daily cap (the default)")
	rollbackCmd.Flags().StringVar(&rollbackReason, "reason", "", "Reason recorded in the rollback audit trail")
}

func runRollback(cmd *cobra.Command, args []string) error {
	if rollbackAuto && rollbackManual {
		return evoerrors.New(evoerrors.KindConfigInvalid, "cli.rollback", "--auto and --manual cannot be used together")
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Rollback(context.Background(), args[0], rollbackAuto, rollbackReason); err != nil {
		return err
	}
	fmt.Printf("proposal %s rolled back\n", args[0])
	return nil
}
