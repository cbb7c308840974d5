package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
)

var applyCmd = &cobra.Command{
	Use:   "apply <proposal-id>",
	Short: "Force a single-proposal run through the Executor",
	Args:  cobra.ExactArgs(1),
	RunE:  runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.Apply(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("proposal %s -> %s", result.ProposalID, result.Status)
	if result.Reason != "" {
		fmt.Printf(" (%s)", result.Reason)
	}
	fmt.Println()

	if result.Status == "failed" {
		return evoerrors.New(evoerrors.KindInternalAssertion, "cli.apply", result.Reason)
	}
	return nil
}
