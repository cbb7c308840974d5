package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Report paths to the latest application event, rollback entry, and backup directory",
	RunE:  runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	paths := e.OpenPaths()

	if paths.LatestApplicationEvent != nil {
		fmt.Printf("latest application event: %s proposal=%s at %s\n",
			paths.LatestApplicationEvent.Kind, paths.LatestApplicationEvent.ProposalID, paths.LatestApplicationEvent.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	} else {
		fmt.Println("latest application event: none recorded")
	}

	if paths.LatestRollbackEntry != nil {
		fmt.Printf("latest rollback entry: proposal=%s triggeredBy=%s at %s\n",
			paths.LatestRollbackEntry.ProposalID, paths.LatestRollbackEntry.RollbackTriggeredBy, paths.LatestRollbackEntry.AppliedAt.Format("2006-01-02T15:04:05Z07:00"))
	} else {
		fmt.Println("latest rollback entry: none recorded")
	}

	if paths.LatestBackupDir != "" {
		fmt.Printf("latest backup directory: %s\n", paths.LatestBackupDir)
	} else {
		fmt.Println("latest backup directory: none recorded")
	}
	return nil
}
