package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	statusLabelStyle = lipgloss.NewStyle().Bold(true).Width(18)
	statusHealthy    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	statusDegraded   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	statusUnhealthy  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Scheduler state, counters, and next-run time",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	st := e.Status()

	row := func(label, value string) {
		fmt.Println(statusLabelStyle.Render(label) + value)
	}
	row("State:", string(st.SchedulerState))
	if !st.NextRun.IsZero() {
		row("Next run:", st.NextRun.Format("2006-01-02 15:04:05 MST"))
	}
	row("Pending:", fmt.Sprintf("%d", st.PendingCount))
	row("Health:", renderHealth(string(st.Executor.Health)))
	row("Today:", fmt.Sprintf("%d executed, %d succeeded, %d failed, %d remaining",
		st.Executor.ExecutionsToday, st.Executor.SuccessesToday, st.Executor.FailuresToday, st.Executor.RemainingToday))
	row("Rollbacks:", fmt.Sprintf("%d automatic, %d manual today", st.Counters.AutomaticRollbacks, st.Counters.ManualRollbacks))
	row("Escalations:", fmt.Sprintf("%d today", st.Counters.Escalations))
	return nil
}

func renderHealth(h string) string {
	switch h {
	case "healthy":
		return statusHealthy.Render(h)
	case "degraded":
		return statusDegraded.Render(h)
	default:
		return statusUnhealthy.Render(h)
	}
}
