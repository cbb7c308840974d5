package evotypes

import "time"

// MonitoringStatus is the Self-Healing Monitor's disposition for one
// watched application.
type MonitoringStatus string

const (
	MonitoringWatching   MonitoringStatus = "watching"
	MonitoringIgnored    MonitoringStatus = "ignored"
	MonitoringRolledBack MonitoringStatus = "rolled-back"
)

// MonitoredApplication is the per-application watch record the
// Self-Healing Monitor evaluates: a
// pre-metrics snapshot captured at apply time, an optional post-metrics
// snapshot written later by another subsystem, and the monitor's eventual
// disposition.
type MonitoredApplication struct {
	ID              string           `json:"id"`
	ProposalID      string           `json:"proposalId"`
	AffectedTargets []string         `json:"affectedTargets"`
	PreMetrics      MetricsSnapshot  `json:"preMetrics"`
	PostMetrics     *MetricsSnapshot `json:"postMetrics,omitempty"`
	Status          MonitoringStatus `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
}
