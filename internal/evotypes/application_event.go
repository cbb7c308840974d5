package evotypes

import "time"

// ApplicationEventKind enumerates the events the Executor and Scheduler
// publish to the Event Bus and append to applications/log.jsonl.
type ApplicationEventKind string

const (
	EventSchedulerTick     ApplicationEventKind = "scheduler-tick"
	EventExecutionStarted  ApplicationEventKind = "execution-started"
	EventExecutionComplete ApplicationEventKind = "execution-completed"
	EventExecutionFailed   ApplicationEventKind = "execution-failed"
	EventApprovalRequired  ApplicationEventKind = "approval-required"
	EventRollbackStarted   ApplicationEventKind = "rollback-started"
	EventRollbackCompleted ApplicationEventKind = "rollback-completed"
	EventProposalEscalated ApplicationEventKind = "proposal-escalated"
	EventHealthCheck       ApplicationEventKind = "health-check"
)

// ApplicationEvent is one line of the applications/log.jsonl audit trail.
type ApplicationEvent struct {
	Kind       ApplicationEventKind `json:"kind"`
	ProposalID string               `json:"proposalId,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`

	// Detail carries kind-specific context, e.g. the decision outcome for
	// execution-completed, or the failure message for execution-failed.
	Detail map[string]interface{} `json:"detail,omitempty"`
}
