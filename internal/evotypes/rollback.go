package evotypes

import "time"

// InverseOperation describes how to undo a single applied change. The
// Change Applicator builds one of these for each change it applies
// successfully, once that change has been written.
type InverseOperation struct {
	Kind string `json:"kind"` // "restore-file", "remove-file" or "restore-settings"

	// TargetPath is the file or settings key the inverse acts on.
	TargetPath string `json:"targetPath"`

	// BackupPath names a snapshot to restore from. The Change Applicator
	// leaves it empty: its inverses carry the prior state in PriorValue.
	BackupPath string `json:"backupPath,omitempty"`

	// PriorValue holds the state the inverse restores: the previous file
	// content for restore-file, the previous setting for restore-settings.
	PriorValue interface{} `json:"priorValue,omitempty"`
}

// RollbackRecord is written alongside every applied Proposal and is the
// only thing the Self-Healing Monitor and manual rollback path need to
// undo it.
type RollbackRecord struct {
	ID          string             `json:"id"`
	ProposalID  string             `json:"proposalId"`
	Category    ProposalCategory   `json:"category"`
	Inverse     []InverseOperation `json:"inverse"`
	AppliedAt   time.Time          `json:"appliedAt"`
	RolledBack  bool               `json:"rolledBack"`
	RolledBackAt *time.Time        `json:"rolledBackAt,omitempty"`
	// RollbackTriggeredBy is "manual" or "auto-heal" for rollbacks run by
	// the Self-Healing Monitor, and "automatic" when the Change Applicator
	// reverted a partially failed apply.
	RollbackTriggeredBy string `json:"rollbackTriggeredBy,omitempty"`
	RollbackReason       string `json:"rollbackReason,omitempty"`
}
