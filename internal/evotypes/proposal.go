// Package evotypes holds the Evolution Engine's shared data model: the
// entities every component (store, risk, decision, applicator, scheduler,
// executor, selfheal, eventbus, governor) passes between each other. Kept
// in its own package so components can depend on the data model without
// importing each other.
package evotypes

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProposalCategory is the enumerated kind of change a Proposal describes.
type ProposalCategory string

const (
	CategoryRuleAdd           ProposalCategory = "rule-add"
	CategoryModeInstruction   ProposalCategory = "mode-instruction"
	CategorySkillCreation     ProposalCategory = "skill-creation"
	CategoryConfigUpdate      ProposalCategory = "config-update"
	CategoryPromptRefinement  ProposalCategory = "prompt-refinement"
)

// AllCategories lists every known proposal category, in a stable order.
func AllCategories() []ProposalCategory {
	return []ProposalCategory{
		CategoryRuleAdd,
		CategoryModeInstruction,
		CategorySkillCreation,
		CategoryConfigUpdate,
		CategoryPromptRefinement,
	}
}

// RiskLevel is an ordered low/medium/high classification.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// rank gives RiskLevel a total order for comparisons (low < medium < high).
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return -1
	}
}

// AtMost reports whether r is no riskier than other (r <= other).
func (r RiskLevel) AtMost(other RiskLevel) bool { return r.rank() <= other.rank() }

// Exceeds reports whether r is riskier than other (r > other).
func (r RiskLevel) Exceeds(other RiskLevel) bool { return r.rank() > other.rank() }

// Rank exposes the total order externally for callers that need to sort by
// risk (e.g. the Scheduler's impact/risk priority ordering) without
// duplicating the low/medium/high table.
func (r RiskLevel) Rank() int { return r.rank() }

// Scope distinguishes a project-local change from one affecting every project.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// ProposalStatus is the Proposal's position in the state machine.
type ProposalStatus string

const (
	StatusPending    ProposalStatus = "pending"
	StatusApproved   ProposalStatus = "approved"
	StatusApplied    ProposalStatus = "applied"
	StatusFailed     ProposalStatus = "failed"
	StatusRejected   ProposalStatus = "rejected"
	StatusRolledBack ProposalStatus = "rolled-back"
)

// Terminal reports whether status has no further transitions.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusFailed, StatusRolledBack:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the proposal state machine's legal edges.
// "deferred" and "escalated" decisions leave the proposal's status at
// pending - they are not edges in this table.
var validTransitions = map[ProposalStatus]map[ProposalStatus]bool{
	StatusPending:  {StatusApproved: true, StatusRejected: true},
	StatusApproved: {StatusApplied: true, StatusFailed: true},
	StatusApplied:  {StatusRolledBack: true},
}

// CanTransition reports whether moving a proposal from `from` to `to` is a
// legal state-machine edge.
func CanTransition(from, to ProposalStatus) bool {
	return validTransitions[from][to]
}

// ProposalPayload is the tagged-variant interface every concrete payload
// implements. Replaces the source's "dynamic payload map" idiom:
// the Applicator dispatches on the concrete payload type, and a payload
// type it does not know is reported as an error at apply time rather than
// silently ignored as an unrecognized map shape.
type ProposalPayload interface {
	Category() ProposalCategory
	Scope() Scope
	// AffectedTargets lists the identifiers (paths, slugs) this payload would
	// mutate if applied. Used by the Risk Scorer's affected-target-count
	// factor and by the Applicator to report what it touched.
	AffectedTargets() []string
}

// RuleAddPayload appends a demarcated block to a named rules target.
type RuleAddPayload struct {
	ScopeValue  Scope  `json:"scope"`
	TargetPath  string `json:"targetPath"`
	RuleText    string `json:"ruleText"`
}

func (p RuleAddPayload) Category() ProposalCategory { return CategoryRuleAdd }
func (p RuleAddPayload) Scope() Scope                { return p.ScopeValue }
func (p RuleAddPayload) AffectedTargets() []string    { return []string{p.TargetPath} }

// ModeInstructionPayload upserts a mode entry and appends instruction text.
type ModeInstructionPayload struct {
	ScopeValue      Scope  `json:"scope"`
	ModesTarget     string `json:"modesTarget"`
	ModeSlug        string `json:"modeSlug"`
	InstructionText string `json:"instructionText"`
}

func (p ModeInstructionPayload) Category() ProposalCategory { return CategoryModeInstruction }
func (p ModeInstructionPayload) Scope() Scope                { return p.ScopeValue }
func (p ModeInstructionPayload) AffectedTargets() []string    { return []string{p.ModesTarget} }

// SkillCreationPayload writes a metadata descriptor and an implementation
// body under the scope directory.
type SkillCreationPayload struct {
	ScopeValue         Scope  `json:"scope"`
	ScopeDir           string `json:"scopeDir"`
	SkillName          string `json:"skillName"`
	MetadataDescriptor string `json:"metadataDescriptor"`
	ImplementationBody string `json:"implementationBody"`
}

func (p SkillCreationPayload) Category() ProposalCategory { return CategorySkillCreation }
func (p SkillCreationPayload) Scope() Scope                { return p.ScopeValue }
func (p SkillCreationPayload) AffectedTargets() []string {
	return []string{
		fmt.Sprintf("%s/%s.meta", p.ScopeDir, p.SkillName),
		fmt.Sprintf("%s/%s.impl", p.ScopeDir, p.SkillName),
	}
}

// ConfigUpdatePayload records a settings change; wiring is delegated to an
// external settings collaborator via an event rather than mutated in place.
type ConfigUpdatePayload struct {
	ScopeValue   Scope       `json:"scope"`
	SettingsKey  string      `json:"settingsKey"`
	SettingsFrom interface{} `json:"settingsFrom,omitempty"`
	SettingsTo   interface{} `json:"settingsTo"`
}

func (p ConfigUpdatePayload) Category() ProposalCategory { return CategoryConfigUpdate }
func (p ConfigUpdatePayload) Scope() Scope                { return p.ScopeValue }
func (p ConfigUpdatePayload) AffectedTargets() []string    { return []string{p.SettingsKey} }

// PromptRefinementPayload reduces to a mode-instruction carrying the
// refinement's text.
type PromptRefinementPayload struct {
	ScopeValue      Scope  `json:"scope"`
	ModesTarget     string `json:"modesTarget"`
	ModeSlug        string `json:"modeSlug"`
	RefinementText  string `json:"refinementText"`
}

func (p PromptRefinementPayload) Category() ProposalCategory { return CategoryPromptRefinement }
func (p PromptRefinementPayload) Scope() Scope                { return p.ScopeValue }
func (p PromptRefinementPayload) AffectedTargets() []string    { return []string{p.ModesTarget} }

// AsModeInstruction reduces a prompt refinement to the mode-instruction the
// Applicator actually executes.
func (p PromptRefinementPayload) AsModeInstruction() ModeInstructionPayload {
	return ModeInstructionPayload{
		ScopeValue:      p.ScopeValue,
		ModesTarget:     p.ModesTarget,
		ModeSlug:        p.ModeSlug,
		InstructionText: p.RefinementText,
	}
}

// Proposal is the unit of change the engine scores, decides on, applies, and
// can roll back.
type Proposal struct {
	SchemaVersion int              `json:"schemaVersion"`
	ID            string           `json:"id"`
	Category      ProposalCategory `json:"category"`
	DeclaredRisk  RiskLevel        `json:"declaredRisk"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Payload       ProposalPayload  `json:"-"`
	SourceSignal  string           `json:"sourceSignal,omitempty"`
	Status        ProposalStatus   `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`

	Reviewer string `json:"reviewer,omitempty"`
	Notes    string `json:"notes,omitempty"`

	RollbackRecordID string `json:"rollbackRecordId,omitempty"`
}

// proposalOnDisk is the JSON envelope that carries the tagged payload
// variant through marshaling, keyed by category so a reader can dispatch to
// the right concrete type without reflection over field shapes.
type proposalOnDisk struct {
	SchemaVersion    int              `json:"schemaVersion"`
	ID               string           `json:"id"`
	Category         ProposalCategory `json:"category"`
	DeclaredRisk     RiskLevel        `json:"declaredRisk"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Payload          json.RawMessage  `json:"payload"`
	SourceSignal     string           `json:"sourceSignal,omitempty"`
	Status           ProposalStatus   `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	Reviewer         string           `json:"reviewer,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	RollbackRecordID string           `json:"rollbackRecordId,omitempty"`
}

// MarshalJSON flattens the Payload interface into a raw JSON blob tagged by
// the proposal's own Category field.
func (p Proposal) MarshalJSON() ([]byte, error) {
	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal proposal payload: %w", err)
	}
	return json.Marshal(proposalOnDisk{
		SchemaVersion:    p.SchemaVersion,
		ID:               p.ID,
		Category:         p.Category,
		DeclaredRisk:     p.DeclaredRisk,
		Title:            p.Title,
		Description:      p.Description,
		Payload:          payloadJSON,
		SourceSignal:     p.SourceSignal,
		Status:           p.Status,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		Reviewer:         p.Reviewer,
		Notes:            p.Notes,
		RollbackRecordID: p.RollbackRecordID,
	})
}

// UnmarshalJSON dispatches the raw payload to its concrete type using the
// category tag. An unknown category is reported rather than silently
// deferred.
func (p *Proposal) UnmarshalJSON(data []byte) error {
	var onDisk proposalOnDisk
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return err
	}

	payload, err := DecodePayload(onDisk.Category, onDisk.Payload)
	if err != nil {
		return err
	}

	*p = Proposal{
		SchemaVersion:    onDisk.SchemaVersion,
		ID:               onDisk.ID,
		Category:         onDisk.Category,
		DeclaredRisk:     onDisk.DeclaredRisk,
		Title:            onDisk.Title,
		Description:      onDisk.Description,
		Payload:          payload,
		SourceSignal:     onDisk.SourceSignal,
		Status:           onDisk.Status,
		CreatedAt:        onDisk.CreatedAt,
		UpdatedAt:        onDisk.UpdatedAt,
		Reviewer:         onDisk.Reviewer,
		Notes:            onDisk.Notes,
		RollbackRecordID: onDisk.RollbackRecordID,
	}
	return nil
}

// DecodePayload decodes a raw JSON payload against the given category tag.
// Returns an error naming the category for anything outside the five known
// categories.
func DecodePayload(category ProposalCategory, raw json.RawMessage) (ProposalPayload, error) {
	switch category {
	case CategoryRuleAdd:
		var p RuleAddPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode rule-add payload: %w", err)
		}
		return p, nil
	case CategoryModeInstruction:
		var p ModeInstructionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode mode-instruction payload: %w", err)
		}
		return p, nil
	case CategorySkillCreation:
		var p SkillCreationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode skill-creation payload: %w", err)
		}
		return p, nil
	case CategoryConfigUpdate:
		var p ConfigUpdatePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode config-update payload: %w", err)
		}
		return p, nil
	case CategoryPromptRefinement:
		var p PromptRefinementPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode prompt-refinement payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown proposal category %q", category)
	}
}
