package applicator

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
)

// forwardOp is one mutation the Applicator performs, file-backed or
// delegated to the SettingsSink. Kept internal to this package: callers
// only ever see the Result the whole batch produces.
type forwardOp struct {
	Kind       string
	TargetPath string

	IsFileOp bool
	Mutate   func(prior []byte, existed bool) ([]byte, error)

	InverseKind          string
	PriorValueForInverse interface{}
	ConfigPayload        *evotypes.ConfigUpdatePayload
}

// translate dispatches p's payload into the ordered list of forward ops
// that would apply it. An
// unrecognized payload type fails deterministically rather than silently
// deferring.
func translate(p *evotypes.Proposal) ([]forwardOp, error) {
	switch payload := p.Payload.(type) {
	case evotypes.RuleAddPayload:
		return []forwardOp{ruleAddOp(p.ID, payload)}, nil
	case evotypes.ModeInstructionPayload:
		return []forwardOp{modeInstructionOp(p.ID, payload)}, nil
	case evotypes.SkillCreationPayload:
		return skillCreationOps(payload), nil
	case evotypes.ConfigUpdatePayload:
		return []forwardOp{configUpdateOp(payload)}, nil
	case evotypes.PromptRefinementPayload:
		return []forwardOp{modeInstructionOp(p.ID, payload.AsModeInstruction())}, nil
	default:
		return nil, fmt.Errorf("%w: %T", errUnknownPayload, payload)
	}
}

var errUnknownPayload = fmt.Errorf("applicator: unrecognized proposal payload type")

// demarcate wraps text in a block tagged with a proposal id, so repeated
// applies against the same target stay legible and greppable rather than
// running text together.
func demarcate(proposalID, text string) string {
	return fmt.Sprintf("\n<!-- evolution:begin %s -->\n%s\n<!-- evolution:end %s -->\n", proposalID, text, proposalID)
}

// ruleAddOp appends a demarcated block to the named rules target,
// creating it if missing.
func ruleAddOp(proposalID string, payload evotypes.RuleAddPayload) forwardOp {
	return forwardOp{
		Kind:       "rule-add",
		TargetPath: payload.TargetPath,
		IsFileOp:   true,
		Mutate: func(prior []byte, existed bool) ([]byte, error) {
			block := demarcate(proposalID, payload.RuleText)
			if !existed {
				return []byte(block), nil
			}
			return append(append([]byte{}, prior...), []byte(block)...), nil
		},
	}
}

// modeFile is the structured target mode-instruction upserts into: a JSON
// object keyed by mode slug.
type modeFile map[string]modeEntry

type modeEntry struct {
	Instructions string `json:"instructions"`
}

// modeInstructionOp upserts the entry keyed by ModeSlug in the structured
// modes target and appends a demarcated block to its Instructions field.
func modeInstructionOp(proposalID string, payload evotypes.ModeInstructionPayload) forwardOp {
	return forwardOp{
		Kind:       "mode-instruction",
		TargetPath: payload.ModesTarget,
		IsFileOp:   true,
		Mutate: func(prior []byte, existed bool) ([]byte, error) {
			var mf modeFile
			if existed {
				if err := json.Unmarshal(prior, &mf); err != nil {
					return nil, evoerrors.Wrap(evoerrors.KindStateCorrupted, "applicator.modeInstructionOp", err)
				}
			}
			if mf == nil {
				mf = make(modeFile)
			}
			entry := mf[payload.ModeSlug]
			entry.Instructions += demarcate(proposalID, payload.InstructionText)
			mf[payload.ModeSlug] = entry
			return json.MarshalIndent(mf, "", "  ")
		},
	}
}

// skillCreationOps writes the metadata descriptor and implementation body
// artifacts under the scope directory. Both
// targets are upserted: re-applying the same proposal overwrites rather
// than erroring, since a skill-creation proposal is idempotent by
// construction (its targets are derived from SkillName, not from what was
// there before).
func skillCreationOps(payload evotypes.SkillCreationPayload) []forwardOp {
	targets := payload.AffectedTargets()
	metaPath, implPath := targets[0], targets[1]
	return []forwardOp{
		{
			Kind:       "skill-creation-meta",
			TargetPath: metaPath,
			IsFileOp:   true,
			Mutate: func([]byte, bool) ([]byte, error) {
				return []byte(payload.MetadataDescriptor), nil
			},
		},
		{
			Kind:       "skill-creation-impl",
			TargetPath: implPath,
			IsFileOp:   true,
			Mutate: func([]byte, bool) ([]byte, error) {
				return []byte(payload.ImplementationBody), nil
			},
		},
	}
}

// configUpdateOp records the settings change and delegates the actual
// wiring to the SettingsSink via an event rather than mutating any file in
// place.
func configUpdateOp(payload evotypes.ConfigUpdatePayload) forwardOp {
	return forwardOp{
		Kind:                 "config-update",
		TargetPath:           payload.SettingsKey,
		IsFileOp:             false,
		InverseKind:          "restore-settings",
		PriorValueForInverse: payload.SettingsFrom,
		ConfigPayload:        &payload,
	}
}

// targetPaths returns every file-backed target an op touches, used by the
// backup snapshotter. Sorted for deterministic manifest ordering.
func targetPaths(ops []forwardOp) []string {
	var out []string
	for _, op := range ops {
		if op.IsFileOp {
			out = append(out, op.TargetPath)
		}
	}
	sort.Strings(out)
	return out
}
