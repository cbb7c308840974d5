// Package config holds the Evolution Engine's own configuration: autonomy
// level, scheduling, rate limits, backup policy, and self-heal thresholds.
// It is deliberately separate from (and does not replace) the host
// product's mode-map and council-config loaders.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

// PriorityOrder selects how the Scheduler ranks pending proposals.
type PriorityOrder string

const (
	PriorityAge    PriorityOrder = "age"
	PriorityImpact PriorityOrder = "impact"
	PriorityRisk   PriorityOrder = "risk"
)

// AutonomyLevel controls the Decision Policy's auto-approval envelope.
type AutonomyLevel int

const (
	AutonomyManual   AutonomyLevel = 0
	AutonomyAssisted AutonomyLevel = 1
	AutonomyAuto     AutonomyLevel = 2
)

// QuietHours is a local-time suppression window; StartHour > EndHour means
// the window wraps across midnight.
type QuietHours struct {
	Enabled   bool `yaml:"enabled"`
	StartHour int  `yaml:"start_hour"`
	EndHour   int  `yaml:"end_hour"`
}

// SelfHealConfig holds the Self-Healing Monitor's degradation thresholds.
type SelfHealConfig struct {
	Enabled               bool    `yaml:"enabled"`
	SuccessRateDropPct    float64 `yaml:"success_rate_drop_pct"`
	CostIncreasePct       float64 `yaml:"cost_increase_pct"`
	DurationIncreasePct   float64 `yaml:"duration_increase_pct"`
	MinTasksForEvaluation int     `yaml:"min_tasks_for_evaluation"`
	MonitoringPeriodMs    int64   `yaml:"monitoring_period_ms"`
	MaxDailyRollbacks     int     `yaml:"max_daily_rollbacks"`
}

// CustomRule is one ordered predicate/action pair evaluated by the Decision
// Policy before the built-in autonomy check (spec §4.3 step 3).
type CustomRule struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"` // lower runs first

	AllowedCategories []evotypes.ProposalCategory `yaml:"allowed_categories,omitempty"`
	MaxRiskLevel       evotypes.RiskLevel          `yaml:"max_risk_level,omitempty"`
	MinConfidence       float64                    `yaml:"min_confidence,omitempty"`
	MaxAffectedTargets  int                        `yaml:"max_affected_targets,omitempty"`
	Scope               evotypes.Scope             `yaml:"scope,omitempty"`

	Action evotypes.DecisionOutcome `yaml:"action"`
}

// EngineConfig is the full set of operator-facing knobs for the Evolution
// Engine (spec §6 configuration table).
type EngineConfig struct {
	Enabled bool `yaml:"enabled"`
	DryRun  bool `yaml:"dry_run"`

	AutonomyLevel AutonomyLevel `yaml:"autonomy_level"`
	MinConfidence float64       `yaml:"min_confidence"`

	DailyLimit    int `yaml:"daily_limit"`
	MaxPerCycle   int `yaml:"max_per_cycle"`
	IntervalMs    int64 `yaml:"interval_ms"`
	BatchSize     int `yaml:"batch_size"`

	PriorityOrder PriorityOrder `yaml:"priority_order"`
	QuietHours    QuietHours    `yaml:"quiet_hours"`
	MaxAgeMs      int64         `yaml:"max_age_ms"`

	CreateBackups bool   `yaml:"create_backups"`
	BackupDir     string `yaml:"backup_dir"`
	MaxBackups    int    `yaml:"max_backups"`

	RollbackOnFailure bool `yaml:"rollback_on_failure"`

	// RequireCouncil makes the auto autonomy level send medium-risk
	// proposals to the council oracle (escalated when no oracle is
	// configured) instead of approving them through the confidence floor.
	// It has no effect at the manual and assisted levels, which defer
	// medium-risk proposals (spec §4.3 step 4).
	RequireCouncil bool `yaml:"require_council"`

	// ApplicationTimeoutMs bounds a single Applicator invocation before it
	// is aborted and the proposal marked failed with reason "timeout".
	ApplicationTimeoutMs int64 `yaml:"application_timeout_ms"`

	SelfHeal SelfHealConfig `yaml:"self_heal"`

	CustomRules []CustomRule `yaml:"custom_rules"`

	Logging logging.Config `yaml:"logging"`
}

// DefaultConfig returns conservative defaults: manual autonomy, backups and
// rollback-on-failure on, self-heal enabled with a small rollback budget.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Enabled:       true,
		DryRun:        false,
		AutonomyLevel: AutonomyManual,
		MinConfidence: 0.6,

		DailyLimit:  20,
		MaxPerCycle: 5,
		IntervalMs:  5 * 60 * 1000,
		BatchSize:   3,

		PriorityOrder: PriorityAge,
		QuietHours:    QuietHours{Enabled: false, StartHour: 22, EndHour: 6},
		MaxAgeMs:      7 * 24 * 60 * 60 * 1000,

		CreateBackups: true,
		BackupDir:     "backups",
		MaxBackups:    20,

		RollbackOnFailure: true,
		RequireCouncil:    false,

		ApplicationTimeoutMs: 30 * 1000,

		SelfHeal: SelfHealConfig{
			Enabled:               true,
			SuccessRateDropPct:    30,
			CostIncreasePct:       100,
			DurationIncreasePct:   100,
			MinTasksForEvaluation: 3,
			MonitoringPeriodMs:    60 * 60 * 1000,
			MaxDailyRollbacks:     5,
		},

		Logging: logging.Config{DebugMode: false, Level: "info"},
	}
}

// Load reads an EngineConfig from a YAML file, with the file's values merged
// over the defaults; if the file does not exist it returns the defaults.
func Load(path string) (*EngineConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("engine config not found at %s, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("read engine config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	logging.Boot("engine config loaded from %s: autonomy=%d interval=%dms", path, cfg.AutonomyLevel, cfg.IntervalMs)
	return cfg, nil
}

// Save writes the config back to path as YAML, creating parent directories
// as needed.
func (c *EngineConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal engine config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write engine config: %w", err)
	}
	return nil
}

// Validate rejects configurations the rest of the engine cannot reason
// about safely.
func (c *EngineConfig) Validate() error {
	if c.AutonomyLevel < AutonomyManual || c.AutonomyLevel > AutonomyAuto {
		return fmt.Errorf("autonomy_level must be 0, 1, or 2, got %d", c.AutonomyLevel)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0,1], got %f", c.MinConfidence)
	}
	if c.DailyLimit < 0 {
		return fmt.Errorf("daily_limit cannot be negative")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms must be positive")
	}
	switch c.PriorityOrder {
	case PriorityAge, PriorityImpact, PriorityRisk:
	default:
		return fmt.Errorf("priority_order must be age, impact, or risk, got %q", c.PriorityOrder)
	}
	if c.QuietHours.StartHour < 0 || c.QuietHours.StartHour > 23 || c.QuietHours.EndHour < 0 || c.QuietHours.EndHour > 23 {
		return fmt.Errorf("quiet_hours start/end must be in [0,23]")
	}
	for _, r := range c.CustomRules {
		switch r.Action {
		case evotypes.DecisionApprove, evotypes.DecisionDefer, evotypes.DecisionReject, evotypes.DecisionEscalate:
		default:
			return fmt.Errorf("custom rule %q has invalid action %q", r.Name, r.Action)
		}
	}
	return nil
}

// SortedCustomRules returns CustomRules ordered by ascending Priority,
// leaving the original slice untouched.
func (c *EngineConfig) SortedCustomRules() []CustomRule {
	sorted := make([]CustomRule, len(c.CustomRules))
	copy(sorted, c.CustomRules)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Priority > sorted[j].Priority; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted
}
