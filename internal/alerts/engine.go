package alerts

import (
	"time"

	"github.com/opensource-crm/leadhawk/internal/domain"
)

// Engine runs the alert rule suite over a lead table. Each rule is a pure
// function returning its alerts; GenerateAll concatenates them into a fresh
// AlertSet, so the engine itself carries no per-run state and repeated
// generations over the same table are identical.
type Engine struct {
	cfg    Config
	custom *CustomEngine
}

// NewEngine creates an alert engine with the given thresholds. custom may
// be nil when no user-defined rules are configured.
func NewEngine(cfg Config, custom *CustomEngine) *Engine {
	if cfg.ColdAfterDays <= 0 {
		cfg.ColdAfterDays = 3
	}
	if cfg.ZombieAfterDays <= 0 {
		cfg.ZombieAfterDays = 7
	}
	return &Engine{cfg: cfg, custom: custom}
}

// GenerateAll evaluates every rule against the table and buckets the
// results by severity. Rules are independent; a record may appear in
// several buckets. Within a rule, alerts follow table row order.
func (e *Engine) GenerateAll(leads []domain.ScoredLead, now time.Time) domain.AlertSet {
	var set domain.AlertSet

	set.AddAll(e.CheckHighValueNoFollowUp(leads))
	set.AddAll(e.CheckColdHotLeads(leads, now))
	set.AddAll(e.CheckUnnamedRatio(leads))
	set.AddAll(e.CheckGradeOtherRatio(leads))
	set.AddAll(e.CheckZombieLeads(leads, now))

	if e.custom != nil {
		set.AddAll(e.custom.EvaluateAll(leads, now))
	}

	return set
}

// CustomRules returns the custom rule engine, nil when none is configured.
func (e *Engine) CustomRules() *CustomEngine {
	return e.custom
}
