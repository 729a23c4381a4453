package alerts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-crm/leadhawk/internal/domain"
	"github.com/opensource-crm/leadhawk/internal/ingest"
)

// CustomEngine evaluates user-defined CEL rules per lead. Rules are
// compiled once at load and hot-reloadable.
type CustomEngine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.AlertRuleConfig
	Program cel.Program
}

// NewCustomEngine creates a custom rule engine with lead variables bound.
func NewCustomEngine() (*CustomEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("lead", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("channel", cel.StringType),
		cel.Variable("grade", cel.StringType),
		cel.Variable("level", cel.StringType),
		cel.Variable("department", cel.StringType),
		cel.Variable("score", cel.IntType),
		cel.Variable("follow_ups", cel.IntType),
		cel.Variable("enrolled", cel.BoolType),
		cel.Variable("amount", cel.DoubleType),
		// Whole days elapsed; -1 when the timestamp is absent or malformed
		cel.Variable("days_since_consult", cel.IntType),
		cel.Variable("days_since_follow_up", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomEngine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded set.
func (e *CustomEngine) ValidateRule(cfg *domain.AlertRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *CustomEngine) LoadRule(cfg *domain.AlertRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *CustomEngine) LoadRules(configs []*domain.AlertRuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *CustomEngine) ReloadRules(configs []*domain.AlertRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *CustomEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *CustomEngine) GetLoadedRules() []*domain.AlertRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.AlertRuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// EvaluateAll runs every loaded rule over the table. Rules run in ID order
// so repeated generations produce identical output; within a rule, alerts
// follow table row order. An expression error on one record skips that
// record for that rule only.
func (e *CustomEngine) EvaluateAll(leads []domain.ScoredLead, now time.Time) []domain.Alert {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	var alerts []domain.Alert
	for _, rule := range rules {
		for i := range leads {
			if a, ok := e.evaluateRule(rule, &leads[i], now); ok {
				alerts = append(alerts, a)
			}
		}
	}
	return alerts
}

// Close cleans up the engine.
func (e *CustomEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *CustomEngine) evaluateRule(rule *CompiledRule, lead *domain.ScoredLead, now time.Time) (domain.Alert, bool) {
	out, _, err := rule.Program.Eval(activation(lead, now))
	if err != nil {
		return domain.Alert{}, false
	}

	val := toValue(out)
	band, ok := matchBand(val, rule.Config.Bands)
	if !ok {
		return domain.Alert{}, false
	}

	return domain.Alert{
		Type:       domain.AlertCustomRule,
		Severity:   band.Severity,
		Suggestion: band.Suggestion,
		Fields: map[string]string{
			domain.FieldRuleID:      rule.Config.ID,
			domain.FieldLeadID:      lead.ID,
			domain.FieldLeadName:    lead.Name,
			domain.FieldSalesperson: lead.Salesperson,
		},
	}, true
}

func activation(lead *domain.ScoredLead, now time.Time) map[string]any {
	amount := 0.0
	if lead.Amount != nil {
		amount = *lead.Amount
	}

	return map[string]any{
		"lead": map[string]any{
			"id":          lead.ID,
			"name":        lead.Name,
			"channel":     lead.Channel,
			"grade":       lead.Grade,
			"salesperson": lead.Salesperson,
		},
		"channel":              lead.Channel,
		"grade":                lead.Grade,
		"level":                string(lead.Level),
		"department":           lead.Department,
		"score":                int64(lead.Score),
		"follow_ups":           int64(lead.FollowUps),
		"enrolled":             lead.Enrolled,
		"amount":               amount,
		"days_since_consult":   daysSinceField(lead.FirstConsult, now),
		"days_since_follow_up": daysSinceField(lead.LastFollowUp, now),
	}
}

func daysSinceField(f domain.TimeField, now time.Time) int64 {
	if !f.Valid() {
		return -1
	}
	return int64(ingest.DaysSince(f.Time, now))
}

// toValue converts a CEL result to a numeric value for band matching.
func toValue(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a value. Bands are evaluated in
// order: lower inclusive, upper exclusive, nil upper meaning infinity.
// A rule with no bands alerts on any non-zero value, yellow by default.
func matchBand(val float64, bands []domain.AlertBand) (domain.AlertBand, bool) {
	if len(bands) == 0 {
		if val != 0 {
			return domain.AlertBand{Severity: domain.SeverityYellow}, true
		}
		return domain.AlertBand{}, false
	}

	for _, band := range bands {
		lower := 0.0
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if val < lower {
			continue
		}
		if band.UpperLimit == nil || val < *band.UpperLimit {
			return band, true
		}
	}

	return domain.AlertBand{}, false
}

func (e *CustomEngine) compileRule(cfg *domain.AlertRuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
