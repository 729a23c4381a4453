package alerts

import (
	"testing"

	"github.com/opensource-crm/leadhawk/internal/domain"
)

func newCustom(t *testing.T) *CustomEngine {
	t.Helper()
	e, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("NewCustomEngine failed: %v", err)
	}
	return e
}

func fptr(v float64) *float64 { return &v }

func boolRule(id, expr string) *domain.AlertRuleConfig {
	return &domain.AlertRuleConfig{
		ID:         id,
		Name:       "test rule",
		Expression: expr,
		Enabled:    true,
	}
}

func TestValidateRule(t *testing.T) {
	e := newCustom(t)

	if err := e.ValidateRule(boolRule("r1", "score > 80 && !enrolled")); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}
	if err := e.ValidateRule(boolRule("r2", "score >")); err == nil {
		t.Error("syntax error should be rejected")
	}
	if err := e.ValidateRule(boolRule("r3", "grade")); err == nil {
		t.Error("string-typed expression should be rejected")
	}
	if err := e.ValidateRule(boolRule("r4", "no_such_var > 1")); err == nil {
		t.Error("unknown variable should be rejected")
	}
	if e.RulesCount() != 0 {
		t.Errorf("validation must not load rules, count = %d", e.RulesCount())
	}
}

func TestEvaluateBoolRule(t *testing.T) {
	e := newCustom(t)
	if err := e.LoadRule(boolRule("high-score", "score >= 90 && !enrolled")); err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	leads := []domain.ScoredLead{
		{Lead: domain.Lead{ID: "L001", Name: "张三"}, Score: 95},
		{Lead: domain.Lead{ID: "L002", Enrolled: true}, Score: 95},
		{Lead: domain.Lead{ID: "L003"}, Score: 40},
	}

	alerts := e.EvaluateAll(leads, alertNow)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Type != domain.AlertCustomRule {
		t.Errorf("type = %s", a.Type)
	}
	if a.Fields[domain.FieldRuleID] != "high-score" || a.Fields[domain.FieldLeadID] != "L001" {
		t.Errorf("fields = %v", a.Fields)
	}
	// Bool rule without bands defaults to yellow.
	if a.Severity != domain.SeverityYellow {
		t.Errorf("severity = %s, want yellow", a.Severity)
	}
}

func TestEvaluateBandedRule(t *testing.T) {
	e := newCustom(t)

	cfg := &domain.AlertRuleConfig{
		ID:         "stale-days",
		Name:       "days since last follow-up",
		Expression: "days_since_follow_up",
		Enabled:    true,
		Bands: []domain.AlertBand{
			{LowerLimit: fptr(3), UpperLimit: fptr(7), Severity: domain.SeverityYellow, Suggestion: "nudge"},
			{LowerLimit: fptr(7), Severity: domain.SeverityRed, Suggestion: "call now"},
		},
	}
	if err := e.LoadRule(cfg); err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	leads := []domain.ScoredLead{
		{Lead: domain.Lead{ID: "L001", LastFollowUp: validDaysAgo(1)}},  // below every band
		{Lead: domain.Lead{ID: "L002", LastFollowUp: validDaysAgo(3)}},  // lower bound inclusive
		{Lead: domain.Lead{ID: "L003", LastFollowUp: validDaysAgo(7)}},  // upper bound exclusive, next band
		{Lead: domain.Lead{ID: "L004", LastFollowUp: validDaysAgo(30)}}, // open upper limit
		{Lead: domain.Lead{ID: "L005", LastFollowUp: domain.AbsentTime()}},
	}

	alerts := e.EvaluateAll(leads, alertNow)
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d: %v", len(alerts), alerts)
	}
	if alerts[0].Severity != domain.SeverityYellow || alerts[0].Suggestion != "nudge" {
		t.Errorf("L002 alert = %+v", alerts[0])
	}
	if alerts[1].Severity != domain.SeverityRed || alerts[1].Fields[domain.FieldLeadID] != "L003" {
		t.Errorf("L003 alert = %+v", alerts[1])
	}
	if alerts[2].Severity != domain.SeverityRed || alerts[2].Fields[domain.FieldLeadID] != "L004" {
		t.Errorf("L004 alert = %+v", alerts[2])
	}
}

func TestEvaluateAllRuleOrder(t *testing.T) {
	e := newCustom(t)

	// Loaded out of order; evaluation runs in ID order.
	if err := e.LoadRule(boolRule("b-rule", "score > 0")); err != nil {
		t.Fatal(err)
	}
	if err := e.LoadRule(boolRule("a-rule", "score > 0")); err != nil {
		t.Fatal(err)
	}

	leads := []domain.ScoredLead{{Lead: domain.Lead{ID: "L001"}, Score: 10}}

	for i := 0; i < 5; i++ {
		alerts := e.EvaluateAll(leads, alertNow)
		if len(alerts) != 2 {
			t.Fatalf("expected 2 alerts, got %d", len(alerts))
		}
		if alerts[0].Fields[domain.FieldRuleID] != "a-rule" || alerts[1].Fields[domain.FieldRuleID] != "b-rule" {
			t.Fatalf("rules out of ID order: %v, %v", alerts[0].Fields, alerts[1].Fields)
		}
	}
}

func TestLoadRulesSkipsDisabled(t *testing.T) {
	e := newCustom(t)

	disabled := boolRule("off", "score > 0")
	disabled.Enabled = false
	if err := e.LoadRules([]*domain.AlertRuleConfig{disabled, boolRule("on", "score > 0")}); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if e.RulesCount() != 1 {
		t.Errorf("count = %d, want 1", e.RulesCount())
	}
}

func TestReloadRulesSwapsSet(t *testing.T) {
	e := newCustom(t)
	if err := e.LoadRule(boolRule("old", "score > 0")); err != nil {
		t.Fatal(err)
	}

	if err := e.ReloadRules([]*domain.AlertRuleConfig{boolRule("new", "enrolled")}); err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}
	if e.RulesCount() != 1 {
		t.Fatalf("count = %d, want 1", e.RulesCount())
	}
	loaded := e.GetLoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "new" {
		t.Errorf("loaded = %v", loaded)
	}

	// A bad reload leaves the current set untouched.
	if err := e.ReloadRules([]*domain.AlertRuleConfig{boolRule("bad", "score >")}); err == nil {
		t.Fatal("expected compile error")
	}
	if e.RulesCount() != 1 || e.GetLoadedRules()[0].ID != "new" {
		t.Error("failed reload must not clobber the loaded set")
	}
}
