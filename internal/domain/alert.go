package domain

// Severity is the alert tier. Three tiers are load-bearing: red demands
// same-day action, orange signals a process problem, yellow is advisory.
type Severity string

const (
	SeverityRed    Severity = "red"
	SeverityOrange Severity = "orange"
	SeverityYellow Severity = "yellow"
)

// Built-in alert type identifiers.
const (
	AlertHighValueNoFollowUp = "high_value_no_followup"
	AlertColdHotLead         = "cold_hot_lead"
	AlertUnnamedRatio        = "unnamed_ratio"
	AlertGradeOtherRatio     = "grade_other_ratio"
	AlertZombieLead          = "zombie_lead"
	AlertCustomRule          = "custom_rule"
)

// Alert is one flagged anomaly. Per-record alerts carry lead identity in
// Fields; table-level alerts carry the computed ratio instead.
type Alert struct {
	Type       string            `json:"type"`
	Severity   Severity          `json:"severity"`
	Suggestion string            `json:"suggestion"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Common Fields keys.
const (
	FieldLeadID       = "leadId"
	FieldLeadName     = "leadName"
	FieldGrade        = "grade"
	FieldChannel      = "channel"
	FieldSalesperson  = "salesperson"
	FieldFollowUps    = "followUps"
	FieldFirstConsult = "firstConsult"
	FieldLastContact  = "lastContact"
	FieldRatio        = "ratio"
	FieldRuleID       = "ruleId"
)

// AlertSet holds one generation's alerts bucketed by severity. A set is
// built from scratch on every generation; re-running over the same table
// yields an identical set.
type AlertSet struct {
	Red    []Alert `json:"red"`
	Orange []Alert `json:"orange"`
	Yellow []Alert `json:"yellow"`
}

// Add appends an alert to its severity bucket.
func (s *AlertSet) Add(a Alert) {
	switch a.Severity {
	case SeverityRed:
		s.Red = append(s.Red, a)
	case SeverityOrange:
		s.Orange = append(s.Orange, a)
	default:
		s.Yellow = append(s.Yellow, a)
	}
}

// AddAll appends alerts in order.
func (s *AlertSet) AddAll(alerts []Alert) {
	for _, a := range alerts {
		s.Add(a)
	}
}

// BySeverity returns the bucket for a severity.
func (s *AlertSet) BySeverity(sev Severity) []Alert {
	switch sev {
	case SeverityRed:
		return s.Red
	case SeverityOrange:
		return s.Orange
	case SeverityYellow:
		return s.Yellow
	}
	return nil
}

// Total returns the number of alerts across all buckets.
func (s *AlertSet) Total() int {
	return len(s.Red) + len(s.Orange) + len(s.Yellow)
}

// AlertRuleConfig defines a user-supplied alert rule evaluated per lead.
type AlertRuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over lead variables; must return bool, int, or double.
	Expression string `json:"expression"`

	// Outcome bands mapping the expression value to a severity.
	Bands []AlertBand `json:"bands"`

	// Whether the rule is active.
	Enabled bool `json:"enabled"`
}

// AlertBand maps a value range to an emitted alert. A lead whose value
// falls outside every band emits nothing.
type AlertBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Severity   Severity `json:"severity"`
	Suggestion string   `json:"suggestion"`
}
