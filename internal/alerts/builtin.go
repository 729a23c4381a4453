// Package alerts evaluates anomaly rules over a lead table and buckets the
// results into three severity tiers.
package alerts

import (
	"fmt"
	"time"

	"github.com/opensource-crm/leadhawk/internal/domain"
)

// Suggested actions attached to built-in alerts.
const (
	SuggestFirstContact  = "schedule the first follow-up immediately"
	SuggestReactivate    = "re-activate follow-up immediately"
	SuggestCollectNames  = "require real names during the first contact"
	SuggestReviewGrading = "re-assess grading standards and coach the sales team"
	SuggestTriage        = "evaluate whether to abandon or re-activate"
)

// Config holds the built-in rule thresholds. HighValueGrades is deliberately
// distinct from the high-quality grade set used in channel stats; the red
// alert casts a wider net.
type Config struct {
	HighValueGrades []string
	ColdAfterDays   int
	ZombieAfterDays int

	// Table-level ratio thresholds, in percent.
	UnnamedRatioThreshold    float64
	GradeOtherRatioThreshold float64
}

// DefaultConfig returns the production rule thresholds.
func DefaultConfig() Config {
	return Config{
		HighValueGrades:          []string{"A", "B", "C"},
		ColdAfterDays:            3,
		ZombieAfterDays:          7,
		UnnamedRatioThreshold:    30,
		GradeOtherRatioThreshold: 30,
	}
}

// CheckHighValueNoFollowUp flags high-grade leads that never got a first
// follow-up. One red alert per matching record, in table row order.
func (e *Engine) CheckHighValueNoFollowUp(leads []domain.ScoredLead) []domain.Alert {
	var alerts []domain.Alert
	for _, lead := range leads {
		if !e.isHighValue(lead.Grade) || lead.FollowUps != 0 {
			continue
		}
		alerts = append(alerts, domain.Alert{
			Type:       domain.AlertHighValueNoFollowUp,
			Severity:   domain.SeverityRed,
			Suggestion: SuggestFirstContact,
			Fields: map[string]string{
				domain.FieldLeadID:       lead.ID,
				domain.FieldLeadName:     lead.Name,
				domain.FieldGrade:        lead.Grade,
				domain.FieldFirstConsult: timeFieldString(lead.FirstConsult),
				domain.FieldSalesperson:  lead.Salesperson,
			},
		})
	}
	return alerts
}

// CheckColdHotLeads flags leads with follow-up history that have gone quiet.
// Records whose last follow-up failed to parse are silently skipped.
func (e *Engine) CheckColdHotLeads(leads []domain.ScoredLead, now time.Time) []domain.Alert {
	cutoff := now.AddDate(0, 0, -e.cfg.ColdAfterDays)

	var alerts []domain.Alert
	for _, lead := range leads {
		if lead.FollowUps <= 0 || !lead.LastFollowUp.Valid() {
			continue
		}
		if !lead.LastFollowUp.Time.Before(cutoff) {
			continue
		}
		alerts = append(alerts, domain.Alert{
			Type:       domain.AlertColdHotLead,
			Severity:   domain.SeverityRed,
			Suggestion: SuggestReactivate,
			Fields: map[string]string{
				domain.FieldLeadID:      lead.ID,
				domain.FieldLeadName:    lead.Name,
				domain.FieldFollowUps:   fmt.Sprintf("%d", lead.FollowUps),
				domain.FieldLastContact: timeFieldString(lead.LastFollowUp),
				domain.FieldSalesperson: lead.Salesperson,
			},
		})
	}
	return alerts
}

// CheckUnnamedRatio emits one table-level yellow alert when too many leads
// still carry the placeholder name.
func (e *Engine) CheckUnnamedRatio(leads []domain.ScoredLead) []domain.Alert {
	if len(leads) == 0 {
		return nil
	}

	unnamed := 0
	for _, lead := range leads {
		if lead.Name == domain.PlaceholderName {
			unnamed++
		}
	}

	ratio := float64(unnamed) / float64(len(leads)) * 100
	if ratio <= e.cfg.UnnamedRatioThreshold {
		return nil
	}

	return []domain.Alert{{
		Type:       domain.AlertUnnamedRatio,
		Severity:   domain.SeverityYellow,
		Suggestion: SuggestCollectNames,
		Fields: map[string]string{
			domain.FieldRatio: fmt.Sprintf("%.1f%%", ratio),
		},
	}}
}

// CheckGradeOtherRatio emits one table-level orange alert when the catch-all
// grade dominates the table.
func (e *Engine) CheckGradeOtherRatio(leads []domain.ScoredLead) []domain.Alert {
	if len(leads) == 0 {
		return nil
	}

	other := 0
	for _, lead := range leads {
		if lead.Grade == domain.GradeOther {
			other++
		}
	}

	ratio := float64(other) / float64(len(leads)) * 100
	if ratio <= e.cfg.GradeOtherRatioThreshold {
		return nil
	}

	return []domain.Alert{{
		Type:       domain.AlertGradeOtherRatio,
		Severity:   domain.SeverityOrange,
		Suggestion: SuggestReviewGrading,
		Fields: map[string]string{
			domain.FieldRatio: fmt.Sprintf("%.1f%%", ratio),
		},
	}}
}

// CheckZombieLeads flags unenrolled leads with no recent activity. The last
// follow-up is the activity marker, falling back to the first consultation
// when no follow-up was recorded; a malformed activity timestamp skips the
// record for this rule.
func (e *Engine) CheckZombieLeads(leads []domain.ScoredLead, now time.Time) []domain.Alert {
	cutoff := now.AddDate(0, 0, -e.cfg.ZombieAfterDays)

	var alerts []domain.Alert
	for _, lead := range leads {
		activity := lead.LastFollowUp
		if activity.State == domain.TimeAbsent {
			activity = lead.FirstConsult
		}
		if !activity.Valid() {
			continue
		}
		if !activity.Time.Before(cutoff) || lead.EnrollTime.Valid() {
			continue
		}
		alerts = append(alerts, domain.Alert{
			Type:       domain.AlertZombieLead,
			Severity:   domain.SeverityYellow,
			Suggestion: SuggestTriage,
			Fields: map[string]string{
				domain.FieldLeadID:      lead.ID,
				domain.FieldLeadName:    lead.Name,
				domain.FieldLastContact: timeFieldString(activity),
				domain.FieldSalesperson: lead.Salesperson,
			},
		})
	}
	return alerts
}

func (e *Engine) isHighValue(grade string) bool {
	for _, g := range e.cfg.HighValueGrades {
		if grade == g {
			return true
		}
	}
	return false
}

func timeFieldString(f domain.TimeField) string {
	if f.Valid() {
		return f.Time.Format("2006-01-02 15:04:05")
	}
	return f.Raw
}
