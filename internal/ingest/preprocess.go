package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-crm/leadhawk/internal/domain"
)

// Timestamp layouts accepted from the CRM export, tried in order.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	time.RFC3339,
}

// deptPattern extracts the department token embedded in salesperson names,
// e.g. "创客二部-张三" yields "二".
var deptPattern = regexp.MustCompile(`创客(.*?)部`)

// Preprocess normalizes raw rows into lead records. Every expected column
// is materialized with a fallback, timestamps become three-valued fields,
// and the derived fields are computed once. It never fails: field-level
// malformation degrades to the safe default and processing continues.
func Preprocess(rows []domain.RawLead) []domain.Lead {
	leads := make([]domain.Lead, 0, len(rows))
	for _, row := range rows {
		leads = append(leads, preprocessRow(row))
	}
	return leads
}

func preprocessRow(row domain.RawLead) domain.Lead {
	lead := domain.Lead{
		ID:          row[domain.ColLeadID],
		Name:        fallback(row[domain.ColName], domain.PlaceholderName),
		Channel:     row[domain.ColChannel],
		Grade:       row[domain.ColGrade],
		Course:      fallback(row[domain.ColCourse], domain.PlaceholderCourse),
		Salesperson: row[domain.ColSalesperson],

		FirstConsult: ParseTime(row[domain.ColFirstConsult]),
		LastFollowUp: ParseTime(row[domain.ColLastFollowUp]),
		EnrollTime:   ParseTime(row[domain.ColEnrollTime]),

		FollowUps: parseFollowUps(row[domain.ColFollowUps]),
		Amount:    parseAmount(row[domain.ColAmount]),
	}

	lead.Enrolled = lead.EnrollTime.Valid()
	lead.FollowUpDays = followUpDays(lead.FirstConsult, lead.LastFollowUp)
	lead.Department = extractDepartment(lead.Salesperson)

	return lead
}

// ParseTime parses a timestamp cell into a three-valued field. Empty cells
// are absent; cells that match no accepted layout are malformed. Neither
// case is an error.
func ParseTime(cell string) domain.TimeField {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return domain.AbsentTime()
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, cell, time.Local); err == nil {
			return domain.ValidTime(t)
		}
	}
	return domain.MalformedTime(cell)
}

// parseFollowUps resolves the follow-up count to a non-negative integer.
// Absent, non-numeric, and negative values all become 0.
func parseFollowUps(cell string) int {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0
	}
	// Exports sometimes carry counts as floats ("3.0")
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f)
}

// parseAmount resolves the enrollment amount, nil when empty or non-numeric.
func parseAmount(cell string) *float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &f
}

// followUpDays computes whole days between first consultation and last
// follow-up. Independent of enrollment; nil unless both timestamps parsed.
func followUpDays(consult, followUp domain.TimeField) *int {
	if !consult.Valid() || !followUp.Valid() {
		return nil
	}
	days := wholeDays(followUp.Time.Sub(consult.Time))
	return &days
}

func extractDepartment(salesperson string) string {
	m := deptPattern.FindStringSubmatch(salesperson)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// wholeDays floors a duration to whole days, matching calendar-style
// day arithmetic for negative spans as well.
func wholeDays(d time.Duration) int {
	days := d.Hours() / 24
	n := int(days)
	if days < 0 && float64(n) != days {
		n--
	}
	return n
}

// DaysSince floors the whole days elapsed from t to now.
func DaysSince(t, now time.Time) int {
	return wholeDays(now.Sub(t))
}
