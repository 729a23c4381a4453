// Package domain defines the core interfaces and types for Leadhawk.
package domain

import (
	"time"
)

// CRM export column headers. Input columns are matched by exact name,
// so these stay in the source language of the export.
const (
	ColLeadID       = "学员id"
	ColName         = "学员姓名"
	ColChannel      = "学员来源"
	ColGrade        = "客户分级"
	ColFirstConsult = "首咨时间"
	ColLastFollowUp = "最后回访时间"
	ColEnrollTime   = "报名时间"
	ColFollowUps    = "回访次数"
	ColAmount       = "报名金额"
	ColSalesperson  = "所属销售"
	ColCourse       = "报名课程"
)

// Placeholder values filled in for empty text cells.
const (
	PlaceholderName   = "未命名"
	PlaceholderCourse = "未报名"
)

// GradeOther is the catch-all customer grade used by the CRM.
const GradeOther = "其他"

// RawLead is one unprocessed row of the export, keyed by column header.
type RawLead map[string]string

// Lead is a normalized prospective-customer record. Records are produced
// once by the preprocessor and read-only afterwards.
type Lead struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Channel     string `json:"channel"`
	Grade       string `json:"grade"`
	Course      string `json:"course"`
	Salesperson string `json:"salesperson"`

	FirstConsult TimeField `json:"firstConsult"`
	LastFollowUp TimeField `json:"lastFollowUp"`
	EnrollTime   TimeField `json:"enrollTime"`

	// FollowUps is never negative; absent or malformed counts become 0.
	FollowUps int `json:"followUps"`

	// Amount is nil when the cell was empty or non-numeric.
	Amount *float64 `json:"amount,omitempty"`

	// Derived fields, computed once by the preprocessor.
	Enrolled     bool   `json:"enrolled"`
	FollowUpDays *int   `json:"followUpDays,omitempty"`
	Department   string `json:"department,omitempty"`
}

// LastActivity returns the most recent known activity timestamp:
// the last follow-up, falling back to the first consultation.
func (l *Lead) LastActivity() TimeField {
	if l.LastFollowUp.Valid() {
		return l.LastFollowUp
	}
	return l.FirstConsult
}

// PriorityLevel is the discrete classification derived from a score.
type PriorityLevel string

const (
	LevelUrgent   PriorityLevel = "urgent"
	LevelPriority PriorityLevel = "priority"
	LevelRoutine  PriorityLevel = "routine"
	LevelLow      PriorityLevel = "low"
)

// ScoredLead is a lead annotated with its priority score and level.
type ScoredLead struct {
	Lead
	Score int           `json:"score"`
	Level PriorityLevel `json:"level"`
}

// TimeState classifies a timestamp cell. Distinguishing "absent" from
// "malformed" lets callers tell a missing cell apart from a parse failure;
// both degrade the same way inside the engines.
type TimeState string

const (
	TimeValid     TimeState = "valid"
	TimeAbsent    TimeState = "absent"
	TimeMalformed TimeState = "malformed"
)

// TimeField is a three-valued timestamp. Time is meaningful only when
// State is TimeValid.
type TimeField struct {
	Time  time.Time `json:"time,omitzero"`
	State TimeState `json:"state"`
	Raw   string    `json:"raw,omitempty"` // original cell, kept for malformed values
}

// ValidTime constructs a valid TimeField.
func ValidTime(t time.Time) TimeField {
	return TimeField{Time: t, State: TimeValid}
}

// AbsentTime is the TimeField for an empty cell.
func AbsentTime() TimeField {
	return TimeField{State: TimeAbsent}
}

// MalformedTime records a cell that failed to parse.
func MalformedTime(raw string) TimeField {
	return TimeField{State: TimeMalformed, Raw: raw}
}

// Valid reports whether the field holds a parsed timestamp.
func (f TimeField) Valid() bool { return f.State == TimeValid }

// Missing reports whether the field is absent or malformed. The engines
// treat both the same: the record degrades, never errors.
func (f TimeField) Missing() bool { return !f.Valid() }
