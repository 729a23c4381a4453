package ingest

import (
	"testing"
	"time"

	"github.com/opensource-crm/leadhawk/internal/domain"
)

func TestParseTimeStates(t *testing.T) {
	tests := []struct {
		name  string
		cell  string
		state domain.TimeState
	}{
		{"standard layout", "2025-03-01 10:30:00", domain.TimeValid},
		{"date only", "2025-03-01", domain.TimeValid},
		{"slash layout", "2025/03/01 10:30", domain.TimeValid},
		{"empty", "", domain.TimeAbsent},
		{"whitespace", "   ", domain.TimeAbsent},
		{"garbage", "not-a-date", domain.TimeMalformed},
		{"partial", "2025-13-45", domain.TimeMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTime(tt.cell)
			if got.State != tt.state {
				t.Errorf("ParseTime(%q).State = %s, want %s", tt.cell, got.State, tt.state)
			}
		})
	}
}

func TestParseTimeKeepsRawOnMalformed(t *testing.T) {
	got := ParseTime("昨天")
	if got.State != domain.TimeMalformed {
		t.Fatalf("expected malformed, got %s", got.State)
	}
	if got.Raw != "昨天" {
		t.Errorf("Raw = %q, want original cell", got.Raw)
	}
}

func TestPreprocessFillsPlaceholders(t *testing.T) {
	rows := []domain.RawLead{
		{
			domain.ColLeadID:  "L001",
			domain.ColName:    "",
			domain.ColChannel: "直播平台",
			domain.ColCourse:  "",
		},
	}

	leads := Preprocess(rows)
	if len(leads) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(leads))
	}
	if leads[0].Name != domain.PlaceholderName {
		t.Errorf("Name = %q, want %q", leads[0].Name, domain.PlaceholderName)
	}
	if leads[0].Course != domain.PlaceholderCourse {
		t.Errorf("Course = %q, want %q", leads[0].Course, domain.PlaceholderCourse)
	}
}

func TestPreprocessFollowUps(t *testing.T) {
	tests := []struct {
		cell string
		want int
	}{
		{"3", 3},
		{"3.0", 3},
		{"", 0},
		{"abc", 0},
		{"-2", 0},
	}

	for _, tt := range tests {
		rows := []domain.RawLead{{domain.ColFollowUps: tt.cell}}
		got := Preprocess(rows)[0].FollowUps
		if got != tt.want {
			t.Errorf("FollowUps(%q) = %d, want %d", tt.cell, got, tt.want)
		}
	}
}

func TestPreprocessAmount(t *testing.T) {
	rows := []domain.RawLead{
		{domain.ColAmount: "12,800"},
		{domain.ColAmount: ""},
		{domain.ColAmount: "n/a"},
	}

	leads := Preprocess(rows)
	if leads[0].Amount == nil || *leads[0].Amount != 12800 {
		t.Errorf("Amount = %v, want 12800", leads[0].Amount)
	}
	if leads[1].Amount != nil {
		t.Errorf("empty amount should be nil, got %v", *leads[1].Amount)
	}
	if leads[2].Amount != nil {
		t.Errorf("non-numeric amount should be nil, got %v", *leads[2].Amount)
	}
}

func TestPreprocessEnrolled(t *testing.T) {
	rows := []domain.RawLead{
		{domain.ColEnrollTime: "2025-03-01 10:00:00"},
		{domain.ColEnrollTime: ""},
		{domain.ColEnrollTime: "soon"},
	}

	leads := Preprocess(rows)
	if !leads[0].Enrolled {
		t.Error("valid enroll time should mark the lead enrolled")
	}
	if leads[1].Enrolled {
		t.Error("absent enroll time should not mark the lead enrolled")
	}
	if leads[2].Enrolled {
		t.Error("malformed enroll time should not mark the lead enrolled")
	}
}

func TestFollowUpDays(t *testing.T) {
	rows := []domain.RawLead{
		{
			domain.ColFirstConsult: "2025-03-01 10:00:00",
			domain.ColLastFollowUp: "2025-03-04 09:00:00",
		},
		{
			// Follow-up before consultation: floored negative days
			domain.ColFirstConsult: "2025-03-04 10:00:00",
			domain.ColLastFollowUp: "2025-03-01 09:00:00",
		},
		{
			domain.ColFirstConsult: "2025-03-01 10:00:00",
		},
	}

	leads := Preprocess(rows)
	if leads[0].FollowUpDays == nil || *leads[0].FollowUpDays != 2 {
		t.Errorf("FollowUpDays = %v, want 2", leads[0].FollowUpDays)
	}
	if leads[1].FollowUpDays == nil || *leads[1].FollowUpDays != -4 {
		t.Errorf("FollowUpDays = %v, want -4", leads[1].FollowUpDays)
	}
	if leads[2].FollowUpDays != nil {
		t.Errorf("missing follow-up should yield nil, got %v", *leads[2].FollowUpDays)
	}
}

func TestExtractDepartment(t *testing.T) {
	tests := []struct {
		salesperson string
		want        string
	}{
		{"创客二部-张三", "二"},
		{"创客网络部-李四", "网络"},
		{"王五", ""},
		{"", ""},
	}

	for _, tt := range tests {
		rows := []domain.RawLead{{domain.ColSalesperson: tt.salesperson}}
		got := Preprocess(rows)[0].Department
		if got != tt.want {
			t.Errorf("Department(%q) = %q, want %q", tt.salesperson, got, tt.want)
		}
	}
}

func TestDaysSince(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want int
	}{
		{"same moment", now, 0},
		{"same day earlier", time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC), 0},
		{"three days ago", time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC), 3},
		{"partial day floors down", time.Date(2025, 3, 7, 18, 0, 0, 0, time.UTC), 2},
		{"future floors to negative", time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysSince(tt.t, now); got != tt.want {
				t.Errorf("DaysSince = %d, want %d", got, tt.want)
			}
		})
	}
}
