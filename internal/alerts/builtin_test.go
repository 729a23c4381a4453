package alerts

import (
	"reflect"
	"testing"
	"time"

	"github.com/opensource-crm/leadhawk/internal/domain"
)

var alertNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func scored(lead domain.Lead) domain.ScoredLead {
	return domain.ScoredLead{Lead: lead, Score: 50, Level: domain.LevelRoutine}
}

func validDaysAgo(n int) domain.TimeField {
	return domain.ValidTime(alertNow.AddDate(0, 0, -n))
}

func TestHighValueNoFollowUp(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	leads := []domain.ScoredLead{
		scored(domain.Lead{ID: "L001", Name: "张三", Grade: "A", FollowUps: 0}),
		scored(domain.Lead{ID: "L002", Name: "李四", Grade: "A", FollowUps: 2}),
		scored(domain.Lead{ID: "L003", Name: "王五", Grade: "D", FollowUps: 0}),
		scored(domain.Lead{ID: "L004", Name: "赵六", Grade: "C", FollowUps: 0}),
	}

	alerts := e.CheckHighValueNoFollowUp(leads)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].Fields[domain.FieldLeadID] != "L001" || alerts[1].Fields[domain.FieldLeadID] != "L004" {
		t.Errorf("alerts out of table order: %v", alerts)
	}
	if alerts[0].Severity != domain.SeverityRed {
		t.Errorf("severity = %s, want red", alerts[0].Severity)
	}
	if alerts[0].Type != domain.AlertHighValueNoFollowUp {
		t.Errorf("type = %s", alerts[0].Type)
	}
}

func TestColdHotLeads(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	leads := []domain.ScoredLead{
		// Followed up but gone quiet for 10 days: fires.
		scored(domain.Lead{ID: "L001", FollowUps: 2, LastFollowUp: validDaysAgo(10)}),
		// Recent contact: quiet.
		scored(domain.Lead{ID: "L002", FollowUps: 5, LastFollowUp: validDaysAgo(1)}),
		// Never followed up: not this rule's business.
		scored(domain.Lead{ID: "L003", FollowUps: 0, LastFollowUp: validDaysAgo(10)}),
		// Unparseable follow-up timestamp: skipped.
		scored(domain.Lead{ID: "L004", FollowUps: 3, LastFollowUp: domain.MalformedTime("昨天")}),
	}

	alerts := e.CheckColdHotLeads(leads, alertNow)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Fields[domain.FieldLeadID] != "L001" {
		t.Errorf("wrong lead flagged: %v", alerts[0].Fields)
	}
	if alerts[0].Severity != domain.SeverityRed {
		t.Errorf("severity = %s, want red", alerts[0].Severity)
	}
}

func TestUnnamedRatio(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	table := func(unnamed, total int) []domain.ScoredLead {
		leads := make([]domain.ScoredLead, total)
		for i := range leads {
			name := "张三"
			if i < unnamed {
				name = domain.PlaceholderName
			}
			leads[i] = scored(domain.Lead{ID: "L", Name: name})
		}
		return leads
	}

	// 4/10 = 40% > 30%: fires with the formatted ratio.
	alerts := e.CheckUnnamedRatio(table(4, 10))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Severity != domain.SeverityYellow {
		t.Errorf("severity = %s, want yellow", alerts[0].Severity)
	}
	if got := alerts[0].Fields[domain.FieldRatio]; got != "40.0%" {
		t.Errorf("ratio = %q, want 40.0%%", got)
	}

	// Exactly at the threshold: quiet.
	if alerts := e.CheckUnnamedRatio(table(3, 10)); len(alerts) != 0 {
		t.Errorf("30%% should not fire, got %v", alerts)
	}

	if alerts := e.CheckUnnamedRatio(nil); len(alerts) != 0 {
		t.Errorf("empty table should not fire, got %v", alerts)
	}
}

func TestGradeOtherRatio(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	leads := []domain.ScoredLead{
		scored(domain.Lead{Grade: domain.GradeOther}),
		scored(domain.Lead{Grade: domain.GradeOther}),
		scored(domain.Lead{Grade: "A"}),
	}

	alerts := e.CheckGradeOtherRatio(leads)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Severity != domain.SeverityOrange {
		t.Errorf("severity = %s, want orange", alerts[0].Severity)
	}

	// 1/4 = 25%: below the threshold.
	leads = []domain.ScoredLead{
		scored(domain.Lead{Grade: domain.GradeOther}),
		scored(domain.Lead{Grade: "A"}),
		scored(domain.Lead{Grade: "B"}),
		scored(domain.Lead{Grade: "B"}),
	}
	if alerts := e.CheckGradeOtherRatio(leads); len(alerts) != 0 {
		t.Errorf("below-threshold table should not fire, got %v", alerts)
	}
}

func TestZombieLeads(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	leads := []domain.ScoredLead{
		// Unenrolled and quiet for 10 days: fires.
		scored(domain.Lead{ID: "L001", LastFollowUp: validDaysAgo(10), EnrollTime: domain.AbsentTime()}),
		// Enrolled: never a zombie.
		scored(domain.Lead{ID: "L002", LastFollowUp: validDaysAgo(10), EnrollTime: validDaysAgo(9)}),
		// No follow-up at all: falls back to the first consultation.
		scored(domain.Lead{ID: "L003", LastFollowUp: domain.AbsentTime(), FirstConsult: validDaysAgo(20), EnrollTime: domain.AbsentTime()}),
		// Malformed follow-up timestamp: no fallback, skipped.
		scored(domain.Lead{ID: "L004", LastFollowUp: domain.MalformedTime("x"), FirstConsult: validDaysAgo(20), EnrollTime: domain.AbsentTime()}),
		// Recent activity: quiet.
		scored(domain.Lead{ID: "L005", LastFollowUp: validDaysAgo(2), EnrollTime: domain.AbsentTime()}),
	}

	alerts := e.CheckZombieLeads(leads, alertNow)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %v", len(alerts), alerts)
	}
	if alerts[0].Fields[domain.FieldLeadID] != "L001" || alerts[1].Fields[domain.FieldLeadID] != "L003" {
		t.Errorf("wrong leads flagged: %v", alerts)
	}
	if alerts[0].Severity != domain.SeverityYellow {
		t.Errorf("severity = %s, want yellow", alerts[0].Severity)
	}
}

func TestGenerateAllBucketsAndIdempotence(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	leads := []domain.ScoredLead{
		scored(domain.Lead{ID: "L001", Name: domain.PlaceholderName, Grade: "A", FollowUps: 0,
			EnrollTime: domain.AbsentTime()}),
		scored(domain.Lead{ID: "L002", Name: domain.PlaceholderName, Grade: domain.GradeOther,
			FollowUps: 2, LastFollowUp: validDaysAgo(10), EnrollTime: domain.AbsentTime()}),
	}

	set := e.GenerateAll(leads, alertNow)

	// L001: red (high-value, no follow-up). L002: red (cold) + yellow (zombie).
	// Table-level: yellow unnamed 100%, orange grade-other 50%.
	if len(set.Red) != 2 {
		t.Errorf("red = %d, want 2", len(set.Red))
	}
	if len(set.Orange) != 1 {
		t.Errorf("orange = %d, want 1", len(set.Orange))
	}
	if len(set.Yellow) != 2 {
		t.Errorf("yellow = %d, want 2", len(set.Yellow))
	}
	if set.Total() != 5 {
		t.Errorf("total = %d, want 5", set.Total())
	}

	again := e.GenerateAll(leads, alertNow)
	if !reflect.DeepEqual(set, again) {
		t.Error("repeated generation over the same table should be identical")
	}
}

func TestBySeverity(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	leads := []domain.ScoredLead{
		scored(domain.Lead{ID: "L001", Grade: "A", FollowUps: 0}),
	}

	set := e.GenerateAll(leads, alertNow)
	if got := set.BySeverity(domain.SeverityRed); len(got) != 1 {
		t.Errorf("red bucket = %d, want 1", len(got))
	}
	if got := set.BySeverity(domain.SeverityOrange); len(got) != 0 {
		t.Errorf("orange bucket = %d, want 0", len(got))
	}
}
