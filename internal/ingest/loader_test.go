package ingest

import (
	"strings"
	"testing"

	"github.com/opensource-crm/leadhawk/internal/domain"
)

func TestLoadBasicCSV(t *testing.T) {
	data := "学员id,学员姓名,学员来源\nL001,张三,直播平台\nL002,李四,抖音短视频平台\n"

	rows, err := Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][domain.ColLeadID] != "L001" {
		t.Errorf("row 0 id = %q, want L001", rows[0][domain.ColLeadID])
	}
	if rows[1][domain.ColChannel] != "抖音短视频平台" {
		t.Errorf("row 1 channel = %q", rows[1][domain.ColChannel])
	}
}

func TestLoadStripsBOM(t *testing.T) {
	data := "\uFEFF学员id,学员姓名\nL001,张三\n"

	rows, err := Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rows[0][domain.ColLeadID] != "L001" {
		t.Errorf("BOM not stripped from first header: %v", rows[0])
	}
}

func TestLoadPadsShortRows(t *testing.T) {
	data := "学员id,学员姓名,回访次数\nL001,张三\n"

	rows, err := Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got, ok := rows[0][domain.ColFollowUps]; !ok || got != "" {
		t.Errorf("short row should pad missing cells with empty strings, got %q ok=%v", got, ok)
	}
}

func TestLoadTrimsCells(t *testing.T) {
	data := "学员id , 学员姓名\n L001 , 张三 \n"

	rows, err := Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rows[0][domain.ColLeadID] != "L001" {
		t.Errorf("cell not trimmed: %v", rows[0])
	}
}

func TestLoadEmptyInput(t *testing.T) {
	if _, err := Load(strings.NewReader("")); err == nil {
		t.Error("expected error for missing header row")
	}
}
