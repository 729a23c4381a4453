// One-shot analysis tool for CRM lead exports.
//
// Usage:
//   go run cmd/leadhawk-analyze/main.go -csv /path/to/leads.csv
//
// This tool:
//   1. Reads a raw CRM lead export (CSV)
//   2. Runs the full pipeline locally: preprocess, score, alerts, stats
//   3. Prints a console report with priorities, alerts, and summaries
//   4. Optionally exports the scored table and alert list as CSV
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/opensource-crm/leadhawk/internal/alerts"
	"github.com/opensource-crm/leadhawk/internal/analyzer"
	"github.com/opensource-crm/leadhawk/internal/domain"
	"github.com/opensource-crm/leadhawk/internal/ingest"
	"github.com/opensource-crm/leadhawk/internal/scoring"
	"github.com/opensource-crm/leadhawk/internal/stats"
)

func main() {
	csvPath := flag.String("csv", "", "Path to the CRM lead export CSV")
	scoringPath := flag.String("scoring", "", "Optional YAML scoring weight overrides")
	outDir := flag.String("out", "", "Directory for CSV report exports (empty = console only)")
	top := flag.Int("top", 10, "Number of top-scored leads to print")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: leadhawk-analyze -csv /path/to/leads.csv [-scoring weights.yaml] [-out ./reports]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	raw, err := ingest.Load(file)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: unreadable CSV: %v\n", err)
		os.Exit(1)
	}

	scoringCfg := scoring.DefaultConfig()
	if *scoringPath != "" {
		scoringCfg, err = scoring.LoadConfigFile(*scoringPath)
		if err != nil {
			fmt.Printf("ERROR: failed to load scoring config: %v\n", err)
			os.Exit(1)
		}
	}

	custom, err := alerts.NewCustomEngine()
	if err != nil {
		fmt.Printf("ERROR: failed to initialize rule engine: %v\n", err)
		os.Exit(1)
	}

	pipeline := analyzer.New(
		scoring.NewEngine(scoringCfg),
		alerts.NewEngine(alerts.DefaultConfig(), custom),
		stats.NewCalculator(stats.DefaultConfig()),
	)

	run := pipeline.Analyze(context.Background(), raw)

	printReport(run, *top)

	if *outDir != "" {
		if err := exportReports(run, *outDir); err != nil {
			fmt.Printf("ERROR: failed to export reports: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reports written to %s\n\n", *outDir)
	}
}

func printReport(run *domain.AnalysisRun, top int) {
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                  LEADHAWK ANALYSIS REPORT                     ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	s := run.Stats
	fmt.Printf("\n📊 BATCH OVERVIEW\n")
	fmt.Printf("   Run ID:          %s\n", run.ID)
	fmt.Printf("   Leads:           %d\n", s.TotalLeads)
	fmt.Printf("   Enrolled:        %d (%.2f%%)\n", s.EnrolledLeads, s.ConversionRate)
	fmt.Printf("   Revenue:         %.2f\n", s.TotalRevenue)
	fmt.Printf("   Avg Follow-ups:  %.2f\n", s.AvgFollowUps)

	fmt.Printf("\n🎯 PRIORITY LEVELS\n")
	for _, level := range []domain.PriorityLevel{
		domain.LevelUrgent, domain.LevelPriority, domain.LevelRoutine, domain.LevelLow,
	} {
		fmt.Printf("   %-10s %d\n", level, s.LevelCounts[level])
	}

	if top > 0 && len(run.Leads) > 0 {
		ranked := make([]domain.ScoredLead, len(run.Leads))
		copy(ranked, run.Leads)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Score > ranked[j].Score
		})
		if top > len(ranked) {
			top = len(ranked)
		}

		fmt.Printf("\n🏆 TOP %d LEADS\n", top)
		for _, lead := range ranked[:top] {
			fmt.Printf("   %3d  %-10s  %-12s  %s\n", lead.Score, lead.Level, lead.ID, lead.Name)
		}
	}

	fmt.Printf("\n🚨 ALERTS (%d total)\n", run.Alerts.Total())
	printAlertTier(" RED   ", run.Alerts.Red)
	printAlertTier(" ORANGE", run.Alerts.Orange)
	printAlertTier(" YELLOW", run.Alerts.Yellow)

	fmt.Printf("\n📈 CHANNELS\n")
	for _, ch := range s.Channels {
		fmt.Printf("   %-14s  leads=%-4d  avg=%.2f  high-quality=%.1f%%\n",
			ch.Channel, ch.Leads, ch.AvgScore, ch.HighQualityShare)
	}

	if len(s.Salespeople) > 0 {
		fmt.Printf("\n👤 SALESPEOPLE\n")
		for _, sp := range s.Salespeople {
			fmt.Printf("   %-14s  leads=%-4d  avg=%.2f\n", sp.Salesperson, sp.Leads, sp.AvgScore)
		}
	}

	fmt.Printf("\n⏱️  TIMINGS\n")
	fmt.Printf("   Preprocess:  %d ms\n", run.Metadata.PreprocessMs)
	fmt.Printf("   Scoring:     %d ms\n", run.Metadata.ScoringMs)
	fmt.Printf("   Alerts:      %d ms\n", run.Metadata.AlertsMs)
	fmt.Printf("   Total:       %d ms\n", run.Metadata.TotalMs)
	fmt.Println()
}

func printAlertTier(label string, tier []domain.Alert) {
	if len(tier) == 0 {
		return
	}
	fmt.Printf("  %s (%d)\n", label, len(tier))
	for _, a := range tier {
		who := a.Fields[domain.FieldLeadName]
		if who == "" {
			who = a.Fields[domain.FieldRatio]
		}
		fmt.Printf("     [%s] %s: %s\n", a.Type, who, a.Suggestion)
	}
}

func exportReports(run *domain.AnalysisRun, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := exportLeads(run.Leads, filepath.Join(dir, "scored_leads.csv")); err != nil {
		return err
	}

	ranked := make([]domain.ScoredLead, len(run.Leads))
	copy(ranked, run.Leads)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if err := exportLeads(ranked, filepath.Join(dir, "sorted_leads.csv")); err != nil {
		return err
	}

	if err := exportAlerts(run, filepath.Join(dir, "alerts.csv")); err != nil {
		return err
	}
	return exportStats(run, filepath.Join(dir, "stats.csv"))
}

// Report columns appended to the annotated lead table.
const (
	colScore = "优先级分数"
	colLevel = "优先级等级"
)

func exportLeads(leads []domain.ScoredLead, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		domain.ColLeadID, domain.ColName, domain.ColChannel, domain.ColGrade,
		domain.ColSalesperson, domain.ColFollowUps, colScore, colLevel,
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, lead := range leads {
		record := []string{
			lead.ID, lead.Name, lead.Channel, lead.Grade,
			lead.Salesperson, strconv.Itoa(lead.FollowUps),
			strconv.Itoa(lead.Score), string(lead.Level),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func exportStats(run *domain.AnalysisRun, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	s := run.Stats
	rows := [][]string{
		{"section", "name", "leads", "avg_score", "extra"},
		{"overview", "total_leads", strconv.Itoa(s.TotalLeads), "", ""},
		{"overview", "enrolled", strconv.Itoa(s.EnrolledLeads), "", fmt.Sprintf("%.2f%%", s.ConversionRate)},
		{"overview", "revenue", "", "", fmt.Sprintf("%.2f", s.TotalRevenue)},
		{"overview", "avg_follow_ups", "", "", fmt.Sprintf("%.2f", s.AvgFollowUps)},
	}
	for _, level := range []domain.PriorityLevel{
		domain.LevelUrgent, domain.LevelPriority, domain.LevelRoutine, domain.LevelLow,
	} {
		rows = append(rows, []string{"level", string(level), strconv.Itoa(s.LevelCounts[level]), "", ""})
	}
	for _, ch := range s.Channels {
		rows = append(rows, []string{
			"channel", ch.Channel, strconv.Itoa(ch.Leads),
			fmt.Sprintf("%.2f", ch.AvgScore), fmt.Sprintf("%.1f%%", ch.HighQualityShare),
		})
	}
	for _, sp := range s.Salespeople {
		rows = append(rows, []string{
			"salesperson", sp.Salesperson, strconv.Itoa(sp.Leads),
			fmt.Sprintf("%.2f", sp.AvgScore), "",
		})
	}

	return w.WriteAll(rows)
}

func exportAlerts(run *domain.AnalysisRun, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"severity", "type", "lead_id", "lead_name", "suggestion"}); err != nil {
		return err
	}

	write := func(tier []domain.Alert) error {
		for _, a := range tier {
			record := []string{
				string(a.Severity), a.Type,
				a.Fields[domain.FieldLeadID], a.Fields[domain.FieldLeadName],
				a.Suggestion,
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		return nil
	}

	if err := write(run.Alerts.Red); err != nil {
		return err
	}
	if err := write(run.Alerts.Orange); err != nil {
		return err
	}
	return write(run.Alerts.Yellow)
}
