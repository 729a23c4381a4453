package domain

import (
	"time"
)

// AnalysisRun is the complete result of one batch analysis: the annotated
// lead table, the alert set, and the grouped summaries.
type AnalysisRun struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	Leads  []ScoredLead `json:"leads"`
	Alerts AlertSet     `json:"alerts"`
	Stats  RunStats     `json:"stats"`

	Metadata RunMetadata `json:"metadata"`
}

// RunMetadata contains processing information for a run.
type RunMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	LeadCount     int    `json:"leadCount"`
	PreprocessMs  int64  `json:"preprocessMs"`
	ScoringMs     int64  `json:"scoringMs"`
	AlertsMs      int64  `json:"alertsMs"`
	TotalMs       int64  `json:"totalMs"`
	CustomRules   int    `json:"customRules"`
	EngineVersion string `json:"engineVersion"`
}

// RunStats holds the grouped summary tables for a run.
type RunStats struct {
	TotalLeads     int     `json:"totalLeads"`
	EnrolledLeads  int     `json:"enrolledLeads"`
	ConversionRate float64 `json:"conversionRate"` // percent
	TotalRevenue   float64 `json:"totalRevenue"`
	AvgFollowUps   float64 `json:"avgFollowUps"`

	LevelCounts map[PriorityLevel]int `json:"levelCounts"`
	Channels    []ChannelStats        `json:"channels"`
	Salespeople []SalespersonStats    `json:"salespeople"`
}

// ChannelStats is the per-channel summary row.
type ChannelStats struct {
	Channel          string  `json:"channel"`
	Leads            int     `json:"leads"`
	AvgScore         float64 `json:"avgScore"`
	HighQualityShare float64 `json:"highQualityShare"` // percent of leads in the high-quality grade set
}

// SalespersonStats is the per-salesperson summary row.
type SalespersonStats struct {
	Salesperson string  `json:"salesperson"`
	Leads       int     `json:"leads"`
	AvgScore    float64 `json:"avgScore"`
}

// RunSummary is the lightweight view of a run used for listings and caching.
type RunSummary struct {
	ID           string                `json:"id"`
	Timestamp    time.Time             `json:"timestamp"`
	LeadCount    int                   `json:"leadCount"`
	RedAlerts    int                   `json:"redAlerts"`
	OrangeAlerts int                   `json:"orangeAlerts"`
	YellowAlerts int                   `json:"yellowAlerts"`
	LevelCounts  map[PriorityLevel]int `json:"levelCounts"`
}

// Summary derives the lightweight view from a full run.
func (r *AnalysisRun) Summary() *RunSummary {
	return &RunSummary{
		ID:           r.ID,
		Timestamp:    r.Timestamp,
		LeadCount:    len(r.Leads),
		RedAlerts:    len(r.Alerts.Red),
		OrangeAlerts: len(r.Alerts.Orange),
		YellowAlerts: len(r.Alerts.Yellow),
		LevelCounts:  r.Stats.LevelCounts,
	}
}
