// Package stats computes the grouped summary tables for an analysis run.
package stats

import (
	"math"
	"sort"

	"github.com/opensource-crm/leadhawk/internal/domain"
)

// Config controls the summary computation. HighQualityGrades is the grade
// set counted toward a channel's high-quality share.
type Config struct {
	HighQualityGrades []string
}

// DefaultConfig returns the production summary settings.
func DefaultConfig() Config {
	return Config{
		HighQualityGrades: []string{"A", "B"},
	}
}

// Calculator aggregates a scored lead table into RunStats.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a stats calculator.
func NewCalculator(cfg Config) *Calculator {
	if len(cfg.HighQualityGrades) == 0 {
		cfg.HighQualityGrades = DefaultConfig().HighQualityGrades
	}
	return &Calculator{cfg: cfg}
}

// Compute builds the full summary for a table. Group rows are sorted by
// lead count descending, name ascending on ties, so output is stable.
func (c *Calculator) Compute(leads []domain.ScoredLead) domain.RunStats {
	stats := domain.RunStats{
		TotalLeads:  len(leads),
		LevelCounts: make(map[domain.PriorityLevel]int),
	}
	if len(leads) == 0 {
		return stats
	}

	var followUps int
	for _, lead := range leads {
		stats.LevelCounts[lead.Level]++
		followUps += lead.FollowUps
		if lead.Enrolled {
			stats.EnrolledLeads++
			if lead.Amount != nil {
				stats.TotalRevenue += *lead.Amount
			}
		}
	}

	stats.ConversionRate = round2(float64(stats.EnrolledLeads) / float64(len(leads)) * 100)
	stats.AvgFollowUps = round2(float64(followUps) / float64(len(leads)))
	stats.Channels = c.channelStats(leads)
	stats.Salespeople = c.salespersonStats(leads)

	return stats
}

type channelAccum struct {
	leads       int
	scoreSum    int
	highQuality int
}

func (c *Calculator) channelStats(leads []domain.ScoredLead) []domain.ChannelStats {
	accum := make(map[string]*channelAccum)
	for _, lead := range leads {
		a := accum[lead.Channel]
		if a == nil {
			a = &channelAccum{}
			accum[lead.Channel] = a
		}
		a.leads++
		a.scoreSum += lead.Score
		if c.isHighQuality(lead.Grade) {
			a.highQuality++
		}
	}

	rows := make([]domain.ChannelStats, 0, len(accum))
	for channel, a := range accum {
		rows = append(rows, domain.ChannelStats{
			Channel:          channel,
			Leads:            a.leads,
			AvgScore:         round2(float64(a.scoreSum) / float64(a.leads)),
			HighQualityShare: round2(float64(a.highQuality) / float64(a.leads) * 100),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Leads != rows[j].Leads {
			return rows[i].Leads > rows[j].Leads
		}
		return rows[i].Channel < rows[j].Channel
	})
	return rows
}

type salesAccum struct {
	leads    int
	scoreSum int
}

func (c *Calculator) salespersonStats(leads []domain.ScoredLead) []domain.SalespersonStats {
	accum := make(map[string]*salesAccum)
	for _, lead := range leads {
		if lead.Salesperson == "" {
			continue
		}
		a := accum[lead.Salesperson]
		if a == nil {
			a = &salesAccum{}
			accum[lead.Salesperson] = a
		}
		a.leads++
		a.scoreSum += lead.Score
	}

	rows := make([]domain.SalespersonStats, 0, len(accum))
	for name, a := range accum {
		rows = append(rows, domain.SalespersonStats{
			Salesperson: name,
			Leads:       a.leads,
			AvgScore:    round2(float64(a.scoreSum) / float64(a.leads)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Leads != rows[j].Leads {
			return rows[i].Leads > rows[j].Leads
		}
		return rows[i].Salesperson < rows[j].Salesperson
	})
	return rows
}

func (c *Calculator) isHighQuality(grade string) bool {
	for _, g := range c.cfg.HighQualityGrades {
		if grade == g {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
