// Package scoring computes lead priority scores from weighted features.
package scoring

import (
	"time"

	"github.com/opensource-crm/leadhawk/internal/domain"
	"github.com/opensource-crm/leadhawk/internal/ingest"
)

// Config holds the immutable weight tables injected into the engine.
// Alternate tables can be supplied for testing or loaded from YAML.
type Config struct {
	// ChannelPoints maps acquisition channels to points.
	ChannelPoints  map[string]int `yaml:"channels"`
	ChannelDefault int            `yaml:"channelDefault"`

	// GradePoints maps customer grades to points.
	GradePoints  map[string]int `yaml:"grades"`
	GradeDefault int            `yaml:"gradeDefault"`

	// FollowUpPoints maps follow-up counts 0..FollowUpClamp to points.
	// Counts above the clamp are clamped before lookup; a count missing
	// from the table contributes 0.
	FollowUpPoints map[int]int `yaml:"followUps"`
	FollowUpClamp  int         `yaml:"followUpClamp"`

	// Time decay: a same-day consultation earns SameDayPoints, then the
	// bands apply in order. Older than every band (or an unparseable
	// consultation date) contributes 0.
	SameDayPoints int         `yaml:"sameDayPoints"`
	DecayBands    []DecayBand `yaml:"decay"`

	// LevelBands map score thresholds to levels, evaluated high to low.
	LevelBands []LevelBand `yaml:"levels"`

	// MaxScore caps the additive total.
	MaxScore int `yaml:"maxScore"`
}

// DecayBand awards Points when the consultation is at most WithinDays old.
type DecayBand struct {
	WithinDays int `yaml:"withinDays"`
	Points     int `yaml:"points"`
}

// LevelBand assigns Level to any score at or above Min.
type LevelBand struct {
	Min   int                  `yaml:"min"`
	Level domain.PriorityLevel `yaml:"level"`
}

// DefaultConfig returns the hand-specified production weight tables.
func DefaultConfig() Config {
	return Config{
		ChannelPoints: map[string]int{
			"抖音短视频平台": 35,
			"直播平台":    30,
			"创客网络销售":  25,
		},
		ChannelDefault: 20,
		GradePoints: map[string]int{
			"A": 30, "B": 25, "C": 20,
			"D": 15, "E": 10, domain.GradeOther: 5,
		},
		GradeDefault: 5,
		FollowUpPoints: map[int]int{
			0: 0,
			1: 15, 2: 15,
			3: 20, 4: 20, 5: 20,
			6: 15, 7: 15,
			8: 10, 9: 10,
			10: 5,
		},
		FollowUpClamp: 10,
		SameDayPoints: 10,
		DecayBands: []DecayBand{
			{WithinDays: 3, Points: 8},
			{WithinDays: 7, Points: 5},
		},
		LevelBands: []LevelBand{
			{Min: 90, Level: domain.LevelUrgent},
			{Min: 70, Level: domain.LevelPriority},
			{Min: 50, Level: domain.LevelRoutine},
		},
		MaxScore: 100,
	}
}

// Engine maps leads to priority scores and levels. It holds no mutable
// state; Score is a pure function of the record, the clock, and the
// injected tables.
type Engine struct {
	cfg Config
}

// NewEngine creates a scoring engine with the given weight tables.
func NewEngine(cfg Config) *Engine {
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = 100
	}
	return &Engine{cfg: cfg}
}

// Score computes the priority score in [0, MaxScore] and its level.
// Every missing or malformed field degrades to its default contribution;
// no record can fail to score.
func (e *Engine) Score(lead domain.Lead, now time.Time) (int, domain.PriorityLevel) {
	score := e.channelPoints(lead.Channel) +
		e.gradePoints(lead.Grade) +
		e.followUpPoints(lead.FollowUps) +
		e.decayPoints(lead.FirstConsult, now)

	if score > e.cfg.MaxScore {
		score = e.cfg.MaxScore
	}
	return score, e.Level(score)
}

// ScoreAll annotates a table with scores and levels, preserving row order.
func (e *Engine) ScoreAll(leads []domain.Lead, now time.Time) []domain.ScoredLead {
	scored := make([]domain.ScoredLead, 0, len(leads))
	for _, lead := range leads {
		s, lvl := e.Score(lead, now)
		scored = append(scored, domain.ScoredLead{Lead: lead, Score: s, Level: lvl})
	}
	return scored
}

// Level maps a score to its priority level, bands evaluated high to low.
func (e *Engine) Level(score int) domain.PriorityLevel {
	for _, band := range e.cfg.LevelBands {
		if score >= band.Min {
			return band.Level
		}
	}
	return domain.LevelLow
}

func (e *Engine) channelPoints(channel string) int {
	if pts, ok := e.cfg.ChannelPoints[channel]; ok {
		return pts
	}
	return e.cfg.ChannelDefault
}

func (e *Engine) gradePoints(grade string) int {
	if pts, ok := e.cfg.GradePoints[grade]; ok {
		return pts
	}
	return e.cfg.GradeDefault
}

func (e *Engine) followUpPoints(count int) int {
	if count > e.cfg.FollowUpClamp {
		count = e.cfg.FollowUpClamp
	}
	if count < 0 {
		count = 0
	}
	return e.cfg.FollowUpPoints[count]
}

// decayPoints rewards recency of the first consultation. Absent and
// malformed dates contribute 0 without error.
func (e *Engine) decayPoints(consult domain.TimeField, now time.Time) int {
	if !consult.Valid() {
		return 0
	}
	days := ingest.DaysSince(consult.Time, now)
	if days == 0 {
		return e.cfg.SameDayPoints
	}
	for _, band := range e.cfg.DecayBands {
		if days <= band.WithinDays {
			return band.Points
		}
	}
	return 0
}
