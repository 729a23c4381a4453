package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML override shape. Only the sections present in the
// file replace their defaults; everything else keeps the built-in tables.
type fileConfig struct {
	Channels       map[string]int `yaml:"channels"`
	ChannelDefault *int           `yaml:"channelDefault"`
	Grades         map[string]int `yaml:"grades"`
	GradeDefault   *int           `yaml:"gradeDefault"`
	FollowUps      map[int]int    `yaml:"followUps"`
	FollowUpClamp  *int           `yaml:"followUpClamp"`
	SameDayPoints  *int           `yaml:"sameDayPoints"`
	Decay          []DecayBand    `yaml:"decay"`
	Levels         []LevelBand    `yaml:"levels"`
	MaxScore       *int           `yaml:"maxScore"`
}

// LoadConfigFile reads a YAML weight file and merges it over the defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read scoring config: %w", err)
	}
	return mergeConfig(DefaultConfig(), data)
}

func mergeConfig(base Config, data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("failed to parse scoring config: %w", err)
	}

	if fc.Channels != nil {
		base.ChannelPoints = fc.Channels
	}
	if fc.ChannelDefault != nil {
		base.ChannelDefault = *fc.ChannelDefault
	}
	if fc.Grades != nil {
		base.GradePoints = fc.Grades
	}
	if fc.GradeDefault != nil {
		base.GradeDefault = *fc.GradeDefault
	}
	if fc.FollowUps != nil {
		base.FollowUpPoints = fc.FollowUps
	}
	if fc.FollowUpClamp != nil {
		base.FollowUpClamp = *fc.FollowUpClamp
	}
	if fc.SameDayPoints != nil {
		base.SameDayPoints = *fc.SameDayPoints
	}
	if fc.Decay != nil {
		base.DecayBands = fc.Decay
	}
	if fc.Levels != nil {
		base.LevelBands = fc.Levels
	}
	if fc.MaxScore != nil {
		base.MaxScore = *fc.MaxScore
	}

	return base, nil
}
