package domain

import (
	"context"
)

// Repository defines the interface for data persistence. Runs and their
// scored leads are written once per analysis and read-only afterwards.
type Repository interface {
	// Analysis runs
	SaveRun(ctx context.Context, run *AnalysisRun) error
	GetRun(ctx context.Context, runID string) (*AnalysisRun, error)
	ListRuns(ctx context.Context, limit int) ([]*RunSummary, error)

	// Scored leads for a run, highest score first.
	// level filters to one priority level when non-empty.
	GetLeads(ctx context.Context, runID string, level PriorityLevel) ([]ScoredLead, error)

	// Custom alert rule configurations
	SaveAlertRule(ctx context.Context, rule *AlertRuleConfig) error
	GetAlertRule(ctx context.Context, ruleID string) (*AlertRuleConfig, error)
	ListAlertRules(ctx context.Context) ([]*AlertRuleConfig, error)
	DeleteAlertRule(ctx context.Context, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns int
	MaxIdleConns int
}
