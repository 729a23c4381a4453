// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-crm/leadhawk/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores a completed analysis run and its scored leads atomically.
func (r *SQLRepository) SaveRun(ctx context.Context, run *domain.AnalysisRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run with ID is required", ErrInvalidInput)
	}

	alertsJSON, _ := json.Marshal(run.Alerts)
	statsJSON, _ := json.Marshal(run.Stats)
	metadataJSON, _ := json.Marshal(run.Metadata)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	runQuery := `
		INSERT INTO runs (id, timestamp, lead_count, alerts, stats, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, r.rebind(runQuery),
		run.ID, run.Timestamp, len(run.Leads),
		string(alertsJSON), string(statsJSON), string(metadataJSON),
	)
	if err != nil {
		return err
	}

	leadQuery := `
		INSERT INTO leads (run_id, position, lead_id, score, level, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, r.rebind(leadQuery))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, lead := range run.Leads {
		payload, _ := json.Marshal(lead)
		if _, err := stmt.ExecContext(ctx,
			run.ID, i, lead.ID, lead.Score, string(lead.Level), string(payload),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run by ID, including its scored leads in row order.
func (r *SQLRepository) GetRun(ctx context.Context, runID string) (*domain.AnalysisRun, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, timestamp, alerts, stats, metadata
		FROM runs
		WHERE id = ?
	`

	var run domain.AnalysisRun
	var alertsJSON, statsJSON, metadataJSON string

	err := r.db.QueryRowContext(ctx, r.rebind(query), runID).Scan(
		&run.ID, &run.Timestamp, &alertsJSON, &statsJSON, &metadataJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(alertsJSON), &run.Alerts)
	json.Unmarshal([]byte(statsJSON), &run.Stats)
	json.Unmarshal([]byte(metadataJSON), &run.Metadata)

	leads, err := r.runLeads(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Leads = leads

	return &run, nil
}

// ListRuns returns run summaries, newest first.
func (r *SQLRepository) ListRuns(ctx context.Context, limit int) ([]*domain.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, timestamp, lead_count, alerts, stats
		FROM runs
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*domain.RunSummary
	for rows.Next() {
		var s domain.RunSummary
		var alertsJSON, statsJSON string

		if err := rows.Scan(&s.ID, &s.Timestamp, &s.LeadCount, &alertsJSON, &statsJSON); err != nil {
			return nil, err
		}

		var alerts domain.AlertSet
		json.Unmarshal([]byte(alertsJSON), &alerts)
		s.RedAlerts = len(alerts.Red)
		s.OrangeAlerts = len(alerts.Orange)
		s.YellowAlerts = len(alerts.Yellow)

		var stats domain.RunStats
		json.Unmarshal([]byte(statsJSON), &stats)
		s.LevelCounts = stats.LevelCounts

		summaries = append(summaries, &s)
	}

	return summaries, rows.Err()
}

// GetLeads returns a run's scored leads, highest score first. A non-empty
// level restricts the result to that priority level.
func (r *SQLRepository) GetLeads(ctx context.Context, runID string, level domain.PriorityLevel) ([]domain.ScoredLead, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload
		FROM leads
		WHERE run_id = ?
	`
	args := []any{runID}
	if level != "" {
		query += ` AND level = ?`
		args = append(args, string(level))
	}
	query += ` ORDER BY score DESC, position ASC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []domain.ScoredLead
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var lead domain.ScoredLead
		if err := json.Unmarshal([]byte(payload), &lead); err != nil {
			return nil, fmt.Errorf("failed to parse lead payload: %w", err)
		}
		leads = append(leads, lead)
	}

	return leads, rows.Err()
}

// SaveAlertRule stores a custom alert rule configuration. Saving an
// existing id+version updates it in place.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, rule *domain.AlertRuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule with ID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO alert_rules (
			id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// GetAlertRule retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetAlertRule(ctx context.Context, ruleID string) (*domain.AlertRuleConfig, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: ruleID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, version, expression, bands, enabled
		FROM alert_rules
		WHERE id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.AlertRuleConfig
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &bands, &enabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &cfg.Bands)

	return &cfg, nil
}

// ListAlertRules retrieves all enabled rule configurations.
func (r *SQLRepository) ListAlertRules(ctx context.Context) ([]*domain.AlertRuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, bands, enabled
		FROM alert_rules
		WHERE enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.AlertRuleConfig
	for rows.Next() {
		var cfg domain.AlertRuleConfig
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// DeleteAlertRule soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DeleteAlertRule(ctx context.Context, ruleID string) error {
	if ruleID == "" {
		return fmt.Errorf("%w: ruleID is required", ErrInvalidInput)
	}

	query := `
		UPDATE alert_rules
		SET enabled = 0, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *SQLRepository) runLeads(ctx context.Context, runID string) ([]domain.ScoredLead, error) {
	query := `
		SELECT payload
		FROM leads
		WHERE run_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []domain.ScoredLead
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var lead domain.ScoredLead
		if err := json.Unmarshal([]byte(payload), &lead); err != nil {
			return nil, fmt.Errorf("failed to parse lead payload: %w", err)
		}
		leads = append(leads, lead)
	}

	return leads, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
