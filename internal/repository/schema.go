package repository

// Schema definitions for the Leadhawk database.
// Compatible with both SQLite and PostgreSQL.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    lead_count INTEGER NOT NULL,
    alerts TEXT NOT NULL,
    stats TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
`

// Leads are stored as one row per scored record. The JSON payload keeps
// the full record; score, level and position are lifted out for querying.
const schemaLeads = `
CREATE TABLE IF NOT EXISTS leads (
    run_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    lead_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    level TEXT NOT NULL,
    payload TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_leads_run ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_leads_level ON leads(run_id, level);
CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(run_id, score);
`

const schemaAlertRules = `
CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRuns,
		schemaLeads,
		schemaAlertRules,
	}
}
