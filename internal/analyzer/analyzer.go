// Package analyzer orchestrates the batch pipeline: preprocess the raw
// export, score every record, run the alert suite, and compute summaries.
package analyzer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-crm/leadhawk/internal/alerts"
	"github.com/opensource-crm/leadhawk/internal/domain"
	"github.com/opensource-crm/leadhawk/internal/ingest"
	"github.com/opensource-crm/leadhawk/internal/scoring"
	"github.com/opensource-crm/leadhawk/internal/stats"
)

// EngineVersion identifies the pipeline revision stored in run metadata.
const EngineVersion = "leadhawk-1.0"

// Analyzer runs the full analysis pipeline over a raw lead batch.
type Analyzer struct {
	scorer *scoring.Engine
	alerts *alerts.Engine
	stats  *stats.Calculator

	// Now is the clock used for day arithmetic, overridable in tests.
	Now func() time.Time
}

// New creates an analyzer from its three stages.
func New(scorer *scoring.Engine, alertEngine *alerts.Engine, calc *stats.Calculator) *Analyzer {
	return &Analyzer{
		scorer: scorer,
		alerts: alertEngine,
		stats:  calc,
		Now:    time.Now,
	}
}

// Analyze processes one batch end to end and returns the complete run.
// The pipeline never fails on record content: bad cells degrade to
// defaults during preprocessing and the downstream stages are total.
func (a *Analyzer) Analyze(ctx context.Context, raw []domain.RawLead) *domain.AnalysisRun {
	tracer := otel.Tracer("leadhawk.analyzer")
	ctx, span := tracer.Start(ctx, "analyzer.Analyze")
	defer span.End()

	start := a.Now()
	now := start

	preStart := a.Now()
	leads := ingest.Preprocess(raw)
	preMs := time.Since(preStart).Milliseconds()

	scoreStart := a.Now()
	scored := a.scorer.ScoreAll(leads, now)
	scoreMs := time.Since(scoreStart).Milliseconds()

	alertStart := a.Now()
	alertSet := a.alerts.GenerateAll(scored, now)
	alertMs := time.Since(alertStart).Milliseconds()

	run := &domain.AnalysisRun{
		ID:        uuid.New().String(),
		Timestamp: now.UTC(),
		Leads:     scored,
		Alerts:    alertSet,
		Stats:     a.stats.Compute(scored),
	}

	customRules := 0
	if custom := a.alerts.CustomRules(); custom != nil {
		customRules = custom.RulesCount()
	}

	run.Metadata = domain.RunMetadata{
		TraceID:       traceIDFromContext(ctx),
		LeadCount:     len(scored),
		PreprocessMs:  preMs,
		ScoringMs:     scoreMs,
		AlertsMs:      alertMs,
		TotalMs:       time.Since(start).Milliseconds(),
		CustomRules:   customRules,
		EngineVersion: EngineVersion,
	}

	return run
}

func traceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
