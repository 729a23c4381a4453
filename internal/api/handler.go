package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-crm/leadhawk/internal/alerts"
	"github.com/opensource-crm/leadhawk/internal/analyzer"
	"github.com/opensource-crm/leadhawk/internal/domain"
	"github.com/opensource-crm/leadhawk/internal/ingest"
	"github.com/opensource-crm/leadhawk/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	pipeline *analyzer.Analyzer
	custom   *alerts.CustomEngine
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, pipeline *analyzer.Analyzer, custom *alerts.CustomEngine, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		pipeline: pipeline,
		custom:   custom,
		version:  version,
	}
}

// AnalyzeRequest is the JSON request body for POST /runs.
type AnalyzeRequest struct {
	Leads []domain.RawLead `json:"leads"`
}

// AnalyzeResponse is the response for POST /runs.
type AnalyzeResponse struct {
	RunID     string                       `json:"runId"`
	Timestamp time.Time                    `json:"timestamp"`
	LeadCount int                          `json:"leadCount"`
	Levels    map[domain.PriorityLevel]int `json:"levels"`
	Alerts    struct {
		Red    int `json:"red"`
		Orange int `json:"orange"`
		Yellow int `json:"yellow"`
	} `json:"alerts"`
	Metadata domain.RunMetadata `json:"metadata"`
}

// Analyze handles POST /runs. The body is either a JSON lead batch or a
// raw CSV export (Content-Type: text/csv). The batch is analyzed
// synchronously and the persisted run ID is returned.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var raw []domain.RawLead

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "text/csv"):
		var err error
		raw, err = ingest.Load(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unreadable CSV body: " + err.Error(),
			})
			return
		}
	default:
		var req AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
		raw = req.Leads
	}

	if len(raw) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "lead batch is empty",
		})
		return
	}

	run := h.pipeline.Analyze(ctx, raw)
	if run.Metadata.TraceID == "" {
		run.Metadata.TraceID = GetTraceID(ctx)
	}

	if h.repo != nil {
		if err := h.repo.SaveRun(ctx, run); err != nil {
			slog.Error("failed to save run", "run_id", run.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to persist run",
			})
			return
		}
	}

	if h.cache != nil {
		if err := h.cache.SetRunSummary(ctx, run.ID, run.Summary(), 10*time.Minute); err != nil {
			slog.Warn("failed to cache run summary", "run_id", run.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(run.Summary())
		if err := h.bus.Publish(ctx, domain.TopicRunCompleted, payload); err != nil {
			slog.Warn("failed to publish run completion", "run_id", run.ID, "error", err)
		}
	}

	resp := AnalyzeResponse{
		RunID:     run.ID,
		Timestamp: run.Timestamp,
		LeadCount: len(run.Leads),
		Levels:    run.Stats.LevelCounts,
		Metadata:  run.Metadata,
	}
	resp.Alerts.Red = len(run.Alerts.Red)
	resp.Alerts.Orange = len(run.Alerts.Orange)
	resp.Alerts.Yellow = len(run.Alerts.Yellow)

	writeJSON(w, http.StatusCreated, resp)
}

// ListRuns handles GET /runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	runs, err := h.repo.ListRuns(ctx, limit)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list runs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetRun(ctx, runID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get run", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load run",
		})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// GetLeads handles GET /runs/{id}/leads. The optional level query
// parameter restricts the result to one priority level.
func (h *Handler) GetLeads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	level := domain.PriorityLevel(r.URL.Query().Get("level"))
	switch level {
	case "", domain.LevelUrgent, domain.LevelPriority, domain.LevelRoutine, domain.LevelLow:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "level must be one of urgent, priority, routine, low",
		})
		return
	}

	// Ensure the run exists before returning an empty list.
	if _, err := h.cachedSummary(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "run not found",
			})
			return
		}
		slog.Error("failed to resolve run", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load run",
		})
		return
	}

	leads, err := h.repo.GetLeads(ctx, runID, level)
	if err != nil {
		slog.Error("failed to get leads", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load leads",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runId": runID,
		"leads": leads,
		"count": len(leads),
	})
}

// GetAlerts handles GET /runs/{id}/alerts. The optional severity query
// parameter restricts the result to one tier.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetRun(ctx, runID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get run", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load run",
		})
		return
	}

	sev := domain.Severity(r.URL.Query().Get("severity"))
	switch sev {
	case "":
		writeJSON(w, http.StatusOK, run.Alerts)
	case domain.SeverityRed, domain.SeverityOrange, domain.SeverityYellow:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"severity": sev,
			"alerts":   run.Alerts.BySeverity(sev),
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "severity must be one of red, orange, yellow",
		})
	}
}

// GetStats handles GET /runs/{id}/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetRun(ctx, runID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get run", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load run",
		})
		return
	}

	writeJSON(w, http.StatusOK, run.Stats)
}

// cachedSummary resolves a run summary, preferring the cache.
func (h *Handler) cachedSummary(ctx context.Context, runID string) (*domain.RunSummary, error) {
	if h.cache != nil {
		if summary, err := h.cache.GetRunSummary(ctx, runID); err == nil && summary != nil {
			return summary, nil
		}
	}

	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	summary := run.Summary()

	if h.cache != nil {
		_ = h.cache.SetRunSummary(ctx, runID, summary, 10*time.Minute)
	}
	return summary, nil
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all custom alert rules loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.custom == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "custom rule engine not available",
		})
		return
	}

	loadedRules := h.custom.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if h.custom == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "custom rule engine not available",
		})
		return
	}

	for _, rule := range h.custom.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom alert rule.
type CreateRuleRequest struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Expression  string             `json:"expression"`
	Bands       []domain.AlertBand `json:"bands"`
	Enabled     bool               `json:"enabled"`
}

// CreateRule creates a new custom alert rule and saves it to the database.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	for _, band := range req.Bands {
		switch band.Severity {
		case domain.SeverityRed, domain.SeverityOrange, domain.SeverityYellow:
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "band severity must be one of red, orange, yellow",
			})
			return
		}
	}

	ruleConfig := &domain.AlertRuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression without touching the live engine; the
	// rule only starts firing after POST /rules/reload.
	if h.custom != nil {
		if err := h.custom.ValidateRule(ruleConfig); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.SaveAlertRule(ctx, ruleConfig); err != nil {
			slog.Error("failed to save alert rule", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("alert rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule soft-deletes a rule and reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteAlertRule(ctx, ruleID); err != nil {
		slog.Error("failed to delete alert rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	// Auto-reload after delete so the removed rule stops firing.
	if h.custom != nil {
		dbRules, err := h.repo.ListAlertRules(ctx)
		if err != nil {
			slog.Error("failed to reload rules after delete", "error", err)
		} else if err := h.custom.ReloadRules(dbRules); err != nil {
			slog.Error("failed to reload rules into engine", "error", err)
		}
	}

	slog.Info("alert rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if h.custom == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "custom rule engine not available",
		})
		return
	}

	dbRules, err := h.repo.ListAlertRules(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.custom.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("alert rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
