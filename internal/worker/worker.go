// Package worker provides async batch processing from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-crm/leadhawk/internal/analyzer"
	"github.com/opensource-crm/leadhawk/internal/domain"
)

// Worker consumes ingested lead batches from the EventBus, runs the
// analysis pipeline, persists the run, and publishes the results.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	pipeline *analyzer.Analyzer

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker. cache may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, pipeline *analyzer.Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		cache:    cache,
		pipeline: pipeline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the batch topic and begins processing.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicBatchIngested,
	)
	return nil
}

// BatchMessage is the payload for an ingested lead batch.
type BatchMessage struct {
	BatchID string           `json:"batchId"`
	TraceID string           `json:"traceId,omitempty"`
	Leads   []domain.RawLead `json:"leads"`
}

// RunCompletedMessage is published after a run is persisted.
type RunCompletedMessage struct {
	RunID        string `json:"runId"`
	BatchID      string `json:"batchId"`
	LeadCount    int    `json:"leadCount"`
	RedAlerts    int    `json:"redAlerts"`
	OrangeAlerts int    `json:"orangeAlerts"`
	YellowAlerts int    `json:"yellowAlerts"`
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var batch BatchMessage
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		slog.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if batch.BatchID == "" {
		batch.BatchID = msg.ID
	}

	slog.Debug("processing batch",
		"batch_id", batch.BatchID,
		"lead_count", len(batch.Leads),
	)

	// 1. Run the pipeline
	run := w.pipeline.Analyze(ctx, batch.Leads)

	// 2. Persist the run
	if w.repo != nil {
		if err := w.repo.SaveRun(ctx, run); err != nil {
			slog.Error("failed to save run",
				"run_id", run.ID,
				"batch_id", batch.BatchID,
				"error", err,
			)
			return err
		}
	}

	// 3. Cache the summary for listings
	if w.cache != nil {
		if err := w.cache.SetRunSummary(ctx, run.ID, run.Summary(), 10*time.Minute); err != nil {
			slog.Warn("failed to cache run summary",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	// 4. Publish completion
	completed, _ := json.Marshal(RunCompletedMessage{
		RunID:        run.ID,
		BatchID:      batch.BatchID,
		LeadCount:    len(run.Leads),
		RedAlerts:    len(run.Alerts.Red),
		OrangeAlerts: len(run.Alerts.Orange),
		YellowAlerts: len(run.Alerts.Yellow),
	})
	if err := w.bus.Publish(ctx, domain.TopicRunCompleted, completed); err != nil {
		slog.Error("failed to publish run completion",
			"run_id", run.ID,
			"error", err,
		)
	}

	// 5. Fan out alerts per severity tier
	w.publishAlerts(ctx, run.ID, domain.SeverityRed, run.Alerts.Red)
	w.publishAlerts(ctx, run.ID, domain.SeverityOrange, run.Alerts.Orange)
	w.publishAlerts(ctx, run.ID, domain.SeverityYellow, run.Alerts.Yellow)

	slog.Info("batch processed",
		"run_id", run.ID,
		"batch_id", batch.BatchID,
		"lead_count", len(run.Leads),
		"alerts", run.Alerts.Total(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// AlertMessage wraps one alert with its run for downstream consumers.
type AlertMessage struct {
	RunID string       `json:"runId"`
	Alert domain.Alert `json:"alert"`
}

func (w *Worker) publishAlerts(ctx context.Context, runID string, sev domain.Severity, alerts []domain.Alert) {
	topic := domain.AlertTopic(sev)
	for _, a := range alerts {
		payload, _ := json.Marshal(AlertMessage{RunID: runID, Alert: a})
		if err := w.bus.Publish(ctx, topic, payload); err != nil {
			slog.Error("failed to publish alert",
				"run_id", runID,
				"topic", topic,
				"error", err,
			)
			return
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
