package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/candidates"
	"github.com/scoutline/orchestrator/internal/db"
	"github.com/scoutline/orchestrator/internal/discovery"
	"github.com/scoutline/orchestrator/internal/metrics"
	"github.com/scoutline/orchestrator/internal/queue"
)

// DiscoveryCrawler streams discovered candidates. Implemented by
// discovery.Crawler.
type DiscoveryCrawler interface {
	Run(ctx context.Context, targetURL string, totalPages int, cb discovery.Callbacks) (*discovery.Result, error)
}

// CandidateProcessor settles one candidate. Implemented by Processor.
type CandidateProcessor interface {
	ProcessCandidate(ctx context.Context, workflowID, candidateID uuid.UUID, snap candidates.Snapshot) error
}

// PipelineParams drive one workflow run.
type PipelineParams struct {
	WorkflowID           uuid.UUID
	TargetURL            string
	TotalPages           int
	CandidateConcurrency int
}

// Pipeline is the top-level driver for one workflow: it runs discovery,
// fans discovered candidates into the bounded queue, and finalizes the
// workflow only after discovery has settled and the queue has drained.
type Pipeline struct {
	store     Store
	crawler   DiscoveryCrawler
	processor CandidateProcessor
	logger    *zap.Logger
}

// NewPipeline creates a workflow pipeline driver.
func NewPipeline(store Store, crawler DiscoveryCrawler, processor CandidateProcessor, logger *zap.Logger) *Pipeline {
	return &Pipeline{store: store, crawler: crawler, processor: processor, logger: logger}
}

// Run executes the workflow to its terminal status. The returned error
// reflects the workflow outcome; the terminal status has been persisted
// either way.
func (p *Pipeline) Run(ctx context.Context, params PipelineParams) error {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "workflow.pipeline", trace.WithAttributes(
		attribute.String("workflow.id", params.WorkflowID.String()),
		attribute.String("workflow.target_url", params.TargetURL),
	))
	defer span.End()

	logger := p.logger.With(zap.String("workflow_id", params.WorkflowID.String()))
	logger.Info("Workflow pipeline starting",
		zap.String("target_url", params.TargetURL),
		zap.Int("total_pages", params.TotalPages),
		zap.Int("candidate_concurrency", params.CandidateConcurrency),
	)

	seen := make(map[string]bool)
	candidateQueue := queue.New(params.CandidateConcurrency, logger)

	failureMessage := p.runDiscovery(ctx, params, seen, candidateQueue, logger)

	// Discovery has settled, successfully or not. Every accepted candidate
	// still gets processed before the workflow is finalized.
	candidateQueue.Close()
	if err := candidateQueue.WaitForIdle(ctx); err != nil {
		logger.Error("Wait for candidate queue idle interrupted", zap.Error(err))
		if failureMessage == "" {
			failureMessage = storedError(err)
		}
	}

	status := db.WorkflowCompleted
	if failureMessage != "" {
		status = db.WorkflowFailed
	}
	if err := p.store.FinishWorkflow(ctx, params.WorkflowID, status, failureMessage); err != nil {
		logger.Error("Failed to finalize workflow", zap.Error(err))
		return fmt.Errorf("finalize workflow: %w", err)
	}

	metrics.WorkflowsCompleted.WithLabelValues(string(status)).Inc()
	metrics.WorkflowDuration.Observe(time.Since(start).Seconds())
	logger.Info("Workflow pipeline finished",
		zap.String("status", string(status)),
		zap.Duration("duration", time.Since(start)),
	)

	if failureMessage != "" {
		return fmt.Errorf("workflow failed: %s", failureMessage)
	}
	return nil
}

// runDiscovery drives the crawl and the discovery run record. It returns the
// workflow failure message, "" on success. Candidates are enqueued as
// payloads arrive; processing is never awaited inline so slow scraping
// cannot stall the crawl.
func (p *Pipeline) runDiscovery(ctx context.Context, params PipelineParams, seen map[string]bool, candidateQueue *queue.Queue, logger *zap.Logger) string {
	discoveryRunID, err := p.store.CreateAgentRun(ctx, db.CreateAgentRunParams{
		WorkflowID: params.WorkflowID,
		AgentType:  db.AgentJuicebox,
		TargetURL:  params.TargetURL,
	})
	if err != nil {
		logger.Error("Failed to create discovery run record", zap.Error(err))
		return storedError(err)
	}

	result, err := p.crawler.Run(ctx, params.TargetURL, params.TotalPages, discovery.Callbacks{
		OnUserPayload: func(payload map[string]interface{}) error {
			snap, err := candidates.BuildSnapshot(payload)
			if err != nil {
				return err
			}
			if seen[snap.SourceCandidateID] {
				return nil
			}
			seen[snap.SourceCandidateID] = true

			ref, err := p.store.UpsertCandidate(ctx, db.UpsertCandidateParams{
				WorkflowID:        params.WorkflowID,
				SourceCandidateID: snap.SourceCandidateID,
				Name:              snap.Name,
				GithubURL:         snap.GithubURL,
				LinkedinURL:       snap.LinkedinURL,
			})
			if err != nil {
				return err
			}

			candidateID := ref.ID
			return candidateQueue.Add(func() error {
				if err := p.processor.ProcessCandidate(ctx, params.WorkflowID, candidateID, snap); err != nil {
					// Defense in depth: the processor settles its own
					// failures, but if it errored before doing so the
					// candidate must still reach a terminal status.
					if setErr := p.store.SetCandidateStatus(ctx, candidateID, db.CandidateFailed, storedError(err)); setErr != nil {
						logger.Error("Failed to mark candidate failed",
							zap.String("candidate_id", candidateID.String()),
							zap.Error(setErr),
						)
					} else {
						metrics.CandidatesProcessed.WithLabelValues("failed").Inc()
					}
					return err
				}
				return nil
			})
		},
		OnBrowserUseURL: func(url string) {
			if err := p.store.UpdateAgentRun(ctx, discoveryRunID, db.AgentRunUpdate{LiveURL: &url}); err != nil {
				logger.Warn("Failed to patch discovery run live URL", zap.Error(err))
			}
		},
	})

	if err != nil {
		message := storedError(err)
		failed := db.RunFailed
		if patchErr := p.store.UpdateAgentRun(ctx, discoveryRunID, db.AgentRunUpdate{
			Status: &failed,
			Error:  &message,
		}); patchErr != nil {
			logger.Error("Failed to mark discovery run failed", zap.Error(patchErr))
		}
		metrics.AgentRuns.WithLabelValues(string(db.AgentJuicebox), "failed").Inc()
		logger.Error("Discovery crawl failed", zap.String("error", message))
		return message
	}

	completed := db.RunCompleted
	if patchErr := p.store.UpdateAgentRun(ctx, discoveryRunID, db.AgentRunUpdate{Status: &completed}); patchErr != nil {
		logger.Error("Failed to mark discovery run completed", zap.Error(patchErr))
	}
	metrics.AgentRuns.WithLabelValues(string(db.AgentJuicebox), "completed").Inc()
	logger.Info("Discovery crawl completed",
		zap.Int("payloads", result.PayloadCount),
		zap.Int("invalid_payloads", result.InvalidPayloadCount),
	)
	return ""
}
