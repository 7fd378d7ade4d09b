// Package workflows contains the orchestration core: the per-run executor,
// the per-candidate processor, and the top-level pipeline that streams
// discovered candidates through a bounded task queue.
package workflows

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/agents"
	"github.com/scoutline/orchestrator/internal/browseruse"
	"github.com/scoutline/orchestrator/internal/db"
	"github.com/scoutline/orchestrator/internal/metrics"
	"github.com/scoutline/orchestrator/internal/util"
)

// maxStoredErrorLen caps persisted error messages. Vendor errors can carry
// whole response bodies; the full text still reaches the logs.
const maxStoredErrorLen = 2048

// storedError normalizes and caps an error for persistence on run,
// candidate, and workflow records.
func storedError(err error) string {
	return util.TruncateString(util.ErrorMessage(err), maxStoredErrorLen, false)
}

// Store is the persistence surface the orchestration core writes through.
// Implemented by db.Client.
type Store interface {
	CreateAgentRun(ctx context.Context, params db.CreateAgentRunParams) (uuid.UUID, error)
	UpdateAgentRun(ctx context.Context, runID uuid.UUID, update db.AgentRunUpdate) error
	UpsertCandidate(ctx context.Context, params db.UpsertCandidateParams) (db.CandidateRef, error)
	SetCandidateStatus(ctx context.Context, candidateID uuid.UUID, status db.CandidateStatus, errorMessage string) error
	FinishWorkflow(ctx context.Context, workflowID uuid.UUID, status db.WorkflowStatus, errorMessage string) error
}

// SessionCreator provisions browser automation sessions. Implemented by
// browseruse.Client.
type SessionCreator interface {
	CreateSession(ctx context.Context) (*browseruse.Session, error)
}

// RunCallback performs one scrape inside a live browser session and returns
// the result, optionally overriding the live URL or resolving a target URL.
type RunCallback func(ctx context.Context, session *browseruse.Session) (agents.Result, error)

// RunFailure is the structured outcome of a failed agent run. The executor
// returns it instead of propagating errors so the caller can aggregate
// failures across a candidate's runs.
type RunFailure struct {
	AgentType db.AgentType
	Err       error
}

// Executor wraps one sub-agent invocation with run-record lifecycle
// management: create the record, attach a fresh session, execute the scrape,
// and settle the record to a terminal status. Any failure is isolated to the
// single run.
type Executor struct {
	store    Store
	sessions SessionCreator
	logger   *zap.Logger
}

// NewExecutor creates a run executor.
func NewExecutor(store Store, sessions SessionCreator, logger *zap.Logger) *Executor {
	return &Executor{store: store, sessions: sessions, logger: logger}
}

// ExecuteRun runs one agent for one candidate. A nil return means the run
// completed; otherwise the failure has already been persisted on the run
// record (when the record exists) and is returned for aggregation.
func (e *Executor) ExecuteRun(ctx context.Context, workflowID, candidateID uuid.UUID, agentType db.AgentType, targetURL string, fn RunCallback) *RunFailure {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.type", string(agentType)),
		attribute.String("candidate.id", candidateID.String()),
	))
	defer span.End()

	logger := e.logger.With(
		zap.String("workflow_id", workflowID.String()),
		zap.String("candidate_id", candidateID.String()),
		zap.String("agent_type", string(agentType)),
	)

	runID, err := e.store.CreateAgentRun(ctx, db.CreateAgentRunParams{
		WorkflowID:  workflowID,
		CandidateID: &candidateID,
		AgentType:   agentType,
		TargetURL:   targetURL,
	})
	if err != nil {
		// The record never existed, so there is nothing to patch.
		logger.Error("Agent run record creation failed", zap.Error(err))
		metrics.AgentRuns.WithLabelValues(string(agentType), "failed").Inc()
		return &RunFailure{AgentType: agentType, Err: err}
	}
	logger = logger.With(zap.String("run_id", runID.String()))

	fail := func(cause error) *RunFailure {
		message := storedError(cause)
		status := db.RunFailed
		if patchErr := e.store.UpdateAgentRun(ctx, runID, db.AgentRunUpdate{
			Status: &status,
			Error:  &message,
		}); patchErr != nil {
			logger.Error("Failed to mark agent run failed", zap.Error(patchErr))
		}
		metrics.AgentRuns.WithLabelValues(string(agentType), "failed").Inc()
		metrics.AgentRunDuration.WithLabelValues(string(agentType)).Observe(time.Since(start).Seconds())
		logger.Warn("Agent run failed", zap.String("error", message))
		return &RunFailure{AgentType: agentType, Err: cause}
	}

	session, err := e.sessions.CreateSession(ctx)
	if err != nil {
		return fail(err)
	}

	// Attach the session before the scrape starts so the live view is
	// observable while the agent works.
	attach := db.AgentRunUpdate{SessionID: &session.ID}
	if session.LiveURL != "" {
		attach.LiveURL = &session.LiveURL
	}
	if err := e.store.UpdateAgentRun(ctx, runID, attach); err != nil {
		logger.Warn("Failed to attach session to agent run", zap.Error(err))
	}

	result, err := fn(ctx, session)
	if err != nil {
		return fail(err)
	}

	liveURL := result.LiveURL
	if liveURL == "" {
		liveURL = session.LiveURL
	}
	resolvedTarget := result.TargetURL
	if resolvedTarget == "" {
		resolvedTarget = targetURL
	}

	status := db.RunCompleted
	update := db.AgentRunUpdate{
		Status: &status,
		Result: &result.Markdown,
	}
	if liveURL != "" {
		update.LiveURL = &liveURL
	}
	if resolvedTarget != "" {
		update.TargetURL = &resolvedTarget
	}
	if err := e.store.UpdateAgentRun(ctx, runID, update); err != nil {
		return fail(err)
	}

	metrics.AgentRuns.WithLabelValues(string(agentType), "completed").Inc()
	metrics.AgentRunDuration.WithLabelValues(string(agentType)).Observe(time.Since(start).Seconds())
	logger.Info("Agent run completed", zap.Duration("duration", time.Since(start)))
	return nil
}
