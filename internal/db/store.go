package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a workflow, candidate, or run id does not
// resolve to a row.
var ErrNotFound = errors.New("db: not found")

// CreateWorkflowParams are the caller-supplied attributes of a new workflow.
type CreateWorkflowParams struct {
	Name                 string
	TargetURL            string
	TotalPages           int
	CandidateConcurrency int
}

// CreateWorkflow inserts a workflow in running status and returns its id.
func (c *Client) CreateWorkflow(ctx context.Context, params CreateWorkflowParams) (uuid.UUID, error) {
	id := uuid.New()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, target_url, total_pages, candidate_concurrency, status, started_at)
		VALUES ($1, $2, $3, $4, $5, 'running', $6)`,
		id, params.Name, params.TargetURL, params.TotalPages, params.CandidateConcurrency, time.Now().UTC(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create workflow: %w", err)
	}
	return id, nil
}

// FinishWorkflow moves a workflow to a terminal status. errorMessage is
// stored only for failed workflows.
func (c *Client) FinishWorkflow(ctx context.Context, workflowID uuid.UUID, status WorkflowStatus, errorMessage string) error {
	if status != WorkflowCompleted && status != WorkflowFailed {
		return fmt.Errorf("finish workflow: status %q is not terminal", status)
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE workflows
		SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1`,
		workflowID, status, nullIfEmpty(errorMessage), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("finish workflow: %w", err)
	}
	return requireRow(res, "workflow", workflowID)
}

// UpsertCandidateParams carry the discovered fields of one candidate.
// Empty optional fields leave existing values untouched on rediscovery.
type UpsertCandidateParams struct {
	WorkflowID        uuid.UUID
	SourceCandidateID string
	Name              string
	GithubURL         string
	LinkedinURL       string
}

// UpsertCandidate creates the candidate in pending status on first
// discovery, bumping the workflow's total; rediscovery of the same source id
// patches mutable fields without creating a duplicate or recounting.
func (c *Client) UpsertCandidate(ctx context.Context, params UpsertCandidateParams) (CandidateRef, error) {
	var ref CandidateRef
	err := c.withTransaction(ctx, func(tx *sqlx.Tx) error {
		var existingID uuid.UUID
		err := tx.QueryRowxContext(ctx, `
			SELECT id FROM candidates
			WHERE workflow_id = $1 AND source_candidate_id = $2
			FOR UPDATE`,
			params.WorkflowID, params.SourceCandidateID,
		).Scan(&existingID)

		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, `
				UPDATE candidates
				SET name = COALESCE($2, name),
				    github_url = COALESCE($3, github_url),
				    linkedin_url = COALESCE($4, linkedin_url)
				WHERE id = $1`,
				existingID, nullIfEmpty(params.Name), nullIfEmpty(params.GithubURL), nullIfEmpty(params.LinkedinURL),
			)
			if err != nil {
				return fmt.Errorf("patch candidate: %w", err)
			}
			ref = CandidateRef{ID: existingID, WasCreated: false}
			return nil

		case errors.Is(err, sql.ErrNoRows):
			id := uuid.New()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO candidates (id, workflow_id, source_candidate_id, name, github_url, linkedin_url, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)`,
				id, params.WorkflowID, params.SourceCandidateID,
				nullIfEmpty(params.Name), nullIfEmpty(params.GithubURL), nullIfEmpty(params.LinkedinURL),
				time.Now().UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert candidate: %w", err)
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE workflows SET total_candidates = total_candidates + 1 WHERE id = $1`,
				params.WorkflowID,
			)
			if err != nil {
				return fmt.Errorf("count candidate: %w", err)
			}
			if err := requireRow(res, "workflow", params.WorkflowID); err != nil {
				return err
			}
			ref = CandidateRef{ID: id, WasCreated: true}
			return nil

		default:
			return fmt.Errorf("lookup candidate: %w", err)
		}
	})
	return ref, err
}

// SetCandidateStatus transitions a candidate and keeps the parent workflow's
// processed/failed counters consistent: a candidate is counted exactly once,
// on its first transition into a terminal status.
func (c *Client) SetCandidateStatus(ctx context.Context, candidateID uuid.UUID, status CandidateStatus, errorMessage string) error {
	return c.withTransaction(ctx, func(tx *sqlx.Tx) error {
		var (
			workflowID uuid.UUID
			current    CandidateStatus
			startedAt  *time.Time
		)
		err := tx.QueryRowxContext(ctx, `
			SELECT workflow_id, status, started_at FROM candidates WHERE id = $1 FOR UPDATE`,
			candidateID,
		).Scan(&workflowID, &current, &startedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("candidate %s: %w", candidateID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lookup candidate: %w", err)
		}

		now := time.Now().UTC()
		newStartedAt := startedAt
		if status == CandidateRunning && startedAt == nil {
			newStartedAt = &now
		}
		var completedAt *time.Time
		if status.IsTerminal() {
			completedAt = &now
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE candidates
			SET status = $2,
			    error_message = COALESCE($3, error_message),
			    started_at = $4,
			    completed_at = COALESCE($5, completed_at)
			WHERE id = $1`,
			candidateID, status, nullIfEmpty(errorMessage), newStartedAt, completedAt,
		)
		if err != nil {
			return fmt.Errorf("update candidate: %w", err)
		}

		if !status.IsTerminal() || current.IsTerminal() {
			return nil
		}

		failedDelta := 0
		if status == CandidateFailed {
			failedDelta = 1
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE workflows
			SET processed_candidates = processed_candidates + 1,
			    failed_candidates = failed_candidates + $2
			WHERE id = $1`,
			workflowID, failedDelta,
		)
		if err != nil {
			return fmt.Errorf("count processed candidate: %w", err)
		}
		return nil
	})
}

// CreateAgentRunParams describe a run at creation time. CandidateID is nil
// for the discovery run.
type CreateAgentRunParams struct {
	WorkflowID  uuid.UUID
	CandidateID *uuid.UUID
	AgentType   AgentType
	TargetURL   string
}

// CreateAgentRun inserts a run record in running status and returns its id.
func (c *Client) CreateAgentRun(ctx context.Context, params CreateAgentRunParams) (uuid.UUID, error) {
	if !ValidAgentType(params.AgentType) {
		return uuid.Nil, fmt.Errorf("create agent run: unknown agent type %q", params.AgentType)
	}

	id := uuid.New()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO agent_runs (id, workflow_id, candidate_id, agent_type, status, target_url, started_at)
		VALUES ($1, $2, $3, $4, 'running', $5, $6)`,
		id, params.WorkflowID, params.CandidateID, params.AgentType, nullIfEmpty(params.TargetURL), time.Now().UTC(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create agent run: %w", err)
	}
	return id, nil
}

// AgentRunUpdate patches a run record. Nil fields are left untouched. A
// terminal Status also stamps completed_at.
type AgentRunUpdate struct {
	Status    *AgentRunStatus
	SessionID *string
	LiveURL   *string
	TargetURL *string
	Result    *string
	Error     *string
}

// UpdateAgentRun applies a partial update to a run record.
func (c *Client) UpdateAgentRun(ctx context.Context, runID uuid.UUID, update AgentRunUpdate) error {
	set := make([]string, 0, 7)
	args := []interface{}{runID}

	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("status", *update.Status)
		if update.Status.IsTerminal() {
			add("completed_at", time.Now().UTC())
		}
	}
	if update.SessionID != nil {
		add("session_id", *update.SessionID)
	}
	if update.LiveURL != nil {
		add("live_url", *update.LiveURL)
	}
	if update.TargetURL != nil {
		add("target_url", *update.TargetURL)
	}
	if update.Result != nil {
		add("result", *update.Result)
	}
	if update.Error != nil {
		add("error_message", *update.Error)
	}

	if len(set) == 0 {
		return nil
	}

	res, err := c.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE agent_runs SET %s WHERE id = $1", strings.Join(set, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update agent run: %w", err)
	}
	return requireRow(res, "agent run", runID)
}

// ListWorkflows returns all workflows, most recently started first.
func (c *Client) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	var workflows []Workflow
	err := c.db.SelectContext(ctx, &workflows, `
		SELECT * FROM workflows ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return workflows, nil
}

// GetWorkflow returns one workflow by id.
func (c *Client) GetWorkflow(ctx context.Context, workflowID uuid.UUID) (*Workflow, error) {
	var workflow Workflow
	err := c.db.GetContext(ctx, &workflow, `SELECT * FROM workflows WHERE id = $1`, workflowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return &workflow, nil
}

// ListCandidatesByWorkflow returns a workflow's candidates in discovery order.
func (c *Client) ListCandidatesByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]Candidate, error) {
	var list []Candidate
	err := c.db.SelectContext(ctx, &list, `
		SELECT * FROM candidates WHERE workflow_id = $1 ORDER BY created_at ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return list, nil
}

// ListActiveLiveRuns returns runs that are still running and expose a live
// browser-session URL, with candidate display fields joined in. agentType
// filters to one agent when non-empty.
func (c *Client) ListActiveLiveRuns(ctx context.Context, workflowID uuid.UUID, agentType AgentType) ([]AgentRunWithCandidate, error) {
	var runs []AgentRunWithCandidate
	err := c.db.SelectContext(ctx, &runs, `
		SELECT r.*, cand.name AS candidate_name, cand.source_candidate_id
		FROM agent_runs r
		LEFT JOIN candidates cand ON cand.id = r.candidate_id
		WHERE r.workflow_id = $1
		  AND r.status = 'running'
		  AND COALESCE(r.live_url, '') <> ''
		  AND ($2 = '' OR r.agent_type = $2)
		ORDER BY r.started_at DESC`,
		workflowID, string(agentType),
	)
	if err != nil {
		return nil, fmt.Errorf("list active live runs: %w", err)
	}
	return runs, nil
}

// ListRunHistory returns settled runs for a workflow, newest first, with
// candidate display fields joined in. agentType filters when non-empty.
func (c *Client) ListRunHistory(ctx context.Context, workflowID uuid.UUID, agentType AgentType) ([]AgentRunWithCandidate, error) {
	var runs []AgentRunWithCandidate
	err := c.db.SelectContext(ctx, &runs, `
		SELECT r.*, cand.name AS candidate_name, cand.source_candidate_id
		FROM agent_runs r
		LEFT JOIN candidates cand ON cand.id = r.candidate_id
		WHERE r.workflow_id = $1
		  AND r.status <> 'running'
		  AND ($2 = '' OR r.agent_type = $2)
		ORDER BY r.started_at DESC`,
		workflowID, string(agentType),
	)
	if err != nil {
		return nil, fmt.Errorf("list run history: %w", err)
	}
	return runs, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func requireRow(res sql.Result, entity string, id uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
