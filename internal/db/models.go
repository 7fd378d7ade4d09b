package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus is the lifecycle state of a sourcing workflow.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

// CandidateStatus is the lifecycle state of a discovered candidate.
type CandidateStatus string

const (
	CandidatePending   CandidateStatus = "pending"
	CandidateRunning   CandidateStatus = "running"
	CandidateCompleted CandidateStatus = "completed"
	CandidateFailed    CandidateStatus = "failed"
)

// IsTerminal reports whether no further transitions occur from s.
func (s CandidateStatus) IsTerminal() bool {
	return s == CandidateCompleted || s == CandidateFailed
}

// AgentRunStatus is the lifecycle state of one agent run.
type AgentRunStatus string

const (
	RunRunning   AgentRunStatus = "running"
	RunCompleted AgentRunStatus = "completed"
	RunFailed    AgentRunStatus = "failed"
)

// IsTerminal reports whether no further transitions occur from s.
func (s AgentRunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// AgentType tags which collaborator an agent run invoked. "juicebox" is the
// discovery crawl; the rest are per-candidate scraping sub-agents.
type AgentType string

const (
	AgentJuicebox      AgentType = "juicebox"
	AgentGithub        AgentType = "github"
	AgentLinkedin      AgentType = "linkedin"
	AgentLinkedinPosts AgentType = "linkedin_posts"
	AgentDevpost       AgentType = "devpost"
)

// AgentTypes lists every known agent type, discovery included.
var AgentTypes = []AgentType{
	AgentJuicebox,
	AgentGithub,
	AgentLinkedin,
	AgentLinkedinPosts,
	AgentDevpost,
}

// ValidAgentType reports whether t names a known agent type.
func ValidAgentType(t AgentType) bool {
	for _, known := range AgentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// JSONB represents a PostgreSQL jsonb column.
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	return json.Unmarshal(bytes, j)
}

// Workflow is one end-to-end discovery-and-processing run.
type Workflow struct {
	ID                   uuid.UUID      `db:"id" json:"id"`
	Name                 string         `db:"name" json:"name"`
	TargetURL            string         `db:"target_url" json:"targetUrl"`
	TotalPages           int            `db:"total_pages" json:"totalPages"`
	CandidateConcurrency int            `db:"candidate_concurrency" json:"candidateConcurrency"`
	Status               WorkflowStatus `db:"status" json:"status"`
	ErrorMessage         *string        `db:"error_message" json:"error,omitempty"`
	TotalCandidates      int            `db:"total_candidates" json:"totalCandidates"`
	ProcessedCandidates  int            `db:"processed_candidates" json:"processedCandidates"`
	FailedCandidates     int            `db:"failed_candidates" json:"failedCandidates"`
	StartedAt            time.Time      `db:"started_at" json:"startedAt"`
	CompletedAt          *time.Time     `db:"completed_at" json:"completedAt,omitempty"`
}

// Candidate is one discovered profile within a workflow. The source id is
// unique per workflow; rediscovery patches mutable fields in place.
type Candidate struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	WorkflowID        uuid.UUID       `db:"workflow_id" json:"workflowId"`
	SourceCandidateID string          `db:"source_candidate_id" json:"sourceCandidateId"`
	Name              *string         `db:"name" json:"name,omitempty"`
	GithubURL         *string         `db:"github_url" json:"githubUrl,omitempty"`
	LinkedinURL       *string         `db:"linkedin_url" json:"linkedinUrl,omitempty"`
	Status            CandidateStatus `db:"status" json:"status"`
	ErrorMessage      *string         `db:"error_message" json:"error,omitempty"`
	Assessment        JSONB           `db:"assessment" json:"assessment,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	StartedAt         *time.Time      `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt       *time.Time      `db:"completed_at" json:"completedAt,omitempty"`
}

// AgentRun is one tracked invocation of the discovery crawl or a sub-agent,
// optionally scoped to a candidate.
type AgentRun struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	WorkflowID   uuid.UUID      `db:"workflow_id" json:"workflowId"`
	CandidateID  *uuid.UUID     `db:"candidate_id" json:"candidateId,omitempty"`
	AgentType    AgentType      `db:"agent_type" json:"agentType"`
	Status       AgentRunStatus `db:"status" json:"status"`
	TargetURL    *string        `db:"target_url" json:"targetUrl,omitempty"`
	SessionID    *string        `db:"session_id" json:"sessionId,omitempty"`
	LiveURL      *string        `db:"live_url" json:"liveUrl,omitempty"`
	Result       *string        `db:"result" json:"result,omitempty"`
	ErrorMessage *string        `db:"error_message" json:"error,omitempty"`
	StartedAt    time.Time      `db:"started_at" json:"startedAt"`
	CompletedAt  *time.Time     `db:"completed_at" json:"completedAt,omitempty"`
}

// AgentRunWithCandidate decorates a run with its candidate's display fields
// for the run-history and live-run listings.
type AgentRunWithCandidate struct {
	AgentRun
	CandidateName     *string `db:"candidate_name" json:"candidateName,omitempty"`
	SourceCandidateID *string `db:"source_candidate_id" json:"sourceCandidateId,omitempty"`
}

// CandidateRef is the result of an upsert: the candidate's id plus whether
// the document was created by this call.
type CandidateRef struct {
	ID         uuid.UUID
	WasCreated bool
}
