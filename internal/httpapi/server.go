// Package httpapi exposes the workflow management REST surface and the
// per-workflow websocket status stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/db"
	"github.com/scoutline/orchestrator/internal/validation"
	"github.com/scoutline/orchestrator/internal/workflows"
)

// Store is the persistence surface the handlers read from and write to.
// Implemented by db.Client.
type Store interface {
	CreateWorkflow(ctx context.Context, params db.CreateWorkflowParams) (uuid.UUID, error)
	GetWorkflow(ctx context.Context, workflowID uuid.UUID) (*db.Workflow, error)
	ListWorkflows(ctx context.Context) ([]db.Workflow, error)
	ListCandidatesByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]db.Candidate, error)
	ListActiveLiveRuns(ctx context.Context, workflowID uuid.UUID, agentType db.AgentType) ([]db.AgentRunWithCandidate, error)
	ListRunHistory(ctx context.Context, workflowID uuid.UUID, agentType db.AgentType) ([]db.AgentRunWithCandidate, error)
}

// PipelineRunner drives one workflow end to end. Implemented by
// workflows.Pipeline.
type PipelineRunner interface {
	Run(ctx context.Context, params workflows.PipelineParams) error
}

// Options tune request defaulting at the API boundary.
type Options struct {
	DefaultConcurrency int
	MaxConcurrency     int
	DefaultTotalPages  int
}

// Server wires the REST handlers to the store and pipeline.
type Server struct {
	store    Store
	pipeline PipelineRunner
	opts     Options
	logger   *zap.Logger

	// baseCtx outlives individual requests so launched pipelines keep
	// running after the start request returns.
	baseCtx context.Context
}

// NewServer builds a Server. baseCtx bounds the lifetime of launched
// pipelines; cancel it on shutdown.
func NewServer(baseCtx context.Context, store Store, pipeline PipelineRunner, opts Options, logger *zap.Logger) *Server {
	if opts.DefaultConcurrency <= 0 {
		opts.DefaultConcurrency = 5
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 25
	}
	if opts.DefaultTotalPages <= 0 {
		opts.DefaultTotalPages = 1
	}
	return &Server{
		store:    store,
		pipeline: pipeline,
		opts:     opts,
		logger:   logger,
		baseCtx:  baseCtx,
	}
}

// Register mounts all routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workflows/start", s.handleStartWorkflow)
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}/candidates", s.handleListCandidates)
	mux.HandleFunc("GET /api/workflows/{id}/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/workflows/{id}/ws", s.handleWorkflowStream)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "validation failed",
			"issues": verr.Issues,
		})
	case errors.Is(err, db.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// workflowID parses the {id} path segment. A malformed id reads as not
// found rather than a bad request so probing ids behaves uniformly.
func (s *Server) workflowID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown workflow id"})
		return uuid.Nil, false
	}
	return id, true
}
