package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/db"
	"github.com/scoutline/orchestrator/internal/metrics"
	"github.com/scoutline/orchestrator/internal/validation"
	"github.com/scoutline/orchestrator/internal/workflows"
)

// StartWorkflowRequest is the body of POST /api/workflows/start.
type StartWorkflowRequest struct {
	Name                 string `json:"name"`
	TargetURL            string `json:"targetUrl"`
	TotalPages           int    `json:"totalPages"`
	CandidateConcurrency int    `json:"candidateConcurrency"`
}

func (s *Server) validateStart(req *StartWorkflowRequest) error {
	c := &validation.Collector{}

	req.TargetURL = strings.TrimSpace(req.TargetURL)
	if req.TargetURL == "" {
		c.Add("targetUrl", "is required")
	} else if u, err := url.Parse(req.TargetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.Add("targetUrl", "must be an absolute http(s) URL")
	}

	if req.TotalPages == 0 {
		req.TotalPages = s.opts.DefaultTotalPages
	}
	if req.TotalPages < 1 {
		c.Add("totalPages", "must be at least 1")
	}

	if req.CandidateConcurrency == 0 {
		req.CandidateConcurrency = s.opts.DefaultConcurrency
	}
	if req.CandidateConcurrency < 1 {
		c.Add("candidateConcurrency", "must be at least 1")
	}
	if req.CandidateConcurrency > s.opts.MaxConcurrency {
		c.Add("candidateConcurrency", fmt.Sprintf("must be at most %d", s.opts.MaxConcurrency))
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		req.Name = "sourcing " + time.Now().UTC().Format("2006-01-02 15:04")
	}

	return c.Err()
}

func (s *Server) handleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req StartWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &validation.Error{Issues: []validation.Issue{
			{Path: "body", Message: "must be a JSON object"},
		}})
		return
	}
	if err := s.validateStart(&req); err != nil {
		s.writeError(w, err)
		return
	}

	workflowID, err := s.store.CreateWorkflow(r.Context(), db.CreateWorkflowParams{
		Name:                 req.Name,
		TargetURL:            req.TargetURL,
		TotalPages:           req.TotalPages,
		CandidateConcurrency: req.CandidateConcurrency,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	metrics.WorkflowsStarted.Inc()

	params := workflows.PipelineParams{
		WorkflowID:           workflowID,
		TargetURL:            req.TargetURL,
		TotalPages:           req.TotalPages,
		CandidateConcurrency: req.CandidateConcurrency,
	}
	go func() {
		if err := s.pipeline.Run(s.baseCtx, params); err != nil {
			s.logger.Error("Workflow pipeline failed",
				zap.String("workflow_id", workflowID.String()),
				zap.Error(err))
		}
	}()

	s.logger.Info("Workflow started",
		zap.String("workflow_id", workflowID.String()),
		zap.String("target_url", req.TargetURL),
		zap.Int("total_pages", req.TotalPages),
		zap.Int("candidate_concurrency", req.CandidateConcurrency))

	s.writeJSON(w, http.StatusAccepted, map[string]string{"workflowId": workflowID.String()})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []db.Workflow{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"workflows": list})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}
	workflow, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, workflow)
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}
	list, err := s.store.ListCandidatesByWorkflow(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []db.Candidate{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"candidates": list})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}

	agentType := db.AgentType(r.URL.Query().Get("agent"))
	if agentType == "all" {
		agentType = ""
	}
	if agentType != "" && !db.ValidAgentType(agentType) {
		s.writeError(w, &validation.Error{Issues: []validation.Issue{
			{Path: "agent", Message: fmt.Sprintf("unknown agent type %q", agentType)},
		}})
		return
	}

	var (
		runs []db.AgentRunWithCandidate
		err  error
	)
	if r.URL.Query().Get("live") == "true" {
		runs, err = s.store.ListActiveLiveRuns(r.Context(), id, agentType)
	} else {
		runs, err = s.store.ListRunHistory(r.Context(), id, agentType)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []db.AgentRunWithCandidate{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}
