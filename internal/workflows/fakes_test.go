package workflows

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/scoutline/orchestrator/internal/browseruse"
	"github.com/scoutline/orchestrator/internal/candidates"
	"github.com/scoutline/orchestrator/internal/db"
	"github.com/scoutline/orchestrator/internal/discovery"
	"github.com/scoutline/orchestrator/internal/firecrawl"
)

type fakeRun struct {
	params  db.CreateAgentRunParams
	updates []db.AgentRunUpdate
}

func (r *fakeRun) finalStatus() db.AgentRunStatus {
	status := db.RunRunning
	for _, u := range r.updates {
		if u.Status != nil {
			status = *u.Status
		}
	}
	return status
}

func (r *fakeRun) field(get func(db.AgentRunUpdate) *string) string {
	var out string
	for _, u := range r.updates {
		if v := get(u); v != nil {
			out = *v
		}
	}
	return out
}

type candidateStatusChange struct {
	candidateID uuid.UUID
	status      db.CandidateStatus
	message     string
}

type finishRecord struct {
	workflowID uuid.UUID
	status     db.WorkflowStatus
	message    string
}

// fakeStore is an in-memory Store for orchestration tests.
type fakeStore struct {
	mu sync.Mutex

	createRunErr error
	upsertErr    error
	setStatusErr error

	runOrder     []uuid.UUID
	runs         map[uuid.UUID]*fakeRun
	statuses     []candidateStatusChange
	upserts      []db.UpsertCandidateParams
	candidateIDs map[string]uuid.UUID
	finished     *finishRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:         make(map[uuid.UUID]*fakeRun),
		candidateIDs: make(map[string]uuid.UUID),
	}
}

func (s *fakeStore) CreateAgentRun(_ context.Context, params db.CreateAgentRunParams) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createRunErr != nil {
		return uuid.Nil, s.createRunErr
	}
	id := uuid.New()
	s.runs[id] = &fakeRun{params: params}
	s.runOrder = append(s.runOrder, id)
	return id, nil
}

func (s *fakeStore) UpdateAgentRun(_ context.Context, runID uuid.UUID, update db.AgentRunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("agent run %s: %w", runID, db.ErrNotFound)
	}
	run.updates = append(run.updates, update)
	return nil
}

func (s *fakeStore) UpsertCandidate(_ context.Context, params db.UpsertCandidateParams) (db.CandidateRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return db.CandidateRef{}, s.upsertErr
	}
	s.upserts = append(s.upserts, params)
	if id, ok := s.candidateIDs[params.SourceCandidateID]; ok {
		return db.CandidateRef{ID: id, WasCreated: false}, nil
	}
	id := uuid.New()
	s.candidateIDs[params.SourceCandidateID] = id
	return db.CandidateRef{ID: id, WasCreated: true}, nil
}

func (s *fakeStore) SetCandidateStatus(_ context.Context, candidateID uuid.UUID, status db.CandidateStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setStatusErr != nil {
		return s.setStatusErr
	}
	s.statuses = append(s.statuses, candidateStatusChange{candidateID, status, message})
	return nil
}

func (s *fakeStore) FinishWorkflow(_ context.Context, workflowID uuid.UUID, status db.WorkflowStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = &finishRecord{workflowID, status, message}
	return nil
}

func (s *fakeStore) runsOfType(agentType db.AgentType) []*fakeRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeRun
	for _, id := range s.runOrder {
		if s.runs[id].params.AgentType == agentType {
			out = append(out, s.runs[id])
		}
	}
	return out
}

func (s *fakeStore) statusHistory(candidateID uuid.UUID) []db.CandidateStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.CandidateStatus
	for _, change := range s.statuses {
		if change.candidateID == candidateID {
			out = append(out, change.status)
		}
	}
	return out
}

func (s *fakeStore) lastMessage(candidateID uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out string
	for _, change := range s.statuses {
		if change.candidateID == candidateID {
			out = change.message
		}
	}
	return out
}

type fakeSessions struct {
	mu      sync.Mutex
	err     error
	created int
}

func (f *fakeSessions) CreateSession(context.Context) (*browseruse.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created++
	n := f.created
	return &browseruse.Session{
		ID:      fmt.Sprintf("sess-%d", n),
		LiveURL: fmt.Sprintf("https://live.example/%d", n),
	}, nil
}

// fakeBrowser routes canned structured outputs by prompt content, and can
// fail selected agents.
type fakeBrowser struct {
	failTasks map[string]error // substring of prompt -> error
}

func (f *fakeBrowser) RunTask(_ context.Context, req browseruse.TaskRequest) (*browseruse.TaskResult, error) {
	for needle, err := range f.failTasks {
		if strings.Contains(req.Task, needle) {
			return nil, err
		}
	}
	switch {
	case strings.Contains(req.Task, "GitHub profile"):
		return &browseruse.TaskResult{Output: `{"username": "ada", "pinnedRepositories": []}`}, nil
	case strings.Contains(req.Task, "Target LinkedIn profile"):
		return &browseruse.TaskResult{Output: `{"name": "Ada", "activity": [], "projects": []}`}, nil
	case strings.Contains(req.Task, "Analyze LinkedIn posts"):
		return &browseruse.TaskResult{Output: `{"summary": "Go posts", "topics": ["go"], "posts": []}`}, nil
	case strings.Contains(req.Task, "Devpost user profile"):
		return &browseruse.TaskResult{Output: `{"summary": "wins", "wins": [], "projects": []}`}, nil
	}
	return nil, fmt.Errorf("unexpected task prompt: %s", req.Task)
}

type fakeSearcher struct{}

func (fakeSearcher) Search(context.Context, string) ([]firecrawl.SearchResult, error) {
	return []firecrawl.SearchResult{
		{URL: "https://www.linkedin.com/posts/ada_go-generics-101"},
	}, nil
}

type fakeDevpost struct {
	url string
	err error
}

func (f *fakeDevpost) FindProfileByName(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

// fakeCrawler replays a fixed stream of discovery events.
type fakeCrawler struct {
	payloads  []map[string]interface{}
	liveURL   string
	err       error
	runCalled bool
}

func (f *fakeCrawler) Run(_ context.Context, _ string, _ int, cb discovery.Callbacks) (*discovery.Result, error) {
	f.runCalled = true
	if f.liveURL != "" && cb.OnBrowserUseURL != nil {
		cb.OnBrowserUseURL(f.liveURL)
	}
	result := &discovery.Result{}
	for _, payload := range f.payloads {
		if err := cb.OnUserPayload(payload); err != nil {
			result.InvalidPayloadCount++
			continue
		}
		result.PayloadCount++
	}
	if f.err != nil {
		return nil, f.err
	}
	return result, nil
}

// fakeProcessor records processed candidates and can fail selected source ids.
type fakeProcessor struct {
	mu        sync.Mutex
	processed []uuid.UUID
	failIDs   map[uuid.UUID]error
}

func (f *fakeProcessor) ProcessCandidate(_ context.Context, _ uuid.UUID, candidateID uuid.UUID, _ candidates.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, candidateID)
	if err, ok := f.failIDs[candidateID]; ok {
		return err
	}
	return nil
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed)
}
