package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/agents"
	"github.com/scoutline/orchestrator/internal/browseruse"
	"github.com/scoutline/orchestrator/internal/candidates"
	"github.com/scoutline/orchestrator/internal/db"
	"github.com/scoutline/orchestrator/internal/firecrawl"
	"github.com/scoutline/orchestrator/internal/metrics"
)

var tracer = otel.Tracer("github.com/scoutline/orchestrator/internal/workflows")

// RunExecutor executes one agent run with full record lifecycle. Implemented
// by Executor; an interface so processor tests can fake run outcomes.
type RunExecutor interface {
	ExecuteRun(ctx context.Context, workflowID, candidateID uuid.UUID, agentType db.AgentType, targetURL string, fn RunCallback) *RunFailure
}

// DevpostLookup resolves a full name to a Devpost profile URL. Implemented
// by firecrawl.DevpostResolver.
type DevpostLookup interface {
	FindProfileByName(ctx context.Context, fullName string) (string, error)
}

// Processor runs all applicable agents for one candidate concurrently and
// derives the candidate's terminal status from their outcomes.
type Processor struct {
	store    Store
	executor RunExecutor
	browser  agents.BrowserRunner
	search   agents.Searcher
	devpost  DevpostLookup
	logger   *zap.Logger
}

// NewProcessor creates a candidate processor.
func NewProcessor(store Store, executor RunExecutor, browser agents.BrowserRunner, search agents.Searcher, devpost DevpostLookup, logger *zap.Logger) *Processor {
	return &Processor{
		store:    store,
		executor: executor,
		browser:  browser,
		search:   search,
		devpost:  devpost,
		logger:   logger,
	}
}

// ProcessCandidate marks the candidate running, launches every applicable
// agent concurrently, waits for all of them, and settles the candidate:
// completed when no agent failed (including the zero-agent case), failed
// with an aggregated message otherwise. A run's failure never cancels its
// siblings.
func (p *Processor) ProcessCandidate(ctx context.Context, workflowID, candidateID uuid.UUID, snap candidates.Snapshot) error {
	ctx, span := tracer.Start(ctx, "candidate.process", trace.WithAttributes(
		attribute.String("candidate.id", candidateID.String()),
		attribute.String("candidate.source_id", snap.SourceCandidateID),
	))
	defer span.End()

	if err := p.store.SetCandidateStatus(ctx, candidateID, db.CandidateRunning, ""); err != nil {
		return fmt.Errorf("mark candidate running: %w", err)
	}

	type launch struct {
		agentType db.AgentType
		run       func(ctx context.Context) *RunFailure
	}
	var launches []launch

	if snap.GithubURL != "" {
		githubURL := snap.GithubURL
		launches = append(launches, launch{db.AgentGithub, func(ctx context.Context) *RunFailure {
			return p.executor.ExecuteRun(ctx, workflowID, candidateID, db.AgentGithub, githubURL,
				func(ctx context.Context, session *browseruse.Session) (agents.Result, error) {
					return agents.RunGithub(ctx, p.browser, githubURL, session.ID)
				})
		}})
	}

	if snap.LinkedinURL != "" {
		linkedinURL := snap.LinkedinURL
		launches = append(launches, launch{db.AgentLinkedin, func(ctx context.Context) *RunFailure {
			return p.executor.ExecuteRun(ctx, workflowID, candidateID, db.AgentLinkedin, linkedinURL,
				func(ctx context.Context, session *browseruse.Session) (agents.Result, error) {
					return agents.RunLinkedin(ctx, p.browser, linkedinURL, session.ID)
				})
		}})

		// The posts agent is applicable whenever the profile URL is known,
		// but it cannot execute without a name to search by. That asymmetry
		// is deliberate: the run is recorded as failed instead of silently
		// skipped.
		fullName := snap.FullName
		launches = append(launches, launch{db.AgentLinkedinPosts, func(ctx context.Context) *RunFailure {
			return p.executor.ExecuteRun(ctx, workflowID, candidateID, db.AgentLinkedinPosts, linkedinURL,
				func(ctx context.Context, session *browseruse.Session) (agents.Result, error) {
					if fullName == "" {
						return agents.Result{}, errors.New("cannot run linkedin_posts agent without candidate full name")
					}
					return agents.RunLinkedinPosts(ctx, p.browser, p.search, fullName, linkedinURL, session.ID)
				})
		}})
	}

	if snap.FullName != "" {
		fullName := snap.FullName
		launches = append(launches, launch{db.AgentDevpost, func(ctx context.Context) *RunFailure {
			profileURL, err := p.devpost.FindProfileByName(ctx, fullName)
			if errors.Is(err, firecrawl.ErrProfileNotFound) {
				// No profile resolved: the agent is simply not applicable.
				// Nothing is attempted and nothing is recorded.
				return nil
			}
			if err != nil {
				return &RunFailure{AgentType: db.AgentDevpost, Err: err}
			}
			return p.executor.ExecuteRun(ctx, workflowID, candidateID, db.AgentDevpost, profileURL,
				func(ctx context.Context, session *browseruse.Session) (agents.Result, error) {
					return agents.RunDevpost(ctx, p.browser, profileURL, fullName, session.ID)
				})
		}})
	}

	if len(launches) == 0 {
		// A candidate with no resolvable external profiles is not an error.
		if err := p.store.SetCandidateStatus(ctx, candidateID, db.CandidateCompleted, ""); err != nil {
			return fmt.Errorf("complete candidate: %w", err)
		}
		metrics.CandidatesProcessed.WithLabelValues("completed").Inc()
		return nil
	}

	// All-complete join: failures are collected in launch order so the
	// aggregated message is stable, and one run failing never cancels the
	// others.
	failures := make([]*RunFailure, len(launches))
	var wg sync.WaitGroup
	for i, l := range launches {
		wg.Add(1)
		go func(i int, l launch) {
			defer wg.Done()
			failures[i] = l.run(ctx)
		}(i, l)
	}
	wg.Wait()

	var parts []string
	for _, failure := range failures {
		if failure != nil {
			parts = append(parts, fmt.Sprintf("%s: %s", failure.AgentType, storedError(failure.Err)))
		}
	}

	if len(parts) > 0 {
		message := strings.Join(parts, " | ")
		if err := p.store.SetCandidateStatus(ctx, candidateID, db.CandidateFailed, message); err != nil {
			return fmt.Errorf("fail candidate: %w", err)
		}
		metrics.CandidatesProcessed.WithLabelValues("failed").Inc()
		p.logger.Warn("Candidate processing finished with failures",
			zap.String("candidate_id", candidateID.String()),
			zap.String("errors", message),
		)
		return nil
	}

	if err := p.store.SetCandidateStatus(ctx, candidateID, db.CandidateCompleted, ""); err != nil {
		return fmt.Errorf("complete candidate: %w", err)
	}
	metrics.CandidatesProcessed.WithLabelValues("completed").Inc()
	return nil
}
