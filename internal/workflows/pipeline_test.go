package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/db"
	"github.com/scoutline/orchestrator/internal/metrics"
)

func payload(id, fullName string) map[string]interface{} {
	p := map[string]interface{}{"id": id}
	if fullName != "" {
		p["full_name"] = fullName
	}
	return p
}

func pipelineParams() PipelineParams {
	return PipelineParams{
		WorkflowID:           uuid.New(),
		TargetURL:            "https://app.juicebox.ai/search/1",
		TotalPages:           2,
		CandidateConcurrency: 3,
	}
}

func TestPipelineCompletesAndDedupsCandidates(t *testing.T) {
	store := newFakeStore()
	crawler := &fakeCrawler{
		liveURL: "https://live.example/discovery",
		payloads: []map[string]interface{}{
			payload("jb-1", "Ada Lovelace"),
			payload("jb-2", "Grace Hopper"),
			payload("jb-1", "Ada Lovelace"), // rediscovery of the same source id
		},
	}
	processor := &fakeProcessor{}
	pipeline := NewPipeline(store, crawler, processor, zap.NewNop())
	params := pipelineParams()

	err := pipeline.Run(context.Background(), params)
	require.NoError(t, err)

	assert.Len(t, store.upserts, 2)
	assert.Equal(t, 2, processor.count())

	require.NotNil(t, store.finished)
	assert.Equal(t, params.WorkflowID, store.finished.workflowID)
	assert.Equal(t, db.WorkflowCompleted, store.finished.status)
	assert.Empty(t, store.finished.message)

	discoveryRuns := store.runsOfType(db.AgentJuicebox)
	require.Len(t, discoveryRuns, 1)
	assert.Equal(t, db.RunCompleted, discoveryRuns[0].finalStatus())
	assert.Equal(t, "https://live.example/discovery", discoveryRuns[0].field(liveURLField))
	assert.Nil(t, discoveryRuns[0].params.CandidateID)
}

func TestPipelineDiscoveryFailureStillDrainsQueue(t *testing.T) {
	store := newFakeStore()
	crawler := &fakeCrawler{
		payloads: []map[string]interface{}{
			payload("jb-1", ""),
			payload("jb-2", ""),
			payload("jb-3", ""),
		},
		err: errors.New("scraper process: exit status 3"),
	}
	processor := &fakeProcessor{}
	pipeline := NewPipeline(store, crawler, processor, zap.NewNop())

	err := pipeline.Run(context.Background(), pipelineParams())
	require.Error(t, err)

	// All three candidates accepted before the crash were still processed to
	// a terminal state before finalization.
	assert.Equal(t, 3, processor.count())

	require.NotNil(t, store.finished)
	assert.Equal(t, db.WorkflowFailed, store.finished.status)
	assert.Contains(t, store.finished.message, "exit status 3")

	discoveryRun := store.runsOfType(db.AgentJuicebox)[0]
	assert.Equal(t, db.RunFailed, discoveryRun.finalStatus())
	assert.Contains(t, discoveryRun.field(errorField), "exit status 3")
}

func TestPipelineInvalidPayloadDoesNotFailWorkflow(t *testing.T) {
	store := newFakeStore()
	crawler := &fakeCrawler{
		payloads: []map[string]interface{}{
			{"full_name": "No Id"}, // snapshot rejects the missing id
			payload("jb-1", "Ada"),
		},
	}
	processor := &fakeProcessor{}
	pipeline := NewPipeline(store, crawler, processor, zap.NewNop())

	err := pipeline.Run(context.Background(), pipelineParams())
	require.NoError(t, err)

	assert.Len(t, store.upserts, 1)
	assert.Equal(t, 1, processor.count())
	assert.Equal(t, db.WorkflowCompleted, store.finished.status)
}

func TestPipelineProcessorErrorMarksCandidateFailed(t *testing.T) {
	store := newFakeStore()
	crawler := &fakeCrawler{payloads: []map[string]interface{}{payload("jb-1", "Ada")}}
	processor := &fakeProcessor{failIDs: map[uuid.UUID]error{}}

	// The processor fails for whichever id jb-1 maps to; seed it after the
	// upsert happens by failing every processed candidate instead.
	pipeline := NewPipeline(store, crawler, processor, zap.NewNop())
	params := pipelineParams()

	// Pre-resolve the candidate id by upserting through the same store.
	ref, err := store.UpsertCandidate(context.Background(), db.UpsertCandidateParams{
		WorkflowID:        params.WorkflowID,
		SourceCandidateID: "jb-1",
	})
	require.NoError(t, err)
	processor.failIDs[ref.ID] = errors.New("mark candidate running: persistence offline")

	failedBefore := testutil.ToFloat64(metrics.CandidatesProcessed.WithLabelValues("failed"))

	err = pipeline.Run(context.Background(), params)
	require.NoError(t, err)

	// Defense in depth: the driver settled the candidate the processor
	// abandoned, and the workflow itself still completed.
	history := store.statusHistory(ref.ID)
	require.NotEmpty(t, history)
	assert.Equal(t, db.CandidateFailed, history[len(history)-1])
	assert.Contains(t, store.lastMessage(ref.ID), "persistence offline")
	assert.Equal(t, db.WorkflowCompleted, store.finished.status)

	// The driver's settlement counts toward the processed metric just like
	// the processor's own terminal transitions.
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(metrics.CandidatesProcessed.WithLabelValues("failed")))
}

func TestPipelineDiscoveryRunCreationFailureFailsWorkflowWithoutCrawling(t *testing.T) {
	store := newFakeStore()
	store.createRunErr = errors.New("persistence offline")
	crawler := &fakeCrawler{payloads: []map[string]interface{}{payload("jb-1", "Ada")}}
	processor := &fakeProcessor{}
	pipeline := NewPipeline(store, crawler, processor, zap.NewNop())

	err := pipeline.Run(context.Background(), pipelineParams())
	require.Error(t, err)

	assert.False(t, crawler.runCalled)
	assert.Zero(t, processor.count())
	require.NotNil(t, store.finished)
	assert.Equal(t, db.WorkflowFailed, store.finished.status)
	assert.Contains(t, store.finished.message, "persistence offline")
}
