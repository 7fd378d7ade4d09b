package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/db"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // secured via proxy in prod
}

// statusSnapshot is one websocket frame: the workflow plus its candidates.
type statusSnapshot struct {
	Workflow   *db.Workflow   `json:"workflow"`
	Candidates []db.Candidate `json:"candidates"`
}

// wsPollInterval is how often the stream re-reads workflow state. Variable
// so the websocket tests run fast.
var wsPollInterval = 2 * time.Second

// handleWorkflowStream pushes workflow+candidate snapshots until the
// workflow reaches a terminal status, then sends the final snapshot and
// closes.
func (s *Server) handleWorkflowStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetWorkflow(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Reader pump, discards client messages and surfaces disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	send := func() (terminal bool, err error) {
		workflow, err := s.store.GetWorkflow(r.Context(), id)
		if err != nil {
			return false, err
		}
		candidateList, err := s.store.ListCandidatesByWorkflow(r.Context(), id)
		if err != nil {
			return false, err
		}
		if err := conn.WriteJSON(statusSnapshot{Workflow: workflow, Candidates: candidateList}); err != nil {
			return false, err
		}
		return workflow.Status != db.WorkflowRunning, nil
	}

	if terminal, err := send(); err != nil || terminal {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			terminal, err := send()
			if err != nil {
				s.logger.Debug("Workflow stream ended", zap.Error(err))
				return
			}
			if terminal {
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
