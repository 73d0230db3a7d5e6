package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/johnmikel306/learntrack-sub002/internal/gateway/hub"
	"github.com/johnmikel306/learntrack-sub002/internal/gateway/protocol"
	"github.com/johnmikel306/learntrack-sub002/internal/orchestrator"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
)

// Factory builds the orchestrator of a new workspace.
type Factory func(workspaceID string) *orchestrator.Orchestrator

// Workspaces owns one orchestrator per workspace and pushes its snapshots
// to the workspace's connections.
type Workspaces struct {
	factory Factory
	hub     *hub.Hub
	log     *logger.Logger

	mu    sync.Mutex
	items map[string]*workspace
}

type workspace struct {
	orch        *orchestrator.Orchestrator
	unsubscribe func()
}

func NewWorkspaces(factory Factory, h *hub.Hub, log *logger.Logger) *Workspaces {
	if log == nil {
		log = logger.Nop()
	}
	return &Workspaces{
		factory: factory,
		hub:     h,
		log:     log.With("component", "workspaces"),
		items:   make(map[string]*workspace),
	}
}

// Get returns the workspace's orchestrator, creating it on first use.
func (w *Workspaces) Get(workspaceID string) *orchestrator.Orchestrator {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ws, ok := w.items[workspaceID]; ok {
		return ws.orch
	}

	orch := w.factory(workspaceID)
	unsubscribe := orch.Subscribe(func(v orchestrator.View) {
		msg := protocol.SnapshotMessage{
			BaseMessage: protocol.BaseMessage{
				Type:        protocol.TypeSnapshot,
				Ts:          time.Now().UnixMilli(),
				WorkspaceID: workspaceID,
			},
			View: protocol.NewView(v),
		}
		if err := w.hub.BroadcastJSON(workspaceID, msg); err != nil {
			w.log.Error("failed to broadcast snapshot", "workspace_id", workspaceID, "error", err)
		}
	})
	w.items[workspaceID] = &workspace{orch: orch, unsubscribe: unsubscribe}
	w.log.Info("workspace created", "workspace_id", workspaceID)
	return orch
}

// IDs returns the known workspace ids in sorted order.
func (w *Workspaces) IDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.items))
	for id := range w.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every workspace's generation and drops them.
func (w *Workspaces) Close() {
	w.mu.Lock()
	items := w.items
	w.items = make(map[string]*workspace)
	w.mu.Unlock()

	for _, ws := range items {
		ws.unsubscribe()
		ws.orch.Close()
	}
}
