// Package delivery implements the three delivery channels and the
// priority-order dispatch policy: live push, webhook push, then polling.
package delivery

import (
	"context"
	"sync"

	"github.com/aetos53t/ping/internal/metrics"
)

// Sink is one live push connection. Push must be safe to call from dispatch
// goroutines; a failed Push removes only that sink from the agent's set.
type Sink interface {
	Push(ctx context.Context, frame []byte) error
	Close(reason string)
}

// connSet holds one agent's open sinks behind its own lock, so fan-out to
// one agent never serializes traffic to another.
type connSet struct {
	mu    sync.Mutex
	sinks map[Sink]struct{}
}

// Hub is the registry of live push connections, agent id -> set of sinks.
// Connect/disconnect events race with dispatches to the same agent.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*connSet
}

// NewHub creates an empty connection hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*connSet)}
}

// Register adds a sink for an agent.
func (h *Hub) Register(agentID string, sink Sink) {
	h.mu.Lock()
	set, ok := h.conns[agentID]
	if !ok {
		set = &connSet{sinks: make(map[Sink]struct{})}
		h.conns[agentID] = set
	}
	set.mu.Lock()
	set.sinks[sink] = struct{}{}
	set.mu.Unlock()
	h.mu.Unlock()

	metrics.OpenPushSockets.Inc()
}

// Unregister removes a sink for an agent. Safe to call for a sink that was
// already pruned by a failed push.
func (h *Hub) Unregister(agentID string, sink Sink) {
	h.mu.Lock()
	set, ok := h.conns[agentID]
	if !ok {
		h.mu.Unlock()
		return
	}

	set.mu.Lock()
	_, present := set.sinks[sink]
	delete(set.sinks, sink)
	if len(set.sinks) == 0 {
		delete(h.conns, agentID)
	}
	set.mu.Unlock()
	h.mu.Unlock()

	if present {
		metrics.OpenPushSockets.Dec()
	}
}

// Connected reports whether the agent has at least one open sink.
func (h *Hub) Connected(agentID string) bool {
	h.mu.RLock()
	set, ok := h.conns[agentID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.sinks) > 0
}

// Push writes frame to every open sink for the agent and prunes the sinks
// that fail. It reports whether at least one write succeeded.
func (h *Hub) Push(ctx context.Context, agentID string, frame []byte) bool {
	h.mu.RLock()
	set, ok := h.conns[agentID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	set.mu.Lock()
	sinks := make([]Sink, 0, len(set.sinks))
	for sink := range set.sinks {
		sinks = append(sinks, sink)
	}
	set.mu.Unlock()

	delivered := false
	for _, sink := range sinks {
		if err := sink.Push(ctx, frame); err != nil {
			sink.Close("push failed")
			h.Unregister(agentID, sink)
			continue
		}
		delivered = true
	}
	return delivered
}
