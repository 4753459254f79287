package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const pushWriteTimeout = 5 * time.Second

// wsSink adapts a websocket connection to the delivery.Sink interface.
// Writes use a detached context: the upgrade request's context ends with the
// handler, but the connection outlives it.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Push(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), pushWriteTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, frame)
}

func (s *wsSink) Close(reason string) {
	_ = s.conn.Close(websocket.StatusNormalClosure, reason)
}

// PushChannel upgrades to a WebSocket push channel for the agent named in
// the ?agent= query parameter. The server writes framed notifications
// {"type":"message","data":<Message>} whenever dispatch selects this channel;
// client frames are read and discarded to detect disconnects.
func (h *Handler) PushChannel(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent")
	if agentID == "" {
		h.Error(w, http.StatusBadRequest, "agent query parameter is required")
		return
	}

	agent, err := h.svc.GetAgent(r.Context(), agentID)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Debug().Err(err).Str("agent_id", agent.ID).Msg("websocket accept failed")
		return
	}

	sink := &wsSink{conn: conn}
	h.hub.Register(agent.ID, sink)
	defer h.hub.Unregister(agent.ID, sink)
	defer sink.Close("channel closed")

	h.logger.Info().Str("agent_id", agent.ID).Msg("push channel opened")

	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			break
		}
	}

	h.logger.Info().Str("agent_id", agent.ID).Msg("push channel closed")
}
