package handlers

import (
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"twindm/internal/pipeline"
)

// handleWatch streams committed turn events for an owned game over a
// WebSocket. The stream is read-only; actions still go through the HTTP
// endpoint and the server transcript stays the source of truth.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusNotFound, "transcript watching is not enabled")
		return
	}

	ownerID, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := gameID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	if _, err := s.store.Game(r.Context(), ownerID, id); err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		s.log.WithError(err).Error("load game for watch")
		writeError(w, http.StatusInternalServerError, "error opening watch stream")
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept")
		return
	}
	defer c.Close(websocket.StatusInternalError, "watch stream closed")

	events, cancel := s.hub.Subscribe(id)
	defer cancel()

	// CloseRead surfaces client disconnects as context cancellation.
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-events:
			if err := wsjson.Write(ctx, c, ev); err != nil {
				return
			}
		}
	}
}
