package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"twindm/internal/lock"
	"twindm/internal/pipeline"
)

// handleListGames returns the caller's games, newest first.
func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	games, err := s.store.ListGames(r.Context(), ownerID)
	if err != nil {
		s.log.WithError(err).Error("list games")
		writeError(w, http.StatusInternalServerError, "error listing games")
		return
	}
	writeJSON(w, http.StatusOK, games)
}

type createGameRequest struct {
	Title        string `json:"title"`
	SystemPrompt string `json:"system_prompt"`
}

// handleCreateGame starts an adventure: the game row plus both lanes'
// opening replies committed as one snapshot.
func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Title == "" || req.SystemPrompt == "" {
		writeError(w, http.StatusBadRequest, "title and system_prompt are required")
		return
	}

	result, err := s.pipeline.StartGame(r.Context(), ownerID, req.Title, req.SystemPrompt)
	if err != nil {
		s.log.WithError(err).Error("start game")
		writeError(w, http.StatusInternalServerError, "error creating game")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleDeleteGame removes a game and its transcript atomically.
func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
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

	if err := s.store.DeleteGame(r.Context(), ownerID, id); err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		s.log.WithError(err).Error("delete game")
		writeError(w, http.StatusInternalServerError, "error deleting game")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "game deleted"})
}

// handleHistory returns the full transcript across both lanes in order.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
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

	history, err := s.store.History(r.Context(), ownerID, id)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		s.log.WithError(err).Error("load history")
		writeError(w, http.StatusInternalServerError, "error loading history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type actionRequest struct {
	Action string `json:"action"`
}

// handleAction submits one turn. A degraded model reply still yields 200;
// only ownership failures and storage errors surface as HTTP errors.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
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

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action cannot be empty")
		return
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(r.Context(), id)
		if err != nil {
			if errors.Is(err, lock.ErrHeld) {
				writeError(w, http.StatusConflict, "a turn is already in progress for this game")
				return
			}
			s.log.WithError(err).Error("acquire turn lock")
			writeError(w, http.StatusInternalServerError, "error processing action")
			return
		}
		defer release()
	}

	result, err := s.pipeline.SubmitAction(r.Context(), ownerID, id, req.Action)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		s.log.WithError(err).Error("submit action")
		writeError(w, http.StatusInternalServerError, "error processing action")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRandomize produces a one-shot adventure concept, independent of any
// game. Unlike turn generation there is no transcript to degrade into, so
// provider failures surface as 500s.
func (s *Server) handleRandomize(w http.ResponseWriter, r *http.Request) {
	concept, err := s.concepts.RandomConcept(r.Context(), s.conceptModel)
	if err != nil {
		s.log.WithError(err).Error("randomize adventure")
		writeError(w, http.StatusInternalServerError, "could not generate inspiration")
		return
	}
	writeJSON(w, http.StatusOK, concept)
}
