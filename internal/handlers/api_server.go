// Package handlers exposes the HTTP/JSON API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"twindm/internal/ai"
	"twindm/internal/middleware"
	"twindm/internal/models"
	"twindm/internal/pipeline"
	"twindm/internal/watch"
)

// Store is the persistence surface the handlers read from. The turn
// pipeline owns all transcript writes.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserByUsername(ctx context.Context, username string) (models.User, error)
	ListGames(ctx context.Context, ownerID uuid.UUID) ([]models.Game, error)
	Game(ctx context.Context, ownerID, gameID uuid.UUID) (models.Game, error)
	History(ctx context.Context, ownerID, gameID uuid.UUID) ([]models.Message, error)
	DeleteGame(ctx context.Context, ownerID, gameID uuid.UUID) error
}

// ConceptGateway produces adventure seeds for the randomize endpoint.
type ConceptGateway interface {
	RandomConcept(ctx context.Context, model string) (ai.Concept, error)
}

// Locker serializes turns per game. A nil Locker disables serialization.
type Locker interface {
	Acquire(ctx context.Context, gameID uuid.UUID) (func(), error)
}

// Server wires the API's dependencies together.
type Server struct {
	log      *logrus.Logger
	store    Store
	pipeline *pipeline.Pipeline
	concepts ConceptGateway
	hub      *watch.Hub
	locker   Locker

	// conceptModel backs the one-shot randomize call.
	conceptModel string
}

// New builds a Server. hub and locker may be nil.
func New(log *logrus.Logger, store Store, p *pipeline.Pipeline, concepts ConceptGateway, conceptModel string, hub *watch.Hub, locker Locker) *Server {
	return &Server{
		log:          log,
		store:        store,
		pipeline:     p,
		concepts:     concepts,
		hub:          hub,
		locker:       locker,
		conceptModel: conceptModel,
	}
}

// Routes assembles the chi router. Register and login are public; every
// game route requires a bearer token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logging(s.log))

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/games", s.handleListGames)
		r.Post("/games", s.handleCreateGame)
		r.Post("/games/randomize", s.handleRandomize)
		r.Delete("/games/{id}", s.handleDeleteGame)
		r.Get("/games/{id}/history", s.handleHistory)
		r.Post("/games/{id}/action", s.handleAction)
		r.Get("/games/{id}/ws", s.handleWatch)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// identity pulls the authenticated principal; RequireAuth guarantees it is
// present on every protected route.
func identity(r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	return id.UserID, true
}

// gameID parses the {id} path parameter.
func gameID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}
