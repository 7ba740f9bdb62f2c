package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"twindm/internal/models"
)

// ErrNotFound is returned when a game or user is absent or not owned by the
// caller. Ownership failures are indistinguishable from absence on purpose.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on unique-constraint violations (duplicate
// username) and when a turn is already in flight for a game.
var ErrConflict = errors.New("conflict")

// Store opens the atomic scope a turn runs in. The implementation checks a
// handle out of the pool for the duration of fn and releases it on every
// exit path; if fn returns an error nothing inside the scope is persisted.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the persistence contract of one turn. All four inserts of a
// SubmitAction and the ownership check run against the same Tx so a
// concurrent reader never observes a half-written turn.
type Tx interface {
	CreateGame(ctx context.Context, g *models.Game) error
	// GameForOwner returns ErrNotFound when the game is absent or owned by
	// someone else.
	GameForOwner(ctx context.Context, ownerID, gameID uuid.UUID) (models.Game, error)
	// Messages returns the game's full transcript across both lanes in
	// append order.
	Messages(ctx context.Context, gameID uuid.UUID) ([]models.Message, error)
	AppendMessage(ctx context.Context, m *models.Message) error
}
