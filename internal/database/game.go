package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"twindm/internal/models"
	"twindm/internal/pipeline"
)

// ListGames returns the owner's games, newest first.
func (s *Store) ListGames(ctx context.Context, ownerID uuid.UUID) ([]models.Game, error) {
	q := `SELECT id, user_id, title, system_prompt, created_at
	      FROM games WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	games := []models.Game{}
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &g.SystemPrompt, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// Game returns an owned game, or pipeline.ErrNotFound when it is absent or
// owned by someone else.
func (s *Store) Game(ctx context.Context, ownerID, gameID uuid.UUID) (models.Game, error) {
	return gameForOwner(ctx, s.pool, ownerID, gameID)
}

// History returns the full transcript of an owned game in append order, or
// pipeline.ErrNotFound when the game is absent or owned by someone else.
func (s *Store) History(ctx context.Context, ownerID, gameID uuid.UUID) ([]models.Message, error) {
	if _, err := gameForOwner(ctx, s.pool, ownerID, gameID); err != nil {
		return nil, err
	}
	return gameMessages(ctx, s.pool, gameID)
}

// DeleteGame removes the game and its messages in one transaction. The
// messages go first; partial deletion is never observable.
func (s *Store) DeleteGame(ctx context.Context, ownerID, gameID uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := gameForOwner(ctx, tx, ownerID, gameID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE game_id = $1`, gameID); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM games WHERE id = $1`, gameID); err != nil {
			return fmt.Errorf("delete game: %w", err)
		}
		return nil
	})
}

// pgTx adapts an open pgx transaction to the pipeline's turn contract.
type pgTx struct {
	q pgx.Tx
}

func (t *pgTx) CreateGame(ctx context.Context, g *models.Game) error {
	if g.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("generate game id: %w", err)
		}
		g.ID = id
	}
	q := `INSERT INTO games (id, user_id, title, system_prompt)
	      VALUES ($1, $2, $3, $4) RETURNING created_at`
	if err := t.q.QueryRow(ctx, q, g.ID, g.UserID, g.Title, g.SystemPrompt).Scan(&g.CreatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (t *pgTx) GameForOwner(ctx context.Context, ownerID, gameID uuid.UUID) (models.Game, error) {
	return gameForOwner(ctx, t.q, ownerID, gameID)
}

func (t *pgTx) Messages(ctx context.Context, gameID uuid.UUID) ([]models.Message, error) {
	return gameMessages(ctx, t.q, gameID)
}

func (t *pgTx) AppendMessage(ctx context.Context, m *models.Message) error {
	if m.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("generate message id: %w", err)
		}
		m.ID = id
	}
	q := `INSERT INTO messages (id, game_id, dm_version, sender, text)
	      VALUES ($1, $2, $3, $4, $5) RETURNING seq, created_at`
	if err := t.q.QueryRow(ctx, q, m.ID, m.GameID, m.DMVersion, m.Sender, m.Text).Scan(&m.Seq, &m.CreatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

// rowQuerier covers the query surface shared by *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func gameForOwner(ctx context.Context, q rowQuerier, ownerID, gameID uuid.UUID) (models.Game, error) {
	var g models.Game
	query := `SELECT id, user_id, title, system_prompt, created_at
	          FROM games WHERE id = $1 AND user_id = $2`
	err := q.QueryRow(ctx, query, gameID, ownerID).Scan(&g.ID, &g.UserID, &g.Title, &g.SystemPrompt, &g.CreatedAt)
	if err != nil {
		return models.Game{}, mapError(err)
	}
	return g, nil
}

func gameMessages(ctx context.Context, q rowQuerier, gameID uuid.UUID) ([]models.Message, error) {
	query := `SELECT seq, id, game_id, dm_version, sender, text, created_at
	          FROM messages WHERE game_id = $1 ORDER BY seq ASC`
	rows, err := q.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.GameID, &m.DMVersion, &m.Sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

var _ pipeline.Tx = (*pgTx)(nil)
