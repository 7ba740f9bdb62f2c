package database

import (
	"context"
	"fmt"
)

// migrate creates the schema when missing. Messages carry a bigserial seq so
// transcript order is total even when created_at timestamps collide.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL,
		game_id UUID NOT NULL REFERENCES games(id),
		dm_version SMALLINT NOT NULL CHECK (dm_version IN (1, 2)),
		sender TEXT NOT NULL CHECK (sender IN ('user', 'ai')),
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_game_seq ON messages (game_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_games_user_created ON games (user_id, created_at DESC)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
