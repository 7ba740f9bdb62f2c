package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"twindm/internal/auth"
	"twindm/internal/models"
)

// CreateUser hashes the password and inserts the user. Returns
// pipeline.ErrConflict when the username is taken.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("generate user id: %w", err)
		}
		user.ID = id
	}

	hash, err := auth.HashPassword(user.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, username, password) VALUES ($1, $2, $3) RETURNING created_at`
	if err := s.pool.QueryRow(ctx, q, user.ID, user.Username, user.Password).Scan(&user.CreatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

// UserByUsername returns pipeline.ErrNotFound when the username is unknown.
func (s *Store) UserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	q := `SELECT id, username, password, created_at FROM users WHERE username = $1`
	err := s.pool.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.Password, &u.CreatedAt)
	if err != nil {
		return models.User{}, mapError(err)
	}
	return u, nil
}
