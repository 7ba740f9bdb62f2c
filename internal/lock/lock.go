// Package lock serializes turns per game. While a SubmitAction is in flight
// its game holds a short-lived Redis lock; a second concurrent submit is
// rejected instead of queued.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld means a turn is already processing for the game.
var ErrHeld = fmt.Errorf("turn already in progress")

// TurnLock takes per-game locks via SETNX with a TTL so a crashed request
// can never wedge a game permanently.
type TurnLock struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects the lock's Redis client. ttl bounds how long a lock can
// outlive its request.
func New(ctx context.Context, addr string, db int, ttl time.Duration) (*TurnLock, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &TurnLock{rdb: rdb, ttl: ttl}, nil
}

// Acquire takes the game's turn lock. It returns ErrHeld when another turn
// is processing, and a release func otherwise.
func (l *TurnLock) Acquire(ctx context.Context, gameID uuid.UUID) (func(), error) {
	key := "turnlock:" + gameID.String()
	ok, err := l.rdb.SetNX(ctx, key, 1, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire turn lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	release := func() {
		// Best effort: the TTL reclaims the lock if this fails.
		l.rdb.Del(context.Background(), key)
	}
	return release, nil
}
