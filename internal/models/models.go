// Package models holds the persistent entities shared across packages.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Lane identifies one of the two parallel DM conversations inside a game.
type Lane int16

const (
	// LaneFast is DM 1: standard generation, no extended reasoning.
	LaneFast Lane = 1
	// LaneDeliberate is DM 2: generation with a nonzero reasoning budget.
	LaneDeliberate Lane = 2
)

// Lanes lists both lanes in their fixed order.
var Lanes = [2]Lane{LaneFast, LaneDeliberate}

// Sender marks who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	// Password holds the plaintext on input and the encoded argon2id hash
	// once persisted. It is never serialized in responses.
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Game struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Title        string    `json:"title"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is one transcript entry. Messages are append-only; Seq gives a
// total order within a game even when created_at timestamps collide.
type Message struct {
	Seq       int64     `json:"-"`
	ID        uuid.UUID `json:"id"`
	GameID    uuid.UUID `json:"game_id"`
	DMVersion Lane      `json:"dm_version"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
