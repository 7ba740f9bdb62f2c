// Package watch fans committed turn events out to transcript watchers.
package watch

import (
	"sync"

	"github.com/google/uuid"

	"twindm/internal/models"
)

// Event carries the new messages of one committed turn.
type Event struct {
	GameID   uuid.UUID        `json:"game_id"`
	Messages []models.Message `json:"messages"`
}

// Hub is an in-process per-game subscriber registry. Slow subscribers drop
// events rather than stalling the pipeline.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

// Subscribe registers a watcher for a game. The returned cancel func must be
// called when the watcher goes away.
func (h *Hub) Subscribe(gameID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, 8)

	h.mu.Lock()
	if h.subs[gameID] == nil {
		h.subs[gameID] = make(map[chan Event]struct{})
	}
	h.subs[gameID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[gameID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, gameID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers a turn's messages to every watcher of the game.
func (h *Hub) Publish(gameID uuid.UUID, msgs []models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[gameID] {
		select {
		case ch <- Event{GameID: gameID, Messages: msgs}:
		default:
		}
	}
}
