package watch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twindm/internal/models"
)

func TestHubPublishReachesGameSubscribersOnly(t *testing.T) {
	h := NewHub()
	gameA := uuid.New()
	gameB := uuid.New()

	chA, cancelA := h.Subscribe(gameA)
	defer cancelA()
	chB, cancelB := h.Subscribe(gameB)
	defer cancelB()

	msgs := []models.Message{{GameID: gameA, DMVersion: models.LaneFast, Sender: models.SenderAI, Text: "hi"}}
	h.Publish(gameA, msgs)

	select {
	case ev := <-chA:
		assert.Equal(t, gameA, ev.GameID)
		require.Len(t, ev.Messages, 1)
	default:
		t.Fatal("expected event for game A subscriber")
	}

	select {
	case <-chB:
		t.Fatal("game B subscriber must not receive game A events")
	default:
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	h := NewHub()
	gameID := uuid.New()

	ch, cancel := h.Subscribe(gameID)
	cancel()

	h.Publish(gameID, []models.Message{{GameID: gameID}})
	select {
	case <-ch:
		t.Fatal("cancelled subscriber must not receive events")
	default:
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	gameID := uuid.New()

	ch, cancel := h.Subscribe(gameID)
	defer cancel()

	// fill the buffer and keep publishing; Publish must never block
	for i := 0; i < 32; i++ {
		h.Publish(gameID, []models.Message{{GameID: gameID}})
	}
	assert.Equal(t, 8, len(ch))
}
