// Package pipeline turns one user action into a consistent dual-lane
// transcript update. Each game holds two independent DM conversations
// (lanes); every turn fans the same input out to both lanes' models
// concurrently and commits all resulting messages in one transaction.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"twindm/internal/ai"
	"twindm/internal/models"
)

// openingPrompt seeds both lanes when a game is created.
const openingPrompt = "Begin the adventure by describing the opening scene."

// Gateway generates one lane's next reply. Implementations must degrade
// gracefully: a failed call yields a placeholder Result, never an error.
type Gateway interface {
	Generate(ctx context.Context, cfg ai.ModelConfig, systemPrompt string, history []ai.Turn, input string) ai.Result
}

// Notifier receives the new messages of a committed turn. Publish must not
// block the pipeline.
type Notifier interface {
	Publish(gameID uuid.UUID, msgs []models.Message)
}

// Pipeline orchestrates game turns against the store and the two fixed lane
// configurations.
type Pipeline struct {
	store    Store
	gateway  Gateway
	notifier Notifier
	log      *logrus.Logger

	// fast serves lane 1 (budget 0), deliberate serves lane 2 (budget > 0).
	fast       ai.ModelConfig
	deliberate ai.ModelConfig
}

// New builds a Pipeline. notifier may be nil.
func New(store Store, gateway Gateway, fast, deliberate ai.ModelConfig, notifier Notifier, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		gateway:    gateway,
		notifier:   notifier,
		log:        log,
		fast:       fast,
		deliberate: deliberate,
	}
}

// StartResult is the consistent snapshot returned by StartGame: the created
// game plus the opening message of each lane.
type StartResult struct {
	Game     models.Game      `json:"game"`
	Openings []models.Message `json:"openings"`
}

// TurnResult is the full updated transcript after a committed action.
// The server response is the single source of truth post-submit.
type TurnResult struct {
	Responses []models.Message `json:"responses"`
}

// StartGame creates a game and seeds both lanes with their opening replies.
// If the game insert fails no model is ever called. A degraded lane opening
// is committed like a real one; the game still counts as created.
func (p *Pipeline) StartGame(ctx context.Context, ownerID uuid.UUID, title, systemPrompt string) (*StartResult, error) {
	var result StartResult
	err := p.store.WithTx(ctx, func(tx Tx) error {
		game := models.Game{UserID: ownerID, Title: title, SystemPrompt: systemPrompt}
		if err := tx.CreateGame(ctx, &game); err != nil {
			return fmt.Errorf("create game: %w", err)
		}

		replies := p.generateBoth(ctx, game.SystemPrompt, nil, openingPrompt)
		openings := make([]models.Message, 0, 2)
		for i, lane := range models.Lanes {
			msg := models.Message{
				GameID:    game.ID,
				DMVersion: lane,
				Sender:    models.SenderAI,
				Text:      replies[i].Text,
			}
			if err := tx.AppendMessage(ctx, &msg); err != nil {
				return fmt.Errorf("append opening for lane %d: %w", lane, err)
			}
			openings = append(openings, msg)
		}

		result = StartResult{Game: game, Openings: openings}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.notify(result.Game.ID, result.Openings)
	return &result, nil
}

// SubmitAction runs one turn: ownership-checked load, the action appended to
// both lanes, two concurrent model calls over lane-local history, and both
// replies appended. Everything commits atomically; only a storage failure
// rolls the turn back. Model failures are committed as placeholder text.
func (p *Pipeline) SubmitAction(ctx context.Context, ownerID, gameID uuid.UUID, action string) (*TurnResult, error) {
	var result TurnResult
	var newMsgs []models.Message
	err := p.store.WithTx(ctx, func(tx Tx) error {
		game, err := tx.GameForOwner(ctx, ownerID, gameID)
		if err != nil {
			return err
		}

		history, err := tx.Messages(ctx, gameID)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}

		// The action lands in both lanes before either model is invoked, so
		// a crash mid-turn still leaves a replayable "user spoke, DM hasn't
		// answered" transcript.
		newMsgs = newMsgs[:0]
		for _, lane := range models.Lanes {
			msg := models.Message{
				GameID:    gameID,
				DMVersion: lane,
				Sender:    models.SenderUser,
				Text:      action,
			}
			if err := tx.AppendMessage(ctx, &msg); err != nil {
				return fmt.Errorf("append action for lane %d: %w", lane, err)
			}
			newMsgs = append(newMsgs, msg)
		}

		replies := p.generateBoth(ctx, game.SystemPrompt, history, action)
		for i, lane := range models.Lanes {
			msg := models.Message{
				GameID:    gameID,
				DMVersion: lane,
				Sender:    models.SenderAI,
				Text:      replies[i].Text,
			}
			if err := tx.AppendMessage(ctx, &msg); err != nil {
				return fmt.Errorf("append reply for lane %d: %w", lane, err)
			}
			newMsgs = append(newMsgs, msg)
		}

		updated, err := tx.Messages(ctx, gameID)
		if err != nil {
			return fmt.Errorf("reload transcript: %w", err)
		}
		result = TurnResult{Responses: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.notify(gameID, newMsgs)
	return &result, nil
}

// generateBoth invokes both lanes' models concurrently and waits for both.
// Lane 2's reasoning budget must never delay lane 1's call.
func (p *Pipeline) generateBoth(ctx context.Context, systemPrompt string, history []models.Message, input string) [2]ai.Result {
	configs := [2]ai.ModelConfig{p.fast, p.deliberate}

	var replies [2]ai.Result
	var wg sync.WaitGroup
	for i, lane := range models.Lanes {
		wg.Add(1)
		go func(i int, lane models.Lane) {
			defer wg.Done()
			replies[i] = p.gateway.Generate(ctx, configs[i], systemPrompt, laneTurns(history, lane), input)
		}(i, lane)
	}
	wg.Wait()

	for i := range replies {
		if replies[i].Degraded {
			p.log.WithField("model", replies[i].Model).Warn("lane degraded, committing placeholder reply")
		}
	}
	return replies
}

// laneTurns projects the stored transcript onto one lane's alternating
// user/model turn sequence for replay to that lane's model.
func laneTurns(history []models.Message, lane models.Lane) []ai.Turn {
	var turns []ai.Turn
	for _, m := range history {
		if m.DMVersion != lane {
			continue
		}
		role := ai.RoleUser
		if m.Sender == models.SenderAI {
			role = ai.RoleModel
		}
		turns = append(turns, ai.Turn{Role: role, Text: m.Text})
	}
	return turns
}

func (p *Pipeline) notify(gameID uuid.UUID, msgs []models.Message) {
	if p.notifier == nil || len(msgs) == 0 {
		return
	}
	p.notifier.Publish(gameID, msgs)
}
