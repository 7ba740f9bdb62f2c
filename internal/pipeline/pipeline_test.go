package pipeline_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twindm/internal/ai"
	"twindm/internal/models"
	"twindm/internal/pipeline"
)

const (
	fastModel = "fast-model"
	deepModel = "deep-model"
)

// memStore is an in-memory stand-in for the Postgres store with real
// rollback semantics: a failed tx restores the pre-tx snapshot.
type memStore struct {
	mu    sync.Mutex
	games map[uuid.UUID]models.Game
	msgs  []models.Message
	seq   int64

	// failOnAppend makes the nth AppendMessage call of the store's lifetime
	// fail; zero disables.
	failOnAppend int
	appendCalls  int
}

func newMemStore() *memStore {
	return &memStore{games: make(map[uuid.UUID]models.Game)}
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx pipeline.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapGames := make(map[uuid.UUID]models.Game, len(s.games))
	for k, v := range s.games {
		snapGames[k] = v
	}
	snapMsgs := append([]models.Message(nil), s.msgs...)
	snapSeq := s.seq

	if err := fn(&memTx{s: s}); err != nil {
		s.games = snapGames
		s.msgs = snapMsgs
		s.seq = snapSeq
		return err
	}
	return nil
}

func (s *memStore) laneMessages(gameID uuid.UUID, lane models.Lane) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.msgs {
		if m.GameID == gameID && m.DMVersion == lane {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type memTx struct {
	s *memStore
}

func (t *memTx) CreateGame(ctx context.Context, g *models.Game) error {
	g.ID = uuid.New()
	g.CreatedAt = time.Now()
	t.s.games[g.ID] = *g
	return nil
}

func (t *memTx) GameForOwner(ctx context.Context, ownerID, gameID uuid.UUID) (models.Game, error) {
	g, ok := t.s.games[gameID]
	if !ok || g.UserID != ownerID {
		return models.Game{}, pipeline.ErrNotFound
	}
	return g, nil
}

func (t *memTx) Messages(ctx context.Context, gameID uuid.UUID) ([]models.Message, error) {
	var out []models.Message
	for _, m := range t.s.msgs {
		if m.GameID == gameID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *memTx) AppendMessage(ctx context.Context, m *models.Message) error {
	t.s.appendCalls++
	if t.s.failOnAppend > 0 && t.s.appendCalls == t.s.failOnAppend {
		return errors.New("disk on fire")
	}
	t.s.seq++
	m.Seq = t.s.seq
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	t.s.msgs = append(t.s.msgs, *m)
	return nil
}

type genCall struct {
	model   string
	history []ai.Turn
	input   string
}

// fakeGateway replies deterministically and degrades for listed models.
type fakeGateway struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []genCall
}

func (g *fakeGateway) Generate(ctx context.Context, cfg ai.ModelConfig, systemPrompt string, history []ai.Turn, input string) ai.Result {
	g.mu.Lock()
	g.calls = append(g.calls, genCall{model: cfg.Model, history: history, input: input})
	g.mu.Unlock()

	if g.fail[cfg.Model] {
		return ai.Degraded(cfg.Model)
	}
	return ai.Result{Text: cfg.Model + ": " + input, Model: cfg.Model}
}

func (g *fakeGateway) callsFor(model string) []genCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []genCall
	for _, c := range g.calls {
		if c.model == model {
			out = append(out, c)
		}
	}
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	events [][]models.Message
}

func (n *fakeNotifier) Publish(gameID uuid.UUID, msgs []models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, msgs)
}

func newTestPipeline(store *memStore, gw *fakeGateway, notifier pipeline.Notifier) *pipeline.Pipeline {
	log := logrus.New()
	log.SetOutput(io.Discard)
	fast := ai.ModelConfig{Model: fastModel, ThinkingBudget: 0}
	deliberate := ai.ModelConfig{Model: deepModel, ThinkingBudget: 1024}
	return pipeline.New(store, gw, fast, deliberate, notifier, log)
}

func TestStartGameSeedsBothLanes(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := newTestPipeline(store, gw, nil)

	owner := uuid.New()
	result, err := p.StartGame(context.Background(), owner, "The Iron Door", "You are a DM.")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, result.Game.ID)
	assert.Equal(t, owner, result.Game.UserID)
	require.Len(t, result.Openings, 2)

	for i, lane := range models.Lanes {
		assert.Equal(t, lane, result.Openings[i].DMVersion)
		assert.Equal(t, models.SenderAI, result.Openings[i].Sender)
	}
	assert.Equal(t, 2, store.messageCount())

	// both lanes were called with empty history
	require.Len(t, gw.callsFor(fastModel), 1)
	require.Len(t, gw.callsFor(deepModel), 1)
	assert.Empty(t, gw.callsFor(fastModel)[0].history)
}

func TestSubmitActionPersistsExactlyFourMessages(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := newTestPipeline(store, gw, nil)

	owner := uuid.New()
	start, err := p.StartGame(context.Background(), owner, "T", "P")
	require.NoError(t, err)
	gameID := start.Game.ID

	before1 := len(store.laneMessages(gameID, models.LaneFast))
	before2 := len(store.laneMessages(gameID, models.LaneDeliberate))

	result, err := p.SubmitAction(context.Background(), owner, gameID, "open the door")
	require.NoError(t, err)

	assert.Equal(t, before1+2, len(store.laneMessages(gameID, models.LaneFast)))
	assert.Equal(t, before2+2, len(store.laneMessages(gameID, models.LaneDeliberate)))
	assert.Equal(t, 6, store.messageCount())
	assert.Len(t, result.Responses, 6)
}

func TestSubmitActionLaneOrderingAndPairing(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := newTestPipeline(store, gw, nil)

	owner := uuid.New()
	start, err := p.StartGame(context.Background(), owner, "T", "P")
	require.NoError(t, err)
	gameID := start.Game.ID

	_, err = p.SubmitAction(context.Background(), owner, gameID, "open the door")
	require.NoError(t, err)

	for _, lane := range models.Lanes {
		msgs := store.laneMessages(gameID, lane)
		require.Len(t, msgs, 3)
		assert.Equal(t, models.SenderAI, msgs[0].Sender)
		assert.Equal(t, models.SenderUser, msgs[1].Sender)
		assert.Equal(t, models.SenderAI, msgs[2].Sender)
		assert.Equal(t, "open the door", msgs[1].Text)
	}
}

func TestSubmitActionReplaysLaneLocalHistory(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := newTestPipeline(store, gw, nil)

	owner := uuid.New()
	start, err := p.StartGame(context.Background(), owner, "T", "P")
	require.NoError(t, err)

	_, err = p.SubmitAction(context.Background(), owner, start.Game.ID, "open the door")
	require.NoError(t, err)

	for _, model := range []string{fastModel, deepModel} {
		calls := gw.callsFor(model)
		require.Len(t, calls, 2)
		turn := calls[1]
		assert.Equal(t, "open the door", turn.input)
		// only this lane's opener, not the other lane's
		require.Len(t, turn.history, 1)
		assert.Equal(t, ai.RoleModel, turn.history[0].Role)
		assert.Equal(t, model+": Begin the adventure by describing the opening scene.", turn.history[0].Text)
	}
}

func TestSubmitActionDegradedLaneStillCommits(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{fail: map[string]bool{deepModel: true}}
	p := newTestPipeline(store, gw, nil)

	owner := uuid.New()
	start, err := p.StartGame(context.Background(), owner, "T", "P")
	require.NoError(t, err)

	_, err = p.SubmitAction(context.Background(), owner, start.Game.ID, "open the door")
	require.NoError(t, err)

	fastMsgs := store.laneMessages(start.Game.ID, models.LaneFast)
	deepMsgs := store.laneMessages(start.Game.ID, models.LaneDeliberate)
	require.Len(t, fastMsgs, 3)
	require.Len(t, deepMsgs, 3)

	assert.Equal(t, fastModel+": open the door", fastMsgs[2].Text)
	assert.Equal(t, ai.Degraded(deepModel).Text, deepMsgs[2].Text)
}

func TestSubmitActionOwnershipRejectedBeforeMutation(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := newTestPipeline(store, gw, nil)

	owner := uuid.New()
	start, err := p.StartGame(context.Background(), owner, "T", "P")
	require.NoError(t, err)
	callsBefore := len(gw.calls)

	_, err = p.SubmitAction(context.Background(), uuid.New(), start.Game.ID, "open the door")
	assert.ErrorIs(t, err, pipeline.ErrNotFound)

	_, err = p.SubmitAction(context.Background(), owner, uuid.New(), "open the door")
	assert.ErrorIs(t, err, pipeline.ErrNotFound)

	assert.Equal(t, 2, store.messageCount(), "no messages may be written on rejection")
	assert.Equal(t, callsBefore, len(gw.calls), "no model may be called on rejection")
}

func TestSubmitActionStorageFailureRollsBackWholeTurn(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := newTestPipeline(store, gw, nil)

	owner := uuid.New()
	start, err := p.StartGame(context.Background(), owner, "T", "P")
	require.NoError(t, err)

	// the 6th append overall is the turn's last AI insert
	store.failOnAppend = 6
	_, err = p.SubmitAction(context.Background(), owner, start.Game.ID, "open the door")
	require.Error(t, err)
	assert.NotErrorIs(t, err, pipeline.ErrNotFound)

	assert.Equal(t, 2, store.messageCount(), "a partial turn must never persist")
}

func TestTurnEventsPublishedAfterCommit(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(store, gw, notifier)

	owner := uuid.New()
	start, err := p.StartGame(context.Background(), owner, "T", "P")
	require.NoError(t, err)
	_, err = p.SubmitAction(context.Background(), owner, start.Game.ID, "open the door")
	require.NoError(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.events, 2)
	assert.Len(t, notifier.events[0], 2)
	assert.Len(t, notifier.events[1], 4)
}

func TestStartGameDegradedOpeningStillCreatesGame(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{fail: map[string]bool{fastModel: true, deepModel: true}}
	p := newTestPipeline(store, gw, nil)

	result, err := p.StartGame(context.Background(), uuid.New(), "T", "P")
	require.NoError(t, err)
	require.Len(t, result.Openings, 2)
	assert.Equal(t, ai.Degraded(fastModel).Text, result.Openings[0].Text)
	assert.Equal(t, ai.Degraded(deepModel).Text, result.Openings[1].Text)
}
