package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinabrahms/cardchess/internal/api"
	"github.com/justinabrahms/cardchess/internal/cards"
	"github.com/justinabrahms/cardchess/internal/chess"
	"github.com/justinabrahms/cardchess/internal/game"
)

type fakeBackend struct {
	mu           sync.Mutex
	game         api.Game
	gets         int
	updates      int
	conflictNext bool
	failNext     error
	gate         chan struct{}
}

func (f *fakeBackend) GetGame(ctx context.Context, gameID string) (*api.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	g := f.game
	g.State = f.game.State.Clone()
	return &g, nil
}

func (f *fakeBackend) UpdateGameState(ctx context.Context, gameID string, patch api.StatePatch, expected int64) (*api.Game, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	if f.conflictNext || expected != f.game.State.Version {
		f.conflictNext = false
		return nil, api.ErrVersionConflict
	}

	version := f.game.State.Version
	f.game.State = patch.Apply(f.game.State)
	f.game.State.Version = version + 1
	g := f.game
	g.State = f.game.State.Clone()
	return &g, nil
}

// write simulates the opponent's client storing a new state.
func (f *fakeBackend) write(s game.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.Version = f.game.State.Version + 1
	f.game.State = s.Clone()
}

func (f *fakeBackend) state() game.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.game.State.Clone()
}

func (f *fakeBackend) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func stackedDeck(top ...cards.Card) cards.Deck {
	deck := cards.Deck{}
	for i := 0; i < cards.LowWaterMark; i++ {
		deck = append(deck, cards.New(cards.Spades, cards.Nine))
	}
	for i := len(top) - 1; i >= 0; i-- {
		deck = append(deck, top[i])
	}
	return deck
}

func fixtureState(top ...cards.Card) game.State {
	return game.State{
		FEN:     chess.StartFEN,
		Turn:    chess.White,
		Deck:    stackedDeck(top...),
		Status:  game.StatusActive,
		Moves:   []game.MoveRecord{},
		Version: 1,
	}
}

type harness struct {
	backend *fakeBackend
	rec     *Reconciler
	changes atomic.Int32
	errs    chan error
}

func start(t *testing.T, backend *fakeBackend, player chess.Color) *harness {
	t.Helper()

	session, err := game.NewSession(chess.NewEngine(), backend.state(), game.WithGameID("g1"))
	require.NoError(t, err)

	h := &harness{backend: backend, errs: make(chan error, 16)}
	h.rec = New("g1", player, session, backend,
		WithPollInterval(time.Hour),
		OnChange(func(Snapshot) { h.changes.Add(1) }),
		OnError(func(err error) { h.errs <- err }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.rec.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// the initial poll finds nothing new
	require.Eventually(t, func() bool { return backend.getCount() >= 1 }, time.Second, time.Millisecond)
	return h
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	snap, err := h.rec.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestLocalActionsArePushed(t *testing.T) {
	backend := &fakeBackend{game: api.Game{ID: "g1", State: fixtureState(cards.New(cards.Hearts, cards.Two))}}
	h := start(t, backend, chess.White)
	ctx := context.Background()

	res, err := h.rec.Draw(ctx)
	require.NoError(t, err)
	require.True(t, res.Playable())

	_, err = h.rec.Move(ctx, "a2", "a4", chess.NoPieceType)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return backend.state().Version == 3
	}, time.Second, time.Millisecond)

	remote := backend.state()
	assert.Equal(t, chess.Black, remote.Turn)
	assert.Nil(t, remote.CurrentCard)
	require.Len(t, remote.Moves, 1)

	require.Eventually(t, func() bool {
		return h.snapshot(t).State.Version == 3
	}, time.Second, time.Millisecond)
	assert.True(t, h.snapshot(t).State.Equal(remote))
	assert.Equal(t, int32(2), h.changes.Load())
}

func TestIllegalMoveIsNotPushed(t *testing.T) {
	backend := &fakeBackend{game: api.Game{ID: "g1", State: fixtureState(cards.New(cards.Hearts, cards.Two))}}
	h := start(t, backend, chess.White)
	ctx := context.Background()

	_, err := h.rec.Draw(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return backend.state().Version == 2 }, time.Second, time.Millisecond)

	_, err = h.rec.Move(ctx, "e2", "e4", chess.NoPieceType)
	assert.ErrorIs(t, err, game.ErrIllegalMove)

	assert.Never(t, func() bool { return backend.state().Version != 2 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Empty(t, h.errs)
}

func TestRemoteChangeIsAdopted(t *testing.T) {
	backend := &fakeBackend{game: api.Game{ID: "g1", State: fixtureState(cards.New(cards.Hearts, cards.Ten))}}
	h := start(t, backend, chess.White)
	ctx := context.Background()

	_, err := h.rec.Draw(ctx)
	require.NoError(t, err)
	_, err = h.rec.Select(ctx, "g1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.snapshot(t).State.Version == 2 }, time.Second, time.Millisecond)
	require.Equal(t, game.PhasePieceSelected, h.snapshot(t).Phase)

	// the opponent's client has moved on from a different history
	opponent, err := game.NewSession(chess.NewEngine(), fixtureState(cards.New(cards.Hearts, cards.Six)))
	require.NoError(t, err)
	_, err = opponent.Draw(chess.White)
	require.NoError(t, err)
	_, err = opponent.Move(chess.White, "e2", "e4", chess.NoPieceType)
	require.NoError(t, err)
	backend.write(opponent.State())

	before := h.changes.Load()
	h.rec.Nudge()

	require.Eventually(t, func() bool {
		return h.snapshot(t).State.Equal(backend.state())
	}, time.Second, time.Millisecond)

	snap := h.snapshot(t)
	assert.Equal(t, game.PhaseAwaitingCard, snap.Phase)
	assert.Empty(t, snap.Selection.From)
	assert.Equal(t, chess.Black, snap.State.Turn)
	assert.Equal(t, int64(3), snap.State.Version)
	assert.Equal(t, before+1, h.changes.Load())

	// polling the same record again changes nothing
	gets := backend.getCount()
	h.rec.Nudge()
	require.Eventually(t, func() bool { return backend.getCount() > gets }, time.Second, time.Millisecond)
	assert.Never(t, func() bool { return h.changes.Load() != before+1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.True(t, h.snapshot(t).State.Equal(backend.state()))
}

func TestVersionConflictResyncs(t *testing.T) {
	backend := &fakeBackend{
		game:         api.Game{ID: "g1", State: fixtureState(cards.New(cards.Hearts, cards.Two))},
		conflictNext: true,
	}
	h := start(t, backend, chess.White)

	_, err := h.rec.Draw(context.Background())
	require.NoError(t, err)

	select {
	case err := <-h.errs:
		assert.ErrorIs(t, err, api.ErrVersionConflict)
	case <-time.After(time.Second):
		t.Fatal("conflict was not reported")
	}

	require.Eventually(t, func() bool {
		return h.snapshot(t).State.CurrentCard == nil
	}, time.Second, time.Millisecond)
	assert.True(t, h.snapshot(t).State.Equal(backend.state()))
	assert.Equal(t, game.PhaseAwaitingCard, h.snapshot(t).Phase)
}

func TestPushFailureIsNotFatal(t *testing.T) {
	backend := &fakeBackend{
		game:     api.Game{ID: "g1", State: fixtureState(cards.New(cards.Hearts, cards.Two), cards.New(cards.Hearts, cards.Three))},
		failNext: errors.New("connection reset"),
	}
	h := start(t, backend, chess.White)

	_, err := h.rec.Draw(context.Background())
	require.NoError(t, err)

	select {
	case err := <-h.errs:
		assert.Contains(t, err.Error(), "push")
	case <-time.After(time.Second):
		t.Fatal("push failure was not reported")
	}

	// the reconciler keeps serving actions after a failure
	require.Eventually(t, func() bool {
		return h.snapshot(t).CanDraw
	}, time.Second, time.Millisecond)
	_, err = h.rec.Draw(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return backend.state().Version == 2 }, time.Second, time.Millisecond)
}

func TestPushesAreSerialized(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{
		game: api.Game{ID: "g1", State: fixtureState(cards.New(cards.Hearts, cards.Two))},
		gate: gate,
	}
	h := start(t, backend, chess.White)
	ctx := context.Background()

	_, err := h.rec.Draw(ctx)
	require.NoError(t, err)
	_, err = h.rec.Move(ctx, "a2", "a3", chess.NoPieceType)
	require.NoError(t, err)

	gate <- struct{}{}
	gate <- struct{}{}

	require.Eventually(t, func() bool { return backend.state().Version == 3 }, time.Second, time.Millisecond)
	assert.Empty(t, h.errs)
	assert.Equal(t, chess.Black, backend.state().Turn)
}

func TestStalePollsAreDiscarded(t *testing.T) {
	local := fixtureState(cards.New(cards.Hearts, cards.Two))
	session, err := game.NewSession(chess.NewEngine(), local)
	require.NoError(t, err)
	r := New("g1", chess.White, session, &fakeBackend{})

	remote := local.Clone()
	remote.Turn = chess.Black
	remote.FEN = "rnbqkbnr/pppppppp/8/8/P7/8/1PPPPPPP/RNBQKBNR b KQkq a3 0 1"
	remote.Version = 2

	tests := []struct {
		name    string
		prepare func()
	}{
		{"started before a local change", func() { r.epoch = 1 }},
		{"push in flight", func() { r.pushing = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.epoch, r.pushing, r.polling = 0, false, true
			tt.prepare()
			r.handlePoll(context.Background(), pollResult{epoch: 0, game: &api.Game{State: remote}})
			assert.True(t, session.State().Equal(local))
			assert.False(t, r.polling)
		})
	}

	t.Run("older than local", func(t *testing.T) {
		session.SetVersion(5)
		r.epoch, r.pushing = 0, false
		r.handlePoll(context.Background(), pollResult{epoch: 0, game: &api.Game{State: remote}})
		assert.True(t, session.State().Equal(local))

		r.forceResync = true
		r.handlePoll(context.Background(), pollResult{epoch: 0, game: &api.Game{State: remote}})
		assert.True(t, session.State().Equal(remote))
		assert.False(t, r.forceResync)
	})
}

func TestActionsAfterStop(t *testing.T) {
	session, err := game.NewSession(chess.NewEngine(), fixtureState())
	require.NoError(t, err)
	r := New("g1", chess.White, session, &fakeBackend{game: api.Game{State: fixtureState()}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, err = r.Draw(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
