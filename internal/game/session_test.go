package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinabrahms/cardchess/internal/cards"
	"github.com/justinabrahms/cardchess/internal/chess"
)

// stackedDeck returns a deck that yields top in order, over enough filler
// that no replenish happens while top is drawn.
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

func newTestSession(t *testing.T, fen string, turn chess.Color, top ...cards.Card) *Session {
	t.Helper()
	state := State{
		FEN:    fen,
		Turn:   turn,
		Deck:   stackedDeck(top...),
		Status: StatusActive,
		Moves:  []MoveRecord{},
	}
	s, err := NewSession(chess.NewEngine(), state, WithGameID("test"))
	require.NoError(t, err)
	return s
}

const checkedFEN = "4r2k/8/8/8/8/8/P7/4K3 w - - 0 1"

func TestNewStateIsReady(t *testing.T) {
	state, err := NewState()
	require.NoError(t, err)

	s, err := NewSession(chess.NewEngine(), state)
	require.NoError(t, err)

	assert.Equal(t, PhaseAwaitingCard, s.Phase())
	assert.True(t, s.CanDraw(chess.White))
	assert.False(t, s.CanDraw(chess.Black))
	assert.Len(t, s.State().Deck, cards.DeckSize)
}

func TestNewSessionRejectsBadState(t *testing.T) {
	state, err := NewState()
	require.NoError(t, err)

	state.Turn = "green"
	_, err = NewSession(chess.NewEngine(), state)
	assert.Error(t, err)

	state.Turn = chess.White
	state.FEN = "not a fen"
	_, err = NewSession(chess.NewEngine(), state)
	assert.Error(t, err)
}

func TestDrawPlayableCard(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White, cards.New(cards.Clubs, cards.Two))

	res, err := s.Draw(chess.White)
	require.NoError(t, err)

	assert.True(t, res.Playable())
	assert.ElementsMatch(t, []string{"a3", "a4"}, destinations(res.Candidates))
	assert.False(t, res.InCheck)
	assert.Equal(t, PhaseCardPending, s.Phase())

	st := s.State()
	require.NotNil(t, st.CurrentCard)
	assert.Equal(t, cards.New(cards.Clubs, cards.Two), *st.CurrentCard)
	assert.Len(t, st.Deck, cards.LowWaterMark)
	assert.Empty(t, st.Moves)

	_, err = s.Draw(chess.White)
	assert.ErrorIs(t, err, ErrCardPending)
}

func TestDrawRejectsWrongPlayer(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White, cards.New(cards.Clubs, cards.Two))

	_, err := s.Draw(chess.Black)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestDeadCardKeepsTurn(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White,
		cards.New(cards.Hearts, cards.Ace),
		cards.New(cards.Hearts, cards.Ten),
	)

	res, err := s.Draw(chess.White)
	require.NoError(t, err)
	assert.False(t, res.Playable())
	assert.Equal(t, PhaseDeadCard, s.Phase())
	assert.Equal(t, 0, res.CheckAttempts, "not in check")

	st := s.State()
	assert.Equal(t, chess.White, st.Turn)
	require.Len(t, st.Moves, 1)
	assert.True(t, st.Moves[0].FailedAttempt)
	assert.Nil(t, st.Moves[0].Move)
	assert.Equal(t, cards.New(cards.Hearts, cards.Ace), st.Moves[0].Card)

	_, err = s.Select(chess.White, "a1")
	assert.ErrorIs(t, err, ErrNoCard)

	res, err = s.Draw(chess.White)
	require.NoError(t, err)
	assert.True(t, res.Playable())
}

func TestCheckEscapeExhaustion(t *testing.T) {
	dead := []cards.Card{
		cards.New(cards.Hearts, cards.Two),
		cards.New(cards.Hearts, cards.Ten),
		cards.New(cards.Hearts, cards.Jack),
		cards.New(cards.Hearts, cards.Queen),
		cards.New(cards.Hearts, cards.Ace),
	}
	s := newTestSession(t, checkedFEN, chess.White, dead...)

	for i := 1; i < MaxCheckAttempts; i++ {
		res, err := s.Draw(chess.White)
		require.NoError(t, err)
		assert.True(t, res.InCheck)
		assert.False(t, res.Playable())
		assert.Equal(t, i, res.CheckAttempts)
		assert.False(t, res.GameOver)
		assert.Equal(t, StatusActive, s.State().Status)
	}

	res, err := s.Draw(chess.White)
	require.NoError(t, err)
	assert.True(t, res.GameOver)
	assert.Equal(t, WinnerBlack, res.Winner)

	st := s.State()
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, WinnerBlack, st.Winner)
	assert.Equal(t, MaxCheckAttempts, st.CheckAttempts)
	assert.Nil(t, st.CurrentCard)
	assert.Len(t, st.Moves, MaxCheckAttempts)
	assert.Equal(t, PhaseGameOver, s.Phase())

	_, err = s.Draw(chess.White)
	assert.ErrorIs(t, err, ErrGameOver)
	_, err = s.Draw(chess.Black)
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestCheckEscapeWithPlayableCard(t *testing.T) {
	s := newTestSession(t, checkedFEN, chess.White,
		cards.New(cards.Hearts, cards.Two),
		cards.New(cards.Hearts, cards.King),
	)

	res, err := s.Draw(chess.White)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CheckAttempts)

	res, err = s.Draw(chess.White)
	require.NoError(t, err)
	require.True(t, res.Playable())
	assert.Equal(t, 1, res.CheckAttempts, "a playable card does not count")
	assert.ElementsMatch(t, []string{"d1", "d2", "f1", "f2"}, destinations(res.Candidates))

	out, err := s.Move(chess.White, "e1", "d2", chess.NoPieceType)
	require.NoError(t, err)
	assert.False(t, out.GameOver)

	st := s.State()
	assert.Equal(t, 0, st.CheckAttempts)
	assert.Equal(t, chess.Black, st.Turn)
}

func TestMoveAlternatesTurn(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White,
		cards.New(cards.Hearts, cards.Six),
		cards.New(cards.Spades, cards.Six),
	)

	_, err := s.Draw(chess.White)
	require.NoError(t, err)
	out, err := s.Move(chess.White, "e2", "e4", chess.NoPieceType)
	require.NoError(t, err)
	assert.Equal(t, "e4", out.Result.SAN)

	st := s.State()
	assert.Equal(t, chess.Black, st.Turn)
	assert.Nil(t, st.CurrentCard)
	require.Len(t, st.Moves, 1)
	require.NotNil(t, st.Moves[0].Move)
	assert.Equal(t, "e2", st.Moves[0].Move.From)
	assert.Equal(t, chess.White, st.Moves[0].Player)
	assert.Contains(t, st.FEN, " b ")

	_, err = s.Draw(chess.White)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = s.Draw(chess.Black)
	require.NoError(t, err)
	_, err = s.Move(chess.Black, "e7", "e5", chess.NoPieceType)
	require.NoError(t, err)
	assert.Equal(t, chess.White, s.State().Turn)
}

func TestMoveOutsideCardLeavesStateUnchanged(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White, cards.New(cards.Clubs, cards.Two))
	_, err := s.Draw(chess.White)
	require.NoError(t, err)
	before := s.State()

	for _, mv := range [][2]string{{"e2", "e4"}, {"a2", "a5"}, {"g1", "f3"}, {"a7", "a6"}} {
		_, err := s.Move(chess.White, mv[0], mv[1], chess.NoPieceType)
		assert.True(t, errors.Is(err, ErrIllegalMove), "%s-%s", mv[0], mv[1])
	}

	after := s.State()
	assert.True(t, before.Equal(after))
	assert.Equal(t, PhaseCardPending, s.Phase())
}

func TestMoveWithoutCard(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White, cards.New(cards.Clubs, cards.Two))

	_, err := s.Move(chess.White, "a2", "a3", chess.NoPieceType)
	assert.ErrorIs(t, err, ErrNoCard)
}

func TestClickSelectsThenMoves(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White, cards.New(cards.Clubs, cards.Ten))
	_, err := s.Draw(chess.White)
	require.NoError(t, err)

	res, err := s.Click(chess.White, "e2")
	require.NoError(t, err)
	assert.False(t, res.Moved)
	assert.Equal(t, "e2", res.Selection.From)
	assert.Empty(t, res.Selection.Candidates, "pawn is not a knight")
	assert.Equal(t, PhasePieceSelected, s.Phase())

	res, err = s.Click(chess.White, "e7")
	require.NoError(t, err)
	assert.Empty(t, res.Selection.From, "opponent piece clears selection")
	assert.Equal(t, PhaseCardPending, s.Phase())

	res, err = s.Click(chess.White, "g1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"f3", "h3"}, destinations(res.Selection.Candidates))

	res, err = s.Click(chess.White, "f3")
	require.NoError(t, err)
	assert.True(t, res.Moved)
	assert.Equal(t, "Nf3", res.Outcome.Result.SAN)
	assert.Equal(t, PhaseAwaitingCard, s.Phase())
	assert.Empty(t, s.Selection().From)
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	s := newTestSession(t, "8/P6k/8/8/8/8/8/K7 w - - 0 1", chess.White, cards.New(cards.Hearts, cards.Two))
	_, err := s.Draw(chess.White)
	require.NoError(t, err)

	out, err := s.Move(chess.White, "a7", "a8", chess.NoPieceType)
	require.NoError(t, err)
	assert.Equal(t, chess.Queen, out.Move.Promotion)
	assert.Contains(t, s.State().FEN, "Q7/")
}

func TestUnderPromotion(t *testing.T) {
	s := newTestSession(t, "8/P6k/8/8/8/8/8/K7 w - - 0 1", chess.White, cards.NewJoker(cards.Black))
	_, err := s.Draw(chess.White)
	require.NoError(t, err)

	out, err := s.Move(chess.White, "a7", "a8", chess.Knight)
	require.NoError(t, err)
	assert.Equal(t, chess.Knight, out.Move.Promotion)
	assert.Contains(t, s.State().FEN, "N7/")
}

func TestCheckmateEndsGame(t *testing.T) {
	s := newTestSession(t,
		"rnbqkbnr/pppp1ppp/8/4p3/6P1/5P2/PPPPP2P/RNBQKBNR b KQkq g3 0 2",
		chess.Black,
		cards.New(cards.Spades, cards.Queen),
	)

	_, err := s.Draw(chess.Black)
	require.NoError(t, err)
	out, err := s.Move(chess.Black, "d8", "h4", chess.NoPieceType)
	require.NoError(t, err)

	assert.True(t, out.GameOver)
	assert.Equal(t, WinnerBlack, out.Winner)
	st := s.State()
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, WinnerBlack, st.Winner)

	_, err = s.Draw(chess.White)
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestStalemateIsDraw(t *testing.T) {
	s := newTestSession(t, "7k/8/5Q2/6K1/8/8/8/8 w - - 0 1", chess.White, cards.New(cards.Hearts, cards.Queen))

	_, err := s.Draw(chess.White)
	require.NoError(t, err)
	out, err := s.Move(chess.White, "f6", "f7", chess.NoPieceType)
	require.NoError(t, err)

	assert.True(t, out.GameOver)
	assert.Equal(t, WinnerDraw, out.Winner)
	assert.Equal(t, StatusCompleted, s.State().Status)
}

func TestReshuffle(t *testing.T) {
	s := newTestSession(t, checkedFEN, chess.White,
		cards.New(cards.Hearts, cards.Two),
		cards.New(cards.Hearts, cards.King),
	)

	_, err := s.Draw(chess.White)
	require.NoError(t, err)
	require.Equal(t, PhaseDeadCard, s.Phase())

	require.NoError(t, s.Reshuffle(chess.White))
	st := s.State()
	assert.Len(t, st.Deck, cards.DeckSize)
	assert.Equal(t, 1, st.CheckAttempts, "reshuffle keeps the escape count")

	assert.ErrorIs(t, s.Reshuffle(chess.Black), ErrNotYourTurn)

	s2 := newTestSession(t, chess.StartFEN, chess.White, cards.New(cards.Hearts, cards.Two))
	_, err = s2.Draw(chess.White)
	require.NoError(t, err)
	assert.ErrorIs(t, s2.Reshuffle(chess.White), ErrCardPending)
}

func TestAbandon(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White, cards.New(cards.Hearts, cards.Two))

	require.NoError(t, s.Abandon(chess.Black))
	st := s.State()
	assert.Equal(t, StatusAbandoned, st.Status)
	assert.Equal(t, NoWinner, st.Winner)
	assert.Equal(t, PhaseGameOver, s.Phase())

	assert.ErrorIs(t, s.Abandon(chess.White), ErrGameOver)
}

func TestAdoptIsIdempotent(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White, cards.New(cards.Clubs, cards.Ten))
	_, err := s.Draw(chess.White)
	require.NoError(t, err)
	_, err = s.Select(chess.White, "g1")
	require.NoError(t, err)

	remote := newTestSession(t, chess.StartFEN, chess.White, cards.New(cards.Hearts, cards.Six))
	_, err = remote.Draw(chess.White)
	require.NoError(t, err)
	_, err = remote.Move(chess.White, "e2", "e4", chess.NoPieceType)
	require.NoError(t, err)
	authoritative := remote.State()
	authoritative.Version = 7

	changed, err := s.Adopt(authoritative)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, s.Selection().From, "divergence clears selection")
	assert.Equal(t, PhaseAwaitingCard, s.Phase())
	assert.Equal(t, chess.Black, s.State().Turn)
	assert.Equal(t, int64(7), s.State().Version)

	first := s.State()
	changed, err = s.Adopt(authoritative)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, s.State())

	// the adopted position is live
	_, err = s.Draw(chess.Black)
	require.NoError(t, err)
}

func TestAdoptRestoresPendingCard(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White)

	remote := newTestSession(t, chess.StartFEN, chess.White, cards.New(cards.Hearts, cards.Two))
	_, err := remote.Draw(chess.White)
	require.NoError(t, err)

	changed, err := s.Adopt(remote.State())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, PhaseCardPending, s.Phase())
	assert.Len(t, s.Playable(), 2)
}

func TestAdoptRejectsInvalidState(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White)
	bad := s.State()
	bad.Status = "paused"

	_, err := s.Adopt(bad)
	assert.Error(t, err)
	assert.Equal(t, StatusActive, s.State().Status)
}

func TestSetVersionOnlyAdvances(t *testing.T) {
	s := newTestSession(t, chess.StartFEN, chess.White)
	s.SetVersion(3)
	s.SetVersion(2)
	assert.Equal(t, int64(3), s.State().Version)
}
