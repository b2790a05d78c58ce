package game

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/justinabrahms/cardchess/internal/cards"
	"github.com/justinabrahms/cardchess/internal/chess"
)

type Phase string

const (
	PhaseAwaitingCard  Phase = "awaiting_card"
	PhaseDeadCard      Phase = "dead_card"
	PhaseCardPending   Phase = "card_pending"
	PhasePieceSelected Phase = "piece_selected"
	PhaseGameOver      Phase = "game_over"
)

// Selection is the client-only choice of an origin square and the moves
// the current card allows from it.
type Selection struct {
	From       string       `json:"from,omitempty"`
	Candidates []chess.Move `json:"candidates,omitempty"`
}

func (s Selection) destination(to string) bool {
	for _, m := range s.Candidates {
		if m.To == to {
			return true
		}
	}
	return false
}

type DrawResult struct {
	Card          cards.Card
	Candidates    []chess.Move
	InCheck       bool
	CheckAttempts int
	GameOver      bool
	Winner        Winner
}

func (r DrawResult) Playable() bool {
	return len(r.Candidates) > 0
}

type MoveOutcome struct {
	Move     chess.Move
	Result   chess.MoveResult
	GameOver bool
	Winner   Winner
}

type ClickResult struct {
	Selection Selection
	Moved     bool
	Outcome   MoveOutcome
}

// Session drives one game through card draw, piece selection and move
// application. It is not safe for concurrent use; the reconciler owns it.
type Session struct {
	gameID    string
	oracle    Oracle
	state     State
	selection Selection
	playable  []chess.Move
	logger    zerolog.Logger
}

type Option func(*Session)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithGameID(id string) Option {
	return func(s *Session) {
		s.gameID = id
	}
}

// NewSession loads state into oracle and returns a session positioned on it.
func NewSession(oracle Oracle, state State, opts ...Option) (*Session, error) {
	s := &Session{
		oracle: oracle,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game state: %w", err)
	}
	if err := oracle.Load(state.FEN); err != nil {
		return nil, err
	}
	s.state = state.Clone()
	s.refreshPlayable()
	return s, nil
}

func (s *Session) GameID() string {
	return s.gameID
}

// State returns a copy of the current state.
func (s *Session) State() State {
	return s.state.Clone()
}

func (s *Session) Selection() Selection {
	sel := s.selection
	sel.Candidates = append([]chess.Move(nil), s.selection.Candidates...)
	return sel
}

// Playable lists the moves anywhere on the board the current card allows.
func (s *Session) Playable() []chess.Move {
	return append([]chess.Move(nil), s.playable...)
}

func (s *Session) InCheck() bool {
	return s.oracle.InCheck()
}

func (s *Session) Phase() Phase {
	switch {
	case s.state.Status != StatusActive:
		return PhaseGameOver
	case s.state.CurrentCard == nil:
		return PhaseAwaitingCard
	case len(s.playable) == 0:
		return PhaseDeadCard
	case s.selection.From != "":
		return PhasePieceSelected
	default:
		return PhaseCardPending
	}
}

// CanDraw reports whether player may draw right now.
func (s *Session) CanDraw(player chess.Color) bool {
	if s.state.Turn != player {
		return false
	}
	phase := s.Phase()
	return phase == PhaseAwaitingCard || phase == PhaseDeadCard
}

func (s *Session) Draw(player chess.Color) (DrawResult, error) {
	if err := s.guardTurn(player); err != nil {
		return DrawResult{}, err
	}
	if s.Phase() != PhaseAwaitingCard && s.Phase() != PhaseDeadCard {
		return DrawResult{}, ErrCardPending
	}

	next := s.state.Clone()
	if _, err := next.Deck.Replenish(); err != nil {
		return DrawResult{}, err
	}
	card, err := next.Deck.Draw()
	if err != nil {
		s.logger.Error().Err(err).Str("gameID", s.gameID).Str("op", "draw").Msg("Draw from empty deck")
		return DrawResult{}, err
	}
	if _, err := next.Deck.Replenish(); err != nil {
		return DrawResult{}, err
	}

	candidates := AnyMovesForCard(s.oracle, card)
	inCheck := s.oracle.InCheck()

	attempts, exhausted := trackCheckEscape(next.CheckAttempts, inCheck, len(candidates) > 0)
	next.CheckAttempts = attempts
	next.CurrentCard = &card

	if len(candidates) == 0 {
		next.Moves = append(next.Moves, MoveRecord{Card: card, Player: player, FailedAttempt: true})
	}

	if exhausted {
		next.CurrentCard = nil
		next.Status = StatusCompleted
		next.Winner = winnerOf(player.Opponent())
		s.logger.Info().Str("gameID", s.gameID).Str("winner", string(next.Winner)).Msg("Check escape budget exhausted")
	}

	s.state = next
	s.playable = candidates
	s.selection = Selection{}

	return DrawResult{
		Card:          card,
		Candidates:    append([]chess.Move(nil), candidates...),
		InCheck:       inCheck,
		CheckAttempts: next.CheckAttempts,
		GameOver:      exhausted,
		Winner:        next.Winner,
	}, nil
}

// Select picks an origin square. Anything but one of player's own pieces
// clears the selection.
func (s *Session) Select(player chess.Color, square string) (Selection, error) {
	if err := s.guardCard(player); err != nil {
		return Selection{}, err
	}

	color, _, ok := s.oracle.PieceAt(square)
	if !ok || color != player {
		s.selection = Selection{}
		return Selection{}, nil
	}

	s.selection = Selection{
		From:       square,
		Candidates: MovesForOrigin(s.oracle, square, *s.state.CurrentCard, player),
	}
	return s.Selection(), nil
}

// Click moves to square when it is a candidate destination of the current
// selection, and selects it otherwise.
func (s *Session) Click(player chess.Color, square string) (ClickResult, error) {
	if err := s.guardCard(player); err != nil {
		return ClickResult{}, err
	}

	if s.selection.From != "" && s.selection.destination(square) {
		outcome, err := s.Move(player, s.selection.From, square, chess.NoPieceType)
		if err != nil {
			return ClickResult{}, err
		}
		return ClickResult{Moved: true, Outcome: outcome}, nil
	}

	sel, err := s.Select(player, square)
	return ClickResult{Selection: sel}, err
}

// Move plays from→to with the current card. A pawn reaching the last rank
// promotes to a queen unless promotion says otherwise. Rejected moves wrap
// ErrIllegalMove and leave the session unchanged.
func (s *Session) Move(player chess.Color, from, to string, promotion chess.PieceType) (MoveOutcome, error) {
	if err := s.guardCard(player); err != nil {
		return MoveOutcome{}, err
	}

	card := *s.state.CurrentCard
	move, ok := pickCandidate(MovesForOrigin(s.oracle, from, card, player), to, promotion)
	if !ok {
		return MoveOutcome{}, fmt.Errorf("%w: %s to %s with %s", ErrIllegalMove, from, to, card)
	}

	result, err := s.oracle.Apply(move.From, move.To, move.Promotion)
	if err != nil {
		return MoveOutcome{}, err
	}

	next := s.state.Clone()
	next.FEN = s.oracle.FEN()
	next.Turn = s.oracle.SideToMove()
	next.CheckAttempts = 0
	next.CurrentCard = nil
	played := move
	next.Moves = append(next.Moves, MoveRecord{Card: card, Move: &played, Player: player})

	switch {
	case s.oracle.IsCheckmate():
		next.Status = StatusCompleted
		next.Winner = winnerOf(player)
	case s.oracle.IsStalemate(), s.oracle.IsDraw(), s.oracle.IsThreefoldRepetition():
		next.Status = StatusCompleted
		next.Winner = WinnerDraw
	}

	s.state = next
	s.playable = nil
	s.selection = Selection{}

	return MoveOutcome{
		Move:     move,
		Result:   *result,
		GameOver: next.Status != StatusActive,
		Winner:   next.Winner,
	}, nil
}

// Reshuffle replaces the deck with a fresh one. It is only offered while no
// playable card is held. check_attempts is intentionally left alone, unlike
// a fresh deal: a reshuffle must never refill the check-escape budget.
func (s *Session) Reshuffle(player chess.Color) error {
	if err := s.guardTurn(player); err != nil {
		return err
	}
	if s.Phase() != PhaseAwaitingCard && s.Phase() != PhaseDeadCard {
		return ErrCardPending
	}

	deck, err := cards.NewDeck()
	if err != nil {
		return err
	}
	s.state.Deck = deck
	s.selection = Selection{}
	return nil
}

// Abandon ends the game without a winner. Either player may abandon.
func (s *Session) Abandon(player chess.Color) error {
	if s.state.Status != StatusActive {
		return ErrGameOver
	}
	if !player.Valid() {
		return fmt.Errorf("invalid player %q", player)
	}
	s.state.Status = StatusAbandoned
	s.state.CurrentCard = nil
	s.playable = nil
	s.selection = Selection{}
	return nil
}

// Adopt replaces local state with an authoritative copy. It reports whether
// anything but the version changed; on change the selection is cleared.
func (s *Session) Adopt(state State) (bool, error) {
	if err := state.Validate(); err != nil {
		return false, fmt.Errorf("invalid game state: %w", err)
	}

	if state.Equal(s.state) {
		s.SetVersion(state.Version)
		return false, nil
	}

	if state.FEN != s.oracle.FEN() {
		if err := s.oracle.Load(state.FEN); err != nil {
			return false, err
		}
	}

	s.state = state.Clone()
	s.selection = Selection{}
	s.refreshPlayable()
	return true, nil
}

// SetVersion advances the version after a confirmed write. It never moves
// backwards.
func (s *Session) SetVersion(v int64) {
	if v > s.state.Version {
		s.state.Version = v
	}
}

func (s *Session) refreshPlayable() {
	s.playable = nil
	if s.state.Status == StatusActive && s.state.CurrentCard != nil {
		s.playable = AnyMovesForCard(s.oracle, *s.state.CurrentCard)
	}
}

func (s *Session) guardTurn(player chess.Color) error {
	if s.state.Status != StatusActive {
		return ErrGameOver
	}
	if s.state.Turn != player {
		return ErrNotYourTurn
	}
	return nil
}

func (s *Session) guardCard(player chess.Color) error {
	if err := s.guardTurn(player); err != nil {
		return err
	}
	if s.state.CurrentCard == nil || len(s.playable) == 0 {
		return ErrNoCard
	}
	return nil
}

func pickCandidate(candidates []chess.Move, to string, promotion chess.PieceType) (chess.Move, bool) {
	want := promotion
	for _, m := range candidates {
		if m.To != to {
			continue
		}
		if m.Promotion == chess.NoPieceType {
			return m, true
		}
		if want == chess.NoPieceType {
			want = chess.Queen
		}
		if m.Promotion == want {
			return m, true
		}
	}
	return chess.Move{}, false
}
