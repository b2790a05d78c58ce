package game

import (
	"fmt"
	"slices"
	"strings"

	"github.com/justinabrahms/cardchess/internal/cards"
	"github.com/justinabrahms/cardchess/internal/chess"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusCompleted || s == StatusAbandoned
}

// Winner is empty until the game completes.
type Winner string

const (
	NoWinner    Winner = ""
	WinnerWhite Winner = "white"
	WinnerBlack Winner = "black"
	WinnerDraw  Winner = "draw"
)

func (w Winner) Valid() bool {
	switch w {
	case NoWinner, WinnerWhite, WinnerBlack, WinnerDraw:
		return true
	}
	return false
}

func winnerOf(c chess.Color) Winner {
	if c == chess.White {
		return WinnerWhite
	}
	return WinnerBlack
}

// MoveRecord is one entry of the append-only history. Move is nil for a
// failed attempt.
type MoveRecord struct {
	Card          cards.Card  `json:"card"`
	Move          *chess.Move `json:"move,omitempty"`
	Player        chess.Color `json:"player"`
	FailedAttempt bool        `json:"isFailedAttempt,omitempty"`
}

func (r MoveRecord) Equal(o MoveRecord) bool {
	if r.Card != o.Card || r.Player != o.Player || r.FailedAttempt != o.FailedAttempt {
		return false
	}
	if r.Move == nil || o.Move == nil {
		return r.Move == nil && o.Move == nil
	}
	return *r.Move == *o.Move
}

// State is the persisted game state exchanged with the backend.
type State struct {
	FEN           string       `json:"fen"`
	Turn          chess.Color  `json:"turn"`
	CurrentCard   *cards.Card  `json:"current_card"`
	Deck          cards.Deck   `json:"cards_deck"`
	CheckAttempts int          `json:"check_attempts"`
	Status        Status       `json:"status"`
	Winner        Winner       `json:"winner,omitempty"`
	Moves         []MoveRecord `json:"moves"`
	Version       int64        `json:"version"`
}

// NewState returns the state of a game that has not started yet.
func NewState() (State, error) {
	deck, err := cards.NewDeck()
	if err != nil {
		return State{}, err
	}
	return State{
		FEN:    chess.StartFEN,
		Turn:   chess.White,
		Deck:   deck,
		Status: StatusActive,
		Moves:  []MoveRecord{},
	}, nil
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.CurrentCard != nil {
		c := *s.CurrentCard
		out.CurrentCard = &c
	}
	out.Deck = s.Deck.Clone()
	if s.Moves != nil {
		out.Moves = make([]MoveRecord, len(s.Moves))
		for i, m := range s.Moves {
			out.Moves[i] = m
			if m.Move != nil {
				mv := *m.Move
				out.Moves[i].Move = &mv
			}
		}
	}
	return out
}

// Equal compares everything but Version. Nil and empty slices are equal.
func (s State) Equal(o State) bool {
	if s.FEN != o.FEN || s.Turn != o.Turn || s.CheckAttempts != o.CheckAttempts ||
		s.Status != o.Status || s.Winner != o.Winner {
		return false
	}
	if !sameCard(s.CurrentCard, o.CurrentCard) {
		return false
	}
	if !slices.Equal(s.Deck, o.Deck) {
		return false
	}
	return slices.EqualFunc(s.Moves, o.Moves, MoveRecord.Equal)
}

// Validate checks the shape of a state received from outside.
func (s State) Validate() error {
	if !s.Turn.Valid() {
		return fmt.Errorf("invalid turn %q", s.Turn)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid status %q", s.Status)
	}
	if !s.Winner.Valid() {
		return fmt.Errorf("invalid winner %q", s.Winner)
	}
	if side, ok := sideToMove(s.FEN); !ok {
		return fmt.Errorf("invalid fen %q", s.FEN)
	} else if side != s.Turn {
		return fmt.Errorf("turn %s but fen has %s to move", s.Turn, side)
	}
	switch s.Status {
	case StatusActive:
		if s.Winner != NoWinner {
			return fmt.Errorf("active game has winner %q", s.Winner)
		}
	case StatusCompleted:
		if s.Winner == NoWinner {
			return fmt.Errorf("completed game has no winner")
		}
	}
	if s.Status != StatusActive && s.CurrentCard != nil {
		return fmt.Errorf("%s game holds a card", s.Status)
	}
	if s.CheckAttempts < 0 || s.CheckAttempts > MaxCheckAttempts {
		return fmt.Errorf("check attempts %d out of range", s.CheckAttempts)
	}
	if s.CurrentCard != nil {
		if err := s.CurrentCard.Validate(); err != nil {
			return fmt.Errorf("current card: %w", err)
		}
	}
	if err := s.Deck.Validate(); err != nil {
		return fmt.Errorf("deck: %w", err)
	}
	for i, m := range s.Moves {
		if err := m.Card.Validate(); err != nil {
			return fmt.Errorf("move %d: %w", i, err)
		}
		if !m.Player.Valid() {
			return fmt.Errorf("move %d: invalid player %q", i, m.Player)
		}
		if m.Move == nil && !m.FailedAttempt {
			return fmt.Errorf("move %d: missing move", i)
		}
	}
	return nil
}

// sideToMove reads the active color field of a FEN.
func sideToMove(fen string) (chess.Color, bool) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "", false
	}
	switch fields[1] {
	case "w":
		return chess.White, true
	case "b":
		return chess.Black, true
	}
	return "", false
}

func sameCard(a, b *cards.Card) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
