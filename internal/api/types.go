package api

import (
	"encoding/json"
	"time"

	"github.com/justinabrahms/cardchess/internal/cards"
	"github.com/justinabrahms/cardchess/internal/chess"
	"github.com/justinabrahms/cardchess/internal/game"
)

// Game is the persisted record of one game.
type Game struct {
	ID          string     `json:"game_id"`
	PlayerWhite string     `json:"player_white"`
	PlayerBlack string     `json:"player_black"`
	State       game.State `json:"game_state"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Seat returns the color playerID plays in g.
func (g Game) Seat(playerID string) (chess.Color, bool) {
	switch {
	case playerID == "":
		return "", false
	case g.PlayerWhite == playerID:
		return chess.White, true
	case g.PlayerBlack == playerID:
		return chess.Black, true
	}
	return "", false
}

// Credentials are returned by login and refresh.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	PlayerID     string `json:"player_id"`
}

type LoginRequest struct {
	PlayerID string `json:"player_id,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type CreateGameRequest struct {
	Color string `json:"color"`
}

type EndGameRequest struct {
	Winner game.Winner `json:"winner"`
}

// StatePatch carries the fields of a state update. Nil fields are left as
// they are; ClearCard removes the current card.
type StatePatch struct {
	FEN           *string           `json:"fen,omitempty"`
	Turn          *chess.Color      `json:"turn,omitempty"`
	CurrentCard   *cards.Card       `json:"current_card,omitempty"`
	ClearCard     bool              `json:"clear_card,omitempty"`
	Deck          cards.Deck        `json:"cards_deck,omitempty"`
	CheckAttempts *int              `json:"check_attempts,omitempty"`
	Status        *game.Status      `json:"status,omitempty"`
	Winner        *game.Winner      `json:"winner,omitempty"`
	Moves         []game.MoveRecord `json:"moves,omitempty"`
}

// FullPatch describes every field of s.
func FullPatch(s game.State) StatePatch {
	s = s.Clone()
	p := StatePatch{
		FEN:           &s.FEN,
		Turn:          &s.Turn,
		CurrentCard:   s.CurrentCard,
		ClearCard:     s.CurrentCard == nil,
		Deck:          s.Deck,
		CheckAttempts: &s.CheckAttempts,
		Status:        &s.Status,
		Winner:        &s.Winner,
		Moves:         s.Moves,
	}
	if p.Moves == nil {
		p.Moves = []game.MoveRecord{}
	}
	return p
}

// Apply returns s with the patch applied. s is not modified.
func (p StatePatch) Apply(s game.State) game.State {
	out := s.Clone()
	if p.FEN != nil {
		out.FEN = *p.FEN
	}
	if p.Turn != nil {
		out.Turn = *p.Turn
	}
	switch {
	case p.ClearCard:
		out.CurrentCard = nil
	case p.CurrentCard != nil:
		c := *p.CurrentCard
		out.CurrentCard = &c
	}
	if p.Deck != nil {
		out.Deck = p.Deck.Clone()
	}
	if p.CheckAttempts != nil {
		out.CheckAttempts = *p.CheckAttempts
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Winner != nil {
		out.Winner = *p.Winner
	}
	if p.Moves != nil {
		out.Moves = game.State{Moves: p.Moves}.Clone().Moves
	}
	return out
}

type UpdateStateRequest struct {
	StatePatch
	ExpectedVersion int64 `json:"expected_version"`
}

// Envelope wraps every response body.
type Envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MessageVersionConflict is the envelope message of a 409 on state update.
const MessageVersionConflict = "version_conflict"

// Update types pushed on a game's websocket feed.
const (
	UpdateJoined    = "joined"
	UpdateState     = "state"
	UpdateEnded     = "ended"
	UpdateAbandoned = "abandoned"
)

// GameUpdate tells subscribers a game changed.
type GameUpdate struct {
	GameID  string `json:"game_id"`
	Type    string `json:"type"`
	Version int64  `json:"version"`
	Game    *Game  `json:"game,omitempty"`
}
