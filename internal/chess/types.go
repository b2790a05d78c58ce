package chess

import "errors"

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrInvalidSquare = errors.New("invalid square notation")
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side. Unknown colors map to white.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool {
	return c == White || c == Black
}

type PieceType string

const (
	NoPieceType PieceType = ""
	Pawn        PieceType = "pawn"
	Knight      PieceType = "knight"
	Bishop      PieceType = "bishop"
	Rook        PieceType = "rook"
	Queen       PieceType = "queen"
	King        PieceType = "king"
)

// Move is a legal move as reported by the engine. Squares use algebraic
// notation ("e2").
type Move struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Piece     PieceType `json:"piece"`
	Promotion PieceType `json:"promotion,omitempty"`
}

// File returns the origin file letter, or 0 for a malformed origin.
func (m Move) File() byte {
	if len(m.From) != 2 {
		return 0
	}
	return m.From[0]
}

func (m Move) String() string {
	s := m.From + m.To
	if m.Promotion != NoPieceType {
		s += promotionLetter(m.Promotion)
	}
	return s
}

type MoveResult struct {
	From      string `json:"from"`
	To        string `json:"to"`
	SAN       string `json:"san"`
	FEN       string `json:"fen"`
	Check     bool   `json:"check"`
	Checkmate bool   `json:"checkmate"`
	Draw      bool   `json:"draw"`
	GameOver  bool   `json:"gameOver"`
	Result    string `json:"result"`
}

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
