package game

import "github.com/justinabrahms/cardchess/internal/chess"

// Oracle is the rules engine a session delegates chess legality to.
// *chess.Engine implements it.
type Oracle interface {
	Load(fen string) error
	FEN() string
	SideToMove() chess.Color
	LegalMoves() []chess.Move
	LegalMovesFrom(square string) []chess.Move
	PieceAt(square string) (chess.Color, chess.PieceType, bool)
	Apply(from, to string, promotion chess.PieceType) (*chess.MoveResult, error)
	InCheck() bool
	IsCheckmate() bool
	IsStalemate() bool
	IsDraw() bool
	IsThreefoldRepetition() bool
}

var _ Oracle = (*chess.Engine)(nil)
