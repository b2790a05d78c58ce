package game

import (
	"github.com/justinabrahms/cardchess/internal/cards"
	"github.com/justinabrahms/cardchess/internal/chess"
)

// pawnFiles ties each numbered card to the pawn standing on one file.
var pawnFiles = map[cards.Rank]byte{
	cards.Two:   'a',
	cards.Three: 'b',
	cards.Four:  'c',
	cards.Five:  'd',
	cards.Six:   'e',
	cards.Seven: 'f',
	cards.Eight: 'g',
	cards.Nine:  'h',
}

var courtPieces = map[cards.Rank]chess.PieceType{
	cards.Ace:   chess.Rook,
	cards.Ten:   chess.Knight,
	cards.Jack:  chess.Bishop,
	cards.Queen: chess.Queen,
	cards.King:  chess.King,
}

// Satisfies reports whether card authorizes move.
func Satisfies(move chess.Move, card cards.Card) bool {
	if card.IsJoker() {
		return true
	}

	if file, ok := pawnFiles[card.Rank]; ok {
		return move.Piece == chess.Pawn && move.File() == file
	}

	if piece, ok := courtPieces[card.Rank]; ok {
		return move.Piece == piece
	}

	return false
}
