package game

import (
	"github.com/justinabrahms/cardchess/internal/cards"
	"github.com/justinabrahms/cardchess/internal/chess"
)

// MovesForOrigin returns the legal moves from square that card allows. It
// is empty when square does not hold one of player's pieces.
func MovesForOrigin(o Oracle, square string, card cards.Card, player chess.Color) []chess.Move {
	color, _, ok := o.PieceAt(square)
	if !ok || color != player {
		return nil
	}
	return filterMoves(o.LegalMovesFrom(square), card)
}

// AnyMovesForCard returns every legal move of the side to move that card
// allows. An empty result means the card is dead.
func AnyMovesForCard(o Oracle, card cards.Card) []chess.Move {
	return filterMoves(o.LegalMoves(), card)
}

func filterMoves(moves []chess.Move, card cards.Card) []chess.Move {
	var out []chess.Move
	for _, m := range moves {
		if Satisfies(m, card) {
			out = append(out, m)
		}
	}
	return out
}
