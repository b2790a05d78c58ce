package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/justinabrahms/cardchess/internal/cards"
	"github.com/justinabrahms/cardchess/internal/chess"
)

func TestSatisfies(t *testing.T) {
	pawn := func(from, to string) chess.Move {
		return chess.Move{From: from, To: to, Piece: chess.Pawn}
	}
	piece := func(p chess.PieceType) chess.Move {
		return chess.Move{From: "d4", To: "d5", Piece: p}
	}

	tests := []struct {
		name string
		card cards.Card
		move chess.Move
		want bool
	}{
		{"two moves a-pawn", cards.New(cards.Hearts, cards.Two), pawn("a2", "a3"), true},
		{"two rejects b-pawn", cards.New(cards.Hearts, cards.Two), pawn("b2", "b3"), false},
		{"three moves b-pawn", cards.New(cards.Spades, cards.Three), pawn("b7", "b5"), true},
		{"four moves c-pawn", cards.New(cards.Clubs, cards.Four), pawn("c2", "c4"), true},
		{"five moves d-pawn", cards.New(cards.Diamonds, cards.Five), pawn("d2", "d4"), true},
		{"six moves e-pawn", cards.New(cards.Hearts, cards.Six), pawn("e2", "e4"), true},
		{"seven moves f-pawn", cards.New(cards.Hearts, cards.Seven), pawn("f2", "f3"), true},
		{"eight moves g-pawn", cards.New(cards.Hearts, cards.Eight), pawn("g7", "g6"), true},
		{"nine moves h-pawn", cards.New(cards.Hearts, cards.Nine), pawn("h2", "h4"), true},
		{"file is the origin file", cards.New(cards.Hearts, cards.Five), pawn("e4", "d5"), false},
		{"capture keeps origin file", cards.New(cards.Hearts, cards.Six), pawn("e4", "d5"), true},
		{"pawn card rejects rook on file", cards.New(cards.Hearts, cards.Two), chess.Move{From: "a1", To: "a3", Piece: chess.Rook}, false},
		{"ace moves rook", cards.New(cards.Clubs, cards.Ace), piece(chess.Rook), true},
		{"ace rejects queen", cards.New(cards.Clubs, cards.Ace), piece(chess.Queen), false},
		{"ten moves knight", cards.New(cards.Clubs, cards.Ten), piece(chess.Knight), true},
		{"ten rejects pawn", cards.New(cards.Clubs, cards.Ten), pawn("a2", "a3"), false},
		{"jack moves bishop", cards.New(cards.Spades, cards.Jack), piece(chess.Bishop), true},
		{"queen moves queen", cards.New(cards.Spades, cards.Queen), piece(chess.Queen), true},
		{"queen rejects king", cards.New(cards.Spades, cards.Queen), piece(chess.King), false},
		{"king moves king", cards.New(cards.Diamonds, cards.King), piece(chess.King), true},
		{"king rejects knight", cards.New(cards.Diamonds, cards.King), piece(chess.Knight), false},
		{"red joker moves anything", cards.NewJoker(cards.Red), piece(chess.Knight), true},
		{"black joker moves pawn", cards.NewJoker(cards.Black), pawn("h7", "h5"), true},
		{"unknown rank allows nothing", cards.Card{Suit: cards.Hearts, Rank: "1"}, pawn("a2", "a3"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Satisfies(tt.move, tt.card))
		})
	}
}

func TestSatisfiesCoversEveryRank(t *testing.T) {
	deck, err := cards.NewDeck()
	if err != nil {
		t.Fatal(err)
	}

	for _, c := range deck {
		allowed := 0
		for _, p := range []chess.PieceType{chess.Rook, chess.Knight, chess.Bishop, chess.Queen, chess.King} {
			if Satisfies(chess.Move{From: "d4", To: "d5", Piece: p}, c) {
				allowed++
			}
		}
		for f := byte('a'); f <= 'h'; f++ {
			from := string([]byte{f, '2'})
			if Satisfies(chess.Move{From: from, To: from, Piece: chess.Pawn}, c) {
				allowed++
			}
		}

		if c.IsJoker() {
			assert.Equal(t, 13, allowed, "%s", c)
		} else {
			assert.Equal(t, 1, allowed, "%s authorizes exactly one piece kind or file", c)
		}
	}
}
