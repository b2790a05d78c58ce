package chess

import "github.com/notnil/chess"

var (
	knightOffsets = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingOffsets   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	straightRays  = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonalRays  = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// isAttacked reports whether any piece of color by attacks square sq.
func isAttacked(squares map[chess.Square]chess.Piece, sq int, by chess.Color) bool {
	file, rank := sq%8, sq/8

	pieceAt := func(f, r int) (chess.Piece, bool) {
		if f < 0 || f > 7 || r < 0 || r > 7 {
			return chess.NoPiece, false
		}
		p, ok := squares[chess.Square(r*8+f)]
		if !ok || p == chess.NoPiece {
			return chess.NoPiece, true
		}
		return p, true
	}

	is := func(p chess.Piece, types ...chess.PieceType) bool {
		if p == chess.NoPiece || p.Color() != by {
			return false
		}
		for _, t := range types {
			if p.Type() == t {
				return true
			}
		}
		return false
	}

	// a white pawn attacks upwards, so it sits one rank below the target
	pawnRank := rank - 1
	if by == chess.Black {
		pawnRank = rank + 1
	}
	for _, df := range []int{-1, 1} {
		if p, _ := pieceAt(file+df, pawnRank); is(p, chess.Pawn) {
			return true
		}
	}

	for _, o := range knightOffsets {
		if p, _ := pieceAt(file+o[0], rank+o[1]); is(p, chess.Knight) {
			return true
		}
	}

	for _, o := range kingOffsets {
		if p, _ := pieceAt(file+o[0], rank+o[1]); is(p, chess.King) {
			return true
		}
	}

	slide := func(rays [4][2]int, types ...chess.PieceType) bool {
		for _, ray := range rays {
			for step := 1; step < 8; step++ {
				p, onBoard := pieceAt(file+ray[0]*step, rank+ray[1]*step)
				if !onBoard {
					break
				}
				if p == chess.NoPiece {
					continue
				}
				if is(p, types...) {
					return true
				}
				break
			}
		}
		return false
	}

	return slide(straightRays, chess.Rook, chess.Queen) || slide(diagonalRays, chess.Bishop, chess.Queen)
}
