package chess

import (
	"fmt"

	"github.com/notnil/chess"
)

type Engine struct {
	game *chess.Game
}

func NewEngine() *Engine {
	return &Engine{
		game: chess.NewGame(),
	}
}

func NewEngineFromFEN(fen string) (*Engine, error) {
	e := &Engine{}
	if err := e.Load(fen); err != nil {
		return nil, err
	}
	return e, nil
}

// Load replaces the current game with the given position. Repetition
// history does not survive a load.
func (e *Engine) Load(fen string) error {
	fenFunc, err := chess.FEN(fen)
	if err != nil {
		return fmt.Errorf("invalid FEN: %w", err)
	}
	e.game = chess.NewGame(fenFunc)
	return nil
}

func (e *Engine) FEN() string {
	return e.game.Position().String()
}

func (e *Engine) SideToMove() Color {
	return colorOf(e.game.Position().Turn())
}

// LegalMoves lists every legal move of the side to move.
func (e *Engine) LegalMoves() []Move {
	return e.legalMoves(chess.NoSquare)
}

// LegalMovesFrom lists the legal moves starting on square. A malformed
// square yields no moves.
func (e *Engine) LegalMovesFrom(square string) []Move {
	sq := parseSquare(square)
	if sq == chess.NoSquare {
		return nil
	}
	return e.legalMoves(sq)
}

func (e *Engine) legalMoves(from chess.Square) []Move {
	board := e.game.Position().Board()
	var moves []Move
	for _, m := range e.game.ValidMoves() {
		if from != chess.NoSquare && m.S1() != from {
			continue
		}
		moves = append(moves, Move{
			From:      m.S1().String(),
			To:        m.S2().String(),
			Piece:     pieceTypeOf(board.Piece(m.S1()).Type()),
			Promotion: pieceTypeOf(m.Promo()),
		})
	}
	return moves
}

// PieceAt reports the owner and type of the piece on square.
func (e *Engine) PieceAt(square string) (Color, PieceType, bool) {
	sq := parseSquare(square)
	if sq == chess.NoSquare {
		return "", NoPieceType, false
	}
	p := e.game.Position().Board().Piece(sq)
	if p == chess.NoPiece {
		return "", NoPieceType, false
	}
	return colorOf(p.Color()), pieceTypeOf(p.Type()), true
}

// Apply plays from→to. Rejected moves wrap ErrIllegalMove and leave the
// position untouched.
func (e *Engine) Apply(from, to string, promotion PieceType) (*MoveResult, error) {
	fromSquare := parseSquare(from)
	toSquare := parseSquare(to)

	if fromSquare == chess.NoSquare || toSquare == chess.NoSquare {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidSquare, from, to)
	}

	promo := toPieceType(promotion)

	var validMove *chess.Move
	for _, vm := range e.game.ValidMoves() {
		if vm.S1() == fromSquare && vm.S2() == toSquare && vm.Promo() == promo {
			validMove = vm
			break
		}
	}

	if validMove == nil {
		return nil, fmt.Errorf("%w: %s to %s", ErrIllegalMove, from, to)
	}

	san := chess.AlgebraicNotation{}.Encode(e.game.Position(), validMove)

	if err := e.game.Move(validMove); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	result := &MoveResult{
		From:      from,
		To:        to,
		SAN:       san,
		FEN:       e.FEN(),
		Check:     e.InCheck(),
		Checkmate: e.IsCheckmate(),
		Draw:      e.IsDraw(),
		GameOver:  e.game.Outcome() != chess.NoOutcome,
	}

	if e.game.Outcome() != chess.NoOutcome {
		result.Result = e.game.Outcome().String()
	}

	return result, nil
}

// InCheck reports whether the side to move is attacked on its king square.
func (e *Engine) InCheck() bool {
	pos := e.game.Position()
	side := pos.Turn()
	squares := pos.Board().SquareMap()
	for sq, p := range squares {
		if p.Type() == chess.King && p.Color() == side {
			return isAttacked(squares, int(sq), opposite(side))
		}
	}
	return false
}

func (e *Engine) IsCheckmate() bool {
	return e.game.Method() == chess.Checkmate
}

func (e *Engine) IsStalemate() bool {
	return e.game.Method() == chess.Stalemate
}

// IsDraw covers automatic draws plus a claimable fifty-move rule.
func (e *Engine) IsDraw() bool {
	if e.game.Outcome() == chess.Draw {
		return true
	}
	return e.eligible(chess.FiftyMoveRule)
}

func (e *Engine) IsThreefoldRepetition() bool {
	return e.eligible(chess.ThreefoldRepetition)
}

func (e *Engine) eligible(method chess.Method) bool {
	for _, m := range e.game.EligibleDraws() {
		if m == method {
			return true
		}
	}
	return false
}

// Board renders the position for terminal output.
func (e *Engine) Board() string {
	return e.game.Position().Board().Draw()
}

func (e *Engine) ValidateFEN(fen string) error {
	_, err := chess.FEN(fen)
	return err
}

func parseSquare(sq string) chess.Square {
	if len(sq) != 2 {
		return chess.NoSquare
	}

	if sq[0] < 'a' || sq[0] > 'h' || sq[1] < '1' || sq[1] > '8' {
		return chess.NoSquare
	}

	file := sq[0] - 'a'
	rank := sq[1] - '1'

	return chess.Square(rank*8 + file)
}

func ParsePromotion(p string) PieceType {
	switch p {
	case "q":
		return Queen
	case "r":
		return Rook
	case "b":
		return Bishop
	case "n":
		return Knight
	default:
		return NoPieceType
	}
}

func promotionLetter(p PieceType) string {
	switch p {
	case Queen:
		return "q"
	case Rook:
		return "r"
	case Bishop:
		return "b"
	case Knight:
		return "n"
	default:
		return ""
	}
}

func pieceTypeOf(pt chess.PieceType) PieceType {
	switch pt {
	case chess.Pawn:
		return Pawn
	case chess.Knight:
		return Knight
	case chess.Bishop:
		return Bishop
	case chess.Rook:
		return Rook
	case chess.Queen:
		return Queen
	case chess.King:
		return King
	default:
		return NoPieceType
	}
}

func toPieceType(pt PieceType) chess.PieceType {
	switch pt {
	case Pawn:
		return chess.Pawn
	case Knight:
		return chess.Knight
	case Bishop:
		return chess.Bishop
	case Rook:
		return chess.Rook
	case Queen:
		return chess.Queen
	case King:
		return chess.King
	default:
		return chess.NoPieceType
	}
}

func colorOf(c chess.Color) Color {
	if c == chess.White {
		return White
	}
	return Black
}

func opposite(c chess.Color) chess.Color {
	if c == chess.White {
		return chess.Black
	}
	return chess.White
}
