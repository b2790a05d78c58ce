package game

import (
	"errors"

	"github.com/justinabrahms/cardchess/internal/chess"
)

var (
	// ErrIllegalMove is expected user input validation; callers surface it
	// without logging.
	ErrIllegalMove = chess.ErrIllegalMove

	ErrGameOver    = errors.New("game is over")
	ErrNotYourTurn = errors.New("not your turn")
	ErrNoCard      = errors.New("no playable card drawn")
	ErrCardPending = errors.New("a playable card is already drawn")
)
