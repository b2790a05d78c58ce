package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/justinabrahms/cardchess/internal/api"
	"github.com/justinabrahms/cardchess/internal/cards"
	"github.com/justinabrahms/cardchess/internal/chess"
	"github.com/justinabrahms/cardchess/internal/game"
	"github.com/justinabrahms/cardchess/internal/reconcile"
)

// console serializes output from the prompt loop and the reconciler.
type console struct {
	mu   sync.Mutex
	w    io.Writer
	seat chess.Color
}

func newConsole(w io.Writer, seat chess.Color) *console {
	return &console{w: w, seat: seat}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) prompt() {
	c.printf("> ")
}

func (c *console) warn(err error) {
	c.printf("! %v\n", err)
}

func (c *console) render(s reconcile.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, err := chess.NewEngineFromFEN(s.State.FEN); err == nil {
		fmt.Fprintln(c.w, e.Board())
	}

	if s.Phase == game.PhaseGameOver {
		fmt.Fprintf(c.w, "Game %s. Winner: %s\n", s.State.Status, winnerText(s.State.Winner))
		return
	}

	whose := "Opponent's turn"
	if s.State.Turn == c.seat {
		whose = "Your turn"
	}
	fmt.Fprintf(c.w, "%s (%s).", whose, s.State.Turn)
	if s.InCheck {
		fmt.Fprintf(c.w, " Check! %d of %d attempts used.", s.State.CheckAttempts, game.MaxCheckAttempts)
	}
	fmt.Fprintln(c.w)

	if card := s.State.CurrentCard; card != nil {
		fmt.Fprintf(c.w, "Card: %s (%s)\n", card, cards.Meaning(*card))
	}
	if n := len(s.State.Moves); n > 0 {
		last := s.State.Moves[n-1]
		if last.FailedAttempt {
			fmt.Fprintf(c.w, "Last: %s drew %s with no move\n", last.Player, last.Card)
		} else {
			fmt.Fprintf(c.w, "Last: %s played %s with %s\n", last.Player, last.Move, last.Card)
		}
	}
	if s.CanDraw {
		fmt.Fprintln(c.w, "Type 'draw' to draw a card.")
	}
}

func (c *console) history(games []api.Game, playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(games) == 0 {
		fmt.Fprintln(c.w, "No finished games.")
		return
	}
	for _, g := range games {
		seat, _ := g.Seat(playerID)
		fmt.Fprintf(c.w, "%s  %-5s  %-9s  %s\n", g.ID, seat, g.State.Status, winnerText(g.State.Winner))
	}
}

func winnerText(w game.Winner) string {
	if w == game.NoWinner {
		return "none"
	}
	return string(w)
}
