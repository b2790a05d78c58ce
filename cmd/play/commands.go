package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/justinabrahms/cardchess/internal/api"
	"github.com/justinabrahms/cardchess/internal/cards"
	"github.com/justinabrahms/cardchess/internal/chess"
	"github.com/justinabrahms/cardchess/internal/game"
	"github.com/justinabrahms/cardchess/internal/reconcile"
)

const (
	cmdDraw      = "draw"
	cmdClick     = "click"
	cmdMove      = "move"
	cmdReshuffle = "reshuffle"
	cmdBoard     = "board"
	cmdHistory   = "history"
	cmdAbandon   = "abandon"
	cmdHelp      = "help"
	cmdQuit      = "quit"
)

type command struct {
	name      string
	from      string
	to        string
	promotion chess.PieceType
}

var aliases = map[string]string{
	"d":      cmdDraw,
	"c":      cmdClick,
	"select": cmdClick,
	"m":      cmdMove,
	"b":      cmdBoard,
	"q":      cmdQuit,
	"exit":   cmdQuit,
	"?":      cmdHelp,
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{name: cmdBoard}, nil
	}

	name := fields[0]
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	args := fields[1:]

	switch name {
	case cmdDraw, cmdReshuffle, cmdBoard, cmdHistory, cmdAbandon, cmdHelp, cmdQuit:
		return command{name: name}, nil
	case cmdClick:
		if len(args) != 1 || !validSquare(args[0]) {
			return command{}, errors.New("usage: click <square>")
		}
		return command{name: name, from: args[0]}, nil
	case cmdMove:
		return parseMove(args)
	}
	return command{}, fmt.Errorf("unknown command %q", fields[0])
}

// parseMove accepts "e2 e4", "e7 e8 n" and "e7e8n".
func parseMove(args []string) (command, error) {
	usage := errors.New("usage: move <from> <to> [q|r|b|n]")

	if len(args) == 1 && (len(args[0]) == 4 || len(args[0]) == 5) {
		s := args[0]
		args = []string{s[:2], s[2:4]}
		if len(s) == 5 {
			args = append(args, s[4:])
		}
	}
	if len(args) < 2 || len(args) > 3 || !validSquare(args[0]) || !validSquare(args[1]) {
		return command{}, usage
	}

	cmd := command{name: cmdMove, from: args[0], to: args[1]}
	if len(args) == 3 {
		cmd.promotion = chess.ParsePromotion(args[2])
		if cmd.promotion == chess.NoPieceType {
			return command{}, usage
		}
	}
	return cmd, nil
}

func validSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

func execute(ctx context.Context, cmd command, rec *reconcile.Reconciler, client *api.Client, out *console) {
	switch cmd.name {
	case cmdDraw:
		res, err := rec.Draw(ctx)
		if err != nil {
			out.warn(err)
			return
		}
		describeDraw(out, res)

	case cmdClick:
		res, err := rec.Click(ctx, cmd.from)
		if err != nil {
			out.warn(err)
			return
		}
		if res.Moved {
			describeMove(out, res.Outcome)
			return
		}
		describeSelection(out, res.Selection)

	case cmdMove:
		outcome, err := rec.Move(ctx, cmd.from, cmd.to, cmd.promotion)
		if err != nil {
			out.warn(err)
			return
		}
		describeMove(out, outcome)

	case cmdReshuffle:
		if err := rec.Reshuffle(ctx); err != nil {
			out.warn(err)
			return
		}
		out.printf("Deck reshuffled.\n")

	case cmdAbandon:
		if err := rec.Abandon(ctx); err != nil {
			out.warn(err)
			return
		}
		out.printf("Game abandoned.\n")

	case cmdBoard:
		snap, err := rec.Snapshot(ctx)
		if err != nil {
			out.warn(err)
			return
		}
		out.render(snap)

	case cmdHistory:
		games, err := client.History(ctx, 10)
		if err != nil {
			out.warn(err)
			return
		}
		out.history(games, client.PlayerID())

	case cmdHelp:
		out.printf("%s", helpText)
	}
}

func describeDraw(out *console, res game.DrawResult) {
	out.printf("Drew %s: %s\n", res.Card, cards.Meaning(res.Card))
	switch {
	case res.GameOver:
		out.printf("No escape from check. %s wins.\n", res.Winner)
	case !res.Playable():
		out.printf("No legal move for this card. Draw again.\n")
		if res.InCheck {
			out.printf("In check: %d of %d attempts used.\n", res.CheckAttempts, game.MaxCheckAttempts)
		}
	default:
		out.printf("%d playable moves.\n", len(res.Candidates))
	}
}

func describeSelection(out *console, sel game.Selection) {
	if sel.From == "" {
		out.printf("Nothing selected.\n")
		return
	}
	dests := make([]string, 0, len(sel.Candidates))
	for _, m := range sel.Candidates {
		dests = append(dests, m.To)
	}
	if len(dests) == 0 {
		out.printf("%s has no moves with this card.\n", sel.From)
		return
	}
	out.printf("%s can go to %s\n", sel.From, strings.Join(dests, " "))
}

func describeMove(out *console, outcome game.MoveOutcome) {
	out.printf("Played %s.\n", outcome.Result.SAN)
	if outcome.GameOver {
		out.printf("Game over: %s.\n", outcome.Winner)
	}
}

const helpText = `Commands:
  draw                 draw a card
  click <sq>           select a piece, or move the selected piece to <sq>
  move <from> <to> [p] move directly; p is q, r, b or n for promotion
  reshuffle            replace the deck (only without a playable card)
  board                show the board
  history              list your finished games
  abandon              abandon the game
  quit                 leave
`
