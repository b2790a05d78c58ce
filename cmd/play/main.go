package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/cardchess/internal/api"
	"github.com/justinabrahms/cardchess/internal/chess"
	"github.com/justinabrahms/cardchess/internal/config"
	"github.com/justinabrahms/cardchess/internal/feed"
	"github.com/justinabrahms/cardchess/internal/game"
	"github.com/justinabrahms/cardchess/internal/reconcile"
)

func main() {
	var (
		showHelp bool
		gameID   string
		color    string
		playerID string
	)
	flag.BoolVar(&showHelp, "help", false, "Show help information")
	flag.BoolVar(&showHelp, "h", false, "Show help information")
	flag.StringVar(&gameID, "game", "", "Join an existing game instead of creating one")
	flag.StringVar(&color, "color", "white", "Seat to take when creating a game (white, black or random)")
	flag.StringVar(&playerID, "player", "", "Player id to log in as (defaults to client.player_id)")
	flag.Parse()

	if showHelp {
		showHelpMessage()
		return
	}

	// Logs go to stderr so they don't interleave with the board
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setLogLevel(cfg)
	if playerID == "" {
		playerID = cfg.Client.PlayerID
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.Client.BaseURL,
		api.WithLogger(log.Logger),
		api.WithTimeout(cfg.Client.RequestTimeout),
		api.WithRetry(cfg.Client.MaxRetries, cfg.Client.RetryDelay),
	)

	creds, err := client.Login(ctx, playerID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to log in")
	}

	g, err := openGame(ctx, client, gameID, color)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open game")
	}
	seat, ok := g.Seat(creds.PlayerID)
	if !ok {
		log.Fatal().Str("gameID", g.ID).Msg("Not seated in this game")
	}

	session, err := game.NewSession(chess.NewEngine(), g.State,
		game.WithGameID(g.ID),
		game.WithLogger(log.Logger),
	)
	if err != nil {
		log.Fatal().Err(err).Str("gameID", g.ID).Msg("Failed to load game")
	}

	out := newConsole(os.Stdout, seat)
	reauth := newReauthenticator(client, creds.PlayerID, out)
	rec := reconcile.New(g.ID, seat, session, client,
		reconcile.WithLogger(log.Logger),
		reconcile.WithPollInterval(cfg.Client.PollInterval),
		reconcile.OnChange(out.render),
		reconcile.OnError(func(err error) { reauth.handle(ctx, err) }),
	)

	wsURL, err := feed.GameURL(cfg.Client.BaseURL, g.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid base url")
	}
	updates := feed.NewClient(wsURL,
		func(api.GameUpdate) { rec.Nudge() },
		feed.WithToken(client.AccessToken),
		feed.WithLogger(log.Logger),
	)

	go func() {
		if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Reconciler stopped")
		}
	}()
	go func() {
		if err := updates.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Update feed stopped")
		}
	}()

	out.printf("Playing %s as %s (%s). Type 'help' for commands.\n", g.ID, creds.PlayerID, seat)
	if snap, err := rec.Snapshot(ctx); err == nil {
		out.render(snap)
	}

	lines := readLines(os.Stdin)
	for {
		out.prompt()
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd, err := parseCommand(line)
			if err != nil {
				out.warn(err)
				continue
			}
			if cmd.name == cmdQuit {
				return
			}
			execute(ctx, cmd, rec, client, out)
		}
	}
}

func setLogLevel(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Development.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Development.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// openGame creates a game when gameID is empty, and otherwise joins it
// unless the player already holds a seat.
func openGame(ctx context.Context, client *api.Client, gameID, color string) (*api.Game, error) {
	if gameID == "" {
		return client.CreateGame(ctx, color)
	}

	g, err := client.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if _, ok := g.Seat(client.PlayerID()); ok {
		return g, nil
	}
	return client.JoinGame(ctx, gameID)
}

func readLines(f *os.File) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func showHelpMessage() {
	fmt.Println(`Card Chess Terminal Client

DESCRIPTION:
    Plays a game of card chess against another player through the
    card chess server. Each turn you draw a card, and the card decides
    which piece you may move.

USAGE:
    cardchess-play [OPTIONS]

OPTIONS:
    -h, --help        Show this help message
    -game <id>        Join an existing game
    -color <color>    Seat when creating a game: white, black or random
    -player <id>      Player id to log in as

CONFIGURATION:
    Reads the client section of config.yaml:
        client:
          base_url: http://localhost:8080
          player_id: alice
          poll_interval: 2s
          request_timeout: 2s
          max_retries: 3
          retry_delay: 1s

EXAMPLES:
    # Alice creates a game
    cardchess-play -player alice

    # Bob joins it
    cardchess-play -player bob -game <id>`)
}
