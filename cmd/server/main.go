package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/cardchess/internal/config"
	"github.com/justinabrahms/cardchess/internal/server"
)

const snapshotInterval = time.Minute

func main() {
	// Parse command line flags
	var showHelp bool
	flag.BoolVar(&showHelp, "help", false, "Show help information")
	flag.BoolVar(&showHelp, "h", false, "Show help information")
	flag.Parse()

	if showHelp {
		showHelpMessage()
		return
	}

	// Setup logging
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setLogLevel(cfg)

	secret, err := cfg.Secret()
	if err != nil {
		log.Fatal().Err(err).Msg("Missing token secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, memory, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Server.Store).Msg("Failed to open store")
	}
	defer store.Close()

	hub := server.NewHub()
	go hub.Run(ctx)

	auth := server.NewAuthenticator(secret, cfg.Server.AccessTTL, cfg.Server.RefreshTTL)
	service := server.NewService(store, hub, auth)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      service.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Server.Store).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	if memory != nil && cfg.Server.SnapshotPath != "" {
		go saveSnapshots(ctx, memory, cfg.Server.SnapshotPath)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if memory != nil && cfg.Server.SnapshotPath != "" {
		if err := memory.SaveFile(cfg.Server.SnapshotPath); err != nil {
			log.Error().Err(err).Str("path", cfg.Server.SnapshotPath).Msg("Failed to save snapshot")
		}
	}

	log.Info().Msg("Server exited")
}

// openStore returns the configured store. The memory store is also returned
// on its own so snapshots can be taken.
func openStore(ctx context.Context, cfg *config.Config) (server.Store, *server.MemoryStore, error) {
	if cfg.Server.Store == config.StorePostgres {
		store, err := server.NewPostgresStore(ctx, cfg.Server.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}

	memory := server.NewMemoryStore()
	if cfg.Server.SnapshotPath != "" {
		if err := memory.LoadFile(cfg.Server.SnapshotPath); err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.Server.SnapshotPath).Msg("Loaded snapshot")
	}
	return memory, memory, nil
}

func saveSnapshots(ctx context.Context, memory *server.MemoryStore, path string) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := memory.SaveFile(path); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to save snapshot")
			}
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

func showHelpMessage() {
	fmt.Println(`Card Chess Server

DESCRIPTION:
    Persistence service for card chess. Stores games, issues player
    tokens and pushes game updates to subscribed clients.

USAGE:
    cardchess-server [OPTIONS]

OPTIONS:
    -h, --help    Show this help message

CONFIGURATION:
    The server reads config.yaml from the current directory or ./config.
    Every key can be overridden with a CARDCHESS_ environment variable,
    for example CARDCHESS_SERVER_PORT=9000.

    Example config.yaml:
        server:
          host: localhost
          port: 8080
          store: memory          # memory or postgres
          snapshot_path: games.cbor
          database_url: ""
          jwt_secret: "change-me"
          access_ttl: 15m
          refresh_ttl: 168h

        development:
          debug: true
          log_level: debug

API ENDPOINTS:
    GET  /health                     - Service health check
    POST /auth/login                 - Issue tokens for a player
    POST /auth/refresh               - Exchange a refresh token
    POST /chess/create               - Create a game
    GET  /chess/active               - Active games of the caller
    GET  /chess/history?limit=N      - Finished games of the caller
    GET  /chess/game/{id}            - Fetch a game
    PUT  /chess/game/{id}/join       - Take the empty seat
    PUT  /chess/game/{id}/state      - Update state (expected_version)
    PUT  /chess/game/{id}/end        - Complete a game
    PUT  /chess/game/{id}/abandon    - Abandon a game
    GET  /chess/game/{id}/ws         - Websocket update feed

EXAMPLES:
    # Start with default configuration
    cardchess-server

    # Log in and create a game
    curl -X POST http://localhost:8080/auth/login -d '{"player_id": "alice"}'
    curl -X POST http://localhost:8080/chess/create \
      -H "Authorization: Bearer <access_token>" \
      -d '{"color": "white"}'`)
}
