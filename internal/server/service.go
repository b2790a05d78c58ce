// Package server is the reference persistence service: it stores game
// records, guards them with optimistic versioning and pushes updates to
// websocket subscribers.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/cardchess/internal/api"
	"github.com/justinabrahms/cardchess/internal/chess"
	"github.com/justinabrahms/cardchess/internal/game"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	maxRequestBody      = 1 << 20
)

var (
	errForbidden = errors.New("not a player in this game")
	errGameOver  = errors.New("game is over")
	errSeatTaken = errors.New("game is full")
	errInvalid   = errors.New("invalid request")
)

type Service struct {
	store Store
	hub   *Hub
	auth  *Authenticator
	now   func() time.Time
}

func NewService(store Store, hub *Hub, auth *Authenticator) *Service {
	return &Service{
		store: store,
		hub:   hub,
		auth:  auth,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Router wires every route.
func (s *Service) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(cors)

	router.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/auth/login", s.LoginHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/auth/refresh", s.RefreshHandler).Methods(http.MethodPost, http.MethodOptions)

	games := router.PathPrefix("/chess").Subrouter()
	games.Use(s.auth.Middleware)
	games.HandleFunc("/create", s.CreateGameHandler).Methods(http.MethodPost)
	games.HandleFunc("/active", s.ActiveGamesHandler).Methods(http.MethodGet)
	games.HandleFunc("/history", s.HistoryHandler).Methods(http.MethodGet)
	games.HandleFunc("/game/{id}", s.GetGameHandler).Methods(http.MethodGet)
	games.HandleFunc("/game/{id}/join", s.JoinGameHandler).Methods(http.MethodPut)
	games.HandleFunc("/game/{id}/state", s.UpdateStateHandler).Methods(http.MethodPut)
	games.HandleFunc("/game/{id}/end", s.EndGameHandler).Methods(http.MethodPut)
	games.HandleFunc("/game/{id}/abandon", s.AbandonGameHandler).Methods(http.MethodPut)
	games.HandleFunc("/game/{id}/ws", s.hub.ServeWS).Methods(http.MethodGet)

	return router
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}

func (s *Service) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	playerID := req.PlayerID
	if playerID == "" {
		playerID = uuid.NewString()
	}

	creds, err := s.auth.Issue(playerID)
	if err != nil {
		log.Error().Err(err).Str("op", "login").Msg("Failed to issue tokens")
		writeError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	log.Info().Str("playerID", playerID).Msg("Player logged in")
	writeJSON(w, http.StatusOK, "logged in", creds)
}

func (s *Service) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	playerID, err := s.auth.Verify(req.RefreshToken, tokenRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "refresh token expired or invalid")
		return
	}

	creds, err := s.auth.Issue(playerID)
	if err != nil {
		log.Error().Err(err).Str("op", "refresh").Msg("Failed to issue tokens")
		writeError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, "refreshed", creds)
}

func (s *Service) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	var req api.CreateGameRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	state, err := game.NewState()
	if err != nil {
		s.fail(w, "create", "", err)
		return
	}
	state.Version = 1

	now := s.now()
	g := api.Game{
		ID:        uuid.NewString(),
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}

	playerID := playerFrom(r.Context())
	switch chess.Color(req.Color) {
	case chess.White, "", "random":
		g.PlayerWhite = playerID
	case chess.Black:
		g.PlayerBlack = playerID
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown color %q", req.Color))
		return
	}

	if err := s.store.Create(r.Context(), g); err != nil {
		s.fail(w, "create", g.ID, err)
		return
	}

	log.Info().Str("gameID", g.ID).Str("playerID", playerID).Msg("Game created")
	writeJSON(w, http.StatusCreated, "game created", g)
}

func (s *Service) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	g, err := s.store.Get(r.Context(), gameID)
	if err != nil {
		s.fail(w, "get", gameID, err)
		return
	}
	writeJSON(w, http.StatusOK, "ok", g)
}

func (s *Service) JoinGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	playerID := playerFrom(r.Context())

	g, err := s.store.Update(r.Context(), gameID, func(g *api.Game) error {
		if seated(*g, playerID) {
			return nil
		}
		if g.State.Status != game.StatusActive {
			return errGameOver
		}
		switch {
		case g.PlayerWhite == "":
			g.PlayerWhite = playerID
		case g.PlayerBlack == "":
			g.PlayerBlack = playerID
		default:
			return errSeatTaken
		}
		g.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		s.fail(w, "join", gameID, err)
		return
	}

	log.Info().Str("gameID", gameID).Str("playerID", playerID).Msg("Player joined game")
	s.publish(api.UpdateJoined, g)
	writeJSON(w, http.StatusOK, "joined", g)
}

func (s *Service) UpdateStateHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	playerID := playerFrom(r.Context())

	var req api.UpdateStateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	g, err := s.store.Update(r.Context(), gameID, func(g *api.Game) error {
		if !seated(*g, playerID) {
			return errForbidden
		}
		if g.State.Version != req.ExpectedVersion {
			return ErrVersionConflict
		}
		if g.State.Status != game.StatusActive {
			return errGameOver
		}

		next := req.StatePatch.Apply(g.State)
		if err := validateState(next); err != nil {
			return err
		}
		s.commit(g, next)
		return nil
	})
	if err != nil {
		s.fail(w, "update_state", gameID, err)
		return
	}

	s.publish(api.UpdateState, g)
	writeJSON(w, http.StatusOK, "state updated", g)
}

func (s *Service) EndGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	playerID := playerFrom(r.Context())

	var req api.EndGameRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Winner == game.NoWinner || !req.Winner.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid winner %q", req.Winner))
		return
	}

	g, err := s.store.Update(r.Context(), gameID, func(g *api.Game) error {
		if !seated(*g, playerID) {
			return errForbidden
		}
		if g.State.Status != game.StatusActive {
			return errGameOver
		}
		next := g.State.Clone()
		next.Status = game.StatusCompleted
		next.Winner = req.Winner
		next.CurrentCard = nil
		s.commit(g, next)
		return nil
	})
	if err != nil {
		s.fail(w, "end", gameID, err)
		return
	}

	log.Info().Str("gameID", gameID).Str("winner", string(req.Winner)).Msg("Game ended")
	s.publish(api.UpdateEnded, g)
	writeJSON(w, http.StatusOK, "game ended", g)
}

func (s *Service) AbandonGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	playerID := playerFrom(r.Context())

	g, err := s.store.Update(r.Context(), gameID, func(g *api.Game) error {
		if !seated(*g, playerID) {
			return errForbidden
		}
		if g.State.Status != game.StatusActive {
			return errGameOver
		}
		next := g.State.Clone()
		next.Status = game.StatusAbandoned
		next.CurrentCard = nil
		s.commit(g, next)
		return nil
	})
	if err != nil {
		s.fail(w, "abandon", gameID, err)
		return
	}

	log.Info().Str("gameID", gameID).Str("playerID", playerID).Msg("Game abandoned")
	s.publish(api.UpdateAbandoned, g)
	writeJSON(w, http.StatusOK, "game abandoned", g)
}

func (s *Service) ActiveGamesHandler(w http.ResponseWriter, r *http.Request) {
	games, err := s.store.ListByPlayer(r.Context(), playerFrom(r.Context()), true, 0)
	if err != nil {
		s.fail(w, "active", "", err)
		return
	}
	writeJSON(w, http.StatusOK, "ok", games)
}

func (s *Service) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	games, err := s.store.ListByPlayer(r.Context(), playerFrom(r.Context()), false, limit)
	if err != nil {
		s.fail(w, "history", "", err)
		return
	}
	writeJSON(w, http.StatusOK, "ok", games)
}

// commit stores next as g's state with the version bumped.
func (s *Service) commit(g *api.Game, next game.State) {
	now := s.now()
	next.Version = g.State.Version + 1
	g.State = next
	g.UpdatedAt = now
	if next.Status != game.StatusActive && g.CompletedAt == nil {
		g.CompletedAt = &now
	}
}

func (s *Service) publish(kind string, g api.Game) {
	s.hub.Publish(api.GameUpdate{GameID: g.ID, Type: kind, Version: g.State.Version, Game: &g})
}

func validateState(st game.State) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errInvalid, err)
	}
	if err := chess.NewEngine().ValidateFEN(st.FEN); err != nil {
		return fmt.Errorf("%w: %v", errInvalid, err)
	}
	return nil
}

func (s *Service) fail(w http.ResponseWriter, op, gameID string, err error) {
	switch {
	case errors.Is(err, ErrGameNotFound):
		writeError(w, http.StatusNotFound, "game not found")
	case errors.Is(err, ErrVersionConflict):
		writeError(w, http.StatusConflict, api.MessageVersionConflict)
	case errors.Is(err, errSeatTaken), errors.Is(err, errGameOver):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Str("gameID", gameID).Str("op", op).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Message: message, Data: data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, message, nil)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	return dec.Decode(v)
}
