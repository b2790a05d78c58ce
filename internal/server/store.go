package server

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/justinabrahms/cardchess/internal/api"
	"github.com/justinabrahms/cardchess/internal/game"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrVersionConflict = errors.New("version conflict")
)

// Store persists game records.
type Store interface {
	Create(ctx context.Context, g api.Game) error
	Get(ctx context.Context, id string) (api.Game, error)
	// Update applies fn to the stored game and saves the result atomically.
	// Nothing is saved when fn fails.
	Update(ctx context.Context, id string, fn func(*api.Game) error) (api.Game, error)
	// ListByPlayer returns playerID's games. Active games come oldest
	// first, finished games newest first. limit <= 0 means no limit.
	ListByPlayer(ctx context.Context, playerID string, active bool, limit int) ([]api.Game, error)
	Close()
}

func seated(g api.Game, playerID string) bool {
	_, ok := g.Seat(playerID)
	return ok
}

func cloneGame(g api.Game) api.Game {
	out := g
	out.State = g.State.Clone()
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// sortAndLimit orders games the way ListByPlayer promises.
func sortAndLimit(games []api.Game, active bool, limit int) []api.Game {
	if active {
		sort.SliceStable(games, func(i, j int) bool {
			return games[i].CreatedAt.Before(games[j].CreatedAt)
		})
	} else {
		sort.SliceStable(games, func(i, j int) bool {
			return finishedAt(games[i]).After(finishedAt(games[j]))
		})
	}
	if limit > 0 && len(games) > limit {
		games = games[:limit]
	}
	return games
}

func finishedAt(g api.Game) time.Time {
	if g.CompletedAt != nil {
		return *g.CompletedAt
	}
	return g.UpdatedAt
}

func isActive(g api.Game) bool {
	return g.State.Status == game.StatusActive
}
