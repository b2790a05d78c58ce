package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justinabrahms/cardchess/internal/api"
	"github.com/justinabrahms/cardchess/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id           TEXT PRIMARY KEY,
	player_white TEXT NOT NULL DEFAULT '',
	player_black TEXT NOT NULL DEFAULT '',
	state        JSONB NOT NULL,
	status       TEXT NOT NULL,
	version      BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS games_player_white_idx ON games (player_white);
CREATE INDEX IF NOT EXISTS games_player_black_idx ON games (player_black);
`

const gameColumns = `id, player_white, player_black, state, created_at, updated_at, completed_at`

// PostgresStore keeps games in a single table, the game state as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Create(ctx context.Context, g api.Game) error {
	state, err := json.Marshal(g.State)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO games (id, player_white, player_black, state, status, version, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		g.ID, g.PlayerWhite, g.PlayerBlack, state, string(g.State.Status), g.State.Version,
		g.CreatedAt, g.UpdatedAt, g.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert game: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (api.Game, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	return scanGame(row)
}

func (p *PostgresStore) Update(ctx context.Context, id string, fn func(*api.Game) error) (api.Game, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return api.Game{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := scanGame(tx.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return api.Game{}, err
	}
	prev := g.State.Version

	if err := fn(&g); err != nil {
		return api.Game{}, err
	}

	state, err := json.Marshal(g.State)
	if err != nil {
		return api.Game{}, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE games
		SET player_white = $2, player_black = $3, state = $4, status = $5, version = $6,
		    updated_at = $7, completed_at = $8
		WHERE id = $1 AND version = $9`,
		g.ID, g.PlayerWhite, g.PlayerBlack, state, string(g.State.Status), g.State.Version,
		g.UpdatedAt, g.CompletedAt, prev,
	)
	if err != nil {
		return api.Game{}, fmt.Errorf("failed to update game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return api.Game{}, ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return api.Game{}, fmt.Errorf("failed to commit: %w", err)
	}
	return g, nil
}

func (p *PostgresStore) ListByPlayer(ctx context.Context, playerID string, active bool, limit int) ([]api.Game, error) {
	cond := `status = $2`
	order := `created_at ASC`
	if !active {
		cond = `status <> $2`
		order = `COALESCE(completed_at, updated_at) DESC`
	}
	query := `SELECT ` + gameColumns + ` FROM games
		WHERE (player_white = $1 OR player_black = $1) AND ` + cond + `
		ORDER BY ` + order
	args := []any{playerID, string(game.StatusActive)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	games := []api.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

func scanGame(row pgx.Row) (api.Game, error) {
	var (
		g         api.Game
		state     []byte
		completed *time.Time
	)
	err := row.Scan(&g.ID, &g.PlayerWhite, &g.PlayerBlack, &state, &g.CreatedAt, &g.UpdatedAt, &completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return api.Game{}, ErrGameNotFound
	}
	if err != nil {
		return api.Game{}, fmt.Errorf("failed to scan game: %w", err)
	}
	if err := json.Unmarshal(state, &g.State); err != nil {
		return api.Game{}, fmt.Errorf("failed to decode game state: %w", err)
	}
	g.CompletedAt = completed
	return g, nil
}
