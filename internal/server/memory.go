package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/codec/dagjson"
	"github.com/ipld/go-ipld-prime/node/basicnode"

	"github.com/justinabrahms/cardchess/internal/api"
)

// MemoryStore keeps games in memory. Its contents can be written to and
// read back from a DAG-CBOR snapshot.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]api.Game
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[string]api.Game)}
}

func (m *MemoryStore) Create(ctx context.Context, g api.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return fmt.Errorf("game %s already exists", g.ID)
	}
	m.games[g.ID] = cloneGame(g)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (api.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return api.Game{}, ErrGameNotFound
	}
	return cloneGame(g), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*api.Game) error) (api.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return api.Game{}, ErrGameNotFound
	}

	next := cloneGame(g)
	if err := fn(&next); err != nil {
		return api.Game{}, err
	}
	m.games[id] = next
	return cloneGame(next), nil
}

func (m *MemoryStore) ListByPlayer(ctx context.Context, playerID string, active bool, limit int) ([]api.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	games := []api.Game{}
	for _, g := range m.games {
		if seated(g, playerID) && isActive(g) == active {
			games = append(games, cloneGame(g))
		}
	}
	return sortAndLimit(games, active, limit), nil
}

func (m *MemoryStore) Close() {}

type snapshot struct {
	Games []api.Game `json:"games"`
}

// Snapshot writes every game as one DAG-CBOR document.
func (m *MemoryStore) Snapshot(w io.Writer) error {
	m.mu.RLock()
	snap := snapshot{Games: make([]api.Game, 0, len(m.games))}
	for _, g := range m.games {
		snap.Games = append(snap.Games, cloneGame(g))
	}
	m.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	nb := basicnode.Prototype.Any.NewBuilder()
	if err := dagjson.Decode(nb, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to build snapshot node: %w", err)
	}
	if err := dagcbor.Encode(nb.Build(), w); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Restore replaces the store's contents with a snapshot.
func (m *MemoryStore) Restore(r io.Reader) error {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := dagcbor.Decode(nb, r); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var buf bytes.Buffer
	if err := dagjson.Encode(nb.Build(), &buf); err != nil {
		return fmt.Errorf("failed to convert snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	games := make(map[string]api.Game, len(snap.Games))
	for _, g := range snap.Games {
		if err := g.State.Validate(); err != nil {
			return fmt.Errorf("game %s: %w", g.ID, err)
		}
		games[g.ID] = g
	}

	m.mu.Lock()
	m.games = games
	m.mu.Unlock()
	return nil
}

// SaveFile writes a snapshot to path, replacing it atomically.
func (m *MemoryStore) SaveFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := m.Snapshot(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile restores from path. A missing file leaves the store empty.
func (m *MemoryStore) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return m.Restore(f)
}
