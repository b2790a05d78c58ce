// Package reconcile keeps a local game session in step with the
// persistence service.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/justinabrahms/cardchess/internal/api"
	"github.com/justinabrahms/cardchess/internal/chess"
	"github.com/justinabrahms/cardchess/internal/game"
)

const DefaultPollInterval = 2 * time.Second

var ErrStopped = errors.New("reconciler stopped")

// Backend is the part of the persistence service the reconciler needs.
// *api.Client implements it.
type Backend interface {
	GetGame(ctx context.Context, gameID string) (*api.Game, error)
	UpdateGameState(ctx context.Context, gameID string, patch api.StatePatch, expectedVersion int64) (*api.Game, error)
}

var _ Backend = (*api.Client)(nil)

// Snapshot is what a presentation layer needs to draw the game.
type Snapshot struct {
	State     game.State
	Phase     game.Phase
	Selection game.Selection
	Playable  []chess.Move
	Player    chess.Color
	InCheck   bool
	CanDraw   bool
}

// request runs fn on the session. fn reports whether persisted state
// changed and needs pushing.
type request struct {
	fn     func(*game.Session) (bool, error)
	notify bool
	done   chan error
}

type pollResult struct {
	epoch uint64
	game  *api.Game
	err   error
}

type pushResult struct {
	game *api.Game
	err  error
}

// Reconciler serializes local actions, optimistic pushes and polling for
// one game on a single goroutine. Callers interact with it only through
// its methods once Run has started.
type Reconciler struct {
	gameID   string
	player   chess.Color
	session  *game.Session
	backend  Backend
	logger   zerolog.Logger
	interval time.Duration
	onChange func(Snapshot)
	onError  func(error)

	actions chan request
	events  chan any
	nudges  chan struct{}
	stopped chan struct{}

	// owned by the Run goroutine
	epoch       uint64
	polling     bool
	pushing     bool
	dirty       bool
	forceResync bool
}

type Option func(*Reconciler)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		r.interval = d
	}
}

// OnChange is called from the reconciler goroutine after every local or
// adopted change. It must not call back into the reconciler.
func OnChange(fn func(Snapshot)) Option {
	return func(r *Reconciler) {
		r.onChange = fn
	}
}

// OnError receives non-fatal failures of polls and pushes.
func OnError(fn func(error)) Option {
	return func(r *Reconciler) {
		r.onError = fn
	}
}

func New(gameID string, player chess.Color, session *game.Session, backend Backend, opts ...Option) *Reconciler {
	r := &Reconciler{
		gameID:   gameID,
		player:   player,
		session:  session,
		backend:  backend,
		logger:   zerolog.Nop(),
		interval: DefaultPollInterval,
		onChange: func(Snapshot) {},
		onError:  func(error) {},
		actions:  make(chan request),
		events:   make(chan any),
		nudges:   make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run owns the session until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	defer close(r.stopped)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Str("gameID", r.gameID).Str("player", string(r.player)).Msg("Reconciler started")
	r.startPoll(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Str("gameID", r.gameID).Msg("Reconciler stopped")
			return ctx.Err()
		case req := <-r.actions:
			r.handleAction(ctx, req)
		case ev := <-r.events:
			switch ev := ev.(type) {
			case pollResult:
				r.handlePoll(ctx, ev)
			case pushResult:
				r.handlePush(ctx, ev)
			}
		case <-ticker.C:
			r.startPoll(ctx)
		case <-r.nudges:
			r.startPoll(ctx)
		}
	}
}

// Nudge asks for a poll as soon as possible.
func (r *Reconciler) Nudge() {
	select {
	case r.nudges <- struct{}{}:
	default:
	}
}

func (r *Reconciler) Draw(ctx context.Context) (game.DrawResult, error) {
	var res game.DrawResult
	err := r.do(ctx, true, func(s *game.Session) (bool, error) {
		var err error
		res, err = s.Draw(r.player)
		return err == nil, err
	})
	return res, err
}

func (r *Reconciler) Select(ctx context.Context, square string) (game.Selection, error) {
	var sel game.Selection
	err := r.do(ctx, true, func(s *game.Session) (bool, error) {
		var err error
		sel, err = s.Select(r.player, square)
		return false, err
	})
	return sel, err
}

func (r *Reconciler) Click(ctx context.Context, square string) (game.ClickResult, error) {
	var res game.ClickResult
	err := r.do(ctx, true, func(s *game.Session) (bool, error) {
		var err error
		res, err = s.Click(r.player, square)
		return res.Moved, err
	})
	return res, err
}

func (r *Reconciler) Move(ctx context.Context, from, to string, promotion chess.PieceType) (game.MoveOutcome, error) {
	var out game.MoveOutcome
	err := r.do(ctx, true, func(s *game.Session) (bool, error) {
		var err error
		out, err = s.Move(r.player, from, to, promotion)
		return err == nil, err
	})
	return out, err
}

func (r *Reconciler) Reshuffle(ctx context.Context) error {
	return r.do(ctx, true, func(s *game.Session) (bool, error) {
		err := s.Reshuffle(r.player)
		return err == nil, err
	})
}

func (r *Reconciler) Abandon(ctx context.Context) error {
	return r.do(ctx, true, func(s *game.Session) (bool, error) {
		err := s.Abandon(r.player)
		return err == nil, err
	})
}

func (r *Reconciler) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.do(ctx, false, func(s *game.Session) (bool, error) {
		snap = r.snapshot()
		return false, nil
	})
	return snap, err
}

func (r *Reconciler) do(ctx context.Context, notify bool, fn func(*game.Session) (bool, error)) error {
	req := request{fn: fn, notify: notify, done: make(chan error, 1)}
	select {
	case r.actions <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrStopped
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) handleAction(ctx context.Context, req request) {
	persist, err := req.fn(r.session)
	req.done <- err
	if err != nil {
		return
	}

	if persist {
		r.epoch++
		r.dirty = true
		if !r.pushing {
			r.startPush(ctx)
		}
	}
	if req.notify {
		r.onChange(r.snapshot())
	}
}

func (r *Reconciler) startPoll(ctx context.Context) {
	if r.polling || r.pushing {
		return
	}
	r.polling = true
	epoch := r.epoch
	go func() {
		g, err := r.backend.GetGame(ctx, r.gameID)
		r.post(ctx, pollResult{epoch: epoch, game: g, err: err})
	}()
}

func (r *Reconciler) handlePoll(ctx context.Context, res pollResult) {
	r.polling = false
	if res.err != nil {
		r.report("poll", res.err)
		return
	}

	if res.epoch != r.epoch || r.pushing || r.dirty {
		r.logger.Debug().Str("gameID", r.gameID).Msg("Discarding stale poll")
		return
	}

	if !r.forceResync && res.game.State.Version < r.session.State().Version {
		r.logger.Debug().
			Str("gameID", r.gameID).
			Int64("remote", res.game.State.Version).
			Msg("Discarding poll older than local state")
		return
	}

	changed, err := r.session.Adopt(res.game.State)
	if err != nil {
		r.report("adopt", err)
		return
	}
	r.forceResync = false

	if changed {
		r.epoch++
		r.logger.Info().
			Str("gameID", r.gameID).
			Int64("version", res.game.State.Version).
			Msg("Adopted remote state")
		r.onChange(r.snapshot())
	}
}

func (r *Reconciler) startPush(ctx context.Context) {
	r.dirty = false
	r.pushing = true
	st := r.session.State()
	go func() {
		g, err := r.backend.UpdateGameState(ctx, r.gameID, api.FullPatch(st), st.Version)
		r.post(ctx, pushResult{game: g, err: err})
	}()
}

func (r *Reconciler) handlePush(ctx context.Context, res pushResult) {
	r.pushing = false
	r.epoch++

	if res.err != nil {
		r.dirty = false
		r.forceResync = true
		r.report("push", res.err)
		r.startPoll(ctx)
		return
	}

	r.session.SetVersion(res.game.State.Version)
	if r.dirty {
		r.startPush(ctx)
	}
}

func (r *Reconciler) post(ctx context.Context, ev any) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

func (r *Reconciler) report(op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	r.logger.Error().Err(err).Str("gameID", r.gameID).Str("op", op).Msg("Reconcile failed")
	r.onError(fmt.Errorf("%s: %w", op, err))
}

func (r *Reconciler) snapshot() Snapshot {
	return Snapshot{
		State:     r.session.State(),
		Phase:     r.session.Phase(),
		Selection: r.session.Selection(),
		Playable:  r.session.Playable(),
		Player:    r.player,
		InCheck:   r.session.InCheck(),
		CanDraw:   r.session.CanDraw(r.player),
	}
}
