package main

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/cardchess/internal/api"
)

// reauthenticator logs the player in again once the client has dropped an
// expired session, so polls and the feed get a token back.
type reauthenticator struct {
	client   *api.Client
	playerID string
	out      *console
	busy     atomic.Bool
}

func newReauthenticator(client *api.Client, playerID string, out *console) *reauthenticator {
	return &reauthenticator{client: client, playerID: playerID, out: out}
}

// handle is the reconciler's error hook. Auth failures start one login in
// the background; everything else is printed.
func (r *reauthenticator) handle(ctx context.Context, err error) {
	if !errors.Is(err, api.ErrAuthExpired) {
		r.out.warn(err)
		return
	}
	if !r.busy.CompareAndSwap(false, true) {
		return
	}

	r.out.printf("Session expired, logging in again as %s...\n", r.playerID)
	go func() {
		defer r.busy.Store(false)
		if err := r.login(ctx); err != nil {
			r.out.warn(err)
		}
	}()
}

func (r *reauthenticator) login(ctx context.Context) error {
	if _, err := r.client.Login(ctx, r.playerID); err != nil {
		log.Error().Err(err).Str("playerID", r.playerID).Str("op", "relogin").Msg("Failed to log in again")
		return errors.New("session expired and login failed; restart to log in")
	}
	log.Info().Str("playerID", r.playerID).Msg("Logged in again")
	return nil
}
