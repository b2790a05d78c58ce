// Package api is the client of the game persistence service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/justinabrahms/cardchess/internal/game"
)

const (
	defaultTimeout    = 2 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second

	// refreshSkew refreshes an access token this long before it expires.
	refreshSkew = 30 * time.Second

	maxBodySize = 4 << 20
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time

	mu           sync.Mutex
	playerID     string
	accessToken  string
	refreshToken string
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each individual request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetry sets how often a retryable failure is retried and the first
// backoff delay, which doubles on every retry.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

func WithCredentials(creds Credentials) Option {
	return func(c *Client) {
		c.playerID = creds.PlayerID
		c.accessToken = creds.AccessToken
		c.refreshToken = creds.RefreshToken
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Authenticated reports whether the client holds an access token.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken != ""
}

// Login starts a session. An empty playerID asks the server for a new one.
func (c *Client) Login(ctx context.Context, playerID string) (*Credentials, error) {
	var creds Credentials
	if err := c.withRetry(ctx, "login", func(ctx context.Context) error {
		return c.send(ctx, http.MethodPost, "/auth/login", LoginRequest{PlayerID: playerID}, &creds, "")
	}); err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	c.setCredentials(creds)
	return &creds, nil
}

// Refresh trades the refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return ErrAuthExpired
	}

	var creds Credentials
	if err := c.withRetry(ctx, "refresh", func(ctx context.Context) error {
		return c.send(ctx, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: refresh}, &creds, "")
	}); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	c.setCredentials(creds)
	return nil
}

func (c *Client) CreateGame(ctx context.Context, color string) (*Game, error) {
	var g Game
	if err := c.call(ctx, "create", http.MethodPost, "/chess/create", CreateGameRequest{Color: color}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) GetGame(ctx context.Context, gameID string) (*Game, error) {
	var g Game
	if err := c.call(ctx, "get", http.MethodGet, gamePath(gameID, ""), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) JoinGame(ctx context.Context, gameID string) (*Game, error) {
	var g Game
	if err := c.call(ctx, "join", http.MethodPut, gamePath(gameID, "/join"), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// UpdateGameState writes patch if the stored game is still at
// expectedVersion, and returns ErrVersionConflict otherwise.
func (c *Client) UpdateGameState(ctx context.Context, gameID string, patch StatePatch, expectedVersion int64) (*Game, error) {
	req := UpdateStateRequest{StatePatch: patch, ExpectedVersion: expectedVersion}
	var g Game
	if err := c.call(ctx, "update_state", http.MethodPut, gamePath(gameID, "/state"), req, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) EndGame(ctx context.Context, gameID string, winner game.Winner) (*Game, error) {
	var g Game
	if err := c.call(ctx, "end", http.MethodPut, gamePath(gameID, "/end"), EndGameRequest{Winner: winner}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) AbandonGame(ctx context.Context, gameID string) (*Game, error) {
	var g Game
	if err := c.call(ctx, "abandon", http.MethodPut, gamePath(gameID, "/abandon"), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListActive returns the caller's games that are still being played.
func (c *Client) ListActive(ctx context.Context) ([]Game, error) {
	var games []Game
	if err := c.call(ctx, "active", http.MethodGet, "/chess/active", nil, &games); err != nil {
		return nil, err
	}
	return games, nil
}

// History returns the caller's finished games, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]Game, error) {
	path := "/chess/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var games []Game
	if err := c.call(ctx, "history", http.MethodGet, path, nil, &games); err != nil {
		return nil, err
	}
	return games, nil
}

// call sends an authenticated request. A rejected token is refreshed once
// and the request replayed; if that fails too the tokens are dropped.
func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	if c.expiresSoon() {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn().Err(err).Str("op", op).Msg("Proactive token refresh failed")
		}
	}

	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		return c.send(ctx, method, path, body, out, c.AccessToken())
	})
	if !errors.Is(err, ErrAuthExpired) {
		return err
	}

	if rerr := c.Refresh(ctx); rerr != nil {
		c.clearCredentials()
		return fmt.Errorf("%s: %w", op, ErrAuthExpired)
	}

	err = c.withRetry(ctx, op, func(ctx context.Context) error {
		return c.send(ctx, method, path, body, out, c.AccessToken())
	})
	if errors.Is(err, ErrAuthExpired) {
		c.clearCredentials()
	}
	return err
}

func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := c.retryDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || ctx.Err() != nil || attempt >= c.maxRetries || !retryable(err) {
			return err
		}

		c.logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying request")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func (c *Client) send(ctx context.Context, method, path string, body, out any, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env Envelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuthExpired, env.Message)
	case resp.StatusCode == http.StatusConflict && env.Message == MessageVersionConflict:
		return ErrVersionConflict
	case resp.StatusCode >= 300:
		return &StatusError{Code: resp.StatusCode, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// AccessToken returns the current bearer token, empty when logged out.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) setCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = creds.PlayerID
	c.accessToken = creds.AccessToken
	c.refreshToken = creds.RefreshToken
}

func (c *Client) clearCredentials() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.refreshToken = ""
	c.logger.Warn().Msg("Session expired, credentials cleared")
}

// expiresSoon inspects the access token's exp claim without verifying it;
// the server remains the judge of validity.
func (c *Client) expiresSoon() bool {
	c.mu.Lock()
	access, refresh := c.accessToken, c.refreshToken
	c.mu.Unlock()
	if access == "" || refresh == "" {
		return false
	}

	exp, ok := TokenExpiry(access)
	return ok && c.now().Add(refreshSkew).After(exp)
}

// TokenExpiry reads the exp claim of a JWT.
func TokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func gamePath(gameID, suffix string) string {
	return "/chess/game/" + url.PathEscape(gameID) + suffix
}
