// Package feed subscribes to a game's websocket update stream.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/justinabrahms/cardchess/internal/api"
)

const (
	initialReconnectDelay  = 1 * time.Second
	maxReconnectDelay      = 1 * time.Minute
	reconnectBackoffFactor = 2

	dialTimeout = 10 * time.Second
	pongTimeout = 70 * time.Second
)

// Handler is called for every update, on the client's goroutine.
type Handler func(api.GameUpdate)

// Client keeps a subscription open, reconnecting with exponential backoff.
type Client struct {
	url            string
	handler        Handler
	token          func() string
	logger         zerolog.Logger
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	maxDelay       time.Duration

	mu        sync.RWMutex
	connected bool
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithToken supplies the bearer token for each dial.
func WithToken(token func() string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = dialer
	}
}

func WithReconnectDelay(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.reconnectDelay = initial
		c.maxDelay = maxDelay
	}
}

func NewClient(url string, handler Handler, opts ...Option) *Client {
	c := &Client{
		url:            url,
		handler:        handler,
		token:          func() string { return "" },
		logger:         zerolog.Nop(),
		dialer:         websocket.DefaultDialer,
		reconnectDelay: initialReconnectDelay,
		maxDelay:       maxReconnectDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GameURL returns the feed endpoint of gameID on the service at baseURL.
func GameURL(baseURL, gameID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/chess/game/" + url.PathEscape(gameID) + "/ws"
	return u.String(), nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Run keeps the subscription alive until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	delay := c.reconnectDelay
	for {
		conn, err := c.connect(ctx)
		if err == nil {
			delay = c.reconnectDelay
			err = c.listen(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn().Err(err).Dur("delay", delay).Msg("Feed disconnected, reconnecting")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*reconnectBackoffFactor, c.maxDelay)
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("User-Agent", "cardchess/1.0")
	if token := c.token(); token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, c.url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c.setConnected(true)
	c.logger.Info().Str("url", c.url).Msg("Connected to game feed")
	return conn, nil
}

func (c *Client) listen(ctx context.Context, conn *websocket.Conn) error {
	defer c.setConnected(false)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
			conn.Close()
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read error: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var update api.GameUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			c.logger.Error().Err(err).Msg("Error decoding game update")
			continue
		}
		c.handler(update)
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
