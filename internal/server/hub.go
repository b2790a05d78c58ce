package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/cardchess/internal/api"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans game updates out to the websocket subscribers of each game.
type Hub struct {
	rooms      map[string]map[*subscriber]bool
	broadcast  chan api.GameUpdate
	register   chan *subscriber
	unregister chan *subscriber
	done       chan struct{}
}

type subscriber struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	gameID   string
	playerID string
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*subscriber]bool),
		broadcast:  make(chan api.GameUpdate, 256),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		done:       make(chan struct{}),
	}
}

// Run owns the rooms until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for sub := range room {
					close(sub.send)
				}
			}
			h.rooms = map[string]map[*subscriber]bool{}
			return

		case sub := <-h.register:
			if h.rooms[sub.gameID] == nil {
				h.rooms[sub.gameID] = make(map[*subscriber]bool)
			}
			h.rooms[sub.gameID][sub] = true

			log.Info().
				Str("gameID", sub.gameID).
				Str("playerID", sub.playerID).
				Msg("Subscriber connected")

		case sub := <-h.unregister:
			h.remove(sub)

			log.Info().
				Str("gameID", sub.gameID).
				Str("playerID", sub.playerID).
				Msg("Subscriber disconnected")

		case update := <-h.broadcast:
			room := h.rooms[update.GameID]
			if len(room) == 0 {
				continue
			}

			message, err := json.Marshal(update)
			if err != nil {
				log.Error().Err(err).Str("gameID", update.GameID).Msg("Failed to marshal game update")
				continue
			}

			for sub := range room {
				select {
				case sub.send <- message:
				default:
					// slow subscriber; it will reconnect and poll
					h.remove(sub)
				}
			}
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	room, ok := h.rooms[sub.gameID]
	if !ok || !room[sub] {
		return
	}
	delete(room, sub)
	close(sub.send)
	if len(room) == 0 {
		delete(h.rooms, sub.gameID)
	}
}

// Publish queues an update without blocking the caller.
func (h *Hub) Publish(update api.GameUpdate) {
	select {
	case h.broadcast <- update:
	default:
		log.Warn().Str("gameID", update.GameID).Msg("Broadcast channel full, dropping update")
	}
}

// ServeWS subscribes the caller to /chess/game/{id}/ws.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("gameID", gameID).Msg("Failed to upgrade websocket connection")
		return
	}

	sub := &subscriber{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		gameID:   gameID,
		playerID: playerFrom(r.Context()),
	}

	select {
	case h.register <- sub:
	case <-h.done:
		conn.Close()
		return
	}

	go sub.writePump()
	go sub.readPump()
}

// readPump only keeps the connection alive; subscribers send nothing.
func (s *subscriber) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("gameID", s.gameID).Msg("Websocket error")
			}
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
