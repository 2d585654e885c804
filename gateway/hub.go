// Package gateway owns the player websocket connections: one per player id,
// typed inbound events and perspective-mirrored outbound state.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Dosada05/pong-server/metrics"
	"github.com/Dosada05/pong-server/models"
)

type EventKind int

const (
	EventReady EventKind = iota + 1
	EventPaddleMove
	EventDisconnect
)

// Event - проверенное входящее сообщение или отключение. Ready заполнен для
// EventReady, PaddleMove - для EventPaddleMove.
type Event struct {
	Kind       EventKind
	PlayerID   string
	Ready      *models.ReadyPayload
	PaddleMove *models.PaddleMovePayload
}

const eventBuffer = 1024

// Hub хранит одно живое соединение на id игрока. Новое соединение с тем же
// id заменяет старое без события отключения.
type Hub struct {
	metrics metrics.GameMetrics
	logger  *slog.Logger

	register   chan *Client
	unregister chan *Client
	events     chan Event
	done       chan struct{}

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub(m metrics.GameMetrics, logger *slog.Logger) *Hub {
	return &Hub{
		metrics:    m,
		logger:     logger.With(slog.String("component", "gateway")),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan Event, eventBuffer),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
	}
}

// Events отдаёт входящие события в порядке поступления.
func (h *Hub) Events() <-chan Event {
	return h.events
}

// Run обрабатывает регистрации до отмены ctx, затем закрывает все соединения.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			old := h.clients[client.PlayerID]
			h.clients[client.PlayerID] = client
			n := len(h.clients)
			h.mu.Unlock()

			if old != nil {
				old.close()
				h.logger.Info("player reconnected, previous connection replaced", slog.String("player_id", client.PlayerID))
			} else {
				h.logger.Info("player connected", slog.String("player_id", client.PlayerID))
			}
			h.metrics.SetConnections(n)

		case client := <-h.unregister:
			h.mu.Lock()
			current := h.clients[client.PlayerID] == client
			if current {
				delete(h.clients, client.PlayerID)
			}
			n := len(h.clients)
			h.mu.Unlock()

			client.close()
			if !current {
				continue
			}
			h.metrics.SetConnections(n)
			h.logger.Info("player disconnected", slog.String("player_id", client.PlayerID))
			h.emit(ctx, Event{Kind: EventDisconnect, PlayerID: client.PlayerID})

		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				c.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.metrics.SetConnections(0)
			h.logger.Info("gateway stopped")
			return
		}
	}
}

func (h *Hub) emit(ctx context.Context, ev Event) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

// Attach регистрирует conn как соединение playerID и запускает его помпы.
func (h *Hub) Attach(conn *websocket.Conn, playerID string) *Client {
	client := newClient(h, conn, playerID)

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return client
	}

	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// deliver передаёт событие потребителю, если хаб ещё работает.
func (h *Hub) deliver(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *Hub) client(playerID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[playerID]
}

func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send ставит msg в очередь игрока. false - соединения нет или буфер полон.
func (h *Hub) Send(playerID string, msg models.OutboundMessage) bool {
	c := h.client(playerID)
	if c == nil {
		return false
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode outbound message",
			slog.String("type", string(msg.Type)),
			slog.Any("error", err))
		return false
	}
	if !c.trySend(data) {
		h.logger.Warn("client send buffer full, message dropped",
			slog.String("player_id", playerID),
			slog.String("type", string(msg.Type)))
		return false
	}
	return true
}

// SendGameState pushes the initial game_state to both players, each seeing
// itself as player1.
func (h *Hub) SendGameState(game models.Game) {
	for _, id := range []string{game.Player1.ID, game.Player2.ID} {
		if view, ok := StateFor(game, id); ok {
			h.Send(id, models.OutboundMessage{Type: models.MsgGameState, Payload: view})
		}
	}
}

// BroadcastGameState pushes a game_update to both players.
func (h *Hub) BroadcastGameState(game models.Game) {
	for _, id := range []string{game.Player1.ID, game.Player2.ID} {
		if view, ok := UpdateFor(game, id); ok {
			h.Send(id, models.OutboundMessage{Type: models.MsgGameUpdate, Payload: view})
		}
	}
}

func (h *Hub) SendError(playerID, message string) bool {
	return h.Send(playerID, models.OutboundMessage{
		Type:    models.MsgError,
		Payload: models.ErrorPayload{Message: message},
	})
}
