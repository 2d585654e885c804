package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dosada05/pong-server/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

var (
	errUnknownType     = errors.New("unknown message type")
	errMissingTarget   = errors.New("gameId or tournamentId is required")
	errMissingGameID   = errors.New("gameId is required")
	errIdentity        = errors.New("playerId does not match the connection")
	errInvalidMovement = errors.New("deltaY must be a finite number")
)

type Client struct {
	PlayerID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, playerID string) *Client {
	return &Client{
		PlayerID: playerID,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}
}

func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close останавливает помпу записи, она и закрывает соединение.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	logger := c.hub.logger.With(slog.String("player_id", c.PlayerID))
	defer func() {
		c.hub.detach(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", slog.Any("error", err))
			}
			return
		}

		ev, err := parseEvent(c.PlayerID, raw)
		if err != nil {
			logger.Warn("inbound message dropped", slog.Any("error", err))
			c.hub.SendError(c.PlayerID, err.Error())
			continue
		}
		c.hub.deliver(ev)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Один JSON-объект на кадр: клиент разбирает кадры по отдельности.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// parseEvent проверяет входящий кадр на соответствие формату конверта.
func parseEvent(playerID string, raw []byte) (Event, error) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("malformed message: %w", err)
	}

	switch env.Type {
	case models.MsgReady:
		var p models.ReadyPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return Event{}, err
		}
		if p.GameID == "" && p.TournamentID == "" {
			return Event{}, errMissingTarget
		}
		if p.PlayerID != "" && p.PlayerID != playerID {
			return Event{}, errIdentity
		}
		p.PlayerID = playerID
		return Event{Kind: EventReady, PlayerID: playerID, Ready: &p}, nil

	case models.MsgPaddleMove:
		var p models.PaddleMovePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return Event{}, err
		}
		if p.GameID == "" {
			return Event{}, errMissingGameID
		}
		if p.PlayerID != "" && p.PlayerID != playerID {
			return Event{}, errIdentity
		}
		if math.IsNaN(p.DeltaY) || math.IsInf(p.DeltaY, 0) {
			return Event{}, errInvalidMovement
		}
		p.PlayerID = playerID
		return Event{Kind: EventPaddleMove, PlayerID: playerID, PaddleMove: &p}, nil
	}

	return Event{}, fmt.Errorf("%w: %q", errUnknownType, env.Type)
}

func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return errors.New("payload is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}
