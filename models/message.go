package models

import "encoding/json"

type MessageType string

// Исходящие сообщения (сервер -> клиент).
const (
	MsgGameState     MessageType = "game_state"
	MsgGameUpdate    MessageType = "game_update"
	MsgGameResult    MessageType = "game_result"
	MsgGameCancelled MessageType = "game_cancelled"
	MsgTournament    MessageType = "tournament_update"
	MsgQueueStatus   MessageType = "queue_status"
	MsgError         MessageType = "error"
)

// Входящие сообщения (клиент -> сервер).
const (
	MsgReady      MessageType = "ready"
	MsgPaddleMove MessageType = "paddle_move"
)

// Envelope is the inbound frame. Payload is decoded once Type is known.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// OutboundMessage is the server frame.
type OutboundMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type ReadyPayload struct {
	GameID       string `json:"gameId,omitempty"`
	TournamentID string `json:"tournamentId,omitempty"`
	PlayerID     string `json:"playerId,omitempty"`
}

type PaddleMovePayload struct {
	GameID   string  `json:"gameId"`
	PlayerID string  `json:"playerId,omitempty"`
	DeltaY   float64 `json:"deltaY"`
}

// GameUpdatePayload is always expressed from the recipient's side:
// Player is the recipient, the recipient's paddle is on the left.
type GameUpdatePayload struct {
	GameID   string `json:"gameId"`
	Status   Status `json:"status"`
	Player   Player `json:"player"`
	Opponent Player `json:"opponent"`
	Ball     Ball   `json:"ball"`
}

type GameResultPayload struct {
	GameID       string `json:"gameId"`
	Status       Status `json:"status"`
	Player1Score int    `json:"player1Score"`
	Player2Score int    `json:"player2Score"`
	Winner       string `json:"winner"`
	Forfeit      bool   `json:"forfeit"`
}

type GameCancelledPayload struct {
	GameID   string `json:"gameId"`
	Reason   string `json:"reason"`
	Requeued bool   `json:"requeued"`
}

type QueueStatusPayload struct {
	Status   string   `json:"status"`
	Mode     GameMode `json:"mode"`
	Position int      `json:"position"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
