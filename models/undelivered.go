package models

import (
	"encoding/json"
	"time"
)

// Виды записей для сервиса статистики.
const (
	ResultKindMatchHistory       = "match_history"
	ResultKindTournamentFinalize = "tournament_finalize"
)

// UndeliveredResult - запись статистики, исчерпавшая попытки и ждущая
// повторной доставки.
type UndeliveredResult struct {
	ID             int64           `json:"id" db:"id"`
	Kind           string          `json:"kind" db:"kind"`
	Path           string          `json:"path" db:"path"`
	Body           json.RawMessage `json:"body" db:"body"`
	ParticipantIDs []string        `json:"participant_ids" db:"participant_ids"`
	Attempts       int             `json:"attempts" db:"attempts"`
	LastError      string          `json:"last_error" db:"last_error"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
}
