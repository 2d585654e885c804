package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Результаты матча, которые принимает сервис статистики.
const (
	ResultWin     = "win"
	ResultLoss    = "loss"
	ResultForfeit = "forfeit"
)

// MatchHistory - завершённый матч с точки зрения одного игрока.
type MatchHistory struct {
	UserID        string     `json:"userId"`
	OpponentID    string     `json:"opponentId"`
	Result        string     `json:"result"`
	UserScore     int        `json:"userScore"`
	OpponentScore int        `json:"opponentScore"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	PlayedAt      time.Time  `json:"playedAt"`
	TournamentID  string     `json:"tournamentId,omitempty"`
	TournamentWon *bool      `json:"tournamentWon,omitempty"`
}

type TournamentFinalization struct {
	WinnerID       string   `json:"winnerId"`
	FinalScore     string   `json:"finalScore"`
	ParticipantIDs []string `json:"participantIds"`
}

const MatchHistoryPath = "/match-history"

func FinalizePath(tournamentID string) string {
	return "/tournaments/" + url.PathEscape(tournamentID) + "/finalize"
}

// Client is the boundary to the external Stats/Ledger Service.
type Client interface {
	RecordMatch(ctx context.Context, record MatchHistory) error
	FinalizeTournament(ctx context.Context, tournamentID string, fin TournamentFinalization) error
	// PostRaw отправляет уже закодированное тело; используется при повторной доставке.
	PostRaw(ctx context.Context, path string, body []byte) error
}

var ErrNotConfigured = errors.New("stats service url is not configured")

// StatusError возвращается для любого ответа, кроме 2xx.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stats service %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Retryable сообщает, может ли повтор того же запроса пройти успешно.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) RecordMatch(ctx context.Context, record MatchHistory) error {
	return c.post(ctx, MatchHistoryPath, record)
}

func (c *HTTPClient) FinalizeTournament(ctx context.Context, tournamentID string, fin TournamentFinalization) error {
	return c.post(ctx, FinalizePath(tournamentID), fin)
}

func (c *HTTPClient) PostRaw(ctx context.Context, path string, body []byte) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stats service %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: http.MethodPost, Path: path, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", path, err)
	}
	return c.PostRaw(ctx, path, body)
}
