package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/pong-server/middleware"
	"github.com/Dosada05/pong-server/models"
	"github.com/Dosada05/pong-server/services"
)

type fakeCoordinator struct {
	joins  []services.JoinRequest
	joinFn func(req services.JoinRequest) (services.JoinResponse, error)
	leaves []string
	games  map[string]models.Game
}

func (f *fakeCoordinator) Join(ctx context.Context, req services.JoinRequest) (services.JoinResponse, error) {
	f.joins = append(f.joins, req)
	if f.joinFn != nil {
		return f.joinFn(req)
	}
	return services.JoinResponse{Status: services.JoinStatusWaiting, PlayerID: req.PlayerID, Message: "Waiting for player..."}, nil
}

func (f *fakeCoordinator) Leave(playerID string, mode models.GameMode) (bool, error) {
	if !mode.IsValid() {
		return false, services.ErrInvalidGameMode
	}
	f.leaves = append(f.leaves, playerID)
	return true, nil
}

func (f *fakeCoordinator) Game(gameID string) (models.Game, error) {
	g, ok := f.games[gameID]
	if !ok {
		return models.Game{}, fmt.Errorf("%w: %s", services.ErrGameNotFound, gameID)
	}
	return g, nil
}

func (f *fakeCoordinator) Status() services.ServerStatus {
	return services.ServerStatus{ActiveGames: len(f.games), Queues: map[models.GameMode]int{models.ModeClassic: 1}}
}

func newGameRouter(f *fakeCoordinator) http.Handler {
	h := NewGameHandler(f)
	r := chi.NewRouter()
	r.Post("/join", h.JoinHandler)
	r.Post("/join-tournament", h.JoinModeHandler(models.ModeTournament))
	r.Post("/leave", h.LeaveHandler)
	r.Get("/games/{gameID}", h.GetGameHandler)
	r.Get("/status", h.StatusHandler)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJoinHandler(t *testing.T) {
	f := &fakeCoordinator{}
	rec := do(t, newGameRouter(f), http.MethodPost, "/join", `{"playerName":"Alice","playerId":"alice","gameMode":"classic"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp services.JoinResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "waiting", resp.Status)
	assert.Equal(t, "alice", resp.PlayerID)

	require.Len(t, f.joins, 1)
	assert.Equal(t, models.ModeClassic, f.joins[0].GameMode)
	assert.Equal(t, "Alice", f.joins[0].PlayerName)
}

func TestJoinModeFixedByPath(t *testing.T) {
	f := &fakeCoordinator{}
	rec := do(t, newGameRouter(f), http.MethodPost, "/join-tournament", `{"playerId":"alice","gameMode":"classic"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.joins, 1)
	assert.Equal(t, models.ModeTournament, f.joins[0].GameMode)
}

func TestJoinErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"already queued", `{"playerId":"a","gameMode":"classic"}`, services.ErrAlreadyQueued, http.StatusConflict},
		{"in game", `{"playerId":"a","gameMode":"classic"}`, services.ErrAlreadyInGame, http.StatusConflict},
		{"bad mode", `{"playerId":"a","gameMode":"squash"}`, services.ErrInvalidGameMode, http.StatusBadRequest},
		{"unexpected", `{"playerId":"a","gameMode":"classic"}`, fmt.Errorf("boom"), http.StatusInternalServerError},
		{"missing player", `{"gameMode":"classic"}`, nil, http.StatusBadRequest},
		{"unknown field", `{"playerId":"a","color":"red"}`, nil, http.StatusBadRequest},
		{"malformed", `{"playerId":`, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeCoordinator{joinFn: func(services.JoinRequest) (services.JoinResponse, error) {
				return services.JoinResponse{}, tt.err
			}}
			rec := do(t, newGameRouter(f), http.MethodPost, "/join", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body, "error")
		})
	}
}

func TestJoinUsesAuthenticatedIdentity(t *testing.T) {
	f := &fakeCoordinator{}
	h := newGameRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/join", strings.NewReader(`{"gameMode":"bot"}`))
	req = req.WithContext(middleware.WithPlayerID(req.Context(), "alice"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", f.joins[0].PlayerID)

	req = httptest.NewRequest(http.MethodPost, "/join", strings.NewReader(`{"playerId":"mallory","gameMode":"bot"}`))
	req = req.WithContext(middleware.WithPlayerID(req.Context(), "alice"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, f.joins, 1)
}

func TestLeaveHandler(t *testing.T) {
	f := &fakeCoordinator{}
	rec := do(t, newGameRouter(f), http.MethodPost, "/leave", `{"playerId":"alice","gameMode":"tournament"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":true}`, rec.Body.String())
	assert.Equal(t, []string{"alice"}, f.leaves)

	rec = do(t, newGameRouter(f), http.MethodPost, "/leave", `{"playerId":"alice","gameMode":"squash"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGameAndStatus(t *testing.T) {
	f := &fakeCoordinator{games: map[string]models.Game{
		"game-1": {ID: "game-1", Mode: models.ModeClassic, Status: models.StatusPlaying},
	}}
	h := newGameRouter(f)

	rec := do(t, h, http.MethodGet, "/games/game-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Game models.Game `json:"game"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.StatusPlaying, body.Game.Status)

	rec = do(t, h, http.MethodGet, "/games/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"activeGames":1,"connections":0,"queues":{"classic":1}}`, rec.Body.String())
}
