package handlers

import (
	"context"
	"net/http"

	"github.com/Dosada05/pong-server/models"
	"github.com/Dosada05/pong-server/services"
)

// GameCoordinator - часть services.GameService, нужная HTTP API.
type GameCoordinator interface {
	Join(ctx context.Context, req services.JoinRequest) (services.JoinResponse, error)
	Leave(playerID string, mode models.GameMode) (bool, error)
	Game(gameID string) (models.Game, error)
	Status() services.ServerStatus
}

type GameHandler struct {
	games GameCoordinator
}

func NewGameHandler(games GameCoordinator) *GameHandler {
	return &GameHandler{games: games}
}

type leaveInput struct {
	PlayerID string          `json:"playerId"`
	GameMode models.GameMode `json:"gameMode"`
}

// JoinHandler обрабатывает POST /api/v1/join
func (h *GameHandler) JoinHandler(w http.ResponseWriter, r *http.Request) {
	h.join(w, r, "")
}

// JoinModeHandler возвращает обработчик join с режимом, заданным маршрутом.
func (h *GameHandler) JoinModeHandler(mode models.GameMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.join(w, r, mode)
	}
}

func (h *GameHandler) join(w http.ResponseWriter, r *http.Request, mode models.GameMode) {
	var input services.JoinRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if mode != "" {
		input.GameMode = mode
	}

	playerID, err := resolvePlayerID(r, input.PlayerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	input.PlayerID = playerID

	resp, err := h.games.Join(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// LeaveHandler обрабатывает POST /api/v1/leave
func (h *GameHandler) LeaveHandler(w http.ResponseWriter, r *http.Request) {
	var input leaveInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	playerID, err := resolvePlayerID(r, input.PlayerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	removed, err := h.games.Leave(playerID, input.GameMode)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"removed": removed}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetGameHandler обрабатывает GET /api/v1/games/{gameID}
func (h *GameHandler) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	game, err := h.games.Game(id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"game": game}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StatusHandler обрабатывает GET /api/v1/status
func (h *GameHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, h.games.Status(), nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *GameHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": "ok"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
