package handlers

import (
	"net/http"
	"sort"

	"github.com/Dosada05/pong-server/models"
)

// TournamentReader - сторона чтения services.TournamentService.
type TournamentReader interface {
	Get(tournamentID string) (models.Tournament, error)
	List() []models.Tournament
}

type TournamentHandler struct {
	tournaments TournamentReader
}

func NewTournamentHandler(tr TournamentReader) *TournamentHandler {
	return &TournamentHandler{tournaments: tr}
}

// GetByIDHandler обрабатывает GET /api/v1/tournaments/{tournamentID}
func (h *TournamentHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournaments.Get(id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /api/v1/tournaments
// Новые турниры первыми.
func (h *TournamentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	list := h.tournaments.List()
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": list}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
