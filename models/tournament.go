package models

import "time"

// DefaultTournamentSize - размер когорты турнира по умолчанию.
const DefaultTournamentSize = 4

// Tournament представляет турнир на выбывание.
type Tournament struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	Players    []Participant     `json:"players"`
	Bracket    []TournamentMatch `json:"bracket"`
	Winner     string            `json:"winner,omitempty"`
	FinalScore string            `json:"finalScore,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

// Final возвращает единственную ячейку сетки без следующей.
func (t Tournament) Final() (TournamentMatch, bool) {
	for _, m := range t.Bracket {
		if m.IsFinal {
			return m, true
		}
	}
	return TournamentMatch{}, false
}

func (t Tournament) HasPlayer(id string) bool {
	for _, p := range t.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (t Tournament) PlayerByID(id string) (Participant, bool) {
	for _, p := range t.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}
