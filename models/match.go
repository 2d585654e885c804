package models

// TournamentMatch - одна ячейка сетки. Места в следующих раундах остаются nil,
// пока исходные ячейки не дадут победителей.
type TournamentMatch struct {
	ID           string       `json:"id"`
	TournamentID string       `json:"tournamentId"`
	Round        int          `json:"round"`
	OrderInRound int          `json:"order"`
	Status       Status       `json:"status"`
	Player1      *Participant `json:"player1,omitempty"`
	Player2      *Participant `json:"player2,omitempty"`
	Winner       string       `json:"winner,omitempty"`
	Score        string       `json:"score,omitempty"`
	GameID       string       `json:"gameId,omitempty"`
	IsFinal      bool         `json:"isFinal"`

	SourceMatch1ID string `json:"sourceMatch1,omitempty"`
	SourceMatch2ID string `json:"sourceMatch2,omitempty"`
}

func (m TournamentMatch) HasPlayer(id string) bool {
	return (m.Player1 != nil && m.Player1.ID == id) || (m.Player2 != nil && m.Player2.ID == id)
}

// Opponent возвращает второго участника ячейки, если он есть.
func (m TournamentMatch) Opponent(id string) *Participant {
	switch {
	case m.Player1 != nil && m.Player1.ID == id:
		return m.Player2
	case m.Player2 != nil && m.Player2.ID == id:
		return m.Player1
	}
	return nil
}
