package models

// Participant - игрок вне идущей игры: запись в очереди или место в турнире.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p Participant) AsPlayer() Player {
	return Player{ID: p.ID, Name: p.Name}
}

func ParticipantIDs(ps []Participant) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids
}
