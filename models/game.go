package models

// Размеры поля и объектов в пикселях.
const (
	CanvasWidth  = 900
	CanvasHeight = 550

	PaddleOffset = 20 // расстояние от края поля до центра ракетки
	PaddleWidth  = 10
	PaddleHeight = 100
	BallRadius   = 10

	DefaultTickRate    = 60
	DefaultTargetScore = 3
	DefaultServeSpeed  = 5.0
)

// GameMode определяет правила и способ подбора соперника.
type GameMode string

const (
	ModeClassic    GameMode = "classic"
	ModeTournament GameMode = "tournament"
	ModeBot        GameMode = "bot"
)

func (m GameMode) IsValid() bool {
	switch m {
	case ModeClassic, ModeTournament, ModeBot:
		return true
	default:
		return false
	}
}

// Status общий для игр, турниров и ячеек сетки.
// Для турнира StatusWaiting означает, что группа ещё собирается.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusReady    Status = "ready"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

var statusOrder = map[Status]int{
	StatusWaiting:  0,
	StatusReady:    1,
	StatusPlaying:  2,
	StatusFinished: 3,
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s Status) CanAdvanceTo(next Status) bool {
	from, ok := statusOrder[s]
	if !ok {
		return false
	}
	to, ok := statusOrder[next]
	if !ok {
		return false
	}
	return to > from
}

type Player struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score int     `json:"score"`
	Ready bool    `json:"ready"`
}

type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// Game is a value type: a copy is a consistent snapshot of the match.
type Game struct {
	ID           string   `json:"id"`
	Mode         GameMode `json:"mode"`
	Status       Status   `json:"status"`
	Player1      Player   `json:"player1"`
	Player2      Player   `json:"player2"`
	Ball         Ball     `json:"ball"`
	TournamentID string   `json:"tournamentId,omitempty"`

	// LastScorer - id игрока, забившего последним.
	LastScorer string `json:"-"`
	// Resets - число сбросов мяча после голов.
	Resets int `json:"-"`
}

// PlayerByID возвращает указатель внутрь g или nil, если игрока нет в g.
func (g *Game) PlayerByID(id string) *Player {
	switch id {
	case "":
		return nil
	case g.Player1.ID:
		return &g.Player1
	case g.Player2.ID:
		return &g.Player2
	}
	return nil
}

func (g *Game) OpponentOf(id string) *Player {
	switch id {
	case "":
		return nil
	case g.Player1.ID:
		return &g.Player2
	case g.Player2.ID:
		return &g.Player1
	}
	return nil
}

func (g Game) HasPlayer(id string) bool {
	return id != "" && (g.Player1.ID == id || g.Player2.ID == id)
}

func (g Game) BothReady() bool {
	return g.Player1.Ready && g.Player2.Ready
}
