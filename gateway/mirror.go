package gateway

import "github.com/Dosada05/pong-server/models"

// Оба клиента рисуют себя слева. Для второго игрока поле отражается по горизонтали.

func mirrorX(x float64) float64 {
	return models.CanvasWidth - x
}

func mirrorPlayer(p models.Player) models.Player {
	p.X = mirrorX(p.X)
	return p
}

func mirrorBall(b models.Ball) models.Ball {
	b.X = mirrorX(b.X)
	b.VX = -b.VX
	return b
}

// UpdateFor expresses g from playerID's side. It returns false when the
// player does not play in g.
func UpdateFor(g models.Game, playerID string) (models.GameUpdatePayload, bool) {
	switch playerID {
	case "":
		return models.GameUpdatePayload{}, false
	case g.Player1.ID:
		return models.GameUpdatePayload{
			GameID:   g.ID,
			Status:   g.Status,
			Player:   g.Player1,
			Opponent: g.Player2,
			Ball:     g.Ball,
		}, true
	case g.Player2.ID:
		return models.GameUpdatePayload{
			GameID:   g.ID,
			Status:   g.Status,
			Player:   mirrorPlayer(g.Player2),
			Opponent: mirrorPlayer(g.Player1),
			Ball:     mirrorBall(g.Ball),
		}, true
	}
	return models.GameUpdatePayload{}, false
}

// StateFor is the full game as playerID sees it: the recipient is always
// player1.
func StateFor(g models.Game, playerID string) (models.Game, bool) {
	switch playerID {
	case "":
		return models.Game{}, false
	case g.Player1.ID:
		return g, true
	case g.Player2.ID:
		mirrored := g
		mirrored.Player1 = mirrorPlayer(g.Player2)
		mirrored.Player2 = mirrorPlayer(g.Player1)
		mirrored.Ball = mirrorBall(g.Ball)
		return mirrored, true
	}
	return models.Game{}, false
}
