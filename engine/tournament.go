package engine

import (
	"math"

	"github.com/Dosada05/pong-server/models"
)

const (
	tournamentAcceleration = 1.10
	tournamentMaxSpeed     = 18.0

	// Максимальный вертикальный угол отскока относительно горизонтальной скорости.
	tournamentMaxDeflection = 0.75
)

// tournamentRules - быстрый вариант: +10% за отбив, угол отскока зависит от
// точки удара о ракетку.
type tournamentRules struct {
	scoring
}

func newTournamentRules(opts Options) *tournamentRules {
	return &tournamentRules{scoring: scoring{opts: opts}}
}

func (r *tournamentRules) Mode() models.GameMode {
	return models.ModeTournament
}

func (r *tournamentRules) Initialize(g *models.Game) {
	g.Mode = models.ModeTournament
	initialize(g, r.opts)
}

func (r *tournamentRules) Step(g *models.Game) StepResult {
	prev := g.Ball
	advanceBall(&g.Ball)
	bounceWalls(&g.Ball)

	if p := paddleContact(g, prev); p != nil {
		offset := (g.Ball.Y - p.Y) / (models.PaddleHeight/2 + models.BallRadius)
		offset = math.Max(-1, math.Min(1, offset))

		returnBall(&g.Ball, p, tournamentAcceleration, tournamentMaxSpeed)
		g.Ball.VY = offset * math.Abs(g.Ball.VX) * tournamentMaxDeflection
	}
	return r.settle(g)
}

func (r *tournamentRules) MovePaddle(g *models.Game, playerID string, deltaY float64) bool {
	return movePaddle(g, playerID, deltaY)
}
