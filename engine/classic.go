package engine

import "github.com/Dosada05/pong-server/models"

const (
	classicAcceleration = 1.05
	classicMaxSpeed     = 15.0
)

// classicRules: каждый отбив ускоряет мяч на 5%, вертикальный угол сохраняется.
type classicRules struct {
	scoring
	mode models.GameMode
}

func newClassicRules(mode models.GameMode, opts Options) *classicRules {
	return &classicRules{scoring: scoring{opts: opts}, mode: mode}
}

func (r *classicRules) Mode() models.GameMode {
	return r.mode
}

func (r *classicRules) Initialize(g *models.Game) {
	g.Mode = r.mode
	initialize(g, r.opts)
}

func (r *classicRules) Step(g *models.Game) StepResult {
	prev := g.Ball
	advanceBall(&g.Ball)
	bounceWalls(&g.Ball)

	if p := paddleContact(g, prev); p != nil {
		returnBall(&g.Ball, p, classicAcceleration, classicMaxSpeed)
	}
	return r.settle(g)
}

func (r *classicRules) MovePaddle(g *models.Game, playerID string, deltaY float64) bool {
	return movePaddle(g, playerID, deltaY)
}
