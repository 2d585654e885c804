package engine

import (
	"math"
	"math/rand"

	"github.com/Dosada05/pong-server/models"
)

const (
	// Мяч засчитывается, когда уходит за ракетку дальше этой границы.
	leftGoalLine  = models.PaddleOffset - 10
	rightGoalLine = models.CanvasWidth - models.PaddleOffset + 10

	maxVerticalServe = 0.4 // доля от скорости подачи
)

// RandomServe подаёт мяч в случайную сторону с небольшой случайной вертикальной скоростью.
func RandomServe(b *models.Ball, speed float64) {
	dir := 1.0
	if rand.Intn(2) == 0 {
		dir = -1
	}
	b.VX = dir * speed
	b.VY = (rand.Float64()*2 - 1) * speed * maxVerticalServe
}

func resetBall(b *models.Ball, serve ServeFunc, speed float64) {
	b.X = models.CanvasWidth / 2
	b.Y = models.CanvasHeight / 2
	serve(b, speed)
}

func placePaddles(g *models.Game) {
	g.Player1.X = models.PaddleOffset
	g.Player1.Y = models.CanvasHeight / 2
	g.Player2.X = models.CanvasWidth - models.PaddleOffset
	g.Player2.Y = models.CanvasHeight / 2
}

func clampPaddle(y float64) float64 {
	const half = models.PaddleHeight / 2
	return math.Max(half, math.Min(models.CanvasHeight-half, y))
}

func movePaddle(g *models.Game, playerID string, deltaY float64) bool {
	if math.IsNaN(deltaY) || math.IsInf(deltaY, 0) {
		return false
	}
	p := g.PlayerByID(playerID)
	if p == nil {
		return false
	}
	p.Y = clampPaddle(p.Y + deltaY)
	return true
}

func advanceBall(b *models.Ball) {
	b.X += b.VX
	b.Y += b.VY
}

// bounceWalls keeps BallRadius <= Y <= CanvasHeight-BallRadius.
func bounceWalls(b *models.Ball) {
	const top = models.BallRadius
	const bottom = models.CanvasHeight - models.BallRadius

	if b.Y < top {
		b.Y = math.Min(2*top-b.Y, bottom)
		b.VY = math.Abs(b.VY)
	} else if b.Y > bottom {
		b.Y = math.Max(2*bottom-b.Y, top)
		b.VY = -math.Abs(b.VY)
	}
}

// paddleContact возвращает ракетку, плоскость которой передний край мяча
// пересёк за последний ход, или nil. prev - мяч до advanceBall.
func paddleContact(g *models.Game, prev models.Ball) *models.Player {
	b := g.Ball
	reach := float64(models.PaddleHeight/2 + models.BallRadius)

	if b.VX < 0 {
		face := g.Player1.X + models.PaddleWidth/2
		if prev.X-models.BallRadius >= face && b.X-models.BallRadius <= face && math.Abs(b.Y-g.Player1.Y) <= reach {
			return &g.Player1
		}
		return nil
	}
	if b.VX > 0 {
		face := g.Player2.X - models.PaddleWidth/2
		if prev.X+models.BallRadius <= face && b.X+models.BallRadius >= face && math.Abs(b.Y-g.Player2.Y) <= reach {
			return &g.Player2
		}
	}
	return nil
}

// returnBall ставит мяч перед ракеткой p и разворачивает его по горизонтали,
// умножая скорость на accel, но не выше maxSpeed.
func returnBall(b *models.Ball, p *models.Player, accel, maxSpeed float64) {
	if p.X < models.CanvasWidth/2 {
		b.X = p.X + models.PaddleWidth/2 + models.BallRadius
	} else {
		b.X = p.X - models.PaddleWidth/2 - models.BallRadius
	}

	vx := math.Min(math.Abs(b.VX)*accel, maxSpeed)
	if b.VX > 0 {
		b.VX = -vx
	} else {
		b.VX = vx
	}
	b.VY = math.Max(-maxSpeed, math.Min(maxSpeed, b.VY*accel))
}

// scoring - общая для всех режимов логика гола, сброса мяча и победы.
type scoring struct {
	opts Options
}

func (s scoring) settle(g *models.Game) StepResult {
	var scorer *models.Player
	switch {
	case g.Ball.VX < 0 && g.Ball.X < leftGoalLine:
		scorer = &g.Player2
	case g.Ball.VX > 0 && g.Ball.X > rightGoalLine:
		scorer = &g.Player1
	default:
		return StepResult{}
	}

	scorer.Score++
	g.LastScorer = scorer.ID
	g.Resets++
	resetBall(&g.Ball, s.opts.Serve, s.opts.ServeSpeed)

	res := StepResult{Scored: true, ScorerID: scorer.ID}
	if scorer.Score >= s.opts.TargetScore {
		res.Finished = true
		res.WinnerID = leader(g)
	}
	return res
}

// leader выбирает игрока с большим счётом; при равенстве - забившего последним.
func leader(g *models.Game) string {
	switch {
	case g.Player1.Score > g.Player2.Score:
		return g.Player1.ID
	case g.Player2.Score > g.Player1.Score:
		return g.Player2.ID
	default:
		return g.LastScorer
	}
}

func initialize(g *models.Game, opts Options) {
	placePaddles(g)
	g.Player1.Score, g.Player2.Score = 0, 0
	g.Player1.Ready, g.Player2.Ready = false, false
	g.LastScorer = ""
	g.Resets = 0
	resetBall(&g.Ball, opts.Serve, opts.ServeSpeed)
	g.Status = models.StatusReady
}
