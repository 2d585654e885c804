// Package bot drives the paddle of the in-process opponent in bot games.
package bot

import (
	"math"
	"time"

	"github.com/Dosada05/pong-server/models"
)

const (
	ReactionInterval = time.Second
	Speed            = 10.0 // px за тик
	DeadZone         = 15.0
)

// Player решает, как сдвинуть ракетку на каждом тике. На мяч смотрит не
// чаще раза в ReactionInterval и до следующего взгляда идёт к выбранной цели.
type Player struct {
	ID string

	decidedAt time.Time
	target    float64
	hasTarget bool
}

func New(id string) *Player {
	return &Player{ID: id}
}

// Move возвращает сдвиг ракетки на этот тик; 0, если бота нет в g.
func (b *Player) Move(g models.Game, now time.Time) float64 {
	self := g.PlayerByID(b.ID)
	if self == nil {
		return 0
	}

	if !b.hasTarget || now.Sub(b.decidedAt) >= ReactionInterval {
		b.target = chooseTarget(g.Ball, self.X)
		b.decidedAt = now
		b.hasTarget = true
	}

	diff := b.target - self.Y
	if math.Abs(diff) <= DeadZone {
		return 0
	}
	return math.Copysign(math.Min(Speed, math.Abs(diff)), diff)
}

// chooseTarget предсказывает, где летящий к боту мяч пересечёт paddleX,
// или возвращает центр, если мяч удаляется.
func chooseTarget(ball models.Ball, paddleX float64) float64 {
	approaching := (paddleX > ball.X && ball.VX > 0) || (paddleX < ball.X && ball.VX < 0)
	if !approaching {
		return models.CanvasHeight / 2
	}
	return PredictY(ball, paddleX)
}

// PredictY follows the ball to paddleX, reflecting off the top and bottom walls.
func PredictY(ball models.Ball, paddleX float64) float64 {
	if ball.VX == 0 {
		return ball.Y
	}
	ticks := (paddleX - ball.X) / ball.VX
	if ticks < 0 {
		return ball.Y
	}

	const low = float64(models.BallRadius)
	span := float64(models.CanvasHeight) - 2*low

	y := math.Mod(ball.Y+ball.VY*ticks-low, 2*span)
	if y < 0 {
		y += 2 * span
	}
	if y > span {
		y = 2*span - y
	}
	return y + low
}
