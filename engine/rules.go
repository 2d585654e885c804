package engine

import (
	"fmt"

	"github.com/Dosada05/pong-server/models"
)

// StepResult - итог одного шага симуляции.
type StepResult struct {
	Scored   bool
	ScorerID string
	Finished bool
	WinnerID string
}

// Rules - зависящая от режима часть игры: расстановка, физика и счёт.
// Реализации не потокобезопасны, доступ к игре сериализует движок.
type Rules interface {
	Mode() models.GameMode
	Initialize(g *models.Game)
	Step(g *models.Game) StepResult
	MovePaddle(g *models.Game, playerID string, deltaY float64) bool
}

// ServeFunc sets the velocity of a freshly centred ball.
type ServeFunc func(b *models.Ball, speed float64)

type Options struct {
	TargetScore int
	ServeSpeed  float64
	Serve       ServeFunc
}

func (o Options) withDefaults() Options {
	if o.TargetScore <= 0 {
		o.TargetScore = models.DefaultTargetScore
	}
	if o.ServeSpeed <= 0 {
		o.ServeSpeed = models.DefaultServeSpeed
	}
	if o.Serve == nil {
		o.Serve = RandomServe
	}
	return o
}

// NewRules возвращает правила режима. Игры с ботом идут по классическим правилам.
func NewRules(mode models.GameMode, opts Options) (Rules, error) {
	opts = opts.withDefaults()

	switch mode {
	case models.ModeClassic, models.ModeBot:
		return newClassicRules(mode, opts), nil
	case models.ModeTournament:
		return newTournamentRules(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}
