package brackets

import (
	"context"

	"github.com/Dosada05/pong-server/models"
)

type GenerateBracketParams struct {
	TournamentID string
	Participants []models.Participant
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error)

	GetName() string
}
