package brackets

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"github.com/Dosada05/pong-server/models"
)

var (
	ErrNotEnoughParticipants = errors.New("not enough participants to generate a single elimination bracket (minimum 2)")
	ErrBracketSizeNotPow2    = errors.New("single elimination bracket needs a power-of-two number of participants")
	ErrDuplicateParticipant  = errors.New("participant appears twice in the bracket")
)

type BracketMatch struct {
	UID          string
	Round        int
	OrderInRound int

	Participant1 *models.Participant
	Participant2 *models.Participant

	SourceMatch1UID *string
	SourceMatch2UID *string

	IsPlaceholder bool
	IsFinal       bool
}

// node - участник первого раунда либо победитель матча предыдущего раунда.
type node struct {
	participant    *models.Participant
	sourceMatchUID *string
}

type SingleEliminationGenerator struct {
}

func NewSingleEliminationGenerator() BracketGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

// GenerateBracket строит все раунды сразу. Ячейки первого раунда составляют
// пары в заданном порядке (1v2, 3v4, ...); следующие ячейки заполняются
// победителями двух исходных. Последняя ячейка - финал.
func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	participants := params.Participants
	n := len(participants)

	if n < 2 {
		return nil, ErrNotEnoughParticipants
	}
	if bits.OnesCount(uint(n)) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrBracketSizeNotPow2, n)
	}

	seen := make(map[string]struct{}, n)
	currentRoundNodes := make([]*node, 0, n)
	for i := range participants {
		p := participants[i]
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, p.ID)
		}
		seen[p.ID] = struct{}{}
		currentRoundNodes = append(currentRoundNodes, &node{participant: &p})
	}

	numRounds := bits.Len(uint(n)) - 1
	allGeneratedMatches := make([]*BracketMatch, 0, n-1)

	for r := 1; r <= numRounds; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		nextRoundNodes := make([]*node, 0, len(currentRoundNodes)/2)

		for i := 0; i < len(currentRoundNodes); i += 2 {
			node1 := currentRoundNodes[i]
			node2 := currentRoundNodes[i+1]
			order := i/2 + 1
			uid := fmt.Sprintf("R%dM%d", r, order)

			bm := &BracketMatch{
				UID:          uid,
				Round:        r,
				OrderInRound: order,
				Participant1: node1.participant,
				Participant2: node2.participant,
				IsFinal:      r == numRounds,
			}
			if node1.sourceMatchUID != nil || node2.sourceMatchUID != nil {
				bm.SourceMatch1UID = node1.sourceMatchUID
				bm.SourceMatch2UID = node2.sourceMatchUID
				bm.IsPlaceholder = true
			}

			allGeneratedMatches = append(allGeneratedMatches, bm)
			nextRoundNodes = append(nextRoundNodes, &node{sourceMatchUID: &bm.UID})
		}
		currentRoundNodes = nextRoundNodes
	}

	if len(currentRoundNodes) != 1 {
		return nil, fmt.Errorf("internal error: %d nodes left after %d rounds", len(currentRoundNodes), numRounds)
	}

	sort.Slice(allGeneratedMatches, func(i, j int) bool {
		if allGeneratedMatches[i].Round != allGeneratedMatches[j].Round {
			return allGeneratedMatches[i].Round < allGeneratedMatches[j].Round
		}
		return allGeneratedMatches[i].OrderInRound < allGeneratedMatches[j].OrderInRound
	})

	return allGeneratedMatches, nil
}
