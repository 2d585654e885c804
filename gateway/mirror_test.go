package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/pong-server/models"
)

func sampleGame() models.Game {
	return models.Game{
		ID:      "g1",
		Mode:    models.ModeClassic,
		Status:  models.StatusPlaying,
		Player1: models.Player{ID: "alice", X: 20, Y: 100, Score: 2},
		Player2: models.Player{ID: "bob", X: 880, Y: 300, Score: 1},
		Ball:    models.Ball{X: 200, Y: 120, VX: 5, VY: -2},
	}
}

func TestUpdateForPlayerOneIsUnchanged(t *testing.T) {
	g := sampleGame()
	view, ok := UpdateFor(g, "alice")
	require.True(t, ok)

	assert.Equal(t, g.Player1, view.Player)
	assert.Equal(t, g.Player2, view.Opponent)
	assert.Equal(t, g.Ball, view.Ball)
	assert.Equal(t, "g1", view.GameID)
}

func TestUpdateForPlayerTwoIsMirrored(t *testing.T) {
	g := sampleGame()
	view, ok := UpdateFor(g, "bob")
	require.True(t, ok)

	assert.Equal(t, "bob", view.Player.ID)
	assert.Equal(t, "alice", view.Opponent.ID)
	assert.Equal(t, float64(models.CanvasWidth)-200, view.Ball.X)
	assert.Equal(t, 120.0, view.Ball.Y)
	assert.Equal(t, -5.0, view.Ball.VX)
	assert.Equal(t, -2.0, view.Ball.VY)

	// своя ракетка слева, чужая справа
	assert.Equal(t, 20.0, view.Player.X)
	assert.Equal(t, 880.0, view.Opponent.X)
	assert.Equal(t, 300.0, view.Player.Y)
	assert.Equal(t, 1, view.Player.Score)
	assert.Equal(t, 2, view.Opponent.Score)
}

func TestMirroringAcrossPositions(t *testing.T) {
	g := sampleGame()
	for _, x := range []float64{0, 10, 450, 899.5, 900} {
		g.Ball.X = x
		g.Ball.Y = x / 2
		view, ok := UpdateFor(g, "bob")
		require.True(t, ok)
		assert.Equal(t, models.CanvasWidth-x, view.Ball.X)
		assert.Equal(t, x/2, view.Ball.Y)
	}
}

func TestStateForSwapsPlayersForPlayerTwo(t *testing.T) {
	g := sampleGame()

	own, ok := StateFor(g, "alice")
	require.True(t, ok)
	assert.Equal(t, g, own)

	mirrored, ok := StateFor(g, "bob")
	require.True(t, ok)
	assert.Equal(t, "bob", mirrored.Player1.ID)
	assert.Equal(t, "alice", mirrored.Player2.ID)
	assert.Equal(t, 20.0, mirrored.Player1.X)
	assert.Equal(t, float64(models.CanvasWidth)-200, mirrored.Ball.X)
	assert.Equal(t, "alice", g.Player1.ID, "input game is not modified")
}

func TestUnknownRecipient(t *testing.T) {
	_, ok := UpdateFor(sampleGame(), "carol")
	assert.False(t, ok)
	_, ok = StateFor(sampleGame(), "")
	assert.False(t, ok)
}
