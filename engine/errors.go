package engine

import "errors"

var (
	ErrUnknownMode     = errors.New("unknown game mode")
	ErrInvalidGame     = errors.New("game needs an id and two distinct players")
	ErrGameExists      = errors.New("game with this id is already active")
	ErrPlayerBusy      = errors.New("player is already in an active game")
	ErrGameNotFound    = errors.New("game not found")
	ErrPlayerNotInGame = errors.New("player does not belong to this game")
	ErrGameFinished    = errors.New("game is already finished")
	ErrGameStarted     = errors.New("game has already started")
	ErrPlayersNotReady = errors.New("both players must be ready before the game starts")
)
