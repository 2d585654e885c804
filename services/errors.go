package services

import "errors"

// Ошибки сервисного слоя, используемые в маппинге HTTP.
var (
	// Ошибки валидации
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidGameMode  = errors.New("game mode must be one of classic, tournament, bot")
	ErrPlayerIDRequired = errors.New("player id is required")

	// Ошибки конфликтов
	ErrAlreadyQueued       = errors.New("player is already queued")
	ErrAlreadyInGame       = errors.New("player is already in an active game")
	ErrAlreadyInTournament = errors.New("player is already in an active tournament")

	// Ошибки, специфичные для сущностей
	ErrGameNotFound            = errors.New("game not found")
	ErrTournamentNotFound      = errors.New("tournament not found")
	ErrTournamentMatchNotFound = errors.New("tournament match not found")
	ErrNotParticipant          = errors.New("player is not a participant")

	// Ошибки турниров
	ErrTournamentFinished         = errors.New("tournament is already finished")
	ErrTournamentNotForming       = errors.New("tournament has already started")
	ErrTournamentMatchFinished    = errors.New("tournament match is already finished")
	ErrTournamentInvalidCohort    = errors.New("tournament cohort size is invalid")
	ErrTournamentWinnerNotInMatch = errors.New("winner does not play in this tournament match")
)
