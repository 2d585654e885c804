package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/pong-server/brackets"
	"github.com/Dosada05/pong-server/models"
	"github.com/Dosada05/pong-server/utils"
)

// Сколько завершённых турниров держим в памяти для просмотра.
const finishedTournamentsKept = 20

// Advance - результат изменения сетки: турнир после изменения, матчи,
// которые можно начинать, и выбывшие игроки. Cancelled означает, что турнир
// распущен, не начавшись.
type Advance struct {
	Tournament models.Tournament
	Games      []models.Game
	Eliminated []string
	Finished   bool
	Cancelled  bool
}

type tournamentState struct {
	t         models.Tournament
	ready     map[string]bool
	withdrawn map[string]bool
}

// TournamentService проводит турниры на выбывание: сбор (каждое место
// присылает ready), игра (ячейка становится матчем, как только известны оба
// участника) и завершение (финал определил победителя).
type TournamentService struct {
	generator brackets.BracketGenerator
	logger    *slog.Logger

	mu          sync.Mutex
	tournaments map[string]*tournamentState
	byGame      map[string]string
	byPlayer    map[string]string
	finished    []string
}

func NewTournamentService(generator brackets.BracketGenerator, logger *slog.Logger) *TournamentService {
	return &TournamentService{
		generator:   generator,
		logger:      logger.With(slog.String("component", "tournaments")),
		tournaments: make(map[string]*tournamentState),
		byGame:      make(map[string]string),
		byPlayer:    make(map[string]string),
	}
}

// CreateTournament строит всю сетку в порядке очереди (1v2, 3v4, ...).
// Турнир собирается, пока все места не пришлют ready.
func (s *TournamentService) CreateTournament(ctx context.Context, players []models.Participant) (models.Tournament, error) {
	id := utils.NewID("tournament-")

	cells, err := s.generator.GenerateBracket(ctx, brackets.GenerateBracketParams{
		TournamentID: id,
		Participants: players,
	})
	if err != nil {
		return models.Tournament{}, fmt.Errorf("%w: %v", ErrTournamentInvalidCohort, err)
	}

	cellID := func(uid string) string {
		return id + "-" + strings.ToLower(uid)
	}

	bracket := make([]models.TournamentMatch, 0, len(cells))
	for _, c := range cells {
		m := models.TournamentMatch{
			ID:           cellID(c.UID),
			TournamentID: id,
			Round:        c.Round,
			OrderInRound: c.OrderInRound,
			Status:       models.StatusWaiting,
			Player1:      c.Participant1,
			Player2:      c.Participant2,
			IsFinal:      c.IsFinal,
		}
		if c.SourceMatch1UID != nil {
			m.SourceMatch1ID = cellID(*c.SourceMatch1UID)
		}
		if c.SourceMatch2UID != nil {
			m.SourceMatch2ID = cellID(*c.SourceMatch2UID)
		}
		bracket = append(bracket, m)
	}

	st := &tournamentState{
		t: models.Tournament{
			ID:        id,
			Status:    models.StatusWaiting,
			Players:   append([]models.Participant(nil), players...),
			Bracket:   bracket,
			CreatedAt: time.Now().UTC(),
		},
		ready:     make(map[string]bool, len(players)),
		withdrawn: make(map[string]bool),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range players {
		if other, busy := s.byPlayer[p.ID]; busy {
			return models.Tournament{}, fmt.Errorf("%w: %s in %s", ErrAlreadyInTournament, p.ID, other)
		}
	}
	s.tournaments[id] = st
	for _, p := range players {
		s.byPlayer[p.ID] = id
	}

	s.logger.Info("tournament created",
		slog.String("tournament_id", id),
		slog.String("format", s.generator.GetName()),
		slog.Any("players", models.ParticipantIDs(players)))

	return snapshotTournament(st.t), nil
}

// MarkReady отмечает готовность места во время сбора. Когда готово
// последнее оставшееся место, стартует первый раунд и возвращаются его матчи.
func (s *TournamentService) MarkReady(tournamentID, playerID string) (Advance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tournaments[tournamentID]
	if !ok {
		return Advance{}, fmt.Errorf("%w: %s", ErrTournamentNotFound, tournamentID)
	}
	if !st.t.HasPlayer(playerID) || st.withdrawn[playerID] {
		return Advance{}, fmt.Errorf("%w: %s", ErrNotParticipant, playerID)
	}
	switch st.t.Status {
	case models.StatusWaiting:
	case models.StatusFinished:
		return Advance{}, fmt.Errorf("%w: %s", ErrTournamentFinished, tournamentID)
	default:
		return Advance{}, ErrTournamentNotForming
	}

	st.ready[playerID] = true
	if !s.allPresentReadyLocked(st) {
		return Advance{Tournament: snapshotTournament(st.t)}, nil
	}
	return s.startLocked(st), nil
}

func (s *TournamentService) allPresentReadyLocked(st *tournamentState) bool {
	for _, p := range st.t.Players {
		if !st.withdrawn[p.ID] && !st.ready[p.ID] {
			return false
		}
	}
	return true
}

func (s *TournamentService) startLocked(st *tournamentState) Advance {
	st.t.Status = models.StatusPlaying
	s.logger.Info("tournament started", slog.String("tournament_id", st.t.ID))
	return s.advanceLocked(st)
}

// BracketWinner записывает победителя ячейки, сыгранной как gameID.
func (s *TournamentService) BracketWinner(gameID, winnerID, score string) (models.TournamentMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tid, ok := s.byGame[gameID]
	if !ok {
		return models.TournamentMatch{}, fmt.Errorf("%w: game %s", ErrTournamentMatchNotFound, gameID)
	}
	st := s.tournaments[tid]
	cell := findCellByGame(&st.t, gameID)
	if cell == nil {
		return models.TournamentMatch{}, fmt.Errorf("%w: game %s", ErrTournamentMatchNotFound, gameID)
	}
	if cell.Status == models.StatusFinished {
		return models.TournamentMatch{}, ErrTournamentMatchFinished
	}
	if !cell.HasPlayer(winnerID) {
		return models.TournamentMatch{}, fmt.Errorf("%w: %s", ErrTournamentWinnerNotInMatch, winnerID)
	}

	s.finishCellLocked(st, cell, winnerID, score)
	delete(s.byGame, gameID)

	s.logger.Info("bracket match finished",
		slog.String("tournament_id", tid),
		slog.String("match_id", cell.ID),
		slog.String("winner_id", winnerID),
		slog.String("score", score))

	return snapshotCell(*cell), nil
}

// PairTheWinners moves finished cells' winners into their successor cells and
// returns the games that became playable. When the final is decided the
// tournament is finished and its winner set; Finished is true only for the
// call that finished it.
func (s *TournamentService) PairTheWinners(tournamentID string) (Advance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tournaments[tournamentID]
	if !ok {
		return Advance{}, fmt.Errorf("%w: %s", ErrTournamentNotFound, tournamentID)
	}
	switch st.t.Status {
	case models.StatusWaiting, models.StatusFinished:
		return Advance{Tournament: snapshotTournament(st.t)}, nil
	}
	return s.advanceLocked(st), nil
}

// Withdraw снимает игрока с дальнейших пар. Ячейки, ожидающие его, решаются
// технической победой соперника. Уже идущий матч завершится своим forfeit.
func (s *TournamentService) Withdraw(playerID string) (Advance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tid, ok := s.byPlayer[playerID]
	if !ok {
		return Advance{}, false
	}
	st := s.tournaments[tid]
	st.withdrawn[playerID] = true
	delete(s.byPlayer, playerID)

	s.logger.Info("tournament player withdrew",
		slog.String("tournament_id", tid),
		slog.String("player_id", playerID))

	if st.t.Status == models.StatusWaiting {
		if !s.allPresentReadyLocked(st) {
			adv := Advance{Tournament: snapshotTournament(st.t)}
			adv.Eliminated = []string{playerID}
			return adv, true
		}
		adv := s.startLocked(st)
		adv.Eliminated = uniqueIDs(append([]string{playerID}, adv.Eliminated...))
		return adv, true
	}

	adv := s.advanceLocked(st)
	adv.Eliminated = uniqueIDs(append([]string{playerID}, adv.Eliminated...))
	return adv, true
}

// ExpireForming закрывает сбор турнира по таймауту: все места без ready
// снимаются, оставшиеся получают технические победы. Если ready не прислал
// никто, турнир распускается. false - турнир уже не собирается.
func (s *TournamentService) ExpireForming(tournamentID string) (Advance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tournaments[tournamentID]
	if !ok || st.t.Status != models.StatusWaiting {
		return Advance{}, false
	}

	var absent []string
	present := 0
	for _, p := range st.t.Players {
		switch {
		case st.withdrawn[p.ID]:
		case st.ready[p.ID]:
			present++
		default:
			absent = append(absent, p.ID)
		}
	}
	for _, id := range absent {
		st.withdrawn[id] = true
		if s.byPlayer[id] == tournamentID {
			delete(s.byPlayer, id)
		}
	}

	s.logger.Info("tournament forming timed out",
		slog.String("tournament_id", tournamentID),
		slog.Any("absent", absent),
		slog.Int("ready", present))

	if present == 0 {
		for _, p := range st.t.Players {
			if s.byPlayer[p.ID] == tournamentID {
				delete(s.byPlayer, p.ID)
			}
		}
		delete(s.tournaments, tournamentID)
		return Advance{Tournament: snapshotTournament(st.t), Eliminated: absent, Cancelled: true}, true
	}

	adv := s.startLocked(st)
	adv.Eliminated = uniqueIDs(append(absent, adv.Eliminated...))
	return adv, true
}

// advanceLocked повторяется, пока что-то меняется: победители переходят в
// следующие ячейки, ячейки с двумя участниками становятся матчами (или
// техническими победами), решённый финал завершает турнир.
func (s *TournamentService) advanceLocked(st *tournamentState) Advance {
	var adv Advance

	for progressed := true; progressed && st.t.Status == models.StatusPlaying; {
		progressed = false

		for i := range st.t.Bracket {
			cell := &st.t.Bracket[i]
			if cell.Status != models.StatusFinished || cell.IsFinal {
				continue
			}
			if s.propagateLocked(st, cell) {
				progressed = true
			}
		}

		for i := range st.t.Bracket {
			cell := &st.t.Bracket[i]
			if cell.Status != models.StatusWaiting || cell.Player1 == nil || cell.Player2 == nil {
				continue
			}
			progressed = true

			w1, w2 := st.withdrawn[cell.Player1.ID], st.withdrawn[cell.Player2.ID]
			if w1 || w2 {
				winner := cell.Player1.ID
				if w1 && !w2 {
					winner = cell.Player2.ID
				}
				loser := cell.Opponent(winner).ID
				s.finishCellLocked(st, cell, winner, "walkover")
				adv.Eliminated = append(adv.Eliminated, loser)
				s.logger.Info("bracket match walkover",
					slog.String("tournament_id", st.t.ID),
					slog.String("match_id", cell.ID),
					slog.String("winner_id", winner))
				continue
			}

			cell.Status = models.StatusPlaying
			cell.GameID = cell.ID
			s.byGame[cell.GameID] = st.t.ID
			adv.Games = append(adv.Games, gameForCell(*cell))
		}

		if final, ok := st.t.Final(); ok && final.Status == models.StatusFinished {
			s.finishTournamentLocked(st, final)
			adv.Finished = true
		}
	}

	adv.Tournament = snapshotTournament(st.t)
	return adv
}

// propagateLocked переносит победителя ячейки в следующую; false, если он
// уже там.
func (s *TournamentService) propagateLocked(st *tournamentState, cell *models.TournamentMatch) bool {
	winner, ok := st.t.PlayerByID(cell.Winner)
	if !ok {
		return false
	}
	for i := range st.t.Bracket {
		next := &st.t.Bracket[i]
		switch cell.ID {
		case next.SourceMatch1ID:
			if next.Player1 == nil {
				w := winner
				next.Player1 = &w
				return true
			}
		case next.SourceMatch2ID:
			if next.Player2 == nil {
				w := winner
				next.Player2 = &w
				return true
			}
		}
	}
	return false
}

func (s *TournamentService) finishCellLocked(st *tournamentState, cell *models.TournamentMatch, winnerID, score string) {
	cell.Status = models.StatusFinished
	cell.Winner = winnerID
	cell.Score = score
	if loser := cell.Opponent(winnerID); loser != nil {
		if s.byPlayer[loser.ID] == st.t.ID {
			delete(s.byPlayer, loser.ID)
		}
	}
}

func (s *TournamentService) finishTournamentLocked(st *tournamentState, final models.TournamentMatch) {
	now := time.Now().UTC()
	st.t.Status = models.StatusFinished
	st.t.Winner = final.Winner
	st.t.FinalScore = final.Score
	st.t.FinishedAt = &now

	for _, p := range st.t.Players {
		if s.byPlayer[p.ID] == st.t.ID {
			delete(s.byPlayer, p.ID)
		}
	}
	for gameID, tid := range s.byGame {
		if tid == st.t.ID {
			delete(s.byGame, gameID)
		}
	}

	s.finished = append(s.finished, st.t.ID)
	if len(s.finished) > finishedTournamentsKept {
		delete(s.tournaments, s.finished[0])
		s.finished = s.finished[1:]
	}

	s.logger.Info("tournament finished",
		slog.String("tournament_id", st.t.ID),
		slog.String("winner_id", st.t.Winner),
		slog.String("final_score", st.t.FinalScore))
}

func (s *TournamentService) Get(tournamentID string) (models.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tournaments[tournamentID]
	if !ok {
		return models.Tournament{}, fmt.Errorf("%w: %s", ErrTournamentNotFound, tournamentID)
	}
	return snapshotTournament(st.t), nil
}

func (s *TournamentService) List() []models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Tournament, 0, len(s.tournaments))
	for _, st := range s.tournaments {
		out = append(out, snapshotTournament(st.t))
	}
	// новые первыми, при равном времени - по id
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TournamentOf возвращает id турнира, в котором игрок ещё участвует.
func (s *TournamentService) TournamentOf(playerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlayer[playerID]
	return id, ok
}

// ByGame возвращает id турнира, которому принадлежит матч сетки.
func (s *TournamentService) ByGame(gameID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byGame[gameID]
	return id, ok
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func findCellByGame(t *models.Tournament, gameID string) *models.TournamentMatch {
	for i := range t.Bracket {
		if t.Bracket[i].GameID == gameID {
			return &t.Bracket[i]
		}
	}
	return nil
}

func gameForCell(cell models.TournamentMatch) models.Game {
	return models.Game{
		ID:           cell.GameID,
		Mode:         models.ModeTournament,
		Status:       models.StatusWaiting,
		Player1:      cell.Player1.AsPlayer(),
		Player2:      cell.Player2.AsPlayer(),
		TournamentID: cell.TournamentID,
	}
}

func snapshotCell(m models.TournamentMatch) models.TournamentMatch {
	if m.Player1 != nil {
		p := *m.Player1
		m.Player1 = &p
	}
	if m.Player2 != nil {
		p := *m.Player2
		m.Player2 = &p
	}
	return m
}

func snapshotTournament(t models.Tournament) models.Tournament {
	t.Players = append([]models.Participant(nil), t.Players...)
	bracket := make([]models.TournamentMatch, len(t.Bracket))
	for i, m := range t.Bracket {
		bracket[i] = snapshotCell(m)
	}
	t.Bracket = bracket
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		t.FinishedAt = &f
	}
	return t
}
