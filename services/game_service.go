package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/pong-server/bot"
	"github.com/Dosada05/pong-server/engine"
	"github.com/Dosada05/pong-server/gateway"
	"github.com/Dosada05/pong-server/metrics"
	"github.com/Dosada05/pong-server/models"
	"github.com/Dosada05/pong-server/utils"
)

// Notifier доставляет исходящие сообщения подключённым игрокам.
type Notifier interface {
	Send(playerID string, msg models.OutboundMessage) bool
	SendGameState(game models.Game)
	BroadcastGameState(game models.Game)
	SendError(playerID, message string) bool
	Connections() int
}

// ResultReporter публикует результаты матчей и турниров.
type ResultReporter interface {
	ReportMatch(ctx context.Context, result engine.Result, final bool) error
	ReportTournament(ctx context.Context, t models.Tournament) error
}

type GameServiceConfig struct {
	Engine         engine.Config
	ReadyTimeout   time.Duration // 0 disables the ready timeout
	PublishTimeout time.Duration
}

type JoinRequest struct {
	PlayerID   string          `json:"playerId"`
	PlayerName string          `json:"playerName"`
	GameMode   models.GameMode `json:"gameMode"`
}

type JoinResponse struct {
	Status       string `json:"status"`
	PlayerID     string `json:"playerId"`
	GameID       string `json:"gameId,omitempty"`
	TournamentID string `json:"tournamentId,omitempty"`
	Message      string `json:"message"`
}

const (
	JoinStatusWaiting = "waiting"
	JoinStatusMatched = "matched"

	reasonReadyTimeout = "ready timeout"
)

type ServerStatus struct {
	ActiveGames int                     `json:"activeGames"`
	Connections int                     `json:"connections"`
	Queues      map[models.GameMode]int `json:"queues"`
}

// GameService связывает матчмейкинг, движок, турниры и публикацию
// результатов. Обрабатывает события шлюза и колбэки движка.
type GameService struct {
	engine      *engine.Engine
	matchmaker  *Matchmaker
	tournaments *TournamentService
	reporter    ResultReporter
	notifier    Notifier
	cfg         GameServiceConfig
	logger      *slog.Logger
	now         func() time.Time

	mu          sync.Mutex
	readyTimers map[string]*time.Timer
	bots        map[string]*bot.Player

	publishing sync.WaitGroup
}

func NewGameService(
	cfg GameServiceConfig,
	matchmaker *Matchmaker,
	tournaments *TournamentService,
	reporter ResultReporter,
	notifier Notifier,
	m metrics.GameMetrics,
	logger *slog.Logger,
) *GameService {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 30 * time.Second
	}
	s := &GameService{
		matchmaker:  matchmaker,
		tournaments: tournaments,
		reporter:    reporter,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "games")),
		now:         time.Now,
		readyTimers: make(map[string]*time.Timer),
		bots:        make(map[string]*bot.Player),
	}
	s.engine = engine.New(cfg.Engine, s, m, logger)
	return s
}

// Join ставит игрока в очередь режима или сразу подбирает ему матч.
func (s *GameService) Join(ctx context.Context, req JoinRequest) (JoinResponse, error) {
	if req.PlayerID == "" {
		return JoinResponse{}, ErrPlayerIDRequired
	}
	if !req.GameMode.IsValid() {
		return JoinResponse{}, fmt.Errorf("%w: %q", ErrInvalidGameMode, req.GameMode)
	}
	if g, busy := s.engine.FindByPlayer(req.PlayerID); busy {
		return JoinResponse{}, fmt.Errorf("%w: %s", ErrAlreadyInGame, g.ID)
	}
	if tid, busy := s.tournaments.TournamentOf(req.PlayerID); busy {
		return JoinResponse{}, fmt.Errorf("%w: %s", ErrAlreadyInTournament, tid)
	}

	player := models.Participant{ID: req.PlayerID, Name: utils.DisplayName(req.PlayerName)}

	if req.GameMode == models.ModeBot {
		if mode, queued := s.matchmaker.QueuedMode(player.ID); queued {
			return JoinResponse{}, fmt.Errorf("%w in %s mode", ErrAlreadyQueued, mode)
		}
		game, err := s.startBotGame(player)
		if err != nil {
			return JoinResponse{}, err
		}
		return JoinResponse{
			Status:   JoinStatusMatched,
			PlayerID: player.ID,
			GameID:   game.ID,
			Message:  "Connecting to game...",
		}, nil
	}

	out, err := s.matchmaker.Join(player, req.GameMode)
	if err != nil {
		return JoinResponse{}, err
	}
	return s.handleJoinOutcome(ctx, player, out)
}

func (s *GameService) handleJoinOutcome(ctx context.Context, player models.Participant, out JoinOutcome) (JoinResponse, error) {
	resp := JoinResponse{Status: JoinStatusWaiting, PlayerID: player.ID}

	if !out.Matched() {
		if out.Mode == models.ModeTournament {
			resp.Message = fmt.Sprintf("Waiting for players... (%d/%d)", out.Position, s.matchmaker.CohortSize())
		} else {
			resp.Message = "Waiting for player..."
		}
		s.notifier.Send(player.ID, models.OutboundMessage{
			Type:    models.MsgQueueStatus,
			Payload: models.QueueStatusPayload{Status: JoinStatusWaiting, Mode: out.Mode, Position: out.Position},
		})
		return resp, nil
	}

	resp.Status = JoinStatusMatched
	if out.Opponent != nil {
		game, err := s.setupGame(newGame(models.ModeClassic, *out.Opponent, player))
		if err != nil {
			s.restoreOpponent(*out.Opponent, out.Mode, err)
			return JoinResponse{}, err
		}
		resp.GameID = game.ID
		resp.Message = "Opponent found"
		return resp, nil
	}

	t, err := s.tournaments.CreateTournament(ctx, out.Cohort)
	if err != nil {
		return JoinResponse{}, err
	}
	s.broadcastTournament(t)
	s.armReadyTimer(t.ID, s.ExpireTournamentReady)
	resp.TournamentID = t.ID
	resp.Message = "Tournament is forming"
	return resp, nil
}

// restoreOpponent возвращает в очередь соперника, которого матчмейкер уже
// снял с очереди, когда игру создать не удалось. Если вернуть нельзя,
// соперник получает сообщение об ошибке.
func (s *GameService) restoreOpponent(opponent models.Participant, mode models.GameMode, cause error) {
	if _, busy := s.engine.FindByPlayer(opponent.ID); !busy && s.requeue(opponent, mode) {
		s.logger.Warn("game setup failed, opponent requeued",
			slog.String("player_id", opponent.ID),
			slog.Any("error", cause))
		return
	}
	s.logger.Warn("game setup failed, opponent released",
		slog.String("player_id", opponent.ID),
		slog.Any("error", cause))
	s.notifier.SendError(opponent.ID, "Match could not be started, please join again")
}

// Leave убирает игрока из очереди. Отсутствие в очереди - не ошибка.
func (s *GameService) Leave(playerID string, mode models.GameMode) (bool, error) {
	if playerID == "" {
		return false, ErrPlayerIDRequired
	}
	if !mode.IsValid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidGameMode, mode)
	}
	return s.matchmaker.Leave(playerID, mode), nil
}

func (s *GameService) startBotGame(player models.Participant) (models.Game, error) {
	botID := utils.NewID(utils.BotIDPrefix)
	game := newGame(models.ModeBot, player, models.Participant{ID: botID, Name: utils.BotDisplayName})

	s.mu.Lock()
	s.bots[game.ID] = bot.New(botID)
	s.mu.Unlock()

	initialized, err := s.setupGame(game)
	if err != nil {
		s.dropBot(game.ID)
		return models.Game{}, err
	}
	if _, err := s.engine.MarkReady(initialized.ID, botID); err != nil {
		return models.Game{}, err
	}
	return initialized, nil
}

func newGame(mode models.GameMode, p1, p2 models.Participant) models.Game {
	return models.Game{
		ID:      utils.NewID("game-"),
		Mode:    mode,
		Status:  models.StatusWaiting,
		Player1: p1.AsPlayer(),
		Player2: p2.AsPlayer(),
	}
}

// setupGame регистрирует игру в движке, отправляет обоим игрокам начальное
// состояние и запускает таймаут ready.
func (s *GameService) setupGame(game models.Game) (models.Game, error) {
	initialized, err := s.engine.Initialize(game)
	if err != nil {
		if errors.Is(err, engine.ErrPlayerBusy) {
			return models.Game{}, fmt.Errorf("%w: %v", ErrAlreadyInGame, err)
		}
		return models.Game{}, err
	}
	s.notifier.SendGameState(initialized)
	s.armReadyTimer(initialized.ID, s.ExpireReady)
	return initialized, nil
}

func (s *GameService) startRound(games []models.Game) {
	for _, g := range games {
		if _, err := s.setupGame(g); err != nil {
			s.logger.Error("failed to set up tournament game",
				slog.String("game_id", g.ID),
				slog.String("tournament_id", g.TournamentID),
				slog.Any("error", err))
		}
	}
}

// Run обрабатывает события шлюза, пока не отменён ctx или не закрыт events.
func (s *GameService) Run(ctx context.Context, events <-chan gateway.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.HandleEvent(ev)
		}
	}
}

func (s *GameService) HandleEvent(ev gateway.Event) {
	switch ev.Kind {
	case gateway.EventReady:
		if ev.Ready.GameID != "" {
			s.markGameReady(ev.Ready.GameID, ev.PlayerID)
		} else {
			s.markTournamentReady(ev.Ready.TournamentID, ev.PlayerID)
		}
	case gateway.EventPaddleMove:
		if !s.engine.ApplyPaddleInput(ev.PaddleMove.GameID, ev.PlayerID, ev.PaddleMove.DeltaY) {
			s.logger.Debug("paddle input ignored",
				slog.String("game_id", ev.PaddleMove.GameID),
				slog.String("player_id", ev.PlayerID))
		}
	case gateway.EventDisconnect:
		s.handleDisconnect(ev.PlayerID)
	}
}

func (s *GameService) markGameReady(gameID, playerID string) {
	all, err := s.engine.MarkReady(gameID, playerID)
	if err != nil {
		s.logger.Debug("ready ignored",
			slog.String("game_id", gameID),
			slog.String("player_id", playerID),
			slog.Any("error", err))
		return
	}
	if !all {
		return
	}

	s.disarmReadyTimer(gameID)
	if err := s.engine.Start(gameID); err != nil {
		s.logger.Warn("failed to start game", slog.String("game_id", gameID), slog.Any("error", err))
	}
}

func (s *GameService) markTournamentReady(tournamentID, playerID string) {
	adv, err := s.tournaments.MarkReady(tournamentID, playerID)
	if err != nil {
		s.logger.Debug("tournament ready ignored",
			slog.String("tournament_id", tournamentID),
			slog.String("player_id", playerID),
			slog.Any("error", err))
		return
	}
	s.handleAdvance(adv)
}

// handleDisconnect считает разрыв соединения уходом: игрок покидает очередь,
// проигрывает текущую игру или снимается с турнира.
func (s *GameService) handleDisconnect(playerID string) {
	if mode, ok := s.matchmaker.LeaveAll(playerID); ok {
		s.logger.Info("disconnected player left queue",
			slog.String("player_id", playerID),
			slog.String("mode", string(mode)))
	}

	if g, ok := s.engine.FindByPlayer(playerID); ok {
		if _, err := s.engine.Forfeit(g.ID, playerID); err != nil {
			s.logger.Debug("forfeit skipped", slog.String("game_id", g.ID), slog.Any("error", err))
		}
		return
	}

	if adv, ok := s.tournaments.Withdraw(playerID); ok {
		s.handleAdvance(adv)
	}
}

// GameStateUpdated выполняется в цикле тиков игры.
func (s *GameService) GameStateUpdated(game models.Game) {
	s.notifier.BroadcastGameState(game)

	if game.Mode != models.ModeBot {
		return
	}
	s.mu.Lock()
	b := s.bots[game.ID]
	s.mu.Unlock()
	if b == nil {
		return
	}
	if dy := b.Move(game, s.now()); dy != 0 {
		s.engine.ApplyPaddleInput(game.ID, b.ID, dy)
	}
}

// GameFinished вызывается один раз на игру, после остановки её цикла.
func (s *GameService) GameFinished(result engine.Result) {
	game := result.Game
	s.disarmReadyTimer(game.ID)
	s.dropBot(game.ID)

	payload := models.GameResultPayload{
		GameID:       game.ID,
		Status:       models.StatusFinished,
		Player1Score: game.Player1.Score,
		Player2Score: game.Player2.Score,
		Winner:       result.WinnerID,
		Forfeit:      result.Forfeit,
	}
	for _, id := range []string{game.Player1.ID, game.Player2.ID} {
		s.notifier.Send(id, models.OutboundMessage{Type: models.MsgGameResult, Payload: payload})
	}

	final := false
	if game.Mode == models.ModeTournament {
		final = s.advanceTournament(result)
	}

	s.publish(func(ctx context.Context) error {
		return s.reporter.ReportMatch(ctx, result, final)
	})
}

// advanceTournament записывает результат в сетку и запускает ставшие
// доступными матчи. Возвращает true, если это был финал.
func (s *GameService) advanceTournament(result engine.Result) bool {
	game := result.Game
	tid, ok := s.tournaments.ByGame(game.ID)
	if !ok {
		s.logger.Warn("tournament game has no bracket cell", slog.String("game_id", game.ID))
		return false
	}

	cell, err := s.tournaments.BracketWinner(game.ID, result.WinnerID, scoreLine(result))
	if err != nil {
		s.logger.Error("failed to record bracket winner", slog.String("game_id", game.ID), slog.Any("error", err))
		return false
	}

	adv, err := s.tournaments.PairTheWinners(tid)
	if err != nil {
		s.logger.Error("failed to pair winners", slog.String("tournament_id", tid), slog.Any("error", err))
		return cell.IsFinal
	}
	s.handleAdvance(adv)
	return cell.IsFinal
}

func (s *GameService) handleAdvance(adv Advance) {
	if adv.Tournament.ID == "" {
		return
	}
	if adv.Tournament.Status != models.StatusWaiting {
		s.disarmReadyTimer(adv.Tournament.ID)
	}
	s.broadcastTournament(adv.Tournament)
	s.startRound(adv.Games)

	if adv.Finished {
		t := adv.Tournament
		s.publish(func(ctx context.Context) error {
			return s.reporter.ReportTournament(ctx, t)
		})
	}
}

func (s *GameService) broadcastTournament(t models.Tournament) {
	for _, p := range t.Players {
		s.notifier.Send(p.ID, models.OutboundMessage{Type: models.MsgTournament, Payload: t})
	}
}

// publish отправляет результат в фоне, игра не ждёт сервис статистики.
func (s *GameService) publish(report func(ctx context.Context) error) {
	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
		defer cancel()
		if err := report(ctx); err != nil {
			s.logger.Warn("result publishing failed", slog.Any("error", err))
		}
	}()
}

// armReadyTimer запускает таймаут ready для игры или собирающегося турнира.
// Id игр и турниров не пересекаются, таймеры хранятся в одной карте.
func (s *GameService) armReadyTimer(id string, expire func(id string)) {
	if s.cfg.ReadyTimeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyTimers[id] = time.AfterFunc(s.cfg.ReadyTimeout, func() {
		expire(id)
	})
}

func (s *GameService) disarmReadyTimer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.readyTimers[id]; ok {
		t.Stop()
		delete(s.readyTimers, id)
	}
}

func (s *GameService) dropBot(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bots, gameID)
}

// ExpireReady применяет таймаут ready к так и не начавшейся игре.
// В турнирной игре техническое поражение получает не приславший ready;
// остальные игры отменяются, готовые игроки возвращаются в очередь.
func (s *GameService) ExpireReady(gameID string) {
	s.disarmReadyTimer(gameID)

	game, ok := s.engine.Snapshot(gameID)
	if !ok || game.Status != models.StatusReady || game.BothReady() {
		return
	}

	if game.Mode == models.ModeTournament {
		loser := game.Player2.ID
		if game.Player2.Ready {
			loser = game.Player1.ID
		}
		s.logger.Info("ready timeout, tournament game forfeited",
			slog.String("game_id", gameID),
			slog.String("loser_id", loser))
		if _, err := s.engine.Forfeit(gameID, loser); err != nil {
			s.logger.Debug("ready timeout forfeit skipped", slog.String("game_id", gameID), slog.Any("error", err))
		}
		return
	}

	if _, err := s.engine.Cancel(gameID); err != nil {
		s.logger.Debug("ready timeout cancel skipped", slog.String("game_id", gameID), slog.Any("error", err))
		return
	}
	s.dropBot(gameID)
	s.logger.Info("ready timeout, game cancelled", slog.String("game_id", gameID))

	for _, p := range []models.Player{game.Player1, game.Player2} {
		if utils.IsBotID(p.ID) {
			continue
		}
		requeued := p.Ready && s.requeue(models.Participant{ID: p.ID, Name: p.Name}, game.Mode)
		s.notifier.Send(p.ID, models.OutboundMessage{
			Type:    models.MsgGameCancelled,
			Payload: models.GameCancelledPayload{GameID: gameID, Reason: reasonReadyTimeout, Requeued: requeued},
		})
	}
}

// ExpireTournamentReady закрывает сбор турнира: игроки без ready выбывают,
// готовые получают технические победы. Турнир, где ready не прислал никто,
// распускается, а игроки освобождаются.
func (s *GameService) ExpireTournamentReady(tournamentID string) {
	s.disarmReadyTimer(tournamentID)

	adv, ok := s.tournaments.ExpireForming(tournamentID)
	if !ok {
		return
	}

	for _, id := range adv.Eliminated {
		s.notifier.SendError(id, "Tournament ready timeout, you were removed from the tournament")
	}
	if adv.Cancelled {
		s.logger.Info("tournament cancelled, nobody was ready", slog.String("tournament_id", tournamentID))
		return
	}
	s.handleAdvance(adv)
}

func (s *GameService) requeue(p models.Participant, mode models.GameMode) bool {
	var err error
	if mode == models.ModeBot {
		_, err = s.startBotGame(p)
	} else {
		var out JoinOutcome
		if out, err = s.matchmaker.Join(p, mode); err == nil {
			_, err = s.handleJoinOutcome(context.Background(), p, out)
		}
	}
	if err != nil {
		s.logger.Warn("failed to requeue player", slog.String("player_id", p.ID), slog.Any("error", err))
		return false
	}
	return true
}

func (s *GameService) Game(gameID string) (models.Game, error) {
	g, ok := s.engine.Snapshot(gameID)
	if !ok {
		return models.Game{}, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	return g, nil
}

func (s *GameService) Status() ServerStatus {
	return ServerStatus{
		ActiveGames: s.engine.ActiveGames(),
		Connections: s.notifier.Connections(),
		Queues:      s.matchmaker.Depths(),
	}
}

// Shutdown останавливает все игры и ждёт уже начатую публикацию результатов.
func (s *GameService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	for id, t := range s.readyTimers {
		t.Stop()
		delete(s.readyTimers, id)
	}
	s.mu.Unlock()

	s.engine.Shutdown()

	done := make(chan struct{})
	go func() {
		s.publishing.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown before all results were published")
	}
}

// scoreLine - счёт "победитель-проигравший", например "3-1".
func scoreLine(result engine.Result) string {
	g := result.Game
	w, l := g.Player1.Score, g.Player2.Score
	if result.WinnerID == g.Player2.ID {
		w, l = l, w
	}
	return fmt.Sprintf("%d-%d", w, l)
}
