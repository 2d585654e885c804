package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/pong-server/metrics"
	"github.com/Dosada05/pong-server/models"
)

// Observer получает события движка. GameStateUpdated вызывается из цикла игры
// после каждого шага; GameFinished - ровно один раз на игру, когда цикл уже
// остановлен и игра удалена из реестра.
type Observer interface {
	GameStateUpdated(game models.Game)
	GameFinished(result Result)
}

type Result struct {
	Game      models.Game
	WinnerID  string
	LoserID   string
	Forfeit   bool
	StartedAt time.Time
	EndedAt   time.Time
}

type Config struct {
	TickInterval time.Duration
	Rules        Options
}

func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second / models.DefaultTickRate,
		Rules: Options{
			TargetScore: models.DefaultTargetScore,
			ServeSpeed:  models.DefaultServeSpeed,
			Serve:       RandomServe,
		},
	}
}

const (
	endReasonWin       = "win"
	endReasonForfeit   = "forfeit"
	endReasonCancelled = "cancelled"
	endReasonShutdown  = "shutdown"
)

type session struct {
	mu        sync.Mutex
	game      models.Game
	rules     Rules
	startedAt time.Time
	looping   bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Engine владеет всеми активными играми. У каждой запущенной игры свой цикл
// тиков; все изменения одной игры идут под блокировкой её сессии.
type Engine struct {
	cfg      Config
	observer Observer
	metrics  metrics.GameMetrics
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
	byPlayer map[string]string
}

func New(cfg Config, observer Observer, m metrics.GameMetrics, logger *slog.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second / models.DefaultTickRate
	}
	cfg.Rules = cfg.Rules.withDefaults()

	return &Engine{
		cfg:      cfg,
		observer: observer,
		metrics:  m,
		logger:   logger.With(slog.String("component", "engine")),
		sessions: make(map[string]*session),
		byPlayer: make(map[string]string),
	}
}

// Initialize регистрирует игру, расставляет ракетки и мяч и переводит её в ready.
func (e *Engine) Initialize(game models.Game) (models.Game, error) {
	if game.ID == "" || game.Player1.ID == "" || game.Player2.ID == "" || game.Player1.ID == game.Player2.ID {
		return models.Game{}, ErrInvalidGame
	}
	rules, err := NewRules(game.Mode, e.cfg.Rules)
	if err != nil {
		return models.Game{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.sessions[game.ID]; exists {
		return models.Game{}, fmt.Errorf("%w: %s", ErrGameExists, game.ID)
	}
	for _, id := range []string{game.Player1.ID, game.Player2.ID} {
		if other, busy := e.byPlayer[id]; busy {
			return models.Game{}, fmt.Errorf("%w: player %s in game %s", ErrPlayerBusy, id, other)
		}
	}

	rules.Initialize(&game)
	e.sessions[game.ID] = &session{
		game:  game,
		rules: rules,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	e.byPlayer[game.Player1.ID] = game.ID
	e.byPlayer[game.Player2.ID] = game.ID
	e.metrics.GameStarted(string(game.Mode))

	e.logger.Info("game initialized",
		slog.String("game_id", game.ID),
		slog.String("mode", string(game.Mode)),
		slog.String("player1", game.Player1.ID),
		slog.String("player2", game.Player2.ID))

	return game, nil
}

// MarkReady ставит игроку флаг готовности. Повторный вызов ничего не меняет.
// Возвращает true, когда готовы оба игрока.
func (e *Engine) MarkReady(gameID, playerID string) (bool, error) {
	s := e.lookup(gameID)
	if s == nil {
		return false, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game.Status == models.StatusFinished {
		return false, ErrGameFinished
	}
	p := s.game.PlayerByID(playerID)
	if p == nil {
		return false, fmt.Errorf("%w: %s", ErrPlayerNotInGame, playerID)
	}
	p.Ready = true
	return s.game.BothReady(), nil
}

// Start переводит игру в playing и запускает её цикл.
// Для уже идущей игры ничего не делает.
func (e *Engine) Start(gameID string) error {
	s := e.lookup(gameID)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.game.Status {
	case models.StatusPlaying:
		return nil
	case models.StatusFinished:
		return ErrGameFinished
	}
	if !s.game.BothReady() {
		return ErrPlayersNotReady
	}
	if !s.game.Status.CanAdvanceTo(models.StatusPlaying) {
		return fmt.Errorf("cannot start game %s from status %s", gameID, s.game.Status)
	}

	s.game.Status = models.StatusPlaying
	s.startedAt = time.Now()
	s.looping = true
	go e.loop(s)

	e.logger.Info("game started", slog.String("game_id", gameID))
	return nil
}

func (e *Engine) loop(s *session) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	var result *Result

	defer func() {
		ticker.Stop()
		close(s.done)
		if result != nil {
			e.observer.GameFinished(*result)
		}
	}()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			res, advanced := e.step(s)
			if res != nil {
				e.unregister(s, endReasonWin)
				result = res
				return
			}
			if !advanced {
				return
			}
		}
	}
}

// step применяет один тик. Возвращает результат, если тик завершил игру,
// и false, если игра не идёт.
func (e *Engine) step(s *session) (*Result, bool) {
	started := time.Now()

	s.mu.Lock()
	if s.game.Status != models.StatusPlaying {
		s.mu.Unlock()
		return nil, false
	}

	out := s.rules.Step(&s.game)
	var result *Result
	if out.Finished {
		s.game.Status = models.StatusFinished
		result = e.resultLocked(s, out.WinnerID, false)
	}
	snapshot := s.game
	s.mu.Unlock()

	e.metrics.ObserveTick(time.Since(started))

	if result == nil {
		e.observer.GameStateUpdated(snapshot)
	} else {
		e.logger.Info("game won",
			slog.String("game_id", snapshot.ID),
			slog.String("winner_id", result.WinnerID),
			slog.Int("player1_score", snapshot.Player1.Score),
			slog.Int("player2_score", snapshot.Player2.Score))
	}
	return result, true
}

// Tick делает один шаг вне цикла. false - игра неизвестна или не идёт.
func (e *Engine) Tick(gameID string) bool {
	s := e.lookup(gameID)
	if s == nil {
		return false
	}
	result, advanced := e.step(s)
	if result != nil {
		e.unregister(s, endReasonWin)
		e.halt(s)
		e.observer.GameFinished(*result)
	}
	return advanced
}

// ApplyPaddleInput сдвигает ракетку игрока на deltaY. Неизвестные игры и
// игроки, как и завершённые игры, игнорируются.
func (e *Engine) ApplyPaddleInput(gameID, playerID string, deltaY float64) bool {
	s := e.lookup(gameID)
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game.Status != models.StatusReady && s.game.Status != models.StatusPlaying {
		return false
	}
	return s.rules.MovePaddle(&s.game, playerID, deltaY)
}

// Forfeit завершает игру победой соперника loserID.
func (e *Engine) Forfeit(gameID, loserID string) (Result, error) {
	s := e.lookup(gameID)
	if s == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}

	s.mu.Lock()
	if s.game.Status == models.StatusFinished {
		s.mu.Unlock()
		return Result{}, ErrGameFinished
	}
	winner := s.game.OpponentOf(loserID)
	if winner == nil {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrPlayerNotInGame, loserID)
	}
	s.game.Status = models.StatusFinished
	result := e.resultLocked(s, winner.ID, true)
	s.mu.Unlock()

	e.unregister(s, endReasonForfeit)
	e.halt(s)

	e.logger.Info("game forfeited",
		slog.String("game_id", gameID),
		slog.String("loser_id", loserID),
		slog.String("winner_id", result.WinnerID))

	e.observer.GameFinished(*result)
	return *result, nil
}

// Cancel удаляет ещё не начатую игру. Результата нет.
func (e *Engine) Cancel(gameID string) (models.Game, error) {
	s := e.lookup(gameID)
	if s == nil {
		return models.Game{}, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}

	s.mu.Lock()
	switch s.game.Status {
	case models.StatusPlaying:
		s.mu.Unlock()
		return models.Game{}, ErrGameStarted
	case models.StatusFinished:
		s.mu.Unlock()
		return models.Game{}, ErrGameFinished
	}
	s.game.Status = models.StatusFinished
	snapshot := s.game
	s.mu.Unlock()

	e.unregister(s, endReasonCancelled)
	e.halt(s)

	e.logger.Info("game cancelled", slog.String("game_id", gameID))
	return snapshot, nil
}

func (e *Engine) Snapshot(gameID string) (models.Game, bool) {
	s := e.lookup(gameID)
	if s == nil {
		return models.Game{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game, true
}

func (e *Engine) FindByPlayer(playerID string) (models.Game, bool) {
	e.mu.RLock()
	gameID, ok := e.byPlayer[playerID]
	e.mu.RUnlock()
	if !ok {
		return models.Game{}, false
	}
	return e.Snapshot(gameID)
}

func (e *Engine) ActiveGames() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// Shutdown останавливает все циклы и удаляет игры без результатов.
func (e *Engine) Shutdown() {
	e.mu.RLock()
	all := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	e.mu.RUnlock()

	for _, s := range all {
		s.mu.Lock()
		s.game.Status = models.StatusFinished
		s.mu.Unlock()
		e.unregister(s, endReasonShutdown)
		e.halt(s)
	}
	e.logger.Info("engine stopped", slog.Int("games", len(all)))
}

func (e *Engine) lookup(gameID string) *session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[gameID]
}

func (e *Engine) resultLocked(s *session, winnerID string, forfeit bool) *Result {
	loserID := ""
	if loser := s.game.OpponentOf(winnerID); loser != nil {
		loserID = loser.ID
	}
	started := s.startedAt
	if started.IsZero() {
		started = time.Now()
	}
	return &Result{
		Game:      s.game,
		WinnerID:  winnerID,
		LoserID:   loserID,
		Forfeit:   forfeit,
		StartedAt: started,
		EndedAt:   time.Now(),
	}
}

func (e *Engine) unregister(s *session, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := s.game.ID
	if e.sessions[id] != s {
		return
	}
	delete(e.sessions, id)
	for _, pid := range []string{s.game.Player1.ID, s.game.Player2.ID} {
		if e.byPlayer[pid] == id {
			delete(e.byPlayer, pid)
		}
	}
	e.metrics.GameEnded(string(s.game.Mode), reason)
}

// halt останавливает цикл и ждёт его выхода. Нельзя вызывать из горутины
// самого цикла.
func (e *Engine) halt(s *session) {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	looping := s.looping
	s.mu.Unlock()

	if looping {
		<-s.done
	}
}
