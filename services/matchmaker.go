package services

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Dosada05/pong-server/metrics"
	"github.com/Dosada05/pong-server/models"
)

// JoinOutcome описывает результат входа игрока в очередь.
// При подборе заполнено ровно одно из Opponent и Cohort.
type JoinOutcome struct {
	Mode     models.GameMode
	Position int // 1-based position in the queue while waiting

	Opponent *models.Participant // 2-player modes: the queue head the player was paired with
	Cohort   []models.Participant
}

func (o JoinOutcome) Matched() bool {
	return o.Opponent != nil || len(o.Cohort) > 0
}

// Matchmaker ведёт по одной FIFO-очереди на режим. Игрок находится не более
// чем в одной очереди.
type Matchmaker struct {
	cohortSize int
	metrics    metrics.GameMetrics
	logger     *slog.Logger

	mu     sync.Mutex
	queues map[models.GameMode][]models.Participant
	queued map[string]models.GameMode
}

func NewMatchmaker(cohortSize int, m metrics.GameMetrics, logger *slog.Logger) *Matchmaker {
	if cohortSize < 2 {
		cohortSize = models.DefaultTournamentSize
	}
	return &Matchmaker{
		cohortSize: cohortSize,
		metrics:    m,
		logger:     logger.With(slog.String("component", "matchmaker")),
		queues:     make(map[models.GameMode][]models.Participant),
		queued:     make(map[string]models.GameMode),
	}
}

func (m *Matchmaker) CohortSize() int {
	return m.cohortSize
}

// Join ставит p в очередь или сразу подбирает пару. Классический режим
// берёт голову очереди; турнирный забирает очередь целиком, когда набрана
// полная группа. Режим с ботом здесь не обрабатывается.
func (m *Matchmaker) Join(p models.Participant, mode models.GameMode) (JoinOutcome, error) {
	if p.ID == "" {
		return JoinOutcome{}, ErrPlayerIDRequired
	}
	if mode != models.ModeClassic && mode != models.ModeTournament {
		return JoinOutcome{}, fmt.Errorf("%w: %q", ErrInvalidGameMode, mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.queued[p.ID]; ok {
		return JoinOutcome{}, fmt.Errorf("%w in %s mode", ErrAlreadyQueued, current)
	}

	out := JoinOutcome{Mode: mode}
	queue := m.queues[mode]

	switch mode {
	case models.ModeClassic:
		if len(queue) > 0 {
			opponent := queue[0]
			m.queues[mode] = queue[1:]
			delete(m.queued, opponent.ID)
			out.Opponent = &opponent
			m.logger.Info("players paired",
				slog.String("player_id", p.ID),
				slog.String("opponent_id", opponent.ID))
			break
		}
		m.queues[mode] = append(queue, p)
		m.queued[p.ID] = mode
		out.Position = len(m.queues[mode])

	case models.ModeTournament:
		queue = append(queue, p)
		if len(queue) >= m.cohortSize {
			cohort := make([]models.Participant, m.cohortSize)
			copy(cohort, queue[:m.cohortSize])
			m.queues[mode] = append([]models.Participant(nil), queue[m.cohortSize:]...)
			for _, c := range cohort {
				delete(m.queued, c.ID)
			}
			out.Cohort = cohort
			m.logger.Info("tournament cohort filled", slog.Int("size", len(cohort)))
			break
		}
		m.queues[mode] = queue
		m.queued[p.ID] = mode
		out.Position = len(queue)
	}

	m.metrics.SetQueueDepth(string(mode), len(m.queues[mode]))
	return out, nil
}

// Leave убирает игрока из очереди режима. Возвращает true, если он там был.
func (m *Matchmaker) Leave(playerID string, mode models.GameMode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.queued[playerID]; !ok || current != mode {
		return false
	}
	m.removeLocked(playerID, mode)
	return true
}

// LeaveAll убирает игрока из той очереди, в которой он стоит.
func (m *Matchmaker) LeaveAll(playerID string) (models.GameMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode, ok := m.queued[playerID]
	if !ok {
		return "", false
	}
	m.removeLocked(playerID, mode)
	return mode, true
}

func (m *Matchmaker) removeLocked(playerID string, mode models.GameMode) {
	queue := m.queues[mode]
	for i, p := range queue {
		if p.ID == playerID {
			m.queues[mode] = append(queue[:i:i], queue[i+1:]...)
			break
		}
	}
	delete(m.queued, playerID)
	m.metrics.SetQueueDepth(string(mode), len(m.queues[mode]))
	m.logger.Debug("player left queue", slog.String("player_id", playerID), slog.String("mode", string(mode)))
}

func (m *Matchmaker) QueuedMode(playerID string) (models.GameMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, ok := m.queued[playerID]
	return mode, ok
}

// Depths возвращает длины всех непустых очередей.
func (m *Matchmaker) Depths() map[models.GameMode]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[models.GameMode]int, len(m.queues))
	for mode, q := range m.queues {
		out[mode] = len(q)
	}
	return out
}
