package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/pong-server/engine"
	"github.com/Dosada05/pong-server/ledger"
	"github.com/Dosada05/pong-server/metrics"
	"github.com/Dosada05/pong-server/models"
	"github.com/Dosada05/pong-server/repositories"
	"github.com/Dosada05/pong-server/utils"
)

// В истории матчей бот всегда записывается под этим id.
const botOpponentID = "bot"

const redeliveryBatch = 100

// TournamentArchiver сохраняет итоговое состояние турнира и возвращает
// адрес, по которому его можно прочитать.
type TournamentArchiver interface {
	Store(ctx context.Context, t models.Tournament) (string, error)
}

type PublisherConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// ResultPublisher отправляет результаты матчей и турниров в сервис
// статистики. Доставка по возможности: ограниченное число повторов, затем
// запись сохраняется для повторной доставки, если хранилище настроено.
type ResultPublisher struct {
	client  ledger.Client
	store   repositories.UndeliveredResultRepository
	archive TournamentArchiver
	cfg     PublisherConfig
	metrics metrics.GameMetrics
	logger  *slog.Logger
}

// NewResultPublisher допускает nil в store и archive.
func NewResultPublisher(
	client ledger.Client,
	store repositories.UndeliveredResultRepository,
	archive TournamentArchiver,
	cfg PublisherConfig,
	m metrics.GameMetrics,
	logger *slog.Logger,
) *ResultPublisher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	return &ResultPublisher{
		client:  client,
		store:   store,
		archive: archive,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("component", "publisher")),
	}
}

// MatchRecords строит по записи на каждого игрока-человека, каждую с его
// точки зрения. final отмечает решающий матч турнира.
func MatchRecords(result engine.Result, final bool) []ledger.MatchHistory {
	g := result.Game
	started := result.StartedAt.UTC()
	ended := result.EndedAt.UTC()

	sides := []struct{ user, opp models.Player }{
		{g.Player1, g.Player2},
		{g.Player2, g.Player1},
	}

	records := make([]ledger.MatchHistory, 0, 2)
	for _, side := range sides {
		if utils.IsBotID(side.user.ID) {
			continue
		}

		outcome := ledger.ResultLoss
		switch {
		case side.user.ID == result.WinnerID:
			outcome = ledger.ResultWin
		case result.Forfeit:
			outcome = ledger.ResultForfeit
		}

		opponentID := side.opp.ID
		if utils.IsBotID(opponentID) {
			opponentID = botOpponentID
		}

		rec := ledger.MatchHistory{
			UserID:        side.user.ID,
			OpponentID:    opponentID,
			Result:        outcome,
			UserScore:     side.user.Score,
			OpponentScore: side.opp.Score,
			StartTime:     &started,
			EndTime:       &ended,
			PlayedAt:      ended,
			TournamentID:  g.TournamentID,
		}
		if final && g.TournamentID != "" {
			won := side.user.ID == result.WinnerID
			rec.TournamentWon = &won
		}
		records = append(records, rec)
	}
	return records
}

// ReportMatch отправляет обе симметричные записи параллельно. Ошибка одной
// не отменяет другую.
func (p *ResultPublisher) ReportMatch(ctx context.Context, result engine.Result, final bool) error {
	records := MatchRecords(result, final)
	participants := []string{result.Game.Player1.ID, result.Game.Player2.ID}

	var g errgroup.Group
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			body, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to encode match history for %s: %w", rec.UserID, err)
			}
			send := func(ctx context.Context) error { return p.client.RecordMatch(ctx, rec) }
			return p.deliver(ctx, models.ResultKindMatchHistory, ledger.MatchHistoryPath, body, participants, send)
		})
	}
	return g.Wait()
}

// ReportTournament архивирует турнир и отправляет finalize.
// Ошибка архива только логируется и на finalize не влияет.
func (p *ResultPublisher) ReportTournament(ctx context.Context, t models.Tournament) error {
	if t.Status != models.StatusFinished || t.Winner == "" {
		return fmt.Errorf("%w: tournament %s has no winner yet", ErrValidationFailed, t.ID)
	}

	if p.archive != nil {
		if location, err := p.archive.Store(ctx, t); err != nil {
			p.logger.Error("failed to archive tournament",
				slog.String("tournament_id", t.ID),
				slog.Any("error", err))
		} else {
			p.logger.Info("tournament archived",
				slog.String("tournament_id", t.ID),
				slog.String("url", location))
		}
	}

	participants := models.ParticipantIDs(t.Players)
	fin := ledger.TournamentFinalization{
		WinnerID:       t.Winner,
		FinalScore:     t.FinalScore,
		ParticipantIDs: participants,
	}
	body, err := json.Marshal(fin)
	if err != nil {
		return fmt.Errorf("failed to encode finalization of %s: %w", t.ID, err)
	}
	send := func(ctx context.Context) error { return p.client.FinalizeTournament(ctx, t.ID, fin) }
	return p.deliver(ctx, models.ResultKindTournamentFinalize, ledger.FinalizePath(t.ID), body, participants, send)
}

// deliver повторяет send с ограниченным числом попыток. body и path
// сохраняются вместе с записью, если доставить её так и не удалось.
func (p *ResultPublisher) deliver(
	ctx context.Context,
	kind, path string,
	body []byte,
	participants []string,
	send func(ctx context.Context) error,
) error {
	attempts := 0
	op := func() error {
		attempts++
		err := send(ctx)
		if err == nil {
			return nil
		}
		var statusErr *ledger.StatusError
		if errors.Is(err, ledger.ErrNotConfigured) || (errors.As(err, &statusErr) && !statusErr.Retryable()) {
			return backoff.Permanent(err)
		}
		p.logger.Debug("stats delivery attempt failed",
			slog.String("kind", kind),
			slog.Int("attempt", attempts),
			slog.Any("error", err))
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(p.policy(), ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrNotConfigured) {
		p.logger.Info("stats service not configured, result only logged",
			slog.String("kind", kind),
			slog.String("path", path),
			slog.String("body", string(body)))
		return nil
	}

	p.metrics.AddPublishFailure(kind)

	if p.store == nil {
		p.logger.Error("stats record lost",
			slog.Bool("data_loss", true),
			slog.String("kind", kind),
			slog.String("path", path),
			slog.String("body", string(body)),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		return err
	}

	// Контекст завершённой игры может быть уже отменён, а строку записать нужно.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	row := &models.UndeliveredResult{
		Kind:           kind,
		Path:           path,
		Body:           body,
		ParticipantIDs: participants,
		Attempts:       attempts,
		LastError:      err.Error(),
	}
	if saveErr := p.store.Save(saveCtx, row); saveErr != nil {
		p.logger.Error("stats record lost",
			slog.Bool("data_loss", true),
			slog.String("kind", kind),
			slog.String("body", string(body)),
			slog.Any("error", err),
			slog.Any("store_error", saveErr))
		return err
	}

	p.logger.Warn("stats record stored for redelivery",
		slog.String("kind", kind),
		slog.Int64("id", row.ID),
		slog.Any("error", err))
	return err
}

func (p *ResultPublisher) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialInterval
	b.MaxInterval = p.cfg.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(p.cfg.MaxAttempts-1))
}

// RedeliverPending повторяет каждую сохранённую запись один раз и возвращает
// число доставленных.
func (p *ResultPublisher) RedeliverPending(ctx context.Context) (int, error) {
	if p.store == nil {
		return 0, nil
	}

	pending, err := p.store.ListPending(ctx, redeliveryBatch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, row := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		if err := p.client.PostRaw(ctx, row.Path, row.Body); err != nil {
			if recErr := p.store.RecordFailure(ctx, row.ID, err.Error()); recErr != nil {
				p.logger.Error("failed to record redelivery failure", slog.Int64("id", row.ID), slog.Any("error", recErr))
			}
			continue
		}
		if err := p.store.MarkDelivered(ctx, row.ID); err != nil {
			p.logger.Error("failed to mark result delivered", slog.Int64("id", row.ID), slog.Any("error", err))
			continue
		}
		delivered++
	}

	if len(pending) > 0 {
		p.logger.Info("redelivery pass finished",
			slog.Int("pending", len(pending)),
			slog.Int("delivered", delivered))
	}
	return delivered, nil
}
