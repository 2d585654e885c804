package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/pong-server/models"
	"github.com/lib/pq"
)

var ErrUndeliveredResultNotFound = errors.New("undelivered result not found")

// UndeliveredResultRepository хранит записи, которые не удалось отправить
// в сервис статистики.
type UndeliveredResultRepository interface {
	// Save сохраняет запись и заполняет ID и CreatedAt.
	Save(ctx context.Context, result *models.UndeliveredResult) error

	// ListPending возвращает ещё не доставленные записи, старые первыми.
	ListPending(ctx context.Context, limit int) ([]*models.UndeliveredResult, error)

	MarkDelivered(ctx context.Context, id int64) error

	// RecordFailure увеличивает счётчик попыток и сохраняет последнюю ошибку.
	RecordFailure(ctx context.Context, id int64, lastError string) error
}

type postgresUndeliveredResultRepository struct {
	db SQLExecutor
}

// NewPostgresUndeliveredResultRepository принимает *sql.DB или *sql.Tx.
func NewPostgresUndeliveredResultRepository(db SQLExecutor) UndeliveredResultRepository {
	return &postgresUndeliveredResultRepository{db: db}
}

func (r *postgresUndeliveredResultRepository) Save(ctx context.Context, result *models.UndeliveredResult) error {
	query := `
		INSERT INTO undelivered_results (kind, path, body, participant_ids, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		result.Kind,
		result.Path,
		[]byte(result.Body),
		pq.Array(result.ParticipantIDs),
		result.Attempts,
		result.LastError,
	).Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save undelivered %s result: %w", result.Kind, err)
	}
	return nil
}

func (r *postgresUndeliveredResultRepository) ListPending(ctx context.Context, limit int) ([]*models.UndeliveredResult, error) {
	query := `
		SELECT id, kind, path, body, participant_ids, attempts, last_error, created_at
		FROM undelivered_results
		WHERE delivered_at IS NULL
		ORDER BY created_at, id
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list undelivered results: %w", err)
	}
	defer rows.Close()

	var out []*models.UndeliveredResult
	for rows.Next() {
		var res models.UndeliveredResult
		var body []byte
		if err := rows.Scan(
			&res.ID,
			&res.Kind,
			&res.Path,
			&body,
			pq.Array(&res.ParticipantIDs),
			&res.Attempts,
			&res.LastError,
			&res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan undelivered result: %w", err)
		}
		res.Body = body
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate undelivered results: %w", err)
	}
	return out, nil
}

func (r *postgresUndeliveredResultRepository) MarkDelivered(ctx context.Context, id int64) error {
	query := `UPDATE undelivered_results SET delivered_at = NOW() WHERE id = $1 AND delivered_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark result %d delivered: %w", id, err)
	}
	return checkAffectedRows(result, ErrUndeliveredResultNotFound)
}

func (r *postgresUndeliveredResultRepository) RecordFailure(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE undelivered_results SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, lastError)
	if err != nil {
		return fmt.Errorf("failed to record failure for result %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrUndeliveredResultNotFound)
}
