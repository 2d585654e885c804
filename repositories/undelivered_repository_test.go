package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Dosada05/pong-server/db"
	"github.com/Dosada05/pong-server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres поднимает одноразовый Postgres и применяет схему сервиса.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pong"),
		tcpostgres.WithUsername("pong"),
		tcpostgres.WithPassword("pong"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.Connect(dsn, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.EnsureSchema(ctx, conn))
	return conn
}

func TestUndeliveredResultRepositoryPostgres(t *testing.T) {
	conn := startPostgres(t)
	repo := NewPostgresUndeliveredResultRepository(conn)
	ctx := context.Background()

	first := &models.UndeliveredResult{
		Kind:           models.ResultKindMatchHistory,
		Path:           "/match-history",
		Body:           []byte(`{"winner":"alice","loser":"bob"}`),
		ParticipantIDs: []string{"alice", "bob"},
		Attempts:       3,
		LastError:      "ledger returned 502",
	}
	second := &models.UndeliveredResult{
		Kind:           models.ResultKindTournamentFinalize,
		Path:           "/tournaments/tournament-1/finalize",
		Body:           []byte(`{"winner":"carol"}`),
		ParticipantIDs: []string{},
		Attempts:       3,
	}

	t.Run("Save fills id and timestamp", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, first))
		require.NoError(t, repo.Save(ctx, second))

		assert.NotZero(t, first.ID)
		assert.Greater(t, second.ID, first.ID)
		assert.False(t, first.CreatedAt.IsZero())
	})

	t.Run("ListPending returns oldest first with arrays intact", func(t *testing.T) {
		pending, err := repo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)

		assert.Equal(t, first.ID, pending[0].ID)
		assert.Equal(t, models.ResultKindMatchHistory, pending[0].Kind)
		assert.Equal(t, "/match-history", pending[0].Path)
		assert.JSONEq(t, `{"winner":"alice","loser":"bob"}`, string(pending[0].Body))
		assert.Equal(t, []string{"alice", "bob"}, pending[0].ParticipantIDs)
		assert.Equal(t, 3, pending[0].Attempts)
		assert.Equal(t, "ledger returned 502", pending[0].LastError)

		assert.Equal(t, second.ID, pending[1].ID)
		assert.Empty(t, pending[1].ParticipantIDs)
		assert.Equal(t, "", pending[1].LastError)

		limited, err := repo.ListPending(ctx, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, first.ID, limited[0].ID)
	})

	t.Run("RecordFailure bumps attempts", func(t *testing.T) {
		require.NoError(t, repo.RecordFailure(ctx, second.ID, "connection refused"))

		pending, err := repo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, 4, pending[1].Attempts)
		assert.Equal(t, "connection refused", pending[1].LastError)
	})

	t.Run("MarkDelivered hides the row", func(t *testing.T) {
		require.NoError(t, repo.MarkDelivered(ctx, first.ID))

		pending, err := repo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, second.ID, pending[0].ID)

		err = repo.MarkDelivered(ctx, first.ID)
		assert.ErrorIs(t, err, ErrUndeliveredResultNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.ErrorIs(t, repo.MarkDelivered(ctx, 999999), ErrUndeliveredResultNotFound)
		assert.ErrorIs(t, repo.RecordFailure(ctx, 999999, "boom"), ErrUndeliveredResultNotFound)
	})
}
