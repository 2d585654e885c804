package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/pong-server/engine"
	"github.com/Dosada05/pong-server/ledger"
	"github.com/Dosada05/pong-server/models"
	"github.com/Dosada05/pong-server/repositories"
)

type memoryUndeliveredStore struct {
	mu     sync.Mutex
	rows   []*models.UndeliveredResult
	saveFn func() error
}

var _ repositories.UndeliveredResultRepository = (*memoryUndeliveredStore)(nil)

func (m *memoryUndeliveredStore) Save(ctx context.Context, r *models.UndeliveredResult) error {
	if m.saveFn != nil {
		if err := m.saveFn(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = int64(len(m.rows) + 1)
	r.CreatedAt = time.Now()
	m.rows = append(m.rows, r)
	return nil
}

func (m *memoryUndeliveredStore) ListPending(ctx context.Context, limit int) ([]*models.UndeliveredResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.UndeliveredResult
	for _, r := range m.rows {
		if r.DeliveredAt == nil && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryUndeliveredStore) MarkDelivered(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			now := time.Now()
			r.DeliveredAt = &now
			return nil
		}
	}
	return repositories.ErrUndeliveredResultNotFound
}

func (m *memoryUndeliveredStore) RecordFailure(ctx context.Context, id int64, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			r.Attempts++
			r.LastError = lastError
			return nil
		}
	}
	return repositories.ErrUndeliveredResultNotFound
}

func (m *memoryUndeliveredStore) Rows() []*models.UndeliveredResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.UndeliveredResult(nil), m.rows...)
}

type fakeArchive struct {
	stored []string
	err    error
}

func (f *fakeArchive) Store(ctx context.Context, t models.Tournament) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.stored = append(f.stored, t.ID)
	return "https://archive.example/" + t.ID, nil
}

// statsServer records request paths and answers with status(n) for the n-th call.
type statsServer struct {
	*httptest.Server
	mu     sync.Mutex
	paths  []string
	bodies [][]byte
	calls  atomic.Int32
}

func newStatsServer(t *testing.T, status func(n int32) int) *statsServer {
	t.Helper()
	s := &statsServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.bodies = append(s.bodies, body)
		s.mu.Unlock()
		w.WriteHeader(status(n))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *statsServer) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func fastPublisherConfig() PublisherConfig {
	return PublisherConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func classicResult() engine.Result {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := models.Game{
		ID:      "game-1",
		Mode:    models.ModeClassic,
		Status:  models.StatusFinished,
		Player1: models.Player{ID: "alice", Score: 3},
		Player2: models.Player{ID: "bob", Score: 1},
	}
	return engine.Result{Game: g, WinnerID: "alice", LoserID: "bob", StartedAt: start, EndedAt: start.Add(time.Minute)}
}

func TestMatchRecordsAreSymmetric(t *testing.T) {
	records := MatchRecords(classicResult(), false)
	require.Len(t, records, 2)

	a, b := records[0], records[1]
	assert.Equal(t, "alice", a.UserID)
	assert.Equal(t, "bob", a.OpponentID)
	assert.Equal(t, ledger.ResultWin, a.Result)
	assert.Equal(t, 3, a.UserScore)
	assert.Equal(t, 1, a.OpponentScore)

	assert.Equal(t, "bob", b.UserID)
	assert.Equal(t, "alice", b.OpponentID)
	assert.Equal(t, ledger.ResultLoss, b.Result)
	assert.Equal(t, 1, b.UserScore)
	assert.Equal(t, 3, b.OpponentScore)

	assert.Nil(t, a.TournamentWon)
	require.NotNil(t, a.StartTime)
	assert.Equal(t, a.EndTime, b.EndTime)
}

func TestMatchRecordsForfeitBotAndFinal(t *testing.T) {
	res := classicResult()
	res.Forfeit = true
	res.Game.Player2.ID = "bot-123"
	res.Game.Mode = models.ModeBot

	records := MatchRecords(res, false)
	require.Len(t, records, 1, "bots get no history")
	assert.Equal(t, "bot", records[0].OpponentID)
	assert.Equal(t, ledger.ResultWin, records[0].Result)

	res = classicResult()
	res.Forfeit = true
	res.WinnerID, res.LoserID = "bob", "alice"
	res.Game.TournamentID = "tournament-1"
	records = MatchRecords(res, true)
	require.Len(t, records, 2)
	assert.Equal(t, ledger.ResultForfeit, records[0].Result)
	assert.Equal(t, ledger.ResultWin, records[1].Result)
	require.NotNil(t, records[0].TournamentWon)
	assert.False(t, *records[0].TournamentWon)
	assert.True(t, *records[1].TournamentWon)
	assert.Equal(t, "tournament-1", records[1].TournamentID)
}

func TestReportMatchSendsBothRecords(t *testing.T) {
	srv := newStatsServer(t, func(int32) int { return http.StatusCreated })
	p := NewResultPublisher(ledger.NewHTTPClient(srv.URL, time.Second), nil, nil, fastPublisherConfig(), testMetrics(), discardLogger())

	require.NoError(t, p.ReportMatch(context.Background(), classicResult(), false))
	assert.Equal(t, []string{"/match-history", "/match-history"}, srv.Paths())

	users := map[string]bool{}
	for _, body := range srv.bodies {
		var rec ledger.MatchHistory
		require.NoError(t, json.Unmarshal(body, &rec))
		users[rec.UserID] = true
	}
	assert.Equal(t, map[string]bool{"alice": true, "bob": true}, users)
}

func TestReportRetriesTransientFailures(t *testing.T) {
	srv := newStatsServer(t, func(n int32) int {
		if n < 3 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	})
	store := &memoryUndeliveredStore{}
	p := NewResultPublisher(ledger.NewHTTPClient(srv.URL, time.Second), store, nil, fastPublisherConfig(), testMetrics(), discardLogger())

	res := classicResult()
	res.Game.Player2.ID = "bot-1"
	require.NoError(t, p.ReportMatch(context.Background(), res, false))
	assert.EqualValues(t, 3, srv.calls.Load())
	assert.Empty(t, store.Rows())
}

func TestReportStoresAfterBoundedAttempts(t *testing.T) {
	srv := newStatsServer(t, func(int32) int { return http.StatusBadGateway })
	store := &memoryUndeliveredStore{}
	p := NewResultPublisher(ledger.NewHTTPClient(srv.URL, time.Second), store, nil, fastPublisherConfig(), testMetrics(), discardLogger())

	res := classicResult()
	res.Game.Player2.ID = "bot-1"
	err := p.ReportMatch(context.Background(), res, false)
	require.Error(t, err)
	assert.EqualValues(t, 3, srv.calls.Load(), "exactly MaxAttempts tries")

	rows := store.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, models.ResultKindMatchHistory, rows[0].Kind)
	assert.Equal(t, "/match-history", rows[0].Path)
	assert.Equal(t, 3, rows[0].Attempts)
	assert.ElementsMatch(t, []string{"alice", "bot-1"}, rows[0].ParticipantIDs)
}

func TestReportDoesNotRetryClientErrors(t *testing.T) {
	srv := newStatsServer(t, func(int32) int { return http.StatusBadRequest })
	store := &memoryUndeliveredStore{}
	p := NewResultPublisher(ledger.NewHTTPClient(srv.URL, time.Second), store, nil, fastPublisherConfig(), testMetrics(), discardLogger())

	res := classicResult()
	res.Game.Player2.ID = "bot-1"
	err := p.ReportMatch(context.Background(), res, false)

	var statusErr *ledger.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.EqualValues(t, 1, srv.calls.Load())
	assert.Len(t, store.Rows(), 1)
}

func TestReportWithoutStatsURLOnlyLogs(t *testing.T) {
	p := NewResultPublisher(ledger.NewHTTPClient("", time.Second), nil, nil, fastPublisherConfig(), testMetrics(), discardLogger())
	assert.NoError(t, p.ReportMatch(context.Background(), classicResult(), false))
}

func TestReportTournamentArchivesAndFinalizes(t *testing.T) {
	srv := newStatsServer(t, func(int32) int { return http.StatusOK })
	archive := &fakeArchive{}
	p := NewResultPublisher(ledger.NewHTTPClient(srv.URL, time.Second), nil, archive, fastPublisherConfig(), testMetrics(), discardLogger())

	tour := models.Tournament{
		ID:         "tournament-1",
		Status:     models.StatusFinished,
		Players:    cohort("p1", "p2", "p3", "p4"),
		Winner:     "p3",
		FinalScore: "3-2",
	}
	require.NoError(t, p.ReportTournament(context.Background(), tour))
	assert.Equal(t, []string{"tournament-1"}, archive.stored)
	require.Equal(t, []string{"/tournaments/tournament-1/finalize"}, srv.Paths())

	var fin ledger.TournamentFinalization
	require.NoError(t, json.Unmarshal(srv.bodies[0], &fin))
	assert.Equal(t, "p3", fin.WinnerID)
	assert.Equal(t, "3-2", fin.FinalScore)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, fin.ParticipantIDs)

	archive.err = errors.New("bucket unavailable")
	assert.NoError(t, p.ReportTournament(context.Background(), tour), "archive failure does not block finalize")

	tour.Status = models.StatusPlaying
	assert.ErrorIs(t, p.ReportTournament(context.Background(), tour), ErrValidationFailed)
}

func TestRedeliverPending(t *testing.T) {
	healthy := atomic.Bool{}
	srv := newStatsServer(t, func(int32) int {
		if healthy.Load() {
			return http.StatusOK
		}
		return http.StatusServiceUnavailable
	})
	store := &memoryUndeliveredStore{}
	p := NewResultPublisher(ledger.NewHTTPClient(srv.URL, time.Second), store, nil, fastPublisherConfig(), testMetrics(), discardLogger())

	require.Error(t, p.ReportMatch(context.Background(), classicResult(), false))
	require.Len(t, store.Rows(), 2)

	n, err := p.RedeliverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 4, store.Rows()[0].Attempts)

	healthy.Store(true)
	n, err = p.RedeliverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := store.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUnstoredFailureIsReported(t *testing.T) {
	srv := newStatsServer(t, func(int32) int { return http.StatusInternalServerError })
	store := &memoryUndeliveredStore{saveFn: func() error { return errors.New("db down") }}
	p := NewResultPublisher(ledger.NewHTTPClient(srv.URL, time.Second), store, nil, fastPublisherConfig(), testMetrics(), discardLogger())

	assert.Error(t, p.ReportMatch(context.Background(), classicResult(), false))
	assert.Empty(t, store.Rows())
}

// recordingLedger отмечает, какой метод клиента был вызван.
type recordingLedger struct {
	mu        sync.Mutex
	records   []ledger.MatchHistory
	finalized []string
	raw       []string
	fail      bool
}

var _ ledger.Client = (*recordingLedger)(nil)

func (r *recordingLedger) RecordMatch(ctx context.Context, record ledger.MatchHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	if r.fail {
		return &ledger.StatusError{Method: http.MethodPost, Path: ledger.MatchHistoryPath, StatusCode: http.StatusBadGateway}
	}
	return nil
}

func (r *recordingLedger) FinalizeTournament(ctx context.Context, tournamentID string, fin ledger.TournamentFinalization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, tournamentID+":"+fin.WinnerID)
	return nil
}

func (r *recordingLedger) PostRaw(ctx context.Context, path string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw = append(r.raw, path)
	return nil
}

func TestPublisherUsesTypedCallsAndRawOnlyForRedelivery(t *testing.T) {
	client := &recordingLedger{fail: true}
	store := &memoryUndeliveredStore{}
	p := NewResultPublisher(client, store, nil, fastPublisherConfig(), testMetrics(), discardLogger())

	require.Error(t, p.ReportMatch(context.Background(), classicResult(), false))
	assert.Len(t, client.records, 6, "two records, three attempts each")
	assert.Empty(t, client.raw)
	require.Len(t, store.Rows(), 2)

	require.NoError(t, p.ReportTournament(context.Background(), models.Tournament{
		ID:      "tournament-1",
		Status:  models.StatusFinished,
		Players: cohort("p1", "p2"),
		Winner:  "p2",
	}))
	assert.Equal(t, []string{"tournament-1:p2"}, client.finalized)

	n, err := p.RedeliverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{ledger.MatchHistoryPath, ledger.MatchHistoryPath}, client.raw)
}
