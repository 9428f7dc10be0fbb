package reputation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx for service tests; only the lifecycle methods
// are meaningful.
type fakeTx struct {
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errors.New("nested tx") }
func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                               { return nil }

type fakePool struct {
	tx       *fakeTx
	beginErr error
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	p.tx = &fakeTx{}
	return p.tx, nil
}

// fakeStore keeps records in memory, keyed by user.
type fakeStore struct {
	records map[string]Record
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]Record)}
}

func (s *fakeStore) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, user string, now time.Time) (Record, error) {
	rec, ok := s.records[user]
	if !ok {
		rec = NewRecord(user, now)
		s.records[user] = rec
	}
	return rec, nil
}

func (s *fakeStore) Save(ctx context.Context, tx pgx.Tx, rec Record) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records[rec.User] = rec
	return nil
}

func (s *fakeStore) Get(ctx context.Context, user string) (Record, error) {
	rec, ok := s.records[user]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) Leaderboard(ctx context.Context, limit, offset int) ([]Record, int, error) {
	return nil, len(s.records), nil
}

func (s *fakeStore) ByTier(ctx context.Context, tier Tier, limit, offset int) ([]Record, int, error) {
	return nil, 0, nil
}

func (s *fakeStore) TierCounts(ctx context.Context) (map[Tier]int, error) {
	return map[Tier]int{}, nil
}

func (s *fakeStore) Totals(ctx context.Context) (int, float64, int, error) {
	return len(s.records), 0, 0, nil
}

func (s *fakeStore) RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	return nil, nil
}

func newTestService() (*Service, *fakePool, *fakeStore) {
	pool := &fakePool{}
	store := newFakeStore()
	svc := NewService(pool, store)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc, pool, store
}

func TestRecordTransactionCommits(t *testing.T) {
	svc, pool, store := newTestService()

	rec, err := svc.RecordTransaction(context.Background(), "0xAlice", true, "12")
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Score)
	assert.True(t, pool.tx.committed)

	saved := store.records["0xalice"]
	assert.Equal(t, int64(10), saved.Score)
	assert.True(t, saved.HasBadge("First Transaction"), "badge rules run in the same transaction")
}

func TestRecordTransactionEmptyUser(t *testing.T) {
	svc, pool, _ := newTestService()

	_, err := svc.RecordTransaction(context.Background(), "  ", true, "")
	assert.ErrorIs(t, err, ErrEmptyUser)
	assert.Nil(t, pool.tx, "no transaction opened for invalid input")
}

func TestRecordActionDispatch(t *testing.T) {
	svc, _, store := newTestService()
	ctx := context.Background()

	_, err := svc.RecordAction(ctx, "bob", "arbitration_won", "3")
	require.NoError(t, err)
	assert.Equal(t, int64(25), store.records["bob"].Score)

	_, err = svc.RecordAction(ctx, "bob", "eviction", "")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestSaveFailureRollsBack(t *testing.T) {
	svc, pool, store := newTestService()
	store.saveErr = errors.New("disk full")

	_, err := svc.RecordTransaction(context.Background(), "carol", true, "")
	require.Error(t, err)
	assert.True(t, pool.tx.rolledBack)
	assert.False(t, pool.tx.committed)
}

func TestAwardBadgeDuplicate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AwardBadge(ctx, "dave", "Pioneer", "early adopter", CategorySpecial)
	require.NoError(t, err)

	_, err = svc.AwardBadge(ctx, "dave", "Pioneer", "early adopter", CategorySpecial)
	assert.ErrorIs(t, err, ErrBadgeExists)
}

func TestGetUnknownUserReturnsZeroState(t *testing.T) {
	svc, _, _ := newTestService()

	rec, err := svc.Get(context.Background(), "0xNobody")
	require.NoError(t, err)
	assert.Equal(t, "0xnobody", rec.User)
	assert.Zero(t, rec.Score)
	assert.Equal(t, TierNewcomer, rec.Tier)
}

func TestHistoryPagination(t *testing.T) {
	svc, _, store := newTestService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.RecordTransaction(ctx, "erin", true, string(rune('a'+i)))
		require.NoError(t, err)
	}
	require.Len(t, store.records["erin"].History, 5)

	entries, total, err := svc.History(ctx, "erin", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, entries, 2)
	assert.Equal(t, "e", entries[0].RelatedID, "newest first")

	entries, _, err = svc.History(ctx, "erin", 2, 4)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].RelatedID)

	entries, _, err = svc.History(ctx, "erin", 10, 50)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
