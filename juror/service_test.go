package juror

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps jurors in memory.
type fakeStore struct {
	jurors map[string]Juror
}

func newFakeStore() *fakeStore {
	return &fakeStore{jurors: make(map[string]Juror)}
}

func (s *fakeStore) Insert(ctx context.Context, j Juror) (bool, error) {
	if _, ok := s.jurors[j.Address]; ok {
		return false, nil
	}
	s.jurors[j.Address] = j
	return true, nil
}

func (s *fakeStore) Reactivate(ctx context.Context, address string, stake decimal.Decimal) (bool, error) {
	j, ok := s.jurors[address]
	if !ok || j.IsActive {
		return false, nil
	}
	j.IsActive = true
	j.Stake = stake
	s.jurors[address] = j
	return true, nil
}

func (s *fakeStore) Deactivate(ctx context.Context, address string) (bool, error) {
	j, ok := s.jurors[address]
	if !ok || !j.IsActive {
		return false, nil
	}
	j.IsActive = false
	s.jurors[address] = j
	return true, nil
}

func (s *fakeStore) UpdateStake(ctx context.Context, address string, stake decimal.Decimal) (bool, error) {
	j, ok := s.jurors[address]
	if !ok || !j.IsActive {
		return false, nil
	}
	j.Stake = stake
	s.jurors[address] = j
	return true, nil
}

func (s *fakeStore) Get(ctx context.Context, address string) (Juror, error) {
	j, ok := s.jurors[address]
	if !ok {
		return Juror{}, ErrNotFound
	}
	return j, nil
}

func (s *fakeStore) ListActive(ctx context.Context, limit, offset int) ([]Juror, int, error) {
	var active []Juror
	for _, j := range s.jurors {
		if j.IsActive {
			active = append(active, j)
		}
	}
	return active, len(active), nil
}

func (s *fakeStore) Top(ctx context.Context, limit int) ([]Juror, error) { return nil, nil }

func (s *fakeStore) IncrementParticipation(ctx context.Context, addresses []string) error {
	for _, a := range addresses {
		j := s.jurors[a]
		j.DisputesParticipated++
		j.Accuracy = AccuracyFor(j.DisputesResolved, j.DisputesParticipated)
		s.jurors[a] = j
	}
	return nil
}

func (s *fakeStore) IncrementResolved(ctx context.Context, addresses []string) error {
	for _, a := range addresses {
		j := s.jurors[a]
		j.DisputesResolved++
		j.Accuracy = AccuracyFor(j.DisputesResolved, j.DisputesParticipated)
		s.jurors[a] = j
	}
	return nil
}

func (s *fakeStore) Stats(ctx context.Context) (int, decimal.Decimal, float64, error) {
	return 0, decimal.Zero, 0, nil
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	svc := NewService(store, 1000)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestRegister(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	j, err := svc.Register(ctx, "0xJuror1", decimal.NewFromInt(1500))
	require.NoError(t, err)
	assert.Equal(t, "0xjuror1", j.Address)
	assert.Equal(t, int64(DefaultReputation), j.Reputation)
	assert.True(t, j.IsActive)
}

func TestRegisterStakeTooLow(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Register(context.Background(), "0xJuror1", decimal.NewFromInt(999))
	assert.ErrorIs(t, err, ErrStakeTooLow)

	_, err = svc.Register(context.Background(), "0xJuror1", decimal.NewFromInt(1000))
	assert.NoError(t, err, "exact minimum is accepted")
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "0xJuror1", decimal.NewFromInt(1000))
	require.NoError(t, err)

	_, err = svc.Register(ctx, "0xJUROR1", decimal.NewFromInt(2000))
	assert.ErrorIs(t, err, ErrAlreadyRegistered, "addresses match case-insensitively")
}

func TestRegisterReactivatesInactive(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "0xJuror1", decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = svc.Unregister(ctx, "0xJuror1")
	require.NoError(t, err)

	j, err := svc.Register(ctx, "0xJuror1", decimal.NewFromInt(3000))
	require.NoError(t, err)
	assert.True(t, j.IsActive)
	assert.True(t, j.Stake.Equal(decimal.NewFromInt(3000)))
	assert.Len(t, store.jurors, 1)
}

func TestUnregister(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Unregister(ctx, "0xGhost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Register(ctx, "0xJuror1", decimal.NewFromInt(1000))
	require.NoError(t, err)

	j, err := svc.Unregister(ctx, "0xJuror1")
	require.NoError(t, err)
	assert.False(t, j.IsActive)

	_, err = svc.Unregister(ctx, "0xJuror1")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestUpdateStake(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "0xJuror1", decimal.NewFromInt(1000))
	require.NoError(t, err)

	_, err = svc.UpdateStake(ctx, "0xJuror1", decimal.NewFromInt(500))
	assert.ErrorIs(t, err, ErrStakeTooLow)

	j, err := svc.UpdateStake(ctx, "0xJuror1", decimal.NewFromInt(5000))
	require.NoError(t, err)
	assert.True(t, j.Stake.Equal(decimal.NewFromInt(5000)))
}

func TestAccuracyBookkeeping(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "0xJuror1", decimal.NewFromInt(1000))
	require.NoError(t, err)

	require.NoError(t, svc.MarkParticipation(ctx, []string{"0xJuror1"}))
	require.NoError(t, svc.MarkParticipation(ctx, []string{"0xJuror1"}))
	require.NoError(t, svc.MarkResolution(ctx, []string{"0xJuror1"}))

	j := store.jurors["0xjuror1"]
	assert.Equal(t, 2, j.DisputesParticipated)
	assert.Equal(t, 1, j.DisputesResolved)
	assert.InDelta(t, 50, j.Accuracy, 0.01)
}

func TestAccuracyFor(t *testing.T) {
	assert.Zero(t, AccuracyFor(0, 0))
	assert.InDelta(t, 100, AccuracyFor(3, 3), 0.01)
	assert.InDelta(t, 66.66, AccuracyFor(2, 3), 0.01)
}
