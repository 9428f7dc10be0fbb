package juror

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowflow/db"
)

// TestRegistryRoundtripIntegration exercises every repository statement
// against the real schema: insert, read, listing, counters, deactivation,
// reactivation. Requires DATABASE_URL with migrations applied.
func TestRegistryRoundtripIntegration(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	svc := NewService(NewRepository(pool), 1000)
	addr := "0xrt" + time.Now().UTC().Format("150405.000000")

	j, err := svc.Register(ctx, addr, decimal.NewFromInt(1500))
	require.NoError(t, err)
	assert.Equal(t, addr, j.Address)
	assert.True(t, j.Stake.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, int64(DefaultReputation), j.Reputation)
	assert.False(t, j.RegisteredAt.IsZero())

	_, err = svc.Register(ctx, addr, decimal.NewFromInt(2000))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	j, err = svc.UpdateStake(ctx, addr, decimal.NewFromInt(3000))
	require.NoError(t, err)
	assert.True(t, j.Stake.Equal(decimal.NewFromInt(3000)))

	active, _, err := svc.ListActive(ctx, 100, 0)
	require.NoError(t, err)
	assert.True(t, containsAddress(active, addr))

	top, err := svc.Top(ctx, 100)
	require.NoError(t, err)
	assert.True(t, containsAddress(top, addr))

	require.NoError(t, svc.MarkParticipation(ctx, []string{addr}))
	require.NoError(t, svc.MarkResolution(ctx, []string{addr}))
	j, err = svc.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, 1, j.DisputesParticipated)
	assert.Equal(t, 1, j.DisputesResolved)
	assert.InDelta(t, 100, j.Accuracy, 0.01)

	j, err = svc.Unregister(ctx, addr)
	require.NoError(t, err)
	assert.False(t, j.IsActive)

	// Re-registering an inactive address reactivates it with the new stake.
	j, err = svc.Register(ctx, addr, decimal.NewFromInt(1200))
	require.NoError(t, err)
	assert.True(t, j.IsActive)
	assert.True(t, j.Stake.Equal(decimal.NewFromInt(1200)))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.ActiveJurors, 1)
}

func containsAddress(js []Juror, addr string) bool {
	for _, j := range js {
		if j.Address == addr {
			return true
		}
	}
	return false
}
