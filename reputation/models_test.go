package reputation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score int64
		want  Tier
	}{
		{0, TierNewcomer},
		{99, TierNewcomer},
		{100, TierTrusted},
		{499, TierTrusted},
		{500, TierExpert},
		{999, TierExpert},
		{1000, TierMaster},
		{1999, TierMaster},
		{2000, TierLegend},
		{50000, TierLegend},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierForScore(tc.score), "score %d", tc.score)
	}
}

func TestApplyTransactionScoring(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := NewRecord("0xAbC", now)
	assert.Equal(t, "0xabc", rec.User)

	rec.ApplyTransaction(true, "42", now)
	assert.Equal(t, int64(10), rec.Score)
	assert.Equal(t, 1, rec.Transactions.Total)
	assert.Equal(t, 1, rec.Transactions.Successful)

	rec.ApplyTransaction(false, "43", now)
	assert.Equal(t, int64(5), rec.Score)
	assert.Equal(t, 1, rec.Transactions.Failed)

	require.Len(t, rec.History, 2)
	assert.Equal(t, int64(-5), rec.History[1].Change)
	assert.Equal(t, "43", rec.History[1].RelatedID)
}

func TestScoreNeverNegative(t *testing.T) {
	now := time.Now().UTC()
	rec := NewRecord("user", now)

	rec.ApplyTransaction(false, "", now)
	assert.Equal(t, int64(0), rec.Score, "failure from zero clamps at zero")

	rec.ApplyArbitration(true, "", now) // +25
	rec.ApplyArbitration(false, "", now)
	rec.ApplyArbitration(false, "", now)
	rec.ApplyArbitration(false, "", now) // 25-30 clamps to 0
	assert.Equal(t, int64(0), rec.Score)
	assert.Equal(t, TierNewcomer, rec.Tier)
}

func TestArbitrationScoring(t *testing.T) {
	now := time.Now().UTC()
	rec := NewRecord("user", now)

	rec.ApplyArbitration(true, "7", now)
	assert.Equal(t, int64(25), rec.Score)
	assert.Equal(t, 1, rec.Arbitrations.Participated)
	assert.Equal(t, 1, rec.Arbitrations.Won)

	rec.ApplyArbitration(false, "8", now)
	assert.Equal(t, int64(15), rec.Score)
	assert.Equal(t, 1, rec.Arbitrations.Lost)
}

func TestHistoryBounded(t *testing.T) {
	now := time.Now().UTC()
	rec := NewRecord("user", now)
	for i := 0; i < maxHistoryEntries+20; i++ {
		rec.ApplyTransaction(true, fmt.Sprintf("%d", i), now)
	}
	require.Len(t, rec.History, maxHistoryEntries)
	// Oldest entries were dropped; the first surviving entry is #20.
	assert.Equal(t, "20", rec.History[0].RelatedID)
	assert.Equal(t, fmt.Sprintf("%d", maxHistoryEntries+19), rec.History[maxHistoryEntries-1].RelatedID)
}

func TestAddBadgeIdempotent(t *testing.T) {
	now := time.Now().UTC()
	rec := NewRecord("user", now)

	assert.True(t, rec.AddBadge("Pioneer", "first", CategorySpecial, now))
	assert.False(t, rec.AddBadge("Pioneer", "again", CategorySpecial, now))
	require.Len(t, rec.Badges, 1)
	assert.Equal(t, "first", rec.Badges[0].Description)
}

func TestEvaluateRules(t *testing.T) {
	now := time.Now().UTC()

	t.Run("first transaction", func(t *testing.T) {
		rec := NewRecord("user", now)
		rec.ApplyTransaction(true, "1", now)
		added := EvaluateRules(&rec, now)
		require.Len(t, added, 1)
		assert.Equal(t, "First Transaction", added[0].Name)
	})

	t.Run("trusted trader needs rate", func(t *testing.T) {
		rec := NewRecord("user", now)
		for i := 0; i < 10; i++ {
			rec.ApplyTransaction(true, "", now)
		}
		for i := 0; i < 5; i++ {
			rec.ApplyTransaction(false, "", now)
		}
		EvaluateRules(&rec, now)
		assert.False(t, rec.HasBadge("Trusted Trader"), "10/15 is below 90%%")

		rec2 := NewRecord("user2", now)
		for i := 0; i < 10; i++ {
			rec2.ApplyTransaction(true, "", now)
		}
		EvaluateRules(&rec2, now)
		assert.True(t, rec2.HasBadge("Trusted Trader"))
	})

	t.Run("arbitration expert", func(t *testing.T) {
		rec := NewRecord("user", now)
		for i := 0; i < 4; i++ {
			rec.ApplyArbitration(true, "", now)
		}
		rec.ApplyArbitration(false, "", now)
		EvaluateRules(&rec, now)
		assert.True(t, rec.HasBadge("Arbitration Expert"), "4/5 wins is 80%%")
	})

	t.Run("score badges", func(t *testing.T) {
		rec := NewRecord("user", now)
		rec.ApplyAdjustment(2500, "seed", now)
		added := EvaluateRules(&rec, now)
		names := make([]string, len(added))
		for i, b := range added {
			names[i] = b.Name
		}
		assert.Contains(t, names, "Community Leader")
		assert.Contains(t, names, "Legend")
	})

	t.Run("idempotent across runs", func(t *testing.T) {
		rec := NewRecord("user", now)
		rec.ApplyTransaction(true, "", now)
		first := EvaluateRules(&rec, now)
		second := EvaluateRules(&rec, now)
		assert.NotEmpty(t, first)
		assert.Empty(t, second)
	})
}

func TestRates(t *testing.T) {
	now := time.Now().UTC()
	rec := NewRecord("user", now)
	assert.Zero(t, rec.SuccessRate())
	assert.Zero(t, rec.ArbitrationWinRate())

	rec.ApplyTransaction(true, "", now)
	rec.ApplyTransaction(true, "", now)
	rec.ApplyTransaction(false, "", now)
	assert.InDelta(t, 66.66, rec.SuccessRate(), 0.01)
}
