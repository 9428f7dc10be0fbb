package juror

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultReputation is the starting reputation for a new juror.
const DefaultReputation = 100

// Juror is a staked arbitrator eligible for dispute assignment.
type Juror struct {
	Address              string
	Stake                decimal.Decimal
	Reputation           int64
	IsActive             bool
	DisputesParticipated int
	DisputesResolved     int
	TotalRewards         decimal.Decimal
	TotalPenalties       decimal.Decimal
	Accuracy             float64
	RegisteredAt         time.Time
	UpdatedAt            time.Time
}

// NormalizeAddress lowercases an address so lookups are case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// AccuracyFor computes the resolved-to-participated percentage.
func AccuracyFor(resolved, participated int) float64 {
	if participated == 0 {
		return 0
	}
	return float64(resolved) / float64(participated) * 100
}
