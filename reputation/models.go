package reputation

import (
	"strings"
	"time"
)

// Tier is the display tier derived from a user's score.
type Tier string

const (
	TierNewcomer Tier = "Newcomer"
	TierTrusted  Tier = "Trusted"
	TierExpert   Tier = "Expert"
	TierMaster   Tier = "Master"
	TierLegend   Tier = "Legend"
)

// Score deltas applied per recorded outcome. The score is clamped at zero
// after every change.
const (
	deltaTransactionSuccess = 10
	deltaTransactionFailure = -5
	deltaArbitrationWon     = 25
	deltaArbitrationLost    = -10
)

// maxHistoryEntries bounds the per-user history; the oldest entries are
// dropped first.
const maxHistoryEntries = 100

// TierForScore maps a score onto a tier. Thresholds are inclusive.
func TierForScore(score int64) Tier {
	switch {
	case score >= 2000:
		return TierLegend
	case score >= 1000:
		return TierMaster
	case score >= 500:
		return TierExpert
	case score >= 100:
		return TierTrusted
	default:
		return TierNewcomer
	}
}

// BadgeCategory groups badges for display.
type BadgeCategory string

const (
	CategoryTransaction BadgeCategory = "Transaction"
	CategoryArbitration BadgeCategory = "Arbitration"
	CategoryCommunity   BadgeCategory = "Community"
	CategorySpecial     BadgeCategory = "Special"
)

// Badge is a named achievement. Names are unique per user.
type Badge struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    BadgeCategory `json:"category"`
	EarnedAt    time.Time     `json:"earned_at"`
}

// HistoryEntry records one score change.
type HistoryEntry struct {
	Action    string    `json:"action"`
	Change    int64     `json:"change"`
	Reason    string    `json:"reason"`
	RelatedID string    `json:"related_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionCounters track escrow outcomes.
type TransactionCounters struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// ArbitrationCounters track dispute outcomes for a party.
type ArbitrationCounters struct {
	Participated int `json:"participated"`
	Won          int `json:"won"`
	Lost         int `json:"lost"`
}

// Record is a user's full reputation state. All mutation goes through the
// Apply*/Add* methods so the invariants (floor at zero, bounded history,
// unique badge names, tier consistency) hold at every step.
type Record struct {
	User         string
	Score        int64
	Tier         Tier
	Transactions TransactionCounters
	Arbitrations ArbitrationCounters
	Badges       []Badge
	History      []HistoryEntry
	LastUpdated  time.Time
	CreatedAt    time.Time
}

// NewRecord returns the zero-score state for a user.
func NewRecord(user string, now time.Time) Record {
	return Record{
		User:        NormalizeAddress(user),
		Tier:        TierNewcomer,
		LastUpdated: now,
		CreatedAt:   now,
	}
}

// NormalizeAddress lowercases an address so lookups are case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ApplyTransaction records an escrow outcome.
func (r *Record) ApplyTransaction(success bool, relatedID string, now time.Time) {
	r.Transactions.Total++
	if success {
		r.Transactions.Successful++
		r.applyChange("transaction", deltaTransactionSuccess, "Successful transaction", relatedID, now)
	} else {
		r.Transactions.Failed++
		r.applyChange("transaction", deltaTransactionFailure, "Failed transaction", relatedID, now)
	}
}

// ApplyArbitration records a dispute outcome for one of its parties.
func (r *Record) ApplyArbitration(won bool, relatedID string, now time.Time) {
	r.Arbitrations.Participated++
	if won {
		r.Arbitrations.Won++
		r.applyChange("arbitration", deltaArbitrationWon, "Won arbitration", relatedID, now)
	} else {
		r.Arbitrations.Lost++
		r.applyChange("arbitration", deltaArbitrationLost, "Lost arbitration", relatedID, now)
	}
}

// ApplyAdjustment applies a manual score change, typically by an admin.
func (r *Record) ApplyAdjustment(change int64, reason string, now time.Time) {
	r.applyChange("adjustment", change, reason, "", now)
}

func (r *Record) applyChange(action string, change int64, reason, relatedID string, now time.Time) {
	r.Score += change
	if r.Score < 0 {
		r.Score = 0
	}
	r.Tier = TierForScore(r.Score)
	r.appendHistory(HistoryEntry{
		Action:    action,
		Change:    change,
		Reason:    reason,
		RelatedID: relatedID,
		Timestamp: now,
	})
	r.LastUpdated = now
}

func (r *Record) appendHistory(e HistoryEntry) {
	r.History = append(r.History, e)
	if len(r.History) > maxHistoryEntries {
		r.History = r.History[len(r.History)-maxHistoryEntries:]
	}
}

// AddBadge appends a badge unless one with the same name exists. Returns
// whether the badge was added.
func (r *Record) AddBadge(name, description string, category BadgeCategory, now time.Time) bool {
	if r.HasBadge(name) {
		return false
	}
	r.Badges = append(r.Badges, Badge{
		Name:        name,
		Description: description,
		Category:    category,
		EarnedAt:    now,
	})
	r.LastUpdated = now
	return true
}

// HasBadge reports whether a badge with the given name is present.
func (r *Record) HasBadge(name string) bool {
	for _, b := range r.Badges {
		if b.Name == name {
			return true
		}
	}
	return false
}

// SuccessRate is the percentage of successful transactions, 0 when none.
func (r *Record) SuccessRate() float64 {
	if r.Transactions.Total == 0 {
		return 0
	}
	return float64(r.Transactions.Successful) / float64(r.Transactions.Total) * 100
}

// ArbitrationWinRate is the percentage of won arbitrations, 0 when none.
func (r *Record) ArbitrationWinRate() float64 {
	if r.Arbitrations.Participated == 0 {
		return 0
	}
	return float64(r.Arbitrations.Won) / float64(r.Arbitrations.Participated) * 100
}
