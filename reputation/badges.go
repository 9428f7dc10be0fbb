package reputation

import "time"

// Rule awards a badge when its predicate holds for a record. The set is
// closed and evaluated in order, so award runs are deterministic.
type Rule struct {
	Name        string
	Description string
	Category    BadgeCategory
	Qualifies   func(r *Record) bool
}

// Rules returns the automatic badge rules. AddBadge keeps awards
// idempotent, so re-evaluating after every mutation is safe.
func Rules() []Rule {
	return []Rule{
		{
			Name:        "First Transaction",
			Description: "Completed first transaction",
			Category:    CategoryTransaction,
			Qualifies: func(r *Record) bool {
				return r.Transactions.Total >= 1
			},
		},
		{
			Name:        "Trusted Trader",
			Description: "10+ successful transactions with 90%+ success rate",
			Category:    CategoryTransaction,
			Qualifies: func(r *Record) bool {
				return r.Transactions.Successful >= 10 && r.SuccessRate() >= 90
			},
		},
		{
			Name:        "Arbitration Expert",
			Description: "Participated in 5+ arbitrations with 80%+ win rate",
			Category:    CategoryArbitration,
			Qualifies: func(r *Record) bool {
				return r.Arbitrations.Participated >= 5 && r.ArbitrationWinRate() >= 80
			},
		},
		{
			Name:        "Community Leader",
			Description: "Reached 1000+ reputation score",
			Category:    CategoryCommunity,
			Qualifies: func(r *Record) bool {
				return r.Score >= 1000
			},
		},
		{
			Name:        "Legend",
			Description: "Reached the maximum reputation tier",
			Category:    CategorySpecial,
			Qualifies: func(r *Record) bool {
				return r.Score >= 2000
			},
		},
	}
}

// EvaluateRules awards every qualifying rule badge not yet held and
// returns the newly added badges.
func EvaluateRules(r *Record, now time.Time) []Badge {
	var added []Badge
	for _, rule := range Rules() {
		if !rule.Qualifies(r) {
			continue
		}
		if r.AddBadge(rule.Name, rule.Description, rule.Category, now) {
			added = append(added, r.Badges[len(r.Badges)-1])
		}
	}
	return added
}
