package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"escrowflow/logger"

	"go.uber.org/zap"
)

// Validation errors surfaced to callers.
var (
	ErrEmptyUser     = errors.New("reputation: user address is required")
	ErrUnknownAction = errors.New("reputation: unknown action")
	ErrBadgeExists   = errors.New("reputation: badge already awarded")
)

// TxBeginner opens transactions; *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the persistence surface the service needs. *Repository is the
// production implementation.
type Store interface {
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, user string, now time.Time) (Record, error)
	Save(ctx context.Context, tx pgx.Tx, rec Record) error
	Get(ctx context.Context, user string) (Record, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]Record, int, error)
	ByTier(ctx context.Context, tier Tier, limit, offset int) ([]Record, int, error)
	TierCounts(ctx context.Context) (map[Tier]int, error)
	Totals(ctx context.Context) (users int, avgScore float64, totalBadges int, err error)
	RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error)
}

// Service owns all reputation mutations. Every change runs in a
// transaction that locks the user's row, applies the pure record
// mutation, re-evaluates badge rules, and writes the result back.
type Service struct {
	pool  TxBeginner
	store Store
	now   func() time.Time
}

func NewService(pool TxBeginner, store Store) *Service {
	return &Service{pool: pool, store: store, now: time.Now}
}

// RecordTransaction applies an escrow outcome to a user's reputation.
func (s *Service) RecordTransaction(ctx context.Context, user string, success bool, relatedID string) (Record, error) {
	return s.mutate(ctx, user, func(rec *Record, now time.Time) error {
		rec.ApplyTransaction(success, relatedID, now)
		return nil
	})
}

// RecordArbitration applies a dispute outcome to a party's reputation.
func (s *Service) RecordArbitration(ctx context.Context, user string, won bool, relatedID string) (Record, error) {
	return s.mutate(ctx, user, func(rec *Record, now time.Time) error {
		rec.ApplyArbitration(won, relatedID, now)
		return nil
	})
}

// Adjust applies a manual score change with a reason.
func (s *Service) Adjust(ctx context.Context, user string, change int64, reason string) (Record, error) {
	if reason == "" {
		reason = "Manual adjustment"
	}
	return s.mutate(ctx, user, func(rec *Record, now time.Time) error {
		rec.ApplyAdjustment(change, reason, now)
		return nil
	})
}

// RecordAction applies a named outcome. It backs the generic update
// endpoint where the caller supplies an action string.
func (s *Service) RecordAction(ctx context.Context, user, action, relatedID string) (Record, error) {
	switch action {
	case "transaction_success":
		return s.RecordTransaction(ctx, user, true, relatedID)
	case "transaction_failed":
		return s.RecordTransaction(ctx, user, false, relatedID)
	case "arbitration_won":
		return s.RecordArbitration(ctx, user, true, relatedID)
	case "arbitration_lost":
		return s.RecordArbitration(ctx, user, false, relatedID)
	default:
		return Record{}, ErrUnknownAction
	}
}

// AwardBadge grants a custom badge. Duplicate names are rejected.
func (s *Service) AwardBadge(ctx context.Context, user, name, description string, category BadgeCategory) (Record, error) {
	if name == "" {
		return Record{}, fmt.Errorf("reputation: badge name is required")
	}
	if category == "" {
		category = CategorySpecial
	}
	return s.mutate(ctx, user, func(rec *Record, now time.Time) error {
		if !rec.AddBadge(name, description, category, now) {
			return ErrBadgeExists
		}
		return nil
	})
}

// mutate runs the locked read-modify-write cycle shared by all score and
// badge changes. Automatic badge rules are re-evaluated before commit so
// awards land in the same transaction as the change that earned them.
func (s *Service) mutate(ctx context.Context, user string, fn func(rec *Record, now time.Time) error) (Record, error) {
	user = NormalizeAddress(user)
	if user == "" {
		return Record{}, ErrEmptyUser
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("reputation: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.now().UTC()
	rec, err := s.store.GetOrCreateForUpdate(ctx, tx, user, now)
	if err != nil {
		return Record{}, err
	}
	if err := fn(&rec, now); err != nil {
		return Record{}, err
	}
	if added := EvaluateRules(&rec, now); len(added) > 0 {
		logger.L().Info("badges awarded",
			zap.String("user", user),
			zap.Int("count", len(added)))
	}
	if err := s.store.Save(ctx, tx, rec); err != nil {
		return Record{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("reputation: commit: %w", err)
	}
	return rec, nil
}

// Get returns a user's record. Unknown users get the zero-score state
// without persisting anything.
func (s *Service) Get(ctx context.Context, user string) (Record, error) {
	user = NormalizeAddress(user)
	if user == "" {
		return Record{}, ErrEmptyUser
	}
	rec, err := s.store.Get(ctx, user)
	if errors.Is(err, ErrNotFound) {
		return NewRecord(user, s.now().UTC()), nil
	}
	return rec, err
}

// RankedRecord pairs a record with its leaderboard rank (1-based).
type RankedRecord struct {
	Rank int
	Record
}

// Leaderboard returns the top records by score with pagination.
func (s *Service) Leaderboard(ctx context.Context, limit, offset int) ([]RankedRecord, int, error) {
	limit, offset = clampPage(limit, offset)
	records, total, err := s.store.Leaderboard(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	ranked := make([]RankedRecord, len(records))
	for i, rec := range records {
		ranked[i] = RankedRecord{Rank: offset + i + 1, Record: rec}
	}
	return ranked, total, nil
}

// ByTier lists users in a tier.
func (s *Service) ByTier(ctx context.Context, tier Tier, limit, offset int) ([]Record, int, error) {
	switch tier {
	case TierNewcomer, TierTrusted, TierExpert, TierMaster, TierLegend:
	default:
		return nil, 0, fmt.Errorf("reputation: unknown tier %q", tier)
	}
	limit, offset = clampPage(limit, offset)
	return s.store.ByTier(ctx, tier, limit, offset)
}

// History returns a user's score history, newest first, paginated.
func (s *Service) History(ctx context.Context, user string, limit, offset int) ([]HistoryEntry, int, error) {
	rec, err := s.Get(ctx, user)
	if err != nil {
		return nil, 0, err
	}
	limit, offset = clampPage(limit, offset)

	// History is stored oldest-first; serve it newest-first.
	total := len(rec.History)
	reversed := make([]HistoryEntry, total)
	for i, e := range rec.History {
		reversed[total-1-i] = e
	}
	if offset >= total {
		return []HistoryEntry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return reversed[offset:end], total, nil
}

// Badges returns a user's badges.
func (s *Service) Badges(ctx context.Context, user string) ([]Badge, error) {
	rec, err := s.Get(ctx, user)
	if err != nil {
		return nil, err
	}
	if rec.Badges == nil {
		return []Badge{}, nil
	}
	return rec.Badges, nil
}

// Stats summarizes the whole ledger.
type Stats struct {
	Users        int
	AverageScore float64
	TotalBadges  int
	TierCounts   map[Tier]int
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	users, avg, badges, err := s.store.Totals(ctx)
	if err != nil {
		return Stats{}, err
	}
	counts, err := s.store.TierCounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Users: users, AverageScore: avg, TotalBadges: badges, TierCounts: counts}, nil
}

// RecentActivity returns the latest history entries across all users.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.RecentActivity(ctx, limit)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
