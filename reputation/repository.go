package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no reputation record exists for a user.
var ErrNotFound = errors.New("reputation: not found")

// Repository persists reputation records in Postgres. Badges and history
// live in JSONB columns so a record is a single lockable row.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `user_address, score, tier,
	tx_total, tx_successful, tx_failed,
	arb_participated, arb_won, arb_lost,
	badges, history, last_updated, created_at`

// GetOrCreateForUpdate locks the user's row inside the caller's
// transaction, inserting the zero-score state first when missing. The lock
// serializes concurrent score changes for the same user.
func (r *Repository) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, user string, now time.Time) (Record, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO reputations (user_address, score, tier, last_updated, created_at)
		VALUES ($1, 0, $2, $3, $3)
		ON CONFLICT (user_address) DO NOTHING
	`, user, TierNewcomer, now); err != nil {
		return Record{}, fmt.Errorf("reputation: ensure record: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM reputations
		WHERE user_address = $1
		FOR UPDATE
	`, user)
	return scanRecord(row)
}

// Save writes the full record back inside the caller's transaction.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, rec Record) error {
	badges, err := json.Marshal(rec.Badges)
	if err != nil {
		return fmt.Errorf("reputation: marshal badges: %w", err)
	}
	history, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("reputation: marshal history: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE reputations
		SET score = $2, tier = $3,
		    tx_total = $4, tx_successful = $5, tx_failed = $6,
		    arb_participated = $7, arb_won = $8, arb_lost = $9,
		    badges = $10, history = $11, last_updated = $12
		WHERE user_address = $1
	`, rec.User, rec.Score, rec.Tier,
		rec.Transactions.Total, rec.Transactions.Successful, rec.Transactions.Failed,
		rec.Arbitrations.Participated, rec.Arbitrations.Won, rec.Arbitrations.Lost,
		badges, history, rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("reputation: save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches a record without locking.
func (r *Repository) Get(ctx context.Context, user string) (Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM reputations
		WHERE user_address = $1
	`, user)
	return scanRecord(row)
}

// Leaderboard returns records ordered by score descending, with the total
// count for pagination.
func (r *Repository) Leaderboard(ctx context.Context, limit, offset int) ([]Record, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reputations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("reputation: count: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM reputations
		ORDER BY score DESC, user_address ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("reputation: leaderboard: %w", err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ByTier lists records in a tier ordered by score descending.
func (r *Repository) ByTier(ctx context.Context, tier Tier, limit, offset int) ([]Record, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reputations WHERE tier = $1`, tier).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("reputation: count tier: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM reputations
		WHERE tier = $1
		ORDER BY score DESC, user_address ASC
		LIMIT $2 OFFSET $3
	`, tier, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("reputation: by tier: %w", err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// TierCounts returns the number of users per tier.
func (r *Repository) TierCounts(ctx context.Context) (map[Tier]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT tier, COUNT(*) FROM reputations GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("reputation: tier counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Tier]int)
	for rows.Next() {
		var tier Tier
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("reputation: scan tier count: %w", err)
		}
		counts[tier] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reputation: iterate tier counts: %w", err)
	}
	return counts, nil
}

// Totals returns aggregate statistics across all records.
func (r *Repository) Totals(ctx context.Context) (users int, avgScore float64, totalBadges int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(score), 0),
		       COALESCE(SUM(jsonb_array_length(badges)), 0)
		FROM reputations
	`).Scan(&users, &avgScore, &totalBadges)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("reputation: totals: %w", err)
	}
	return users, avgScore, totalBadges, nil
}

// ActivityEntry is one history entry attributed to its user, for the
// recent-activity feed.
type ActivityEntry struct {
	User string
	HistoryEntry
}

// RecentActivity flattens history entries across all users, newest first.
func (r *Repository) RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_address,
		       e->>'action',
		       (e->>'change')::bigint,
		       e->>'reason',
		       COALESCE(e->>'related_id', ''),
		       (e->>'timestamp')::timestamptz
		FROM reputations, jsonb_array_elements(history) e
		ORDER BY (e->>'timestamp')::timestamptz DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("reputation: recent activity: %w", err)
	}
	defer rows.Close()

	entries := make([]ActivityEntry, 0, limit)
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.User, &e.Action, &e.Change, &e.Reason, &e.RelatedID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("reputation: scan activity: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reputation: iterate activity: %w", err)
	}
	return entries, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var badges, history []byte
	err := row.Scan(
		&rec.User, &rec.Score, &rec.Tier,
		&rec.Transactions.Total, &rec.Transactions.Successful, &rec.Transactions.Failed,
		&rec.Arbitrations.Participated, &rec.Arbitrations.Won, &rec.Arbitrations.Lost,
		&badges, &history, &rec.LastUpdated, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("reputation: scan record: %w", err)
	}
	if err := json.Unmarshal(badges, &rec.Badges); err != nil {
		return Record{}, fmt.Errorf("reputation: decode badges: %w", err)
	}
	if err := json.Unmarshal(history, &rec.History); err != nil {
		return Record{}, fmt.Errorf("reputation: decode history: %w", err)
	}
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	records := make([]Record, 0, 16)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reputation: iterate records: %w", err)
	}
	return records, nil
}
