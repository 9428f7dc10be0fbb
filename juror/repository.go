package juror

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("juror: not found")

// Repository persists the juror registry. Mutations are single-statement
// conditional updates; callers inspect RowsAffected-style sentinel errors
// instead of read-modify-write cycles.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jurorColumns = `address, stake, reputation, is_active,
	disputes_participated, disputes_resolved,
	total_rewards, total_penalties, accuracy,
	registered_at, updated_at`

// Insert registers a new juror. Returns false when the address is taken.
func (r *Repository) Insert(ctx context.Context, j Juror) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO jurors (address, stake, reputation, is_active, registered_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4)
		ON CONFLICT (address) DO NOTHING
	`, j.Address, j.Stake, j.Reputation, j.RegisteredAt)
	if err != nil {
		return false, fmt.Errorf("juror: insert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Reactivate flips an inactive juror back to active with a fresh stake.
// Returns false when the juror is missing or already active.
func (r *Repository) Reactivate(ctx context.Context, address string, stake decimal.Decimal) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jurors
		SET is_active = TRUE, stake = $2, updated_at = NOW()
		WHERE address = $1 AND is_active = FALSE
	`, address, stake)
	if err != nil {
		return false, fmt.Errorf("juror: reactivate: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Deactivate marks an active juror inactive. Returns false when no active
// juror matched.
func (r *Repository) Deactivate(ctx context.Context, address string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jurors
		SET is_active = FALSE, updated_at = NOW()
		WHERE address = $1 AND is_active = TRUE
	`, address)
	if err != nil {
		return false, fmt.Errorf("juror: deactivate: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStake replaces an active juror's stake. Returns false when no
// active juror matched.
func (r *Repository) UpdateStake(ctx context.Context, address string, stake decimal.Decimal) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jurors
		SET stake = $2, updated_at = NOW()
		WHERE address = $1 AND is_active = TRUE
	`, address, stake)
	if err != nil {
		return false, fmt.Errorf("juror: update stake: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get fetches a juror by address.
func (r *Repository) Get(ctx context.Context, address string) (Juror, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+jurorColumns+`
		FROM jurors
		WHERE address = $1
	`, address)
	return scanJuror(row)
}

// ListActive returns active jurors ordered by reputation descending.
func (r *Repository) ListActive(ctx context.Context, limit, offset int) ([]Juror, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jurors WHERE is_active`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("juror: count active: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+jurorColumns+`
		FROM jurors
		WHERE is_active
		ORDER BY reputation DESC, address ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("juror: list active: %w", err)
	}
	defer rows.Close()

	jurors, err := collectJurors(rows)
	if err != nil {
		return nil, 0, err
	}
	return jurors, total, nil
}

// Top returns the highest-reputation active jurors.
func (r *Repository) Top(ctx context.Context, limit int) ([]Juror, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jurorColumns+`
		FROM jurors
		WHERE is_active
		ORDER BY reputation DESC, accuracy DESC, address ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("juror: top: %w", err)
	}
	defer rows.Close()
	return collectJurors(rows)
}

// IncrementParticipation bumps the participation counter for the given
// addresses and recomputes their accuracy.
func (r *Repository) IncrementParticipation(ctx context.Context, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE jurors
		SET disputes_participated = disputes_participated + 1,
		    accuracy = disputes_resolved::float8 / (disputes_participated + 1) * 100,
		    updated_at = NOW()
		WHERE address = ANY($1)
	`, addresses); err != nil {
		return fmt.Errorf("juror: increment participation: %w", err)
	}
	return nil
}

// IncrementResolved bumps the resolved counter for jurors who voted with
// the majority and recomputes their accuracy.
func (r *Repository) IncrementResolved(ctx context.Context, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE jurors
		SET disputes_resolved = disputes_resolved + 1,
		    accuracy = (disputes_resolved + 1)::float8 / GREATEST(disputes_participated, 1) * 100,
		    updated_at = NOW()
		WHERE address = ANY($1)
	`, addresses); err != nil {
		return fmt.Errorf("juror: increment resolved: %w", err)
	}
	return nil
}

// Stats aggregates the registry.
func (r *Repository) Stats(ctx context.Context) (active int, totalStake decimal.Decimal, avgAccuracy float64, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE is_active),
		       COALESCE(SUM(stake) FILTER (WHERE is_active), 0),
		       COALESCE(AVG(accuracy) FILTER (WHERE is_active), 0)
		FROM jurors
	`).Scan(&active, &totalStake, &avgAccuracy)
	if err != nil {
		return 0, decimal.Zero, 0, fmt.Errorf("juror: stats: %w", err)
	}
	return active, totalStake, avgAccuracy, nil
}

func scanJuror(row pgx.Row) (Juror, error) {
	var j Juror
	err := row.Scan(
		&j.Address, &j.Stake, &j.Reputation, &j.IsActive,
		&j.DisputesParticipated, &j.DisputesResolved,
		&j.TotalRewards, &j.TotalPenalties, &j.Accuracy,
		&j.RegisteredAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Juror{}, ErrNotFound
	}
	if err != nil {
		return Juror{}, fmt.Errorf("juror: scan: %w", err)
	}
	return j, nil
}

func collectJurors(rows pgx.Rows) ([]Juror, error) {
	jurors := make([]Juror, 0, 16)
	for rows.Next() {
		j, err := scanJuror(rows)
		if err != nil {
			return nil, err
		}
		jurors = append(jurors, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("juror: iterate: %w", err)
	}
	return jurors, nil
}
