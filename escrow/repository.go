package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/timeline"
)

var ErrNotFound = errors.New("escrow: not found")

// Repository persists escrow records.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const escrowColumns = `escrow_id, buyer, seller, arbitrator, amount, token_address, terms_hash,
	status, buyer_confirmed, seller_confirmed, evidence_hash, evidence_description,
	completed_at, created_at, updated_at`

// Insert creates a new active escrow inside the caller's transaction and
// appends its opening timeline entry.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO escrows (buyer, seller, arbitrator, amount, token_address, terms_hash,
		                     status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING escrow_id
	`, rec.Buyer, rec.Seller, rec.Arbitrator, rec.Amount, rec.TokenAddress, rec.TermsHash,
		rec.Status, rec.CreatedAt).Scan(&rec.EscrowID)
	if err != nil {
		return Record{}, fmt.Errorf("escrow: insert: %w", err)
	}

	if err := timeline.Append(ctx, tx, timeline.EntityEscrow, rec.EscrowID,
		"Escrow Created", rec.Buyer,
		fmt.Sprintf("amount %s, seller %s", rec.Amount, rec.Seller)); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetForUpdate locks an escrow row inside the caller's transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Record, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE escrow_id = $1
		FOR UPDATE
	`, id)
	return scanRecord(row)
}

// Save writes the mutable escrow state back inside the caller's
// transaction.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, rec Record) error {
	tag, err := tx.Exec(ctx, `
		UPDATE escrows
		SET status = $2, buyer_confirmed = $3, seller_confirmed = $4,
		    evidence_hash = $5, evidence_description = $6, completed_at = $7, updated_at = $8
		WHERE escrow_id = $1
	`, rec.EscrowID, rec.Status, rec.BuyerConfirmed, rec.SellerConfirmed,
		rec.EvidenceHash, rec.EvidenceDescription, rec.CompletedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("escrow: save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendTimeline adds an audit entry inside the caller's transaction.
func (r *Repository) AppendTimeline(ctx context.Context, tx pgx.Tx, id int64, action, actor, details string) error {
	return timeline.Append(ctx, tx, timeline.EntityEscrow, id, action, actor, details)
}

// Timeline returns an escrow's audit entries in order.
func (r *Repository) Timeline(ctx context.Context, id int64) ([]timeline.Entry, error) {
	return timeline.List(ctx, r.pool, timeline.EntityEscrow, id)
}

// GetByID fetches an escrow without locking.
func (r *Repository) GetByID(ctx context.Context, id int64) (Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE escrow_id = $1
	`, id)
	return scanRecord(row)
}

// Filters narrow List results.
type Filters struct {
	Status Status
	Party  string
	Limit  int
	Offset int
}

// List returns escrows newest first, optionally filtered by status or
// party.
func (r *Repository) List(ctx context.Context, f Filters) ([]Record, int, error) {
	where := "TRUE"
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Party != "" {
		args = append(args, NormalizeAddress(f.Party))
		where += fmt.Sprintf(" AND (buyer = $%d OR seller = $%d)", len(args), len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escrows WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("escrow: count: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM escrows
		WHERE %s
		ORDER BY created_at DESC, escrow_id DESC
		LIMIT $%d OFFSET $%d
	`, escrowColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("escrow: list: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, 16)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("escrow: iterate: %w", err)
	}
	return records, total, nil
}

// CountByStatus returns escrow counts per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM escrows GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("escrow: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("escrow: scan count: %w", err)
		}
		counts[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate counts: %w", err)
	}
	return counts, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.EscrowID, &rec.Buyer, &rec.Seller, &rec.Arbitrator, &rec.Amount, &rec.TokenAddress, &rec.TermsHash,
		&rec.Status, &rec.BuyerConfirmed, &rec.SellerConfirmed, &rec.EvidenceHash, &rec.EvidenceDescription,
		&rec.CompletedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("escrow: scan: %w", err)
	}
	return rec, nil
}
