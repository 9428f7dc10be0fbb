package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"escrowflow/timeline"
)

// Repository errors beyond the state machine's own.
var (
	ErrNotFound       = errors.New("dispute: not found")
	ErrEscrowNotFound = errors.New("dispute: escrow does not exist")
	ErrDuplicate      = errors.New("dispute: escrow already has an open dispute")
)

// Repository persists disputes. The juror panel and evidence files live in
// JSONB columns so a dispute is a single lockable row; a partial unique
// index on escrow_id keeps at most one non-cancelled dispute per escrow.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const disputeColumns = `dispute_id, escrow_id, buyer, seller,
	evidence_hash, description, evidence_files, jurors,
	buyer_votes, seller_votes, total_stake,
	status, winner, resolution_reason, resolved_at,
	created_at, updated_at`

// CreateParams is the input for opening a dispute.
type CreateParams struct {
	EscrowID    int64
	Buyer       string
	Seller      string
	Evidence    string
	Description string
	OpenedBy    string
}

// CreateInTx inserts a pending dispute inside the caller's transaction and
// appends its opening timeline entry. Escrow-initiated disputes share the
// escrow's transaction so both records commit or neither does.
func (r *Repository) CreateInTx(ctx context.Context, tx pgx.Tx, p CreateParams, now time.Time) (Dispute, error) {
	d := Dispute{
		EscrowID:    p.EscrowID,
		Buyer:       NormalizeAddress(p.Buyer),
		Seller:      NormalizeAddress(p.Seller),
		Evidence:    p.Evidence,
		Description: p.Description,
		Status:      StatusPending,
		Votes:       Tally{TotalStake: decimal.Zero},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO disputes (escrow_id, buyer, seller, evidence_hash, description,
		                      evidence_files, jurors, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '[]', '[]', $6, $7, $7)
		RETURNING dispute_id
	`, d.EscrowID, d.Buyer, d.Seller, d.Evidence, d.Description, d.Status, now).Scan(&d.DisputeID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23503": // foreign key
				return Dispute{}, ErrEscrowNotFound
			case "23505": // unique
				return Dispute{}, ErrDuplicate
			}
		}
		return Dispute{}, fmt.Errorf("dispute: insert: %w", err)
	}

	actor := NormalizeAddress(p.OpenedBy)
	if actor == "" {
		actor = d.Buyer
	}
	if err := timeline.Append(ctx, tx, timeline.EntityDispute, d.DisputeID, "Dispute Opened", actor,
		fmt.Sprintf("dispute opened for escrow %d", d.EscrowID)); err != nil {
		return Dispute{}, err
	}
	return d, nil
}

// AppendTimeline adds an audit entry inside the caller's transaction.
func (r *Repository) AppendTimeline(ctx context.Context, tx pgx.Tx, id int64, action, actor, details string) error {
	return timeline.Append(ctx, tx, timeline.EntityDispute, id, action, actor, details)
}

// Timeline returns a dispute's audit entries in order.
func (r *Repository) Timeline(ctx context.Context, id int64) ([]timeline.Entry, error) {
	return timeline.List(ctx, r.pool, timeline.EntityDispute, id)
}

// GetForUpdate locks a dispute row inside the caller's transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Dispute, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE dispute_id = $1
		FOR UPDATE
	`, id)
	return scanDispute(row)
}

// Save writes the mutable dispute state back inside the caller's
// transaction.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, d Dispute) error {
	jurors, err := json.Marshal(jurorsOrEmpty(d.Jurors))
	if err != nil {
		return fmt.Errorf("dispute: marshal jurors: %w", err)
	}
	files, err := json.Marshal(filesOrEmpty(d.Files))
	if err != nil {
		return fmt.Errorf("dispute: marshal files: %w", err)
	}

	var winner, reason *string
	var resolvedAt *time.Time
	if d.Resolution != nil {
		winner = &d.Resolution.Winner
		reason = &d.Resolution.Reason
		resolvedAt = &d.Resolution.ResolvedAt
	}

	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET description = $2, evidence_files = $3, jurors = $4,
		    buyer_votes = $5, seller_votes = $6, total_stake = $7,
		    status = $8, winner = $9, resolution_reason = $10, resolved_at = $11,
		    updated_at = $12
		WHERE dispute_id = $1
	`, d.DisputeID, d.Description, files, jurors,
		d.Votes.BuyerVotes, d.Votes.SellerVotes, d.Votes.TotalStake,
		d.Status, winner, reason, resolvedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("dispute: save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches a dispute without locking.
func (r *Repository) GetByID(ctx context.Context, id int64) (Dispute, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE dispute_id = $1
	`, id)
	return scanDispute(row)
}

// Filters narrow List results.
type Filters struct {
	Status      Status
	Participant string
	Limit       int
	Offset      int
}

// List returns disputes newest first, optionally filtered by status or by
// a participant (party or assigned juror).
func (r *Repository) List(ctx context.Context, f Filters) ([]Dispute, int, error) {
	where := "TRUE"
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Participant != "" {
		p := NormalizeAddress(f.Participant)
		member, err := json.Marshal([]map[string]string{{"address": p}})
		if err != nil {
			return nil, 0, fmt.Errorf("dispute: marshal participant filter: %w", err)
		}
		args = append(args, p)
		pIdx := len(args)
		args = append(args, string(member))
		where += fmt.Sprintf(" AND (buyer = $%d OR seller = $%d OR jurors @> $%d::jsonb)", pIdx, pIdx, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM disputes WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("dispute: count: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM disputes
		WHERE %s
		ORDER BY created_at DESC, dispute_id DESC
		LIMIT $%d OFFSET $%d
	`, disputeColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	disputes, err := collectDisputes(rows)
	if err != nil {
		return nil, 0, err
	}
	return disputes, total, nil
}

// CountByStatus returns dispute counts per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM disputes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("dispute: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("dispute: scan count: %w", err)
		}
		counts[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate counts: %w", err)
	}
	return counts, nil
}

func scanDispute(row pgx.Row) (Dispute, error) {
	var d Dispute
	var files, jurors []byte
	var winner, reason *string
	var resolvedAt *time.Time
	err := row.Scan(
		&d.DisputeID, &d.EscrowID, &d.Buyer, &d.Seller,
		&d.Evidence, &d.Description, &files, &jurors,
		&d.Votes.BuyerVotes, &d.Votes.SellerVotes, &d.Votes.TotalStake,
		&d.Status, &winner, &reason, &resolvedAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Dispute{}, ErrNotFound
	}
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: scan: %w", err)
	}
	if err := json.Unmarshal(files, &d.Files); err != nil {
		return Dispute{}, fmt.Errorf("dispute: decode files: %w", err)
	}
	if err := json.Unmarshal(jurors, &d.Jurors); err != nil {
		return Dispute{}, fmt.Errorf("dispute: decode jurors: %w", err)
	}
	if winner != nil {
		d.Resolution = &Resolution{Winner: *winner}
		if reason != nil {
			d.Resolution.Reason = *reason
		}
		if resolvedAt != nil {
			d.Resolution.ResolvedAt = *resolvedAt
		}
	}
	return d, nil
}

func collectDisputes(rows pgx.Rows) ([]Dispute, error) {
	disputes := make([]Dispute, 0, 16)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return disputes, nil
}

func jurorsOrEmpty(js []Juror) []Juror {
	if js == nil {
		return []Juror{}
	}
	return js
}

func filesOrEmpty(fs []EvidenceFile) []EvidenceFile {
	if fs == nil {
		return []EvidenceFile{}
	}
	return fs
}
