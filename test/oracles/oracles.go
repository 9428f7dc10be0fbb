// Package oracles checks cross-table invariants directly in SQL after a
// stress run.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Violation describes one broken invariant.
type Violation struct {
	Oracle string
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Oracle, v.Detail)
}

// Oracle inspects the database for violations of one invariant.
type Oracle struct {
	Name  string
	Query string // must return zero rows when the invariant holds
}

// All returns the full oracle set.
func All() []Oracle {
	return []Oracle{
		{
			Name: "completed escrows have both confirmations",
			Query: `SELECT escrow_id::text FROM escrows
			        WHERE status = 'Completed' AND NOT (buyer_confirmed AND seller_confirmed)`,
		},
		{
			Name: "active escrows are not fully confirmed",
			Query: `SELECT escrow_id::text FROM escrows
			        WHERE status = 'Active' AND buyer_confirmed AND seller_confirmed`,
		},
		{
			Name: "at most one open dispute per escrow",
			Query: `SELECT escrow_id::text FROM disputes
			        WHERE status <> 'Cancelled'
			        GROUP BY escrow_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "resolved disputes name a party as winner",
			Query: `SELECT dispute_id::text FROM disputes
			        WHERE status = 'Resolved' AND (winner IS NULL OR (winner <> buyer AND winner <> seller))`,
		},
		{
			Name: "unresolved disputes have no winner",
			Query: `SELECT dispute_id::text FROM disputes
			        WHERE status <> 'Resolved' AND winner IS NOT NULL`,
		},
		{
			Name: "tie votes resolve to the seller",
			Query: `SELECT dispute_id::text FROM disputes
			        WHERE status = 'Resolved' AND buyer_votes = seller_votes AND winner <> seller`,
		},
		{
			Name: "buyer majority resolves to the buyer",
			Query: `SELECT dispute_id::text FROM disputes
			        WHERE status = 'Resolved' AND buyer_votes > seller_votes AND winner <> buyer`,
		},
		{
			Name: "vote tallies never exceed the panel",
			Query: `SELECT dispute_id::text FROM disputes
			        WHERE buyer_votes + seller_votes > jsonb_array_length(jurors)`,
		},
		{
			Name: "reputation scores are non-negative",
			Query: `SELECT user_address FROM reputations WHERE score < 0`,
		},
		{
			Name:  "reputation history is bounded",
			Query: `SELECT user_address FROM reputations WHERE jsonb_array_length(history) > 100`,
		},
		{
			Name: "transaction counters are consistent",
			Query: `SELECT user_address FROM reputations
			        WHERE tx_total <> tx_successful + tx_failed`,
		},
		{
			Name: "timeline sequences are dense per entity",
			Query: `SELECT entity_type || '/' || entity_id::text FROM timeline_events
			        GROUP BY entity_type, entity_id
			        HAVING MAX(seq) <> COUNT(*) OR MIN(seq) <> 1`,
		},
		{
			Name: "juror resolved never exceeds participated",
			Query: `SELECT address FROM jurors
			        WHERE disputes_resolved > disputes_participated`,
		},
	}
}

// Check runs every oracle and returns the violations found.
func Check(ctx context.Context, pool *pgxpool.Pool) ([]Violation, error) {
	var violations []Violation
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.Query)
		if err != nil {
			return nil, fmt.Errorf("oracles: %s: %w", o.Name, err)
		}
		for rows.Next() {
			var detail string
			if err := rows.Scan(&detail); err != nil {
				rows.Close()
				return nil, fmt.Errorf("oracles: scan %s: %w", o.Name, err)
			}
			violations = append(violations, Violation{Oracle: o.Name, Detail: detail})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("oracles: iterate %s: %w", o.Name, err)
		}
	}
	return violations, nil
}
