package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// EntityType discriminates which aggregate a timeline entry belongs to.
type EntityType string

const (
	EntityEscrow  EntityType = "escrow"
	EntityDispute EntityType = "dispute"
)

// ActorSystem marks entries produced by the engine rather than a party.
const ActorSystem = "system"

// Entry is one append-only audit record. Entries are never mutated after
// insertion; the schema enforces this with a trigger.
type Entry struct {
	Seq       int
	Action    string
	Actor     string
	Details   string
	Timestamp time.Time
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Append writes the next entry for an entity inside the caller's
// transaction. The caller must hold a lock on the entity row so the
// MAX(seq)+1 assignment cannot race.
func Append(ctx context.Context, tx pgx.Tx, entity EntityType, entityID int64, action, actor, details string) error {
	var seq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM timeline_events WHERE entity_type = $1 AND entity_id = $2`,
		entity, entityID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("timeline: next seq: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO timeline_events (entity_type, entity_id, seq, action, actor, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entity, entityID, seq, action, actor, details); err != nil {
		return fmt.Errorf("timeline: append: %w", err)
	}
	return nil
}

// List returns all entries for an entity in seq order.
func List(ctx context.Context, q Querier, entity EntityType, entityID int64) ([]Entry, error) {
	rows, err := q.Query(ctx, `
		SELECT seq, action, actor, details, ts
		FROM timeline_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY seq ASC
	`, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("timeline: list: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, 8)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.Action, &e.Actor, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("timeline: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline: iterate: %w", err)
	}
	return entries, nil
}
