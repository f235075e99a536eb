package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// JournalEntry is one accepted state transition as recorded in the
// durable event journal.
type JournalEntry struct {
	MessageID  string
	OrderID    string
	Entity     string
	EntityID   string
	State      string
	Source     string
	ObservedAt time.Time
	RecordedAt time.Time
}

// EventRepository persists the reference-event journal fed from the
// event stream. MessageID is the stream message ID, so redelivered
// messages land exactly once.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Append writes one journal entry. Appending a message ID already in
// the journal is a no-op.
func (r *EventRepository) Append(ctx context.Context, e JournalEntry) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO reference_events
		 (message_id, order_id, entity, entity_id, state, source, observed_at, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (message_id) DO NOTHING`,
		e.MessageID, e.OrderID, e.Entity, e.EntityID, e.State, e.Source, e.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("append reference event: %w", err)
	}
	return nil
}

// ListByOrder returns the journal for one order, oldest first.
func (r *EventRepository) ListByOrder(ctx context.Context, orderID string) ([]JournalEntry, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT message_id, order_id, entity, entity_id, state, source, observed_at, recorded_at
		 FROM reference_events WHERE order_id = $1 ORDER BY recorded_at ASC, message_id ASC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reference events: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.MessageID, &e.OrderID, &e.Entity, &e.EntityID, &e.State, &e.Source, &e.ObservedAt, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan reference event: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
