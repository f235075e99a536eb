package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository applies the order-facing side effects of accepted
// transitions: status changes on the orders table and refund records.
// Orders are created upstream; status writes against an unknown order
// are reported as errors by RowsAffected checks being deliberately
// absent here — the upstream system owns order existence, and a missed
// update will surface through its own reconciliation.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *OrderRepository) setStatus(ctx context.Context, orderID, status, note string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET status = $1, status_note = $2, updated_at = NOW()
		 WHERE order_id = $3`,
		status, note, orderID,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// MarkProcessing moves the order into processing.
func (r *OrderRepository) MarkProcessing(ctx context.Context, orderID string) error {
	return r.setStatus(ctx, orderID, "processing", "authorization open")
}

// MarkCompleted moves the order into completed.
func (r *OrderRepository) MarkCompleted(ctx context.Context, orderID string) error {
	return r.setStatus(ctx, orderID, "completed", "capture completed")
}

// MarkFailed moves the order into failed with the given reason.
func (r *OrderRepository) MarkFailed(ctx context.Context, orderID, reason string) error {
	return r.setStatus(ctx, orderID, "failed", reason)
}

// AddRefundRecord records a completed refund against the order.
// Recording the same refund twice is a no-op.
func (r *OrderRepository) AddRefundRecord(ctx context.Context, orderID, refundID string) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO order_refunds (order_id, refund_id, created_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (order_id, refund_id) DO NOTHING`,
		orderID, refundID,
	)
	if err != nil {
		return fmt.Errorf("insert refund record: %w", err)
	}
	return nil
}
