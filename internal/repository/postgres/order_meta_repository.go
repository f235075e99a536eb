package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderMetaRepository stores the per-order named metadata map used to
// track gateway entity IDs and states. A key may hold several values;
// row insertion order is preserved so multi-valued keys read back in
// the order they were appended.
type OrderMetaRepository struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

// NewOrderMetaRepository creates a new OrderMetaRepository.
func NewOrderMetaRepository(pool *pgxpool.Pool) *OrderMetaRepository {
	return &OrderMetaRepository{pool: pool, tx: NewTxManager(pool)}
}

func (r *OrderMetaRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Get returns the first value stored under the key, or an empty string
// when the key is absent.
func (r *OrderMetaRepository) Get(ctx context.Context, orderID, key string) (string, error) {
	var value string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT meta_value FROM order_meta
		 WHERE order_id = $1 AND meta_key = $2
		 ORDER BY id ASC LIMIT 1`, orderID, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get order meta: %w", err)
	}
	return value, nil
}

// Set replaces all values under the key with a single value.
func (r *OrderMetaRepository) Set(ctx context.Context, orderID, key, value string) error {
	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.db(ctx).Exec(ctx,
			`DELETE FROM order_meta WHERE order_id = $1 AND meta_key = $2 AND meta_value <> $3`,
			orderID, key, value,
		); err != nil {
			return fmt.Errorf("clear order meta: %w", err)
		}
		if _, err := r.db(ctx).Exec(ctx,
			`INSERT INTO order_meta (order_id, meta_key, meta_value)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (order_id, meta_key, meta_value) DO NOTHING`,
			orderID, key, value,
		); err != nil {
			return fmt.Errorf("set order meta: %w", err)
		}
		return nil
	})
}

// Add appends a value to a multi-valued key. Appending a value already
// present is a no-op.
func (r *OrderMetaRepository) Add(ctx context.Context, orderID, key, value string) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO order_meta (order_id, meta_key, meta_value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (order_id, meta_key, meta_value) DO NOTHING`,
		orderID, key, value,
	)
	if err != nil {
		return fmt.Errorf("add order meta: %w", err)
	}
	return nil
}

// GetAll returns every value stored under the key, oldest first.
func (r *OrderMetaRepository) GetAll(ctx context.Context, orderID, key string) ([]string, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT meta_value FROM order_meta
		 WHERE order_id = $1 AND meta_key = $2
		 ORDER BY id ASC`, orderID, key,
	)
	if err != nil {
		return nil, fmt.Errorf("list order meta: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan order meta: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
