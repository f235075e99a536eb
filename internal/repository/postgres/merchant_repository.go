package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MerchantRepository stores merchant-level gateway settings. The service
// runs per merchant, so the table holds a single settings row; reading
// an empty table yields the defaults (not migrated).
type MerchantRepository struct {
	pool *pgxpool.Pool
}

// NewMerchantRepository creates a new MerchantRepository.
func NewMerchantRepository(pool *pgxpool.Pool) *MerchantRepository {
	return &MerchantRepository{pool: pool}
}

func (r *MerchantRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Migrated reports whether this merchant has moved to the current
// protocol for new references.
func (r *MerchantRepository) Migrated(ctx context.Context) (bool, error) {
	var migrated bool
	err := r.db(ctx).QueryRow(ctx,
		`SELECT migrated FROM merchant_settings ORDER BY id ASC LIMIT 1`,
	).Scan(&migrated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get merchant settings: %w", err)
	}
	return migrated, nil
}

// SetMigrated flips the protocol flag for new references. Orders
// already carrying a recorded protocol are unaffected.
func (r *MerchantRepository) SetMigrated(ctx context.Context, migrated bool) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO merchant_settings (id, migrated, updated_at)
		 VALUES (1, $1, NOW())
		 ON CONFLICT (id) DO UPDATE SET migrated = EXCLUDED.migrated, updated_at = NOW()`,
		migrated,
	)
	if err != nil {
		return fmt.Errorf("set merchant settings: %w", err)
	}
	return nil
}
