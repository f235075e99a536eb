// Package gate routes each order to the legacy or current provider
// protocol. The merchant-level flag is read once; the variant recorded
// on an order at reference creation never changes afterward, even if the
// merchant account migrates.
package gate

import (
	"context"
	"fmt"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/store"
)

// Variant selects the wire protocol spoken for one order.
type Variant string

const (
	Legacy  Variant = "legacy"
	Current Variant = "current"
)

// MerchantStore exposes the onboarding subsystem's migration flag.
type MerchantStore interface {
	// Migrated reports whether the merchant account has completed
	// migration to the current API.
	Migrated(ctx context.Context) (bool, error)
}

// Gate resolves the protocol variant for orders. The merchant flag is
// sampled exactly once, at construction.
type Gate struct {
	meta    store.MetadataRepository
	variant Variant
}

// New samples the merchant migration flag and returns a Gate that
// assigns the resulting variant to newly created references.
func New(ctx context.Context, merchants MerchantStore, meta store.MetadataRepository) (*Gate, error) {
	migrated, err := merchants.Migrated(ctx)
	if err != nil {
		return nil, fmt.Errorf("read merchant migration status: %w", err)
	}
	v := Legacy
	if migrated {
		v = Current
	}
	return &Gate{meta: meta, variant: v}, nil
}

// ForNewReference returns the variant to record on an order whose
// reference is being created now.
func (g *Gate) ForNewReference() Variant {
	return g.variant
}

// Record persists the variant on the order. Called once, at reference
// creation.
func (g *Gate) Record(ctx context.Context, orderID string, v Variant) error {
	return g.meta.Set(ctx, orderID, store.MetaAPIVersion, string(v))
}

// Recorded returns the variant persisted on the order and whether one
// was recorded at all.
func (g *Gate) Recorded(ctx context.Context, orderID string) (Variant, bool, error) {
	raw, err := g.meta.Get(ctx, orderID, store.MetaAPIVersion)
	if err != nil {
		return "", false, fmt.Errorf("read recorded api version: %w", err)
	}
	if raw == "" {
		return "", false, nil
	}
	return Variant(raw), true, nil
}

// ForOrder returns the variant recorded on the order. Orders created
// before the gate existed carry no record and stay on the legacy path.
func (g *Gate) ForOrder(ctx context.Context, orderID string) (Variant, error) {
	raw, err := g.meta.Get(ctx, orderID, store.MetaAPIVersion)
	if err != nil {
		return "", fmt.Errorf("read recorded api version: %w", err)
	}
	switch Variant(raw) {
	case Current:
		return Current, nil
	default:
		return Legacy, nil
	}
}
