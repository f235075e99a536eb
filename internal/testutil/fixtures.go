package testutil

import (
	"time"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
)

// BaseTime anchors fixture timestamps so ordering in tests is explicit.
var BaseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func NewTransition(orderID string, kind reference.EntityKind, entityID string, state reference.State, at time.Time) reference.Transition {
	return reference.Transition{
		OrderID:    orderID,
		Kind:       kind,
		EntityID:   entityID,
		NewState:   state,
		ObservedAt: at,
	}
}

func NewAmount(cents int64, currency string) reference.Amount {
	return reference.Amount{ValueCents: cents, Currency: currency}
}
