// Package client issues provider API calls over either the legacy
// (query-encoded request, XML response) or the current (JSON) wire
// protocol. The protocol variant is chosen once per order through the
// migration gate and never mixed within one reference's lifetime.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/gate"
)

// CreateReferenceRequest carries the cart context needed to establish a
// provider session for one checkout attempt.
type CreateReferenceRequest struct {
	OrderID    string
	Amount     reference.Amount
	StoreName  string
	SellerNote string
}

// ReferenceResult is the outcome of a successful create-reference call.
type ReferenceResult struct {
	ReferenceID string
	State       reference.State
	ObservedAt  time.Time
}

// AuthorizationResult is the outcome of a successful authorize call.
type AuthorizationResult struct {
	AuthorizationID string
	State           reference.State
	Amount          reference.Amount
	ObservedAt      time.Time
}

// CaptureResult is the outcome of a successful capture call.
type CaptureResult struct {
	CaptureID  string
	State      reference.State
	ObservedAt time.Time
}

// RefundResult is the outcome of a successful refund call.
type RefundResult struct {
	RefundID   string
	State      reference.State
	ObservedAt time.Time
}

// ReferenceSnapshot is the provider-side view of a reference, returned
// by get-reference-details.
type ReferenceSnapshot struct {
	ReferenceID        string
	ReferenceState     reference.State
	AuthorizationID    string
	AuthorizationState reference.State
	CaptureID          string
	CaptureState       reference.State
	ObservedAt         time.Time
}

// Client is the provider API contract. Every mutating call takes an
// idempotency token so a retry after a timeout has at most one effect.
// Failures are reported through the domain error taxonomy:
// ErrProviderTransient, ErrPaymentDeclined, ErrInvalidRequest,
// ErrCredentialsExpired.
type Client interface {
	Variant() gate.Variant
	CreateReference(ctx context.Context, req CreateReferenceRequest) (*ReferenceResult, error)
	Authorize(ctx context.Context, referenceID string, amount reference.Amount, token string) (*AuthorizationResult, error)
	Capture(ctx context.Context, authorizationID string, amount reference.Amount, token string) (*CaptureResult, error)
	Refund(ctx context.Context, captureID string, amount reference.Amount, token string) (*RefundResult, error)
	GetReferenceDetails(ctx context.Context, referenceID string) (*ReferenceSnapshot, error)
}

// Token builds the deterministic idempotency token for one mutating
// attempt. The nonce is attempt-scoped: retries of the same attempt
// reuse it, a new attempt gets a fresh one.
func Token(orderID, operation, nonce string) string {
	return fmt.Sprintf("%s:%s:%s", orderID, operation, nonce)
}

// Factory hands out the client for a given protocol variant.
type Factory struct {
	clients map[gate.Variant]Client
}

// NewFactory registers the given clients by variant.
func NewFactory(clients ...Client) *Factory {
	f := &Factory{clients: make(map[gate.Variant]Client)}
	for _, c := range clients {
		f.clients[c.Variant()] = c
	}
	return f
}

// For returns the client speaking the given variant.
func (f *Factory) For(v gate.Variant) (Client, error) {
	c, ok := f.clients[v]
	if !ok {
		return nil, fmt.Errorf("no client registered for api variant %q", v)
	}
	return c, nil
}
