package controller

import (
	"time"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/reconcile"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (float64 for money, validation
// tags). Controllers convert them to domain amounts before calling the
// reconciler.

// CreateReferenceRequest holds the input for opening a payment
// reference at checkout.
type CreateReferenceRequest struct {
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Currency   string  `json:"currency" validate:"required,len=3"`
	StoreName  string  `json:"store_name,omitempty"`
	SellerNote string  `json:"seller_note,omitempty"`
}

// MoneyRequest holds the input for authorize, capture and refund calls.
type MoneyRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"required,len=3"`
}

// --- Response DTOs ---

// OperationResponse reports the outcome of one synchronous gateway
// operation. Settled means the stored state already superseded this
// call's result; the operation still counts as successful.
type OperationResponse struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
	Settled  bool   `json:"settled,omitempty"`
}

// SnapshotResponse is the consolidated gateway view of one order.
type SnapshotResponse struct {
	OrderID            string     `json:"order_id"`
	ReferenceID        string     `json:"amazon_reference_id"`
	ReferenceState     string     `json:"amazon_reference_state,omitempty"`
	AuthorizationID    string     `json:"amazon_authorization_id,omitempty"`
	AuthorizationState string     `json:"amazon_authorization_state,omitempty"`
	CaptureID          string     `json:"amazon_capture_id,omitempty"`
	CaptureState       string     `json:"amazon_capture_state,omitempty"`
	RefundIDs          []string   `json:"amazon_refund_ids,omitempty"`
	APIVersion         string     `json:"amazon_api_version,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromResult converts a reconciler result to an API response.
func FromResult(r *reconcile.Result) *OperationResponse {
	return &OperationResponse{
		EntityID: r.EntityID,
		State:    string(r.State),
		Settled:  r.Settled,
	}
}

// FromSnapshot converts a stored snapshot to an API response.
func FromSnapshot(s *reference.Snapshot) *SnapshotResponse {
	return &SnapshotResponse{
		OrderID:            s.OrderID,
		ReferenceID:        s.ReferenceID,
		ReferenceState:     string(s.ReferenceState),
		AuthorizationID:    s.AuthorizationID,
		AuthorizationState: string(s.AuthorizationState),
		CaptureID:          s.CaptureID,
		CaptureState:       string(s.CaptureState),
		RefundIDs:          s.RefundIDs,
		APIVersion:         s.APIVersion,
		UpdatedAt:          s.UpdatedAt,
	}
}

// floatToCents converts a float currency amount to cents.
func floatToCents(f float64) int64 {
	return int64(f*100 + 0.5)
}

func toAmount(amount float64, currency string) reference.Amount {
	return reference.Amount{ValueCents: floatToCents(amount), Currency: currency}
}
