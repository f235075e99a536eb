package store

import "context"

// Metadata keys on the order record, matching the names the external
// order collaborator exposes over its REST surface.
const (
	MetaReferenceID        = "amazon_reference_id"
	MetaReferenceState     = "amazon_reference_state"
	MetaAuthorizationID    = "amazon_authorization_id"
	MetaAuthorizationState = "amazon_authorization_state"
	MetaCaptureID          = "amazon_capture_id"
	MetaCaptureState       = "amazon_capture_state"
	MetaRefundID           = "amazon_refund_id"
	MetaAPIVersion         = "amazon_api_version"
)

// MetadataRepository is the port to the external order subsystem's named
// metadata map. Get returns an empty string without error when the key is
// absent. Add appends to a multi-valued key and is a no-op when the exact
// value is already present.
type MetadataRepository interface {
	Get(ctx context.Context, orderID, key string) (string, error)
	Set(ctx context.Context, orderID, key, value string) error
	Add(ctx context.Context, orderID, key, value string) error
	GetAll(ctx context.Context, orderID, key string) ([]string, error)
}
