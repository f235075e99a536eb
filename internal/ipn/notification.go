package ipn

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/errors"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
)

// Notification is the canonical form of one push message, after the
// provider-specific payload has been mapped to the shared vocabulary.
type Notification struct {
	// MessageID is the provider's uniqueness token for this delivery.
	MessageID string
	OrderID   string
	Kind      reference.EntityKind
	EntityID  string
	State     reference.State
	// Timestamp is the provider-assigned event time, used as the
	// transition's observed_at.
	Timestamp time.Time
}

// legacy form field names, one entity-id key per notification type.
var legacyIDFields = map[string]reference.EntityKind{
	"AmazonOrderReferenceId": reference.KindReference,
	"AmazonAuthorizationId":  reference.KindAuthorization,
	"AmazonCaptureId":        reference.KindCapture,
	"AmazonRefundId":         reference.KindRefund,
}

var legacyTypes = map[string]reference.EntityKind{
	"OrderReferenceNotification": reference.KindReference,
	"AuthorizationNotification":  reference.KindAuthorization,
	"CaptureNotification":        reference.KindCapture,
	"RefundNotification":         reference.KindRefund,
}

// parseLegacy decodes the legacy query-encoded message format.
func parseLegacy(body []byte) (*Notification, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrMalformedMessage, err)
	}

	kind, ok := legacyTypes[values.Get("NotificationType")]
	if !ok {
		return nil, fmt.Errorf("%w: unknown NotificationType %q", domainErrors.ErrMalformedMessage, values.Get("NotificationType"))
	}

	n := &Notification{
		MessageID: values.Get("NotificationReferenceId"),
		OrderID:   values.Get("SellerOrderId"),
		Kind:      kind,
		State:     normalizeState(values.Get("State")),
	}
	for field, k := range legacyIDFields {
		if k == kind {
			n.EntityID = values.Get(field)
		}
	}

	ts, err := time.Parse(time.RFC3339, values.Get("StateUpdateTimestamp"))
	if err != nil {
		return nil, fmt.Errorf("%w: bad StateUpdateTimestamp: %v", domainErrors.ErrMalformedMessage, err)
	}
	n.Timestamp = ts

	return n, n.validate()
}

// currentMessage is the current protocol's JSON push format.
type currentMessage struct {
	NotificationID      string    `json:"notificationId"`
	MerchantReferenceID string    `json:"merchantReferenceId"`
	ObjectType          string    `json:"objectType"`
	ObjectID            string    `json:"objectId"`
	State               string    `json:"state"`
	Timestamp           time.Time `json:"timestamp"`
}

var currentTypes = map[string]reference.EntityKind{
	"CHECKOUT_SESSION":  reference.KindReference,
	"CHARGE_PERMISSION": reference.KindReference,
	"AUTHORIZATION":     reference.KindAuthorization,
	"CHARGE":            reference.KindAuthorization,
	"CAPTURE":           reference.KindCapture,
	"REFUND":            reference.KindRefund,
}

// parseCurrent decodes the current JSON message format.
func parseCurrent(body []byte) (*Notification, error) {
	var msg currentMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrMalformedMessage, err)
	}

	kind, ok := currentTypes[strings.ToUpper(msg.ObjectType)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown objectType %q", domainErrors.ErrMalformedMessage, msg.ObjectType)
	}
	if msg.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamp", domainErrors.ErrMalformedMessage)
	}

	n := &Notification{
		MessageID: msg.NotificationID,
		OrderID:   msg.MerchantReferenceID,
		Kind:      kind,
		EntityID:  msg.ObjectID,
		State:     normalizeState(msg.State),
		Timestamp: msg.Timestamp,
	}
	return n, n.validate()
}

func (n *Notification) validate() error {
	switch {
	case n.MessageID == "":
		return fmt.Errorf("%w: missing message id", domainErrors.ErrMalformedMessage)
	case n.OrderID == "":
		return fmt.Errorf("%w: missing order id", domainErrors.ErrMalformedMessage)
	case n.EntityID == "":
		return fmt.Errorf("%w: missing entity id", domainErrors.ErrMalformedMessage)
	case !n.State.ValidFor(n.Kind):
		return fmt.Errorf("%w: state %q is not valid for %s", domainErrors.ErrMalformedMessage, n.State, n.Kind)
	}
	return nil
}

// normalizeState maps current-protocol state names onto the canonical
// vocabulary; canonical names pass through unchanged.
func normalizeState(raw string) reference.State {
	switch raw {
	case "AuthorizationInitiated", "CaptureInitiated", "RefundInitiated":
		return reference.StatePending
	case "Authorized":
		return reference.StateOpen
	case "Captured", "Refunded":
		return reference.StateCompleted
	case "Canceled":
		return reference.StateClosed
	}
	return reference.State(raw)
}
