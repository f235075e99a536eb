package observer

import (
	"context"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
)

// OrderUpdater is the port to the external order subsystem's status
// side effects.
type OrderUpdater interface {
	MarkProcessing(ctx context.Context, orderID string) error
	MarkCompleted(ctx context.Context, orderID string) error
	MarkFailed(ctx context.Context, orderID, reason string) error
	AddRefundRecord(ctx context.Context, orderID, refundID string) error
}

// orderStatus drives order status off reference-state transitions:
// processing when the authorization opens, completed when the capture
// completes, a refund record when a refund completes, failed on any
// declined entity.
type orderStatus struct {
	orders OrderUpdater
}

// NewOrderStatus creates the order-status observer.
func NewOrderStatus(orders OrderUpdater) Observer {
	return &orderStatus{orders: orders}
}

func (o *orderStatus) Name() string { return "order_status" }

func (o *orderStatus) OnTransition(ctx context.Context, ev Event) error {
	if ev.State == reference.StateDeclined {
		return o.orders.MarkFailed(ctx, ev.OrderID, string(ev.Kind)+" declined")
	}

	switch ev.Kind {
	case reference.KindAuthorization:
		if ev.State == reference.StateOpen {
			return o.orders.MarkProcessing(ctx, ev.OrderID)
		}
	case reference.KindCapture:
		if ev.State == reference.StateCompleted {
			return o.orders.MarkCompleted(ctx, ev.OrderID)
		}
	case reference.KindRefund:
		if ev.State == reference.StateCompleted {
			return o.orders.AddRefundRecord(ctx, ev.OrderID, ev.EntityID)
		}
	}
	return nil
}
