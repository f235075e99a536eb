package reconcile

import (
	"context"
	"fmt"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/infrastructure/observability"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/observer"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/store"
)

// OrderLocker serializes reference-state mutation per order.
type OrderLocker interface {
	Acquire(ctx context.Context, orderID string) (func(), error)
}

// Applier is the write discipline shared by the synchronous reconciler
// and the IPN handler: apply one transition, fire observers on change,
// then apply any lifecycle follow-up. The caller must hold the order
// lock.
type Applier struct {
	Store     *store.Store
	Observers *observer.Registry

	// Metrics is optional; when nil, transitions are not counted.
	Metrics *observability.Metrics
}

func (a *Applier) count(t reference.Transition, src observer.Source, res store.Result) {
	if a.Metrics == nil {
		return
	}
	if !res.Accepted {
		a.Metrics.RejectionsTotal.WithLabelValues(string(t.Kind), string(res.Reason)).Inc()
		return
	}
	outcome := "noop"
	if res.Changed {
		outcome = "applied"
	}
	a.Metrics.TransitionsTotal.WithLabelValues(string(t.Kind), string(src), outcome).Inc()
}

// Apply records one transition and its follow-ups under the caller's
// lock. The returned result describes the primary transition only.
func (a *Applier) Apply(ctx context.Context, t reference.Transition, src observer.Source) (store.Result, error) {
	res, err := a.Store.ApplyTransition(ctx, t)
	if err != nil {
		return res, err
	}
	a.count(t, src, res)
	if !res.Accepted {
		return res, nil
	}
	if res.Changed {
		a.Observers.Notify(ctx, observer.Event{
			OrderID:    t.OrderID,
			Kind:       t.Kind,
			EntityID:   t.EntityID,
			State:      t.NewState,
			ObservedAt: t.ObservedAt,
			Source:     src,
		})
	}

	// A completed capture closes the authorization that funded it, even
	// when the authorization update itself never arrived (lifecycle
	// skip-ahead).
	if t.Kind == reference.KindCapture && t.NewState == reference.StateCompleted {
		authID, err := a.Store.EntityID(ctx, t.OrderID, reference.KindAuthorization)
		if err != nil {
			return res, fmt.Errorf("read authorization id: %w", err)
		}
		if authID != "" {
			follow := reference.Transition{
				OrderID:    t.OrderID,
				Kind:       reference.KindAuthorization,
				EntityID:   authID,
				NewState:   reference.StateClosed,
				ObservedAt: t.ObservedAt,
			}
			fres, err := a.Store.ApplyTransition(ctx, follow)
			if err != nil {
				return res, err
			}
			a.count(follow, src, fres)
			if fres.Accepted && fres.Changed {
				a.Observers.Notify(ctx, observer.Event{
					OrderID:    follow.OrderID,
					Kind:       follow.Kind,
					EntityID:   follow.EntityID,
					State:      follow.NewState,
					ObservedAt: follow.ObservedAt,
					Source:     src,
				})
			}
		}
	}

	return res, nil
}
