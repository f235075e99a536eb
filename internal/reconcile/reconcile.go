// Package reconcile applies provider state to the reference store from
// both update paths. Reconciler is the synchronous path, invoked inline
// with checkout and admin actions; the IPN handler drives the same
// Applier from the asynchronous path.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/client"
	domainErrors "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/errors"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/gate"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/observer"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/store"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result is the outcome of one synchronous operation.
type Result struct {
	EntityID string
	State    reference.State
	// Settled is true when the store already held a provider-confirmed
	// state at least as terminal as this call's outcome. The calling
	// flow reports success to the buyer: the provider got there first.
	Settled bool
}

// Reconciler is the synchronous update path. The provider call runs
// before the order lock is acquired, so a slow provider response never
// blocks notification handling for the same order; idempotency tokens
// make retries safe without holding the lock across the network call.
type Reconciler struct {
	clients   *client.Factory
	gate      *gate.Gate
	applier   *Applier
	locks     OrderLocker
	log       zerolog.Logger
	retryConf retry.Config
}

// New creates a Reconciler.
func New(clients *client.Factory, g *gate.Gate, applier *Applier, locks OrderLocker, log zerolog.Logger) *Reconciler {
	cfg := retry.DefaultConfig()
	cfg.RetryIf = domainErrors.IsRetryable
	return &Reconciler{
		clients:   clients,
		gate:      g,
		applier:   applier,
		locks:     locks,
		log:       log,
		retryConf: cfg,
	}
}

// retryFor copies the retry policy with a per-operation retry counter
// attached.
func (r *Reconciler) retryFor(c client.Client, operation string) retry.Config {
	cfg := r.retryConf
	if m := r.applier.Metrics; m != nil {
		variant := string(c.Variant())
		cfg.OnRetry = func(attempt uint, err error) {
			m.ProviderRetries.WithLabelValues(variant, operation).Inc()
		}
	}
	return cfg
}

// CreateReference establishes the provider session for a checkout
// attempt and records the reference and the protocol variant on the
// order. The variant recorded here is immutable for the order's
// remaining lifecycle.
func (r *Reconciler) CreateReference(ctx context.Context, req client.CreateReferenceRequest) (*Result, error) {
	variant := r.gate.ForNewReference()
	c, err := r.clients.For(variant)
	if err != nil {
		return nil, err
	}

	res, err := retry.DoWithResult(ctx, r.retryFor(c, "create_reference"), func() (*client.ReferenceResult, error) {
		return c.CreateReference(ctx, req)
	})
	if err != nil {
		return nil, r.surface(req.OrderID, "create_reference", err)
	}

	release, err := r.locks.Acquire(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, recorded, err := r.gate.Recorded(ctx, req.OrderID); err != nil {
		return nil, err
	} else if !recorded {
		if err := r.gate.Record(ctx, req.OrderID, variant); err != nil {
			return nil, fmt.Errorf("record api variant: %w", err)
		}
	}

	return r.apply(ctx, reference.Transition{
		OrderID:    req.OrderID,
		Kind:       reference.KindReference,
		EntityID:   res.ReferenceID,
		NewState:   res.State,
		ObservedAt: res.ObservedAt,
	})
}

// Authorize places a hold against the order's reference.
func (r *Reconciler) Authorize(ctx context.Context, orderID string, amount reference.Amount) (*Result, error) {
	c, referenceID, err := r.orderClientAndID(ctx, orderID, reference.KindReference)
	if err != nil {
		return nil, err
	}

	token := client.Token(orderID, "authorize", uuid.NewString())
	res, err := retry.DoWithResult(ctx, r.retryFor(c, "authorize"), func() (*client.AuthorizationResult, error) {
		return c.Authorize(ctx, referenceID, amount, token)
	})
	if err != nil {
		return nil, r.surface(orderID, "authorize", err)
	}

	release, err := r.locks.Acquire(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	return r.apply(ctx, reference.Transition{
		OrderID:    orderID,
		Kind:       reference.KindAuthorization,
		EntityID:   res.AuthorizationID,
		NewState:   res.State,
		ObservedAt: res.ObservedAt,
	})
}

// Capture transfers previously authorized funds.
func (r *Reconciler) Capture(ctx context.Context, orderID string, amount reference.Amount) (*Result, error) {
	c, authorizationID, err := r.orderClientAndID(ctx, orderID, reference.KindAuthorization)
	if err != nil {
		return nil, err
	}

	token := client.Token(orderID, "capture", uuid.NewString())
	res, err := retry.DoWithResult(ctx, r.retryFor(c, "capture"), func() (*client.CaptureResult, error) {
		return c.Capture(ctx, authorizationID, amount, token)
	})
	if err != nil {
		return nil, r.surface(orderID, "capture", err)
	}

	release, err := r.locks.Acquire(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	return r.apply(ctx, reference.Transition{
		OrderID:    orderID,
		Kind:       reference.KindCapture,
		EntityID:   res.CaptureID,
		NewState:   res.State,
		ObservedAt: res.ObservedAt,
	})
}

// Refund reverses part or all of the order's captured amount. Refund
// IDs accumulate; each call adds to the set.
func (r *Reconciler) Refund(ctx context.Context, orderID string, amount reference.Amount) (*Result, error) {
	c, captureID, err := r.orderClientAndID(ctx, orderID, reference.KindCapture)
	if err != nil {
		return nil, err
	}

	token := client.Token(orderID, "refund", uuid.NewString())
	res, err := retry.DoWithResult(ctx, r.retryFor(c, "refund"), func() (*client.RefundResult, error) {
		return c.Refund(ctx, captureID, amount, token)
	})
	if err != nil {
		return nil, r.surface(orderID, "refund", err)
	}

	release, err := r.locks.Acquire(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	return r.apply(ctx, reference.Transition{
		OrderID:    orderID,
		Kind:       reference.KindRefund,
		EntityID:   res.RefundID,
		NewState:   res.State,
		ObservedAt: res.ObservedAt,
	})
}

// Refresh pulls the provider's current view of the reference and
// reconciles every entity it reports. Used by admin actions when the
// merchant suspects a missed notification.
func (r *Reconciler) Refresh(ctx context.Context, orderID string) (*reference.Snapshot, error) {
	c, referenceID, err := r.orderClientAndID(ctx, orderID, reference.KindReference)
	if err != nil {
		return nil, err
	}

	snap, err := retry.DoWithResult(ctx, r.retryFor(c, "get_reference_details"), func() (*client.ReferenceSnapshot, error) {
		return c.GetReferenceDetails(ctx, referenceID)
	})
	if err != nil {
		return nil, r.surface(orderID, "get_reference_details", err)
	}

	release, err := r.locks.Acquire(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	transitions := []reference.Transition{
		{OrderID: orderID, Kind: reference.KindReference, EntityID: snap.ReferenceID, NewState: snap.ReferenceState, ObservedAt: snap.ObservedAt},
	}
	if snap.AuthorizationID != "" {
		transitions = append(transitions, reference.Transition{OrderID: orderID, Kind: reference.KindAuthorization, EntityID: snap.AuthorizationID, NewState: snap.AuthorizationState, ObservedAt: snap.ObservedAt})
	}
	if snap.CaptureID != "" {
		transitions = append(transitions, reference.Transition{OrderID: orderID, Kind: reference.KindCapture, EntityID: snap.CaptureID, NewState: snap.CaptureState, ObservedAt: snap.ObservedAt})
	}
	for _, t := range transitions {
		if t.NewState == "" {
			continue
		}
		if _, err := r.applier.Apply(ctx, t, observer.SourceSync); err != nil {
			return nil, err
		}
	}

	return r.applier.Store.Snapshot(ctx, orderID)
}

// apply runs the shared write discipline and translates a rejection into
// the caller-facing result. A stale rejection after a successful
// provider call means a more authoritative update (usually an IPN) beat
// us to the store; the caller still reports success.
func (r *Reconciler) apply(ctx context.Context, t reference.Transition) (*Result, error) {
	res, err := r.applier.Apply(ctx, t, observer.SourceSync)
	if err != nil {
		return nil, err
	}

	if res.Accepted {
		return &Result{EntityID: t.EntityID, State: t.NewState}, nil
	}

	switch res.Reason {
	case store.ReasonIDMismatch:
		return nil, domainErrors.NewDomainError(
			"id_mismatch",
			fmt.Sprintf("%s id %q conflicts with the id already stored for order %s", t.Kind, t.EntityID, t.OrderID),
			domainErrors.ErrEntityIDMismatch,
		)
	case store.ReasonInvalidState:
		return nil, domainErrors.NewDomainError(
			"invalid_state",
			fmt.Sprintf("provider reported state %q for %s", t.NewState, t.Kind),
			domainErrors.ErrUnknownState,
		)
	default:
		// Stale or terminal regression: the stored state is already at
		// least as settled as what this call observed.
		r.log.Info().
			Str("order_id", t.OrderID).
			Str("entity", string(t.Kind)).
			Str("reported", string(t.NewState)).
			Str("stored", string(res.Previous)).
			Msg("synchronous result superseded by stored state")
		return &Result{EntityID: t.EntityID, State: res.Previous, Settled: true}, nil
	}
}

// orderClientAndID resolves the order's protocol variant and the stored
// provider ID the next operation needs.
func (r *Reconciler) orderClientAndID(ctx context.Context, orderID string, kind reference.EntityKind) (client.Client, string, error) {
	variant, err := r.gate.ForOrder(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	c, err := r.clients.For(variant)
	if err != nil {
		return nil, "", err
	}
	id, err := r.applier.Store.EntityID(ctx, orderID, kind)
	if err != nil {
		return nil, "", err
	}
	if id == "" {
		return nil, "", fmt.Errorf("%w: no %s on order %s", domainErrors.ErrReferenceNotFound, kind, orderID)
	}
	return c, id, nil
}

// surface logs a failed mutating call and hands the typed failure to
// the caller untouched. Nothing is swallowed here: the surrounding flow
// owns the user-facing translation and any retry queueing.
func (r *Reconciler) surface(orderID, operation string, err error) error {
	ev := r.log.Warn()
	if errors.Is(err, domainErrors.ErrInvalidRequest) {
		ev = r.log.Error()
	}
	ev.Err(err).
		Str("order_id", orderID).
		Str("operation", operation).
		Msg("provider call failed")
	return err
}
