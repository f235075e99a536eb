// Package ipn receives the provider's asynchronous push notifications
// and applies them to the reference store, resolving races with the
// synchronous reconciler through the shared conflict policy.
package ipn

import (
	"context"
	"strings"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/observer"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/reconcile"
	"github.com/rs/zerolog"
)

// Outcome classifies how a notification was handled. Everything except
// verification failures, malformed payloads and internal faults is
// acknowledged to the provider: retrying an out-of-order or duplicate
// message will not make it smarter.
type Outcome string

const (
	OutcomeProcessed          Outcome = "processed"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeStale              Outcome = "stale"
	OutcomeVerificationFailed Outcome = "verification_failed"
	OutcomeMalformed          Outcome = "malformed"
	OutcomeInternalError      Outcome = "internal_error"
)

// Acknowledged reports whether the provider should treat the delivery
// as received and stop retrying it.
func (o Outcome) Acknowledged() bool {
	switch o {
	case OutcomeProcessed, OutcomeDuplicate, OutcomeStale:
		return true
	}
	return false
}

// Dedup is the short-lived seen-set for message uniqueness tokens.
type Dedup interface {
	Seen(ctx context.Context, token string) (bool, error)
	Forget(ctx context.Context, token string) error
}

// Request is one raw inbound delivery.
type Request struct {
	Body        []byte
	Signature   string
	ContentType string
}

// Handler processes inbound push notifications.
type Handler struct {
	verifier *Verifier
	dedup    Dedup
	applier  *reconcile.Applier
	locks    reconcile.OrderLocker
	log      zerolog.Logger
}

// NewHandler creates a notification handler sharing the reconciler's
// applier and per-order locks.
func NewHandler(verifier *Verifier, dedup Dedup, applier *reconcile.Applier, locks reconcile.OrderLocker, log zerolog.Logger) *Handler {
	return &Handler{
		verifier: verifier,
		dedup:    dedup,
		applier:  applier,
		locks:    locks,
		log:      log,
	}
}

// Handle runs the full notification pipeline: verify, deduplicate, map
// to the canonical vocabulary, then apply under the per-order lock.
// Notifications always run to completion once deduplicated; the effect
// is at most once per unique token.
func (h *Handler) Handle(ctx context.Context, req Request) Outcome {
	if !h.verifier.Verify(req.Body, req.Signature) {
		h.log.Warn().Msg("rejecting unverifiable notification")
		return OutcomeVerificationFailed
	}

	n, err := h.parse(req)
	if err != nil {
		h.log.Warn().Err(err).Msg("rejecting malformed notification")
		return OutcomeMalformed
	}

	log := h.log.With().
		Str("message_id", n.MessageID).
		Str("order_id", n.OrderID).
		Str("entity", string(n.Kind)).
		Str("entity_id", n.EntityID).
		Str("state", string(n.State)).
		Logger()

	seen, err := h.dedup.Seen(ctx, n.MessageID)
	if err != nil {
		log.Error().Err(err).Msg("dedup check failed")
		return OutcomeInternalError
	}
	if seen {
		// Duplicate delivery is expected; a silent no-op, not an error.
		log.Debug().Msg("duplicate notification ignored")
		return OutcomeDuplicate
	}

	outcome := h.apply(ctx, n, log)
	if outcome == OutcomeInternalError {
		// The message was marked seen but had no effect. Forget it so
		// the provider's retry is not swallowed as a duplicate.
		if err := h.dedup.Forget(ctx, n.MessageID); err != nil {
			log.Error().Err(err).Msg("failed to unmark notification after internal fault")
		}
	}
	return outcome
}

func (h *Handler) apply(ctx context.Context, n *Notification, log zerolog.Logger) Outcome {
	release, err := h.locks.Acquire(ctx, n.OrderID)
	if err != nil {
		log.Error().Err(err).Msg("could not acquire order lock")
		return OutcomeInternalError
	}
	defer release()

	res, err := h.applier.Apply(ctx, reference.Transition{
		OrderID:    n.OrderID,
		Kind:       n.Kind,
		EntityID:   n.EntityID,
		NewState:   n.State,
		ObservedAt: n.Timestamp,
	}, observer.SourceIPN)
	if err != nil {
		log.Error().Err(err).Msg("failed to apply notification")
		return OutcomeInternalError
	}

	if !res.Accepted {
		// Semantically stale, duplicate or mismatched content. Log and
		// acknowledge: surfacing an error would only make the provider
		// retry a message that can never apply.
		log.Info().Str("reason", string(res.Reason)).Msg("notification superseded by stored state")
		return OutcomeStale
	}

	log.Info().Msg("notification applied")
	return OutcomeProcessed
}

func (h *Handler) parse(req Request) (*Notification, error) {
	if strings.HasPrefix(req.ContentType, "application/json") {
		return parseCurrent(req.Body)
	}
	return parseLegacy(req.Body)
}
