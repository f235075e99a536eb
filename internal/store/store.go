// Package store is the single point of truth for reference,
// authorization, capture and refund state, persisted in the order's
// metadata map. Two independent writers feed it: the synchronous
// reconciler and the IPN handler. ApplyTransition arbitrates between
// them.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domainErrors "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/errors"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/rs/zerolog"
)

// RejectReason classifies why a transition was not applied.
type RejectReason string

const (
	ReasonStale              RejectReason = "stale_update"
	ReasonTerminalRegression RejectReason = "terminal_regression"
	ReasonIDMismatch         RejectReason = "id_mismatch"
	ReasonInvalidState       RejectReason = "invalid_state"
)

// Result is the typed outcome of ApplyTransition. Business-state
// conflicts are reported here, never as errors.
type Result struct {
	Accepted bool
	// Changed is true when the stored state actually differs after the
	// write. Side effects fire on Changed, so re-observing an identical
	// state stays effect-free.
	Changed  bool
	Reason   RejectReason
	Previous reference.State
}

// stateRecord is the persisted form of one entity's state.
type stateRecord struct {
	State      reference.State `json:"state"`
	ObservedAt time.Time       `json:"observed_at"`
}

var idKeys = map[reference.EntityKind]string{
	reference.KindReference:     MetaReferenceID,
	reference.KindAuthorization: MetaAuthorizationID,
	reference.KindCapture:       MetaCaptureID,
}

var stateKeys = map[reference.EntityKind]string{
	reference.KindReference:     MetaReferenceState,
	reference.KindAuthorization: MetaAuthorizationState,
	reference.KindCapture:       MetaCaptureState,
}

func refundStateKey(refundID string) string {
	return "amazon_refund_state_" + refundID
}

// Store arbitrates state transitions over the order metadata map.
type Store struct {
	meta MetadataRepository
	log  zerolog.Logger
}

// New creates a Store over the given metadata repository.
func New(meta MetadataRepository, log zerolog.Logger) *Store {
	return &Store{meta: meta, log: log}
}

// GetState returns the stored state for an entity kind, or an empty
// state when nothing has been recorded yet.
func (s *Store) GetState(ctx context.Context, orderID string, kind reference.EntityKind) (reference.State, error) {
	key, ok := stateKeys[kind]
	if !ok {
		return "", fmt.Errorf("%w: no single state slot for %s", domainErrors.ErrInvalidInput, kind)
	}
	rec, err := s.readRecord(ctx, orderID, key)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	return rec.State, nil
}

// EntityID returns the stored provider-assigned ID for an entity slot,
// or an empty string when none has been persisted yet.
func (s *Store) EntityID(ctx context.Context, orderID string, kind reference.EntityKind) (string, error) {
	key, ok := idKeys[kind]
	if !ok {
		return "", fmt.Errorf("%w: no single id slot for %s", domainErrors.ErrInvalidInput, kind)
	}
	return s.meta.Get(ctx, orderID, key)
}

// ApplyTransition applies the conflict policy to one observed state
// change. Accept and overwrite when no prior state exists, when the new
// state is equal-or-more-terminal and not observed earlier than the
// stored one, or when the new state is strictly more terminal regardless
// of timestamp. Reject stale updates and terminal regressions as no-ops,
// and ID mismatches as protocol errors. Replaying the same transition
// any number of times yields the same stored state.
func (s *Store) ApplyTransition(ctx context.Context, t reference.Transition) (Result, error) {
	if !t.NewState.ValidFor(t.Kind) {
		s.log.Error().
			Str("order_id", t.OrderID).
			Str("entity", string(t.Kind)).
			Str("state", string(t.NewState)).
			Msg("transition reports a state the entity cannot hold")
		return Result{Accepted: false, Reason: ReasonInvalidState}, nil
	}

	if t.Kind == reference.KindRefund {
		return s.applyRefund(ctx, t)
	}

	// Entity IDs are immutable once first persisted.
	storedID, err := s.meta.Get(ctx, t.OrderID, idKeys[t.Kind])
	if err != nil {
		return Result{}, fmt.Errorf("read %s id: %w", t.Kind, err)
	}
	if storedID != "" && storedID != t.EntityID {
		s.log.Error().
			Str("order_id", t.OrderID).
			Str("entity", string(t.Kind)).
			Str("stored_id", storedID).
			Str("reported_id", t.EntityID).
			Msg("rejecting transition with mismatched entity id")
		return Result{Accepted: false, Reason: ReasonIDMismatch}, nil
	}

	res, rec, err := s.arbitrate(ctx, t, stateKeys[t.Kind])
	if err != nil || !res.Accepted {
		return res, err
	}

	if storedID == "" {
		if err := s.meta.Set(ctx, t.OrderID, idKeys[t.Kind], t.EntityID); err != nil {
			return Result{}, fmt.Errorf("persist %s id: %w", t.Kind, err)
		}
	}
	if err := s.writeRecord(ctx, t.OrderID, stateKeys[t.Kind], rec); err != nil {
		return Result{}, err
	}
	return res, nil
}

// applyRefund handles the append-only refund slot. Each refund ID gets
// its own state record; the set of refund IDs only ever grows.
func (s *Store) applyRefund(ctx context.Context, t reference.Transition) (Result, error) {
	res, rec, err := s.arbitrate(ctx, t, refundStateKey(t.EntityID))
	if err != nil || !res.Accepted {
		return res, err
	}
	if err := s.meta.Add(ctx, t.OrderID, MetaRefundID, t.EntityID); err != nil {
		return Result{}, fmt.Errorf("append refund id: %w", err)
	}
	if err := s.writeRecord(ctx, t.OrderID, refundStateKey(t.EntityID), rec); err != nil {
		return Result{}, err
	}
	return res, nil
}

// arbitrate runs the conflict policy against the record stored under
// stateKey and returns the record to persist when accepted.
func (s *Store) arbitrate(ctx context.Context, t reference.Transition, stateKey string) (Result, stateRecord, error) {
	next := stateRecord{State: t.NewState, ObservedAt: t.ObservedAt}

	cur, err := s.readRecord(ctx, t.OrderID, stateKey)
	if err != nil {
		return Result{}, stateRecord{}, err
	}
	if cur == nil {
		return Result{Accepted: true, Changed: true}, next, nil
	}

	res := Result{Previous: cur.State}
	switch {
	case t.NewState.MoreTerminalThan(cur.State):
		// Terminal notifications win over stale non-terminal ones even
		// when timestamped earlier.
		res.Accepted = true
	case t.NewState.AtLeastAsTerminalAs(cur.State) && !t.ObservedAt.Before(cur.ObservedAt):
		res.Accepted = true
	case cur.State.Terminal() && !t.NewState.Terminal():
		res.Reason = ReasonTerminalRegression
	default:
		res.Reason = ReasonStale
	}

	if !res.Accepted {
		s.log.Info().
			Str("order_id", t.OrderID).
			Str("entity", string(t.Kind)).
			Str("stored", string(cur.State)).
			Str("reported", string(t.NewState)).
			Str("reason", string(res.Reason)).
			Msg("transition not applied")
		return res, stateRecord{}, nil
	}

	res.Changed = cur.State != t.NewState
	return res, next, nil
}

// Snapshot returns the read-side view of the order's payment lifecycle.
func (s *Store) Snapshot(ctx context.Context, orderID string) (*reference.Snapshot, error) {
	snap := &reference.Snapshot{OrderID: orderID}

	var err error
	if snap.ReferenceID, err = s.meta.Get(ctx, orderID, MetaReferenceID); err != nil {
		return nil, err
	}
	if snap.ReferenceID == "" {
		return nil, domainErrors.ErrReferenceNotFound
	}
	if snap.AuthorizationID, err = s.meta.Get(ctx, orderID, MetaAuthorizationID); err != nil {
		return nil, err
	}
	if snap.CaptureID, err = s.meta.Get(ctx, orderID, MetaCaptureID); err != nil {
		return nil, err
	}
	if snap.APIVersion, err = s.meta.Get(ctx, orderID, MetaAPIVersion); err != nil {
		return nil, err
	}
	if snap.RefundIDs, err = s.meta.GetAll(ctx, orderID, MetaRefundID); err != nil {
		return nil, err
	}

	var latest time.Time
	for kind, key := range stateKeys {
		rec, err := s.readRecord(ctx, orderID, key)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		switch kind {
		case reference.KindReference:
			snap.ReferenceState = rec.State
		case reference.KindAuthorization:
			snap.AuthorizationState = rec.State
		case reference.KindCapture:
			snap.CaptureState = rec.State
		}
		if rec.ObservedAt.After(latest) {
			latest = rec.ObservedAt
		}
	}
	if !latest.IsZero() {
		snap.UpdatedAt = &latest
	}
	return snap, nil
}

func (s *Store) readRecord(ctx context.Context, orderID, key string) (*stateRecord, error) {
	raw, err := s.meta.Get(ctx, orderID, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if raw == "" {
		return nil, nil
	}
	var rec stateRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &rec, nil
}

func (s *Store) writeRecord(ctx context.Context, orderID, key string, rec stateRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.meta.Set(ctx, orderID, key, string(raw)); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}
