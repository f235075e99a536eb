package store_test

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/errors"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/store"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() (*store.Store, *testutil.MockMetadataRepository) {
	meta := testutil.NewMockMetadataRepository()
	return store.New(meta, zerolog.Nop()), meta
}

func apply(t *testing.T, s *store.Store, orderID string, kind reference.EntityKind, entityID string, state reference.State, at time.Time) store.Result {
	t.Helper()
	res, err := s.ApplyTransition(context.Background(), testutil.NewTransition(orderID, kind, entityID, state, at))
	require.NoError(t, err)
	return res
}

func TestApplyTransition_FirstObservation(t *testing.T) {
	s, _ := newStore()

	res := apply(t, s, "order-1", reference.KindAuthorization, "A1", reference.StateOpen, testutil.BaseTime)
	assert.True(t, res.Accepted)
	assert.True(t, res.Changed)

	state, err := s.GetState(context.Background(), "order-1", reference.KindAuthorization)
	require.NoError(t, err)
	assert.Equal(t, reference.StateOpen, state)

	id, err := s.EntityID(context.Background(), "order-1", reference.KindAuthorization)
	require.NoError(t, err)
	assert.Equal(t, "A1", id)
}

func TestApplyTransition_ReplayIsIdempotent(t *testing.T) {
	s, _ := newStore()

	first := apply(t, s, "order-1", reference.KindCapture, "C1", reference.StateCompleted, testutil.BaseTime)
	assert.True(t, first.Accepted)
	assert.True(t, first.Changed)

	replay := apply(t, s, "order-1", reference.KindCapture, "C1", reference.StateCompleted, testutil.BaseTime)
	assert.True(t, replay.Accepted)
	assert.False(t, replay.Changed, "replaying the same observation must not fire side effects")

	state, err := s.GetState(context.Background(), "order-1", reference.KindCapture)
	require.NoError(t, err)
	assert.Equal(t, reference.StateCompleted, state)
}

func TestApplyTransition_StaleUpdateRejected(t *testing.T) {
	s, _ := newStore()

	apply(t, s, "order-1", reference.KindAuthorization, "A1", reference.StateOpen, testutil.BaseTime.Add(2*time.Minute))

	// Same rank, earlier observation.
	res := apply(t, s, "order-1", reference.KindAuthorization, "A1", reference.StateOpen, testutil.BaseTime)
	assert.True(t, res.Accepted, "identical state is a no-op accept")
	assert.False(t, res.Changed)

	res = apply(t, s, "order-1", reference.KindAuthorization, "A1", reference.StatePending, testutil.BaseTime)
	assert.False(t, res.Accepted)
	assert.Equal(t, store.ReasonStale, res.Reason)
	assert.Equal(t, reference.StateOpen, res.Previous)
}

func TestApplyTransition_TerminalRegressionRejected(t *testing.T) {
	s, _ := newStore()

	apply(t, s, "order-1", reference.KindAuthorization, "A1", reference.StateClosed, testutil.BaseTime)

	res := apply(t, s, "order-1", reference.KindAuthorization, "A1", reference.StateOpen, testutil.BaseTime.Add(time.Hour))
	assert.False(t, res.Accepted)
	assert.Equal(t, store.ReasonTerminalRegression, res.Reason)

	state, err := s.GetState(context.Background(), "order-1", reference.KindAuthorization)
	require.NoError(t, err)
	assert.Equal(t, reference.StateClosed, state)
}

func TestApplyTransition_TerminalWinsOverEarlierTimestamp(t *testing.T) {
	s, _ := newStore()

	// The open observation arrives first but is timestamped later than
	// the completed one that raced past it.
	apply(t, s, "order-1", reference.KindCapture, "C1", reference.StatePending, testutil.BaseTime.Add(time.Minute))

	res := apply(t, s, "order-1", reference.KindCapture, "C1", reference.StateCompleted, testutil.BaseTime)
	assert.True(t, res.Accepted, "a strictly more terminal state applies regardless of timestamp")
	assert.True(t, res.Changed)
}

func TestApplyTransition_IDMismatchRejected(t *testing.T) {
	s, _ := newStore()

	apply(t, s, "order-1", reference.KindReference, "S01-REF-1", reference.StateOpen, testutil.BaseTime)

	res := apply(t, s, "order-1", reference.KindReference, "S01-REF-2", reference.StateOpen, testutil.BaseTime.Add(time.Minute))
	assert.False(t, res.Accepted)
	assert.Equal(t, store.ReasonIDMismatch, res.Reason)

	id, err := s.EntityID(context.Background(), "order-1", reference.KindReference)
	require.NoError(t, err)
	assert.Equal(t, "S01-REF-1", id)
}

func TestApplyTransition_InvalidStateRejected(t *testing.T) {
	s, _ := newStore()

	res, err := s.ApplyTransition(context.Background(),
		testutil.NewTransition("order-1", reference.KindAuthorization, "A1", reference.State("Weird"), testutil.BaseTime))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, store.ReasonInvalidState, res.Reason)
}

func TestApplyTransition_RefundsAccumulate(t *testing.T) {
	s, meta := newStore()
	ctx := context.Background()

	apply(t, s, "order-1", reference.KindRefund, "R1", reference.StateCompleted, testutil.BaseTime)
	apply(t, s, "order-1", reference.KindRefund, "R2", reference.StateCompleted, testutil.BaseTime.Add(time.Minute))
	// Duplicate delivery of the first refund.
	apply(t, s, "order-1", reference.KindRefund, "R1", reference.StateCompleted, testutil.BaseTime)

	ids, err := meta.GetAll(ctx, "order-1", store.MetaRefundID)
	require.NoError(t, err)
	assert.Equal(t, []string{"R1", "R2"}, ids)
}

func TestApplyTransition_RefundStatesIndependent(t *testing.T) {
	s, _ := newStore()

	apply(t, s, "order-1", reference.KindRefund, "R1", reference.StateCompleted, testutil.BaseTime)

	// A second refund still pending does not regress the first.
	res := apply(t, s, "order-1", reference.KindRefund, "R2", reference.StatePending, testutil.BaseTime.Add(time.Minute))
	assert.True(t, res.Accepted)
}

func TestSnapshot(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	apply(t, s, "order-1", reference.KindReference, "S01-REF-1", reference.StateOpen, testutil.BaseTime)
	apply(t, s, "order-1", reference.KindAuthorization, "A1", reference.StateOpen, testutil.BaseTime.Add(time.Minute))
	apply(t, s, "order-1", reference.KindCapture, "C1", reference.StateCompleted, testutil.BaseTime.Add(2*time.Minute))
	apply(t, s, "order-1", reference.KindRefund, "R1", reference.StateCompleted, testutil.BaseTime.Add(3*time.Minute))

	snap, err := s.Snapshot(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "S01-REF-1", snap.ReferenceID)
	assert.Equal(t, reference.StateOpen, snap.ReferenceState)
	assert.Equal(t, "A1", snap.AuthorizationID)
	assert.Equal(t, "C1", snap.CaptureID)
	assert.Equal(t, reference.StateCompleted, snap.CaptureState)
	assert.Equal(t, []string{"R1"}, snap.RefundIDs)
	require.NotNil(t, snap.UpdatedAt)
	assert.Equal(t, testutil.BaseTime.Add(2*time.Minute), *snap.UpdatedAt)
}

func TestSnapshot_NoReference(t *testing.T) {
	s, _ := newStore()

	_, err := s.Snapshot(context.Background(), "order-1")
	assert.ErrorIs(t, err, domainErrors.ErrReferenceNotFound)
}

func TestApplyTransition_DeliveryOrderIrrelevant(t *testing.T) {
	// The same three observations, delivered in any order, must leave
	// the store in the same final state.
	type obs struct {
		state reference.State
		at    time.Time
	}
	observations := []obs{
		{reference.StatePending, testutil.BaseTime},
		{reference.StateOpen, testutil.BaseTime.Add(time.Minute)},
		{reference.StateCompleted, testutil.BaseTime.Add(2 * time.Minute)},
	}
	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	for _, perm := range permutations {
		s, _ := newStore()
		for _, i := range perm {
			apply(t, s, "order-1", reference.KindCapture, "C1", observations[i].state, observations[i].at)
		}

		state, err := s.GetState(context.Background(), "order-1", reference.KindCapture)
		require.NoError(t, err)
		assert.Equal(t, reference.StateCompleted, state, "permutation %v must converge", perm)
	}
}
