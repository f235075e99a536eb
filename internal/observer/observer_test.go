package observer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/observer"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(kind reference.EntityKind, state reference.State) observer.Event {
	return observer.Event{
		OrderID:    "order-1",
		Kind:       kind,
		EntityID:   "ent-1",
		State:      state,
		ObservedAt: time.Now().UTC(),
		Source:     observer.SourceSync,
	}
}

func TestOrderStatus_Transitions(t *testing.T) {
	cases := []struct {
		name       string
		kind       reference.EntityKind
		state      reference.State
		wantStatus string
		wantDetail string
	}{
		{"authorization open marks processing", reference.KindAuthorization, reference.StateOpen, "processing", ""},
		{"capture completed marks completed", reference.KindCapture, reference.StateCompleted, "completed", ""},
		{"refund completed records refund", reference.KindRefund, reference.StateCompleted, "refunded", "ent-1"},
		{"authorization declined marks failed", reference.KindAuthorization, reference.StateDeclined, "failed", "authorization declined"},
		{"capture declined marks failed", reference.KindCapture, reference.StateDeclined, "failed", "capture declined"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			orders := testutil.NewMockOrderUpdater()
			obs := observer.NewOrderStatus(orders)

			err := obs.OnTransition(context.Background(), event(tt.kind, tt.state))

			require.NoError(t, err)
			calls := orders.CallsFor("order-1")
			require.Len(t, calls, 1)
			assert.Equal(t, tt.wantStatus, calls[0].Status)
			assert.Equal(t, tt.wantDetail, calls[0].Detail)
		})
	}
}

func TestOrderStatus_IgnoresNonActionableStates(t *testing.T) {
	cases := []struct {
		name  string
		kind  reference.EntityKind
		state reference.State
	}{
		{"reference open", reference.KindReference, reference.StateOpen},
		{"authorization pending", reference.KindAuthorization, reference.StatePending},
		{"capture pending", reference.KindCapture, reference.StatePending},
		{"authorization closed", reference.KindAuthorization, reference.StateClosed},
		{"refund pending", reference.KindRefund, reference.StatePending},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			orders := testutil.NewMockOrderUpdater()
			obs := observer.NewOrderStatus(orders)

			err := obs.OnTransition(context.Background(), event(tt.kind, tt.state))

			require.NoError(t, err)
			assert.Empty(t, orders.CallsFor("order-1"))
		})
	}
}

func TestEvents_PublishesTransition(t *testing.T) {
	producer := testutil.NewMockEventPublisher()
	obs := observer.NewEvents(producer)

	ev := event(reference.KindCapture, reference.StateCompleted)
	ev.Source = observer.SourceIPN
	require.NoError(t, obs.OnTransition(context.Background(), ev))

	require.Len(t, producer.Events, 1)
	got := producer.Events[0]
	assert.Equal(t, "order-1", got.OrderID)
	assert.Equal(t, reference.KindCapture, got.Kind)
	assert.Equal(t, reference.StateCompleted, got.State)
	assert.Equal(t, observer.SourceIPN, got.Source)
}

type stubObserver struct {
	name   string
	err    error
	called int
}

func (s *stubObserver) Name() string { return s.name }

func (s *stubObserver) OnTransition(ctx context.Context, ev observer.Event) error {
	s.called++
	return s.err
}

func TestRegistry_NotifyContinuesPastFailure(t *testing.T) {
	failing := &stubObserver{name: "failing", err: errors.New("boom")}
	healthy := &stubObserver{name: "healthy"}
	reg := observer.NewRegistry(zerolog.Nop(), failing, healthy)

	reg.Notify(context.Background(), event(reference.KindAuthorization, reference.StateOpen))

	assert.Equal(t, 1, failing.called)
	assert.Equal(t, 1, healthy.called)
}

func TestRegistry_Register(t *testing.T) {
	reg := observer.NewRegistry(zerolog.Nop())
	late := &stubObserver{name: "late"}
	reg.Register(late)

	reg.Notify(context.Background(), event(reference.KindRefund, reference.StateCompleted))

	assert.Equal(t, 1, late.called)
}
