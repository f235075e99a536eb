package observer

import (
	"context"
	"time"
)

// EventPublisher is the port to the reference-event stream.
type EventPublisher interface {
	PublishReferenceEvent(ctx context.Context, orderID, entity, entityID, state, source string, observedAt time.Time) error
}

// events publishes every accepted transition to the event stream, which
// feeds the journal worker and any subscription consumers.
type events struct {
	producer EventPublisher
}

// NewEvents creates the event-stream observer.
func NewEvents(producer EventPublisher) Observer {
	return &events{producer: producer}
}

func (e *events) Name() string { return "events" }

func (e *events) OnTransition(ctx context.Context, ev Event) error {
	return e.producer.PublishReferenceEvent(ctx, ev.OrderID, string(ev.Kind), ev.EntityID, string(ev.State), string(ev.Source), ev.ObservedAt)
}
