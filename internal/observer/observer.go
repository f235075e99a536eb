// Package observer fans accepted state transitions out to order-side
// effects. Observers run synchronously after apply, each independently
// fallible: a failing observer is logged and skipped, never rolled back
// into the state transition itself.
package observer

import (
	"context"
	"time"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/rs/zerolog"
)

// Source identifies which writer observed the transition.
type Source string

const (
	SourceSync Source = "sync"
	SourceIPN  Source = "ipn"
)

// Event describes one accepted state transition.
type Event struct {
	OrderID    string
	Kind       reference.EntityKind
	EntityID   string
	State      reference.State
	ObservedAt time.Time
	Source     Source
}

// Observer reacts to an accepted transition.
type Observer interface {
	Name() string
	OnTransition(ctx context.Context, ev Event) error
}

// Registry invokes every registered observer for each event.
type Registry struct {
	observers []Observer
	log       zerolog.Logger
}

// NewRegistry creates a Registry over the given observers.
func NewRegistry(log zerolog.Logger, observers ...Observer) *Registry {
	return &Registry{observers: observers, log: log}
}

// Register appends an observer.
func (r *Registry) Register(o Observer) {
	r.observers = append(r.observers, o)
}

// Notify runs all observers for the event. Failures are logged and do
// not stop the remaining observers.
func (r *Registry) Notify(ctx context.Context, ev Event) {
	for _, o := range r.observers {
		if err := o.OnTransition(ctx, ev); err != nil {
			r.log.Error().
				Err(err).
				Str("observer", o.Name()).
				Str("order_id", ev.OrderID).
				Str("entity", string(ev.Kind)).
				Str("state", string(ev.State)).
				Msg("observer failed")
		}
	}
}
