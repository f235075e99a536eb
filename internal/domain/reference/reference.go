package reference

import (
	"time"
)

// EntityKind identifies which slot of the payment lifecycle an update targets.
type EntityKind string

const (
	KindReference     EntityKind = "reference"
	KindAuthorization EntityKind = "authorization"
	KindCapture       EntityKind = "capture"
	KindRefund        EntityKind = "refund"
)

// State represents an entity state in the provider's vocabulary.
type State string

const (
	StatePending   State = "Pending"
	StateOpen      State = "Open"
	StateSuspended State = "Suspended"
	StateDeclined  State = "Declined"
	StateClosed    State = "Closed"
	StateCompleted State = "Completed"
)

// stateRank orders states by terminality. A higher rank never regresses
// to a lower one once stored.
var stateRank = map[State]int{
	StatePending:   0,
	StateOpen:      1,
	StateSuspended: 1,
	StateDeclined:  2,
	StateClosed:    2,
	StateCompleted: 2,
}

// Valid reports whether s is a known provider state.
func (s State) Valid() bool {
	_, ok := stateRank[s]
	return ok
}

// Terminal reports whether s is an absorbing state.
func (s State) Terminal() bool {
	return stateRank[s] == 2
}

// AtLeastAsTerminalAs reports whether s is equal-or-more-terminal than o.
func (s State) AtLeastAsTerminalAs(o State) bool {
	return stateRank[s] >= stateRank[o]
}

// MoreTerminalThan reports whether s is strictly more terminal than o.
func (s State) MoreTerminalThan(o State) bool {
	return stateRank[s] > stateRank[o]
}

// validStates lists the states each entity kind can report, per the
// provider's lifecycle documentation.
var validStates = map[EntityKind][]State{
	KindReference:     {StatePending, StateOpen, StateSuspended, StateDeclined, StateClosed},
	KindAuthorization: {StatePending, StateOpen, StateDeclined, StateClosed},
	KindCapture:       {StatePending, StateDeclined, StateCompleted, StateClosed},
	KindRefund:        {StatePending, StateDeclined, StateCompleted},
}

// ValidFor reports whether s is a legal state for the given entity kind.
func (s State) ValidFor(kind EntityKind) bool {
	for _, v := range validStates[kind] {
		if v == s {
			return true
		}
	}
	return false
}

// Transition is one observed state change for an order's payment entity,
// reported by either the synchronous reconciler or the IPN handler.
type Transition struct {
	OrderID    string
	Kind       EntityKind
	EntityID   string
	NewState   State
	ObservedAt time.Time
}

// Amount is a monetary amount in the smallest currency unit.
type Amount struct {
	ValueCents int64
	Currency   string
}

// Snapshot is the read-side view of an order's payment lifecycle,
// exposed to the external REST layer.
type Snapshot struct {
	OrderID            string     `json:"order_id"`
	ReferenceID        string     `json:"amazon_reference_id"`
	ReferenceState     State      `json:"amazon_reference_state"`
	AuthorizationID    string     `json:"amazon_authorization_id"`
	AuthorizationState State      `json:"amazon_authorization_state"`
	CaptureID          string     `json:"amazon_capture_id"`
	CaptureState       State      `json:"amazon_capture_state"`
	RefundIDs          []string   `json:"amazon_refund_ids"`
	APIVersion         string     `json:"amazon_api_version,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}
