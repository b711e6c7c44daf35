package ledger

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a domain event emitted by the ledger.
type EventKind string

const (
	EventCreditMinted      EventKind = "credit.minted"
	EventCreditVerified    EventKind = "credit.verified"
	EventCreditTransferred EventKind = "credit.transferred"
	EventCreditListed      EventKind = "credit.listed"
	EventCreditSold        EventKind = "credit.sold"
	EventCreditRetired     EventKind = "credit.retired"
	EventListingCancelled  EventKind = "listing.cancelled"
	EventProceedsWithdrawn EventKind = "proceeds.withdrawn"
	EventRoleGranted       EventKind = "role.granted"
	EventRoleRevoked       EventKind = "role.revoked"
	EventSystemPaused      EventKind = "system.paused"
	EventSystemUnpaused    EventKind = "system.unpaused"
)

// Event is the record published to sinks after each committed operation.
// Exactly one event is emitted per logical action.
type Event struct {
	ID           uuid.UUID `json:"id"`
	Kind         EventKind `json:"kind"`
	CreditID     *CreditID `json:"credit_id,omitempty"`
	Actor        Principal `json:"actor"`
	Counterparty Principal `json:"counterparty,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	CarbonAmount int64     `json:"carbon_amount,omitempty"`
	VintageYear  int       `json:"vintage_year,omitempty"`
	Price        int64     `json:"price,omitempty"`
	Standard     string    `json:"standard,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Role         Role      `json:"role,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Sink receives committed domain events. Publish is called after the ledger
// lock is released; implementations must not call back into the ledger's
// mutating operations from Publish.
type Sink interface {
	Publish(ev Event)
}

// FanoutSink dispatches each event to every registered sink in order.
type FanoutSink []Sink

func (f FanoutSink) Publish(ev Event) {
	for _, s := range f {
		s.Publish(ev)
	}
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (fn SinkFunc) Publish(ev Event) { fn(ev) }

func newEvent(kind EventKind, actor Principal, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		Actor:      actor,
		OccurredAt: at,
	}
}
