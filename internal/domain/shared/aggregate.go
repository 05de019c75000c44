package shared

import (
	"fmt"
	"sort"
)

// AggregateRoot is the consistency boundary of a bounded context. An
// aggregate owns its event stream exclusively; other contexts observe it
// only through published events.
type AggregateRoot interface {
	// GetID returns the unique identifier of the aggregate.
	GetID() string

	// GetVersion returns the version of the last applied or committed
	// event, used as the expected version for optimistic concurrency.
	GetVersion() int

	// Apply routes an event to the aggregate's state mutation. It must be
	// pure state transition: no I/O, no validation of business rules.
	Apply(event Event) error

	// PendingEvents returns events raised but not yet persisted.
	PendingEvents() []Event

	// ClearDomainEvents drains the pending buffer after persistence.
	ClearDomainEvents()
}

// BaseAggregateRoot provides the id/version/pending-events bookkeeping all
// aggregates share. Embed it by value and route Apply through Advance.
type BaseAggregateRoot struct {
	id      string
	version int
	pending []Event
}

// NewBaseAggregateRoot creates the bookkeeping for a new or rehydrating
// aggregate. Version starts at zero; the first event carries version 1.
func NewBaseAggregateRoot(id string) BaseAggregateRoot {
	return BaseAggregateRoot{id: id}
}

// GetID returns the aggregate id.
func (a *BaseAggregateRoot) GetID() string {
	return a.id
}

// GetVersion returns the version of the last applied event.
func (a *BaseAggregateRoot) GetVersion() int {
	return a.version
}

// NextVersion returns the version the next raised event must carry.
// Raised events are applied immediately, so version already counts the
// pending buffer.
func (a *BaseAggregateRoot) NextVersion() int {
	return a.version + 1
}

// AddDomainEvent buffers a raised event until the command handler persists
// and publishes it.
func (a *BaseAggregateRoot) AddDomainEvent(event Event) {
	a.pending = append(a.pending, event)
}

// PendingEvents returns the buffered events in raise order.
func (a *BaseAggregateRoot) PendingEvents() []Event {
	return a.pending
}

// ClearDomainEvents drains the buffer. The aggregate is discarded after a
// command completes, so version is not advanced here.
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.pending = nil
}

// Advance records that event has been applied, moving the version forward.
// Concrete aggregates call it at the end of their Apply.
func (a *BaseAggregateRoot) Advance(event Event) {
	a.version = event.Version
}

// Rehydrate rebuilds an aggregate by replaying its event stream in version
// order. Any Apply failure aborts with the cause preserved.
func Rehydrate(aggregate AggregateRoot, events []Event) error {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, event := range sorted {
		if err := aggregate.Apply(event); err != nil {
			return fmt.Errorf("apply %s v%d to %s: %w",
				event.EventType, event.Version, aggregate.GetID(), err)
		}
	}
	return nil
}
