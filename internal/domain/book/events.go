package book

import (
	"time"

	"libris-backend/internal/domain/shared"
)

// Event types owned by the Books context.
const (
	EventTypeBookCreated          = "BookCreated"
	EventTypeBookUpdated          = "BookUpdated"
	EventTypeBookDeleted          = "BookDeleted"
	EventTypeBookValidationResult = "BookValidationResult"
)

// CreatedPayload records the full initial state of a book.
type CreatedPayload struct {
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	PublicationYear int       `json:"publicationYear"`
	Publisher       string    `json:"publisher"`
	Price           float64   `json:"price"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (CreatedPayload) EventType() string  { return EventTypeBookCreated }
func (CreatedPayload) SchemaVersion() int { return 1 }

// UpdatedPayload carries only the fields that actually changed; nil means
// untouched. Emitting no-op updates is a domain-rule violation, so at least
// one field is always set.
type UpdatedPayload struct {
	Title           *string   `json:"title,omitempty"`
	Author          *string   `json:"author,omitempty"`
	PublicationYear *int      `json:"publicationYear,omitempty"`
	Publisher       *string   `json:"publisher,omitempty"`
	Price           *float64  `json:"price,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (UpdatedPayload) EventType() string  { return EventTypeBookUpdated }
func (UpdatedPayload) SchemaVersion() int { return 1 }

// DeletedPayload tombstones a book. Projections keep the row with DeletedAt
// set; queries filter it out.
type DeletedPayload struct {
	DeletedAt time.Time `json:"deletedAt"`
}

func (DeletedPayload) EventType() string  { return EventTypeBookDeleted }
func (DeletedPayload) SchemaVersion() int { return 1 }

// ValidationResultPayload answers a ReservationBookValidation request. It is
// an integration event addressed to the requesting reservation, so its
// envelope carries the reservation id as aggregate id.
type ValidationResultPayload struct {
	ReservationID string `json:"reservationId"`
	BookID        string `json:"bookId"`
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason,omitempty"`
}

func (ValidationResultPayload) EventType() string  { return EventTypeBookValidationResult }
func (ValidationResultPayload) SchemaVersion() int { return 1 }

// RegisterPayloads wires this context's payload types into a registry.
func RegisterPayloads(registry *shared.PayloadRegistry) {
	registry.Register(EventTypeBookCreated, 1, func() shared.Payload { return &CreatedPayload{} })
	registry.Register(EventTypeBookUpdated, 1, func() shared.Payload { return &UpdatedPayload{} })
	registry.Register(EventTypeBookDeleted, 1, func() shared.Payload { return &DeletedPayload{} })
	registry.Register(EventTypeBookValidationResult, 1, func() shared.Payload { return &ValidationResultPayload{} })
}
