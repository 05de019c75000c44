// Package book models the Books bounded context: the catalog aggregate and
// the events it owns.
package book

import (
	"fmt"
	"strings"
	"time"

	"libris-backend/internal/domain/shared"
	"libris-backend/internal/errors"
)

// Book is the catalog aggregate. State is rebuilt by replaying its event
// stream; behavior methods validate business rules and raise events, they
// never touch storage.
type Book struct {
	shared.BaseAggregateRoot

	ISBN            string
	Title           string
	Author          string
	PublicationYear int
	Publisher       string
	Price           float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// CreateParams is the validated input for a new catalog entry.
type CreateParams struct {
	ISBN            string
	Title           string
	Author          string
	PublicationYear int
	Publisher       string
	Price           float64
}

// Empty returns a blank aggregate ready for rehydration.
func Empty(id string) *Book {
	return &Book{BaseAggregateRoot: shared.NewBaseAggregateRoot(id)}
}

// New creates a book, enforcing creation rules and raising BookCreated.
func New(id string, params CreateParams, meta shared.Metadata) (*Book, error) {
	params.ISBN = strings.TrimSpace(params.ISBN)
	params.Title = strings.TrimSpace(params.Title)
	params.Author = strings.TrimSpace(params.Author)
	params.Publisher = strings.TrimSpace(params.Publisher)

	if err := validateCreate(params); err != nil {
		return nil, err
	}

	b := Empty(id)
	payload := &CreatedPayload{
		ISBN:            params.ISBN,
		Title:           params.Title,
		Author:          params.Author,
		PublicationYear: params.PublicationYear,
		Publisher:       params.Publisher,
		Price:           params.Price,
		CreatedAt:       time.Now().UTC(),
	}
	if err := b.raise(payload, meta); err != nil {
		return nil, err
	}
	return b, nil
}

func validateCreate(params CreateParams) error {
	var problems []string
	switch len(params.ISBN) {
	case 10, 13:
	default:
		problems = append(problems, "isbn must be 10 or 13 characters")
	}
	if params.Title == "" {
		problems = append(problems, "title is required")
	}
	if params.Author == "" {
		problems = append(problems, "author is required")
	}
	if params.Publisher == "" {
		problems = append(problems, "publisher is required")
	}
	if params.PublicationYear < 1450 || params.PublicationYear > time.Now().Year()+1 {
		problems = append(problems, "publicationYear is out of range")
	}
	if params.Price < 0 {
		problems = append(problems, "price must not be negative")
	}
	if len(problems) > 0 {
		return errors.NewError(errors.CodeBookInvalidData, "invalid book data").
			WithDetails("%s", strings.Join(problems, "; ")).
			WithResource("book").
			Build()
	}
	return nil
}

// UpdateChanges is a partial patch; nil fields are untouched.
type UpdateChanges struct {
	Title           *string
	Author          *string
	PublicationYear *int
	Publisher       *string
	Price           *float64
}

// Update applies a patch. An empty patch is rejected, string fields are
// trimmed, and BookUpdated is raised only when at least one field actually
// changes value.
func (b *Book) Update(changes UpdateChanges, meta shared.Metadata) error {
	if b.IsDeleted() {
		return errors.NewError(errors.CodeBookNotFound, "book is deleted").
			WithResource("book").
			WithDetails("id=%s", b.GetID()).
			Build()
	}

	payload := &UpdatedPayload{}
	touched := false
	changed := false

	if changes.Title != nil {
		touched = true
		if v := strings.TrimSpace(*changes.Title); v != "" && v != b.Title {
			payload.Title = &v
			changed = true
		}
	}
	if changes.Author != nil {
		touched = true
		if v := strings.TrimSpace(*changes.Author); v != "" && v != b.Author {
			payload.Author = &v
			changed = true
		}
	}
	if changes.PublicationYear != nil {
		touched = true
		if v := *changes.PublicationYear; v != b.PublicationYear {
			if v < 1450 || v > time.Now().Year()+1 {
				return errors.NewError(errors.CodeBookInvalidData, "publicationYear is out of range").
					WithResource("book").
					Build()
			}
			payload.PublicationYear = &v
			changed = true
		}
	}
	if changes.Publisher != nil {
		touched = true
		if v := strings.TrimSpace(*changes.Publisher); v != "" && v != b.Publisher {
			payload.Publisher = &v
			changed = true
		}
	}
	if changes.Price != nil {
		touched = true
		if v := *changes.Price; v != b.Price {
			if v < 0 {
				return errors.NewError(errors.CodeBookInvalidData, "price must not be negative").
					WithResource("book").
					Build()
			}
			payload.Price = &v
			changed = true
		}
	}

	if !touched {
		return errors.NewError(errors.CodeBookInvalidData, "update patch is empty").
			WithResource("book").
			Build()
	}
	if !changed {
		// Same values resubmitted. Not an error, but nothing to record.
		return nil
	}

	payload.UpdatedAt = time.Now().UTC()
	return b.raise(payload, meta)
}

// Delete tombstones the book. Deleting twice is treated as not found, which
// matches what every read path reports for a tombstoned row.
func (b *Book) Delete(meta shared.Metadata) error {
	if b.IsDeleted() {
		return errors.NewError(errors.CodeBookNotFound, "book is deleted").
			WithResource("book").
			WithDetails("id=%s", b.GetID()).
			Build()
	}
	return b.raise(&DeletedPayload{DeletedAt: time.Now().UTC()}, meta)
}

// IsDeleted reports whether the book has been tombstoned.
func (b *Book) IsDeleted() bool {
	return b.DeletedAt != nil
}

func (b *Book) raise(payload shared.Payload, meta shared.Metadata) error {
	event := shared.NewEvent(b.GetID(), b.NextVersion(), payload, meta)
	if err := b.Apply(event); err != nil {
		return err
	}
	b.AddDomainEvent(event)
	return nil
}

// Apply routes an event to its state mutation. Used both for rehydration
// and for events raised in this session.
func (b *Book) Apply(event shared.Event) error {
	switch p := event.Payload.(type) {
	case *CreatedPayload:
		b.ISBN = p.ISBN
		b.Title = p.Title
		b.Author = p.Author
		b.PublicationYear = p.PublicationYear
		b.Publisher = p.Publisher
		b.Price = p.Price
		b.CreatedAt = p.CreatedAt
		b.UpdatedAt = p.CreatedAt

	case *UpdatedPayload:
		if p.Title != nil {
			b.Title = *p.Title
		}
		if p.Author != nil {
			b.Author = *p.Author
		}
		if p.PublicationYear != nil {
			b.PublicationYear = *p.PublicationYear
		}
		if p.Publisher != nil {
			b.Publisher = *p.Publisher
		}
		if p.Price != nil {
			b.Price = *p.Price
		}
		b.UpdatedAt = p.UpdatedAt

	case *DeletedPayload:
		deletedAt := p.DeletedAt
		b.DeletedAt = &deletedAt
		b.UpdatedAt = p.DeletedAt

	default:
		return fmt.Errorf("book: unexpected event type %s", event.EventType)
	}

	b.Advance(event)
	return nil
}
