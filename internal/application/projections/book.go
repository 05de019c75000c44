package projections

import (
	"context"

	"go.uber.org/zap"

	"libris-backend/internal/domain/book"
	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// BookProjection folds book events into the books read model.
type BookProjection struct {
	books  repository.BookReadModel
	cache  repository.QueryCache
	logger *zap.Logger
}

// NewBookProjection wires the projection to its store. A non-nil cache has
// its books prefix invalidated after every applied patch.
func NewBookProjection(books repository.BookReadModel, cache repository.QueryCache, logger *zap.Logger) *BookProjection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookProjection{books: books, cache: cache, logger: logger}
}

func (p *BookProjection) ProjectionName() string { return "projection.books" }

func (p *BookProjection) EventTypes() []string {
	return []string{
		book.EventTypeBookCreated,
		book.EventTypeBookUpdated,
		book.EventTypeBookDeleted,
	}
}

func (p *BookProjection) Handle(ctx context.Context, event shared.Event) error {
	patch := repository.Patch{
		ID:        event.AggregateID,
		Version:   event.Version,
		UpdatedAt: event.Timestamp,
		Set:       map[string]interface{}{},
	}

	switch payload := event.Payload.(type) {
	case *book.CreatedPayload:
		patch.Set["isbn"] = payload.ISBN
		patch.Set["title"] = payload.Title
		patch.Set["author"] = payload.Author
		patch.Set["publicationYear"] = payload.PublicationYear
		patch.Set["publisher"] = payload.Publisher
		patch.Set["price"] = payload.Price
		patch.Set["createdAt"] = event.Timestamp

	case *book.UpdatedPayload:
		if payload.Title != nil {
			patch.Set["title"] = *payload.Title
		}
		if payload.Author != nil {
			patch.Set["author"] = *payload.Author
		}
		if payload.PublicationYear != nil {
			patch.Set["publicationYear"] = *payload.PublicationYear
		}
		if payload.Publisher != nil {
			patch.Set["publisher"] = *payload.Publisher
		}
		if payload.Price != nil {
			patch.Set["price"] = *payload.Price
		}

	case *book.DeletedPayload:
		patch.Set["deletedAt"] = payload.DeletedAt

	default:
		return apperrors.NewError(apperrors.CodeInternalError, "unexpected payload").
			WithDetails("event type %s", event.EventType).
			WithOperation("projection.books").
			Build()
	}

	if err := p.books.ApplyPatch(ctx, patch); err != nil {
		return err
	}
	if p.cache != nil {
		p.cache.InvalidatePrefix(repository.CachePrefixBooks)
	}
	return nil
}
