package commands

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"libris-backend/internal/domain/book"
	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// BookCommandHandler executes catalog write operations.
type BookCommandHandler struct {
	core  handlerCore
	books repository.BookReadModel
}

// NewBookCommandHandler wires the handler to the event store, the books
// read model used for the isbn uniqueness check, and the bus.
func NewBookCommandHandler(events repository.EventStore, books repository.BookReadModel, bus Publisher, retry repository.RetryConfig, logger *zap.Logger) *BookCommandHandler {
	return &BookCommandHandler{
		core:  newHandlerCore(events, bus, retry, logger),
		books: books,
	}
}

// CreateBook registers a new title. The isbn must not belong to a live
// catalog entry; tombstoned entries free their isbn for reuse.
func (h *BookCommandHandler) CreateBook(ctx context.Context, cmd CreateBookCommand) (*book.Book, error) {
	b, err := book.New(uuid.NewString(), book.CreateParams{
		ISBN:            cmd.ISBN,
		Title:           cmd.Title,
		Author:          cmd.Author,
		PublicationYear: cmd.PublicationYear,
		Publisher:       cmd.Publisher,
		Price:           cmd.Price,
	}, shared.NewMetadata(cmd.UserID))
	if err != nil {
		return nil, err
	}

	existing, err := h.books.FindIDByISBN(ctx, b.ISBN)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, apperrors.NewError(apperrors.CodeBookAlreadyExists, "isbn already registered").
			WithResource("book").
			WithDetails("isbn=%s existingId=%s", b.ISBN, existing).
			Build()
	}

	if err := h.core.commit(ctx, b); err != nil {
		return nil, err
	}
	h.core.logger.Info("book created",
		zap.String("bookId", b.GetID()),
		zap.String("isbn", b.ISBN))
	return b, nil
}

// UpdateBook applies a partial patch to a catalog entry. Resubmitting the
// current values succeeds without recording an event.
func (h *BookCommandHandler) UpdateBook(ctx context.Context, cmd UpdateBookCommand) (*book.Book, error) {
	meta := shared.NewMetadata(cmd.UserID)
	b, err := mutate(ctx, h.core, cmd.BookID, bookNotFound(cmd.BookID), book.Empty, func(b *book.Book) error {
		return b.Update(book.UpdateChanges{
			Title:           cmd.Title,
			Author:          cmd.Author,
			PublicationYear: cmd.PublicationYear,
			Publisher:       cmd.Publisher,
			Price:           cmd.Price,
		}, meta)
	})
	if err != nil {
		return nil, err
	}
	h.core.logger.Info("book updated",
		zap.String("bookId", b.GetID()),
		zap.Int("version", b.GetVersion()))
	return b, nil
}

// DeleteBook tombstones a catalog entry. Reads stop returning it; its
// event stream stays intact.
func (h *BookCommandHandler) DeleteBook(ctx context.Context, cmd DeleteBookCommand) error {
	meta := shared.NewMetadata(cmd.UserID)
	b, err := mutate(ctx, h.core, cmd.BookID, bookNotFound(cmd.BookID), book.Empty, func(b *book.Book) error {
		return b.Delete(meta)
	})
	if err != nil {
		return err
	}
	h.core.logger.Info("book deleted", zap.String("bookId", b.GetID()))
	return nil
}

func bookNotFound(id string) error {
	return apperrors.NewError(apperrors.CodeBookNotFound, "book not found").
		WithResource("book").
		WithDetails("id=%s", id).
		Build()
}
