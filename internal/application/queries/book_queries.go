package queries

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// ListBooksQuery narrows, pages, and trims a catalog listing.
type ListBooksQuery struct {
	Filter repository.BookFilter
	Page   repository.PageRequest
	Fields []string
}

// BookQueryService reads the Books projection.
type BookQueryService struct {
	books  repository.BookReadModel
	cache  repository.QueryCache
	cfg    Config
	tracer trace.Tracer
}

// NewBookQueryService wires the service to the projection store and the
// query cache. A nil cache disables caching.
func NewBookQueryService(books repository.BookReadModel, cache repository.QueryCache, cfg Config) *BookQueryService {
	return &BookQueryService{
		books:  books,
		cache:  cache,
		cfg:    cfg.withDefaults(),
		tracer: otel.Tracer("libris-backend.queries.books"),
	}
}

// GetBookByID returns one catalog entry trimmed to the requested fields.
func (s *BookQueryService) GetBookByID(ctx context.Context, id string, fields []string) (map[string]interface{}, error) {
	ctx, span := s.tracer.Start(ctx, "BookQueryService.GetBookByID",
		trace.WithAttributes(attribute.String("book.id", id)))
	defer span.End()

	selected, err := repository.NormalizeProjection(fields, repository.BookFields)
	if err != nil {
		return nil, err
	}

	key := cacheKey(repository.CachePrefixBooks, "get", struct {
		ID     string   `json:"id"`
		Fields []string `json:"fields,omitempty"`
	}{id, selected})
	if doc, ok := fromCache[map[string]interface{}](s.cache, key); ok {
		span.AddEvent("cache_hit")
		return doc, nil
	}

	doc, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	trimmed, err := repository.SelectFields(doc, selected)
	if err != nil {
		return nil, err
	}
	putCache(s.cache, key, trimmed, s.cfg.CacheTTL)
	return trimmed, nil
}

// GetBookByISBN resolves the live entry carrying the isbn and returns it
// trimmed to the requested fields.
func (s *BookQueryService) GetBookByISBN(ctx context.Context, isbn string, fields []string) (map[string]interface{}, error) {
	ctx, span := s.tracer.Start(ctx, "BookQueryService.GetBookByISBN",
		trace.WithAttributes(attribute.String("book.isbn", isbn)))
	defer span.End()

	id, err := s.books.FindIDByISBN(ctx, isbn)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.NewError(apperrors.CodeBookNotFound, "book not found").
			WithResource("book").
			WithDetails("isbn=%s", isbn).
			Build()
	}
	return s.GetBookByID(ctx, id, fields)
}

// ListBooks pages through the catalog.
func (s *BookQueryService) ListBooks(ctx context.Context, q ListBooksQuery) (*repository.PageResponse[map[string]interface{}], error) {
	ctx, span := s.tracer.Start(ctx, "BookQueryService.ListBooks",
		trace.WithAttributes(attribute.Int("page", q.Page.Page)))
	defer span.End()

	selected, err := repository.NormalizeProjection(q.Fields, repository.BookFields)
	if err != nil {
		return nil, err
	}
	if err := q.Page.ValidateSort(repository.BookSortKeys); err != nil {
		return nil, err
	}
	page := q.Page.Normalize(s.cfg.Pagination)

	key := cacheKey(repository.CachePrefixBooks, "list", struct {
		Filter repository.BookFilter  `json:"filter"`
		Page   repository.PageRequest `json:"page"`
		Fields []string               `json:"fields,omitempty"`
	}{q.Filter, page, selected})
	if resp, ok := fromCache[*repository.PageResponse[map[string]interface{}]](s.cache, key); ok {
		span.AddEvent("cache_hit")
		return resp, nil
	}

	resp, err := s.books.List(ctx, q.Filter, page)
	if err != nil {
		return nil, err
	}
	out, err := trimPage(resp, selected)
	if err != nil {
		return nil, err
	}
	putCache(s.cache, key, out, s.cfg.CacheTTL)
	return out, nil
}
