package queries

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libris-backend/internal/repository"
)

// ListReservationsQuery narrows, pages, and trims a loan listing.
type ListReservationsQuery struct {
	Filter repository.ReservationFilter
	Page   repository.PageRequest
	Fields []string
}

// ReservationQueryService reads the Reservations projection.
type ReservationQueryService struct {
	reservations repository.ReservationReadModel
	cache        repository.QueryCache
	cfg          Config
	tracer       trace.Tracer
}

// NewReservationQueryService wires the service to the projection store and
// the query cache. A nil cache disables caching.
func NewReservationQueryService(reservations repository.ReservationReadModel, cache repository.QueryCache, cfg Config) *ReservationQueryService {
	return &ReservationQueryService{
		reservations: reservations,
		cache:        cache,
		cfg:          cfg.withDefaults(),
		tracer:       otel.Tracer("libris-backend.queries.reservations"),
	}
}

// GetReservationByID returns one loan trimmed to the requested fields.
func (s *ReservationQueryService) GetReservationByID(ctx context.Context, id string, fields []string) (map[string]interface{}, error) {
	ctx, span := s.tracer.Start(ctx, "ReservationQueryService.GetReservationByID",
		trace.WithAttributes(attribute.String("reservation.id", id)))
	defer span.End()

	selected, err := repository.NormalizeProjection(fields, repository.ReservationFields)
	if err != nil {
		return nil, err
	}

	key := cacheKey(repository.CachePrefixReservations, "get", struct {
		ID     string   `json:"id"`
		Fields []string `json:"fields,omitempty"`
	}{id, selected})
	if doc, ok := fromCache[map[string]interface{}](s.cache, key); ok {
		span.AddEvent("cache_hit")
		return doc, nil
	}

	doc, err := s.reservations.GetByID(ctx, id)
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

// ListReservations pages through loans.
func (s *ReservationQueryService) ListReservations(ctx context.Context, q ListReservationsQuery) (*repository.PageResponse[map[string]interface{}], error) {
	ctx, span := s.tracer.Start(ctx, "ReservationQueryService.ListReservations",
		trace.WithAttributes(
			attribute.String("filter.userId", q.Filter.UserID),
			attribute.String("filter.bookId", q.Filter.BookID),
			attribute.String("filter.status", q.Filter.Status),
		))
	defer span.End()

	selected, err := repository.NormalizeProjection(q.Fields, repository.ReservationFields)
	if err != nil {
		return nil, err
	}
	if err := q.Page.ValidateSort(repository.ReservationSortKeys); err != nil {
		return nil, err
	}
	page := q.Page.Normalize(s.cfg.Pagination)

	key := cacheKey(repository.CachePrefixReservations, "list", struct {
		Filter repository.ReservationFilter `json:"filter"`
		Page   repository.PageRequest       `json:"page"`
		Fields []string                     `json:"fields,omitempty"`
	}{q.Filter, page, selected})
	if resp, ok := fromCache[*repository.PageResponse[map[string]interface{}]](s.cache, key); ok {
		span.AddEvent("cache_hit")
		return resp, nil
	}

	resp, err := s.reservations.List(ctx, q.Filter, page)
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

// ListReservationsByUser pages through one user's loans.
func (s *ReservationQueryService) ListReservationsByUser(ctx context.Context, userID string, page repository.PageRequest, fields []string) (*repository.PageResponse[map[string]interface{}], error) {
	return s.ListReservations(ctx, ListReservationsQuery{
		Filter: repository.ReservationFilter{UserID: userID},
		Page:   page,
		Fields: fields,
	})
}

// ListReservationsByBook pages through a book's loans.
func (s *ReservationQueryService) ListReservationsByBook(ctx context.Context, bookID string, page repository.PageRequest, fields []string) (*repository.PageResponse[map[string]interface{}], error) {
	return s.ListReservations(ctx, ListReservationsQuery{
		Filter: repository.ReservationFilter{BookID: bookID},
		Page:   page,
		Fields: fields,
	})
}

// ListReservationsByStatus pages through loans in one lifecycle status.
func (s *ReservationQueryService) ListReservationsByStatus(ctx context.Context, status string, page repository.PageRequest, fields []string) (*repository.PageResponse[map[string]interface{}], error) {
	return s.ListReservations(ctx, ListReservationsQuery{
		Filter: repository.ReservationFilter{Status: status},
		Page:   page,
		Fields: fields,
	})
}
