package queries

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// ListWalletsQuery narrows, pages, and trims a wallet listing.
type ListWalletsQuery struct {
	Filter repository.WalletFilter
	Page   repository.PageRequest
	Fields []string
}

// WalletQueryService reads the Wallets projection.
type WalletQueryService struct {
	wallets repository.WalletReadModel
	cache   repository.QueryCache
	cfg     Config
	tracer  trace.Tracer
}

// NewWalletQueryService wires the service to the projection store and the
// query cache. A nil cache disables caching.
func NewWalletQueryService(wallets repository.WalletReadModel, cache repository.QueryCache, cfg Config) *WalletQueryService {
	return &WalletQueryService{
		wallets: wallets,
		cache:   cache,
		cfg:     cfg.withDefaults(),
		tracer:  otel.Tracer("libris-backend.queries.wallets"),
	}
}

// GetWalletByID returns one wallet trimmed to the requested fields.
func (s *WalletQueryService) GetWalletByID(ctx context.Context, id string, fields []string) (map[string]interface{}, error) {
	ctx, span := s.tracer.Start(ctx, "WalletQueryService.GetWalletByID",
		trace.WithAttributes(attribute.String("wallet.id", id)))
	defer span.End()

	selected, err := repository.NormalizeProjection(fields, repository.WalletFields)
	if err != nil {
		return nil, err
	}

	key := cacheKey(repository.CachePrefixWallets, "get", struct {
		ID     string   `json:"id"`
		Fields []string `json:"fields,omitempty"`
	}{id, selected})
	if doc, ok := fromCache[map[string]interface{}](s.cache, key); ok {
		span.AddEvent("cache_hit")
		return doc, nil
	}

	doc, err := s.wallets.GetByID(ctx, id)
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

// GetWalletByUserID resolves the user's live wallet and returns it trimmed
// to the requested fields.
func (s *WalletQueryService) GetWalletByUserID(ctx context.Context, userID string, fields []string) (map[string]interface{}, error) {
	ctx, span := s.tracer.Start(ctx, "WalletQueryService.GetWalletByUserID",
		trace.WithAttributes(attribute.String("wallet.userId", userID)))
	defer span.End()

	id, err := s.wallets.FindIDByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.NewError(apperrors.CodeWalletNotFound, "wallet not found").
			WithResource("wallet").
			WithDetails("userId=%s", userID).
			Build()
	}
	return s.GetWalletByID(ctx, id, fields)
}

// ListWallets pages through wallets.
func (s *WalletQueryService) ListWallets(ctx context.Context, q ListWalletsQuery) (*repository.PageResponse[map[string]interface{}], error) {
	ctx, span := s.tracer.Start(ctx, "WalletQueryService.ListWallets",
		trace.WithAttributes(attribute.String("filter.userId", q.Filter.UserID)))
	defer span.End()

	selected, err := repository.NormalizeProjection(q.Fields, repository.WalletFields)
	if err != nil {
		return nil, err
	}
	if err := q.Page.ValidateSort(repository.WalletSortKeys); err != nil {
		return nil, err
	}
	page := q.Page.Normalize(s.cfg.Pagination)

	key := cacheKey(repository.CachePrefixWallets, "list", struct {
		Filter repository.WalletFilter `json:"filter"`
		Page   repository.PageRequest  `json:"page"`
		Fields []string                `json:"fields,omitempty"`
	}{q.Filter, page, selected})
	if resp, ok := fromCache[*repository.PageResponse[map[string]interface{}]](s.cache, key); ok {
		span.AddEvent("cache_hit")
		return resp, nil
	}

	resp, err := s.wallets.List(ctx, q.Filter, page)
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
