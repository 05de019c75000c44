package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"libris-backend/internal/domain/reservation"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// docTable stores projection rows as JSON-shaped maps so patches apply the
// same way they do against DynamoDB: field assignment by name, guarded by
// the stored version.
type docTable[T interface{ Deleted() bool }] struct {
	mu           sync.RWMutex
	rows         map[string]map[string]interface{}
	notFoundCode apperrors.ErrorCode
	less         func(key string, a, b T) bool
}

func newDocTable[T interface{ Deleted() bool }](notFoundCode apperrors.ErrorCode, less func(key string, a, b T) bool) *docTable[T] {
	return &docTable[T]{
		rows:         make(map[string]map[string]interface{}),
		notFoundCode: notFoundCode,
		less:         less,
	}
}

func (t *docTable[T]) applyPatch(ctx context.Context, patch repository.Patch) error {
	if patch.ID == "" {
		return apperrors.Validation("patch requires a document id")
	}
	if patch.Version < 1 {
		return apperrors.Validation("patch requires a positive version")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	row, exists := t.rows[patch.ID]
	if exists {
		if stored, ok := row["version"].(float64); ok && int(stored) >= patch.Version {
			return nil
		}
	} else {
		row = make(map[string]interface{})
	}

	merged := make(map[string]interface{}, len(row)+len(patch.Set)+3)
	for k, v := range row {
		merged[k] = v
	}
	merged["id"] = patch.ID
	merged["version"] = patch.Version
	merged["updatedAt"] = patch.UpdatedAt.UTC()
	for k, v := range patch.Set {
		merged[k] = v
	}

	// Normalize values through JSON so reads decode identically no matter
	// which patch wrote them.
	raw, err := json.Marshal(merged)
	if err != nil {
		return apperrors.Internal("encode projection row", err)
	}
	var normalized map[string]interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return apperrors.Internal("decode projection row", err)
	}

	t.rows[patch.ID] = normalized
	return nil
}

func (t *docTable[T]) decode(row map[string]interface{}) (T, error) {
	var doc T
	raw, err := json.Marshal(row)
	if err != nil {
		return doc, apperrors.Internal("encode projection row", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, apperrors.Internal("decode projection row", err)
	}
	return doc, nil
}

func (t *docTable[T]) getByID(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, apperrors.Validation("document id required")
	}

	t.mu.RLock()
	row, exists := t.rows[id]
	t.mu.RUnlock()

	if !exists {
		return nil, apperrors.NewError(t.notFoundCode, "document not found").WithResource(id).Build()
	}
	doc, err := t.decode(row)
	if err != nil {
		return nil, err
	}
	if doc.Deleted() {
		return nil, apperrors.NewError(t.notFoundCode, "document not found").WithResource(id).Build()
	}
	return &doc, nil
}

// live returns every non-deleted document.
func (t *docTable[T]) live(ctx context.Context) ([]T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	docs := make([]T, 0, len(t.rows))
	for _, row := range t.rows {
		doc, err := t.decode(row)
		if err != nil {
			return nil, err
		}
		if doc.Deleted() {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (t *docTable[T]) listPage(ctx context.Context, match func(T) bool, page repository.PageRequest, sortKeys map[string]bool) (*repository.PageResponse[T], error) {
	page = page.Normalize(repository.PaginationDefaults{})
	if err := page.ValidateSort(sortKeys); err != nil {
		return nil, err
	}

	all, err := t.live(ctx)
	if err != nil {
		return nil, err
	}

	var docs []T
	for _, doc := range all {
		if match == nil || match(doc) {
			docs = append(docs, doc)
		}
	}

	if page.SortBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			if page.SortOrder == repository.SortDesc {
				return t.less(page.SortBy, docs[j], docs[i])
			}
			return t.less(page.SortBy, docs[i], docs[j])
		})
	}

	total := len(docs)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return repository.NewPageResponse(docs[start:end], total, page), nil
}

// BookStore is the in-memory Books read model.
type BookStore struct {
	table *docTable[repository.BookDocument]
}

// Compile-time interface check
var _ repository.BookReadModel = (*BookStore)(nil)

// NewBookStore creates an empty store.
func NewBookStore() *BookStore {
	return &BookStore{table: newDocTable(apperrors.CodeBookNotFound, repository.LessBookBy)}
}

func (s *BookStore) ApplyPatch(ctx context.Context, patch repository.Patch) error {
	return s.table.applyPatch(ctx, patch)
}

func (s *BookStore) GetByID(ctx context.Context, id string) (*repository.BookDocument, error) {
	return s.table.getByID(ctx, id)
}

func (s *BookStore) FindIDByISBN(ctx context.Context, isbn string) (string, error) {
	if isbn == "" {
		return "", apperrors.Validation("isbn required")
	}
	docs, err := s.table.live(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range docs {
		if d.ISBN == isbn {
			return d.ID, nil
		}
	}
	return "", nil
}

func (s *BookStore) List(ctx context.Context, filter repository.BookFilter, page repository.PageRequest) (*repository.PageResponse[repository.BookDocument], error) {
	return s.table.listPage(ctx, filter.Matches, page, repository.BookSortKeys)
}

// ReservationStore is the in-memory Reservations read model.
type ReservationStore struct {
	table *docTable[repository.ReservationDocument]
}

// Compile-time interface check
var _ repository.ReservationReadModel = (*ReservationStore)(nil)

// NewReservationStore creates an empty store.
func NewReservationStore() *ReservationStore {
	return &ReservationStore{table: newDocTable(apperrors.CodeReservationNotFound, repository.LessReservationBy)}
}

func (s *ReservationStore) ApplyPatch(ctx context.Context, patch repository.Patch) error {
	return s.table.applyPatch(ctx, patch)
}

func (s *ReservationStore) GetByID(ctx context.Context, id string) (*repository.ReservationDocument, error) {
	return s.table.getByID(ctx, id)
}

func (s *ReservationStore) List(ctx context.Context, filter repository.ReservationFilter, page repository.PageRequest) (*repository.PageResponse[repository.ReservationDocument], error) {
	return s.table.listPage(ctx, filter.Matches, page, repository.ReservationSortKeys)
}

func (s *ReservationStore) ListActiveByBookID(ctx context.Context, bookID string) ([]repository.ReservationDocument, error) {
	if bookID == "" {
		return nil, apperrors.Validation("book id required")
	}
	docs, err := s.table.live(ctx)
	if err != nil {
		return nil, err
	}
	active := map[string]bool{
		string(reservation.StatusCreated):   true,
		string(reservation.StatusValidated): true,
		string(reservation.StatusActive):    true,
		string(reservation.StatusLate):      true,
	}
	var out []repository.ReservationDocument
	for _, d := range docs {
		if d.BookID == bookID && active[d.Status] {
			out = append(out, d)
		}
	}
	return out, nil
}

// WalletStore is the in-memory Wallets read model.
type WalletStore struct {
	table *docTable[repository.WalletDocument]
}

// Compile-time interface check
var _ repository.WalletReadModel = (*WalletStore)(nil)

// NewWalletStore creates an empty store.
func NewWalletStore() *WalletStore {
	return &WalletStore{table: newDocTable(apperrors.CodeWalletNotFound, repository.LessWalletBy)}
}

func (s *WalletStore) ApplyPatch(ctx context.Context, patch repository.Patch) error {
	return s.table.applyPatch(ctx, patch)
}

func (s *WalletStore) GetByID(ctx context.Context, id string) (*repository.WalletDocument, error) {
	return s.table.getByID(ctx, id)
}

func (s *WalletStore) FindIDByUserID(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", apperrors.Validation("user id required")
	}
	docs, err := s.table.live(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range docs {
		if d.UserID == userID {
			return d.ID, nil
		}
	}
	return "", nil
}

func (s *WalletStore) List(ctx context.Context, filter repository.WalletFilter, page repository.PageRequest) (*repository.PageResponse[repository.WalletDocument], error) {
	return s.table.listPage(ctx, filter.Matches, page, repository.WalletSortKeys)
}
