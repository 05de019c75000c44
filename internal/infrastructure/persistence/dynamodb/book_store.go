package dynamodb

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// BookStore is the Books read model on DynamoDB.
type BookStore struct {
	proj projectionStore[repository.BookDocument]
}

// Compile-time interface check
var _ repository.BookReadModel = (*BookStore)(nil)

// NewBookStore creates the store against the books table.
func NewBookStore(client *awsdynamodb.Client, table string, logger *zap.Logger) *BookStore {
	return &BookStore{
		proj: projectionStore[repository.BookDocument]{
			client:       client,
			table:        table,
			logger:       logger,
			notFoundCode: apperrors.CodeBookNotFound,
			less:         repository.LessBookBy,
		},
	}
}

// ApplyPatch applies a version-guarded projection write.
func (s *BookStore) ApplyPatch(ctx context.Context, patch repository.Patch) error {
	return s.proj.applyPatch(ctx, patch)
}

// GetByID returns the live book row.
func (s *BookStore) GetByID(ctx context.Context, id string) (*repository.BookDocument, error) {
	return s.proj.getByID(ctx, id)
}

// FindIDByISBN returns the id of the live book carrying the isbn, or ""
// when none exists. Uniqueness checks before create go through here.
func (s *BookStore) FindIDByISBN(ctx context.Context, isbn string) (string, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return "", apperrors.Validation("isbn required")
	}

	filter := expression.Name("isbn").Equal(expression.Value(isbn))
	docs, err := s.proj.scanDocs(ctx, &filter)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].ID, nil
}

// List returns one page of live books matching the filter.
func (s *BookStore) List(ctx context.Context, filter repository.BookFilter, page repository.PageRequest) (*repository.PageResponse[repository.BookDocument], error) {
	return s.proj.listPage(ctx, bookFilterExpression(filter), page, repository.BookSortKeys)
}

func bookFilterExpression(f repository.BookFilter) *expression.ConditionBuilder {
	if f.IsZero() {
		return nil
	}

	var conds []expression.ConditionBuilder
	if f.Author != "" {
		conds = append(conds, expression.Name("author").Equal(expression.Value(f.Author)))
	}
	if f.Publisher != "" {
		conds = append(conds, expression.Name("publisher").Equal(expression.Value(f.Publisher)))
	}
	if f.ISBN != "" {
		conds = append(conds, expression.Name("isbn").Equal(expression.Value(f.ISBN)))
	}
	if f.PriceMin != nil {
		conds = append(conds, expression.Name("price").GreaterThanEqual(expression.Value(*f.PriceMin)))
	}
	if f.PriceMax != nil {
		conds = append(conds, expression.Name("price").LessThanEqual(expression.Value(*f.PriceMax)))
	}
	if f.PublicationYearMin != nil {
		conds = append(conds, expression.Name("publicationYear").GreaterThanEqual(expression.Value(*f.PublicationYearMin)))
	}
	if f.PublicationYearMax != nil {
		conds = append(conds, expression.Name("publicationYear").LessThanEqual(expression.Value(*f.PublicationYearMax)))
	}

	return combineConditions(conds)
}

func combineConditions(conds []expression.ConditionBuilder) *expression.ConditionBuilder {
	if len(conds) == 0 {
		return nil
	}
	combined := conds[0]
	for _, c := range conds[1:] {
		combined = expression.And(combined, c)
	}
	return &combined
}

