package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"libris-backend/internal/domain/reservation"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// ReservationStore is the Reservations read model on DynamoDB.
type ReservationStore struct {
	proj projectionStore[repository.ReservationDocument]
}

// Compile-time interface check
var _ repository.ReservationReadModel = (*ReservationStore)(nil)

// NewReservationStore creates the store against the reservations table.
func NewReservationStore(client *awsdynamodb.Client, table string, logger *zap.Logger) *ReservationStore {
	return &ReservationStore{
		proj: projectionStore[repository.ReservationDocument]{
			client:       client,
			table:        table,
			logger:       logger,
			notFoundCode: apperrors.CodeReservationNotFound,
			less:         repository.LessReservationBy,
		},
	}
}

// ApplyPatch applies a version-guarded projection write.
func (s *ReservationStore) ApplyPatch(ctx context.Context, patch repository.Patch) error {
	return s.proj.applyPatch(ctx, patch)
}

// GetByID returns the live reservation row.
func (s *ReservationStore) GetByID(ctx context.Context, id string) (*repository.ReservationDocument, error) {
	return s.proj.getByID(ctx, id)
}

// List returns one page of live reservations matching the filter.
func (s *ReservationStore) List(ctx context.Context, filter repository.ReservationFilter, page repository.PageRequest) (*repository.PageResponse[repository.ReservationDocument], error) {
	return s.proj.listPage(ctx, reservationFilterExpression(filter), page, repository.ReservationSortKeys)
}

// ListActiveByBookID returns the non-terminal reservations holding a book.
// Book validation during the reservation saga keys off this.
func (s *ReservationStore) ListActiveByBookID(ctx context.Context, bookID string) ([]repository.ReservationDocument, error) {
	if bookID == "" {
		return nil, apperrors.Validation("book id required")
	}

	filter := expression.And(
		expression.Name("bookId").Equal(expression.Value(bookID)),
		expression.Name("status").In(
			expression.Value(string(reservation.StatusCreated)),
			expression.Value(string(reservation.StatusValidated)),
			expression.Value(string(reservation.StatusActive)),
			expression.Value(string(reservation.StatusLate)),
		),
	)
	return s.proj.scanDocs(ctx, &filter)
}

func reservationFilterExpression(f repository.ReservationFilter) *expression.ConditionBuilder {
	if f.IsZero() {
		return nil
	}

	var conds []expression.ConditionBuilder
	if f.UserID != "" {
		conds = append(conds, expression.Name("userId").Equal(expression.Value(f.UserID)))
	}
	if f.BookID != "" {
		conds = append(conds, expression.Name("bookId").Equal(expression.Value(f.BookID)))
	}
	if f.Status != "" {
		conds = append(conds, expression.Name("status").Equal(expression.Value(f.Status)))
	}
	if f.FeeCharged != nil {
		conds = append(conds, expression.Name("feeCharged").Equal(expression.Value(*f.FeeCharged)))
	}
	if f.DueBefore != nil {
		conds = append(conds, expression.Name("dueDate").LessThan(expression.Value(f.DueBefore.UTC())))
	}
	if f.DueAfter != nil {
		conds = append(conds, expression.Name("dueDate").GreaterThan(expression.Value(f.DueAfter.UTC())))
	}

	return combineConditions(conds)
}

