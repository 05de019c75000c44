package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// SagaStore persists saga state, one row per reservation.
type SagaStore struct {
	client *awsdynamodb.Client
	table  string
	logger *zap.Logger
}

// Compile-time interface check
var _ repository.SagaStore = (*SagaStore)(nil)

// NewSagaStore creates the store against the sagas table.
func NewSagaStore(client *awsdynamodb.Client, table string, logger *zap.Logger) *SagaStore {
	return &SagaStore{client: client, table: table, logger: logger}
}

// Upsert writes the full state. Saga handlers run one event at a time per
// reservation, so last-writer-wins on the whole row is safe here.
func (s *SagaStore) Upsert(ctx context.Context, state *repository.SagaState) error {
	if state == nil || state.ReservationID == "" {
		return apperrors.Validation("saga state requires a reservation id")
	}
	if state.ID == "" {
		state.ID = state.ReservationID
	}

	item, err := attributevalue.MarshalMap(state)
	if err != nil {
		return apperrors.Internal("marshal saga state", err)
	}

	_, err = s.client.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		if terr := translateAWSError(err, "Upsert"); terr != nil {
			return terr
		}
		return apperrors.NewError(apperrors.CodeInternalError, "save saga state").
			WithCause(err).
			WithResource(state.ReservationID).
			Build()
	}

	s.logger.Debug("saga state saved",
		zap.String("reservationId", state.ReservationID),
		zap.String("step", state.Step),
	)
	return nil
}

// GetByReservationID loads a saga row.
func (s *SagaStore) GetByReservationID(ctx context.Context, reservationID string) (*repository.SagaState, error) {
	if reservationID == "" {
		return nil, apperrors.Validation("reservation id required")
	}

	out, err := s.client.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            idKey(reservationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if terr := translateAWSError(err, "GetByReservationID"); terr != nil {
			return nil, terr
		}
		return nil, apperrors.NewError(apperrors.CodeInternalError, "get saga state").
			WithCause(err).
			WithResource(reservationID).
			Build()
	}
	if out.Item == nil {
		return nil, apperrors.NewError(apperrors.CodeSagaNotFound, "saga not found").
			WithResource(reservationID).
			Build()
	}

	var state repository.SagaState
	if err := attributevalue.UnmarshalMap(out.Item, &state); err != nil {
		return nil, apperrors.Internal("unmarshal saga state", err)
	}
	return &state, nil
}

// ListStalled returns non-terminal sagas untouched since the cutoff, for
// the watchdog to retry or fail.
func (s *SagaStore) ListStalled(ctx context.Context, olderThan time.Time, limit int) ([]repository.SagaState, error) {
	if limit <= 0 {
		limit = 50
	}

	filter := expression.And(
		expression.Name("updatedAt").LessThan(expression.Value(olderThan.UTC())),
		expression.Name("step").NotEqual(expression.Value(repository.SagaStepCompleted)),
		expression.Name("step").NotEqual(expression.Value(repository.SagaStepFailed)),
	)
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, apperrors.Internal("build stalled saga expression", err)
	}

	input := &awsdynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var stalled []repository.SagaState
	for len(stalled) < limit {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			if terr := translateAWSError(err, "ListStalled"); terr != nil {
				return nil, terr
			}
			return nil, apperrors.NewError(apperrors.CodeInternalError, "scan stalled sagas").
				WithCause(err).
				Build()
		}
		for _, item := range result.Items {
			var state repository.SagaState
			if err := attributevalue.UnmarshalMap(item, &state); err != nil {
				return nil, apperrors.Internal("unmarshal saga state", err)
			}
			stalled = append(stalled, state)
			if len(stalled) == limit {
				break
			}
		}
		if result.LastEvaluatedKey == nil || len(stalled) == limit {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return stalled, nil
}
