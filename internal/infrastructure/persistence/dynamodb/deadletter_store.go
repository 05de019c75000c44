package dynamodb

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// DeadLetterStore persists events that exhausted their delivery retries.
type DeadLetterStore struct {
	client *awsdynamodb.Client
	table  string
	logger *zap.Logger
}

// Compile-time interface check
var _ repository.DeadLetterStore = (*DeadLetterStore)(nil)

// NewDeadLetterStore creates the store against the dead letters table.
func NewDeadLetterStore(client *awsdynamodb.Client, table string, logger *zap.Logger) *DeadLetterStore {
	return &DeadLetterStore{client: client, table: table, logger: logger}
}

// Save writes the letter, overwriting a previous failure of the same event
// for the same subscriber.
func (s *DeadLetterStore) Save(ctx context.Context, letter repository.DeadLetter) error {
	if letter.ID == "" {
		letter.ID = repository.LetterID(letter.EventType, letter.AggregateID, letter.Version, letter.Subscriber)
	}

	item, err := attributevalue.MarshalMap(letter)
	if err != nil {
		return apperrors.Internal("marshal dead letter", err)
	}

	_, err = s.client.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		if terr := translateAWSError(err, "Save"); terr != nil {
			return terr
		}
		return apperrors.NewError(apperrors.CodeInternalError, "save dead letter").
			WithCause(err).
			WithResource(letter.AggregateID).
			Build()
	}

	s.logger.Warn("event dead-lettered",
		zap.String("eventType", letter.EventType),
		zap.String("aggregateId", letter.AggregateID),
		zap.Int("version", letter.Version),
		zap.String("subscriber", letter.Subscriber),
		zap.String("reason", letter.Reason),
	)
	return nil
}

// List returns one page of letters, most recent failures first.
func (s *DeadLetterStore) List(ctx context.Context, page repository.PageRequest) (*repository.PageResponse[repository.DeadLetter], error) {
	page = page.Normalize(repository.PaginationDefaults{})

	input := &awsdynamodb.ScanInput{
		TableName: aws.String(s.table),
	}

	var letters []repository.DeadLetter
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			if terr := translateAWSError(err, "List"); terr != nil {
				return nil, terr
			}
			return nil, apperrors.NewError(apperrors.CodeInternalError, "scan dead letters").
				WithCause(err).
				Build()
		}
		for _, item := range result.Items {
			var letter repository.DeadLetter
			if err := attributevalue.UnmarshalMap(item, &letter); err != nil {
				return nil, apperrors.Internal("unmarshal dead letter", err)
			}
			letters = append(letters, letter)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sort.Slice(letters, func(i, j int) bool { return letters[i].FailedAt.After(letters[j].FailedAt) })

	total := len(letters)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return repository.NewPageResponse(letters[start:end], total, page), nil
}

// Delete removes a letter, typically after a manual replay.
func (s *DeadLetterStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.Validation("dead letter id required")
	}
	_, err := s.client.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       idKey(id),
	})
	if err != nil {
		if terr := translateAWSError(err, "Delete"); terr != nil {
			return terr
		}
		return apperrors.NewError(apperrors.CodeInternalError, "delete dead letter").
			WithCause(err).
			WithResource(id).
			Build()
	}
	return nil
}

// Count returns the number of parked letters; the monitor alarms on it.
func (s *DeadLetterStore) Count(ctx context.Context) (int64, error) {
	input := &awsdynamodb.ScanInput{
		TableName: aws.String(s.table),
		Select:    types.SelectCount,
	}

	var total int64
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			if terr := translateAWSError(err, "Count"); terr != nil {
				return 0, terr
			}
			return 0, apperrors.NewError(apperrors.CodeInternalError, "count dead letters").
				WithCause(err).
				Build()
		}
		total += int64(result.Count)
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return total, nil
}
