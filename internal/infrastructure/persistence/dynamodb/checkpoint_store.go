package dynamodb

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// checkpointKeyPrefix separates consumer positions from the version counter
// sharing the counters table.
const checkpointKeyPrefix = "checkpoint#"

// CheckpointStore keeps one counters-table item per named log consumer.
type CheckpointStore struct {
	client *awsdynamodb.Client
	table  string
}

// Compile-time interface check
var _ repository.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore creates the store against the counters table.
func NewCheckpointStore(client *awsdynamodb.Client, table string) *CheckpointStore {
	return &CheckpointStore{client: client, table: table}
}

// Load returns the consumer's saved position. A name never saved reads as 0,
// which points the consumer at the start of the log.
func (s *CheckpointStore) Load(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, apperrors.Validation("checkpoint name required")
	}

	out, err := s.client.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            idKey(checkpointKeyPrefix + name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if terr := translateAWSError(err, "Load"); terr != nil {
			return 0, terr
		}
		return 0, apperrors.NewError(apperrors.CodeInternalError, "load checkpoint").
			WithCause(err).
			WithResource(name).
			Build()
	}
	attr, ok := out.Item["counterValue"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	position, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, apperrors.NewError(apperrors.CodeInternalError, "checkpoint attribute malformed").
			WithCause(err).
			WithResource(name).
			Build()
	}
	return position, nil
}

// Save overwrites the consumer's position.
func (s *CheckpointStore) Save(ctx context.Context, name string, globalVersion int64) error {
	if name == "" {
		return apperrors.Validation("checkpoint name required")
	}

	_, err := s.client.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"id":           &types.AttributeValueMemberS{Value: checkpointKeyPrefix + name},
			"counterValue": &types.AttributeValueMemberN{Value: strconv.FormatInt(globalVersion, 10)},
		},
	})
	if err != nil {
		if terr := translateAWSError(err, "Save"); terr != nil {
			return terr
		}
		return apperrors.NewError(apperrors.CodeInternalError, "save checkpoint").
			WithCause(err).
			WithResource(name).
			Build()
	}
	return nil
}
