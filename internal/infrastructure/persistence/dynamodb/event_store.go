package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

const (
	// GlobalVersionIndex orders the whole log by global version.
	GlobalVersionIndex = "GlobalVersionIndex"

	aggregateKeyPrefix = "AGGREGATE#"
	versionKeyPrefix   = "VERSION#"
	globalKeyPrefix    = "GLOBAL#"
	logPartition       = "LOG"

	counterID = "globalVersion"

	// DynamoDB caps TransactWriteItems at 100 items per call. Appends are
	// atomic, so a batch past the cap cannot be stored.
	maxTransactItems = 100
)

// EventStore is the DynamoDB event log. Each event is one item keyed by
// (AGGREGATE#<id>, VERSION#<version>); the conditional put on both keys is
// what turns a concurrent append into a CONCURRENCY_CONFLICT instead of an
// overwrite. Global versions come from a counter row incremented by the
// size of each batch, so gaps appear when an append loses the race.
type EventStore struct {
	client   *awsdynamodb.Client
	table    string
	counters string
	registry *shared.PayloadRegistry
	logger   *zap.Logger
}

// Compile-time interface check
var _ repository.EventStore = (*EventStore)(nil)

// NewEventStore creates the store. The registry decodes payloads on load.
func NewEventStore(client *awsdynamodb.Client, table, counters string, registry *shared.PayloadRegistry, logger *zap.Logger) *EventStore {
	return &EventStore{
		client:   client,
		table:    table,
		counters: counters,
		registry: registry,
		logger:   logger,
	}
}

// eventRecord is the stored shape of one event. The payload is kept as a
// JSON document so the schema can evolve without table migrations.
type eventRecord struct {
	PK            string `dynamodbav:"PK"`
	SK            string `dynamodbav:"SK"`
	EventID       string `dynamodbav:"eventId"`
	AggregateID   string `dynamodbav:"aggregateId"`
	EventType     string `dynamodbav:"eventType"`
	Version       int    `dynamodbav:"version"`
	GlobalVersion int64  `dynamodbav:"globalVersion"`
	SchemaVersion int    `dynamodbav:"schemaVersion"`
	Timestamp     string `dynamodbav:"timestamp"`
	Payload       string `dynamodbav:"payload"`
	CorrelationID string `dynamodbav:"correlationId,omitempty"`
	CausationID   string `dynamodbav:"causationId,omitempty"`
	UserID        string `dynamodbav:"userId,omitempty"`
	StoredAt      string `dynamodbav:"storedAt"`
	LogPK         string `dynamodbav:"logPK"`
	LogSK         string `dynamodbav:"logSK"`
}

func aggregateKey(aggregateID string) string {
	return aggregateKeyPrefix + aggregateID
}

func versionKey(version int) string {
	return fmt.Sprintf("%s%010d", versionKeyPrefix, version)
}

func globalKey(globalVersion int64) string {
	return fmt.Sprintf("%s%020d", globalKeyPrefix, globalVersion)
}

// AppendEvents stores the batch atomically and returns the events stamped
// with their global versions and storedAt timestamps.
func (s *EventStore) AppendEvents(ctx context.Context, events []shared.Event) ([]shared.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if len(events) > maxTransactItems {
		return nil, apperrors.NewError(apperrors.CodeEventSaveFailed, "append batch too large").
			WithDetails("%d events exceed the transactional limit of %d", len(events), maxTransactItems).
			Build()
	}
	for _, e := range events {
		if e.AggregateID == "" || e.Version < 1 {
			return nil, apperrors.NewError(apperrors.CodeEventSaveFailed, "malformed event").
				WithDetails("aggregateId=%q version=%d", e.AggregateID, e.Version).
				Build()
		}
	}

	firstGlobal, err := s.reserveGlobalVersions(ctx, int64(len(events)))
	if err != nil {
		return nil, err
	}

	storedAt := time.Now().UTC()
	stamped := make([]shared.Event, len(events))
	items := make([]types.TransactWriteItem, 0, len(events))

	for i, e := range events {
		e.GlobalVersion = firstGlobal + int64(i)
		e.Metadata.StoredAt = storedAt
		stamped[i] = e

		record, err := s.eventToRecord(e)
		if err != nil {
			return nil, err
		}
		item, err := attributevalue.MarshalMap(record)
		if err != nil {
			return nil, apperrors.NewError(apperrors.CodeEventSaveFailed, "marshal event record").
				WithCause(err).
				WithResource(e.AggregateID).
				Build()
		}

		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.table),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				// The winning item comes back on failure so the collision
				// can be classified without a second read.
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &awsdynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return nil, s.classifyAppendError(err, stamped)
	}

	s.logger.Debug("events appended",
		zap.String("aggregateId", events[0].AggregateID),
		zap.Int("count", len(events)),
		zap.Int64("firstGlobalVersion", firstGlobal),
	)
	return stamped, nil
}

// reserveGlobalVersions advances the counter by n and returns the first
// version of the reserved block. The counter only moves forward; a failed
// append after reservation leaves a gap, which readers tolerate.
func (s *EventStore) reserveGlobalVersions(ctx context.Context, n int64) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
		TableName: aws.String(s.counters),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: counterID},
		},
		UpdateExpression: aws.String("ADD counterValue :n"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if terr := translateAWSError(err, "ReserveGlobalVersions"); terr != nil {
			return 0, terr
		}
		return 0, apperrors.NewError(apperrors.CodeEventSaveFailed, "reserve global versions").
			WithCause(err).
			Build()
	}

	attr, ok := out.Attributes["counterValue"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, apperrors.NewError(apperrors.CodeEventSaveFailed, "counter attribute missing").Build()
	}
	end, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, apperrors.NewError(apperrors.CodeEventSaveFailed, "counter attribute malformed").
			WithCause(err).
			Build()
	}
	return end - n + 1, nil
}

// classifyAppendError separates the failures callers branch on. A key
// collision where the stored item carries the submitted event id is a
// DUPLICATE_EVENT (this batch already landed); any other collision is the
// CONCURRENCY_CONFLICT the retry policy acts on; throttling surfaces as
// retryable SERVICE_UNAVAILABLE; the rest is EVENT_SAVE_FAILED.
func (s *EventStore) classifyAppendError(err error, events []shared.Event) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
				continue
			}
			e := events[0]
			if i < len(events) {
				e = events[i]
			}
			return s.collisionError(e, storedEventID(reason.Item), err)
		}
	}
	var conditional *types.ConditionalCheckFailedException
	if errors.As(err, &conditional) {
		return s.collisionError(events[0], storedEventID(conditional.Item), err)
	}
	if terr := translateAWSError(err, "AppendEvents"); terr != nil {
		return terr
	}
	return apperrors.NewError(apperrors.CodeEventSaveFailed, "append events").
		WithCause(err).
		WithResource(events[0].AggregateID).
		Build()
}

func (s *EventStore) collisionError(e shared.Event, winnerEventID string, cause error) error {
	if winnerEventID != "" && winnerEventID == e.EventID {
		return apperrors.NewError(apperrors.CodeDuplicateEvent, "event already appended").
			WithDetails("aggregate %s version %d", e.AggregateID, e.Version).
			WithResource(e.AggregateID).
			WithCause(cause).
			Build()
	}
	return apperrors.NewError(apperrors.CodeConcurrencyConflict, "aggregate version already written").
		WithDetails("aggregate %s version %d", e.AggregateID, e.Version).
		WithResource(e.AggregateID).
		WithCause(cause).
		Build()
}

func storedEventID(item map[string]types.AttributeValue) string {
	attr, ok := item["eventId"].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return attr.Value
}

// LoadEvents returns the aggregate's full stream in version order.
func (s *EventStore) LoadEvents(ctx context.Context, aggregateID string) ([]shared.Event, error) {
	return s.LoadEventsFrom(ctx, aggregateID, 1)
}

// LoadEventsFrom returns the aggregate's events with Version >= from.
func (s *EventStore) LoadEventsFrom(ctx context.Context, aggregateID string, from int) ([]shared.Event, error) {
	if aggregateID == "" {
		return nil, apperrors.NewError(apperrors.CodeInvalidAggregateID, "aggregate id required").Build()
	}
	if from < 1 {
		from = 1
	}

	input := &awsdynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk AND SK >= :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: aggregateKey(aggregateID)},
			":sk": &types.AttributeValueMemberS{Value: versionKey(from)},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	var events []shared.Event
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			if terr := translateAWSError(err, "LoadEvents"); terr != nil {
				return nil, terr
			}
			return nil, apperrors.NewError(apperrors.CodeEventLookupFailed, "query event stream").
				WithCause(err).
				WithResource(aggregateID).
				Build()
		}
		for _, item := range result.Items {
			event, err := s.itemToEvent(item)
			if err != nil {
				return nil, err
			}
			events = append(events, event)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Version < events[j].Version })
	return events, nil
}

// LoadAllEvents reads the global log after the given global version, in
// global-version order, up to limit events. The index is eventually
// consistent; callers that need "everything up to now" re-poll.
func (s *EventStore) LoadAllEvents(ctx context.Context, afterGlobalVersion int64, limit int) ([]shared.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	input := &awsdynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(GlobalVersionIndex),
		KeyConditionExpression: aws.String("logPK = :pk AND logSK > :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: logPartition},
			":sk": &types.AttributeValueMemberS{Value: globalKey(afterGlobalVersion)},
		},
		ScanIndexForward: aws.Bool(true),
		Limit:            aws.Int32(int32(limit)),
	}

	events := make([]shared.Event, 0, limit)
	for len(events) < limit {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			if terr := translateAWSError(err, "LoadAllEvents"); terr != nil {
				return nil, terr
			}
			return nil, apperrors.NewError(apperrors.CodeEventLookupFailed, "query global log").
				WithCause(err).
				Build()
		}
		for _, item := range result.Items {
			event, err := s.itemToEvent(item)
			if err != nil {
				return nil, err
			}
			events = append(events, event)
			if len(events) == limit {
				break
			}
		}
		if result.LastEvaluatedKey == nil || len(events) == limit {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return events, nil
}

func (s *EventStore) eventToRecord(e shared.Event) (*eventRecord, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, apperrors.NewError(apperrors.CodeEventSaveFailed, "marshal payload").
			WithCause(err).
			WithResource(e.AggregateID).
			WithDetails("event type %s", e.EventType).
			Build()
	}

	return &eventRecord{
		PK:            aggregateKey(e.AggregateID),
		SK:            versionKey(e.Version),
		EventID:       e.EventID,
		AggregateID:   e.AggregateID,
		EventType:     e.EventType,
		Version:       e.Version,
		GlobalVersion: e.GlobalVersion,
		SchemaVersion: e.SchemaVersion,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		Payload:       string(payload),
		CorrelationID: e.Metadata.CorrelationID,
		CausationID:   e.Metadata.CausationID,
		UserID:        e.Metadata.UserID,
		StoredAt:      e.Metadata.StoredAt.UTC().Format(time.RFC3339Nano),
		LogPK:         logPartition,
		LogSK:         globalKey(e.GlobalVersion),
	}, nil
}

func (s *EventStore) itemToEvent(item map[string]types.AttributeValue) (shared.Event, error) {
	var record eventRecord
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return shared.Event{}, apperrors.NewError(apperrors.CodeEventLookupFailed, "unmarshal event record").
			WithCause(err).
			Build()
	}

	payload, err := s.registry.Decode(record.EventType, record.SchemaVersion, []byte(record.Payload))
	if err != nil {
		return shared.Event{}, apperrors.NewError(apperrors.CodeRehydrationFailed, "decode stored payload").
			WithCause(err).
			WithResource(record.AggregateID).
			WithDetails("event type %s v%d at version %d", record.EventType, record.SchemaVersion, record.Version).
			Build()
	}

	timestamp, err := time.Parse(time.RFC3339Nano, record.Timestamp)
	if err != nil {
		return shared.Event{}, apperrors.NewError(apperrors.CodeRehydrationFailed, "parse event timestamp").
			WithCause(err).
			WithResource(record.AggregateID).
			Build()
	}
	var storedAt time.Time
	if record.StoredAt != "" {
		if storedAt, err = time.Parse(time.RFC3339Nano, record.StoredAt); err != nil {
			return shared.Event{}, apperrors.NewError(apperrors.CodeRehydrationFailed, "parse storedAt timestamp").
				WithCause(err).
				WithResource(record.AggregateID).
				Build()
		}
	}

	return shared.Event{
		EventID:       record.EventID,
		AggregateID:   record.AggregateID,
		EventType:     record.EventType,
		Version:       record.Version,
		GlobalVersion: record.GlobalVersion,
		SchemaVersion: record.SchemaVersion,
		Timestamp:     timestamp.UTC(),
		Payload:       payload,
		Metadata: shared.Metadata{
			CorrelationID: record.CorrelationID,
			CausationID:   record.CausationID,
			UserID:        record.UserID,
			StoredAt:      storedAt.UTC(),
		},
	}, nil
}
