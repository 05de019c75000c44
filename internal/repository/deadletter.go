package repository

import (
	"context"
	"fmt"
	"time"
)

// DeadLetter is an event a subscriber could not process after the retry
// budget was spent, kept for manual inspection and replay. The original
// envelope is stored verbatim so a replay republishes exactly what was
// delivered.
type DeadLetter struct {
	ID          string    `json:"id" dynamodbav:"id"`
	EventID     string    `json:"eventId" dynamodbav:"eventId"`
	EventType   string    `json:"eventType" dynamodbav:"eventType"`
	AggregateID string    `json:"aggregateId" dynamodbav:"aggregateId"`
	Version     int       `json:"version" dynamodbav:"version"`
	Subscriber  string    `json:"subscriber" dynamodbav:"subscriber"`
	Reason      string    `json:"reason" dynamodbav:"reason"`
	Attempts    int       `json:"attempts" dynamodbav:"attempts"`
	Envelope    []byte    `json:"envelope" dynamodbav:"envelope"`
	FailedAt    time.Time `json:"failedAt" dynamodbav:"failedAt"`
}

// LetterID builds the stable dead-letter id for an event and subscriber,
// so redelivery of the same poisoned event overwrites its row instead of
// multiplying it.
func LetterID(eventType, aggregateID string, version int, subscriber string) string {
	return fmt.Sprintf("%s#%s#%d#%s", eventType, aggregateID, version, subscriber)
}

// DeadLetterStore persists dead letters keyed by (eventType, aggregateId,
// version, subscriber) so one poisoned event appears once per subscriber.
type DeadLetterStore interface {
	Save(ctx context.Context, letter DeadLetter) error
	List(ctx context.Context, page PageRequest) (*PageResponse[DeadLetter], error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}
