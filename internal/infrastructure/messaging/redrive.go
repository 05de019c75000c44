package messaging

import (
	"context"

	"go.uber.org/zap"

	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// redrivePageSize bounds each listing while scanning the parked letters.
const redrivePageSize = 100

// Redriver republishes dead letters onto the bus. Replay is always manual:
// a poisoned event usually needs a code or data fix first, so nothing here
// runs on a schedule.
type Redriver struct {
	letters repository.DeadLetterStore
	bus     *Bus
	logger  *zap.Logger
}

// NewRedriver builds a replay helper over the dead-letter store.
func NewRedriver(letters repository.DeadLetterStore, bus *Bus, logger *zap.Logger) *Redriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redriver{letters: letters, bus: bus, logger: logger.Named("redriver")}
}

// Redrive republishes the dead letter with the given id, deleting it once
// the envelope is back on the bus. The envelope replays verbatim, so every
// subscriber of the type sees it again; handlers are idempotent, so only
// the one that failed acts on it.
func (r *Redriver) Redrive(ctx context.Context, id string) error {
	letter, err := r.find(ctx, id)
	if err != nil {
		return err
	}
	return r.replay(ctx, *letter)
}

// RedriveAll republishes every parked letter and reports how many went
// back out. The listing is snapshotted up front; letters parked while the
// replay runs wait for the next invocation.
func (r *Redriver) RedriveAll(ctx context.Context) (int, error) {
	var letters []repository.DeadLetter
	for page := 1; ; page++ {
		resp, err := r.letters.List(ctx, repository.PageRequest{Page: page, Limit: redrivePageSize})
		if err != nil {
			return 0, apperrors.Wrap(err, "RedriveAll")
		}
		letters = append(letters, resp.Data...)
		if !resp.Pagination.HasNext {
			break
		}
	}

	for i, letter := range letters {
		if err := r.replay(ctx, letter); err != nil {
			return i, err
		}
	}
	return len(letters), nil
}

func (r *Redriver) replay(ctx context.Context, letter repository.DeadLetter) error {
	if err := r.bus.PublishEnvelope(ctx, letter.Envelope); err != nil {
		return apperrors.Wrap(err, "replay dead letter")
	}
	if err := r.letters.Delete(ctx, letter.ID); err != nil {
		return apperrors.Wrap(err, "delete replayed dead letter")
	}
	r.logger.Info("dead letter redriven",
		zap.String("id", letter.ID),
		zap.String("eventType", letter.EventType),
		zap.String("aggregateId", letter.AggregateID),
		zap.String("subscriber", letter.Subscriber),
	)
	return nil
}

func (r *Redriver) find(ctx context.Context, id string) (*repository.DeadLetter, error) {
	for page := 1; ; page++ {
		resp, err := r.letters.List(ctx, repository.PageRequest{Page: page, Limit: redrivePageSize})
		if err != nil {
			return nil, apperrors.Wrap(err, "Redrive")
		}
		for i := range resp.Data {
			if resp.Data[i].ID == id {
				return &resp.Data[i], nil
			}
		}
		if !resp.Pagination.HasNext {
			return nil, apperrors.NewError(apperrors.CodeValidationError, "no dead letter with that id").
				WithDetails("id=%s", id).
				Build()
		}
	}
}
