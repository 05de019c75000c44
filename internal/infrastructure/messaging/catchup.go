package messaging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"libris-backend/internal/domain/shared"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// catchupBatch bounds how many events one page of the log replay carries.
const catchupBatch = 100

// CheckpointWorker names the log consumer backing the worker's catch-up,
// shared between deployments so exactly one cursor exists per table prefix.
const CheckpointWorker = "worker.catchup"

// CatchUp republishes stored events onto the bus from a persisted log
// position. The event store is the durable source of truth: a command whose
// in-process publish was lost still has its events in the log, and the
// catch-up delivers them on the next sweep. Subscribers absorb the repeats
// the same way they absorb any at-least-once redelivery.
//
// Starting a fresh consumer name at position 0 replays the whole log, which
// doubles as the projection rebuild path.
type CatchUp struct {
	log         logReader
	bus         *Bus
	checkpoints repository.CheckpointStore
	name        string
	interval    time.Duration
	logger      *zap.Logger
}

// logReader is the slice of the event store the catch-up reads.
type logReader interface {
	LoadAllEvents(ctx context.Context, afterGlobalVersion int64, limit int) ([]shared.Event, error)
}

// NewCatchUp builds the runner over the global log. A non-positive interval
// defaults to 15s.
func NewCatchUp(log logReader, bus *Bus, checkpoints repository.CheckpointStore, name string, interval time.Duration, logger *zap.Logger) *CatchUp {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatchUp{
		log:         log,
		bus:         bus,
		checkpoints: checkpoints,
		name:        name,
		interval:    interval,
		logger:      logger.Named("catchup"),
	}
}

// Run sweeps immediately and then on a ticker until the context is
// cancelled.
func (c *CatchUp) Run(ctx context.Context) {
	c.logger.Info("log catch-up running",
		zap.String("consumer", c.name),
		zap.Duration("interval", c.interval))

	if _, err := c.Sweep(ctx); err != nil {
		c.logger.Error("log sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("log catch-up stopped")
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil {
				c.logger.Error("log sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep pages the log from the saved position, republishes every page, and
// advances the checkpoint after each. It reports how many events went back
// out. A mid-sweep failure leaves the checkpoint at the last completed page,
// so the next sweep resumes there.
func (c *CatchUp) Sweep(ctx context.Context) (int, error) {
	cursor, err := c.checkpoints.Load(ctx, c.name)
	if err != nil {
		return 0, apperrors.Wrap(err, "Sweep")
	}

	published := 0
	for {
		page, err := c.log.LoadAllEvents(ctx, cursor, catchupBatch)
		if err != nil {
			return published, apperrors.Wrap(err, "Sweep")
		}
		if len(page) == 0 {
			return published, nil
		}

		if err := c.bus.Publish(ctx, page...); err != nil {
			return published, apperrors.Wrap(err, "Sweep")
		}
		published += len(page)
		cursor = page[len(page)-1].GlobalVersion

		if err := c.checkpoints.Save(ctx, c.name, cursor); err != nil {
			return published, apperrors.Wrap(err, "Sweep")
		}
		c.logger.Debug("log page republished",
			zap.Int("events", len(page)),
			zap.Int64("cursor", cursor))
	}
}
