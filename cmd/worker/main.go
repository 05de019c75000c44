// The worker binary runs the background side of the platform: the saga
// watchdog, the log catch-up and the dead-letter monitor. With -redrive or
// -redrive-all it acts as a one-shot replay tool instead.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"libris-backend/internal/di"
	"libris-backend/internal/infrastructure/messaging"
)

const deadLetterCheckInterval = time.Minute

func main() {
	redriveID := flag.String("redrive", "", "republish the dead letter with this id, then exit")
	redriveAll := flag.Bool("redrive-all", false, "republish every dead letter, then exit")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.NewContainer(ctx)
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	logger := container.Logger

	if *redriveID != "" || *redriveAll {
		os.Exit(runRedrive(ctx, container, *redriveID, *redriveAll))
	}

	logger.Info("worker started",
		zap.String("environment", string(container.Config.Environment)),
	)

	go container.Watchdog.Run(ctx)
	go container.Catchup.Run(ctx)
	go monitorDeadLetters(ctx, container, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), container.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := container.Shutdown(shutdownCtx); err != nil {
		logger.Error("container shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

// runRedrive replays dead letters and drains the bus before reporting, so
// every republished event reaches its subscribers before the process exits.
func runRedrive(ctx context.Context, container *di.Container, id string, all bool) int {
	logger := container.Logger
	redriver := messaging.NewRedriver(container.DeadLetters, container.Bus, logger)

	var err error
	redriven := 0
	if all {
		redriven, err = redriver.RedriveAll(ctx)
	} else {
		if rerr := redriver.Redrive(ctx, id); rerr == nil {
			redriven = 1
		} else {
			err = rerr
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), container.Config.Server.ShutdownTimeout)
	defer cancel()
	if serr := container.Shutdown(shutdownCtx); serr != nil {
		logger.Error("container shutdown", zap.Error(serr))
	}

	if err != nil {
		logger.Error("redrive failed", zap.Int("redriven", redriven), zap.Error(err))
		return 1
	}
	logger.Info("redrive complete", zap.Int("redriven", redriven))
	return 0
}

// monitorDeadLetters logs the parked-letter count every interval. The count
// going up is the operational signal to inspect and redrive.
func monitorDeadLetters(ctx context.Context, container *di.Container, logger *zap.Logger) {
	ticker := time.NewTicker(deadLetterCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := container.DeadLetters.Count(ctx)
			if err != nil {
				logger.Error("dead letter count failed", zap.Error(err))
				continue
			}
			if count > 0 {
				logger.Warn("dead letters parked", zap.Int64("count", count))
			} else {
				logger.Debug("no dead letters")
			}
		}
	}
}
