// ABOUTME: Thread-pool consumer running a fixed number of worker goroutines
// ABOUTME: Each worker loops get raw -> process -> put processed independently

package consumer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"geneva/broker"
	"geneva/pool"
)

// Threaded processes items on a fixed pool of worker goroutines.
type Threaded struct {
	broker  *broker.Broker
	workers int
	logger  *zap.Logger
}

// NewThreaded builds a consumer with the given worker count. A count
// below 1 falls back to the number of CPUs.
func NewThreaded(b *broker.Broker, workers int, logger *zap.Logger) *Threaded {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Threaded{broker: b, workers: workers, logger: logger}
}

// Tag implements Consumer.
func (t *Threaded) Tag() string { return "threads" }

// Run starts the workers and blocks until all exit. Workers stop at the
// next suspension point after ctx is cancelled.
func (t *Threaded) Run(ctx context.Context) error {
	workers := pool.NewWorkerPool(t.workers, t.workers)
	defer workers.Close()

	for w := range workers.Workers() {
		workers.Submit(func() {
			t.workerLoop(ctx, w)
		})
	}

	workers.Wait()

	return nil
}

// workerLoop is one worker's lifetime.
func (t *Threaded) workerLoop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		item, ok, err := t.broker.GetRaw(ctx, pollTimeout)
		if err != nil {
			if errors.Is(err, broker.ErrBrokerClosed) || errors.Is(err, context.Canceled) {
				return
			}

			t.logger.Error("worker leaving after broker failure",
				zap.Int("worker", id),
				zap.Error(err))

			return
		}

		if !ok {
			continue
		}

		if err := processAndReturn(ctx, t.broker, item); err != nil {
			t.logger.Warn("failed to return processed item",
				zap.Int("worker", id),
				zap.Uint64("port", item.Courtier.PortID),
				zap.Int("position", item.Courtier.Position),
				zap.Error(err))
		}
	}
}
