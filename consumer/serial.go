// ABOUTME: Serial consumer processing one item at a time on one goroutine
// ABOUTME: Deterministic backend used by tests and single-core runs

package consumer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"geneva/broker"
)

// Serial pulls and processes items one at a time. Useful when determinism
// matters more than throughput.
type Serial struct {
	broker *broker.Broker
	logger *zap.Logger
}

// NewSerial builds a serial consumer. The logger may be nil.
func NewSerial(b *broker.Broker, logger *zap.Logger) *Serial {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Serial{broker: b, logger: logger}
}

// Tag implements Consumer.
func (s *Serial) Tag() string { return "serial" }

// Run loops get raw -> process -> put processed until ctx is cancelled.
func (s *Serial) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		item, ok, err := s.broker.GetRaw(ctx, pollTimeout)
		if err != nil {
			if errors.Is(err, broker.ErrBrokerClosed) || errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}

		if !ok {
			continue
		}

		if err := processAndReturn(ctx, s.broker, item); err != nil {
			s.logger.Warn("failed to return processed item",
				zap.Uint64("port", item.Courtier.PortID),
				zap.Int("position", item.Courtier.Position),
				zap.Error(err))
		}
	}
}
