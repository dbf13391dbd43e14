// ABOUTME: Process-wide broker routing candidates between ports and consumers
// ABOUTME: Explicit open/close lifecycle, fair round-robin over enrolled ports

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"geneva/candidate"
)

// Broker is the registry connecting ports (producers of raw work) with
// consumers (workers turning raw items into processed items). One broker
// serves the whole process; tests may build private instances.
type Broker struct {
	mu     sync.Mutex
	ports  map[uint64]*Port
	order  []uint64 // enrollment order, drives the round-robin
	next   int
	open   bool
	notify chan struct{}
	logger *zap.Logger
}

// New builds an open broker. The logger may be nil.
func New(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Broker{
		ports:  make(map[uint64]*Port),
		open:   true,
		notify: make(chan struct{}, 1),
		logger: logger,
	}
}

var (
	stdMu sync.Mutex
	std   *Broker
)

// Open initializes the process-wide broker. Calling it twice is an error.
func Open(logger *zap.Logger) (*Broker, error) {
	stdMu.Lock()
	defer stdMu.Unlock()

	if std != nil {
		return nil, fmt.Errorf("broker already open")
	}

	std = New(logger)

	return std, nil
}

// Default returns the process-wide broker, or an error before Open.
func Default() (*Broker, error) {
	stdMu.Lock()
	defer stdMu.Unlock()

	if std == nil {
		return nil, ErrBrokerClosed
	}

	return std, nil
}

// Close tears down the process-wide broker.
func Close() {
	stdMu.Lock()
	defer stdMu.Unlock()

	if std != nil {
		std.Shutdown()
		std = nil
	}
}

// Enroll registers a port. Items submitted to the port become visible to
// consumers immediately.
func (b *Broker) Enroll(p *Port) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return ErrBrokerClosed
	}

	if _, dup := b.ports[p.ID()]; dup {
		return fmt.Errorf("port %d already enrolled", p.ID())
	}

	b.ports[p.ID()] = p
	b.order = append(b.order, p.ID())
	p.attach(b.notify)
	b.logger.Debug("port enrolled", zap.Uint64("port", p.ID()), zap.String("mode", p.Mode().String()))

	return nil
}

// Leave removes a port. In-flight items addressed to it are dropped
// silently when consumers try to return them.
func (b *Broker) Leave(portID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.ports[portID]; !ok {
		return
	}

	delete(b.ports, portID)

	for i, id := range b.order {
		if id == portID {
			b.order = append(b.order[:i], b.order[i+1:]...)

			break
		}
	}

	b.logger.Debug("port left", zap.Uint64("port", portID))
}

// Shutdown marks the broker closed. Consumers observe it through their
// next GetRaw returning ErrBrokerClosed.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.ports = make(map[uint64]*Port)
	b.order = nil
}

// GetRaw pops the next raw item, rotating fairly over enrolled ports so a
// busy port cannot starve the others. FIFO is preserved within each port.
// ok is false when no item arrived within the timeout.
func (b *Broker) GetRaw(ctx context.Context, timeout time.Duration) (*candidate.Candidate, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		item, ok, err := b.tryNextRaw()
		if err != nil {
			return nil, false, err
		}

		if ok {
			return item, true, nil
		}

		select {
		case <-b.notify:
			// New work may have arrived; re-scan the ports.
		case <-timer.C:
			return nil, false, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// tryNextRaw scans all ports once, starting after the last served port.
func (b *Broker) tryNextRaw() (*candidate.Candidate, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil, false, ErrBrokerClosed
	}

	n := len(b.order)
	for i := range n {
		p := b.ports[b.order[(b.next+i)%n]]
		if item, ok := p.raw.TryGet(); ok {
			b.next = (b.next + i + 1) % n

			return item, true, nil
		}
	}

	return nil, false, nil
}

// PutProcessed routes a finished item back to its originating port's
// processed queue. If the port no longer exists, the item is dropped
// silently: its owner vanished and nobody will collect it.
func (b *Broker) PutProcessed(ctx context.Context, item *candidate.Candidate, timeout time.Duration) error {
	b.mu.Lock()
	p, ok := b.ports[item.Courtier.PortID]
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("dropping item for vanished port",
			zap.Uint64("port", item.Courtier.PortID),
			zap.Int("position", item.Courtier.Position))

		return nil
	}

	return p.processed.Put(ctx, item, timeout)
}

// Requeue returns a raw item the consumer could not process back to its
// originating port, so the submission engine can hand it out again. Items
// for vanished ports are dropped.
func (b *Broker) Requeue(ctx context.Context, item *candidate.Candidate, timeout time.Duration) error {
	b.mu.Lock()
	p, ok := b.ports[item.Courtier.PortID]
	b.mu.Unlock()

	if !ok {
		return nil
	}

	err := p.raw.Put(ctx, item, timeout)
	if err == nil {
		select {
		case b.notify <- struct{}{}:
		default:
		}
	}

	return err
}
