// ABOUTME: Buffer port pairing a raw and a processed queue per run
// ABOUTME: Owns the port id and the serialization mode agreed at construction

package broker

import (
	"context"
	"sync/atomic"
	"time"

	"geneva/candidate"
)

var nextPortID atomic.Uint64

// Port is the channel through which one optimization run ships work to the
// broker: submitted candidates enter the raw queue, consumers return them
// through the processed queue. FIFO holds per queue; there is no ordering
// across ports.
type Port struct {
	id        uint64
	raw       *Queue
	processed *Queue
	mode      candidate.SerializationMode
	notify    chan<- struct{}
}

// NewPort builds a port with the given queue capacities and wire mode.
func NewPort(rawCapacity, processedCapacity int, mode candidate.SerializationMode) *Port {
	return &Port{
		id:        nextPortID.Add(1),
		raw:       NewQueue(rawCapacity),
		processed: NewQueue(processedCapacity),
		mode:      mode,
	}
}

// ID returns the unique port id.
func (p *Port) ID() uint64 { return p.id }

// Mode returns the serialization mode agreed at construction.
func (p *Port) Mode() candidate.SerializationMode { return p.mode }

// attach wires the broker's wake-up channel into the port.
func (p *Port) attach(notify chan<- struct{}) {
	p.notify = notify
}

// Submit enqueues a candidate for processing and wakes a waiting consumer.
func (p *Port) Submit(ctx context.Context, item *candidate.Candidate, timeout time.Duration) error {
	if err := p.raw.Put(ctx, item, timeout); err != nil {
		return err
	}

	if p.notify != nil {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}

	return nil
}

// GetProcessed pops a finished candidate; ok is false on timeout.
func (p *Port) GetProcessed(ctx context.Context, timeout time.Duration) (*candidate.Candidate, bool, error) {
	return p.processed.Get(ctx, timeout)
}

// RawDepth and ProcessedDepth expose queue depths for monitoring.
func (p *Port) RawDepth() int       { return p.raw.Len() }
func (p *Port) ProcessedDepth() int { return p.processed.Len() }
