// ABOUTME: Consumer contract and shared error kinds for execution backends
// ABOUTME: Serial, threaded and TCP consumers all satisfy the same interface

package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"geneva/broker"
	"geneva/candidate"
)

var (
	// ErrWireProtocol marks framing or deserialization failures. The
	// offending session is closed and any in-flight item requeued.
	ErrWireProtocol = errors.New("wire protocol error")

	// ErrTransport marks socket failures; handled like ErrWireProtocol.
	ErrTransport = errors.New("transport error")
)

// Consumer is an execution backend: started once, it loops pulling raw
// items from the broker, processing them and pushing them back processed.
// Run returns when ctx is cancelled, unwinding within the poll timeout.
type Consumer interface {
	Run(ctx context.Context) error
	Tag() string
}

// pollTimeout bounds every queue wait so the stop signal is observed
// promptly at each suspension point.
const pollTimeout = 100 * time.Millisecond

// putTimeout bounds the return path; a full processed queue longer than
// this indicates the collector is gone.
const putTimeout = 5 * time.Second

// safeProcess evaluates an item, converting a panic in user evaluation
// code into a processing error so the item is still returned.
func safeProcess(item *candidate.Candidate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			item.MarkProcessingError()
			err = fmt.Errorf("evaluation panic: %v", r)
		}
	}()

	return item.Process()
}

// processAndReturn runs one item through evaluation and hands it back to
// the broker. Evaluation errors land in the item's state, never get
// swallowed, and the item is returned either way so the collector sees
// the failure.
func processAndReturn(ctx context.Context, b *broker.Broker, item *candidate.Candidate) error {
	_ = safeProcess(item)

	return b.PutProcessed(ctx, item, putTimeout)
}
