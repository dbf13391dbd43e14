// ABOUTME: Submission/collection engine shipping generations through a port
// ABOUTME: Wait-factor deadlines, resubmission of stragglers, at-most-once commit

package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"geneva/broker"
	"geneva/candidate"
)

// ErrIncompleteGeneration is returned in strict mode when a generation
// cannot be completed within the allowed resubmissions.
var ErrIncompleteGeneration = errors.New("generation incomplete after maximum resubmissions")

// Policy configures how long the engine waits for results and how it
// handles stragglers.
type Policy struct {
	// WaitFactor multiplies the estimated generation latency to produce
	// the collection deadline. Clamped into [MinWaitFactor, MaxWaitFactor]
	// and widened by WaitFactorIncrement per resubmission round.
	WaitFactor          float64
	MinWaitFactor       float64
	MaxWaitFactor       float64
	WaitFactorIncrement float64

	// BoundlessWait disables the deadline entirely.
	BoundlessWait bool

	// MaxResubmissions bounds the number of retry rounds for stragglers.
	MaxResubmissions int

	// CompleteReturnRequired selects strict mode: an incompletable
	// generation is an error. When false, missing slots keep their
	// pre-generation state and are reported as stragglers.
	CompleteReturnRequired bool

	SubmitTimeout time.Duration
	PollTimeout   time.Duration

	// InitialLatency seeds the runtime estimate before any generation
	// has been observed.
	InitialLatency time.Duration
}

// DefaultPolicy returns the engine defaults.
func DefaultPolicy() Policy {
	return Policy{
		WaitFactor:             2.0,
		MinWaitFactor:          1.0,
		MaxWaitFactor:          10.0,
		WaitFactorIncrement:    1.0,
		MaxResubmissions:       5,
		CompleteReturnRequired: true,
		SubmitTimeout:          5 * time.Second,
		PollTimeout:            50 * time.Millisecond,
		InitialLatency:         5 * time.Second,
	}
}

// Straggler records a position that never completed in best-effort mode,
// for the optimizer's stall-action hook.
type Straggler struct {
	Position int
	Attempts int
}

// latencyWindow bounds the moving runtime estimate.
const latencyWindow = 16

// Engine submits generations through one port and reassembles them from
// the processed queue, preserving slot positions regardless of completion
// order.
type Engine struct {
	port   *broker.Port
	policy Policy
	logger *zap.Logger

	// Observed generation latencies in seconds, newest last.
	latencies []float64
}

// New builds an engine bound to an enrolled port. The logger may be nil.
func New(port *broker.Port, policy Policy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	if policy.PollTimeout <= 0 {
		policy.PollTimeout = 50 * time.Millisecond
	}

	if policy.SubmitTimeout <= 0 {
		policy.SubmitTimeout = 5 * time.Second
	}

	return &Engine{port: port, policy: policy, logger: logger}
}

// estimatedLatency returns the moving mean of observed generation
// latencies, or the configured seed before any observation.
func (e *Engine) estimatedLatency() time.Duration {
	if len(e.latencies) == 0 {
		if e.policy.InitialLatency > 0 {
			return e.policy.InitialLatency
		}

		return 5 * time.Second
	}

	return time.Duration(stat.Mean(e.latencies, nil) * float64(time.Second))
}

// observeLatency records one generation's wall time into the window.
func (e *Engine) observeLatency(d time.Duration) {
	e.latencies = append(e.latencies, d.Seconds())
	if len(e.latencies) > latencyWindow {
		e.latencies = e.latencies[len(e.latencies)-latencyWindow:]
	}
}

// clampWaitFactor keeps the multiplier inside the configured bounds.
func (e *Engine) clampWaitFactor(f float64) float64 {
	if e.policy.MinWaitFactor > 0 && f < e.policy.MinWaitFactor {
		f = e.policy.MinWaitFactor
	}

	if e.policy.MaxWaitFactor > 0 && f > e.policy.MaxWaitFactor {
		f = e.policy.MaxWaitFactor
	}

	return f
}

// SubmitAndWait ships a generation through the port and blocks until every
// slot is committed, the resubmission budget is exhausted or ctx ends.
// Each slot is committed at most once: only results carrying the latest
// attempt number are accepted, stale returns are discarded. Slot positions
// in the returned generation match the input regardless of completion
// order.
func (e *Engine) SubmitAndWait(ctx context.Context, generation []*candidate.Candidate) ([]Straggler, error) {
	if len(generation) == 0 {
		return nil, nil
	}

	start := time.Now()

	// Server mode gates re-evaluation while items are in flight; the
	// previous setting is restored on commit.
	prevServer := make([]bool, len(generation))

	pending := make(map[int]bool, len(generation))
	for i, item := range generation {
		item.MarkForProcessing()
		prevServer[i] = item.SetServerMode(true)
		pending[i] = true
	}

	waitFactor := e.clampWaitFactor(e.policy.WaitFactor)

	for attempt := 0; ; attempt++ {
		if err := e.submitPending(ctx, generation, pending, attempt); err != nil {
			return nil, err
		}

		deadline := time.Now().Add(time.Duration(waitFactor * float64(e.estimatedLatency())))

		if err := e.collect(ctx, generation, prevServer, pending, attempt, deadline); err != nil {
			return nil, err
		}

		if len(pending) == 0 {
			e.observeLatency(time.Since(start))

			return nil, nil
		}

		if attempt >= e.policy.MaxResubmissions {
			if e.policy.CompleteReturnRequired {
				return nil, fmt.Errorf("%w: %d of %d slots missing (port %d)",
					ErrIncompleteGeneration, len(pending), len(generation), e.port.ID())
			}

			stragglers := make([]Straggler, 0, len(pending))
			for p := range pending {
				generation[p].SetServerMode(prevServer[p])
				stragglers = append(stragglers, Straggler{Position: p, Attempts: attempt + 1})
			}

			e.logger.Warn("returning partial generation",
				zap.Uint64("port", e.port.ID()),
				zap.Int("missing", len(pending)),
				zap.Int("size", len(generation)))
			e.observeLatency(time.Since(start))

			return stragglers, nil
		}

		// Widen the deadline for the next round so slow workers get a
		// fair second chance.
		waitFactor = e.clampWaitFactor(waitFactor + e.policy.WaitFactorIncrement)

		e.logger.Debug("resubmitting stragglers",
			zap.Uint64("port", e.port.ID()),
			zap.Int("attempt", attempt+1),
			zap.Int("missing", len(pending)))
	}
}

// submitPending enqueues a tagged clone for every pending slot. Clones keep
// a slow consumer from racing the next attempt on the same memory.
func (e *Engine) submitPending(ctx context.Context, generation []*candidate.Candidate, pending map[int]bool, attempt int) error {
	for p := range len(generation) {
		if !pending[p] {
			continue
		}

		item := generation[p].Clone()
		item.Courtier = candidate.CourtierID{
			PortID:   e.port.ID(),
			Position: p,
			Attempt:  attempt,
		}

		if err := e.port.Submit(ctx, item, e.policy.SubmitTimeout); err != nil {
			return fmt.Errorf("submitting position %d (attempt %d): %w", p, attempt, err)
		}
	}

	return nil
}

// collect drains the processed queue until the pending set empties or the
// deadline passes.
func (e *Engine) collect(ctx context.Context, generation []*candidate.Candidate, prevServer []bool, pending map[int]bool, attempt int, deadline time.Time) error {
	for len(pending) > 0 {
		if !e.policy.BoundlessWait && time.Now().After(deadline) {
			return nil
		}

		item, ok, err := e.port.GetProcessed(ctx, e.policy.PollTimeout)
		if err != nil {
			return err
		}

		if !ok {
			continue
		}

		id := item.Courtier

		if id.Attempt != attempt || !pending[id.Position] {
			// Stale attempt or duplicate: discard to keep the commit
			// at-most-once.
			e.logger.Debug("discarding stale result",
				zap.Uint64("port", id.PortID),
				zap.Int("position", id.Position),
				zap.Int("attempt", id.Attempt),
				zap.Int("current_attempt", attempt))

			continue
		}

		slot := generation[id.Position]
		slot.LoadFrom(item)
		slot.SetServerMode(prevServer[id.Position])
		delete(pending, id.Position)
	}

	return nil
}
