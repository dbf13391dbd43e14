// ABOUTME: Optimization loop driving init -> cycle -> halt -> finalize
// ABOUTME: Stall tracking, halt disjunction, info and checkpoint hooks

package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"geneva/candidate"
	"geneva/config"
)

// fitnessEpsilon guards stall detection against floating-point noise.
const fitnessEpsilon = 1e-10

// stallActionInterval triggers ActOnStalls every n-th consecutive stall.
const stallActionInterval = 10

// Algorithm is one population-based optimization strategy. The loop owns
// the iteration cadence; the algorithm owns reproduction, evaluation and
// selection within one cycle.
type Algorithm interface {
	// Mnemonic is the short algorithm tag (ea, sa, swarm, ps, gd).
	Mnemonic() string

	// Init validates configuration and builds the initial population.
	Init() error

	// CycleLogic runs one full generation and returns the best fitness
	// found so far as a (raw, transformed) pair.
	CycleLogic(ctx context.Context) (raw, transformed float64, err error)

	// Best returns the best candidate found so far.
	Best() *candidate.Candidate

	// ActOnStalls lets the algorithm react when the stall counter keeps
	// growing, e.g. by re-tuning parent adaptors.
	ActOnStalls() error

	// Exhausted reports an algorithm-specific halt, e.g. a parameter
	// scan that has walked its whole grid.
	Exhausted() bool

	// Finalize releases algorithm resources after the last cycle.
	Finalize() error
}

// HaltFunc is a user-supplied halt predicate, checked once per iteration.
type HaltFunc func() bool

// CheckpointFunc is invoked on improvement milestones with the current
// best candidate. The checkpoint format is up to the caller.
type CheckpointFunc func(iteration uint32, best *candidate.Candidate)

// Result summarizes a finished optimization run.
type Result struct {
	BestRaw         float64
	BestTransformed float64
	Best            *candidate.Candidate
	Iterations      uint32
	HaltReason      string
}

// Loop drives an algorithm until a halt criterion fires.
type Loop struct {
	alg     Algorithm
	opts    *config.Shared
	logger  *zap.Logger
	tracker *Tracker

	haltFn       HaltFunc
	checkpointFn CheckpointFunc

	iteration       uint32
	stalls          uint32
	improvements    int
	bestTransformed float64
	bestRaw         float64
	haveBest        bool
}

// LoopOption tweaks loop construction.
type LoopOption func(*Loop)

// WithHalt installs a user halt predicate.
func WithHalt(fn HaltFunc) LoopOption {
	return func(l *Loop) { l.haltFn = fn }
}

// WithCheckpoints installs the checkpoint hook.
func WithCheckpoints(fn CheckpointFunc) LoopOption {
	return func(l *Loop) { l.checkpointFn = fn }
}

// WithTracker installs a progress tracker receiving per-iteration updates.
func WithTracker(t *Tracker) LoopOption {
	return func(l *Loop) { l.tracker = t }
}

// NewLoop builds a loop over an algorithm. The logger may be nil.
func NewLoop(alg Algorithm, opts *config.Shared, logger *zap.Logger, loopOpts ...LoopOption) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Loop{alg: alg, opts: opts, logger: logger}

	for _, o := range loopOpts {
		o(l)
	}

	return l
}

// Optimize runs init -> (cycle, stall tracking, info, checkpoints) ->
// finalize and returns the best result. Finalize runs even when a cycle
// fails, so the run always unwinds cleanly.
func (l *Loop) Optimize(ctx context.Context) (*Result, error) {
	if err := l.alg.Init(); err != nil {
		return nil, fmt.Errorf("%s init: %w", l.alg.Mnemonic(), err)
	}

	start := time.Now()

	result, cycleErr := l.iterate(ctx, start)

	if err := l.alg.Finalize(); err != nil {
		l.logger.Warn("finalize failed", zap.String("algorithm", l.alg.Mnemonic()), zap.Error(err))
	}

	if l.tracker != nil {
		l.tracker.Close()
	}

	if cycleErr != nil {
		return nil, cycleErr
	}

	return result, nil
}

// iterate is the halt-checked generation loop.
func (l *Loop) iterate(ctx context.Context, start time.Time) (*Result, error) {
	for {
		if reason, halted := l.halt(ctx, start); halted {
			return l.result(reason), nil
		}

		raw, transformed, err := l.alg.CycleLogic(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return l.result("context cancelled"), nil
			}

			return nil, fmt.Errorf("%s iteration %d: %w", l.alg.Mnemonic(), l.iteration, err)
		}

		l.trackProgress(raw, transformed)
		l.iteration++

		if l.tracker != nil {
			l.tracker.Send(Update{
				Algorithm:       l.alg.Mnemonic(),
				Iteration:       l.iteration,
				BestRaw:         l.bestRaw,
				BestTransformed: l.bestTransformed,
				Stalls:          l.stalls,
			})
		}
	}
}

// trackProgress updates the stall counter and fires the stall-action and
// checkpoint hooks.
func (l *Loop) trackProgress(raw, transformed float64) {
	improved := !l.haveBest || transformed < l.bestTransformed-fitnessEpsilon

	if improved {
		l.bestRaw = raw
		l.bestTransformed = transformed
		l.haveBest = true
		l.stalls = 0
		l.improvements++

		interval := l.opts.Get().CheckpointInterval
		if l.checkpointFn != nil && interval > 0 && l.improvements%interval == 0 {
			l.checkpointFn(l.iteration, l.alg.Best())
		}

		return
	}

	l.stalls++

	if l.stalls%stallActionInterval == 0 {
		if err := l.alg.ActOnStalls(); err != nil {
			l.logger.Warn("stall action failed",
				zap.String("algorithm", l.alg.Mnemonic()),
				zap.Uint32("iteration", l.iteration),
				zap.Error(err))
		}
	}
}

// halt evaluates the halt disjunction before each cycle.
func (l *Loop) halt(ctx context.Context, start time.Time) (string, bool) {
	if ctx.Err() != nil {
		return "context cancelled", true
	}

	opts := l.opts.Get()

	if opts.MaxIterations > 0 && l.iteration >= opts.MaxIterations {
		return "max iterations reached", true
	}

	if opts.MaxMinutes > 0 && time.Since(start) >= time.Duration(opts.MaxMinutes*float64(time.Minute)) {
		return "max duration elapsed", true
	}

	if opts.MaxStallIteration > 0 && l.stalls >= opts.MaxStallIteration {
		return "stall threshold reached", true
	}

	if l.haltFn != nil && l.haltFn() {
		return "user halt", true
	}

	if l.alg.Exhausted() {
		return l.alg.Mnemonic() + " exhausted", true
	}

	return "", false
}

// result snapshots the loop state.
func (l *Loop) result(reason string) *Result {
	var best *candidate.Candidate
	if b := l.alg.Best(); b != nil {
		best = b.Clone()
	}

	l.logger.Info("optimization halted",
		zap.String("algorithm", l.alg.Mnemonic()),
		zap.String("reason", reason),
		zap.Uint32("iterations", l.iteration),
		zap.Float64("best", l.bestRaw))

	return &Result{
		BestRaw:         l.bestRaw,
		BestTransformed: l.bestTransformed,
		Best:            best,
		Iterations:      l.iteration,
		HaltReason:      reason,
	}
}
