// ABOUTME: Shared population plumbing for all optimization algorithms
// ABOUTME: Generation evaluation through the executor, best tracking, rng

package optimizer

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"

	"geneva/candidate"
	"geneva/config"
	"geneva/executor"
)

// base carries what every algorithm needs: the run options, the submission
// engine, a private random source and the best-so-far candidate.
type base struct {
	opts   *config.Shared
	engine *executor.Engine
	logger *zap.Logger
	rng    *rand.Rand

	template   *candidate.Candidate
	population []*candidate.Candidate

	iteration uint32
	stalls    uint32
	best      *candidate.Candidate
}

// newBase wires the shared plumbing. The template candidate defines the
// parameter shape, evaluator and optimization direction for the whole
// population. Random state is private to the algorithm's goroutine;
// sharing it across threads is forbidden.
func newBase(opts *config.Shared, engine *executor.Engine, template *candidate.Candidate, seed uint64, logger *zap.Logger) base {
	if logger == nil {
		logger = zap.NewNop()
	}

	return base{
		opts:     opts,
		engine:   engine,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		template: template,
	}
}

// spawn clones the template into a fresh, randomly initialized candidate.
func (b *base) spawn() *candidate.Candidate {
	c := b.template.Clone()
	c.RandomInit(b.rng)

	return c
}

// prepare stamps the bookkeeping mirrors and marks items for processing.
func (b *base) prepare(items []*candidate.Candidate) {
	bestKnown := 0.0
	if b.best != nil {
		bestKnown, _ = b.best.Raw()
	}

	for _, item := range items {
		item.AssignedIteration = b.iteration
		item.NStalls = b.stalls
		item.BestKnownFitness = bestKnown
		item.MarkForProcessing()
	}
}

// evaluate ships items through the executor and waits for the completed
// generation. Stragglers only occur in best-effort mode; they keep their
// pre-generation state.
func (b *base) evaluate(ctx context.Context, items []*candidate.Candidate) ([]executor.Straggler, error) {
	b.prepare(items)

	return b.engine.SubmitAndWait(ctx, items)
}

// updateBest replaces the best-so-far snapshot when c improves on it and
// maintains the stall mirror.
func (b *base) updateBest(c *candidate.Candidate) bool {
	if c.State() != candidate.Processed {
		return false
	}

	if b.best == nil || c.Transformed() < b.best.Transformed()-fitnessEpsilon {
		b.best = c.Clone()
		b.stalls = 0

		return true
	}

	b.stalls++

	return false
}

// bestFitness returns the (raw, transformed) pair of the best candidate.
func (b *base) bestFitness() (float64, float64) {
	if b.best == nil {
		return 0, 0
	}

	raw, _ := b.best.Raw()

	return raw, b.best.Transformed()
}

// Best returns the best candidate found so far.
func (b *base) Best() *candidate.Candidate { return b.best }

// Exhausted is false for open-ended algorithms; the scan overrides it.
func (b *base) Exhausted() bool { return false }

// Finalize is a no-op unless an algorithm holds resources.
func (b *base) Finalize() error { return nil }
