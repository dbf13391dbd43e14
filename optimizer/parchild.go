// ABOUTME: Shared mu/lambda parent-child reproduction for EA and SA
// ABOUTME: Duplication schemes, amalgamation, child adaptation

package optimizer

import (
	"context"
	"fmt"
	"math"

	"geneva/candidate"
	"geneva/config"
)

// parChild implements the reproduction cycle shared by the evolutionary
// algorithm and simulated annealing: mu parents at positions [0, mu) kept
// best-first, lambda children at [mu, mu+lambda).
type parChild struct {
	base

	mu     int
	lambda int

	scheme      string
	pAmalgamate float64

	amalgamations uint64 // total amalgamate invocations, for diagnostics
}

// initParChild validates the mu/lambda split and builds the initial
// random population.
func (p *parChild) initParChild(makeTraits func() candidate.Personality) error {
	opts := p.opts.Get()
	if err := opts.Validate(); err != nil {
		return err
	}

	p.mu = opts.NParents
	p.lambda = opts.Size - opts.NParents

	if p.lambda < 1 {
		return fmt.Errorf("%w: size %d leaves no children for %d parents", config.ErrConfigInvalid, opts.Size, p.mu)
	}

	p.scheme = opts.RecombinationScheme
	if p.scheme == "default" {
		p.scheme = "value"
	}

	p.pAmalgamate = opts.AmalgamationLikelihood

	p.population = make([]*candidate.Candidate, opts.Size)
	for i := range p.population {
		c := p.spawn()
		traits := makeTraits()
		c.SetPersonality(traits)
		p.population[i] = c
	}

	return nil
}

// selectParentIndex picks a parent slot according to the duplication
// scheme. The value scheme weights parent i proportionally to 1/(i+2) and
// only engages from iteration 1 onward, when parents carry comparable
// fitness; iteration 0 falls back to uniform choice.
func (p *parChild) selectParentIndex() int {
	if p.scheme != "value" || p.iteration == 0 {
		return p.rng.IntN(p.mu)
	}

	total := 0.0
	for i := range p.mu {
		total += 1.0 / float64(i+2)
	}

	pick := p.rng.Float64() * total
	for i := range p.mu {
		pick -= 1.0 / float64(i+2)
		if pick <= 0 {
			return i
		}
	}

	return p.mu - 1
}

// reproduce fills the child slots from the current parents: cloning with a
// duplication scheme, or amalgamating two distinct parents with the
// configured likelihood. Every child is adapted and marked for
// processing.
func (p *parChild) reproduce(setChildTraits func(c *candidate.Candidate, parentID, peerID, position int)) error {
	for pos := p.mu; pos < p.mu+p.lambda; pos++ {
		parentIdx := p.selectParentIndex()
		peerIdx := -1

		child := p.population[parentIdx].Clone()

		if p.pAmalgamate > 0 && p.rng.Float64() < p.pAmalgamate && p.mu > 1 {
			peerIdx = p.rng.IntN(p.mu - 1)
			if peerIdx >= parentIdx {
				peerIdx++
			}

			if err := child.Amalgamate(p.population[peerIdx], p.rng); err != nil {
				return err
			}

			p.amalgamations++
		}

		child.Adapt(p.rng)
		setChildTraits(child, parentIdx, peerIdx, pos)
		p.population[pos] = child
	}

	return nil
}

// children returns the child slice of the population.
func (p *parChild) children() []*candidate.Candidate {
	return p.population[p.mu : p.mu+p.lambda]
}

// rankFitness orders processed candidates by transformed fitness; dirty
// or failed candidates sort last.
func rankFitness(c *candidate.Candidate) float64 {
	if c.Dirty() || c.State() == candidate.ProcessingError {
		return math.Inf(1)
	}

	return c.Transformed()
}

// evaluateAll ships the whole population through the executor. Used for
// the very first generation, where parents are still unevaluated.
func (p *parChild) evaluateAll(ctx context.Context) error {
	_, err := p.evaluate(ctx, p.population)

	return err
}

// evaluateChildren ships only the child slots.
func (p *parChild) evaluateChildren(ctx context.Context) error {
	_, err := p.evaluate(ctx, p.children())

	return err
}
