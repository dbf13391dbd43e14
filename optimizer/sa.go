// ABOUTME: Simulated annealing over the mu/lambda reproduction cycle
// ABOUTME: Metropolis acceptance with per-iteration temperature decay

package optimizer

import (
	"context"
	"math"
	"slices"

	"go.uber.org/zap"

	"geneva/candidate"
	"geneva/config"
	"geneva/executor"
)

// SA is simulated annealing: children are produced like in the
// evolutionary algorithm, but a worse child may still replace its paired
// parent with probability exp(-dE/T), where T decays every iteration.
type SA struct {
	parChild

	temperature float64
	alpha       float64
}

// NewSA builds the algorithm around a template candidate.
func NewSA(opts *config.Shared, engine *executor.Engine, template *candidate.Candidate, seed uint64, logger *zap.Logger) *SA {
	return &SA{parChild: parChild{base: newBase(opts, engine, template, seed, logger)}}
}

// Mnemonic implements Algorithm.
func (s *SA) Mnemonic() string { return "sa" }

// Init implements Algorithm.
func (s *SA) Init() error {
	if err := s.initParChild(func() candidate.Personality { return candidate.NewSAPersonality() }); err != nil {
		return err
	}

	opts := s.opts.Get()
	s.temperature = opts.StartTemp
	s.alpha = opts.Alpha

	return nil
}

// Temperature returns the current annealing temperature.
func (s *SA) Temperature() float64 { return s.temperature }

// CycleLogic implements Algorithm.
func (s *SA) CycleLogic(ctx context.Context) (float64, float64, error) {
	if s.iteration == 0 {
		if err := s.evaluateAll(ctx); err != nil {
			return 0, 0, err
		}

		s.sortParents()
	} else {
		err := s.reproduce(func(c *candidate.Candidate, parentID, peerID, position int) {
			traits := candidate.NewSAPersonality()
			traits.ParentID = parentID
			traits.AmalgamationPeerID = peerID
			traits.PopulationPosition = position
			c.SetPersonality(traits)
		})
		if err != nil {
			return 0, 0, err
		}

		if err := s.evaluateChildren(ctx); err != nil {
			return 0, 0, err
		}

		s.anneal()
	}

	s.updateBest(s.population[0])
	s.iteration++

	raw, transformed := s.bestFitness()

	return raw, transformed, nil
}

// anneal pairs each child with a parent slot and applies the Metropolis
// acceptance test, then cools the temperature.
func (s *SA) anneal() {
	for i, child := range s.children() {
		if child.Dirty() || child.State() == candidate.ProcessingError {
			continue
		}

		parentIdx := i % s.mu
		parent := s.population[parentIdx]

		// Transformed fitness is maximize-normalized, so dE > 0 means
		// the child is worse.
		dE := child.Transformed() - parent.Transformed()

		accept := dE <= 0
		if !accept && s.temperature > 0 {
			accept = s.rng.Float64() < math.Exp(-dE/s.temperature)
		}

		if accept {
			parent.LoadFrom(child)
		}
	}

	s.sortParents()
	s.temperature *= s.alpha
}

// sortParents keeps the parent slots ordered best-first.
func (s *SA) sortParents() {
	parents := s.population[:s.mu]

	slices.SortStableFunc(parents, func(a, b *candidate.Candidate) int {
		ra, rb := rankFitness(a), rankFitness(b)
		if ra < rb {
			return -1
		}

		if ra > rb {
			return 1
		}

		return 0
	})

	for i, c := range s.population {
		traits, err := c.SA()
		if err != nil {
			continue
		}

		traits.PopulationPosition = i

		if i < s.mu {
			traits.MarkParent()
		}
	}
}

// ActOnStalls implements Algorithm: reheat slightly so the acceptance
// test regains mobility.
func (s *SA) ActOnStalls() error {
	s.temperature /= s.alpha

	s.logger.Debug("reheated after stall",
		zap.Uint32("iteration", s.iteration),
		zap.Float64("temperature", s.temperature))

	return nil
}
