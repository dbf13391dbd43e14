// ABOUTME: Evolutionary algorithm with mu/lambda parent-child dynamics
// ABOUTME: Duplication schemes, amalgamation, elitist survivor selection

package optimizer

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"geneva/candidate"
	"geneva/config"
	"geneva/executor"
)

// sigmaStallFactor widens the gaussian adaptors of non-elite parents when
// the run stalls, trading exploitation for exploration.
const sigmaStallFactor = 1.25

// EA is the evolutionary algorithm: mu parents produce lambda children per
// generation; the best mu of parents and children survive.
type EA struct {
	parChild
}

// NewEA builds the algorithm around a template candidate.
func NewEA(opts *config.Shared, engine *executor.Engine, template *candidate.Candidate, seed uint64, logger *zap.Logger) *EA {
	return &EA{parChild: parChild{base: newBase(opts, engine, template, seed, logger)}}
}

// Mnemonic implements Algorithm.
func (e *EA) Mnemonic() string { return "ea" }

// Init implements Algorithm.
func (e *EA) Init() error {
	return e.initParChild(func() candidate.Personality { return candidate.NewEAPersonality() })
}

// Amalgamations returns how many children were produced by combining two
// parents instead of cloning one.
func (e *EA) Amalgamations() uint64 { return e.amalgamations }

// CycleLogic implements Algorithm. The first generation evaluates the
// whole random population; later generations reproduce, evaluate children
// and select survivors.
func (e *EA) CycleLogic(ctx context.Context) (float64, float64, error) {
	if e.iteration == 0 {
		if err := e.evaluateAll(ctx); err != nil {
			return 0, 0, err
		}
	} else {
		err := e.reproduce(func(c *candidate.Candidate, parentID, peerID, position int) {
			traits := candidate.NewEAPersonality()
			traits.ParentID = parentID
			traits.AmalgamationPeerID = peerID
			traits.PopulationPosition = position
			c.SetPersonality(traits)
		})
		if err != nil {
			return 0, 0, err
		}

		if err := e.evaluateChildren(ctx); err != nil {
			return 0, 0, err
		}
	}

	e.selectSurvivors()
	e.updateBest(e.population[0])
	e.iteration++

	raw, transformed := e.bestFitness()

	return raw, transformed, nil
}

// selectSurvivors sorts parents and children together by transformed
// fitness and promotes the best mu into the parent slots. The sort is
// stable, so ties keep their original positions, and the best parent can
// never be displaced by an equal child.
func (e *EA) selectSurvivors() {
	slices.SortStableFunc(e.population, func(a, b *candidate.Candidate) int {
		ra, rb := rankFitness(a), rankFitness(b)
		if ra < rb {
			return -1
		}

		if ra > rb {
			return 1
		}

		return 0
	})

	for i, c := range e.population {
		traits, err := c.EA()
		if err != nil {
			continue
		}

		traits.PopulationPosition = i

		if i < e.mu {
			traits.MarkParent()
		} else {
			traits.MarkChild()
		}
	}
}

// ActOnStalls implements Algorithm: the adaptors of all parents except the
// elite one are widened so children explore further afield.
func (e *EA) ActOnStalls() error {
	for i := 1; i < e.mu && i < len(e.population); i++ {
		e.population[i].Parameters().ScaleSigma(sigmaStallFactor)
	}

	e.logger.Debug("widened parent adaptors after stall",
		zap.Uint32("iteration", e.iteration),
		zap.Int("parents", e.mu-1))

	return nil
}
