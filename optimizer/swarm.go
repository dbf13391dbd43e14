// ABOUTME: Particle swarm with neighborhoods, velocity updates and repair
// ABOUTME: Local and global bests held as deep-cloned snapshots

package optimizer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"geneva/candidate"
	"geneva/config"
	"geneva/executor"
)

// Swarm partitions the population into neighborhoods of particles that
// share a local best. Each particle moves under its neighborhood's and the
// swarm's best positions.
type Swarm struct {
	base

	n int // neighborhoods
	k int // members per neighborhood

	localBests []*candidate.Candidate
}

// NewSwarm builds the algorithm around a template candidate.
func NewSwarm(opts *config.Shared, engine *executor.Engine, template *candidate.Candidate, seed uint64, logger *zap.Logger) *Swarm {
	return &Swarm{base: newBase(opts, engine, template, seed, logger)}
}

// Mnemonic implements Algorithm.
func (s *Swarm) Mnemonic() string { return "swarm" }

// Init implements Algorithm.
func (s *Swarm) Init() error {
	opts := s.opts.Get()
	if err := opts.Validate(); err != nil {
		return err
	}

	s.n = opts.NNeighborhoods
	s.k = opts.NNeighborhoodMembers
	s.localBests = make([]*candidate.Candidate, s.n)

	dim := len(s.template.Parameters().Floats)
	if dim == 0 {
		return fmt.Errorf("%w: swarm needs float parameters", config.ErrConfigInvalid)
	}

	s.population = make([]*candidate.Candidate, 0, s.n*s.k)

	for nb := range s.n {
		for range s.k {
			s.population = append(s.population, s.newParticle(nb, opts))
		}
	}

	return nil
}

// newParticle spawns a randomly placed particle assigned to neighborhood
// nb.
func (s *Swarm) newParticle(nb int, opts config.Options) *candidate.Candidate {
	c := s.spawn()

	traits := candidate.NewSwarmPersonality(len(c.Parameters().Floats))
	traits.NeighborhoodID = nb
	traits.CLocal = config.Coeff(opts.CLocal)
	traits.CGlobal = config.Coeff(opts.CGlobal)
	traits.CDelta = config.Coeff(opts.CDelta)
	c.SetPersonality(traits)

	return c
}

// sampleCoeff draws a coefficient: fixed ranges return their value,
// proper ranges are resampled uniformly on every call.
func sampleCoeff(r candidate.CoeffRange, rng *rand.Rand) float64 {
	if r.Lo == r.Hi {
		return r.Lo
	}

	return r.Lo + rng.Float64()*(r.Hi-r.Lo)
}

// CycleLogic implements Algorithm: move particles (except on the very
// first iteration, which just seeds the bests), evaluate the whole swarm,
// then refresh local and global bests and repair the neighborhoods.
func (s *Swarm) CycleLogic(ctx context.Context) (float64, float64, error) {
	if s.iteration > 0 {
		s.moveParticles()
	}

	if _, err := s.evaluate(ctx, s.population); err != nil {
		return 0, 0, err
	}

	s.refreshBests()
	s.repairNeighborhoods()
	s.iteration++

	raw, transformed := s.bestFitness()

	return raw, transformed, nil
}

// moveParticles applies the velocity update to every particle that is not
// sitting out a one-shot suppression.
func (s *Swarm) moveParticles() {
	for _, c := range s.population {
		traits, err := c.Swarm()
		if err != nil {
			continue
		}

		nb := traits.NeighborhoodID
		if nb < 0 || nb >= len(s.localBests) || s.localBests[nb] == nil || s.best == nil {
			continue
		}

		traits.RegisterLocalBest(s.localBests[nb])
		traits.RegisterGlobalBest(s.best)

		if traits.CheckNoPositionUpdateAndReset() {
			continue
		}

		s.updatePosition(c, traits)
	}
}

// updatePosition performs one velocity step:
//
//	v <- cDelta*v + cLocal*U(0,1)*(localBest - x) + cGlobal*U(0,1)*(globalBest - x)
//	x <- clamp(x + v)
//
// with per-coordinate uniform draws.
func (s *Swarm) updatePosition(c *candidate.Candidate, traits *candidate.SwarmPersonality) {
	cLocal := sampleCoeff(traits.CLocal, s.rng)
	cGlobal := sampleCoeff(traits.CGlobal, s.rng)
	cDelta := sampleCoeff(traits.CDelta, s.rng)

	x := c.Parameters().FloatValues()
	v := traits.Velocity
	local := traits.LocalBest.Floats
	global := traits.GlobalBest.Floats

	for i := range x {
		v[i] = cDelta*v[i] +
			cLocal*s.rng.Float64()*(local[i]-x[i]) +
			cGlobal*s.rng.Float64()*(global[i]-x[i])
	}

	floats.Add(x, v)

	// AssignFloatValues clamps to the declared parameter bounds.
	if err := c.AssignFloatValues(x); err != nil {
		s.logger.Warn("position update failed", zap.Error(err))
	}
}

// refreshBests updates each neighborhood's local best and the global best
// from this generation's results. Bests only ever improve.
func (s *Swarm) refreshBests() {
	for nb := range s.n {
		best := s.neighborhoodBest(nb)
		if best == nil {
			continue
		}

		if s.localBests[nb] == nil || rankFitness(best) < rankFitness(s.localBests[nb]) {
			s.localBests[nb] = best.Clone()
		}
	}

	for _, lb := range s.localBests {
		if lb != nil {
			s.updateBest(lb)
		}
	}
}

// neighborhoodBest finds the best processed particle of neighborhood nb.
func (s *Swarm) neighborhoodBest(nb int) *candidate.Candidate {
	var best *candidate.Candidate

	for _, c := range s.population {
		traits, err := c.Swarm()
		if err != nil || traits.NeighborhoodID != nb {
			continue
		}

		if best == nil || rankFitness(c) < rankFitness(best) {
			best = c
		}
	}

	return best
}

// repairNeighborhoods restores every neighborhood to exactly k members:
// surplus particles are erased worst-first, missing slots are filled with
// randomized clones of the neighborhood best that skip one velocity step
// so the newcomer gets a free evaluation.
func (s *Swarm) repairNeighborhoods() {
	byNeighborhood := make([][]*candidate.Candidate, s.n)

	for _, c := range s.population {
		traits, err := c.Swarm()
		if err != nil {
			continue
		}

		nb := traits.NeighborhoodID
		if nb < 0 || nb >= s.n {
			continue
		}

		byNeighborhood[nb] = append(byNeighborhood[nb], c)
	}

	rebuilt := make([]*candidate.Candidate, 0, s.n*s.k)

	for nb, members := range byNeighborhood {
		slices.SortStableFunc(members, func(a, b *candidate.Candidate) int {
			ra, rb := rankFitness(a), rankFitness(b)
			if ra < rb {
				return -1
			}

			if ra > rb {
				return 1
			}

			return 0
		})

		if len(members) > s.k {
			members = members[:s.k]
		}

		for len(members) < s.k {
			fresh := s.freshParticle(nb, members)
			members = append(members, fresh)
		}

		rebuilt = append(rebuilt, members...)
	}

	s.population = rebuilt
}

// freshParticle clones the neighborhood's best (or spawns from the
// template when the neighborhood is empty), randomizes it and arms the
// one-shot position-update suppression.
func (s *Swarm) freshParticle(nb int, members []*candidate.Candidate) *candidate.Candidate {
	var fresh *candidate.Candidate
	if len(members) > 0 {
		fresh = members[0].Clone()
		fresh.RandomInit(s.rng)
	} else {
		fresh = s.newParticle(nb, s.opts.Get())
	}

	traits, err := fresh.Swarm()
	if err == nil {
		traits.NeighborhoodID = nb
		traits.SetNoPositionUpdate()
	}

	return fresh
}

// ActOnStalls implements Algorithm: randomize the worst particle of every
// neighborhood to reseed diversity.
func (s *Swarm) ActOnStalls() error {
	for nb := range s.n {
		var worst *candidate.Candidate

		for _, c := range s.population {
			traits, err := c.Swarm()
			if err != nil || traits.NeighborhoodID != nb {
				continue
			}

			if worst == nil || rankFitness(c) > rankFitness(worst) {
				worst = c
			}
		}

		if worst == nil {
			continue
		}

		worst.RandomInit(s.rng)

		if traits, err := worst.Swarm(); err == nil {
			traits.SetNoPositionUpdate()
		}
	}

	return nil
}
