// ABOUTME: Gradient descent over the float parameters of a candidate
// ABOUTME: Central finite differences evaluated through the broker fabric

package optimizer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"geneva/candidate"
	"geneva/config"
	"geneva/executor"
)

// GradientDescent follows the numeric gradient of the objective. Every
// iteration evaluates the baseline point plus two probes per coordinate,
// all shipped through the same submission fabric as the population
// algorithms.
type GradientDescent struct {
	base

	stepSize   float64
	finiteStep float64

	position []float64
}

// NewGradientDescent builds the algorithm around a template candidate.
func NewGradientDescent(opts *config.Shared, engine *executor.Engine, template *candidate.Candidate, seed uint64, logger *zap.Logger) *GradientDescent {
	return &GradientDescent{base: newBase(opts, engine, template, seed, logger)}
}

// Mnemonic implements Algorithm.
func (g *GradientDescent) Mnemonic() string { return "gd" }

// Init implements Algorithm.
func (g *GradientDescent) Init() error {
	opts := g.opts.Get()
	if err := opts.Validate(); err != nil {
		return err
	}

	if len(g.template.Parameters().Floats) == 0 {
		return fmt.Errorf("%w: gradient descent needs float parameters", config.ErrConfigInvalid)
	}

	g.stepSize = opts.GDStepSize
	g.finiteStep = opts.GDFiniteStep

	start := g.spawn()
	g.position = start.Parameters().FloatValues()

	return nil
}

// CycleLogic implements Algorithm: evaluate baseline and probes, estimate
// the gradient by central differences and take one descent step.
func (g *GradientDescent) CycleLogic(ctx context.Context) (float64, float64, error) {
	dim := len(g.position)
	batch := make([]*candidate.Candidate, 0, 1+2*dim)

	batch = append(batch, g.probe(g.position, -1, 0))

	for k := range dim {
		plus := floats.AddTo(make([]float64, dim), g.position, g.unit(k, g.finiteStep))
		minus := floats.AddTo(make([]float64, dim), g.position, g.unit(k, -g.finiteStep))

		batch = append(batch, g.probe(plus, k, +1), g.probe(minus, k, -1))
	}

	g.population = batch

	if _, err := g.evaluate(ctx, batch); err != nil {
		return 0, 0, err
	}

	g.updateBest(batch[0])

	gradient := make([]float64, dim)

	for k := range dim {
		fPlus := rankFitness(batch[1+2*k])
		fMinus := rankFitness(batch[2+2*k])
		gradient[k] = (fPlus - fMinus) / (2 * g.finiteStep)
	}

	// Descend along the transformed fitness, which is minimize-normalized
	// for both directions.
	floats.AddScaled(g.position, -g.stepSize, gradient)

	// Respect the declared parameter bounds at the new point.
	next := g.template.Clone()
	if err := next.AssignFloatValues(g.position); err != nil {
		return 0, 0, err
	}

	g.position = next.Parameters().FloatValues()
	g.iteration++

	raw, transformed := g.bestFitness()

	return raw, transformed, nil
}

// probe builds a candidate at position x with gradient-descent traits.
func (g *GradientDescent) probe(x []float64, coordinate, direction int) *candidate.Candidate {
	c := g.template.Clone()

	if err := c.AssignFloatValues(x); err != nil {
		g.logger.Warn("probe position rejected", zap.Error(err))
	}

	traits := candidate.NewGDPersonality()
	traits.Coordinate = coordinate
	traits.Direction = direction
	c.SetPersonality(traits)

	return c
}

// unit returns h times the k-th unit vector.
func (g *GradientDescent) unit(k int, h float64) []float64 {
	u := make([]float64, len(g.position))
	u[k] = h

	return u
}

// ActOnStalls implements Algorithm: shrink the step size, the usual
// response to oscillation around a minimum.
func (g *GradientDescent) ActOnStalls() error {
	g.stepSize /= 2

	g.logger.Debug("halved gradient step",
		zap.Uint32("iteration", g.iteration),
		zap.Float64("step", g.stepSize))

	return nil
}
