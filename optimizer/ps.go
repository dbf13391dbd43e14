// ABOUTME: Parameter scan algorithm evaluating every point of the grid
// ABOUTME: Batches grid points per iteration and halts on exhaustion

package optimizer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"geneva/candidate"
	"geneva/config"
	"geneva/executor"
)

// ParameterScan walks a finite grid (or random sampling) over selected
// parameter coordinates and reports the best point it visited.
type ParameterScan struct {
	base

	odo       *odometer
	exhausted bool
	visited   int
}

// NewParameterScan builds the algorithm around a template candidate.
func NewParameterScan(opts *config.Shared, engine *executor.Engine, template *candidate.Candidate, seed uint64, logger *zap.Logger) *ParameterScan {
	return &ParameterScan{base: newBase(opts, engine, template, seed, logger)}
}

// Mnemonic implements Algorithm.
func (p *ParameterScan) Mnemonic() string { return "ps" }

// Init implements Algorithm.
func (p *ParameterScan) Init() error {
	opts := p.opts.Get()

	if opts.ParameterOptions == "" {
		return fmt.Errorf("%w: parameter scan needs parameterOptions", config.ErrConfigInvalid)
	}

	axes, err := parseScanSpec(opts.ParameterOptions, opts.ScanRandomly, p.rng)
	if err != nil {
		return err
	}

	// Validate that every axis addresses an existing coordinate.
	params := p.template.Parameters()

	for _, a := range axes {
		var limit int

		switch a.kind {
		case 'd', 'r':
			limit = len(params.Floats)
		case 'i':
			limit = len(params.Ints)
		case 'b':
			limit = len(params.Bools)
		}

		if a.target < 0 || a.target >= limit {
			return fmt.Errorf("%w: scan axis %q targets coordinate %d, have %d", config.ErrConfigInvalid, string(a.kind), a.target, limit)
		}
	}

	p.odo = newOdometer(axes)
	p.logger.Info("parameter scan initialized", zap.Int("grid_points", p.odo.size()))

	return nil
}

// Visited returns the number of grid points evaluated so far.
func (p *ParameterScan) Visited() int { return p.visited }

// GridSize returns the total number of grid points.
func (p *ParameterScan) GridSize() int { return p.odo.size() }

// CycleLogic implements Algorithm: materialize the next batch of grid
// points, evaluate them, fold the best into the running optimum.
func (p *ParameterScan) CycleLogic(ctx context.Context) (float64, float64, error) {
	batchSize := p.opts.Get().Size

	batch := make([]*candidate.Candidate, 0, batchSize)

	for len(batch) < batchSize && !p.exhausted {
		batch = append(batch, p.pointCandidate())

		if p.odo.next() {
			p.exhausted = true
		}
	}

	if len(batch) == 0 {
		return 0, 0, nil
	}

	p.population = batch

	if _, err := p.evaluate(ctx, batch); err != nil {
		return 0, 0, err
	}

	for _, c := range batch {
		p.updateBest(c)
	}

	p.visited += len(batch)
	p.iteration++

	raw, transformed := p.bestFitness()

	return raw, transformed, nil
}

// pointCandidate materializes the odometer's current grid point.
func (p *ParameterScan) pointCandidate() *candidate.Candidate {
	c := p.template.Clone()
	params := c.Parameters()

	for i, a := range p.odo.axes {
		j := p.odo.pos[i]

		switch a.kind {
		case 'd', 'r':
			params.Floats[a.target] = a.floats[j]
		case 'i':
			params.Ints[a.target] = a.ints[j]
		case 'b':
			params.Bools[a.target] = a.bools[j]
		}
	}

	c.SetPersonality(&candidate.ScanPersonality{GridSlot: p.odo.slot})

	return c
}

// ActOnStalls implements Algorithm. A scan visits every point exactly
// once; there is nothing to re-tune.
func (p *ParameterScan) ActOnStalls() error { return nil }

// Exhausted implements Algorithm: true once the odometer has wrapped and
// the final batch was evaluated.
func (p *ParameterScan) Exhausted() bool { return p.exhausted && p.visited >= p.odo.size() }
