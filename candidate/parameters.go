// ABOUTME: Parameter set with typed value vectors, bounds and adaptors
// ABOUTME: Provides streamline access, random init and mutation for candidates

package candidate

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// FloatRange is an inclusive [Lo, Hi] bound for one float coordinate.
type FloatRange struct {
	Lo float64
	Hi float64
}

// Clamp clips x into the range.
func (r FloatRange) Clamp(x float64) float64 {
	if x < r.Lo {
		return r.Lo
	}

	if x > r.Hi {
		return r.Hi
	}

	return x
}

// IntRange is an inclusive [Lo, Hi] bound for one integer coordinate.
type IntRange struct {
	Lo int32
	Hi int32
}

// Clamp clips x into the range.
func (r IntRange) Clamp(x int32) int32 {
	if x < r.Lo {
		return r.Lo
	}

	if x > r.Hi {
		return r.Hi
	}

	return x
}

// Adaptors holds the mutation strengths applied by Adapt. The gaussian
// sigma adapts itself log-normally with rate SigmaSigma, so selection
// pressure tunes the step size along with the parameters. Sigma may also
// be rescaled explicitly when an algorithm reacts to stalls.
type Adaptors struct {
	FloatSigma   float64 // stddev of the gaussian float perturbation
	SigmaSigma   float64 // log-normal self-adaption rate of FloatSigma
	SigmaMin     float64
	SigmaMax     float64
	FloatProb    float64 // per-coordinate adaption probability
	IntStep      int32   // maximum absolute integer step
	IntProb      float64 // per-coordinate adaption probability
	BoolFlipProb float64 // per-coordinate flip probability
}

// DefaultAdaptors returns moderate mutation strengths suitable for the
// demo problems.
func DefaultAdaptors() Adaptors {
	return Adaptors{
		FloatSigma:   0.5,
		SigmaSigma:   0.3,
		SigmaMin:     1e-10,
		SigmaMax:     2.0,
		FloatProb:    1.0,
		IntStep:      1,
		IntProb:      1.0,
		BoolFlipProb: 0.05,
	}
}

// ParameterSet is the ordered parameter collection of one candidate,
// flattened into three typed value vectors. Optimization algorithms treat
// it as opaque except through the streamline accessors.
type ParameterSet struct {
	Floats      []float64
	FloatBounds []FloatRange
	Ints        []int32
	IntBounds   []IntRange
	Bools       []bool

	Adapt Adaptors
}

// NewFloatParameterSet builds a parameter set of dim float coordinates,
// all bounded by the same range.
func NewFloatParameterSet(dim int, lo, hi float64) *ParameterSet {
	p := &ParameterSet{
		Floats:      make([]float64, dim),
		FloatBounds: make([]FloatRange, dim),
		Adapt:       DefaultAdaptors(),
	}

	for i := range p.FloatBounds {
		p.FloatBounds[i] = FloatRange{Lo: lo, Hi: hi}
	}

	return p
}

// Clone returns a deep copy of the parameter set.
func (p *ParameterSet) Clone() *ParameterSet {
	return &ParameterSet{
		Floats:      slices.Clone(p.Floats),
		FloatBounds: slices.Clone(p.FloatBounds),
		Ints:        slices.Clone(p.Ints),
		IntBounds:   slices.Clone(p.IntBounds),
		Bools:       slices.Clone(p.Bools),
		Adapt:       p.Adapt,
	}
}

// LoadFrom copies peer state into this parameter set.
func (p *ParameterSet) LoadFrom(peer *ParameterSet) {
	if p == peer {
		return
	}

	p.Floats = slices.Clone(peer.Floats)
	p.FloatBounds = slices.Clone(peer.FloatBounds)
	p.Ints = slices.Clone(peer.Ints)
	p.IntBounds = slices.Clone(peer.IntBounds)
	p.Bools = slices.Clone(peer.Bools)
	p.Adapt = peer.Adapt
}

// FloatValues returns a copy of the float value vector.
func (p *ParameterSet) FloatValues() []float64 {
	return slices.Clone(p.Floats)
}

// AssignFloatValues writes values back into the float vector, clamping each
// coordinate to its declared bounds.
func (p *ParameterSet) AssignFloatValues(values []float64) error {
	if len(values) != len(p.Floats) {
		return fmt.Errorf("%w: got %d float values, parameter set has %d", ErrShapeMismatch, len(values), len(p.Floats))
	}

	for i, v := range values {
		p.Floats[i] = p.FloatBounds[i].Clamp(v)
	}

	return nil
}

// IntValues returns a copy of the integer value vector.
func (p *ParameterSet) IntValues() []int32 {
	return slices.Clone(p.Ints)
}

// AssignIntValues writes values back into the integer vector, clamping each
// coordinate to its declared bounds.
func (p *ParameterSet) AssignIntValues(values []int32) error {
	if len(values) != len(p.Ints) {
		return fmt.Errorf("%w: got %d int values, parameter set has %d", ErrShapeMismatch, len(values), len(p.Ints))
	}

	for i, v := range values {
		p.Ints[i] = p.IntBounds[i].Clamp(v)
	}

	return nil
}

// RandomInit re-draws every coordinate uniformly inside its bounds.
func (p *ParameterSet) RandomInit(rng *rand.Rand) {
	for i, b := range p.FloatBounds {
		p.Floats[i] = b.Lo + rng.Float64()*(b.Hi-b.Lo)
	}

	for i, b := range p.IntBounds {
		p.Ints[i] = b.Lo + rng.Int32N(b.Hi-b.Lo+1)
	}

	for i := range p.Bools {
		p.Bools[i] = rng.Uint32()&1 == 0
	}
}

// adapt mutates the value vectors in place and returns the number of
// coordinates touched. The sigma self-adaption runs first, so the new
// step size already shapes this round of mutations.
func (p *ParameterSet) adapt(rng *rand.Rand) int {
	touched := 0

	if p.Adapt.SigmaSigma > 0 {
		p.Adapt.FloatSigma *= math.Exp(p.Adapt.SigmaSigma * rng.NormFloat64())

		if p.Adapt.SigmaMin > 0 && p.Adapt.FloatSigma < p.Adapt.SigmaMin {
			p.Adapt.FloatSigma = p.Adapt.SigmaMin
		}

		if p.Adapt.SigmaMax > 0 && p.Adapt.FloatSigma > p.Adapt.SigmaMax {
			p.Adapt.FloatSigma = p.Adapt.SigmaMax
		}
	}

	for i, b := range p.FloatBounds {
		if rng.Float64() >= p.Adapt.FloatProb {
			continue
		}

		p.Floats[i] = b.Clamp(p.Floats[i] + rng.NormFloat64()*p.Adapt.FloatSigma)
		touched++
	}

	for i, b := range p.IntBounds {
		if rng.Float64() >= p.Adapt.IntProb || p.Adapt.IntStep <= 0 {
			continue
		}

		step := 1 + rng.Int32N(p.Adapt.IntStep)
		if rng.Uint32()&1 == 0 {
			step = -step
		}

		p.Ints[i] = b.Clamp(p.Ints[i] + step)
		touched++
	}

	for i := range p.Bools {
		if rng.Float64() < p.Adapt.BoolFlipProb {
			p.Bools[i] = !p.Bools[i]
			touched++
		}
	}

	return touched
}

// ScaleSigma rescales the gaussian adaptor strength. Used when an algorithm
// re-tunes its parents after a stall.
func (p *ParameterSet) ScaleSigma(factor float64) {
	if factor <= 0 {
		return
	}

	p.Adapt.FloatSigma *= factor
}

// equalShape reports whether two parameter sets have matching vector lengths.
func (p *ParameterSet) equalShape(peer *ParameterSet) bool {
	return len(p.Floats) == len(peer.Floats) &&
		len(p.Ints) == len(peer.Ints) &&
		len(p.Bools) == len(peer.Bools)
}
