// ABOUTME: Candidate solution with cached fitness, processing state and id
// ABOUTME: The work item shipped between optimization algorithms and consumers

package candidate

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// ProcessingState tracks where a candidate stands in the raw -> processed
// pipeline. A candidate enters a generation as DoProcess and must leave as
// Processed or ProcessingError.
type ProcessingState int

const (
	Ignore ProcessingState = iota
	DoProcess
	Processed
	ProcessingError
)

// String returns the state name for diagnostics.
func (s ProcessingState) String() string {
	switch s {
	case Ignore:
		return "IGNORE"
	case DoProcess:
		return "DO_PROCESS"
	case Processed:
		return "PROCESSED"
	case ProcessingError:
		return "ERROR"
	default:
		return fmt.Sprintf("ProcessingState(%d)", int(s))
	}
}

// CourtierID pairs a returned work item with its submission slot. Position
// is the index inside the submitted generation; Attempt distinguishes
// resubmissions so that late results from an earlier attempt are discarded.
type CourtierID struct {
	PortID   uint64
	Position int
	Attempt  int
}

// Candidate is one point in parameter space, carrying parameters, a cached
// fitness and the personality scratch of the algorithm that owns it.
type Candidate struct {
	params *ParameterSet

	state      ProcessingState
	dirty      bool
	serverMode bool
	maximize   bool

	primary    float64
	secondary  []float64
	nSecondary int

	adaptionCount uint64

	// Mirrored from the owning algorithm for the evaluator's convenience.
	AssignedIteration uint32
	NStalls           uint32
	BestKnownFitness  float64

	EvaluatorName string
	Courtier      CourtierID

	personality Personality
}

// New builds a dirty, unevaluated candidate over the given parameter set,
// bound to a registered evaluator name.
func New(params *ParameterSet, evaluatorName string) *Candidate {
	return &Candidate{
		params:        params,
		dirty:         true,
		state:         Ignore,
		EvaluatorName: evaluatorName,
	}
}

// Parameters exposes the underlying parameter set.
func (c *Candidate) Parameters() *ParameterSet { return c.params }

// Clone returns a deep copy including cached fitness, bookkeeping and
// personality.
func (c *Candidate) Clone() *Candidate {
	cp := &Candidate{
		params:            c.params.Clone(),
		state:             c.state,
		dirty:             c.dirty,
		serverMode:        c.serverMode,
		maximize:          c.maximize,
		primary:           c.primary,
		secondary:         slices.Clone(c.secondary),
		nSecondary:        c.nSecondary,
		adaptionCount:     c.adaptionCount,
		AssignedIteration: c.AssignedIteration,
		NStalls:           c.NStalls,
		BestKnownFitness:  c.BestKnownFitness,
		EvaluatorName:     c.EvaluatorName,
		Courtier:          c.Courtier,
	}

	if c.personality != nil {
		cp.personality = c.personality.Clone()
	}

	return cp
}

// LoadFrom deep-copies peer state into this candidate. Self-assignment is a
// no-op; the receiver keeps its identity (ownership never swaps).
func (c *Candidate) LoadFrom(peer *Candidate) {
	if c == peer {
		return
	}

	c.params.LoadFrom(peer.params)
	c.state = peer.state
	c.dirty = peer.dirty
	c.serverMode = peer.serverMode
	c.maximize = peer.maximize
	c.primary = peer.primary
	c.secondary = slices.Clone(peer.secondary)
	c.nSecondary = peer.nSecondary
	c.adaptionCount = peer.adaptionCount
	c.AssignedIteration = peer.AssignedIteration
	c.NStalls = peer.NStalls
	c.BestKnownFitness = peer.BestKnownFitness
	c.EvaluatorName = peer.EvaluatorName
	c.Courtier = peer.Courtier

	if peer.personality != nil {
		c.personality = peer.personality.Clone()
	} else {
		c.personality = nil
	}
}

// State returns the processing state.
func (c *Candidate) State() ProcessingState { return c.state }

// MarkForProcessing flags the candidate for the next generation's
// evaluation round.
func (c *Candidate) MarkForProcessing() { c.state = DoProcess }

// MarkProcessingError flags a failure detected outside Process, e.g. a
// worker that recovered a panic while evaluating the item.
func (c *Candidate) MarkProcessingError() { c.state = ProcessingError }

// Dirty reports whether the parameters changed since the last evaluation.
// Dirty fitness values are stale and not comparable.
func (c *Candidate) Dirty() bool { return c.dirty }

// Maximize reports the optimization direction.
func (c *Candidate) Maximize() bool { return c.maximize }

// SetMaximize sets the optimization direction, which drives every
// is-better-than comparison.
func (c *Candidate) SetMaximize(maximize bool) { c.maximize = maximize }

// SetServerMode gates re-evaluation through Fitness and returns the
// previous setting. The submission engine turns it on while the candidate
// is queued and restores it after the item is processed.
func (c *Candidate) SetServerMode(on bool) bool {
	prev := c.serverMode
	c.serverMode = on

	return prev
}

// ServerMode reports whether re-evaluation through Fitness is forbidden.
func (c *Candidate) ServerMode() bool { return c.serverMode }

// RegisterSecondaryCount pins the number of secondary fitness values the
// evaluator is expected to produce.
func (c *Candidate) RegisterSecondaryCount(n int) { c.nSecondary = n }

// SecondaryCount returns the registered secondary fitness count.
func (c *Candidate) SecondaryCount() int { return c.nSecondary }

// Adapt invokes the parameter mutations and marks the candidate dirty.
// The adaption counter feeds adaptors that vary their own strength.
func (c *Candidate) Adapt(rng *rand.Rand) {
	touched := c.params.adapt(rng)
	c.adaptionCount += uint64(touched)
	c.dirty = true
}

// RandomInit re-draws all parameters and marks the candidate dirty.
func (c *Candidate) RandomInit(rng *rand.Rand) {
	c.params.RandomInit(rng)
	c.dirty = true
}

// AdaptionCount returns the total number of parameter mutations performed.
func (c *Candidate) AdaptionCount() uint64 { return c.adaptionCount }

// AssignFloatValues writes a new float position and marks the candidate
// dirty, since the cached fitness no longer describes the parameters.
func (c *Candidate) AssignFloatValues(values []float64) error {
	if err := c.params.AssignFloatValues(values); err != nil {
		return err
	}

	c.dirty = true

	return nil
}

// Amalgamate mixes this candidate's parameters with a peer's by uniform
// crossover: every coordinate is drawn from one of the two sources with
// equal probability. The result is dirty.
func (c *Candidate) Amalgamate(peer *Candidate, rng *rand.Rand) error {
	if !c.params.equalShape(peer.params) {
		return fmt.Errorf("%w: amalgamation partners have different parameter shapes", ErrShapeMismatch)
	}

	for i := range c.params.Floats {
		if rng.Uint32()&1 == 0 {
			c.params.Floats[i] = peer.params.Floats[i]
		}
	}

	for i := range c.params.Ints {
		if rng.Uint32()&1 == 0 {
			c.params.Ints[i] = peer.params.Ints[i]
		}
	}

	for i := range c.params.Bools {
		if rng.Uint32()&1 == 0 {
			c.params.Bools[i] = peer.params.Bools[i]
		}
	}

	c.dirty = true

	return nil
}

// Fitness returns the cached fitness with index id (0 is primary, 1..n are
// the secondary values). A dirty candidate is evaluated and cached first,
// unless server mode forbids it.
func (c *Candidate) Fitness(id int) (float64, error) {
	if c.dirty {
		if c.serverMode {
			return 0, fmt.Errorf("%w (evaluator %q)", ErrEvaluationForbidden, c.EvaluatorName)
		}

		if err := c.evaluate(); err != nil {
			return 0, err
		}
	}

	return c.fitnessAt(id)
}

// fitnessAt reads the cached value without any staleness checks.
func (c *Candidate) fitnessAt(id int) (float64, error) {
	if id == 0 {
		return c.primary, nil
	}

	if id < 0 || id > len(c.secondary) {
		return 0, fmt.Errorf("%w: fitness id %d, have %d secondary values", ErrShapeMismatch, id, len(c.secondary))
	}

	return c.secondary[id-1], nil
}

// Raw returns the cached primary fitness without evaluating. The second
// return is false while the candidate is dirty.
func (c *Candidate) Raw() (float64, bool) {
	return c.primary, !c.dirty
}

// Secondary returns a copy of the cached secondary fitness vector.
func (c *Candidate) Secondary() []float64 { return slices.Clone(c.secondary) }

// Process force-evaluates the candidate regardless of server mode. It is
// the single entry point used by consumers. On success the state becomes
// Processed; on failure it becomes ProcessingError and the error is
// returned so the collector sees it.
func (c *Candidate) Process() error {
	if err := c.evaluate(); err != nil {
		c.state = ProcessingError

		return err
	}

	c.state = Processed

	return nil
}

// evaluate runs the registered evaluator and fills the fitness cache.
func (c *Candidate) evaluate() error {
	fn, err := LookupEvaluator(c.EvaluatorName)
	if err != nil {
		return err
	}

	primary, secondary, err := fn(c.params)
	if err != nil {
		return fmt.Errorf("evaluator %q: %w", c.EvaluatorName, err)
	}

	if len(secondary) != c.nSecondary {
		return fmt.Errorf("%w: evaluator %q produced %d secondary values, %d registered",
			ErrShapeMismatch, c.EvaluatorName, len(secondary), c.nSecondary)
	}

	c.primary = primary
	c.secondary = slices.Clone(secondary)
	c.dirty = false

	return nil
}

// SetFitness assigns externally computed fitness values, e.g. from a remote
// worker's result payload, and clears the dirty flag.
func (c *Candidate) SetFitness(primary float64, secondary []float64) error {
	if len(secondary) != c.nSecondary {
		return fmt.Errorf("%w: got %d secondary values, %d registered", ErrShapeMismatch, len(secondary), c.nSecondary)
	}

	c.primary = primary
	c.secondary = slices.Clone(secondary)
	c.dirty = false

	return nil
}

// Transformed returns the maximize-normalized primary fitness: lower is
// always better, regardless of direction. Reading it from a dirty candidate
// is a contract violation; callers compare only processed candidates.
func (c *Candidate) Transformed() float64 {
	if c.maximize {
		return -c.primary
	}

	return c.primary
}

// IsBetterThan compares transformed fitness against a peer.
func (c *Candidate) IsBetterThan(peer *Candidate) bool {
	return c.Transformed() < peer.Transformed()
}

// Compare checks structural equality against a peer within a floating
// tolerance, recursing through the parameter vectors. It returns nil when
// the candidates match and a descriptive error on the first mismatch.
func (c *Candidate) Compare(peer *Candidate, tolerance float64) error {
	if !c.params.equalShape(peer.params) {
		return fmt.Errorf("%w: parameter vector shapes differ", ErrShapeMismatch)
	}

	for i := range c.params.Floats {
		if math.Abs(c.params.Floats[i]-peer.params.Floats[i]) > tolerance {
			return fmt.Errorf("float parameter %d differs: %v vs %v", i, c.params.Floats[i], peer.params.Floats[i])
		}
	}

	for i := range c.params.Ints {
		if c.params.Ints[i] != peer.params.Ints[i] {
			return fmt.Errorf("int parameter %d differs: %d vs %d", i, c.params.Ints[i], peer.params.Ints[i])
		}
	}

	for i := range c.params.Bools {
		if c.params.Bools[i] != peer.params.Bools[i] {
			return fmt.Errorf("bool parameter %d differs: %t vs %t", i, c.params.Bools[i], peer.params.Bools[i])
		}
	}

	if c.dirty != peer.dirty {
		return fmt.Errorf("dirty flags differ: %t vs %t", c.dirty, peer.dirty)
	}

	if !c.dirty {
		if math.Abs(c.primary-peer.primary) > tolerance {
			return fmt.Errorf("primary fitness differs: %v vs %v", c.primary, peer.primary)
		}

		if len(c.secondary) != len(peer.secondary) {
			return fmt.Errorf("%w: secondary fitness lengths differ", ErrShapeMismatch)
		}

		for i := range c.secondary {
			if math.Abs(c.secondary[i]-peer.secondary[i]) > tolerance {
				return fmt.Errorf("secondary fitness %d differs: %v vs %v", i, c.secondary[i], peer.secondary[i])
			}
		}
	}

	if c.maximize != peer.maximize {
		return fmt.Errorf("maximize flags differ: %t vs %t", c.maximize, peer.maximize)
	}

	return nil
}
