// ABOUTME: Per-algorithm scratch state bound to each candidate
// ABOUTME: Tagged variant over EA/SA/swarm/scan/gradient-descent kinds

package candidate

import (
	"fmt"
	"slices"
)

// Personality is the per-algorithm scratch attached to a candidate. The
// concrete type acts as the variant discriminator; algorithms inspect it
// once per generation through the typed accessors on Candidate.
type Personality interface {
	// Mnemonic is the short algorithm tag (ea, sa, swarm, ps, gd).
	Mnemonic() string
	// Clone returns a deep copy of the traits.
	Clone() Personality
}

// EAPersonality carries parent/child bookkeeping for the evolutionary
// algorithm. A ParentCounter of zero marks a child; a positive counter is
// incremented for every generation a slot remains a parent.
type EAPersonality struct {
	ParentCounter      uint32
	PopulationPosition int
	ParentID           int // -1 when unset
	AmalgamationPeerID int // -1 when the child came from a single parent
}

// NewEAPersonality returns child traits with unset parent ids.
func NewEAPersonality() *EAPersonality {
	return &EAPersonality{ParentID: -1, AmalgamationPeerID: -1}
}

// Mnemonic implements Personality.
func (p *EAPersonality) Mnemonic() string { return "ea" }

// Clone implements Personality.
func (p *EAPersonality) Clone() Personality {
	cp := *p
	return &cp
}

// IsParent reports whether the slot currently holds a parent.
func (p *EAPersonality) IsParent() bool { return p.ParentCounter > 0 }

// MarkParent increments the consecutive-parent counter.
func (p *EAPersonality) MarkParent() { p.ParentCounter++ }

// MarkChild resets the traits to child state, keeping the position.
func (p *EAPersonality) MarkChild() {
	p.ParentCounter = 0
	p.ParentID = -1
	p.AmalgamationPeerID = -1
}

// SAPersonality reuses the parent/child bookkeeping for simulated
// annealing, which shares the mu/lambda reproduction cycle.
type SAPersonality struct {
	EAPersonality
}

// NewSAPersonality returns child traits with unset parent ids.
func NewSAPersonality() *SAPersonality {
	return &SAPersonality{EAPersonality: EAPersonality{ParentID: -1, AmalgamationPeerID: -1}}
}

// Mnemonic implements Personality.
func (p *SAPersonality) Mnemonic() string { return "sa" }

// Clone implements Personality.
func (p *SAPersonality) Clone() Personality {
	cp := *p
	return &cp
}

// BestSnapshot is a read-only copy of another candidate's position and
// fitness, captured at binding time. Swarm traits hold snapshots instead of
// references into the live population, which may be reordered or resized.
type BestSnapshot struct {
	Floats      []float64
	Transformed float64
}

// CoeffRange configures a swarm coefficient: fixed when Lo == Hi, otherwise
// resampled uniformly from [Lo, Hi] on every velocity update.
type CoeffRange struct {
	Lo float64
	Hi float64
}

// Fixed builds a coefficient that never varies.
func Fixed(v float64) CoeffRange { return CoeffRange{Lo: v, Hi: v} }

// SwarmPersonality carries per-particle swarm state: neighborhood slot,
// velocity, best snapshots and the update coefficients.
type SwarmPersonality struct {
	NeighborhoodID int
	Velocity       []float64

	LocalBest  *BestSnapshot
	GlobalBest *BestSnapshot

	CLocal  CoeffRange
	CGlobal CoeffRange
	CDelta  CoeffRange

	// NoPositionUpdate suppresses exactly the next velocity step. Set on
	// freshly randomized particles so they get one free evaluation.
	NoPositionUpdate bool
}

// NewSwarmPersonality returns swarm traits with dim-sized zero velocity.
func NewSwarmPersonality(dim int) *SwarmPersonality {
	return &SwarmPersonality{
		Velocity: make([]float64, dim),
		CLocal:   Fixed(2.0),
		CGlobal:  Fixed(2.0),
		CDelta:   Fixed(0.4),
	}
}

// Mnemonic implements Personality.
func (p *SwarmPersonality) Mnemonic() string { return "swarm" }

// Clone implements Personality.
func (p *SwarmPersonality) Clone() Personality {
	cp := *p
	cp.Velocity = slices.Clone(p.Velocity)

	if p.LocalBest != nil {
		cp.LocalBest = &BestSnapshot{Floats: slices.Clone(p.LocalBest.Floats), Transformed: p.LocalBest.Transformed}
	}

	if p.GlobalBest != nil {
		cp.GlobalBest = &BestSnapshot{Floats: slices.Clone(p.GlobalBest.Floats), Transformed: p.GlobalBest.Transformed}
	}

	return &cp
}

// RegisterLocalBest captures a deep-cloned snapshot of the neighborhood
// best.
func (p *SwarmPersonality) RegisterLocalBest(best *Candidate) {
	p.LocalBest = &BestSnapshot{
		Floats:      best.Parameters().FloatValues(),
		Transformed: best.Transformed(),
	}
}

// RegisterGlobalBest captures a deep-cloned snapshot of the swarm-wide
// best.
func (p *SwarmPersonality) RegisterGlobalBest(best *Candidate) {
	p.GlobalBest = &BestSnapshot{
		Floats:      best.Parameters().FloatValues(),
		Transformed: best.Transformed(),
	}
}

// SetNoPositionUpdate arms the one-shot position-update suppression.
func (p *SwarmPersonality) SetNoPositionUpdate() { p.NoPositionUpdate = true }

// CheckNoPositionUpdateAndReset reads and clears the one-shot flag.
func (p *SwarmPersonality) CheckNoPositionUpdateAndReset() bool {
	v := p.NoPositionUpdate
	p.NoPositionUpdate = false

	return v
}

// ScanPersonality records the slot a candidate occupies in the parameter
// scan grid.
type ScanPersonality struct {
	GridSlot int
}

// Mnemonic implements Personality.
func (p *ScanPersonality) Mnemonic() string { return "ps" }

// Clone implements Personality.
func (p *ScanPersonality) Clone() Personality {
	cp := *p
	return &cp
}

// GDPersonality records finite-difference bookkeeping for gradient descent:
// which coordinate this probe perturbs and in which direction.
type GDPersonality struct {
	Coordinate int // -1 for the baseline point
	Direction  int // +1 / -1 probe direction, 0 for the baseline
}

// NewGDPersonality returns baseline traits.
func NewGDPersonality() *GDPersonality {
	return &GDPersonality{Coordinate: -1}
}

// Mnemonic implements Personality.
func (p *GDPersonality) Mnemonic() string { return "gd" }

// Clone implements Personality.
func (p *GDPersonality) Clone() Personality {
	cp := *p
	return &cp
}

// SetPersonality replaces the owned traits object. Passing nil clears it.
func (c *Candidate) SetPersonality(p Personality) {
	c.personality = p
}

// PersonalityMnemonic returns the current algorithm tag, or an error when
// no personality has been assigned.
func (c *Candidate) PersonalityMnemonic() (string, error) {
	if c.personality == nil {
		return "", ErrPersonalityUnset
	}

	return c.personality.Mnemonic(), nil
}

// Personality returns the raw traits object, which may be nil.
func (c *Candidate) Personality() Personality { return c.personality }

// EA returns the evolutionary-algorithm traits.
func (c *Candidate) EA() (*EAPersonality, error) {
	p, ok := c.personality.(*EAPersonality)
	if !ok {
		return nil, fmt.Errorf("%w: have %s, want ea", ErrPersonalityUnset, mnemonicOrNone(c.personality))
	}

	return p, nil
}

// SA returns the simulated-annealing traits.
func (c *Candidate) SA() (*SAPersonality, error) {
	p, ok := c.personality.(*SAPersonality)
	if !ok {
		return nil, fmt.Errorf("%w: have %s, want sa", ErrPersonalityUnset, mnemonicOrNone(c.personality))
	}

	return p, nil
}

// Swarm returns the swarm traits.
func (c *Candidate) Swarm() (*SwarmPersonality, error) {
	p, ok := c.personality.(*SwarmPersonality)
	if !ok {
		return nil, fmt.Errorf("%w: have %s, want swarm", ErrPersonalityUnset, mnemonicOrNone(c.personality))
	}

	return p, nil
}

// Scan returns the parameter-scan traits.
func (c *Candidate) Scan() (*ScanPersonality, error) {
	p, ok := c.personality.(*ScanPersonality)
	if !ok {
		return nil, fmt.Errorf("%w: have %s, want ps", ErrPersonalityUnset, mnemonicOrNone(c.personality))
	}

	return p, nil
}

// GD returns the gradient-descent traits.
func (c *Candidate) GD() (*GDPersonality, error) {
	p, ok := c.personality.(*GDPersonality)
	if !ok {
		return nil, fmt.Errorf("%w: have %s, want gd", ErrPersonalityUnset, mnemonicOrNone(c.personality))
	}

	return p, nil
}

func mnemonicOrNone(p Personality) string {
	if p == nil {
		return "none"
	}

	return p.Mnemonic()
}
