// ABOUTME: Tests for the evolutionary algorithm and the optimization loop
// ABOUTME: Parabola convergence, amalgamation invariants, config failures

package optimizer

import (
	"context"
	"errors"
	"testing"

	"geneva/candidate"
	"geneva/config"
)

func eaOptions() config.Options {
	opts := config.Default()
	opts.Size = 12
	opts.NParents = 3
	opts.RecombinationScheme = "random"
	opts.MaxIterations = 120

	return opts
}

func TestEAParabolaConverges(t *testing.T) {
	opts := eaOptions()

	rig := newTestRig(t, opts)
	defer rig.stop()

	ea := NewEA(rig.shared, rig.engine, floatTemplate(3, -10, 10, "opt-parabola"), 42, nil)

	tracker := NewTracker()
	bests := make([]float64, 0, opts.MaxIterations)
	trackDone := make(chan struct{})

	go func() {
		defer close(trackDone)

		for u := range tracker.Updates() {
			bests = append(bests, u.BestTransformed)
		}
	}()

	loop := NewLoop(ea, rig.shared, nil, WithTracker(tracker))

	result, err := loop.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	<-trackDone

	if result.HaltReason != "max iterations reached" {
		t.Errorf("Unexpected halt reason %q", result.HaltReason)
	}

	if result.BestRaw >= 1e-3 {
		t.Errorf("Expected best fitness < 1e-3, got %v", result.BestRaw)
	}

	// Best fitness never worsens between iterations.
	for i := 1; i < len(bests); i++ {
		if bests[i] > bests[i-1]+1e-12 {
			t.Errorf("best fitness worsened at update %d: %v -> %v", i, bests[i-1], bests[i])

			break
		}
	}
}

func TestEAAmalgamationLikelihoodOne(t *testing.T) {
	opts := eaOptions()
	opts.NParents = 4
	opts.Size = 12
	opts.AmalgamationLikelihood = 1.0

	rig := newTestRig(t, opts)
	defer rig.stop()

	ea := NewEA(rig.shared, rig.engine, floatTemplate(3, -10, 10, "opt-parabola"), 7, nil)

	if err := ea.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ea.iteration = 1

	err := ea.reproduce(func(c *candidate.Candidate, parentID, peerID, position int) {
		traits := candidate.NewEAPersonality()
		traits.ParentID = parentID
		traits.AmalgamationPeerID = peerID
		traits.PopulationPosition = position
		c.SetPersonality(traits)
	})
	if err != nil {
		t.Fatalf("reproduce failed: %v", err)
	}

	lambda := opts.Size - opts.NParents

	if got := ea.Amalgamations(); got != uint64(lambda) {
		t.Errorf("Expected %d amalgamations, got %d", lambda, got)
	}

	for i, child := range ea.children() {
		traits, err := child.EA()
		if err != nil {
			t.Fatalf("child %d has no EA traits: %v", i, err)
		}

		if traits.AmalgamationPeerID < 0 {
			t.Errorf("child %d was cloned, not amalgamated", i)

			continue
		}

		if traits.ParentID == traits.AmalgamationPeerID {
			t.Errorf("child %d amalgamated a parent with itself (id %d)", i, traits.ParentID)
		}
	}
}

func TestEAAmalgamationLikelihoodZero(t *testing.T) {
	opts := eaOptions()
	opts.AmalgamationLikelihood = 0

	rig := newTestRig(t, opts)
	defer rig.stop()

	ea := NewEA(rig.shared, rig.engine, floatTemplate(2, -10, 10, "opt-parabola"), 3, nil)

	ctx := context.Background()

	if err := ea.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	for range 5 {
		if _, _, err := ea.CycleLogic(ctx); err != nil {
			t.Fatalf("CycleLogic failed: %v", err)
		}
	}

	if got := ea.Amalgamations(); got != 0 {
		t.Errorf("Expected zero amalgamations with p=0, got %d", got)
	}
}

func TestEAParentsWithoutChildrenIsConfigInvalid(t *testing.T) {
	opts := eaOptions()
	opts.Size = opts.NParents // lambda = 0

	rig := newTestRig(t, opts)
	defer rig.stop()

	ea := NewEA(rig.shared, rig.engine, floatTemplate(2, -10, 10, "opt-parabola"), 1, nil)

	if err := ea.Init(); !errors.Is(err, config.ErrConfigInvalid) {
		t.Fatalf("Expected ErrConfigInvalid for size == nParents, got %v", err)
	}
}

func TestEASelectionOrdersParentsBestFirst(t *testing.T) {
	opts := eaOptions()
	opts.MaxIterations = 5

	rig := newTestRig(t, opts)
	defer rig.stop()

	ea := NewEA(rig.shared, rig.engine, floatTemplate(3, -10, 10, "opt-parabola"), 11, nil)

	ctx := context.Background()

	if err := ea.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	for range 3 {
		if _, _, err := ea.CycleLogic(ctx); err != nil {
			t.Fatalf("CycleLogic failed: %v", err)
		}
	}

	for i := 1; i < ea.mu; i++ {
		if ea.population[i].IsBetterThan(ea.population[i-1]) {
			t.Errorf("parent %d is better than parent %d", i, i-1)
		}
	}

	// Parent slots carry parent traits, child slots carry child traits.
	for i, c := range ea.population {
		traits, err := c.EA()
		if err != nil {
			t.Fatalf("slot %d has no EA traits: %v", i, err)
		}

		if i < ea.mu && !traits.IsParent() {
			t.Errorf("slot %d should be a parent", i)
		}

		if i >= ea.mu && traits.IsParent() {
			t.Errorf("slot %d should be a child", i)
		}
	}
}

func TestLoopStallHalt(t *testing.T) {
	opts := config.Default()
	opts.MaxIterations = 0
	opts.MaxStallIteration = 5

	rig := newTestRig(t, opts)
	defer rig.stop()

	loop := NewLoop(&flatAlgorithm{}, rig.shared, nil)

	result, err := loop.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if result.HaltReason != "stall threshold reached" {
		t.Errorf("Unexpected halt reason %q", result.HaltReason)
	}

	// One improving iteration, then five stalls.
	if result.Iterations != 6 {
		t.Errorf("Expected 6 iterations, got %d", result.Iterations)
	}
}

func TestLoopUserHalt(t *testing.T) {
	opts := config.Default()
	opts.MaxIterations = 0

	rig := newTestRig(t, opts)
	defer rig.stop()

	iterations := 0
	halt := func() bool { return iterations >= 3 }

	alg := &flatAlgorithm{onCycle: func() { iterations++ }}
	loop := NewLoop(alg, rig.shared, nil, WithHalt(halt))

	result, err := loop.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if result.HaltReason != "user halt" {
		t.Errorf("Unexpected halt reason %q", result.HaltReason)
	}
}

// flatAlgorithm never improves after its first iteration; used to test
// stall handling in the loop.
type flatAlgorithm struct {
	onCycle      func()
	stallActions int
}

func (f *flatAlgorithm) Mnemonic() string { return "flat" }
func (f *flatAlgorithm) Init() error      { return nil }

func (f *flatAlgorithm) CycleLogic(ctx context.Context) (float64, float64, error) {
	if f.onCycle != nil {
		f.onCycle()
	}

	return 1.0, 1.0, nil
}

func (f *flatAlgorithm) Best() *candidate.Candidate { return nil }
func (f *flatAlgorithm) ActOnStalls() error {
	f.stallActions++

	return nil
}
func (f *flatAlgorithm) Exhausted() bool { return false }
func (f *flatAlgorithm) Finalize() error { return nil }
