// ABOUTME: Tests for swarm dynamics: convergence, bests, repair
// ABOUTME: Local bests only improve; repair restores neighborhood sizes

package optimizer

import (
	"context"
	"math"
	"testing"

	"geneva/config"
)

func swarmOptions(n, k int, iterations uint32) config.Options {
	opts := config.Default()
	opts.NNeighborhoods = n
	opts.NNeighborhoodMembers = k
	opts.MaxIterations = iterations
	opts.CLocal = []float64{2.0}
	opts.CGlobal = []float64{2.0}
	opts.CDelta = []float64{0.4}

	return opts
}

func TestSwarmParabolaConverges(t *testing.T) {
	opts := swarmOptions(2, 5, 150)

	rig := newTestRig(t, opts)
	defer rig.stop()

	swarm := NewSwarm(rig.shared, rig.engine, floatTemplate(2, -10, 10, "opt-parabola"), 42, nil)
	loop := NewLoop(swarm, rig.shared, nil)

	result, err := loop.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if result.BestRaw >= 1e-2 {
		t.Errorf("Expected best fitness < 1e-2, got %v", result.BestRaw)
	}
}

func TestSwarmRosenbrock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping the long Rosenbrock run in short mode")
	}

	opts := swarmOptions(5, 20, 200)

	rig := newTestRig(t, opts)
	defer rig.stop()

	swarm := NewSwarm(rig.shared, rig.engine, floatTemplate(2, -10, 10, "opt-rosenbrock"), 42, nil)
	loop := NewLoop(swarm, rig.shared, nil)

	result, err := loop.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	x := result.Best.Parameters().FloatValues()
	dist := math.Hypot(x[0]-1, x[1]-1)

	if dist >= 0.1 {
		t.Errorf("global best %.4v is %.3f away from (1,1)", x, dist)
	}
}

func TestSwarmLocalBestsOnlyImprove(t *testing.T) {
	opts := swarmOptions(3, 4, 0)

	rig := newTestRig(t, opts)
	defer rig.stop()

	swarm := NewSwarm(rig.shared, rig.engine, floatTemplate(2, -10, 10, "opt-parabola"), 5, nil)

	ctx := context.Background()

	if err := swarm.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	previous := make([]float64, swarm.n)
	for i := range previous {
		previous[i] = math.Inf(1)
	}

	for iter := range 20 {
		if _, _, err := swarm.CycleLogic(ctx); err != nil {
			t.Fatalf("CycleLogic failed at iteration %d: %v", iter, err)
		}

		for nb, lb := range swarm.localBests {
			if lb == nil {
				t.Fatalf("neighborhood %d has no local best after iteration %d", nb, iter)
			}

			if lb.Transformed() > previous[nb]+1e-12 {
				t.Errorf("neighborhood %d local best worsened at iteration %d: %v -> %v",
					nb, iter, previous[nb], lb.Transformed())
			}

			previous[nb] = lb.Transformed()
		}
	}
}

func TestSwarmSingleParticleNeighborhoodsAreValidated(t *testing.T) {
	opts := swarmOptions(1, 1, 5)

	if err := opts.Validate(); err == nil {
		t.Fatal("Expected validation failure for nNeighborhoodMembers < 2")
	}
}

func TestSwarmNeighborhoodRepair(t *testing.T) {
	opts := swarmOptions(2, 4, 0)

	rig := newTestRig(t, opts)
	defer rig.stop()

	swarm := NewSwarm(rig.shared, rig.engine, floatTemplate(2, -10, 10, "opt-parabola"), 9, nil)

	if err := swarm.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if _, _, err := swarm.CycleLogic(context.Background()); err != nil {
		t.Fatalf("CycleLogic failed: %v", err)
	}

	// Lose one particle of neighborhood 0.
	swarm.population = swarm.population[1:]

	swarm.repairNeighborhoods()

	if len(swarm.population) != swarm.n*swarm.k {
		t.Fatalf("Expected %d particles after repair, got %d", swarm.n*swarm.k, len(swarm.population))
	}

	counts := make(map[int]int)
	fresh := 0

	for _, c := range swarm.population {
		traits, err := c.Swarm()
		if err != nil {
			t.Fatalf("particle lost its traits: %v", err)
		}

		counts[traits.NeighborhoodID]++

		if traits.NoPositionUpdate {
			fresh++
		}
	}

	for nb := range swarm.n {
		if counts[nb] != swarm.k {
			t.Errorf("neighborhood %d has %d members, want %d", nb, counts[nb], swarm.k)
		}
	}

	if fresh != 1 {
		t.Errorf("Expected exactly 1 freshly seeded particle, got %d", fresh)
	}

	// The newcomer skips exactly one velocity step and must be dirty, so
	// it gets a free evaluation before the bests drive it.
	for _, c := range swarm.population {
		traits, _ := c.Swarm()
		if traits.NoPositionUpdate && !c.Dirty() {
			t.Error("fresh particle should be dirty after random init")
		}
	}
}
