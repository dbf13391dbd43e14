// ABOUTME: Tests for finite-difference gradient descent
// ABOUTME: Quadratic convergence and stall-driven step shrinking

package optimizer

import (
	"context"
	"testing"

	"geneva/config"
)

func TestGradientDescentParabola(t *testing.T) {
	opts := config.Default()
	opts.MaxIterations = 100
	opts.GDStepSize = 0.1
	opts.GDFiniteStep = 1e-4

	rig := newTestRig(t, opts)
	defer rig.stop()

	gd := NewGradientDescent(rig.shared, rig.engine, floatTemplate(2, -10, 10, "opt-parabola"), 42, nil)
	loop := NewLoop(gd, rig.shared, nil)

	result, err := loop.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	// On f = x0^2 + x1^2 every step contracts the position by 0.8, so a
	// hundred iterations land far below the assertion threshold.
	if result.BestRaw >= 1e-6 {
		t.Errorf("Expected best fitness < 1e-6, got %v", result.BestRaw)
	}
}

func TestGradientDescentStallShrinksStep(t *testing.T) {
	opts := config.Default()

	rig := newTestRig(t, opts)
	defer rig.stop()

	gd := NewGradientDescent(rig.shared, rig.engine, floatTemplate(2, -10, 10, "opt-parabola"), 1, nil)

	if err := gd.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	before := gd.stepSize

	if err := gd.ActOnStalls(); err != nil {
		t.Fatalf("ActOnStalls failed: %v", err)
	}

	if gd.stepSize >= before {
		t.Errorf("Expected step size to shrink: %v -> %v", before, gd.stepSize)
	}
}
