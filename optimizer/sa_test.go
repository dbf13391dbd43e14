// ABOUTME: Tests for simulated annealing selection and cooling
// ABOUTME: Acceptance keeps better children; temperature decays per cycle

package optimizer

import (
	"context"
	"testing"

	"geneva/config"
)

func saOptions() config.Options {
	opts := config.Default()
	opts.Size = 12
	opts.NParents = 3
	opts.MaxIterations = 100
	opts.Alpha = 0.95
	opts.StartTemp = 10.0

	return opts
}

func TestSAParabolaImproves(t *testing.T) {
	opts := saOptions()

	rig := newTestRig(t, opts)
	defer rig.stop()

	sa := NewSA(rig.shared, rig.engine, floatTemplate(3, -10, 10, "opt-parabola"), 42, nil)

	ctx := context.Background()

	if err := sa.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, first, err := sa.CycleLogic(ctx)
	if err != nil {
		t.Fatalf("first CycleLogic failed: %v", err)
	}

	var last float64
	for range 99 {
		_, last, err = sa.CycleLogic(ctx)
		if err != nil {
			t.Fatalf("CycleLogic failed: %v", err)
		}
	}

	if last >= first {
		t.Errorf("Expected improvement over 100 iterations: first %v, last %v", first, last)
	}

	if last >= 0.5 {
		t.Errorf("Expected best fitness < 0.5, got %v", last)
	}
}

func TestSATemperatureDecays(t *testing.T) {
	opts := saOptions()

	rig := newTestRig(t, opts)
	defer rig.stop()

	sa := NewSA(rig.shared, rig.engine, floatTemplate(2, -10, 10, "opt-parabola"), 5, nil)

	ctx := context.Background()

	if err := sa.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if sa.Temperature() != opts.StartTemp {
		t.Fatalf("Expected start temperature %v, got %v", opts.StartTemp, sa.Temperature())
	}

	// The first cycle only seeds the population; cooling starts with the
	// first annealed generation.
	for range 11 {
		if _, _, err := sa.CycleLogic(ctx); err != nil {
			t.Fatalf("CycleLogic failed: %v", err)
		}
	}

	want := opts.StartTemp
	for range 10 {
		want *= opts.Alpha
	}

	if got := sa.Temperature(); got != want {
		t.Errorf("Expected temperature %v after 10 annealed cycles, got %v", want, got)
	}
}

func TestSAAlphaValidation(t *testing.T) {
	opts := saOptions()
	opts.Alpha = 1.5

	if err := opts.Validate(); err == nil {
		t.Fatal("Expected validation failure for alpha outside (0,1)")
	}
}
