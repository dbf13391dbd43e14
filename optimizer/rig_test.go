// ABOUTME: Shared test rig wiring broker, serial consumer and engine
// ABOUTME: Registers the parabola test objectives used across the tests

package optimizer

import (
	"context"
	"sync"
	"testing"
	"time"

	"geneva/broker"
	"geneva/candidate"
	"geneva/config"
	"geneva/consumer"
	"geneva/executor"
)

func init() {
	candidate.RegisterEvaluator("opt-parabola", func(p *candidate.ParameterSet) (float64, []float64, error) {
		sum := 0.0
		for _, x := range p.Floats {
			sum += x * x
		}

		return sum, nil, nil
	})

	candidate.RegisterEvaluator("opt-rosenbrock", func(p *candidate.ParameterSet) (float64, []float64, error) {
		sum := 0.0
		for i := 0; i+1 < len(p.Floats); i++ {
			a := p.Floats[i+1] - p.Floats[i]*p.Floats[i]
			b := 1 - p.Floats[i]
			sum += 100*a*a + b*b
		}

		return sum, nil, nil
	})
}

// gridRecorder tracks distinct evaluated points for the scan tests.
type gridRecorder struct {
	mu    sync.Mutex
	seen  map[[2]float64]bool
	calls int
}

func newGridRecorder() *gridRecorder {
	return &gridRecorder{seen: make(map[[2]float64]bool)}
}

func (g *gridRecorder) evaluator(p *candidate.ParameterSet) (float64, []float64, error) {
	g.mu.Lock()
	g.seen[[2]float64{p.Floats[0], p.Floats[1]}] = true
	g.calls++
	g.mu.Unlock()

	d0 := p.Floats[0] - 0.5
	d1 := p.Floats[1] - 0.3

	return d0*d0 + d1*d1, nil, nil
}

func (g *gridRecorder) distinct() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.seen)
}

// testRig is a full in-process execution fabric around one port.
type testRig struct {
	shared *config.Shared
	engine *executor.Engine
	stop   func()
}

// newTestRig wires a broker, a serial consumer and a boundless-wait
// engine for deterministic algorithm tests.
func newTestRig(t *testing.T, opts config.Options) *testRig {
	t.Helper()

	b := broker.New(nil)
	port := broker.NewPort(opts.Size+8, opts.Size+8, candidate.ModeBinary)

	if err := b.Enroll(port); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	backend := consumer.NewSerial(b, nil)

	go func() {
		defer close(done)
		_ = backend.Run(ctx)
	}()

	policy := executor.DefaultPolicy()
	policy.BoundlessWait = true
	policy.PollTimeout = 5 * time.Millisecond

	return &testRig{
		shared: config.NewShared(opts),
		engine: executor.New(port, policy, nil),
		stop: func() {
			cancel()

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Error("consumer did not unwind in time")
			}
		},
	}
}

// floatTemplate builds a template candidate with dim float coordinates.
func floatTemplate(dim int, lo, hi float64, evaluator string) *candidate.Candidate {
	return candidate.New(candidate.NewFloatParameterSet(dim, lo, hi), evaluator)
}
