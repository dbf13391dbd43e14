// ABOUTME: Tests for the submission/collection engine
// ABOUTME: Resubmission, at-most-once commit, strict and best-effort modes

package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"geneva/broker"
	"geneva/candidate"
	"geneva/consumer"
)

func init() {
	candidate.RegisterEvaluator("executor-square", func(p *candidate.ParameterSet) (float64, []float64, error) {
		return p.Floats[0] * p.Floats[0], nil, nil
	})
}

func newGeneration(t *testing.T, n int) []*candidate.Candidate {
	t.Helper()

	generation := make([]*candidate.Candidate, n)

	for i := range n {
		params := candidate.NewFloatParameterSet(1, -1000, 1000)
		if err := params.AssignFloatValues([]float64{float64(i)}); err != nil {
			t.Fatalf("AssignFloatValues failed: %v", err)
		}

		generation[i] = candidate.New(params, "executor-square")
	}

	return generation
}

func fastPolicy() Policy {
	policy := DefaultPolicy()
	policy.InitialLatency = 200 * time.Millisecond
	policy.PollTimeout = 10 * time.Millisecond

	return policy
}

func TestSubmitAndWaitCompletesGeneration(t *testing.T) {
	b := broker.New(nil)
	port := broker.NewPort(64, 64, candidate.ModeBinary)

	if err := b.Enroll(port); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := consumer.NewThreaded(b, 4, nil)
	go func() { _ = backend.Run(ctx) }()

	engine := New(port, fastPolicy(), nil)
	generation := newGeneration(t, 20)

	stragglers, err := engine.SubmitAndWait(ctx, generation)
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}

	if len(stragglers) != 0 {
		t.Errorf("Expected no stragglers, got %d", len(stragglers))
	}

	// Positions must be preserved regardless of completion order.
	for i, c := range generation {
		if c.State() != candidate.Processed {
			t.Errorf("position %d: state %s", i, c.State())

			continue
		}

		if c.Dirty() {
			t.Errorf("position %d still dirty after processing", i)
		}

		raw, ok := c.Raw()
		if !ok || raw != float64(i*i) {
			t.Errorf("position %d: fitness %v, want %d", i, raw, i*i)
		}

		if c.ServerMode() {
			t.Errorf("position %d: server mode not restored", i)
		}
	}
}

// lossyBackend drops the first submission attempt for the configured
// positions, simulating a worker that died after taking the items.
type lossyBackend struct {
	broker *broker.Broker
	drop   map[int]bool

	mu      sync.Mutex
	dropped int
}

func (l *lossyBackend) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		item, ok, err := l.broker.GetRaw(ctx, 20*time.Millisecond)
		if err != nil || !ok {
			continue
		}

		if item.Courtier.Attempt == 0 && l.drop[item.Courtier.Position] {
			l.mu.Lock()
			l.dropped++
			l.mu.Unlock()

			continue // the item vanishes with its worker
		}

		_ = item.Process()
		_ = l.broker.PutProcessed(ctx, item, time.Second)
	}
}

func TestResubmissionRecoversDroppedItems(t *testing.T) {
	b := broker.New(nil)
	port := broker.NewPort(64, 64, candidate.ModeBinary)

	if err := b.Enroll(port); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &lossyBackend{broker: b, drop: map[int]bool{2: true, 5: true, 7: true}}
	go backend.run(ctx)

	policy := fastPolicy()
	policy.WaitFactor = 1
	policy.MaxResubmissions = 3

	engine := New(port, policy, nil)
	generation := newGeneration(t, 10)

	stragglers, err := engine.SubmitAndWait(ctx, generation)
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}

	if len(stragglers) != 0 {
		t.Errorf("Expected full completion, got %d stragglers", len(stragglers))
	}

	for i, c := range generation {
		if c.State() != candidate.Processed {
			t.Errorf("position %d: state %s", i, c.State())
		}
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()

	if backend.dropped != 3 {
		t.Errorf("Expected 3 dropped items, got %d", backend.dropped)
	}
}

// duplicatingBackend returns every item twice; the duplicate carries a
// poisoned fitness so a double commit is observable.
type duplicatingBackend struct {
	broker *broker.Broker
}

func (d *duplicatingBackend) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		item, ok, err := d.broker.GetRaw(ctx, 20*time.Millisecond)
		if err != nil || !ok {
			continue
		}

		_ = item.Process()

		dup := item.Clone()
		_ = dup.SetFitness(999999, nil)

		_ = d.broker.PutProcessed(ctx, item, time.Second)
		_ = d.broker.PutProcessed(ctx, dup, time.Second)
	}
}

func TestDuplicateResultsCommitAtMostOnce(t *testing.T) {
	b := broker.New(nil)
	port := broker.NewPort(64, 128, candidate.ModeBinary)

	if err := b.Enroll(port); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &duplicatingBackend{broker: b}
	go backend.run(ctx)

	engine := New(port, fastPolicy(), nil)
	generation := newGeneration(t, 8)

	if _, err := engine.SubmitAndWait(ctx, generation); err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}

	for i, c := range generation {
		raw, ok := c.Raw()
		if !ok {
			t.Errorf("position %d not committed", i)

			continue
		}

		if raw == 999999 {
			t.Errorf("position %d committed twice", i)
		}
	}
}

func TestStrictModeFailsWithoutWorkers(t *testing.T) {
	b := broker.New(nil)
	port := broker.NewPort(64, 64, candidate.ModeBinary)

	if err := b.Enroll(port); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	policy := fastPolicy()
	policy.InitialLatency = 50 * time.Millisecond
	policy.WaitFactor = 1
	policy.MinWaitFactor = 1
	policy.MaxWaitFactor = 1
	policy.MaxResubmissions = 1

	engine := New(port, policy, nil)
	generation := newGeneration(t, 3)

	_, err := engine.SubmitAndWait(context.Background(), generation)
	if !errors.Is(err, ErrIncompleteGeneration) {
		t.Fatalf("Expected ErrIncompleteGeneration, got %v", err)
	}
}

func TestBestEffortReturnsStragglers(t *testing.T) {
	b := broker.New(nil)
	port := broker.NewPort(64, 64, candidate.ModeBinary)

	if err := b.Enroll(port); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	policy := fastPolicy()
	policy.InitialLatency = 50 * time.Millisecond
	policy.WaitFactor = 1
	policy.MinWaitFactor = 1
	policy.MaxWaitFactor = 1
	policy.MaxResubmissions = 0
	policy.CompleteReturnRequired = false

	engine := New(port, policy, nil)
	generation := newGeneration(t, 3)

	stragglers, err := engine.SubmitAndWait(context.Background(), generation)
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}

	if len(stragglers) != 3 {
		t.Fatalf("Expected 3 stragglers, got %d", len(stragglers))
	}

	// Slots keep their pre-generation state and server mode is restored.
	for i, c := range generation {
		if c.State() != candidate.DoProcess {
			t.Errorf("position %d: state %s", i, c.State())
		}

		if c.ServerMode() {
			t.Errorf("position %d: server mode not restored", i)
		}
	}
}

func TestEmptyGenerationIsNoop(t *testing.T) {
	b := broker.New(nil)
	port := broker.NewPort(4, 4, candidate.ModeBinary)

	if err := b.Enroll(port); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	engine := New(port, fastPolicy(), nil)

	stragglers, err := engine.SubmitAndWait(context.Background(), nil)
	if err != nil || stragglers != nil {
		t.Errorf("Expected clean no-op, got stragglers=%v err=%v", stragglers, err)
	}
}
