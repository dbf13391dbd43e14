// ABOUTME: Shared wiring for all run modes: broker, consumers, algorithms
// ABOUTME: Registers the demo objective functions and builds run contexts

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"geneva/broker"
	"geneva/candidate"
	"geneva/config"
	"geneva/consumer"
	"geneva/executor"
	"geneva/optimizer"
)

// Demo objective functions, registered under stable names so remote
// workers resolve the same evaluators as the server.
const (
	evalParabola   = "parabola"
	evalRosenbrock = "rosenbrock"
)

// registerEvaluators installs the demo objectives into the process-local
// registry. Both server and client processes call it at startup.
func registerEvaluators() {
	candidate.RegisterEvaluator(evalParabola, func(p *candidate.ParameterSet) (float64, []float64, error) {
		sum := 0.0
		for _, x := range p.Floats {
			sum += x * x
		}

		return sum, nil, nil
	})

	candidate.RegisterEvaluator(evalRosenbrock, func(p *candidate.ParameterSet) (float64, []float64, error) {
		if len(p.Floats) < 2 {
			return 0, nil, errors.New("rosenbrock needs at least 2 dimensions")
		}

		sum := 0.0
		for i := 0; i+1 < len(p.Floats); i++ {
			a := p.Floats[i+1] - p.Floats[i]*p.Floats[i]
			b := 1 - p.Floats[i]
			sum += 100*a*a + b*b
		}

		return sum, nil, nil
	})
}

// templateFor builds the template candidate for a named problem.
func templateFor(problem string, dim int, lo, hi float64) (*candidate.Candidate, error) {
	switch problem {
	case evalParabola, evalRosenbrock:
		params := candidate.NewFloatParameterSet(dim, lo, hi)

		return candidate.New(params, problem), nil
	default:
		return nil, fmt.Errorf("unknown problem %q (want %s or %s)", problem, evalParabola, evalRosenbrock)
	}
}

// policyFromOptions maps the run options onto the submission engine
// policy.
func policyFromOptions(opts config.Options) executor.Policy {
	policy := executor.DefaultPolicy()
	policy.WaitFactor = opts.WaitFactor
	policy.MinWaitFactor = opts.MinWaitFactor
	policy.MaxWaitFactor = opts.MaxWaitFactor
	policy.WaitFactorIncrement = opts.WaitFactorIncrement
	policy.BoundlessWait = opts.BoundlessWait
	policy.MaxResubmissions = opts.MaxResubmissions
	policy.CompleteReturnRequired = opts.CompleteReturnRequired
	policy.SubmitTimeout = time.Duration(opts.SubmitTimeoutMS) * time.Millisecond
	policy.PollTimeout = time.Duration(opts.PollTimeoutMS) * time.Millisecond

	return policy
}

// runContext ties together the broker, the port, the consumer backend and
// the algorithm for one optimization run.
type runContext struct {
	broker   *broker.Broker
	port     *broker.Port
	engine   *executor.Engine
	backend  consumer.Consumer
	shared   *config.Shared
	template *candidate.Candidate
}

// buildRun assembles a run context for the chosen consumer backend.
func buildRun(opts config.Options, backendName, problem string, dim int, logger *zap.Logger) (*runContext, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	template, err := templateFor(problem, dim, -10, 10)
	if err != nil {
		return nil, err
	}

	b := broker.New(logger)

	port := broker.NewPort(opts.RawCapacity, opts.ProcessedCapacity, opts.Mode())
	if err := b.Enroll(port); err != nil {
		return nil, err
	}

	engine := executor.New(port, policyFromOptions(opts), logger)

	var backend consumer.Consumer

	switch backendName {
	case "serial":
		backend = consumer.NewSerial(b, logger)
	case "threads":
		backend = consumer.NewThreaded(b, opts.NEvaluationThreads, logger)
	case "tcp":
		addr := fmt.Sprintf("%s:%d", opts.IP, opts.Port)
		idle := time.Duration(opts.IdleTimeoutMS) * time.Millisecond
		backend = consumer.NewTCPServer(b, addr, opts.Mode(), idle, logger)
	default:
		return nil, fmt.Errorf("unknown consumer backend %q (want serial, threads or tcp)", backendName)
	}

	return &runContext{
		broker:   b,
		port:     port,
		engine:   engine,
		backend:  backend,
		shared:   config.NewShared(opts),
		template: template,
	}, nil
}

// buildAlgorithm constructs the requested optimization algorithm over the
// run context.
func (rc *runContext) buildAlgorithm(name string, seed uint64, logger *zap.Logger) (optimizer.Algorithm, error) {
	switch name {
	case "ea":
		return optimizer.NewEA(rc.shared, rc.engine, rc.template, seed, logger), nil
	case "sa":
		return optimizer.NewSA(rc.shared, rc.engine, rc.template, seed, logger), nil
	case "swarm":
		return optimizer.NewSwarm(rc.shared, rc.engine, rc.template, seed, logger), nil
	case "ps":
		return optimizer.NewParameterScan(rc.shared, rc.engine, rc.template, seed, logger), nil
	case "gd":
		return optimizer.NewGradientDescent(rc.shared, rc.engine, rc.template, seed, logger), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q (want ea, sa, swarm, ps or gd)", name)
	}
}

// startBackend launches the consumer backend and returns a channel
// carrying its exit error.
func (rc *runContext) startBackend(ctx context.Context) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- rc.backend.Run(ctx)
	}()

	return done
}
