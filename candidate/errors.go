// ABOUTME: Error values for candidate state and contract violations
// ABOUTME: Matched with errors.Is by algorithms, consumers and tests

package candidate

import "errors"

var (
	// ErrEvaluationForbidden is returned when a fitness read would trigger
	// re-evaluation while the candidate is gated by server mode.
	ErrEvaluationForbidden = errors.New("evaluation forbidden: candidate is dirty and in server mode")

	// ErrPersonalityUnset is returned when algorithm traits are read before
	// a personality has been assigned, or through the wrong accessor.
	ErrPersonalityUnset = errors.New("personality traits not set")

	// ErrShapeMismatch is returned when vector lengths disagree, e.g. a
	// weight vector that does not match the secondary fitness count.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrUnknownEvaluator is returned by Process when the candidate names
	// an evaluator that has not been registered in this process.
	ErrUnknownEvaluator = errors.New("unknown evaluator")

	// ErrStaleFitness names a stale cached fitness value. No function in
	// this package returns it: Fitness on a dirty candidate in server mode
	// fails with ErrEvaluationForbidden, and Raw reports staleness via ok.
	ErrStaleFitness = errors.New("fitness values are stale")
)
