// Package escalate is the circuit-breaker state machine that decides, per
// batch outcome, whether the run continues, retries with a fallback model,
// or halts with its partial progress persisted.
package escalate

import "github.com/evalbatch/evalbatch/model"

// DefaultThreshold is the number of consecutive infrastructure failures that
// trips the circuit breaker.
const DefaultThreshold = 2

// Action is the controller's verdict on one outcome.
type Action int

const (
	// Continue proceeds to the next batch with the current model.
	Continue Action = iota
	// TryFallback retries the same batch through the fallback roster before
	// the verdict is final; feed the roster's result to Resolve.
	TryFallback
	// Halt stops the run, persisting state for resumption.
	Halt
)

// Decision carries the action plus how a halt should be presented.
type Decision struct {
	Action Action
	// RateLimited marks a halt caused by a provider rate limit, which gets
	// the wait-before-resuming warning instead of a plain resume hint.
	RateLimited bool
}

// Apply folds one outcome into the run state and decides the next step.
// Accuracy failures never touch the failure counter: a wrong answer is
// expected noise, not a broken backend. Only a success resets it.
func Apply(st *model.RunState, out model.BatchOutcome, threshold int, fallbackEnabled bool) Decision {
	st.Record(out)

	switch out.Status {
	case model.StatusSuccess:
		st.ConsecutiveInfraFailures = 0
		return Decision{Action: Continue}

	case model.StatusFailed:
		return Decision{Action: Continue}

	case model.StatusRateLimited:
		// A provider-level rate limit hits every subsequent call the same
		// way until it resets, so retrying or falling back is pure waste.
		return Decision{Action: Halt, RateLimited: true}

	case model.StatusTimeout, model.StatusOverloaded:
		st.ConsecutiveInfraFailures++
		if fallbackEnabled {
			return Decision{Action: TryFallback}
		}
		return thresholdDecision(st, threshold)

	default: // model.StatusError
		st.ConsecutiveInfraFailures++
		return thresholdDecision(st, threshold)
	}
}

// Resolve finalizes a TryFallback decision once the roster has been walked.
// An adopted model resets the breaker and becomes the model for the rest of
// the run; an exhausted roster falls through to the threshold check.
func Resolve(st *model.RunState, adoptedModel string, threshold int) Decision {
	if adoptedModel != "" {
		st.CurrentModel = adoptedModel
		st.ConsecutiveInfraFailures = 0
		return Decision{Action: Continue}
	}
	return thresholdDecision(st, threshold)
}

func thresholdDecision(st *model.RunState, threshold int) Decision {
	if st.ConsecutiveInfraFailures >= threshold {
		return Decision{Action: Halt}
	}
	return Decision{Action: Continue}
}
