package model

import "fmt"

// =====================================================
// TRANSACTION STATE MACHINE
// =====================================================
//
// Pure transition table; no I/O. Rejection is a first-class value,
// not an error. The pipeline maps a rejection to the
// TRANSITION_REJECTED fate and writes a rejection audit row.

// allowedTransitions lists every legal edge. Anything not listed is
// rejected; terminal statuses have no entry.
var allowedTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:           {StatusProcessing, StatusAbandoned, StatusFailed},
	StatusProcessing:        {StatusSuccessful, StatusFailed, StatusAbandoned},
	StatusSuccessful:        {StatusRefunded, StatusPartiallyRefunded, StatusDisputed},
	StatusPartiallyRefunded: {StatusRefunded, StatusDisputed},
	// SUCCESSFUL target covers dispute cancellation
	StatusDisputed: {StatusResolvedWon, StatusResolvedLost, StatusSuccessful},
}

// TransitionContext carries the policy inputs for a transition check
type TransitionContext struct {
	Trigger TriggerType

	// Force lets MANUAL triggers take edges outside the table.
	// Terminal sources stay sealed even under force.
	Force bool
}

// TransitionResult is the outcome of a transition check
type TransitionResult struct {
	Allowed bool
	Reason  string
}

func allowed() TransitionResult {
	return TransitionResult{Allowed: true}
}

func rejected(format string, args ...interface{}) TransitionResult {
	return TransitionResult{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// ValidateTransition decides whether moving from one status to
// another is legal for the given trigger.
func ValidateTransition(from, to TransactionStatus, ctx TransitionContext) TransitionResult {
	if !from.IsValid() {
		return rejected("unknown source status %q", from)
	}
	if !to.IsValid() {
		return rejected("unknown target status %q", to)
	}
	if from == to {
		return rejected("transition to the same status %q", from)
	}
	if from.IsTerminal() {
		return rejected("status %q is terminal", from)
	}

	// Manual overrides may take off-table edges, but only when the
	// operator explicitly forces it
	if ctx.Trigger == TriggerManual && ctx.Force {
		return allowed()
	}

	for _, target := range allowedTransitions[from] {
		if target == to {
			return allowed()
		}
	}

	return rejected("transition %s -> %s is not permitted", from, to)
}
