package lifecycle

// State represents the coordinator's own lifecycle state, distinct from any
// individual component's status.
type State int

const (
	// StateNotStarted is the initial state before StartAll.
	StateNotStarted State = iota
	// StateStarting means StartAll is walking the registry.
	StateStarting
	// StateRunning means every component started successfully.
	StateRunning
	// StateStoppingGraceful means a graceful shutdown is in progress.
	StateStoppingGraceful
	// StateStoppingForced means a forced shutdown is in progress.
	StateStoppingForced
	// StateStopped is the terminal state after any completed shutdown.
	StateStopped
	// StateStartFailed means a component's Start returned an error.
	// The coordinator records which one; see Coordinator.FailedComponent.
	StateStartFailed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStoppingGraceful:
		return "stopping-graceful"
	case StateStoppingForced:
		return "stopping-forced"
	case StateStopped:
		return "stopped"
	case StateStartFailed:
		return "start-failed"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether moving from s to target is a legal
// lifecycle transition. StateStopped and StateStartFailed are terminal.
func (s State) CanTransitionTo(target State) bool {
	switch s {
	case StateNotStarted:
		return target == StateStarting
	case StateStarting:
		return target == StateRunning || target == StateStartFailed
	case StateRunning:
		return target == StateStoppingGraceful || target == StateStoppingForced
	case StateStoppingGraceful:
		// Escalation path on timeout or stop error.
		return target == StateStoppingForced || target == StateStopped
	case StateStoppingForced:
		return target == StateStopped
	default:
		return false
	}
}

// Outcome describes how a shutdown concluded.
type Outcome int

const (
	// OutcomeNone is returned alongside an error when no shutdown ran.
	OutcomeNone Outcome = iota
	// OutcomeGraceful means the graceful sequence finished within the timeout.
	OutcomeGraceful
	// OutcomeForcedAfterTimeout means the timeout elapsed and the coordinator
	// escalated to a forced stop. It is a degraded success, not an error.
	OutcomeForcedAfterTimeout
	// OutcomeForcedAfterError means a component failed on the graceful path
	// and the coordinator escalated to a forced stop.
	OutcomeForcedAfterError
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeGraceful:
		return "graceful"
	case OutcomeForcedAfterTimeout:
		return "forced-after-timeout"
	case OutcomeForcedAfterError:
		return "forced-after-error"
	default:
		return "none"
	}
}
