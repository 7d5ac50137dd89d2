package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryFrozen is returned by Register once the coordinator has
	// taken ownership of the registry. Components register at bootstrap only.
	ErrRegistryFrozen = errors.New("registry is frozen, components register at bootstrap only")

	// ErrShutdownTimedOut signals internally that the graceful sequence lost
	// the race against its timer. Callers never see it as an error; it
	// surfaces as OutcomeForcedAfterTimeout.
	ErrShutdownTimedOut = errors.New("graceful shutdown timed out")

	// ErrCoordinatorBusy is returned by RestartComponent when a lifecycle
	// operation is in flight. Callers should skip and retry later rather
	// than queue.
	ErrCoordinatorBusy = errors.New("lifecycle operation in progress")

	// ErrUnknownComponent is returned when a component name is not registered.
	ErrUnknownComponent = errors.New("unknown component")
)

// DuplicateComponentError reports a registration with a name that is already
// taken. Fatal at bootstrap.
type DuplicateComponentError struct {
	Name string
}

func (e *DuplicateComponentError) Error() string {
	return fmt.Sprintf("component %q is already registered", e.Name)
}

// InvalidTransitionError reports a lifecycle operation invoked out of
// state-machine order. Recoverable: check the coordinator state and retry
// the appropriate operation.
type InvalidTransitionError struct {
	From State
	To   State
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s: illegal transition %s -> %s", e.Op, e.From, e.To)
}

// ComponentStartError wraps the error a component returned from Start.
// Startup is fail-fast: components after the failed one are never started.
type ComponentStartError struct {
	Name string
	Err  error
}

func (e *ComponentStartError) Error() string {
	return fmt.Sprintf("component %q failed to start: %v", e.Name, e.Err)
}

func (e *ComponentStartError) Unwrap() error {
	return e.Err
}

// ComponentStopError wraps the error a component returned from Drain or Stop
// on the graceful path. It aborts the graceful sequence and escalates to a
// forced stop; forced-path stop errors are logged and suppressed instead.
type ComponentStopError struct {
	Name string
	Err  error
}

func (e *ComponentStopError) Error() string {
	return fmt.Sprintf("component %q failed to stop: %v", e.Name, e.Err)
}

func (e *ComponentStopError) Unwrap() error {
	return e.Err
}
